package engine

import "centros-monitor/internal/gateway"

// MergeStatus overlays the status feed onto capture rows by centro id. Rows
// without a status entry keep their existing values. The input slice is not
// mutated; the merge is idempotent.
func MergeStatus(rows []gateway.CapturaItem, status StatusMap) []gateway.CapturaItem {
	if len(rows) == 0 {
		return nil
	}
	merged := make([]gateway.CapturaItem, len(rows))
	for i, row := range rows {
		if entry, ok := status[row.CentroID]; ok {
			row.Online = entry.Online
			row.LastSeen = entry.LastSeen
		}
		merged[i] = row
	}
	return merged
}

package engine

import (
	"errors"
	"fmt"
	"time"

	"centros-monitor/internal/gateway"
)

// RetakePhase names the stages of a per-row recapture command.
type RetakePhase string

const (
	RetakeIdle       RetakePhase = "idle"
	RetakeRequesting RetakePhase = "requesting"
	RetakeCapturing  RetakePhase = "capturing"
	RetakeCompleted  RetakePhase = "completed"
	RetakeTimedOut   RetakePhase = "timed_out"
	RetakeFailed     RetakePhase = "failed"
)

// RetakeState is the visible lifecycle of one row's recapture command.
// CapturaID is the capture being confirmation-polled; for rows that had no
// capture record it is adopted from the backend's response.
type RetakeState struct {
	Phase     RetakePhase `json:"phase"`
	Since     time.Time   `json:"since"`
	CapturaID *int64      `json:"captura_id,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Active reports whether the command still owns the row.
func (s RetakeState) Active() bool {
	return s.Phase == RetakeRequesting || s.Phase == RetakeCapturing
}

// ErrRetakeBusy rejects a second retake while one is already in flight for
// the same row.
var ErrRetakeBusy = errors.New("retake already in progress for this centro")

// ErrUnknownCentro rejects commands for rows outside the loaded page.
var ErrUnknownCentro = errors.New("centro is not part of the current view")

// Retake starts the recapture state machine for one row. At most one machine
// may be active per row; a concurrent invocation is rejected without issuing
// a duplicate request.
func (e *Engine) Retake(centroID int64) error {
	e.mu.Lock()
	var capturaID *int64
	found := false
	for _, row := range e.rows {
		if row.CentroID == centroID {
			capturaID = row.CapturaID
			found = true
			break
		}
	}
	if !found {
		e.mu.Unlock()
		return ErrUnknownCentro
	}
	if st, ok := e.retakes[centroID]; ok && st.Active() {
		e.mu.Unlock()
		return ErrRetakeBusy
	}
	e.retakes[centroID] = &RetakeState{Phase: RetakeRequesting, Since: time.Now()}
	gen := e.gen
	fecha := e.fecha
	e.mu.Unlock()

	go e.runRetake(gen, centroID, capturaID, fecha)
	return nil
}

// runRetake drives requesting -> capturing -> terminal for one row.
func (e *Engine) runRetake(gen uint64, centroID int64, capturaID *int64, fecha string) {
	// Version marker before the request; the first change confirms a fresh
	// capture landed.
	var before *int64
	if capturaID != nil {
		if st, err := e.src.CapturaEstado(e.ctx, *capturaID); err == nil {
			before = st.UltimaVersionID
		}
	}

	var (
		res *gateway.RetomarResult
		err error
	)
	if capturaID != nil {
		res, err = e.src.Retomar(e.ctx, *capturaID, fecha)
	} else {
		// No capture record yet: target the centro and adopt the id the
		// backend creates.
		res, err = e.src.RetomarPorCentro(e.ctx, centroID, fecha)
	}
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		e.finishRetake(gen, centroID, RetakeFailed, err.Error())
		return
	}
	if res == nil || res.CapturaID == 0 {
		e.finishRetake(gen, centroID, RetakeFailed, "backend did not return a capture id")
		return
	}
	target := res.CapturaID

	e.mu.Lock()
	if e.gen == gen {
		if st, ok := e.retakes[centroID]; ok {
			st.Phase = RetakeCapturing
			st.CapturaID = &target
		}
		// The agent accepting the order is itself evidence of liveness.
		entry := e.statusMap[centroID]
		entry.Online = true
		e.statusMap[centroID] = entry
	}
	e.mu.Unlock()
	e.Wake()

	ticker := time.NewTicker(e.cfg.RetakePoll)
	defer ticker.Stop()
	timeout := time.NewTimer(e.cfg.RetakeTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-timeout.C:
			e.finishRetake(gen, centroID, RetakeTimedOut, "")
			return
		case <-ticker.C:
			// The selection moved on; stop polling for the dead key.
			e.mu.Lock()
			superseded := e.gen != gen
			e.mu.Unlock()
			if superseded {
				return
			}
			st, err := e.src.CapturaEstado(e.ctx, target)
			if err != nil || st == nil || st.UltimaVersionID == nil {
				continue
			}
			if before == nil || *st.UltimaVersionID != *before {
				e.finishRetake(gen, centroID, RetakeCompleted, "")
				e.Wake()
				return
			}
		}
	}
}

// finishRetake records a terminal phase unless the selection moved on.
func (e *Engine) finishRetake(gen uint64, centroID int64, phase RetakePhase, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	st, ok := e.retakes[centroID]
	if !ok {
		return
	}
	st.Phase = phase
	st.Error = errMsg
}

// RetakeStatusText renders a display string for a row's retake state, in the
// shape the dashboard shows next to the row.
func RetakeStatusText(st RetakeState) string {
	elapsed := int(time.Since(st.Since).Seconds())
	switch st.Phase {
	case RetakeRequesting:
		return "Solicitando captura..."
	case RetakeCapturing:
		return "Capturando en el equipo..."
	case RetakeCompleted:
		return fmt.Sprintf("Actualizada en %ds", elapsed)
	case RetakeTimedOut:
		return fmt.Sprintf("Tiempo de espera agotado (%ds)", elapsed)
	case RetakeFailed:
		return fmt.Sprintf("Error: %s (%ds)", st.Error, elapsed)
	}
	return ""
}

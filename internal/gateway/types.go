package gateway

// Cliente is one entry of the client selector.
type Cliente struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// CapturaItem is one row of the paged capture listing. CapturaID is nil when
// the centro has no capture record for the requested date. Online/LastSeen are
// the backend's embedded snapshot at listing time; the dedicated status feed
// supersedes them.
type CapturaItem struct {
	CapturaID       *int64  `json:"id"`
	ClienteID       int64   `json:"cliente_id"`
	CentroID        int64   `json:"centro_id"`
	Nombre          string  `json:"nombre"`
	UUIDEquipo      string  `json:"uuid_equipo"`
	Estado          string  `json:"estado"`
	FechaReporte    string  `json:"fecha_reporte"`
	Observacion     string  `json:"observacion"`
	Grabacion       string  `json:"grabacion"`
	UltimaImagenURL string  `json:"ultima_imagen_url"`
	UltimaVersionID *int64  `json:"ultima_version_id"`
	Online          bool    `json:"online"`
	LastSeen        *string `json:"last_seen"`
}

// CapturaPage is one page of the capture listing.
type CapturaPage struct {
	Items      []CapturaItem `json:"items"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// CapturaEstado is the lightweight version marker used by retake
// confirmation polling.
type CapturaEstado struct {
	UltimaVersionID *int64  `json:"ultima_version_id"`
	TomadaEn        *string `json:"tomada_en"`
}

// RetomarResult carries the capture id targeted by a recapture order. For a
// centro-level retake this may be a freshly created capture.
type RetomarResult struct {
	OK           bool   `json:"ok"`
	OrdenID      int64  `json:"orden_id"`
	CapturaID    int64  `json:"captura_id"`
	FechaReporte string `json:"fecha_reporte"`
}

// CentroStatus is one entry of the online/offline status feed.
type CentroStatus struct {
	CentroID   int64   `json:"id"`
	Nombre     string  `json:"nombre"`
	UUIDEquipo string  `json:"uuid_equipo"`
	LastSeen   *string `json:"last_seen"`
	Online     bool    `json:"online"`
}

// StatusFeed is the status feed response.
type StatusFeed struct {
	ServerNow string         `json:"server_now"`
	Items     []CentroStatus `json:"items"`
}

// NetioState is a relay snapshot. Outputs is keyed "1".."4"; a missing or
// null outlet reads as false.
type NetioState struct {
	UUIDEquipo string           `json:"uuid_equipo"`
	Online     bool             `json:"online"`
	Stale      bool             `json:"stale"`
	Outputs    map[string]*bool `json:"outputs"`
}

// Output reports the boolean state of one outlet (1..4).
func (s *NetioState) Output(outlet int) bool {
	if s == nil || s.Outputs == nil {
		return false
	}
	v := s.Outputs[outletKey(outlet)]
	return v != nil && *v
}

func outletKey(outlet int) string {
	switch outlet {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	case 4:
		return "4"
	}
	return ""
}

// Centro is a managed center record.
type Centro struct {
	ID          int64  `json:"id"`
	ClienteID   int64  `json:"cliente_id"`
	Nombre      string `json:"nombre"`
	Observacion string `json:"observacion"`
	Grabacion   string `json:"grabacion"`
	Estado      string `json:"estado"`
	UUIDEquipo  string `json:"uuid_equipo"`
}

// User is a dashboard user record.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// CapturaUpdate is the patch payload for capture metadata.
type CapturaUpdate struct {
	FechaReporte *string `json:"fecha_reporte,omitempty"`
	Estado       *string `json:"estado,omitempty"`
	Observacion  *string `json:"observacion,omitempty"`
	Grabacion    *string `json:"grabacion,omitempty"`
}

// CentroCreate is the payload for creating a centro. UUIDEquipo is optional;
// the backend slugs the name when it is empty.
type CentroCreate struct {
	ClienteID   int64  `json:"cliente_id"`
	Nombre      string `json:"nombre"`
	Observacion string `json:"observacion,omitempty"`
	Grabacion   string `json:"grabacion,omitempty"`
	UUIDEquipo  string `json:"uuid_equipo,omitempty"`
}

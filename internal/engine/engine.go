package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"centros-monitor/config"
	"centros-monitor/internal/gateway"
	"centros-monitor/internal/prefetch"
)

// Source is the slice of the remote data gateway the engine depends on.
type Source interface {
	ListCapturas(ctx context.Context, clienteID int64, fecha string, page, pageSize int) (*gateway.CapturaPage, error)
	CentrosStatus(ctx context.Context, clienteID int64, thresholdSec int) (*gateway.StatusFeed, error)
	CapturaEstado(ctx context.Context, capturaID int64) (*gateway.CapturaEstado, error)
	Retomar(ctx context.Context, capturaID int64, fecha string) (*gateway.RetomarResult, error)
	RetomarPorCentro(ctx context.Context, centroID int64, fecha string) (*gateway.RetomarResult, error)
}

// Warmer hands out prefetched pages for a client selection, or nil when the
// cache has nothing fresh.
type Warmer interface {
	Consume(clienteID int64) *prefetch.Entry
}

// StatusEntry is the live view of one centro from the status feed.
type StatusEntry struct {
	Online   bool
	LastSeen *string
}

// StatusMap indexes live status by centro id.
type StatusMap map[int64]StatusEntry

// PageWindow describes the loaded slice of the capture listing.
type PageWindow struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Transition is an observed online/offline flip for one centro.
type Transition struct {
	ClienteID  int64
	CentroID   int64
	Nombre     string
	UUIDEquipo string
	Online     bool
	LastSeen   *string
	ObservedAt time.Time
}

// TransitionSink receives online/offline transitions detected by the engine.
type TransitionSink func(Transition)

// Snapshot is the engine state handed to the presentation layer. Rows carry
// the status-feed overlay already applied.
type Snapshot struct {
	ClienteID int64                 `json:"cliente_id"`
	Fecha     string                `json:"fecha"`
	Rows      []gateway.CapturaItem `json:"rows"`
	Loading   bool                  `json:"loading"`
	LastError string                `json:"last_error,omitempty"`
	Window    PageWindow            `json:"window"`
	Retakes   map[int64]RetakeState `json:"retakes,omitempty"`
}

// Engine owns the authoritative row view for the active (cliente, fecha,
// page, pageSize) selection. Two poll streams feed it: the paged capture
// listing and the lightweight status feed; results are merged by centro id,
// never by arrival order. All mutation happens under mu.
type Engine struct {
	cfg  *config.EngineConfig
	src  Source
	warm Warmer
	sink TransitionSink

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	clienteID   int64
	fecha       string
	window      PageWindow
	rows        []gateway.CapturaItem
	statusMap   StatusMap
	loading     bool
	lastErr     string
	gen         uint64 // bumped on every selection change
	fetchSeq    uint64 // bumped on every capture fetch
	fetchCancel context.CancelFunc
	retakes     map[int64]*RetakeState
	lastOnline  map[int64]bool

	wake chan struct{}
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithWarmer wires the prefetch cache into selection changes.
func WithWarmer(w Warmer) Option {
	return func(e *Engine) { e.warm = w }
}

// WithTransitionSink registers a callback for online/offline transitions.
// The callback runs outside the engine lock.
func WithTransitionSink(s TransitionSink) Option {
	return func(e *Engine) { e.sink = s }
}

// New creates a reconciliation engine. Close must be called to release its
// background work.
func New(cfg *config.EngineConfig, src Source, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		src:        src,
		ctx:        ctx,
		cancel:     cancel,
		window:     PageWindow{Page: 1, PageSize: cfg.DefaultPageSize, TotalPages: 1},
		statusMap:  make(StatusMap),
		retakes:    make(map[int64]*RetakeState),
		lastOnline: make(map[int64]bool),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close cancels all in-flight fetches, confirmation polls and timers.
func (e *Engine) Close() {
	e.cancel()
}

// Run drives the two poll streams until ctx or the engine is closed. A wake
// signal forces an immediate silent refresh of both streams.
func (e *Engine) Run(ctx context.Context) {
	captures := time.NewTicker(e.cfg.CaptureInterval)
	defer captures.Stop()
	status := time.NewTicker(e.cfg.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ctx.Done():
			return
		case <-captures.C:
			e.LoadCapturas(true)
		case <-status.C:
			e.RefreshStatus()
		case <-e.wake:
			e.LoadCapturas(true)
			e.RefreshStatus()
		}
	}
}

// Wake requests an immediate silent refresh, collapsing repeat requests into
// one pending signal. Used when the UI regains visibility and after a remote
// agent accepts a command.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SetActiveSelection switches the active (cliente, fecha) key. Any fetch
// belonging to the previous key is cancelled so a late response can never
// overwrite the new selection. Rows are seeded from the prefetch cache when
// it holds a fresh entry, otherwise cleared while the first load runs.
func (e *Engine) SetActiveSelection(clienteID int64, fecha string) {
	e.mu.Lock()
	if clienteID == e.clienteID && fecha == e.fecha {
		e.mu.Unlock()
		return
	}
	e.abortFetchLocked()
	e.gen++
	e.clienteID = clienteID
	e.fecha = fecha
	e.window.Page = 1
	e.retakes = make(map[int64]*RetakeState)
	e.statusMap = make(StatusMap)
	e.lastErr = ""

	seeded := false
	if e.warm != nil && clienteID != 0 {
		if entry := e.warm.Consume(clienteID); entry != nil {
			e.applyPageLocked(entry.Page)
			seeded = true
		}
	}
	if !seeded {
		e.rows = nil
		e.window.Total = 0
		e.window.TotalPages = 1
	}
	e.loading = clienteID != 0
	e.mu.Unlock()

	if clienteID != 0 {
		go e.LoadCapturas(false)
		go e.RefreshStatus()
	}
}

// SetFecha changes the report date, keeping the client.
func (e *Engine) SetFecha(fecha string) {
	e.mu.Lock()
	cid := e.clienteID
	e.mu.Unlock()
	e.SetActiveSelection(cid, fecha)
}

// SetPage moves the page window, clamped to [1, totalPages].
func (e *Engine) SetPage(page int) {
	e.mu.Lock()
	if page < 1 {
		page = 1
	}
	if page > e.window.TotalPages {
		page = e.window.TotalPages
	}
	changed := page != e.window.Page
	e.window.Page = page
	e.mu.Unlock()
	if changed {
		go e.LoadCapturas(false)
	}
}

// SetPageSize changes the page size and resets the window to page 1.
func (e *Engine) SetPageSize(pageSize int) {
	if pageSize < 1 {
		return
	}
	e.mu.Lock()
	changed := pageSize != e.window.PageSize
	e.window.PageSize = pageSize
	e.window.Page = 1
	e.mu.Unlock()
	if changed {
		go e.LoadCapturas(false)
	}
}

// ForceRefresh reloads the current page with the loading flag raised.
func (e *Engine) ForceRefresh() {
	go e.LoadCapturas(false)
	go e.RefreshStatus()
}

// abortFetchLocked cancels the in-flight capture fetch, if any.
func (e *Engine) abortFetchLocked() {
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}
}

// LoadCapturas fetches one page of capture rows for the active selection.
// Issuing a new fetch cancels the previous one, so at most one capture fetch
// is live at a time and only the most recent may mutate state. silent
// suppresses the loading flag for background polls.
func (e *Engine) LoadCapturas(silent bool) {
	e.mu.Lock()
	if e.clienteID == 0 {
		e.mu.Unlock()
		return
	}
	e.abortFetchLocked()
	fctx, cancel := context.WithCancel(e.ctx)
	e.fetchCancel = cancel
	e.fetchSeq++
	seq := e.fetchSeq
	gen := e.gen
	cid, fecha := e.clienteID, e.fecha
	page, pageSize := e.window.Page, e.window.PageSize
	if !silent {
		e.loading = true
	}
	e.mu.Unlock()

	data, err := e.src.ListCapturas(fctx, cid, fecha, page, pageSize)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.fetchSeq != seq {
		// Superseded by a newer selection or fetch; drop without mutating.
		return
	}
	e.fetchCancel = nil
	if !silent {
		e.loading = false
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("capturas: %v", err)
		e.rows = nil
		e.statusMap = make(StatusMap)
		e.window.Total = 0
		e.window.TotalPages = 1
		e.window.Page = 1
		e.lastErr = err.Error()
		return
	}
	e.lastErr = ""
	e.applyPageLocked(data)
}

// applyPageLocked installs a fetched page: rows, the embedded status first
// paint, and the clamped page window.
func (e *Engine) applyPageLocked(data *gateway.CapturaPage) {
	if data == nil {
		return
	}
	e.rows = data.Items
	for _, it := range data.Items {
		e.statusMap[it.CentroID] = StatusEntry{Online: it.Online, LastSeen: it.LastSeen}
	}
	e.window.Total = data.Total
	tp := data.TotalPages
	if tp < 1 {
		tp = 1
	}
	e.window.TotalPages = tp
	if e.window.Page > tp {
		e.window.Page = tp
	}
	if e.window.Page < 1 {
		e.window.Page = 1
	}
}

// RefreshStatus polls the dedicated status feed and overlays it by centro id.
// A feed failure leaves the previous status in place; the next tick retries.
func (e *Engine) RefreshStatus() {
	e.mu.Lock()
	cid := e.clienteID
	gen := e.gen
	e.mu.Unlock()
	if cid == 0 {
		return
	}

	feed, err := e.src.CentrosStatus(e.ctx, cid, e.cfg.StatusThresholdSeconds)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("status: %v", err)
		return
	}

	now := time.Now().UTC()
	var transitions []Transition

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	for _, it := range feed.Items {
		e.statusMap[it.CentroID] = StatusEntry{Online: it.Online, LastSeen: it.LastSeen}
		prev, seen := e.lastOnline[it.CentroID]
		if seen && prev != it.Online {
			transitions = append(transitions, Transition{
				ClienteID:  cid,
				CentroID:   it.CentroID,
				Nombre:     it.Nombre,
				UUIDEquipo: it.UUIDEquipo,
				Online:     it.Online,
				LastSeen:   it.LastSeen,
				ObservedAt: now,
			})
		}
		e.lastOnline[it.CentroID] = it.Online
	}
	sink := e.sink
	e.mu.Unlock()

	if sink != nil {
		for _, tr := range transitions {
			tr := tr
			sink(tr)
		}
	}
}

// Snapshot returns the merged view for the presentation layer. The returned
// rows are copies; callers may not mutate engine state through them.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		ClienteID: e.clienteID,
		Fecha:     e.fecha,
		Rows:      MergeStatus(e.rows, e.statusMap),
		Loading:   e.loading,
		LastError: e.lastErr,
		Window:    e.window,
	}
	if len(e.retakes) > 0 {
		snap.Retakes = make(map[int64]RetakeState, len(e.retakes))
		for id, st := range e.retakes {
			snap.Retakes[id] = *st
		}
	}
	return snap
}

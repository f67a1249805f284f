package netio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"centros-monitor/config"
	"centros-monitor/internal/gateway"
)

// Source is the gateway slice the outlet controller depends on.
type Source interface {
	NetioState(ctx context.Context, uuidEquipo string) (*gateway.NetioState, error)
	NetioOutlet(ctx context.Context, uuidEquipo string, outlet int, action string) error
}

// Tone classifies a transient per-row message.
type Tone string

const (
	ToneProgress Tone = "progress"
	ToneSuccess  Tone = "success"
	ToneError    Tone = "error"
	ToneInfo     Tone = "info"
)

// RowState is the visible outlet state for one centro. Outlets is keyed 1..4.
// Known is false until the relay has answered at least once. Busy holds the
// in-flight command label ("" when idle).
type RowState struct {
	UUIDEquipo string       `json:"uuid_equipo"`
	Known      bool         `json:"known"`
	Online     bool         `json:"online"`
	Stale      bool         `json:"stale"`
	Outlets    map[int]bool `json:"outlets"`
	Busy       string       `json:"busy,omitempty"`
	Message    string       `json:"message,omitempty"`
	Tone       Tone         `json:"tone,omitempty"`
}

type rowState struct {
	RowState
	messageUntil time.Time
}

// ErrCommandBusy rejects a second command while one is in flight for a row.
var ErrCommandBusy = errors.New("netio command already in progress for this centro")

// ErrRelayUnavailable rejects commands while the relay is offline or stale.
var ErrRelayUnavailable = errors.New("netio relay is offline or stale")

// ErrUntracked rejects commands for centros outside the tracked set.
var ErrUntracked = errors.New("centro is not tracked by the outlet controller")

// Controller is the per-row outlet state machine: a passive snapshot poll per
// tracked centro, suppressed while a command for that row awaits
// confirmation. Commands are independent across rows, one at a time per row.
type Controller struct {
	cfg *config.NetioConfig
	src Source

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	rows map[int64]*rowState
}

// New creates an outlet controller. Close releases its background work.
func New(cfg *config.NetioConfig, src Source) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:    cfg,
		src:    src,
		ctx:    ctx,
		cancel: cancel,
		rows:   make(map[int64]*rowState),
	}
}

// Close cancels polling and any confirmation loops.
func (c *Controller) Close() { c.cancel() }

// Track replaces the set of monitored centros with the given
// centroID -> uuid_equipo mapping. State for rows with an in-flight command
// is kept even when they drop out of the mapping, so a confirmation loop is
// never orphaned mid-command.
func (c *Controller) Track(rows map[int64]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, st := range c.rows {
		if _, keep := rows[id]; !keep && st.Busy == "" {
			delete(c.rows, id)
		}
	}
	for id, uuid := range rows {
		if uuid == "" {
			continue
		}
		if st, ok := c.rows[id]; ok {
			st.UUIDEquipo = uuid
			continue
		}
		c.rows[id] = &rowState{RowState: RowState{UUIDEquipo: uuid, Outlets: make(map[int]bool)}}
	}
}

// Run polls tracked rows until ctx or the controller is closed.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

// pollOnce refreshes every tracked row that has no command in flight.
func (c *Controller) pollOnce() {
	c.mu.Lock()
	targets := make(map[int64]string, len(c.rows))
	for id, st := range c.rows {
		if st.Busy == "" {
			targets[id] = st.UUIDEquipo
		}
	}
	c.mu.Unlock()

	for id, uuid := range targets {
		snap, err := c.fetchState(uuid)
		if err != nil {
			continue
		}
		c.mu.Lock()
		if st, ok := c.rows[id]; ok && st.Busy == "" {
			applySnapshot(st, snap)
		}
		c.mu.Unlock()
	}
}

// fetchState normalizes a relay read: a 404 (relay never reported) is an
// offline+stale snapshot, not an error.
func (c *Controller) fetchState(uuid string) (*gateway.NetioState, error) {
	snap, err := c.src.NetioState(c.ctx, uuid)
	if err != nil {
		if gateway.IsNotFound(err) {
			return &gateway.NetioState{UUIDEquipo: uuid, Online: false, Stale: true}, nil
		}
		return nil, err
	}
	return snap, nil
}

func applySnapshot(st *rowState, snap *gateway.NetioState) {
	st.Known = true
	st.Online = snap.Online
	st.Stale = snap.Stale
	for outlet := 1; outlet <= 4; outlet++ {
		st.Outlets[outlet] = snap.Output(outlet)
	}
}

// Toggle switches one outlet on or off and confirms the change by polling
// the snapshot endpoint until the outlet reports the desired state or the
// toggle timeout elapses.
func (c *Controller) Toggle(centroID int64, outlet int, desired bool) error {
	action := "off"
	if desired {
		action = "on"
	}
	label := fmt.Sprintf("%d", outlet)
	verb := "apagada"
	progress := fmt.Sprintf("Apagando boca %d...", outlet)
	if desired {
		verb = "encendida"
		progress = fmt.Sprintf("Encendiendo boca %d...", outlet)
	}
	return c.command(centroID, outlet, action, desired, c.cfg.ToggleTimeout, label, progress,
		fmt.Sprintf("Boca %d %s.", outlet, verb))
}

// Restart power-cycles one outlet; a cycle is expected to end in the "on"
// state, within the longer cycle timeout.
func (c *Controller) Restart(centroID int64, outlet int) error {
	return c.command(centroID, outlet, "cycle", true, c.cfg.CycleTimeout,
		fmt.Sprintf("%d-cycle", outlet),
		fmt.Sprintf("Reiniciando boca %d...", outlet),
		fmt.Sprintf("Reinicio de boca %d completado.", outlet))
}

func (c *Controller) command(centroID int64, outlet int, action string, expected bool, timeout time.Duration, label, progressMsg, successMsg string) error {
	if outlet < 1 || outlet > 4 {
		return fmt.Errorf("outlet must be 1..4, got %d", outlet)
	}

	c.mu.Lock()
	st, ok := c.rows[centroID]
	if !ok {
		c.mu.Unlock()
		return ErrUntracked
	}
	if st.Busy != "" {
		c.mu.Unlock()
		return ErrCommandBusy
	}
	if !st.Known || !st.Online || st.Stale {
		c.mu.Unlock()
		return ErrRelayUnavailable
	}
	st.Busy = label
	setMessage(st, progressMsg, ToneProgress, 0)
	uuid := st.UUIDEquipo
	c.mu.Unlock()

	go c.runCommand(centroID, uuid, outlet, action, expected, timeout, successMsg)
	return nil
}

// runCommand sends the command and drives the confirmation poll. On timeout
// the displayed outlet state is left as last known; the command may still
// have landed, so the message says pending, not failed.
func (c *Controller) runCommand(centroID int64, uuid string, outlet int, action string, expected bool, timeout time.Duration, successMsg string) {
	finish := func(msg string, tone Tone, ttl time.Duration, confirmed *gateway.NetioState) {
		c.mu.Lock()
		defer c.mu.Unlock()
		st, ok := c.rows[centroID]
		if !ok {
			return
		}
		st.Busy = ""
		if confirmed != nil {
			applySnapshot(st, confirmed)
		}
		setMessage(st, msg, tone, ttl)
	}

	if err := c.src.NetioOutlet(c.ctx, uuid, outlet, action); err != nil {
		if c.ctx.Err() != nil {
			return
		}
		log.Printf("netio: command %s outlet %d for %s: %v", action, outlet, uuid, err)
		finish(fmt.Sprintf("No se pudo ejecutar la accion sobre la boca %d.", outlet), ToneError, 5*time.Second, nil)
		return
	}

	confirmed := c.waitForOutlet(uuid, outlet, expected, timeout)
	if confirmed != nil {
		finish(successMsg, ToneSuccess, 2500*time.Millisecond, confirmed)
		return
	}
	if c.ctx.Err() != nil {
		return
	}
	finish(fmt.Sprintf("Comando enviado a la boca %d. Confirmacion pendiente.", outlet), ToneInfo, 6*time.Second, nil)
}

// waitForOutlet polls the snapshot endpoint until the outlet reports the
// expected state or the timeout elapses. Returns nil when unconfirmed.
func (c *Controller) waitForOutlet(uuid string, outlet int, expected bool, timeout time.Duration) *gateway.NetioState {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.cfg.ConfirmInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-c.ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := c.fetchState(uuid)
			if err != nil {
				continue
			}
			if snap.Output(outlet) == expected {
				return snap
			}
		}
	}
	return nil
}

func setMessage(st *rowState, msg string, tone Tone, ttl time.Duration) {
	st.Message = msg
	st.Tone = tone
	if ttl > 0 {
		st.messageUntil = time.Now().Add(ttl)
	} else {
		st.messageUntil = time.Time{} // sticks until replaced
	}
}

// Snapshot returns a copy of every tracked row, with expired transient
// messages already cleared.
func (c *Controller) Snapshot() map[int64]RowState {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int64]RowState, len(c.rows))
	for id, st := range c.rows {
		row := st.RowState
		row.Outlets = make(map[int]bool, len(st.Outlets))
		for k, v := range st.Outlets {
			row.Outlets[k] = v
		}
		if !st.messageUntil.IsZero() && now.After(st.messageUntil) {
			row.Message = ""
			row.Tone = ""
		}
		out[id] = row
	}
	return out
}

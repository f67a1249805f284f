package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centros-monitor/internal/gateway"
)

func int64Ptr(v int64) *int64 { return &v }

func waitPhase(t *testing.T, e *Engine, centroID int64, phase RetakePhase) RetakeState {
	t.Helper()
	var st RetakeState
	require.Eventually(t, func() bool {
		snap := e.Snapshot()
		var ok bool
		st, ok = snap.Retakes[centroID]
		return ok && st.Phase == phase
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestRetake_UnknownCentro(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5}))

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	assert.ErrorIs(t, e.Retake(99), ErrUnknownCentro)
}

func TestRetake_BusyRejectsSecondCommand(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: int64Ptr(7)}))
	// Marker never changes, so the retake stays in capturing.
	src.mu.Lock()
	src.estados[7] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(100)}
	src.mu.Unlock()

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	assert.ErrorIs(t, e.Retake(5), ErrRetakeBusy, "one state machine per row; no duplicate request")
}

func TestRetake_CompletesOnVersionChange(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: int64Ptr(7)}))
	src.mu.Lock()
	src.estados[7] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(100)}
	src.retomar = func(capturaID int64) (*gateway.RetomarResult, error) {
		return &gateway.RetomarResult{OK: true, CapturaID: capturaID}, nil
	}
	src.mu.Unlock()

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	waitPhase(t, e, 5, RetakeCapturing)

	// A fresh capture lands: the version marker moves.
	src.mu.Lock()
	src.estados[7] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(101)}
	src.mu.Unlock()

	st := waitPhase(t, e, 5, RetakeCompleted)
	assert.False(t, st.Active())
}

func TestRetake_CentroLevelAdoptsCreatedCaptura(t *testing.T) {
	src := newFakeSource()
	// Row without a capture record for the date.
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: nil}))
	src.mu.Lock()
	src.centro = func(centroID int64) (*gateway.RetomarResult, error) {
		return &gateway.RetomarResult{OK: true, CapturaID: 99}, nil
	}
	// The created capture reports a version; with no before-marker, any
	// non-nil version confirms completion.
	src.estados[99] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(1)}
	src.mu.Unlock()

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	st := waitPhase(t, e, 5, RetakeCompleted)
	require.NotNil(t, st.CapturaID)
	assert.Equal(t, int64(99), *st.CapturaID)
}

func TestRetake_RequestFailure(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: int64Ptr(7)}))
	src.mu.Lock()
	src.retomar = func(capturaID int64) (*gateway.RetomarResult, error) {
		return nil, fmt.Errorf("agente no disponible")
	}
	src.mu.Unlock()

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	st := waitPhase(t, e, 5, RetakeFailed)
	assert.Contains(t, st.Error, "agente no disponible")

	// A terminal phase releases the row for another attempt.
	assert.NoError(t, e.Retake(5))
}

func TestRetake_Timeout(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: int64Ptr(7)}))
	src.mu.Lock()
	src.estados[7] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(100)}
	src.mu.Unlock()

	cfg := testEngineConfig()
	cfg.RetakeTimeout = 50 * time.Millisecond

	e := New(cfg, src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	waitPhase(t, e, 5, RetakeTimedOut)
}

func TestRetake_SelectionChangeStopsConfirmationPolling(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: int64Ptr(7)}))
	src.setPage(2, pageOf(gateway.CapturaItem{CentroID: 8}))
	// Marker never changes, so the confirmation poll would run until the
	// retake timeout if nothing stopped it.
	src.mu.Lock()
	src.estados[7] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(100)}
	src.mu.Unlock()

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	waitPhase(t, e, 5, RetakeCapturing)

	e.SetActiveSelection(2, "2026-08-31")
	waitRows(t, e, 1)

	// Let any tick already in flight drain, then the polling must be over.
	time.Sleep(50 * time.Millisecond)
	calls := src.estadoCalls()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, calls, src.estadoCalls(), "confirmation polling must stop when the selection changes")

	// The new selection carries no retake state for the old row.
	_, ok := e.Snapshot().Retakes[5]
	assert.False(t, ok)
}

func TestRetake_AcceptedCommandMarksRowOnline(t *testing.T) {
	src := newFakeSource()
	src.setPage(1, pageOf(gateway.CapturaItem{CentroID: 5, CapturaID: int64Ptr(7), Online: false}))
	src.mu.Lock()
	src.estados[7] = &gateway.CapturaEstado{UltimaVersionID: int64Ptr(100)}
	src.mu.Unlock()

	e := New(testEngineConfig(), src)
	defer e.Close()
	e.SetActiveSelection(1, "2026-08-31")
	waitRows(t, e, 1)

	require.NoError(t, e.Retake(5))
	waitPhase(t, e, 5, RetakeCapturing)

	// The agent accepted the order, so the row reads online even before the
	// next status poll.
	snap := e.Snapshot()
	assert.True(t, snap.Rows[0].Online)
}

func TestRetakeStatusText(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "Solicitando captura...", RetakeStatusText(RetakeState{Phase: RetakeRequesting, Since: now}))
	assert.Equal(t, "Capturando en el equipo...", RetakeStatusText(RetakeState{Phase: RetakeCapturing, Since: now}))
	assert.Contains(t, RetakeStatusText(RetakeState{Phase: RetakeTimedOut, Since: now}), "Tiempo de espera agotado")
	assert.Contains(t, RetakeStatusText(RetakeState{Phase: RetakeFailed, Since: now, Error: "x"}), "Error: x")
	assert.Equal(t, "", RetakeStatusText(RetakeState{Phase: RetakeIdle}))
}

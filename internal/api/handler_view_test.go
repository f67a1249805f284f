package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centros-monitor/config"
	"centros-monitor/internal/engine"
	"centros-monitor/internal/gateway"
	"centros-monitor/internal/netio"
)

// stubSource serves one fixed page and an empty status feed.
type stubSource struct {
	page *gateway.CapturaPage
}

func (s *stubSource) ListCapturas(ctx context.Context, clienteID int64, fecha string, page, pageSize int) (*gateway.CapturaPage, error) {
	return s.page, nil
}

func (s *stubSource) CentrosStatus(ctx context.Context, clienteID int64, thresholdSec int) (*gateway.StatusFeed, error) {
	return &gateway.StatusFeed{}, nil
}

func (s *stubSource) CapturaEstado(ctx context.Context, capturaID int64) (*gateway.CapturaEstado, error) {
	return &gateway.CapturaEstado{}, nil
}

func (s *stubSource) Retomar(ctx context.Context, capturaID int64, fecha string) (*gateway.RetomarResult, error) {
	return &gateway.RetomarResult{OK: true, CapturaID: capturaID}, nil
}

func (s *stubSource) RetomarPorCentro(ctx context.Context, centroID int64, fecha string) (*gateway.RetomarResult, error) {
	return &gateway.RetomarResult{OK: true, CapturaID: 99}, nil
}

// stubRelay answers every state read with an online relay.
type stubRelay struct{}

func (stubRelay) NetioState(ctx context.Context, uuid string) (*gateway.NetioState, error) {
	return &gateway.NetioState{UUIDEquipo: uuid, Online: true}, nil
}

func (stubRelay) NetioOutlet(ctx context.Context, uuid string, outlet int, action string) error {
	return nil
}

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		StatusThresholdSeconds: 20,
		DefaultPageSize:        15,
		CaptureInterval:        10 * time.Second,
		StatusInterval:         3 * time.Second,
		RetakePoll:             10 * time.Millisecond,
		RetakeTimeout:          time.Second,
	}
}

func setupViewRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	src := &stubSource{page: &gateway.CapturaPage{
		Items: []gateway.CapturaItem{
			{CentroID: 5, Nombre: "Centro Norte", UUIDEquipo: "centro_norte", Online: true},
		},
		Total:      1,
		TotalPages: 1,
	}}
	eng := engine.New(testEngineConfig(), src)
	t.Cleanup(eng.Close)

	relay := netio.New(&config.NetioConfig{
		Poll:            time.Second,
		ConfirmInterval: 10 * time.Millisecond,
		ToggleTimeout:   100 * time.Millisecond,
		CycleTimeout:    100 * time.Millisecond,
	}, stubRelay{})
	t.Cleanup(relay.Close)

	cfg := &config.ServerConfig{RateLimitPerSec: 1000, CacheTTLSeconds: 1}
	router := NewRouter(cfg, eng, relay, nil, nil, &webpush.Options{VAPIDPublicKey: "pub"})
	return router, eng
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestViewFlow(t *testing.T) {
	router, eng := setupViewRouter(t)

	w := doJSON(router, http.MethodPost, "/api/view/selection", gin.H{"cliente_id": 3, "fecha": "2026-08-31"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		snap := eng.Snapshot()
		return len(snap.Rows) == 1 && !snap.Loading
	}, 2*time.Second, 5*time.Millisecond)

	w = doJSON(router, http.MethodGet, "/api/view", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ClienteID int64                 `json:"cliente_id"`
		Rows      []gateway.CapturaItem `json:"rows"`
		Window    engine.PageWindow     `json:"window"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.ClienteID)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Centro Norte", resp.Rows[0].Nombre)
	assert.Equal(t, 1, resp.Window.Page)
}

func TestPostSelection_BadRequest(t *testing.T) {
	router, _ := setupViewRouter(t)
	w := doJSON(router, http.MethodPost, "/api/view/selection", gin.H{"fecha": "2026-08-31"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostPageSize_Validation(t *testing.T) {
	router, _ := setupViewRouter(t)
	w := doJSON(router, http.MethodPost, "/api/view/page_size", gin.H{"page_size": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostRetake_UnknownCentro(t *testing.T) {
	router, eng := setupViewRouter(t)
	eng.SetActiveSelection(3, "2026-08-31")
	require.Eventually(t, func() bool {
		return len(eng.Snapshot().Rows) == 1
	}, 2*time.Second, 5*time.Millisecond)

	w := doJSON(router, http.MethodPost, "/api/centros/99/retomar", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost, "/api/centros/abc/retomar", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostRetake_Accepted(t *testing.T) {
	router, eng := setupViewRouter(t)
	eng.SetActiveSelection(3, "2026-08-31")
	require.Eventually(t, func() bool {
		return len(eng.Snapshot().Rows) == 1
	}, 2*time.Second, 5*time.Millisecond)

	w := doJSON(router, http.MethodPost, "/api/centros/5/retomar", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestNetioEndpoints(t *testing.T) {
	router, _ := setupViewRouter(t)

	// Untracked centro.
	w := doJSON(router, http.MethodPost, "/api/netio/5/outlets/1/toggle", gin.H{"on": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed outlet.
	w = doJSON(router, http.MethodPost, "/api/netio/5/outlets/x/toggle", gin.H{"on": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing body.
	w = doJSON(router, http.MethodPost, "/api/netio/5/outlets/1/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/netio", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	router, _ := setupViewRouter(t)
	w := doJSON(router, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"pub"}`, w.Body.String())
}

func TestPutSubscription_BadRequest(t *testing.T) {
	router, _ := setupViewRouter(t)
	w := doJSON(router, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": "https://push.example/a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centros-monitor/config"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(&config.BackendConfig{
		BaseURL:        srv.URL,
		TimeoutSeconds: 5,
		Headers:        map[string]string{"X-Api-Key": "secret"},
	})
	return c, srv
}

func TestClient_ListCapturas(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/capturas", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("cliente_id"))
		assert.Equal(t, "2026-08-31", r.URL.Query().Get("fecha"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "15", r.URL.Query().Get("page_size"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [
				{"id": 42, "centro_id": 5, "nombre": "Centro Norte", "online": true, "last_seen": "2026-08-31T10:00:00Z", "ultima_version_id": 7},
				{"id": null, "centro_id": 6, "nombre": "Centro Sur", "online": false, "last_seen": null}
			],
			"total": 22,
			"total_pages": 2
		}`))
	}))
	defer srv.Close()

	page, err := c.ListCapturas(context.Background(), 3, "2026-08-31", 2, 15)
	require.NoError(t, err)
	assert.Equal(t, 22, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)

	require.NotNil(t, page.Items[0].CapturaID)
	assert.Equal(t, int64(42), *page.Items[0].CapturaID)
	assert.Nil(t, page.Items[1].CapturaID, "a centro without a capture record carries a null id")
	assert.True(t, page.Items[0].Online)
	assert.Nil(t, page.Items[1].LastSeen)
}

func TestClient_CentrosStatus(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/centros/status", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("threshold_sec"))
		w.Write([]byte(`{
			"server_now": "2026-08-31T10:00:00Z",
			"items": [{"id": 5, "nombre": "Centro Norte", "uuid_equipo": "centro_norte", "last_seen": null, "online": false}]
		}`))
	}))
	defer srv.Close()

	feed, err := c.CentrosStatus(context.Background(), 3, 20)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, int64(5), feed.Items[0].CentroID)
	assert.False(t, feed.Items[0].Online)
}

func TestClient_NetioState(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "centro_norte", r.URL.Query().Get("uuid_equipo"))
		w.Write([]byte(`{"online": true, "stale": false, "outputs": {"1": true, "2": false, "3": null}}`))
	}))
	defer srv.Close()

	state, err := c.NetioState(context.Background(), "centro_norte")
	require.NoError(t, err)
	assert.True(t, state.Online)
	assert.True(t, state.Output(1))
	assert.False(t, state.Output(2))
	assert.False(t, state.Output(3), "null outlet reads as off")
	assert.False(t, state.Output(4), "missing outlet reads as off")
}

func TestClient_ErrorDetailExtraction(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{
			name:     "wrapped detail",
			status:   http.StatusConflict,
			body:     `{"detail": "captura en curso"}`,
			expected: "backend returned 409: captura en curso",
		},
		{
			name:     "bare string",
			status:   http.StatusBadRequest,
			body:     `"fecha invalida"`,
			expected: "backend returned 400: fecha invalida",
		},
		{
			name:     "opaque body",
			status:   http.StatusInternalServerError,
			body:     `boom`,
			expected: "backend returned 500: boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := c.CapturaEstado(context.Background(), 42)
			require.Error(t, err)
			assert.Equal(t, tc.expected, err.Error())

			apiErr, ok := err.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tc.status, apiErr.StatusCode)
		})
	}
}

func TestClient_IsNotFound(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "sin estado"}`))
	}))
	defer srv.Close()

	_, err := c.NetioState(context.Background(), "centro_norte")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(assert.AnError))
}

func TestClient_Retomar(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/capturas/42/retomar":
			w.Write([]byte(`{"ok": true, "orden_id": 900, "captura_id": 42, "fecha_reporte": "2026-08-31"}`))
		case "/api/capturas/centro/5/retomar":
			w.Write([]byte(`{"ok": true, "orden_id": 901, "captura_id": 99, "fecha_reporte": "2026-08-31"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	res, err := c.Retomar(context.Background(), 42, "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.CapturaID)

	res, err = c.RetomarPorCentro(context.Background(), 5, "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, int64(99), res.CapturaID, "a centro-level retake returns the freshly created capture id")
}

func TestClient_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListClientes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

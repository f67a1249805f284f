package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"centros-monitor/config"
)

// APIError is a normalized non-2xx response from the upstream backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client is the remote data gateway: a thin request/response mapping over the
// upstream REST backend with error normalization and no further logic.
type Client struct {
	base    string
	headers map[string]string
	client  *http.Client
}

// New creates a gateway client from the backend configuration.
func New(cfg *config.BackendConfig) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Gateway will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Client{
		base:    cfg.BaseURL,
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: extractDetail(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// extractDetail pulls the backend's error message out of a failure body. The
// backend answers either a bare string or {"detail": "..."}.
func extractDetail(raw []byte) string {
	var wrapped struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Detail != "" {
		return wrapped.Detail
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ListClientes fetches the client selector entries.
func (c *Client) ListClientes(ctx context.Context) ([]Cliente, error) {
	var out []Cliente
	if err := c.do(ctx, http.MethodGet, "/api/clientes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCapturas fetches one page of capture rows for a client and date.
func (c *Client) ListCapturas(ctx context.Context, clienteID int64, fecha string, page, pageSize int) (*CapturaPage, error) {
	q := url.Values{}
	q.Set("cliente_id", strconv.FormatInt(clienteID, 10))
	if fecha != "" {
		q.Set("fecha", fecha)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out CapturaPage
	if err := c.do(ctx, http.MethodGet, "/api/capturas", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CapturaEstado fetches the version marker for one capture.
func (c *Client) CapturaEstado(ctx context.Context, capturaID int64) (*CapturaEstado, error) {
	var out CapturaEstado
	path := fmt.Sprintf("/api/capturas/%d/estado", capturaID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Retomar triggers a recapture for an existing capture record.
func (c *Client) Retomar(ctx context.Context, capturaID int64, fecha string) (*RetomarResult, error) {
	q := url.Values{}
	if fecha != "" {
		q.Set("fecha", fecha)
	}
	var out RetomarResult
	path := fmt.Sprintf("/api/capturas/%d/retomar", capturaID)
	if err := c.do(ctx, http.MethodPost, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetomarPorCentro triggers a recapture for a centro with no capture record
// yet. The backend creates the capture and returns its id.
func (c *Client) RetomarPorCentro(ctx context.Context, centroID int64, fecha string) (*RetomarResult, error) {
	q := url.Values{}
	if fecha != "" {
		q.Set("fecha", fecha)
	}
	var out RetomarResult
	path := fmt.Sprintf("/api/capturas/centro/%d/retomar", centroID)
	if err := c.do(ctx, http.MethodPost, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CentrosStatus fetches the lightweight online/offline feed for a client.
func (c *Client) CentrosStatus(ctx context.Context, clienteID int64, thresholdSec int) (*StatusFeed, error) {
	q := url.Values{}
	q.Set("cliente_id", strconv.FormatInt(clienteID, 10))
	q.Set("threshold_sec", strconv.Itoa(thresholdSec))

	var out StatusFeed
	if err := c.do(ctx, http.MethodGet, "/api/centros/status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NetioState fetches the relay snapshot for one equipment uuid. A 404 means
// the relay has never reported; callers treat that as offline+stale.
func (c *Client) NetioState(ctx context.Context, uuidEquipo string) (*NetioState, error) {
	q := url.Values{}
	q.Set("uuid_equipo", uuidEquipo)

	var out NetioState
	if err := c.do(ctx, http.MethodGet, "/api/netio/state", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NetioOutlet enqueues an outlet command (on, off or cycle) for the relay.
func (c *Client) NetioOutlet(ctx context.Context, uuidEquipo string, outlet int, action string) error {
	q := url.Values{}
	q.Set("uuid_equipo", uuidEquipo)
	path := fmt.Sprintf("/api/netio/outlets/%d/%s", outlet, action)
	return c.do(ctx, http.MethodPost, path, q, nil, nil)
}

// PatchCaptura updates capture metadata.
func (c *Client) PatchCaptura(ctx context.Context, capturaID int64, update *CapturaUpdate) error {
	path := fmt.Sprintf("/api/capturas/%d", capturaID)
	return c.do(ctx, http.MethodPatch, path, nil, update, nil)
}

// CreateCentro registers a new centro.
func (c *Client) CreateCentro(ctx context.Context, payload *CentroCreate) (*Centro, error) {
	var out Centro
	if err := c.do(ctx, http.MethodPost, "/api/centros", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCentro removes a centro and all of its captures.
func (c *Client) DeleteCentro(ctx context.Context, centroID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/centros/%d", centroID), nil, nil, nil)
}

// CreateCliente registers a new client account.
func (c *Client) CreateCliente(ctx context.Context, nombre string) (*Cliente, error) {
	var out Cliente
	body := map[string]string{"nombre": nombre}
	if err := c.do(ctx, http.MethodPost, "/api/clientes", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCliente removes a client account and its centros.
func (c *Client) DeleteCliente(ctx context.Context, clienteID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/clientes/%d", clienteID), nil, nil, nil)
}

// ListUsers fetches the dashboard user records.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login validates credentials against the backend and returns the user.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out User
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/users/login", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportePDF downloads the rendered PDF report for a client and date.
func (c *Client) ReportePDF(ctx context.Context, clienteID int64, fecha string) ([]byte, error) {
	q := url.Values{}
	q.Set("cliente_id", strconv.FormatInt(clienteID, 10))
	q.Set("fecha", fecha)

	u := c.base + "/api/reportes/reporte/pdf?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: extractDetail(raw)}
	}
	return raw, nil
}

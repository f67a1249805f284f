package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"centros-monitor/internal/engine"
	"centros-monitor/internal/gateway"
	"centros-monitor/internal/netio"
	"centros-monitor/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	eng     *engine.Engine
	relay   *netio.Controller
	gw      *gateway.Client
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, relay *netio.Controller, gw *gateway.Client, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		eng:     eng,
		relay:   relay,
		gw:      gw,
		store:   s,
		webpush: webpushOptions,
	}
}

// upstreamStatus maps a gateway error to the HTTP status the passthrough
// handlers should answer with.
func upstreamStatus(err error) int {
	if apiErr, ok := err.(*gateway.APIError); ok {
		return apiErr.StatusCode
	}
	return 502
}

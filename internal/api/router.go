package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"centros-monitor/config"
	"centros-monitor/internal/engine"
	"centros-monitor/internal/gateway"
	"centros-monitor/internal/mw"
	"centros-monitor/internal/netio"
	"centros-monitor/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, eng *engine.Engine, relay *netio.Controller, gw *gateway.Client, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()
	handler := NewHandler(eng, relay, gw, s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)

	// Passthrough caching only; the live view endpoints always hit the engine.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/view", handler.GetView)
		api.POST("/view/selection", handler.PostSelection)
		api.POST("/view/page", handler.PostPage)
		api.POST("/view/page_size", handler.PostPageSize)
		api.POST("/view/refresh", handler.PostRefresh)

		api.POST("/centros/:centro_id/retomar", handler.PostRetake)

		api.GET("/netio", handler.GetNetio)
		api.POST("/netio/:centro_id/outlets/:outlet/toggle", handler.PostNetioToggle)
		api.POST("/netio/:centro_id/outlets/:outlet/restart", handler.PostNetioRestart)

		api.GET("/clientes", caching, handler.GetClientes)
		api.POST("/clientes", handler.PostCliente)
		api.DELETE("/clientes/:cliente_id", handler.DeleteCliente)
		api.GET("/clientes/:cliente_id/reporte.pdf", handler.GetReportePDF)

		api.POST("/centros", handler.PostCentro)
		api.DELETE("/centros/:centro_id", handler.DeleteCentro)
		api.PATCH("/capturas/:captura_id", handler.PatchCaptura)

		api.GET("/users", caching, handler.GetUsers)
		api.POST("/login", handler.PostLogin)

		api.GET("/eventos", handler.GetEventos)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

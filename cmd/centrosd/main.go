package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"centros-monitor/config"
	"centros-monitor/internal/api"
	"centros-monitor/internal/db"
	"centros-monitor/internal/engine"
	"centros-monitor/internal/gateway"
	"centros-monitor/internal/model"
	"centros-monitor/internal/netio"
	"centros-monitor/internal/notify"
	"centros-monitor/internal/prefetch"
	"centros-monitor/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "centros-monitor ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	pool := notify.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
	if webpushOptions != nil {
		pool.Start(ctx)
		logger.Printf("notification worker pool started (size %d)", cfg.WorkerPool.Size)
	}

	gw := gateway.New(&cfg.Backend)
	warm := prefetch.New(&cfg.Prefetch, gw, cfg.Engine.DefaultPageSize)

	sink := func(tr engine.Transition) {
		ev := model.StatusEvent{
			ClienteID:  tr.ClienteID,
			CentroID:   tr.CentroID,
			Nombre:     tr.Nombre,
			UUIDEquipo: tr.UUIDEquipo,
			Online:     tr.Online,
			LastSeen:   tr.LastSeen,
			ObservedAt: tr.ObservedAt,
		}
		if err := appStore.RecordTransition(ctx, &ev); err != nil {
			logger.Printf("failed to record transition: %v", err)
		}
		if webpushOptions != nil {
			pool.Dispatch(tr)
		}
	}

	eng := engine.New(&cfg.Engine, gw,
		engine.WithWarmer(warm),
		engine.WithTransitionSink(sink),
	)
	defer eng.Close()
	go eng.Run(ctx)

	relay := netio.New(&cfg.Netio, gw)
	defer relay.Close()
	go relay.Run(ctx)

	// Keep the relay controller's tracked set aligned with the loaded page.
	go trackLoop(ctx, eng, relay, cfg.Engine.StatusInterval)

	// Warm likely-next selections once the client list is known.
	go func() {
		clientes, err := gw.ListClientes(ctx)
		if err != nil {
			logger.Printf("initial cliente list failed: %v", err)
			return
		}
		warm.Sweep(ctx, clientes, time.Now().Format("2006-01-02"))
	}()

	if size := store.IntPreference(ctx, appStore, "page_size", 0); size > 0 {
		eng.SetPageSize(size)
	}

	router := api.NewRouter(&cfg.Server, eng, relay, gw, appStore, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	logger.Println("Server gracefully stopped")
}

// trackLoop feeds the relay controller the centroID -> uuid_equipo mapping of
// the rows currently on screen.
func trackLoop(ctx context.Context, eng *engine.Engine, relay *netio.Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := eng.Snapshot()
			tracked := make(map[int64]string, len(snap.Rows))
			for _, row := range snap.Rows {
				tracked[row.CentroID] = row.UUIDEquipo
			}
			relay.Track(tracked)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/screener"
	"github.com/dgnsrekt/options-screener/internal/server"
	statesync "github.com/dgnsrekt/options-screener/internal/sync"
	"github.com/dgnsrekt/options-screener/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("dataDir", cfg.DataDir),
		zap.String("dataDate", cfg.DataDate),
		zap.String("presetDir", cfg.PresetDir),
		zap.Int("screenWorkers", cfg.ScreenWorkers),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := screener.NewEngine(cfg.ScreenWorkers, screener.NewMetrics(prometheus.DefaultRegisterer), logger)

	hub := ws.NewHub(server.IsPresetGroup(cfg.PresetDir), logger)
	go hub.Run(ctx)

	reload := server.NewReloadManager(data.NewFileLoader(cfg.DataDir, logger), engine, hub, cfg, logger)

	// Load data
	start := time.Now()
	if _, err := reload.Reload(ctx, cfg.DataDate); err != nil {
		logger.Error("failed to load data", zap.Error(err))
		return 1
	}
	logger.Info("data loaded", zap.Duration("duration", time.Since(start)))

	srv := server.NewServer(reload, engine, hub, cfg, logger)

	events := statesync.NewBroadcaster("options-screener", cfg.EventsHeartbeat, srv.State, logger)
	srv.AttachEvents(events)
	go events.Run(ctx)

	router := server.NewRouter(srv, prometheus.DefaultGatherer, logger)

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// SIGHUP reloads the newest date; SIGINT and SIGTERM stop the server
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for s := range sig {
		if s != syscall.SIGHUP {
			break
		}
		if _, err := reload.Reload(ctx, "latest"); err != nil {
			logger.Error("reload on SIGHUP failed", zap.Error(err))
		}
	}

	logger.Info("shutting down server...")

	// Cancel context to stop WebSocket components
	cancel()

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}

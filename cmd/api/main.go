// Package main is the entry point for the LawnCast server.
//
// It loads configuration, opens the local store, wires the weather adapters
// behind the reconciler and ledger, mounts the HTTP API with the core
// chassis, and starts the background refresh loop. Graceful shutdown is
// handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lawncast/internal/api/handlers"
	"lawncast/internal/config"
	"lawncast/internal/core"
	"lawncast/internal/fetch"
	"lawncast/internal/geocode"
	"lawncast/internal/ledger"
	"lawncast/internal/observed"
	"lawncast/internal/proxy"
	"lawncast/internal/scheduler"
	"lawncast/internal/sources/ghcnd"
	"lawncast/internal/sources/nws"
	"lawncast/internal/sources/stageiv"
	"lawncast/internal/store"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("lawncast starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	db, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	// HTTP clients, one breaker per upstream.
	forecastClient := fetch.New("nws", cfg.Forecast.Timeout,
		fetch.WithUserAgent(cfg.Forecast.UserAgent))
	rasterClient := fetch.New("stageiv", cfg.Raster.Timeout)
	stationClient := fetch.New("ghcnd", cfg.Stations.Timeout)
	geocodeClient := fetch.New("nominatim", cfg.Geocode.Timeout,
		fetch.WithUserAgent(cfg.Geocode.UserAgent))

	// One civil-time zone decides "today" everywhere: the forecast adapter's
	// day buckets, the reconciler's observed window, and the ledger's
	// week bounds must agree on the date boundary.
	loc := time.Local

	// Observation chain: rasters first, stations as fallback.
	rasterAdapter := stageiv.New(rasterClient, cfg.Raster.BaseURL, cfg.Raster.Concurrency, logger)
	stationAdapter := ghcnd.New(stationClient, cfg.Stations.BaseURL, cfg.Stations.Token, cfg.Stations.RadiusKm, logger)
	reconciler := observed.New(db, logger,
		[]observed.PrecipitationSource{rasterAdapter, stationAdapter},
		observed.WithLocation(loc))

	forecastAdapter := nws.New(forecastClient, cfg.Forecast.BaseURL, loc, logger)
	weekLedger := ledger.New(db, forecastAdapter, reconciler, logger, ledger.WithLocation(loc))

	geocoder := geocode.New(geocodeClient, cfg.Geocode.BaseURL, cfg.Geocode.MinInterval, logger)
	rasterProxy := proxy.New(cfg.Raster.UpstreamURL, cfg.Raster.Timeout, logger)
	api := handlers.New(db, weekLedger, geocoder, logger, handlers.WithLocation(loc))

	srv, err := core.NewServer(logger, []core.HealthProbe{storeProbe{db}})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.MountRoutes(api.Mount, rasterProxy)

	// Bind the listener before the refresh loop starts: the raster adapter
	// loops back through this server's own proxy mount, so a refresh tick
	// fired before the socket exists would see connection refused and
	// poison the observed cache with a degraded all-zero entry.
	addr := ":" + cfg.Server.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Background refresh loop.
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	refresher := scheduler.NewRefresher(db, weekLedger, cfg.Refresh.Interval, logger)
	go refresher.Run(refreshCtx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case <-ctx.Done():
		logger.Info("parent context canceled")
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	stopRefresh()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

// storeProbe reports store health for GET /health.
type storeProbe struct {
	db *store.Store
}

func (p storeProbe) Name() string { return "store" }

func (p storeProbe) Check(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// newLogger creates a structured JSON logger at the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvmapper/internal/config"
	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/logging"
	"github.com/JonMunkholm/csvmapper/internal/metrics"
	"github.com/JonMunkholm/csvmapper/internal/metrics/datadog"
	"github.com/JonMunkholm/csvmapper/internal/metrics/prom"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/session"
	"github.com/JonMunkholm/csvmapper/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	metricsHandler, err := setupMetrics(cfg.Metrics)
	if err != nil {
		return err
	}

	sc, err := loadSchema(cfg.Schema.File)
	if err != nil {
		return err
	}
	slog.Info("schema loaded", "name", sc.Name, "columns", sc.Len())

	parseOpts, err := parseOptions(cfg.Parse)
	if err != nil {
		return err
	}

	svc := session.NewService(sc, session.Config{
		Parse:               parseOpts,
		MaxConcurrentParses: cfg.Session.MaxConcurrentParses,
		MaxWait:             cfg.Session.MaxWait,
		TTL:                 cfg.Session.TTL,
		ProgressThrottle:    cfg.Session.ProgressThrottle,
	})
	server := web.NewServer(svc, cfg, metricsHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return svc.Run(gctx, cfg.Session.TTL/2)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := svc.Limiter().Active(); active > 0 {
			slog.Info("waiting for parses to complete", "active", active)
			if err := svc.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("parses did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := metrics.Flush(); err != nil {
			slog.Warn("metrics flush failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// setupMetrics installs the configured metrics backend. The returned
// handler serves /metrics and is nil unless the backend is Prometheus.
func setupMetrics(cfg config.MetricsConfig) (http.Handler, error) {
	switch strings.ToLower(cfg.Backend) {
	case "prometheus":
		b, err := prom.NewBackend(cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("prometheus backend: %w", err)
		}
		metrics.SetBackend(b)
		slog.Info("metrics backend", "backend", "prometheus")
		return b.Handler(), nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:      cfg.DatadogAddr,
			Namespace: cfg.Namespace,
		})
		if err != nil {
			return nil, fmt.Errorf("datadog backend: %w", err)
		}
		metrics.SetBackend(b)
		slog.Info("metrics backend", "backend", "datadog", "addr", cfg.DatadogAddr)
	}
	return nil, nil
}

// loadSchema reads a YAML schema, or returns the built-in contacts schema
// when path is empty.
func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return schema.Contacts(), nil
	}
	sc, err := schema.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return sc, nil
}

func parseOptions(cfg config.ParseConfig) (csvparse.Options, error) {
	delim, err := csvparse.ParseDelimiter(cfg.DefaultDelimiter)
	if err != nil {
		return csvparse.Options{}, err
	}
	opts := csvparse.Options{
		Delimiter:           delim,
		ChunkSize:           cfg.ChunkSize,
		ProgressInterval:    cfg.ProgressInterval,
		CancelCheckInterval: cfg.CancelCheckInterval,
		MaxInputSize:        cfg.MaxInputSize,
		Encoding:            cfg.DefaultEncoding,
	}
	return opts, opts.Validate()
}

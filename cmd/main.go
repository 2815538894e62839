package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/aonescu/shopkeeper/cmd/server"
	"github.com/aonescu/shopkeeper/internal/audit"
	"github.com/aonescu/shopkeeper/internal/capacity"
	"github.com/aonescu/shopkeeper/internal/config"
	"github.com/aonescu/shopkeeper/internal/db"
	k8s "github.com/aonescu/shopkeeper/internal/kubernetes"
	"github.com/aonescu/shopkeeper/internal/lifecycle"
	"github.com/aonescu/shopkeeper/internal/logger"
	"github.com/aonescu/shopkeeper/internal/ratelimit"
	"github.com/aonescu/shopkeeper/internal/state"
	"github.com/aonescu/shopkeeper/internal/stats"
	"github.com/aonescu/shopkeeper/internal/types"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "shopkeeper: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	log, err := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Store lifecycle orchestrator starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.Int("max_stores", cfg.MaxStores),
		zap.String("chart", cfg.Chart))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit storage: file is the record of truth, memory serves recent history
	fileSink, err := audit.OpenFile(cfg.AuditFile)
	if err != nil {
		return err
	}
	tail := state.NewMemoryStore(state.DefaultCapacity)
	sinks := []audit.Sink{fileSink, tail}

	var (
		history audit.Reader = tail
		dbPing  server.Pinger
	)
	if cfg.DatabaseURL != "" {
		pgStore, err := db.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Warn("Failed to connect to PostgreSQL, serving audit history from memory", zap.Error(err))
		} else {
			log.Info("Connected to PostgreSQL")
			sinks = append(sinks, pgStore)
			history = pgStore
			dbPing = pgStore
		}
	}

	auditLog := audit.NewLogger(log, sinks...)
	defer func() {
		if err := auditLog.Close(); err != nil {
			log.Warn("Failed to close audit log", zap.Error(err))
		}
	}()

	clientset, err := k8s.NewClientset(cfg.Kubeconfig, log)
	if err != nil {
		return err
	}
	gateway := k8s.NewGateway(clientset, k8s.NewExecRunner(cfg.HelmBin), log, k8s.Options{
		ReadinessTimeout: cfg.ReadinessTimeout,
		QueryTimeout:     k8s.DefaultQueryTimeout,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	controller := lifecycle.NewController(gateway, auditLog, capacity.NewGuard(cfg.MaxStores), stats.New(reg), log, lifecycle.Options{
		Chart:              cfg.Chart,
		Values:             cfg.Values,
		InstallTimeout:     cfg.InstallTimeout,
		UninstallTimeout:   cfg.UninstallTimeout,
		StoreDomain:        cfg.StoreDomain,
		ReapFailedInstalls: cfg.ReapFailedInstalls,
	})

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow, log)
	limiter.Start(cfg.RateWindow)
	defer limiter.Stop()

	api := server.NewAPIServer(controller, limiter, auditLog, log, server.Options{
		History:    history,
		DB:         dbPing,
		Gatherer:   reg,
		TrustProxy: cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	auditLog.Record(ctx, types.ActionOrchestratorStart, map[string]string{
		"addr":       cfg.HTTPAddr,
		"max_stores": strconv.Itoa(cfg.MaxStores),
		"rate_limit": strconv.Itoa(cfg.RateLimit),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	printAPIEndpoints(log, cfg.HTTPAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Let started installs and teardowns finish before exiting.
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), max(cfg.InstallTimeout, cfg.UninstallTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}

func printAPIEndpoints(log *zap.Logger, addr string) {
	baseURL := "http://localhost" + addr
	endpoints := []string{
		"GET    " + baseURL + "/health",
		"GET    " + baseURL + "/ready",
		"GET    " + baseURL + "/metrics",
		"GET    " + baseURL + "/api/stores",
		"POST   " + baseURL + "/api/stores",
		"DELETE " + baseURL + "/api/stores/{id}",
		"GET    " + baseURL + "/api/stores/summary",
		"GET    " + baseURL + "/api/metrics",
		"GET    " + baseURL + "/api/audit?action=STORE_CREATE_FAILED&limit=50",
	}

	for _, endpoint := range endpoints {
		log.Info("API endpoint", zap.String("route", endpoint))
	}
}

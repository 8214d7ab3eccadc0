package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/warehouse-mcp/internal/api"
	"github.com/duckmesh/warehouse-mcp/internal/audit"
	auditpostgres "github.com/duckmesh/warehouse-mcp/internal/audit/postgres"
	"github.com/duckmesh/warehouse-mcp/internal/auth"
	"github.com/duckmesh/warehouse-mcp/internal/config"
	"github.com/duckmesh/warehouse-mcp/internal/mcp"
	"github.com/duckmesh/warehouse-mcp/internal/observability"
	s3store "github.com/duckmesh/warehouse-mcp/internal/storage/s3"
	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
	bigquerygateway "github.com/duckmesh/warehouse-mcp/internal/warehouse/bigquery"
	duckdbgateway "github.com/duckmesh/warehouse-mcp/internal/warehouse/duckdb"
)

type components struct {
	gateway     warehouse.Gateway
	recorder    audit.Recorder
	auditReader audit.Reader
	auditHealth api.HealthChecker
	objectStore api.BucketChecker
	closers     []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func buildComponents(ctx context.Context, cfg config.Config) (*components, error) {
	c := &components{recorder: audit.Nop{}}

	switch cfg.Warehouse.Backend {
	case config.BackendDuckDB:
		store, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		gateway, err := duckdbgateway.New(store, cfg.Warehouse.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize duckdb gateway: %w", err)
		}
		c.gateway = gateway
		c.objectStore = store
	default:
		gateway, err := bigquerygateway.New(ctx, bigquerygateway.Config{
			ProjectID:       cfg.Warehouse.ProjectID,
			Location:        cfg.Warehouse.Location,
			CredentialsFile: cfg.Warehouse.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize bigquery gateway: %w", err)
		}
		c.gateway = gateway
	}
	c.closers = append(c.closers, c.gateway.Close)

	if cfg.Audit.Enabled {
		db, err := auditpostgres.Open(ctx, cfg.Audit, cfg.Service.Name)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		store := auditpostgres.NewStore(db)
		c.recorder = store
		c.auditReader = store
		c.auditHealth = store
		c.closers = append(c.closers, db.Close)
	}
	return c, nil
}

// serve answers MCP requests on stdio until the client closes its end or a
// signal arrives. With an HTTP address configured it serves /v1/rpc as well
// and keeps running after stdio closes.
func serve(ctx context.Context, cfg config.Config, env environment) error {
	logger := observability.NewLogger(cfg, env.stderr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	router := mcp.NewRouter(cfg, c.gateway, c.recorder, logger)
	logger.Info("warehouse-mcp started",
		slog.Bool("enumerate_resources", cfg.Router.EnumerateResources),
		slog.Bool("audit", cfg.Audit.Enabled),
	)

	stdioDone := make(chan error, 1)
	go func() {
		stdioDone <- router.Serve(ctx, env.stdin, env.stdout)
	}()

	if cfg.HTTP.Address == "" {
		select {
		case err := <-stdioDone:
			if err != nil {
				return fmt.Errorf("stdio transport: %w", err)
			}
			logger.Info("stdio closed")
			return nil
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		}
	}

	go func() {
		if err := <-stdioDone; err != nil {
			logger.Warn("stdio transport stopped", slog.Any("error", err))
		}
	}()
	handler, err := newHTTPHandler(cfg, c, router, logger)
	if err != nil {
		return err
	}
	return serveHTTP(ctx, cfg, handler, logger)
}

func newHTTPHandler(cfg config.Config, c *components, router *mcp.Router, logger *slog.Logger) (http.Handler, error) {
	deps := api.Dependencies{
		Logger: logger,
		RPC:    router,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouseConfig(cfg),
			api.CheckObjectStore(c.objectStore),
			api.CheckAuditStore(c.auditHealth),
		),
		DependencyTimeout: 2 * time.Second,
		AuditReader:       c.auditReader,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return nil, fmt.Errorf("parse static auth keys: %w", err)
		}
		if validator.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}
	return api.NewHandler(cfg, deps), nil
}

func serveHTTP(ctx context.Context, cfg config.Config, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting http transport", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err, ok := <-listenErr:
		if ok {
			return fmt.Errorf("http transport: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("shutting down http transport")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

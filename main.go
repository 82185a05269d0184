package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-gateway/pkg/audit"
	"github.com/ekaya-inc/ekaya-gateway/pkg/catalog"
	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
	"github.com/ekaya-inc/ekaya-gateway/pkg/database"
	"github.com/ekaya-inc/ekaya-gateway/pkg/executor"
	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
	"github.com/ekaya-inc/ekaya-gateway/pkg/handlers"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp"
	"github.com/ekaya-inc/ekaya-gateway/pkg/middleware"
	"github.com/ekaya-inc/ekaya-gateway/pkg/policy"
	"github.com/ekaya-inc/ekaya-gateway/pkg/retry"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("ekaya-gateway stopped", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionURL())),
		zap.Int64("max_row_limit", cfg.Gateway.MaxRowLimit),
		zap.Duration("statement_timeout", cfg.Gateway.StatementTimeout),
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.Bool("mcp", cfg.MCP.Enabled))

	dbCfg := database.ConfigFrom(&cfg.Database)
	if cfg.Gateway.CancelGrace > 0 {
		dbCfg.DeadlineDelay = cfg.Gateway.CancelGrace
	}
	db, err := database.Connect(ctx, dbCfg, retry.DefaultConfig(), logger.Named("database"))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var loader catalog.Loader
	switch cfg.Catalog.Source {
	case config.CatalogSourceFile:
		loader = catalog.NewFileLoader(cfg.Catalog.FilePath)
	default:
		loader = catalog.NewPostgresLoader(db.Pool, cfg.Catalog.Schemas, cfg.Catalog.ExcludeTables, logger)
	}
	store := catalog.NewStore()
	refresher := catalog.NewRefresher(loader, store, logger)

	validator := policy.NewValidator(cfg.Gateway.MaxRowLimit, policy.WithAllowedFunctions(cfg.Gateway.AllowedFunctions...))
	exec := executor.New(db.Pool, executor.Config{
		StatementTimeout: cfg.Gateway.StatementTimeout,
		CancelGrace:      cfg.Gateway.CancelGrace,
	}, logger)
	auditor := audit.NewSecurityAuditor(logger)
	svc := gateway.NewService(sql.NewParser(), validator, store, exec, auditor,
		gateway.Config{AuditExecutions: cfg.Gateway.AuditExecutions}, logger)

	// With Redis, refresh requests fan out to every replica, this one
	// included, through the listener below.
	var refreshTrigger handlers.CatalogRefresher = refresher
	if redisClient != nil {
		refreshTrigger = catalog.NewRedisBroadcaster(redisClient, cfg.Redis.RefreshChannel)
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, refresher, db.Pool, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(svc, refreshTrigger, logger.Named("http")).RegisterRoutes(mux)
	if cfg.MCP.Enabled {
		mcpServer := mcp.NewGatewayServer(cfg.Version, svc, refresher, logger)
		var mcpHandler http.Handler = mcpServer.Handler()
		mcpHandler = middleware.MCPRequestLogger(logger.Named("mcp_http"))(mcpHandler)
		mcpHandler = middleware.RequestContext("mcp")(mcpHandler)
		mux.Handle("/mcp", mcpHandler)
	}

	var handler http.Handler = mux
	handler = middleware.RequestLogger(logger.Named("http"))(handler)
	handler = middleware.RequestContext("http")(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Queries may run for the full statement timeout plus grace.
		WriteTimeout: cfg.Gateway.StatementTimeout + cfg.Gateway.CancelGrace + 10*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting ekaya-gateway",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Until the first load succeeds, /health answers 503 and queries are
	// refused with catalog_not_loaded.
	g.Go(func() error { return refresher.LoadUntilReady(gctx, cfg.Catalog.RetryInterval) })

	if cfg.Catalog.Source == config.CatalogSourceFile && cfg.Catalog.WatchFile {
		watcher := catalog.NewFileWatcher(cfg.Catalog.FilePath, refresher, logger)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if redisClient != nil {
		listener := catalog.NewRedisListener(redisClient, cfg.Redis.RefreshChannel, refresher, logger)
		g.Go(func() error { return listener.Run(gctx) })
	}

	return g.Wait()
}

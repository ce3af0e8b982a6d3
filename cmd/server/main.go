package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"model-repository-service/internal/adapters/primary/http/handlers"
	"model-repository-service/internal/adapters/primary/http/middleware"
	"model-repository-service/internal/adapters/secondary/archive"
	"model-repository-service/internal/adapters/secondary/backends"
	"model-repository-service/internal/adapters/secondary/filesystem"
	"model-repository-service/internal/adapters/secondary/postgres"
	"model-repository-service/internal/adapters/secondary/sdfile"
	"model-repository-service/internal/config"
	ports "model-repository-service/internal/core/ports/output"
	"model-repository-service/internal/core/services"
	"model-repository-service/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	// Version catalog (Optional - based on config)
	var (
		pool    *pgxpool.Pool
		catalog ports.VersionCatalog
	)
	if cfg.Catalog.Enabled {
		pool, err = openPool(cfg.Database)
		if err != nil {
			log.Fatalf("open catalog database: %v", err)
		}
		defer pool.Close()

		if err := postgres.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalf("%v", err)
		}
		catalog = postgres.NewVersionCatalog(pool)
		log.Info("version catalog enabled")
	} else {
		log.Info("version catalog disabled")
	}

	// Metrics (Optional - based on config)
	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	// Secondary Adapters (Output Ports)
	store, err := filesystem.NewEndpointStore(cfg.Repository.Root)
	if err != nil {
		log.Fatalf("open repository: %v", err)
	}
	reader := sdfile.NewReader()
	workflow := sdfile.NewWorkflow()
	codec := archive.NewTarball()
	backendRegistry := backends.NewRegistry()

	// Core Services (Application Layer)
	endpointSvc := services.NewEndpointService(store, catalog, metrics)
	archiveSvc := services.NewArchiveService(store, codec, cfg.Repository.ExportDir, catalog, metrics)
	pipeline := services.NewFeaturePipeline(reader, workflow, cfg.Pipeline.TempDir, metrics)
	learnSvc := services.NewLearnService(store, backendRegistry, metrics)
	buildSvc := services.NewBuildService(store, reader, pipeline, learnSvc, cfg.Pipeline.Workers, catalog, metrics)

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(endpointSvc, archiveSvc, buildSvc)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), gin.Recovery())

	api := router.Group("/api/v1/model-repository")
	h.RegisterRoutes(api)

	router.GET("/healthz", func(c *gin.Context) {
		if _, err := os.Stat(cfg.Repository.Root); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		if pool != nil {
			if err := pool.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	log.WithFields(log.Fields{
		"root":     cfg.Repository.Root,
		"workers":  cfg.Pipeline.Workers,
		"backends": backendRegistry.Names(),
	}).Info("model repository ready")

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}

func openPool(db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(db.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(db.MaxOpenConns)
	poolCfg.MinConns = int32(db.MaxIdleConns)
	poolCfg.MaxConnLifetime = db.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	log.Info("database connection established")
	return pool, nil
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

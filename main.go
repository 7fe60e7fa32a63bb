package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/drilldocs/drilldocs/internal/config"
	"github.com/drilldocs/drilldocs/internal/document"
	"github.com/drilldocs/drilldocs/internal/document/handler"
	"github.com/drilldocs/drilldocs/internal/document/repository"
	"github.com/drilldocs/drilldocs/internal/document/service"
	"github.com/drilldocs/drilldocs/internal/kvstore"
	"github.com/drilldocs/drilldocs/internal/search"
	"github.com/drilldocs/drilldocs/internal/storage"
	"github.com/drilldocs/drilldocs/pkg/logger"
	"github.com/drilldocs/drilldocs/pkg/metrics"
	"github.com/drilldocs/drilldocs/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s redis=%v minio=%v meili=%v",
		cfg.Storage.Backend, cfg.Redis.Addr() != "", cfg.MinIO.Endpoint != "", cfg.Search.MeiliURL != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
	logger.Infof("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	backend, err := kvstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	tax := document.DefaultTaxonomy()
	if cfg.TaxonomyFile != "" {
		if tax, err = document.LoadTaxonomy(cfg.TaxonomyFile); err != nil {
			return err
		}
	}

	store := repository.New(backend.KV)
	defer store.Close()
	if cfg.Storage.Watch {
		w, err := backend.Watch(store.NotifyExternal)
		if err != nil {
			logger.Warnf("file watcher disabled: %v", err)
		} else if w != nil {
			defer w.Close()
		}
	}

	var opts []service.Option
	mirror := search.NewMirror(cfg.Search)
	if mirror != nil {
		defer mirror.Close()
		opts = append(opts, service.WithIndexer(mirror))
	}
	archive, err := storage.NewArchive(ctx, cfg.MinIO)
	if err != nil {
		logger.Warnf("export archive disabled: %v", err)
	} else if archive != nil {
		opts = append(opts, service.WithArchiver(archive))
	}
	svc := service.New(store, tax, opts...)

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	limiterRedis := backend.Redis
	if limiterRedis == nil && cfg.RateLimit.UseRedis && cfg.Redis.Addr() != "" {
		limiterRedis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := limiterRedis.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis for rate limiting (%s): %v", cfg.Redis.Addr(), err)
			_ = limiterRedis.Close()
			limiterRedis = nil
		} else {
			defer limiterRedis.Close()
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && limiterRedis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(limiterRedis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready when the store answers; the mirrors are reported but optional
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{}
		_, err := backend.KV.Keys(c.Request.Context(), repository.DraftKeyPrefix)
		deps["storage"] = err == nil
		deps["search"] = mirror.Healthy()
		deps["archive"] = archive != nil
		status, code := "ready", http.StatusOK
		if err != nil {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "backend": backend.Name, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	handler.RegisterDocumentRoutes(r, svc)
	handler.RegisterSwagger(r)

	// editor timings for clients hosting editing surfaces
	r.GET("/api/editor/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"changeDebounceMs":   cfg.Editor.ChangeDebounce.Milliseconds(),
			"focusWindowMs":      cfg.Editor.FocusWindow.Milliseconds(),
			"focusPollMs":        cfg.Editor.FocusPoll.Milliseconds(),
			"autosaveIntervalMs": cfg.Editor.AutosaveInterval.Milliseconds(),
			"importExtensions":   svc.Importer().Extensions(),
		})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", handler.UserHeader, middleware.ClientHeader, "Last-Event-ID"},
		ExposedHeaders: []string{"Content-Length", "Content-Disposition"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      corsHandler.Handler(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("starting document service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// end open event streams before draining connections
		store.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

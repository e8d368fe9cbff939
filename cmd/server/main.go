package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blinktext/internal/auth"
	"github.com/blinktext/internal/cache"
	"github.com/blinktext/internal/cleanup"
	"github.com/blinktext/internal/config"
	"github.com/blinktext/internal/logging"
	"github.com/blinktext/internal/middleware"
	"github.com/blinktext/internal/storage"
	"github.com/blinktext/internal/store"
	"github.com/blinktext/internal/text"
)

// server holds the dependencies shared by the HTTP handlers.
type server struct {
	cfg     *config.Config
	log     *logrus.Logger
	backend *store.Backend
	cache   cache.Cache
	auth    *auth.Service
	texts   *text.Service
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging)
	gin.SetMode(cfg.GetGINMode())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := store.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer backend.Close()
	logger.WithField("type", cfg.Database.Type).Info("Database ready")

	kv, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		logger.Fatalf("Failed to connect to cache: %v", err)
	}
	defer kv.Close()
	logger.WithField("type", cfg.Cache.Type).Info("Cache ready")

	textOpts := text.Options{
		MaxContentLength:  cfg.Texts.MaxContentLength,
		DefaultExpiration: cfg.Texts.DefaultExpiration,
		MinPasswordLength: cfg.Texts.MinPasswordLength,
		MaxExpiration:     cfg.Texts.MaxExpiration,
		BcryptCost:        cfg.Auth.BcryptCost,
		Logger:            logger,
	}
	if cfg.Storage.Type == "minio" {
		objects, err := storage.NewService(cfg.Storage.MinIO)
		if err != nil {
			logger.Fatalf("Failed to create storage service: %v", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Fatalf("Failed to prepare bucket: %v", err)
		}
		textOpts.Content = objects
		logger.WithField("bucket", cfg.Storage.MinIO.BucketName).Info("Object storage ready")
	}

	s := &server{
		cfg:     cfg,
		log:     logger,
		backend: backend,
		cache:   kv,
		auth: auth.NewService(backend.Users, auth.Options{
			Secret:      cfg.Auth.JWTSecret,
			TokenExpiry: cfg.Auth.TokenExpiry,
			BcryptCost:  cfg.Auth.BcryptCost,
			Revocations: kv,
			Logger:      logger,
		}),
		texts: text.NewService(backend.Texts, textOpts),
	}

	sweeper := cleanup.NewSweeper(s.texts, cleanup.Config{
		Interval:   cfg.Cleanup.Interval,
		Timeout:    cfg.Cleanup.Timeout,
		RunOnStart: cfg.Cleanup.RunOnStart,
	}, logger)
	go sweeper.Run(ctx)

	if m, ok := kv.(*cache.Memory); ok {
		go pruneCache(ctx, m, time.Minute)
	}

	srv := &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        s.router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("Starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func (s *server) router() *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.RecoveryMiddleware(s.log))
	router.Use(middleware.LoggerMiddleware(s.log))
	router.Use(middleware.CORSMiddleware(s.cfg.App.CORSOrigins))

	api := router.Group("/api")
	if s.cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(s.cache, s.cfg.RateLimit.Window, s.cfg.RateLimit.Max, s.log))
	}

	api.GET("/health", handleHealth(s.backend))

	// Auth routes
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", handleRegister(s.auth))
		authGroup.POST("/login", handleLogin(s.auth))
		authGroup.GET("/me", middleware.RequireAuth(s.auth), handleGetMe(s.auth))
		authGroup.POST("/logout", middleware.RequireAuth(s.auth), handleLogout(s.auth))
	}

	// Text routes
	textGroup := api.Group("/texts")
	textGroup.Use(middleware.NoStore())
	{
		textGroup.POST("", middleware.OptionalAuth(s.auth), handleCreateText(s.texts, s.cfg.App.PublicURL, s.log))
		textGroup.GET("/history", middleware.RequireAuth(s.auth), handleTextHistory(s.texts, s.log))
		textGroup.GET("/:accessToken", handleReadText(s.texts, s.log))
		textGroup.DELETE("/admin/clear-expired", middleware.RequireAuth(s.auth), handleClearExpired(s.texts, s.log))
		textGroup.DELETE("/:id", middleware.RequireAuth(s.auth), handleDeleteText(s.texts, s.log))
	}

	return router
}

func handleHealth(backend *store.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := backend.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	}
}

// pruneCache drops expired in-process counters so idle clients do not accumulate.
func pruneCache(ctx context.Context, m *cache.Memory, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune()
		}
	}
}

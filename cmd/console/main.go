package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/auth"
	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/config"
	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/handler"
	"github.com/mbonchek/patterning-web-v2/internal/logger"
	"github.com/mbonchek/patterning-web-v2/internal/messaging"
	"github.com/mbonchek/patterning-web-v2/internal/middleware"
	"github.com/mbonchek/patterning-web-v2/internal/storage"
	"github.com/mbonchek/patterning-web-v2/internal/web"
)

const (
	connectRetries = 5
	connectDelay   = 3 * time.Second
	shutdownWait   = 15 * time.Second
)

func main() {
	// стандартный log только до инициализации zap
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger.SetupZerolog(cfg.Logger)
	cfg.LogSummary(zapLogger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// --- Бэкенд генерации ---
	var backend client.Backend
	backend, err = client.NewBackendClient(cfg.BackendURL(), cfg.Backend.Timeout, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create backend client", zap.Error(err))
	}

	// --- Redis: кеш ответов и лимит попыток входа ---
	var (
		redisClient *redis.Client
		cache       generation.CacheInvalidator
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = storage.ConnectRedis(ctx, storage.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			MaxRetries: connectRetries,
			RetryDelay: connectDelay,
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		cached := client.NewCachedBackend(backend, storage.NewRedisCache(redisClient, cfg.Redis.KeyPrefix, zapLogger), cfg.Redis.CacheTTL, zapLogger)
		backend = cached
		cache = cached
	}

	// --- Postgres: архив пакетных запусков ---
	managerCfg := generation.ManagerConfig{
		Cache:       cache,
		WordTimeout: cfg.VoiceLab.WordTimeout,
		KeepRuns:    cfg.VoiceLab.KeepRuns,
	}
	var archive handler.RunArchive
	if cfg.Database.URL != "" {
		pool, err := storage.ConnectPostgres(ctx, storage.PostgresConfig{
			DSN:         cfg.Database.URL,
			MaxConns:    cfg.Database.MaxConns,
			IdleTimeout: cfg.Database.IdleTimeout,
			MaxRetries:  connectRetries,
			RetryDelay:  connectDelay,
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := storage.NewMigrator(pool, zapLogger).Up(ctx); err != nil {
			zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		runArchive := storage.NewPgRunArchive(pool, zapLogger)
		managerCfg.Archive = runArchive
		archive = runArchive
	}

	// --- RabbitMQ: события консоли ---
	var publisher messaging.EventPublisher = messaging.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		conn, err := messaging.Connect(cfg.RabbitMQ.URL, connectRetries, connectDelay, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()

		rabbit, err := messaging.NewRabbitMQPublisher(conn, cfg.RabbitMQ.Exchange)
		if err != nil {
			zapLogger.Fatal("Failed to create event publisher", zap.Error(err))
		}
		publisher = rabbit
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Error("Failed to close event publisher", zap.Error(err))
		}
	}()
	managerCfg.Publisher = publisher

	runs := generation.NewManager(backend, managerCfg, zapLogger)

	authenticator, err := auth.New(auth.Config{
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
		Secret:       cfg.Auth.SessionSecret,
		TTL:          cfg.Auth.SessionTTL,
		SecureCookie: cfg.IsProduction(),
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to configure admin auth", zap.Error(err))
	}

	renderer, err := web.NewRenderer(zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load templates", zap.Error(err))
	}

	h := handler.New(handler.Deps{
		Backend:      backend,
		Runs:         runs,
		Archive:      archive,
		Auth:         authenticator,
		Publisher:    publisher,
		Tokens:       handler.NewTiktokenCounter(cfg.TokenizerEncoding, zapLogger),
		ShareHost:    cfg.PublicShareHost,
		LoginLimiter: handler.NewLoginLimiter(redisClient, cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow, zapLogger),
		Logger:       zapLogger,
	})

	// --- Настройка Gin ---
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ZapLogger(zapLogger))
	router.Use(middleware.Recovery(zapLogger))
	router.Use(handler.CustomErrorMiddleware(zapLogger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	router.HTMLRender = renderer
	router.StaticFS("/static", http.FS(web.Static()))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Console listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down console...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// незавершенные пакеты отменяются и архивируются до закрытия пула
	if err := runs.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Voice Lab runs did not stop in time", zap.Error(err))
	}
	zapLogger.Info("Console stopped")
}

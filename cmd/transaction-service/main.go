package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/cache"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/client"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/config"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/controller"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/engine"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/limits"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/messaging"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/middleware"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/monitoring"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/repository"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/resilience"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/logger"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/token"
)

// serviceTokens mints short-lived bearer tokens for background work that has
// no caller attached, such as sweeper replays.
type serviceTokens struct {
	secret  string
	subject string
	ttl     time.Duration
}

func (s *serviceTokens) ServiceToken() (string, error) {
	return token.Sign(s.secret, s.subject, []string{"service"}, s.ttl)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Filename:   cfg.Logging.Filename,
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	auditLog := logger.AuditLogger(logger.Config{
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		AuditFile:  cfg.Logging.AuditFile,
	})

	logrus.Info("Starting transaction service")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout)
	mongoClient, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetMaxPoolSize(cfg.Mongo.MaxPoolSize).
		SetRegistry(repository.Registry()))
	cancel()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())

	db := mongoClient.Database(cfg.Mongo.Database)
	txRepo := repository.NewTransactionRepository(db)
	limitRepo := repository.NewLimitRepository(db)

	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := txRepo.EnsureIndexes(indexCtx); err != nil {
		logrus.WithError(err).Fatal("Failed to create transaction indexes")
	}
	if err := limitRepo.EnsureIndexes(indexCtx); err != nil {
		logrus.WithError(err).Fatal("Failed to create limit indexes")
	}
	indexCancel()

	limitCache, err := cache.NewLimitCache(&cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		Database:     cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		TTL:          cfg.Limits.CacheTTL,
		KeyPrefix:    "txsvc",
	}, limitRepo)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to redis")
	}
	defer limitCache.Close()

	var publisher engine.EventPublisher = messaging.NoopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rabbit, err := messaging.NewPublisher(cfg.RabbitMQ.URL)
		if err != nil {
			logrus.WithError(err).Warn("Event publishing disabled, RabbitMQ unavailable")
		} else {
			publisher = rabbit
			defer rabbit.Close()
		}
	}

	metrics := monitoring.NewPrometheusMetrics()

	executor := resilience.NewExecutor("account-service", resilience.Config{
		Deadline:             cfg.Resilience.Deadline,
		MaxAttempts:          cfg.Resilience.MaxAttempts,
		RetryWait:            cfg.Resilience.RetryWait,
		BreakerWindow:        uint32(cfg.Resilience.BreakerWindow),
		BreakerFailureRate:   cfg.Resilience.BreakerFailureRate,
		BreakerOpenDwell:     cfg.Resilience.BreakerOpenDwell,
		BreakerHalfOpenProbe: uint32(cfg.Resilience.BreakerHalfOpenProbe),
	})

	accounts := client.NewResilientAccountClient(
		client.NewAccountClient(&client.Config{
			BaseURL: cfg.AccountService.BaseURL,
			Timeout: cfg.AccountService.Timeout,
		}),
		executor,
	)

	enforcer := limits.NewEnforcer(limitCache, txRepo)
	tokens := &serviceTokens{
		secret:  cfg.Auth.JWTSecret,
		subject: cfg.Auth.ServiceSubject,
		ttl:     cfg.Auth.ServiceTokenTTL,
	}

	orchestrator := engine.NewOrchestrator(txRepo, accounts, enforcer, publisher, metrics, tokens, auditLog)

	sweeper := engine.NewSweeper(txRepo, orchestrator, engine.SweeperConfig{
		Schedule:  cfg.Sweeper.Schedule,
		StaleAge:  cfg.Sweeper.StaleAge,
		BatchSize: cfg.Sweeper.BatchSize,
	})
	if err := sweeper.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start recovery sweeper")
	}
	defer sweeper.Stop()

	router := setupRouter(cfg, orchestrator, limitRepo, limitCache, metrics, executor)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down transaction service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Forced shutdown")
	}
}

func setupRouter(
	cfg *config.Config,
	orchestrator engine.Orchestrator,
	limitRepo repository.LimitRepository,
	limitCache *cache.LimitCache,
	metrics monitoring.MetricsService,
	executor *resilience.Executor,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		MaxAge:           12 * time.Hour,
	}))
	router.Use(monitoring.HTTPMetricsMiddleware(metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"breaker": executor.State(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	validator := token.NewValidator(cfg.Auth.JWTSecret)
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	txController := controller.NewTransactionController(orchestrator)
	limitController := controller.NewLimitController(limitRepo, limitCache)

	api := router.Group("/api")
	api.Use(middleware.Auth(validator))
	api.Use(rateLimiter.Middleware())
	{
		tx := api.Group("/transactions")
		{
			tx.POST("/transfer", txController.Transfer)
			tx.POST("/deposit", txController.Deposit)
			tx.POST("/withdraw", txController.Withdraw)
			tx.POST("/:id/reverse", txController.Reverse)
			tx.GET("/search", txController.Search)
			tx.GET("/account/:id", txController.AccountHistory)
			tx.GET("/:id", txController.Get)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.GET("/limits", limitController.List)
			admin.PUT("/limits", limitController.Upsert)
			admin.DELETE("/limits/:accountType/:type", limitController.Delete)
		}
	}

	return router
}

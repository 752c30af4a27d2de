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
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/config"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/controllers"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/middleware"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/repositories"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/services"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/logger"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/token"
)

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

	logrus.Info("Starting account service")

	db, err := gorm.Open(mysql.Open(cfg.Database.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to access database pool")
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.User{}, &models.Account{}, &models.BalanceOperation{}); err != nil {
		logrus.WithError(err).Fatal("Failed to migrate database schema")
	}

	accountRepo := repositories.NewAccountRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	userRepo := repositories.NewUserRepository(db)

	accountService := services.NewAccountService(accountRepo, auditLog)
	balanceService := services.NewBalanceService(accountRepo, ledgerRepo, auditLog)
	authService := services.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	router := setupRouter(cfg, accountService, balanceService, authService)

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

	logrus.Info("Shutting down account service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Forced shutdown")
	}
}

func setupRouter(
	cfg *config.Config,
	accountService services.AccountService,
	balanceService services.BalanceService,
	authService services.AuthService,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	validator := token.NewValidator(cfg.Auth.JWTSecret)
	accountController := controllers.NewAccountController(accountService, balanceService)
	authController := controllers.NewAuthController(authService)

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authController.Login)
		auth.POST("/register", authController.Register)
	}

	api := router.Group("/api")
	api.Use(middleware.Auth(validator))
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", accountController.Create)
			accounts.GET("", accountController.List)
			accounts.GET("/:id", accountController.Get)
			accounts.POST("/:id/balance-ops", accountController.ApplyBalanceOp)
			accounts.GET("/:id/balance-ops", accountController.BalanceOps)

			admin := accounts.Group("")
			admin.Use(middleware.RequireRole("admin"))
			{
				admin.PUT("/:id/balance", accountController.SetBalance)
				admin.PUT("/:id/active", accountController.SetActive)
			}
		}
	}

	return router
}

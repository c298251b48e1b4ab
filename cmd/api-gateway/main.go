package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/identity-api/api/swagger"
	"github.com/noah-isme/identity-api/internal/handler"
	internalmiddleware "github.com/noah-isme/identity-api/internal/middleware"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/notification"
	"github.com/noah-isme/identity-api/internal/repository"
	"github.com/noah-isme/identity-api/internal/service"
	"github.com/noah-isme/identity-api/pkg/cache"
	"github.com/noah-isme/identity-api/pkg/config"
	"github.com/noah-isme/identity-api/pkg/database"
	"github.com/noah-isme/identity-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/identity-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/identity-api/pkg/middleware/requestid"
)

// @title Identity API
// @version 1.0.0
// @description Authentication, token lifecycle, password recovery and account administration
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient := connectRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	revokedRepo := repository.NewRevokedTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var recoveryStore repository.RecoveryStore
	if cfg.Recovery.Store == config.RecoveryStoreRedis {
		recoveryStore = repository.NewRedisRecoveryStore(redisClient)
	} else {
		recoveryStore = repository.NewMemoryRecoveryStore()
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	dispatcher := notification.NewDispatcher(newMailSender(cfg, logr), notification.DispatcherConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.Retries,
		RetryDelay: 2 * time.Second,
	}, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	validate := validator.New()

	tokenSvc := service.NewTokenService(userRepo, revokedRepo, logr, service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.Expiration,
		RefreshTTL: cfg.JWT.RefreshExpiration,
		ResetTTL:   cfg.JWT.ResetExpiration,
	}, metricsSvc)
	recoverySvc := service.NewRecoveryService(userRepo, recoveryStore, tokenSvc, dispatcher, auditRepo, validate, logr, service.RecoveryConfig{
		OTPTTL:      cfg.Recovery.OTPExpiration,
		Cooldown:    cfg.Recovery.RequestCooldown,
		MaxAttempts: cfg.Recovery.MaxAttempts,
	}, metricsSvc)
	authSvc := service.NewAuthService(userRepo, tokenSvc, auditRepo, validate, logr, metricsSvc)
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	roleSvc := service.NewRoleService(roleRepo, permRepo, validate, logr)
	permSvc := service.NewPermissionService(permRepo, validate, logr)

	bootstrap := service.NewBootstrap(roleRepo, userRepo, service.AdminAccount{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
		Email:    cfg.Admin.Email,
	}, logr)
	if err := bootstrap.Run(ctx); err != nil {
		logr.Fatal("failed to seed roles and admin account", zap.Error(err))
	}

	cleanup := service.NewCleanupTask(tokenSvc, recoverySvc, cfg.JWT.CleanupInterval, logr)
	if metricsSvc != nil {
		cleanup.WithMetrics(metricsSvc)
	}
	cleanup.StartCleanup(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	authHandler := handler.NewAuthHandler(authSvc)
	recoveryHandler := handler.NewRecoveryHandler(recoverySvc)
	userHandler := handler.NewUserHandler(userSvc)
	roleHandler := handler.NewRoleHandler(roleSvc, permSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/introspect", authHandler.Introspect)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)

	recovery := auth.Group("/password-recovery")
	recovery.POST("/otp", recoveryHandler.RequestOTP)
	recovery.POST("/otp/verify", recoveryHandler.VerifyOTP)
	recovery.POST("/reset", recoveryHandler.ResetPassword)

	api.POST("/users", userHandler.Create)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokenSvc))
	secured.GET("/users/me", userHandler.Me)
	secured.GET("/users/:id", userHandler.Get)
	secured.PATCH("/users/:id/password", userHandler.ChangePassword)

	admin := secured.Group("")
	admin.Use(internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", userHandler.List)
	admin.DELETE("/users/:id", userHandler.Delete)

	admin.GET("/roles", roleHandler.ListRoles)
	admin.POST("/roles", internalmiddleware.Audit(auditRepo, models.AuditActionRoleCreate, ""), roleHandler.CreateRole)
	admin.DELETE("/roles/:name", internalmiddleware.Audit(auditRepo, models.AuditActionRoleDelete, "name"), roleHandler.DeleteRole)
	admin.GET("/permissions", roleHandler.ListPermissions)
	admin.POST("/permissions", internalmiddleware.Audit(auditRepo, models.AuditActionPermCreate, ""), roleHandler.CreatePermission)
	admin.DELETE("/permissions/:name", internalmiddleware.Audit(auditRepo, models.AuditActionPermDelete, "name"), roleHandler.DeletePermission)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// connectRedis returns nil when redis is optional and unreachable.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err == nil {
		return client
	}
	if cfg.Recovery.Store == config.RecoveryStoreRedis {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	logr.Warn("redis unavailable, recovery state kept in memory", zap.Error(err))
	return nil
}

func newMailSender(cfg *config.Config, logr *zap.Logger) notification.Sender {
	if cfg.Mail.Host == "" {
		return notification.NewLogSender(logr)
	}
	sender, err := notification.NewSMTPSender(cfg.Mail)
	if err != nil {
		logr.Fatal("failed to configure smtp", zap.Error(err))
	}
	return sender
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/careops/clinic-api/internal/config"
	auditHandler "github.com/careops/clinic-api/internal/handler/audit"
	authHandler "github.com/careops/clinic-api/internal/handler/auth"
	healthHandler "github.com/careops/clinic-api/internal/handler/health"
	recordHandler "github.com/careops/clinic-api/internal/handler/record"
	"github.com/careops/clinic-api/internal/identity"
	"github.com/careops/clinic-api/internal/lifecycle"
	"github.com/careops/clinic-api/internal/middleware"
	"github.com/careops/clinic-api/internal/rbac"
	"github.com/careops/clinic-api/internal/repository/postgres"
	"github.com/careops/clinic-api/internal/router"
	auditService "github.com/careops/clinic-api/internal/service/audit"
	authService "github.com/careops/clinic-api/internal/service/auth"
	recordService "github.com/careops/clinic-api/internal/service/record"
	pkgauth "github.com/careops/clinic-api/pkg/auth"
	"github.com/careops/clinic-api/pkg/logger"
	"github.com/careops/clinic-api/pkg/metrics"
	"github.com/careops/clinic-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Logging.Level))

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisClient, err := newRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	// Repositories
	base := postgres.NewBaseRepository(db)
	recordRepo := postgres.NewRecordRepository(base)
	staffRepo := postgres.NewStaffRepository(base)
	identityRepo := postgres.NewIdentityRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	// Services
	registry := rbac.NewRegistry(rbac.DefaultTypeConfigs()...)
	machine := lifecycle.NewMachine(registry)
	resolver := identity.NewResolver(identityRepo, log.Logger)
	auditSvc := auditService.NewService(auditRepo)
	recordSvc := recordService.NewService(recordRepo, registry, machine, resolver).
		WithAuditor(auditSvc).
		WithMetrics(metrics.NewMetrics("clinic", "api"))

	tokens := pkgauth.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(0)
	authSvc := authService.NewService(staffRepo, tokens, hasher, auditSvc)

	// HTTP surface
	authMW := middleware.NewAuthMiddleware(authSvc)
	authH := authHandler.NewHandler(authSvc)
	recordH := recordHandler.NewHandler(recordSvc)
	auditH := auditHandler.NewHandler(auditSvc)
	healthH := healthHandler.NewHandler(db, redisClient)

	r := router.NewRouter(authMW, authH, authH, recordH, auditH, healthH, router.RouterConfig{
		RateLimit:     rate.Limit(cfg.Server.RateLimit),
		RateBurst:     cfg.Server.RateBurst,
		MetricsPrefix: "clinic_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func newRedisClient(cfg config.RedisConfig) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := goredis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

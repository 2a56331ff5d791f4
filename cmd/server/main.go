package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/IdentityService/internal/api"
	"github.com/honeynil/IdentityService/internal/api/middleware"
	"github.com/honeynil/IdentityService/internal/config"
	"github.com/honeynil/IdentityService/internal/handler"
	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	"github.com/honeynil/IdentityService/internal/infrastructure/kafka"
	"github.com/honeynil/IdentityService/internal/infrastructure/mail"
	"github.com/honeynil/IdentityService/internal/infrastructure/ratelimit"
	"github.com/honeynil/IdentityService/internal/infrastructure/redis"
	"github.com/honeynil/IdentityService/internal/observability"
	core "github.com/honeynil/IdentityService/internal/repository/postgres"
	service "github.com/honeynil/IdentityService/internal/services"
	_ "github.com/lib/pq"
)

const (
	serviceName     = "identity-service"
	mailGroupID     = "identity-service-mail"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Logs, metrics, traces
	ctx := context.Background()
	shutdownTracing := observability.Setup(ctx, observability.Options{
		ServiceName: serviceName,
		LogLevel:    cfg.LogLevel,
		Tracing:     cfg.OTelEnabled,
	})
	defer shutdownTracing(context.Background())

	// Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := core.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis
	redisClient, err := redis.NewClient(cfg.RedisAddr, cfg.RedisTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     cfg.JWT.Secret,
		Algorithm:  cfg.JWT.Algorithm,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("Failed to create token codec: %v", err)
	}
	tokens := auth.NewTokenService(codec, redisClient)

	// Repositories
	userRepo := core.NewPostgresUserRepository(db)
	tokenRepo := core.NewPostgresUserTokenRepository(db)
	errorLogRepo := core.NewPostgresErrorLogRepository(db)

	// Mail pipeline
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaMailTopic)
	defer producer.Close()

	var mailer kafka.Mailer = mail.LogMailer{}
	if cfg.Mail.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(cfg.Mail.SMTPAddr, cfg.Mail.From)
	}
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaMailTopic, mailGroupID, mailer)
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Consume(consumerCtx)
	}()

	// Services
	hasher := service.NewBcryptHasher(cfg.BcryptCost)
	authSvc := service.NewAuthService(userRepo, tokenRepo, tokens, hasher, producer, service.AuthConfig{
		AppBaseURL:       cfg.AppBaseURL,
		VerificationTTL:  cfg.VerificationTTL,
		PasswordResetTTL: cfg.PasswordResetTTL,
	})
	userSvc := service.NewUserService(userRepo, tokens, hasher)
	errorLogSvc := service.NewErrorLogService(errorLogRepo)

	// Router
	router := api.SetupRouter(api.Deps{
		Handler: handler.NewHandler(authSvc, userSvc, errorLogSvc),
		Tokens:  tokens,
		Users:   userRepo,
		Errors:  middleware.NewErrorTranslator(errorLogSvc, cfg.Debug),
		Limiter: ratelimit.New(redisClient, tokens, ratelimit.Config{
			Enabled:     cfg.RateLimit.Enabled,
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
		}),
		CORS: cfg.CORS,
		Checks: map[string]api.HealthCheck{
			"postgres": db.PingContext,
			"redis":    redisClient.Ping,
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	stopConsumer()
	<-consumerDone
	if err := consumer.Close(); err != nil {
		slog.Warn("failed to close mail consumer", "error", err)
	}
	slog.Info("server stopped")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/carebook/booking-api/internal/config"
	"github.com/carebook/booking-api/internal/email"
	"github.com/carebook/booking-api/internal/handler"
	appointmentHandler "github.com/carebook/booking-api/internal/handler/appointment"
	authHandler "github.com/carebook/booking-api/internal/handler/auth"
	providerHandler "github.com/carebook/booking-api/internal/handler/provider"
	"github.com/carebook/booking-api/internal/middleware"
	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository/postgres"
	redisrepo "github.com/carebook/booking-api/internal/repository/redis"
	"github.com/carebook/booking-api/internal/router"
	appointmentService "github.com/carebook/booking-api/internal/service/appointment"
	authService "github.com/carebook/booking-api/internal/service/auth"
	providerService "github.com/carebook/booking-api/internal/service/provider"
	"github.com/carebook/booking-api/pkg/auth"
	"github.com/carebook/booking-api/pkg/logger"
	"github.com/carebook/booking-api/pkg/metrics"
	"github.com/carebook/booking-api/pkg/validator"
)

func main() {
	log := logger.NewLogger(&logger.Config{Level: zerolog.InfoLevel})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load configuration")
	}

	if err := validator.RegisterCustom(); err != nil {
		log.Fatal(err, "failed to register validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal(err, "failed to parse redis url")
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	m := metrics.NewMetrics("booking_api", "core")

	appointmentRepo := postgres.NewAppointmentRepository(db)
	providerRepo := postgres.NewProviderRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	sequenceRepo := postgres.NewSequenceRepository(db, cfg.Booking.SequenceFloor)
	outboxRepo := postgres.NewOutboxRepository(db)
	codeStore := redisrepo.NewCodeStore(redisClient, "otp")

	var mailer email.Service = email.NoopService{}
	if cfg.SMTP.Enabled {
		mailer = email.NewSMTPService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	tokens := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	providerSvc := providerService.NewService(providerRepo, cfg.Booking.ProviderCacheTTL, cfg.Booking.ProviderCacheSweep)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo,
		sequenceRepo,
		providerSvc,
		patientRepo,
		outboxRepo,
		log.WithComponent("appointment"),
		m,
	)

	admins, err := parseAdmins(cfg.Admins)
	if err != nil {
		log.Fatal(err, "invalid admins configuration")
	}
	authSvc := authService.NewService(
		codeStore,
		patientRepo,
		providerRepo,
		tokens,
		mailer,
		log.WithComponent("auth"),
		cfg.OTP.TTL,
		admins,
	)

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	adminOnly := authMiddleware.RequireRole(model.RoleAdmin)

	routerConfig := router.Config{
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		CORSConfig:     corsConfig(cfg.CORS),
		MetricsPrefix:  "booking_api",
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		appointmentHandler.NewHandler(appointmentSvc, adminOnly),
		providerHandler.NewHandler(providerSvc, adminOnly),
		handler.NewHealthHandler(db),
		routerConfig,
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}

	log.Info("server exited")
}

func parseAdmins(raw map[string]string) (map[string]uuid.UUID, error) {
	admins := make(map[string]uuid.UUID, len(raw))
	for email, id := range raw {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id for %s: %w", email, err)
		}
		admins[email] = parsed
	}
	return admins, nil
}

func corsConfig(cfg config.CORSConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.AllowedOrigins
	}
	if len(cfg.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.AllowedMethods
	}
	if len(cfg.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.AllowedHeaders
	}
	return cors
}

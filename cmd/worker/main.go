package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/carebook/booking-api/internal/config"
	"github.com/carebook/booking-api/internal/email"
	"github.com/carebook/booking-api/internal/repository/postgres"
	internalWorker "github.com/carebook/booking-api/internal/worker"
	"github.com/carebook/booking-api/pkg/logger"
	"github.com/carebook/booking-api/pkg/messaging/redis"
	"github.com/carebook/booking-api/pkg/metrics"
	"github.com/carebook/booking-api/pkg/worker"
)

func main() {
	log := logger.NewLogger(&logger.Config{Level: zerolog.InfoLevel})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	zl := log.WithComponent("broker").Zerolog()
	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), zl)
	if err != nil {
		log.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("booking_api", "worker")

	outboxRepo := postgres.NewOutboxRepository(db)
	patientRepo := postgres.NewPatientRepository(db)

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

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		cfg.Outbox.ToProcessorConfig(),
		log.WithComponent("outbox"),
		m,
	)
	notifier := internalWorker.NewNotifier(broker, patientRepo, mailer, log.WithComponent("notifier"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Start(ctx)
	go func() {
		if err := notifier.Start(ctx); err != nil {
			log.Error(err, "notifier stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()
}

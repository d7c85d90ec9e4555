package main // Entry point package

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/booking"
	"github.com/eventure/ticketing/internal/config"
	"github.com/eventure/ticketing/internal/database"
	"github.com/eventure/ticketing/internal/handler"
	"github.com/eventure/ticketing/internal/ledger"
	"github.com/eventure/ticketing/internal/middleware"
	"github.com/eventure/ticketing/internal/notify"
	"github.com/eventure/ticketing/internal/payment"
	"github.com/eventure/ticketing/internal/queue"
	"github.com/eventure/ticketing/internal/repository"
	"github.com/eventure/ticketing/internal/router"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	if cfg.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	// Repositories over the shared connection pool.
	eventRepo := repository.NewEventRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	inventoryRepo := repository.NewInventoryRepo(db)
	receiptRepo := repository.NewReceiptRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)

	// Notification pipeline: persist first, then queue to the broker.
	// Without an AMQP URL the dispatcher hands envelopes to the broker
	// directly, which only matters for multi-instance deployments.
	broker := notify.NewBroker(notificationRepo, log)
	var wire notify.WirePublisher
	if cfg.RabbitURL != "" {
		wire = queue.NewPublisher(cfg.RabbitURL, log)
	}
	dispatcher := notify.NewDispatcher(notificationRepo, wire, broker, log)

	// Domain services.
	inv := ledger.New(inventoryRepo)
	orchestrator := booking.NewOrchestrator(eventRepo, bookingRepo, inv, dispatcher, log)
	verifier := payment.NewVerifier(bookingRepo, eventRepo, receiptRepo, inv, dispatcher, log)
	sweeper := booking.NewSweeper(bookingRepo, inv, dispatcher, cfg.HoldTTL, cfg.SweepInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)
	if cfg.RabbitURL != "" {
		go queue.StartNotificationConsumer(cfg.RabbitURL, broker, log)
	}

	// Rate limiting degrades to a pass-through when Redis is down.
	var rateLimit echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		rateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	} else {
		log.Warn("redis unavailable, booking rate limit disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Health:        &handler.Health{DB: db},
		Events:        handler.NewEventHandler(eventRepo, dispatcher, log),
		Bookings:      handler.NewBookingHandler(orchestrator),
		Receipts:      handler.NewReceiptHandler(verifier),
		Notifications: handler.NewNotificationHandler(notificationRepo),
		WS:            handler.NewWSHandler(broker, log),
		JWTSecret:     cfg.JWTSecret,
		RateLimit:     rateLimit,
	})

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	zlog "github.com/rs/zerolog/log"

	"orderbook-engine/src/config"
	"orderbook-engine/src/dispatcher"
	"orderbook-engine/src/handlers"
	"orderbook-engine/src/journal"
	"orderbook-engine/src/logger"
	"orderbook-engine/src/metrics"
	"orderbook-engine/src/publisher"
	"orderbook-engine/src/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log)
	log := logger.GetLogger()

	log.Info().Msg("Initializing Order Book Engine")

	recorder := metrics.NewRecorder(cfg.Metrics.Namespace)
	opts := dispatcher.Options{
		QueueSize: cfg.CommandQueueSize,
		Metrics:   recorder,
	}

	var cmdJournal *journal.Journal
	if cfg.Journal.Dir != "" {
		cmdJournal, err = journal.Open(journal.Options{Dir: cfg.Journal.Dir, Sync: cfg.Journal.Sync})
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Journal.Dir).Msg("Failed to open command journal")
		}
		opts.Journal = cmdJournal
	}

	var tradePublisher *publisher.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		tradePublisher = publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
		opts.Publisher = tradePublisher
		log.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.TradesTopic).
			Msg("Trade publishing enabled")
	}

	book := dispatcher.New(opts)

	if cmdJournal != nil {
		if err := cmdJournal.Replay(book.Replay); err != nil {
			log.Fatal().Err(err).Msg("Failed to replay command journal")
		}
		log.Info().
			Uint64("records", cmdJournal.LastSeq()).
			Msg("Order book restored from journal")
	}

	runCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := book.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("Dispatcher exited")
		}
	}()

	orderHandler := handlers.NewOrderHandler(book, recorder, cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler, cfg)

	port := ":" + cfg.Port
	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			serverError <- err
		}
	}()

	log.Info().
		Str("port", port).
		Strs("endpoints", []string{
			"POST   /api/v1/orders",
			"PUT    /api/v1/orders/:id",
			"DELETE /api/v1/orders/:id",
			"GET    /api/v1/orders/:id",
			"GET    /api/v1/orderbook",
			"GET    /health",
			"GET    /metrics",
			"GET    /metrics/prometheus",
		}).
		Msg("Order Book Engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverError:
		log.Error().
			Err(err).
			Str("port", port).
			Msg("Server failed")
	case <-quit:
		log.Info().Msg("Received shutdown signal, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	}

	stopDispatcher()
	<-dispatcherDone

	if tradePublisher != nil {
		if err := tradePublisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to flush trade publisher")
		}
	}
	if cmdJournal != nil {
		if err := cmdJournal.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close command journal")
		}
	}

	log.Info().Msg("Shutdown complete")
	logger.CloseLogger()
}

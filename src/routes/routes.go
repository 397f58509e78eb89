package routes

import (
	"github.com/gofiber/fiber/v2"

	"orderbook-engine/src/config"
	"orderbook-engine/src/handlers"
	"orderbook-engine/src/middleware"
)

func SetupRoutes(app *fiber.App, orderHandler *handlers.OrderHandler, cfg *config.Config) *middleware.ServiceAvailability {
	serviceAvailability := middleware.ServiceAvailabilityFromConfig(cfg.Availability)
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(cfg.Availability.RequestLoggingDisabled))

	api := app.Group("/api/v1")

	if !cfg.RateLimit.Disabled {
		rateLimiter := middleware.RateLimiterFromConfig(cfg.RateLimit)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/orders", orderHandler.SubmitOrder)
	api.Put("/orders/:id", orderHandler.ModifyOrder)
	api.Delete("/orders/:id", orderHandler.CancelOrder)
	api.Get("/orders/:id", orderHandler.GetOrderStatus)
	api.Get("/orderbook", orderHandler.GetOrderBook)

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)
	app.Get("/metrics/prometheus", orderHandler.Prometheus)

	return serviceAvailability
}

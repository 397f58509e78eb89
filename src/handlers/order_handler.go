package handlers

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"orderbook-engine/src/config"
	"orderbook-engine/src/dispatcher"
	"orderbook-engine/src/engine"
	"orderbook-engine/src/metrics"
	"orderbook-engine/src/models"
)

type OrderHandler struct {
	Dispatcher *dispatcher.Dispatcher
	Recorder   *metrics.Recorder
	Latencies  *metrics.LatencyWindow
	StartTime  time.Time

	commandTimeout time.Duration
	defaultDepth   int
	maxDepth       int
	prometheus     fiber.Handler
}

func NewOrderHandler(d *dispatcher.Dispatcher, recorder *metrics.Recorder, cfg *config.Config) *OrderHandler {
	return &OrderHandler{
		Dispatcher:     d,
		Recorder:       recorder,
		Latencies:      metrics.NewLatencyWindow(cfg.Metrics.MaxLatencies),
		StartTime:      time.Now(),
		commandTimeout: cfg.CommandTimeout,
		defaultDepth:   cfg.OrderBook.DefaultDepth,
		maxDepth:       cfg.OrderBook.MaxDepth,
		prometheus:     adaptor.HTTPHandler(recorder.Handler()),
	}
}

func (h *OrderHandler) commandContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.commandTimeout)
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	orderReq, err := validateSubmitOrderRequest(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	ctx, cancel := h.commandContext(c)
	defer cancel()

	startTime := time.Now()
	result, err := h.Dispatcher.Submit(ctx, orderReq)
	h.Latencies.Record(time.Since(startTime))

	if err != nil {
		return h.dispatchError(c, err, req.OrderID)
	}

	log.Info().
		Uint64("order_id", uint64(result.OrderID)).
		Str("side", req.Side).
		Str("type", req.Type).
		Int64("price", req.Price).
		Int64("quantity", req.Quantity).
		Str("status", string(result.Status)).
		Int("trades_count", len(result.Trades)).
		Str("ip", c.IP()).
		Msg("Order processed")

	response := toOrderResponse(result)

	switch result.Status {
	case dispatcher.StatusAccepted:
		response.Message = "Order added to book"
		return c.Status(fiber.StatusCreated).JSON(response)
	case dispatcher.StatusPartialFill:
		response.Message = "Order partially filled, remainder resting"
		return c.Status(fiber.StatusAccepted).JSON(response)
	case dispatcher.StatusKilled:
		response.Message = "Unfilled quantity cancelled"
		return c.Status(fiber.StatusOK).JSON(response)
	case dispatcher.StatusDuplicate:
		response.Message = "Order id already resting on the book"
		return c.Status(fiber.StatusConflict).JSON(response)
	default:
		return c.Status(fiber.StatusOK).JSON(response)
	}
}

func (h *OrderHandler) ModifyOrder(c *fiber.Ctx) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	var req models.ModifyOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	modify, err := validateModifyOrderRequest(orderID, &req)
	if err != nil {
		log.Warn().
			Err(err).
			Uint64("order_id", uint64(orderID)).
			Str("ip", c.IP()).
			Msg("Invalid modify request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	ctx, cancel := h.commandContext(c)
	defer cancel()

	startTime := time.Now()
	result, err := h.Dispatcher.Modify(ctx, modify)
	h.Latencies.Record(time.Since(startTime))

	if err != nil {
		return h.dispatchError(c, err, uint64(orderID))
	}

	if result.Status == dispatcher.StatusNotFound {
		log.Warn().
			Uint64("order_id", uint64(orderID)).
			Str("ip", c.IP()).
			Msg("Modify order: order not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	log.Info().
		Uint64("order_id", uint64(orderID)).
		Str("side", req.Side).
		Int64("price", req.Price).
		Int64("quantity", req.Quantity).
		Str("status", string(result.Status)).
		Int("trades_count", len(result.Trades)).
		Msg("Order modified")

	return c.Status(fiber.StatusOK).JSON(toOrderResponse(result))
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	ctx, cancel := h.commandContext(c)
	defer cancel()

	found, err := h.Dispatcher.Cancel(ctx, orderID)
	if err != nil {
		return h.dispatchError(c, err, uint64(orderID))
	}

	if !found {
		log.Warn().
			Uint64("order_id", uint64(orderID)).
			Str("ip", c.IP()).
			Msg("Cancel order: order not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	log.Info().
		Uint64("order_id", uint64(orderID)).
		Str("ip", c.IP()).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID: uint64(orderID),
		Status:  "CANCELLED",
	})
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	orderID, err := parseOrderID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	ctx, cancel := h.commandContext(c)
	defer cancel()

	order, found, err := h.Dispatcher.Order(ctx, orderID)
	if err != nil {
		return h.dispatchError(c, err, uint64(orderID))
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	status := string(dispatcher.StatusAccepted)
	if order.FilledQuantity() > 0 {
		status = string(dispatcher.StatusPartialFill)
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:           uint64(order.ID()),
		Side:              string(order.Side()),
		Type:              string(order.Type()),
		Price:             int32(order.Price()),
		Quantity:          uint32(order.InitialQuantity()),
		FilledQuantity:    uint32(order.FilledQuantity()),
		RemainingQuantity: uint32(order.RemainingQuantity()),
		Status:            status,
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(h.defaultDepth)))
	if err != nil || depth <= 0 {
		depth = h.defaultDepth
	}

	// edge case: enforce maximum depth limit
	if depth > h.maxDepth {
		depth = h.maxDepth
	}

	ctx, cancel := h.commandContext(c)
	defer cancel()

	infos, err := h.Dispatcher.Depth(ctx, depth)
	if err != nil {
		return h.dispatchError(c, err, 0)
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Timestamp: time.Now().UnixMilli(),
		Bids:      toPriceLevels(infos.Bids),
		Asks:      toPriceLevels(infos.Asks),
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	ctx, cancel := h.commandContext(c)
	defer cancel()

	stats, err := h.Dispatcher.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.HealthResponse{
			Status:        "unhealthy",
			UptimeSeconds: int64(uptime),
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(uptime),
		OrdersInBook:  stats.Resting,
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	ctx, cancel := h.commandContext(c)
	defer cancel()

	stats, err := h.Dispatcher.Stats(ctx)
	if err != nil {
		return h.dispatchError(c, err, 0)
	}

	counts := h.Recorder.Counts()
	p50, p99, p999 := h.Latencies.Percentiles()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:         counts.Received,
		OrdersMatched:          counts.Matched,
		OrdersCancelled:        counts.Cancelled,
		OrdersInBook:           stats.Resting,
		BidLevels:              stats.BidLevels,
		AskLevels:              stats.AskLevels,
		BestBid:                toPricePtr(stats.BestBid),
		BestAsk:                toPricePtr(stats.BestAsk),
		TradesExecuted:         counts.Trades,
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: h.calculateThroughput(counts.Received),
	})
}

func (h *OrderHandler) Prometheus(c *fiber.Ctx) error {
	return h.prometheus(c)
}

func (h *OrderHandler) calculateThroughput(ordersReceived int64) float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(ordersReceived) / uptime
}

// dispatchError maps dispatcher failures onto HTTP statuses.
func (h *OrderHandler) dispatchError(c *fiber.Ctx, err error, orderID uint64) error {
	switch {
	case errors.Is(err, dispatcher.ErrInvalidOrder):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, dispatcher.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		log.Warn().
			Err(err).
			Uint64("order_id", orderID).
			Str("path", c.Path()).
			Msg("Order book unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Order book unavailable",
		})
	default:
		log.Error().
			Err(err).
			Uint64("order_id", orderID).
			Str("path", c.Path()).
			Msg("Error processing order")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "Internal server error",
		})
	}
}

func toOrderResponse(result dispatcher.Result) models.OrderResponse {
	now := time.Now().UnixMilli()
	trades := make([]models.TradeInfo, 0, len(result.Trades))
	for _, trade := range result.Trades {
		trades = append(trades, models.TradeInfo{
			TradeID:    uuid.NewString(),
			BidOrderID: uint64(trade.Bid.OrderID),
			BidPrice:   int32(trade.Bid.Price),
			AskOrderID: uint64(trade.Ask.OrderID),
			AskPrice:   int32(trade.Ask.Price),
			Quantity:   uint32(trade.Bid.Quantity),
			Timestamp:  now,
		})
	}

	return models.OrderResponse{
		OrderID:           uint64(result.OrderID),
		Status:            string(result.Status),
		FilledQuantity:    uint32(result.Filled),
		RemainingQuantity: uint32(result.Remaining),
		Trades:            trades,
	}
}

func toPriceLevels(levels engine.LevelInfos) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, level := range levels {
		out = append(out, models.PriceLevelInfo{
			Price:    int32(level.Price),
			Quantity: uint64(level.Quantity),
		})
	}
	return out
}

func toPricePtr(p *engine.Price) *int32 {
	if p == nil {
		return nil
	}
	v := int32(*p)
	return &v
}

func parseOrderID(c *fiber.Ctx) (engine.OrderID, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &ValidationError{Message: "Invalid order id: must be a positive integer"}
	}
	return engine.OrderID(id), nil
}

func validateSubmitOrderRequest(req *models.SubmitOrderRequest) (dispatcher.OrderRequest, error) {
	side := engine.Side(req.Side)
	if !side.Valid() {
		return dispatcher.OrderRequest{}, &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}

	orderType := engine.OrderType(req.Type)
	if !orderType.Valid() {
		return dispatcher.OrderRequest{}, &ValidationError{Message: "Invalid order: type must be GTC or FAK"}
	}

	price, quantity, err := validatePriceQuantity(req.Price, req.Quantity)
	if err != nil {
		return dispatcher.OrderRequest{}, err
	}

	return dispatcher.OrderRequest{
		ID:       engine.OrderID(req.OrderID),
		Type:     orderType,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	}, nil
}

func validateModifyOrderRequest(id engine.OrderID, req *models.ModifyOrderRequest) (engine.OrderModify, error) {
	side := engine.Side(req.Side)
	if !side.Valid() {
		return engine.OrderModify{}, &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}

	price, quantity, err := validatePriceQuantity(req.Price, req.Quantity)
	if err != nil {
		return engine.OrderModify{}, err
	}

	return engine.OrderModify{ID: id, Side: side, Price: price, Quantity: quantity}, nil
}

func validatePriceQuantity(price, quantity int64) (engine.Price, engine.Quantity, error) {
	if quantity <= 0 {
		return 0, 0, &ValidationError{Message: "Invalid order: quantity must be positive"}
	}
	// edge case: values that would wrap in the book's integer types
	if quantity > math.MaxUint32 {
		return 0, 0, &ValidationError{Message: "Invalid order: quantity out of range"}
	}
	if price < math.MinInt32 || price > math.MaxInt32 {
		return 0, 0, &ValidationError{Message: "Invalid order: price out of range"}
	}
	return engine.Price(price), engine.Quantity(quantity), nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

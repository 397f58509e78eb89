package models

// SubmitOrderRequest uses wide integers so out-of-range values can be
// rejected instead of silently wrapping.
type SubmitOrderRequest struct {
	OrderID  uint64 `json:"order_id,omitempty"` // assigned by the server when omitted
	Side     string `json:"side"`
	Type     string `json:"type"`  // GTC or FAK
	Price    int64  `json:"price"` // integer ticks, may be negative
	Quantity int64  `json:"quantity"`
}

type ModifyOrderRequest struct {
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type OrderResponse struct {
	OrderID           uint64      `json:"order_id"`
	Status            string      `json:"status"`
	Message           string      `json:"message,omitempty"`
	FilledQuantity    uint32      `json:"filled_quantity"`
	RemainingQuantity uint32      `json:"remaining_quantity"`
	Trades            []TradeInfo `json:"trades,omitempty"`
}

// TradeInfo reports both legs, each at its own order's limit price.
type TradeInfo struct {
	TradeID    string `json:"trade_id"`
	BidOrderID uint64 `json:"bid_order_id"`
	BidPrice   int32  `json:"bid_price"`
	AskOrderID uint64 `json:"ask_order_id"`
	AskPrice   int32  `json:"ask_price"`
	Quantity   uint32 `json:"quantity"`
	Timestamp  int64  `json:"timestamp"` // unix timestamp in milliseconds
}

type CancelOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Timestamp int64            `json:"timestamp"` // unix timestamp in milliseconds
	Bids      []PriceLevelInfo `json:"bids"`      // sorted descending (highest first)
	Asks      []PriceLevelInfo `json:"asks"`      // sorted ascending (lowest first)
}

type PriceLevelInfo struct {
	Price    int32  `json:"price"`
	Quantity uint64 `json:"quantity"` // aggregated quantity at this price
}

type OrderStatusResponse struct {
	OrderID           uint64 `json:"order_id"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	Price             int32  `json:"price"`
	Quantity          uint32 `json:"quantity"`
	FilledQuantity    uint32 `json:"filled_quantity"`
	RemainingQuantity uint32 `json:"remaining_quantity"`
	Status            string `json:"status"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	OrdersInBook  int    `json:"orders_in_book"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersMatched          int64   `json:"orders_matched"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	OrdersInBook           int     `json:"orders_in_book"`
	BidLevels              int     `json:"bid_levels"`
	AskLevels              int     `json:"ask_levels"`
	BestBid                *int32  `json:"best_bid"`
	BestAsk                *int32  `json:"best_ask"`
	TradesExecuted         int64   `json:"trades_executed"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}

package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderbook-engine/src/engine"
)

// Recorder owns a private registry so tests and multiple instances never
// collide on the default one.
type Recorder struct {
	registry *prometheus.Registry

	ordersReceived  *prometheus.CounterVec
	orderStatus     *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	tradesExecuted  prometheus.Counter
	tradedQuantity  prometheus.Counter
	restingOrders   prometheus.Gauge
	priceLevels     *prometheus.GaugeVec
	commandLatency  *prometheus.HistogramVec

	// mirrored for the JSON view
	received  atomic.Int64
	matched   atomic.Int64
	cancelled atomic.Int64
	trades    atomic.Int64
}

func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ordersReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_received_total",
			Help:      "Orders submitted to the book.",
		}, []string{"type", "side"}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_status_total",
			Help:      "Submission outcomes by status.",
		}, []string{"status"}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Resting orders cancelled by request.",
		}),
		tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Trades produced by the matching loop.",
		}),
		tradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Quantity matched across all trades.",
		}),
		restingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders currently resting on the book.",
		}),
		priceLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_levels",
			Help:      "Non-empty price levels by side.",
		}, []string{"side"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Time spent applying a command to the book.",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2},
		}, []string{"command"}),
	}

	r.registry.MustRegister(
		r.ordersReceived,
		r.orderStatus,
		r.ordersCancelled,
		r.tradesExecuted,
		r.tradedQuantity,
		r.restingOrders,
		r.priceLevels,
		r.commandLatency,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) OrderReceived(orderType engine.OrderType, side engine.Side) {
	r.ordersReceived.WithLabelValues(string(orderType), string(side)).Inc()
	r.received.Add(1)
}

// OrderOutcome counts a submission status; matched marks a fill of any size.
func (r *Recorder) OrderOutcome(status string, matched bool) {
	r.orderStatus.WithLabelValues(status).Inc()
	if matched {
		r.matched.Add(1)
	}
}

func (r *Recorder) OrderCancelled() {
	r.ordersCancelled.Inc()
	r.cancelled.Add(1)
}

func (r *Recorder) TradesExecuted(trades engine.Trades) {
	if len(trades) == 0 {
		return
	}
	var quantity float64
	for _, t := range trades {
		quantity += float64(t.Bid.Quantity)
	}
	r.tradesExecuted.Add(float64(len(trades)))
	r.tradedQuantity.Add(quantity)
	r.trades.Add(int64(len(trades)))
}

// BookState records the shape of the book after a command.
func (r *Recorder) BookState(resting, bidLevels, askLevels int) {
	r.restingOrders.Set(float64(resting))
	r.priceLevels.WithLabelValues(string(engine.SideBuy)).Set(float64(bidLevels))
	r.priceLevels.WithLabelValues(string(engine.SideSell)).Set(float64(askLevels))
}

func (r *Recorder) ObserveCommand(command string, d time.Duration) {
	r.commandLatency.WithLabelValues(command).Observe(d.Seconds())
}

type Counts struct {
	Received  int64
	Matched   int64
	Cancelled int64
	Trades    int64
}

func (r *Recorder) Counts() Counts {
	return Counts{
		Received:  r.received.Load(),
		Matched:   r.matched.Load(),
		Cancelled: r.cancelled.Load(),
		Trades:    r.trades.Load(),
	}
}

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook-engine/src/engine"
	"orderbook-engine/src/metrics"
)

// TestRecorderCounts tests counters, gauges and the JSON mirror
func TestRecorderCounts(t *testing.T) {
	r := metrics.NewRecorder("test")

	r.OrderReceived(engine.TypeGoodTillCancelled, engine.SideBuy)
	r.OrderReceived(engine.TypeFillAndKill, engine.SideSell)
	r.OrderOutcome("FILLED", true)
	r.OrderOutcome("KILLED", false)
	r.OrderCancelled()
	r.TradesExecuted(engine.Trades{
		{Bid: engine.TradeInfo{Quantity: 5}, Ask: engine.TradeInfo{Quantity: 5}},
		{Bid: engine.TradeInfo{Quantity: 3}, Ask: engine.TradeInfo{Quantity: 3}},
	})
	r.TradesExecuted(nil)
	r.BookState(4, 2, 1)
	r.ObserveCommand("add", 3*time.Microsecond)

	counts := r.Counts()
	assert.Equal(t, metrics.Counts{Received: 2, Matched: 1, Cancelled: 1, Trades: 2}, counts)

	expected := `
# HELP test_traded_quantity_total Quantity matched across all trades.
# TYPE test_traded_quantity_total counter
test_traded_quantity_total 8
# HELP test_resting_orders Orders currently resting on the book.
# TYPE test_resting_orders gauge
test_resting_orders 4
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected),
		"test_traded_quantity_total", "test_resting_orders"))

	count, err := testutil.GatherAndCount(r.Registry(), "test_price_levels")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestRecorderHandler tests the exposition endpoint
func TestRecorderHandler(t *testing.T) {
	r := metrics.NewRecorder("orderbook")
	r.OrderReceived(engine.TypeGoodTillCancelled, engine.SideBuy)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `orderbook_orders_received_total{side="BUY",type="GTC"} 1`)
}

// TestLatencyWindowPercentiles tests percentile selection and the rolling bound
func TestLatencyWindowPercentiles(t *testing.T) {
	w := metrics.NewLatencyWindow(100)

	p50, p99, p999 := w.Percentiles()
	assert.Zero(t, p50)
	assert.Zero(t, p99)
	assert.Zero(t, p999)

	for i := 1; i <= 150; i++ {
		w.Record(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 100, w.Len())

	// window holds 51ms..150ms
	p50, p99, p999 = w.Percentiles()
	assert.InDelta(t, 101.0, p50, 0.001)
	assert.InDelta(t, 150.0, p99, 0.001)
	assert.InDelta(t, 150.0, p999, 0.001)
}

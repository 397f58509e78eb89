package engine_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbook-engine/src/engine"
)

// bookModel tracks the ids a random driver believes may still be resting.
type bookModel struct {
	known     map[engine.OrderID]bool
	remaining map[engine.OrderID]engine.Quantity
}

func newBookModel() *bookModel {
	return &bookModel{
		known:     make(map[engine.OrderID]bool),
		remaining: make(map[engine.OrderID]engine.Quantity),
	}
}

// checkInvariants verifies the book against everything observable through
// its public API after a call has returned.
func (m *bookModel) checkInvariants(t *testing.T, book *engine.Orderbook) {
	t.Helper()

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if hasBid && hasAsk {
		require.Less(t, bestBid, bestAsk, "book left crossed")
	}

	bidSums := make(map[engine.Price]engine.Quantity)
	askSums := make(map[engine.Price]engine.Quantity)
	active := 0
	for id := range m.known {
		order, ok := book.Order(id)
		if !ok {
			delete(m.known, id)
			delete(m.remaining, id)
			continue
		}
		active++

		require.NotEqual(t, engine.TypeFillAndKill, order.Type(), "fill-and-kill order %d rests", id)
		require.LessOrEqual(t, order.RemainingQuantity(), order.InitialQuantity())
		require.Positive(t, order.RemainingQuantity())
		if prev, seen := m.remaining[id]; seen {
			require.LessOrEqual(t, order.RemainingQuantity(), prev, "remaining grew for %d", id)
		}
		m.remaining[id] = order.RemainingQuantity()

		if order.Side() == engine.SideBuy {
			bidSums[order.Price()] += order.RemainingQuantity()
		} else {
			askSums[order.Price()] += order.RemainingQuantity()
		}
	}
	require.Equal(t, active, book.Size())

	infos := book.GetOrderInfos()
	require.Len(t, infos.Bids, len(bidSums))
	require.Len(t, infos.Asks, len(askSums))
	for i, level := range infos.Bids {
		require.Equal(t, bidSums[level.Price], level.Quantity)
		if i > 0 {
			require.Greater(t, infos.Bids[i-1].Price, level.Price)
		}
	}
	for i, level := range infos.Asks {
		require.Equal(t, askSums[level.Price], level.Quantity)
		if i > 0 {
			require.Less(t, infos.Asks[i-1].Price, level.Price)
		}
	}
}

func checkTrades(t *testing.T, trades engine.Trades) {
	t.Helper()
	for _, trade := range trades {
		require.Equal(t, trade.Bid.Quantity, trade.Ask.Quantity)
		require.Positive(t, trade.Bid.Quantity)
		require.GreaterOrEqual(t, trade.Bid.Price, trade.Ask.Price)
	}
}

// TestRandomOperationsKeepInvariants drives the book with random add, cancel
// and modify calls and checks every invariant after each one.
func TestRandomOperationsKeepInvariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		book := engine.New()
		model := newBookModel()
		nextID := engine.OrderID(1)

		for step := 0; step < 2000; step++ {
			var trades engine.Trades
			switch op := rng.Intn(10); {
			case op < 6:
				side := engine.SideBuy
				if rng.Intn(2) == 0 {
					side = engine.SideSell
				}
				orderType := engine.TypeGoodTillCancelled
				if rng.Intn(4) == 0 {
					orderType = engine.TypeFillAndKill
				}
				id := nextID
				// Occasionally resubmit a recent id to exercise duplicate handling.
				if id > 1 && rng.Intn(20) == 0 {
					id = engine.OrderID(rng.Int63n(int64(nextID-1))) + 1
				} else {
					nextID++
				}
				order := engine.NewOrder(orderType, id, side, engine.Price(90+rng.Intn(21)), engine.Quantity(1+rng.Intn(100)))

				before, existed := book.Order(id)
				trades = book.AddOrder(order)
				if existed {
					require.Empty(t, trades)
					after, ok := book.Order(id)
					require.True(t, ok)
					require.Equal(t, before, after)
				}
				model.known[id] = true
			case op < 8:
				id := engine.OrderID(rng.Int63n(int64(nextID))) + 1
				book.CancelOrder(id)
				_, exists := book.Order(id)
				require.False(t, exists)
			default:
				id := engine.OrderID(rng.Int63n(int64(nextID))) + 1
				side := engine.SideBuy
				if rng.Intn(2) == 0 {
					side = engine.SideSell
				}
				trades = book.ModifyOrder(engine.OrderModify{
					ID:       id,
					Side:     side,
					Price:    engine.Price(90 + rng.Intn(21)),
					Quantity: engine.Quantity(1 + rng.Intn(100)),
				})
				// A modify is a new order: its fill history starts over.
				delete(model.remaining, id)
			}

			checkTrades(t, trades)
			model.checkInvariants(t, book)
		}
	}
}

// TestTradeQuantityConservation tests that matched quantity equals the
// quantity removed from resting and incoming orders.
func TestTradeQuantityConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	book := engine.New()

	var submitted, traded uint64
	for i := 1; i <= 5000; i++ {
		side := engine.SideBuy
		if i%2 == 0 {
			side = engine.SideSell
		}
		qty := engine.Quantity(1 + rng.Intn(50))
		submitted += uint64(qty)

		for _, trade := range book.AddOrder(engine.NewOrder(engine.TypeGoodTillCancelled, engine.OrderID(i), side, engine.Price(95+rng.Intn(11)), qty)) {
			traded += 2 * uint64(trade.Bid.Quantity)
		}
	}

	var resting uint64
	infos := book.GetOrderInfos()
	for _, level := range infos.Bids {
		resting += uint64(level.Quantity)
	}
	for _, level := range infos.Asks {
		resting += uint64(level.Quantity)
	}

	require.Equal(t, submitted, resting+traded)
}

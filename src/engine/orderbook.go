// Package engine implements a single-instrument limit order book with
// price-time priority matching.
//
// An Orderbook has no internal locking. It must be driven by exactly one
// goroutine; concurrent producers are serialized by the dispatcher package.
package engine

import "container/list"

type orderEntry struct {
	order    *Order
	location *list.Element
}

type Orderbook struct {
	bids   *levelIndex // best = highest price
	asks   *levelIndex // best = lowest price
	orders map[OrderID]orderEntry
}

func New() *Orderbook {
	return &Orderbook{
		bids:   newLevelIndex(SideBuy),
		asks:   newLevelIndex(SideSell),
		orders: make(map[OrderID]orderEntry),
	}
}

func (ob *Orderbook) side(side Side) *levelIndex {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// canMatch reports whether an order on side at price would cross the
// current best opposite level.
func (ob *Orderbook) canMatch(side Side, price Price) bool {
	if side == SideBuy {
		bestAsk, ok := ob.asks.best()
		return ok && price >= bestAsk.price
	}
	bestBid, ok := ob.bids.best()
	return ok && price <= bestBid.price
}

// AddOrder inserts order and matches it against the opposite side.
//
// Duplicate ids, zero quantities and fill-and-kill orders that cannot cross
// the opposite best price are declined without touching the book.
func (ob *Orderbook) AddOrder(order *Order) Trades {
	if order == nil || order.RemainingQuantity() == 0 {
		return nil
	}
	if _, exists := ob.orders[order.ID()]; exists {
		return nil
	}
	if order.Type() == TypeFillAndKill && !ob.canMatch(order.Side(), order.Price()) {
		return nil
	}

	level := ob.side(order.Side()).getOrCreate(order.Price())
	ob.orders[order.ID()] = orderEntry{order: order, location: level.pushBack(order)}

	return ob.matchOrders()
}

// CancelOrder removes a resting order. Unknown ids are ignored.
func (ob *Orderbook) CancelOrder(id OrderID) {
	entry, exists := ob.orders[id]
	if !exists {
		return
	}
	delete(ob.orders, id)

	index := ob.side(entry.order.Side())
	level, ok := index.get(entry.order.Price())
	if !ok {
		return
	}
	level.remove(entry.location)
	if level.empty() {
		index.delete(level.price)
	}
}

// ModifyOrder replaces a resting order, keeping its id and type. The
// replacement joins the back of its new level and may match immediately.
func (ob *Orderbook) ModifyOrder(modify OrderModify) Trades {
	entry, exists := ob.orders[modify.ID]
	if !exists {
		return nil
	}
	orderType := entry.order.Type()

	ob.CancelOrder(modify.ID)
	return ob.AddOrder(modify.ToOrder(orderType))
}

func (ob *Orderbook) matchOrders() Trades {
	var trades Trades

	for {
		bidLevel, hasBids := ob.bids.best()
		askLevel, hasAsks := ob.asks.best()
		if !hasBids || !hasAsks {
			break
		}
		if bidLevel.price < askLevel.price {
			break
		}

		for !bidLevel.empty() && !askLevel.empty() {
			bid := bidLevel.front()
			ask := askLevel.front()

			quantity := min(bid.RemainingQuantity(), ask.RemainingQuantity())
			mustFill(bid, quantity)
			mustFill(ask, quantity)

			trades = append(trades, Trade{
				Bid: TradeInfo{OrderID: bid.ID(), Price: bid.Price(), Quantity: quantity},
				Ask: TradeInfo{OrderID: ask.ID(), Price: ask.Price(), Quantity: quantity},
			})

			if bid.IsFilled() {
				bidLevel.remove(ob.orders[bid.ID()].location)
				delete(ob.orders, bid.ID())
			}
			if ask.IsFilled() {
				askLevel.remove(ob.orders[ask.ID()].location)
				delete(ob.orders, ask.ID())
			}
		}

		if bidLevel.empty() {
			ob.bids.delete(bidLevel.price)
		}
		if askLevel.empty() {
			ob.asks.delete(askLevel.price)
		}
	}

	// Fill-and-kill orders never rest. This looks at whatever order now heads
	// each side, which is not necessarily the one just submitted.
	if level, ok := ob.bids.best(); ok {
		if head := level.front(); head.Type() == TypeFillAndKill {
			ob.CancelOrder(head.ID())
		}
	}
	if level, ok := ob.asks.best(); ok {
		if head := level.front(); head.Type() == TypeFillAndKill {
			ob.CancelOrder(head.ID())
		}
	}

	return trades
}

// mustFill panics on an overfill: the quantity accounting of the matching
// loop is broken and the book can no longer be trusted.
func mustFill(order *Order, quantity Quantity) {
	if err := order.Fill(quantity); err != nil {
		panic(err)
	}
}

// GetOrderInfos aggregates the remaining quantity of every level on both sides.
func (ob *Orderbook) GetOrderInfos() OrderbookLevelInfos {
	return ob.Depth(-1)
}

// Depth is GetOrderInfos limited to the best n levels per side; n < 0 means all.
func (ob *Orderbook) Depth(n int) OrderbookLevelInfos {
	return OrderbookLevelInfos{
		Bids: ob.bids.infos(n),
		Asks: ob.asks.infos(n),
	}
}

// Size is the number of resting orders.
func (ob *Orderbook) Size() int {
	return len(ob.orders)
}

// Order returns a copy of a resting order.
func (ob *Orderbook) Order(id OrderID) (Order, bool) {
	entry, exists := ob.orders[id]
	if !exists {
		return Order{}, false
	}
	return *entry.order, true
}

func (ob *Orderbook) BestBid() (Price, bool) {
	level, ok := ob.bids.best()
	if !ok {
		return 0, false
	}
	return level.price, true
}

func (ob *Orderbook) BestAsk() (Price, bool) {
	level, ok := ob.asks.best()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// LevelCount returns the number of price levels on a side.
func (ob *Orderbook) LevelCount(side Side) int {
	return ob.side(side).len()
}

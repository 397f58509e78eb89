package engine

// TradeInfo is one leg of a match, reported at the order's own limit price.
type TradeInfo struct {
	OrderID  OrderID
	Price    Price
	Quantity Quantity
}

type Trade struct {
	Bid TradeInfo
	Ask TradeInfo
}

type Trades []Trade

// QuantityFor sums the matched quantity of every leg belonging to id.
func (ts Trades) QuantityFor(id OrderID) Quantity {
	var total Quantity
	for _, t := range ts {
		if t.Bid.OrderID == id {
			total += t.Bid.Quantity
		}
		if t.Ask.OrderID == id {
			total += t.Ask.Quantity
		}
	}
	return total
}

type LevelInfo struct {
	Price    Price
	Quantity Quantity
}

type LevelInfos []LevelInfo

// OrderbookLevelInfos is a detached, aggregated view of both sides.
// Bids are ordered best (highest) first, asks best (lowest) first.
type OrderbookLevelInfos struct {
	Bids LevelInfos
	Asks LevelInfos
}

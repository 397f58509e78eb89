package engine

import (
	"container/list"

	"github.com/google/btree"
)

const levelTreeDegree = 32

// priceLevel is the FIFO of resting orders at one price on one side.
// Elements hold *Order; the front is the earliest arrival.
type priceLevel struct {
	price  Price
	orders *list.List
}

func newPriceLevel(price Price) *priceLevel {
	return &priceLevel{price: price, orders: list.New()}
}

func (l *priceLevel) pushBack(order *Order) *list.Element {
	return l.orders.PushBack(order)
}

func (l *priceLevel) front() *Order {
	e := l.orders.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Order)
}

func (l *priceLevel) remove(e *list.Element) {
	l.orders.Remove(e)
}

func (l *priceLevel) empty() bool {
	return l.orders.Len() == 0
}

func (l *priceLevel) totalQuantity() Quantity {
	var total Quantity
	for e := l.orders.Front(); e != nil; e = e.Next() {
		total += e.Value.(*Order).RemainingQuantity()
	}
	return total
}

// levelIndex orders the levels of one side so that Min is always the best
// price: descending for bids, ascending for asks.
type levelIndex struct {
	tree *btree.BTreeG[*priceLevel]
}

func newLevelIndex(side Side) *levelIndex {
	less := func(a, b *priceLevel) bool { return a.price < b.price }
	if side == SideBuy {
		less = func(a, b *priceLevel) bool { return a.price > b.price }
	}
	return &levelIndex{tree: btree.NewG(levelTreeDegree, less)}
}

func (ix *levelIndex) len() int {
	return ix.tree.Len()
}

func (ix *levelIndex) best() (*priceLevel, bool) {
	return ix.tree.Min()
}

func (ix *levelIndex) get(price Price) (*priceLevel, bool) {
	return ix.tree.Get(&priceLevel{price: price})
}

func (ix *levelIndex) getOrCreate(price Price) *priceLevel {
	if level, ok := ix.get(price); ok {
		return level
	}
	level := newPriceLevel(price)
	ix.tree.ReplaceOrInsert(level)
	return level
}

func (ix *levelIndex) delete(price Price) {
	ix.tree.Delete(&priceLevel{price: price})
}

// ascend walks levels from best to worst until fn returns false.
func (ix *levelIndex) ascend(fn func(level *priceLevel) bool) {
	ix.tree.Ascend(fn)
}

func (ix *levelIndex) infos(limit int) LevelInfos {
	n := ix.tree.Len()
	if limit >= 0 && limit < n {
		n = limit
	}
	infos := make(LevelInfos, 0, n)
	ix.ascend(func(level *priceLevel) bool {
		if len(infos) == n {
			return false
		}
		infos = append(infos, LevelInfo{Price: level.price, Quantity: level.totalQuantity()})
		return true
	})
	return infos
}

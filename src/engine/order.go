package engine

import "strconv"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderType string

const (
	TypeGoodTillCancelled OrderType = "GTC"
	TypeFillAndKill       OrderType = "FAK"
)

func (t OrderType) Valid() bool {
	return t == TypeGoodTillCancelled || t == TypeFillAndKill
}

// Price is a limit price in integer ticks.
type Price int32

type Quantity uint32

type OrderID uint64

func (id OrderID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Order is owned by the book once submitted. Only Fill mutates it.
type Order struct {
	id                OrderID
	side              Side
	orderType         OrderType
	price             Price
	initialQuantity   Quantity
	remainingQuantity Quantity
}

func NewOrder(orderType OrderType, id OrderID, side Side, price Price, quantity Quantity) *Order {
	return &Order{
		id:                id,
		side:              side,
		orderType:         orderType,
		price:             price,
		initialQuantity:   quantity,
		remainingQuantity: quantity,
	}
}

func (o *Order) ID() OrderID                 { return o.id }
func (o *Order) Side() Side                  { return o.side }
func (o *Order) Type() OrderType             { return o.orderType }
func (o *Order) Price() Price                { return o.price }
func (o *Order) InitialQuantity() Quantity   { return o.initialQuantity }
func (o *Order) RemainingQuantity() Quantity { return o.remainingQuantity }

func (o *Order) FilledQuantity() Quantity {
	return o.initialQuantity - o.remainingQuantity
}

func (o *Order) IsFilled() bool {
	return o.remainingQuantity == 0
}

// Fill reduces the remaining quantity. Asking for more than remains is a
// bookkeeping bug in the caller and leaves the order untouched.
func (o *Order) Fill(quantity Quantity) error {
	if quantity > o.remainingQuantity {
		return &FillError{
			OrderID:   o.id,
			Requested: quantity,
			Remaining: o.remainingQuantity,
		}
	}
	o.remainingQuantity -= quantity
	return nil
}

// OrderModify carries the replacement parameters for a resting order.
type OrderModify struct {
	ID       OrderID
	Side     Side
	Price    Price
	Quantity Quantity
}

// ToOrder builds the replacement order; the type is kept from the original.
func (m OrderModify) ToOrder(orderType OrderType) *Order {
	return NewOrder(orderType, m.ID, m.Side, m.Price, m.Quantity)
}

type FillError struct {
	OrderID   OrderID
	Requested Quantity
	Remaining Quantity
}

func (e *FillError) Error() string {
	return "fill quantity " + strconv.FormatUint(uint64(e.Requested), 10) +
		" exceeds remaining quantity " + strconv.FormatUint(uint64(e.Remaining), 10) +
		" for order " + e.OrderID.String()
}

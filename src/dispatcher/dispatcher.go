// Package dispatcher serializes access to a single engine.Orderbook.
//
// Every operation is sent as a command to one goroutine (Run), which is the
// only code that touches the book. Commands are journaled before they are
// applied, and executed trades are published after the command returns.
package dispatcher

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"orderbook-engine/src/engine"
	"orderbook-engine/src/journal"
	"orderbook-engine/src/metrics"
)

var (
	ErrClosed       = errors.New("dispatcher closed")
	ErrFaulted      = errors.New("dispatcher faulted")
	ErrInvalidOrder = errors.New("invalid order")
	ErrRunning      = errors.New("dispatcher already running")
)

// FaultError reports the panic that stopped the command loop. It matches
// ErrFaulted with errors.Is.
type FaultError struct {
	Command string
	Cause   error
}

func (e *FaultError) Error() string {
	return "dispatcher faulted during " + e.Command + ": " + e.Cause.Error()
}

func (e *FaultError) Unwrap() error { return e.Cause }

func (e *FaultError) Is(target error) bool { return target == ErrFaulted }

type Status string

const (
	StatusAccepted    Status = "ACCEPTED"
	StatusPartialFill Status = "PARTIAL_FILL"
	StatusFilled      Status = "FILLED"
	StatusKilled      Status = "KILLED"
	StatusDuplicate   Status = "DUPLICATE"
	StatusNotFound    Status = "NOT_FOUND"
)

// OrderRequest describes a new order. A zero ID asks the dispatcher to assign one.
type OrderRequest struct {
	ID       engine.OrderID
	Type     engine.OrderType
	Side     engine.Side
	Price    engine.Price
	Quantity engine.Quantity
}

func (r OrderRequest) validate() error {
	switch {
	case !r.Type.Valid():
		return errors.Wrapf(ErrInvalidOrder, "unknown order type %q", r.Type)
	case !r.Side.Valid():
		return errors.Wrapf(ErrInvalidOrder, "unknown side %q", r.Side)
	case r.Quantity == 0:
		return errors.Wrap(ErrInvalidOrder, "quantity must be positive")
	}
	return nil
}

// Result is the outcome of a submit or modify. Remaining is what was left
// unfilled; for KILLED it was discarded rather than rested.
type Result struct {
	OrderID   engine.OrderID
	Status    Status
	Filled    engine.Quantity
	Remaining engine.Quantity
	Trades    engine.Trades
}

type BookStats struct {
	Resting   int
	BidLevels int
	AskLevels int
	BestBid   *engine.Price
	BestAsk   *engine.Price
}

// Journal is satisfied by *journal.Journal.
type Journal interface {
	Append(rec *journal.Record) error
}

// Publisher is satisfied by *publisher.Publisher.
type Publisher interface {
	Publish(ctx context.Context, trades engine.Trades) error
}

type Options struct {
	QueueSize int
	Journal   Journal
	Publisher Publisher
	Metrics   *metrics.Recorder
	// PublishTimeout bounds each trade publish. Defaults to 5s.
	PublishTimeout time.Duration
}

const (
	commandPending int32 = iota
	commandStarted
	commandAbandoned
)

type command struct {
	name   string
	fn     func() error
	result chan error
	// pending until either the loop starts it or the caller gives up on it
	state atomic.Int32
}

type Dispatcher struct {
	book      *engine.Orderbook
	commands  chan *command
	done      chan struct{}
	running   atomic.Bool
	fault     atomic.Pointer[FaultError]
	journal   Journal
	publisher Publisher
	metrics   *metrics.Recorder

	publishTimeout time.Duration

	// owned by the loop
	lastID engine.OrderID
}

func New(opts Options) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = 1024
	}
	publishTimeout := opts.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &Dispatcher{
		book:           engine.New(),
		commands:       make(chan *command, size),
		done:           make(chan struct{}),
		journal:        opts.Journal,
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
		publishTimeout: publishTimeout,
	}
}

// Run consumes commands until ctx is cancelled. It may be called only once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(d.done)

	log.Info().
		Int("resting_orders", d.book.Size()).
		Uint64("last_order_id", uint64(d.lastID)).
		Msg("Dispatcher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Dispatcher stopped")
			return nil
		case cmd := <-d.commands:
			if !cmd.state.CompareAndSwap(commandPending, commandStarted) {
				continue
			}
			cmd.result <- d.apply(cmd)
		}
	}
}

func (d *Dispatcher) apply(cmd *command) error {
	start := time.Now()
	err := d.guard(cmd.name, cmd.fn)
	if d.metrics != nil && !errors.Is(err, ErrFaulted) {
		d.metrics.ObserveCommand(cmd.name, time.Since(start))
	}
	return err
}

// guard runs fn unless the dispatcher has faulted, turning a panic into a
// FaultError that every later command will see.
func (d *Dispatcher) guard(name string, fn func() error) (err error) {
	if fault := d.fault.Load(); fault != nil {
		return fault
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause, ok := r.(error)
		if !ok {
			cause = errors.New(fmt.Sprint(r))
		}
		fault := &FaultError{Command: name, Cause: cause}
		d.fault.CompareAndSwap(nil, fault)
		log.Error().
			Err(cause).
			Str("command", name).
			Msg("Order book invariant violated, refusing further commands")
		err = d.fault.Load()
	}()

	return fn()
}

// exec runs fn on the loop and waits for it. If ctx ends before the loop
// picks the command up, the command is withdrawn and ctx.Err() returned.
// Once the loop has started it, exec waits for the outcome regardless of
// ctx, so a ctx error always means fn did not run.
func (d *Dispatcher) exec(ctx context.Context, name string, fn func() error) error {
	if fault := d.fault.Load(); fault != nil {
		return fault
	}

	cmd := &command{name: name, fn: fn, result: make(chan error, 1)}
	select {
	case d.commands <- cmd:
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		return err
	case <-d.done:
	case <-ctx.Done():
	}

	if cmd.state.CompareAndSwap(commandPending, commandAbandoned) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrClosed
	}
	// already started, the loop always answers
	return <-cmd.result
}

func (d *Dispatcher) Submit(ctx context.Context, req OrderRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	var res Result
	err := d.exec(ctx, "add", func() error {
		id := req.ID
		if id == 0 {
			if d.lastID == math.MaxUint64 {
				return errors.Wrap(ErrInvalidOrder, "order ids exhausted")
			}
			id = d.lastID + 1
		}
		if _, exists := d.book.Order(id); exists {
			res = Result{OrderID: id, Status: StatusDuplicate, Remaining: req.Quantity}
			d.recordOutcome(res)
			return nil
		}

		order := engine.NewOrder(req.Type, id, req.Side, req.Price, req.Quantity)
		if err := d.record(journal.AddRecord(order)); err != nil {
			return err
		}
		d.observeID(id)
		if d.metrics != nil {
			d.metrics.OrderReceived(req.Type, req.Side)
		}

		res = d.resultFor(id, req.Quantity, d.book.AddOrder(order))
		d.recordOutcome(res)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	log.Debug().
		Uint64("order_id", uint64(res.OrderID)).
		Str("status", string(res.Status)).
		Int("trades", len(res.Trades)).
		Msg("Order processed")

	d.publish(ctx, res.Trades)
	return res, nil
}

// Cancel reports whether id was resting. Unknown ids are not journaled.
func (d *Dispatcher) Cancel(ctx context.Context, id engine.OrderID) (bool, error) {
	var found bool
	err := d.exec(ctx, "cancel", func() error {
		if _, exists := d.book.Order(id); !exists {
			return nil
		}
		if err := d.record(journal.CancelRecord(id)); err != nil {
			return err
		}
		d.book.CancelOrder(id)
		found = true
		if d.metrics != nil {
			d.metrics.OrderCancelled()
		}
		d.observeBook()
		return nil
	})
	return found, err
}

// Modify replaces a resting order. The replacement keeps the original type
// and loses its time priority.
func (d *Dispatcher) Modify(ctx context.Context, modify engine.OrderModify) (Result, error) {
	switch {
	case !modify.Side.Valid():
		return Result{}, errors.Wrapf(ErrInvalidOrder, "unknown side %q", modify.Side)
	case modify.Quantity == 0:
		return Result{}, errors.Wrap(ErrInvalidOrder, "quantity must be positive")
	}

	var res Result
	err := d.exec(ctx, "modify", func() error {
		if _, exists := d.book.Order(modify.ID); !exists {
			res = Result{OrderID: modify.ID, Status: StatusNotFound}
			return nil
		}
		if err := d.record(journal.ModifyRecord(modify)); err != nil {
			return err
		}
		res = d.resultFor(modify.ID, modify.Quantity, d.book.ModifyOrder(modify))
		d.recordOutcome(res)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	d.publish(ctx, res.Trades)
	return res, nil
}

func (d *Dispatcher) Order(ctx context.Context, id engine.OrderID) (engine.Order, bool, error) {
	var (
		order engine.Order
		found bool
	)
	err := d.exec(ctx, "order", func() error {
		order, found = d.book.Order(id)
		return nil
	})
	return order, found, err
}

// Depth returns the best n levels per side; n < 0 returns every level.
func (d *Dispatcher) Depth(ctx context.Context, n int) (engine.OrderbookLevelInfos, error) {
	var infos engine.OrderbookLevelInfos
	err := d.exec(ctx, "depth", func() error {
		infos = d.book.Depth(n)
		return nil
	})
	return infos, err
}

func (d *Dispatcher) Stats(ctx context.Context) (BookStats, error) {
	var stats BookStats
	err := d.exec(ctx, "stats", func() error {
		stats = BookStats{
			Resting:   d.book.Size(),
			BidLevels: d.book.LevelCount(engine.SideBuy),
			AskLevels: d.book.LevelCount(engine.SideSell),
		}
		if price, ok := d.book.BestBid(); ok {
			stats.BestBid = &price
		}
		if price, ok := d.book.BestAsk(); ok {
			stats.BestAsk = &price
		}
		return nil
	})
	return stats, err
}

// Replay applies one journaled command directly to the book. It is meant
// for start-up recovery and fails once Run has been called. A record that
// breaks a book invariant faults the dispatcher like a live command would.
func (d *Dispatcher) Replay(rec journal.Record) error {
	if d.running.Load() {
		return ErrRunning
	}

	return d.guard("replay "+string(rec.Kind), func() error {
		switch rec.Kind {
		case journal.KindAdd:
			d.book.AddOrder(engine.NewOrder(rec.Type, rec.OrderID, rec.Side, rec.Price, rec.Quantity))
			d.observeID(rec.OrderID)
		case journal.KindCancel:
			d.book.CancelOrder(rec.OrderID)
		case journal.KindModify:
			d.book.ModifyOrder(engine.OrderModify{
				ID:       rec.OrderID,
				Side:     rec.Side,
				Price:    rec.Price,
				Quantity: rec.Quantity,
			})
		default:
			return errors.Errorf("journal record %d has unknown kind %q", rec.Seq, rec.Kind)
		}

		d.observeBook()
		return nil
	})
}

func (d *Dispatcher) resultFor(id engine.OrderID, quantity engine.Quantity, trades engine.Trades) Result {
	res := Result{OrderID: id, Trades: trades}

	if resting, ok := d.book.Order(id); ok {
		res.Remaining = resting.RemainingQuantity()
		res.Filled = quantity - res.Remaining
		res.Status = StatusAccepted
		if res.Filled > 0 {
			res.Status = StatusPartialFill
		}
	} else {
		res.Filled = trades.QuantityFor(id)
		res.Remaining = quantity - res.Filled
		res.Status = StatusFilled
		if res.Remaining > 0 {
			res.Status = StatusKilled
		}
	}

	if d.metrics != nil {
		d.metrics.TradesExecuted(trades)
	}
	d.observeBook()
	return res
}

func (d *Dispatcher) record(rec *journal.Record) error {
	if d.journal == nil {
		return nil
	}
	return errors.Wrapf(d.journal.Append(rec), "journal %s for order %d", rec.Kind, rec.OrderID)
}

func (d *Dispatcher) observeID(id engine.OrderID) {
	if id > d.lastID {
		d.lastID = id
	}
}

func (d *Dispatcher) observeBook() {
	if d.metrics == nil {
		return
	}
	d.metrics.BookState(d.book.Size(), d.book.LevelCount(engine.SideBuy), d.book.LevelCount(engine.SideSell))
}

func (d *Dispatcher) recordOutcome(res Result) {
	if d.metrics != nil {
		d.metrics.OrderOutcome(string(res.Status), res.Filled > 0)
	}
}

// publish never fails the caller; the trades already happened. It detaches
// from ctx so a request that timed out while its command ran still
// publishes.
func (d *Dispatcher) publish(ctx context.Context, trades engine.Trades) {
	if d.publisher == nil || len(trades) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(ctx, trades); err != nil {
		log.Error().
			Err(err).
			Int("trades", len(trades)).
			Msg("Failed to publish trades")
	}
}

// Package journal persists the command stream that mutated the order book so
// the book can be rebuilt by replaying it into a fresh engine. The engine is
// deterministic, so replaying the same commands yields the same book.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"

	"orderbook-engine/src/engine"
)

type Kind string

const (
	KindAdd    Kind = "add"
	KindCancel Kind = "cancel"
	KindModify Kind = "modify"
)

type Record struct {
	Seq      uint64           `json:"seq"`
	Kind     Kind             `json:"kind"`
	OrderID  engine.OrderID   `json:"order_id"`
	Type     engine.OrderType `json:"type,omitempty"`
	Side     engine.Side      `json:"side,omitempty"`
	Price    engine.Price     `json:"price,omitempty"`
	Quantity engine.Quantity  `json:"quantity,omitempty"`
	Time     int64            `json:"time"`
}

func AddRecord(order *engine.Order) *Record {
	return &Record{
		Kind:     KindAdd,
		OrderID:  order.ID(),
		Type:     order.Type(),
		Side:     order.Side(),
		Price:    order.Price(),
		Quantity: order.InitialQuantity(),
	}
}

func CancelRecord(id engine.OrderID) *Record {
	return &Record{Kind: KindCancel, OrderID: id}
}

func ModifyRecord(modify engine.OrderModify) *Record {
	return &Record{
		Kind:     KindModify,
		OrderID:  modify.ID,
		Side:     modify.Side,
		Price:    modify.Price,
		Quantity: modify.Quantity,
	}
}

type Options struct {
	Dir string
	// InMemory keeps everything in a pebble memory filesystem; Dir is ignored.
	InMemory bool
	// Sync fsyncs every append.
	Sync bool
}

type Journal struct {
	db      *pebble.DB
	write   *pebble.WriteOptions
	mu      sync.Mutex
	lastSeq uint64
}

var keyPrefix = []byte("cmd/")

func keyFor(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

func seqFromKey(key []byte) (uint64, error) {
	if len(key) != len(keyPrefix)+8 {
		return 0, errors.Errorf("malformed journal key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(keyPrefix):]), nil
}

// Open opens (or creates) a journal and resumes sequencing after its last record.
func Open(opts Options) (*Journal, error) {
	pebbleOpts := &pebble.Options{}
	dir := opts.Dir
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		dir = "journal"
	} else if dir == "" {
		return nil, errors.New("journal directory is required")
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %q", opts.Dir)
	}

	j := &Journal{db: db, write: pebble.NoSync}
	if opts.Sync {
		j.write = pebble.Sync
	}

	last, err := j.findLastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.lastSeq = last
	return j, nil
}

func (j *Journal) findLastSeq() (uint64, error) {
	iter, err := j.db.NewIter(j.iterOptions())
	if err != nil {
		return 0, errors.Wrap(err, "scan journal")
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, errors.Wrap(iter.Error(), "scan journal")
	}
	return seqFromKey(iter.Key())
}

func (j *Journal) iterOptions() *pebble.IterOptions {
	upper := append([]byte{}, keyPrefix...)
	upper[len(upper)-1]++
	return &pebble.IterOptions{LowerBound: keyPrefix, UpperBound: upper}
}

// Append stores rec under the next sequence number, filling in Seq and Time.
func (j *Journal) Append(rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec.Seq = j.lastSeq + 1
	if rec.Time == 0 {
		rec.Time = time.Now().UnixNano()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode journal record")
	}
	if err := j.db.Set(keyFor(rec.Seq), data, j.write); err != nil {
		return errors.Wrapf(err, "append journal record %d", rec.Seq)
	}
	j.lastSeq = rec.Seq
	return nil
}

// Replay calls fn for every record in sequence order and stops at the first error.
func (j *Journal) Replay(fn func(Record) error) error {
	iter, err := j.db.NewIter(j.iterOptions())
	if err != nil {
		return errors.Wrap(err, "open journal iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return errors.Wrapf(err, "decode journal record at key %q", iter.Key())
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iterate journal")
}

func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

func (j *Journal) Close() error {
	return errors.Wrap(j.db.Close(), "close journal")
}

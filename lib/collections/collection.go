package collections

import (
	"slices"

	"github.com/ValentinKolb/kstore/lib/codec"
	"github.com/ValentinKolb/kstore/lib/storage"
)

// pageRecords is the number of records an iterator reads per backend call
const pageRecords = 4096

// Collection is a typed, append oriented, persistent sequence of records.
//
// Thread-safety: a Collection is not safe for concurrent use. Writers that
// share a collection must serialize their calls (see lockmgr and cache).
type Collection[T comparable] interface {
	// Name returns the name of the collection inside its product
	Name() string

	// Insert appends one record to the pending state. The record is neither
	// durable nor counted before Flush. If an error is returned the record
	// was not accepted.
	Insert(item T) error

	// InsertAll appends records in order. Either all records are accepted or,
	// if an error is returned, none of them.
	InsertAll(items []T) error

	// Flush makes all accepted records durable and counted. If it fails,
	// pending records are kept for the next Flush and NbItems still reports
	// the records durable before the failure.
	Flush() error

	// NbItems returns the number of durable records
	NbItems() uint64

	// Iterator returns a new cursor over the records durable at the time of the call
	Iterator() Iterator[T]

	// Remove deletes the records physically. Any later call fails with ResourceGone.
	Remove() error
}

// --------------------------------------------------------------------------
// Implementation
// --------------------------------------------------------------------------

type collectionImpl[T comparable] struct {
	product *Product
	id      storage.DatasetID
	codec   codec.Codec[T]
	ds      storage.Dataset
	pending []byte // encoded records not yet handed to the dataset
	removed bool
}

func newCollection[T comparable](p *Product, id storage.DatasetID, c codec.Codec[T], ds storage.Dataset) *collectionImpl[T] {
	return &collectionImpl[T]{
		product: p,
		id:      id,
		codec:   c,
		ds:      ds,
	}
}

func (c *collectionImpl[T]) usable() error {
	if c.removed {
		return storage.ResourceGone("collection %s was removed", c.id)
	}
	return c.product.usable()
}

func (c *collectionImpl[T]) Name() string {
	return c.id.String()
}

func (c *collectionImpl[T]) Insert(item T) error {
	if err := c.usable(); err != nil {
		return err
	}

	start := len(c.pending)
	size := c.codec.Size()
	c.pending = slices.Grow(c.pending, size)[:start+size]
	if err := c.codec.Encode(c.pending[start:], item); err != nil {
		c.pending = c.pending[:start]
		return err
	}
	return c.accept(start, 1)
}

func (c *collectionImpl[T]) InsertAll(items []T) error {
	if err := c.usable(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	start := len(c.pending)
	size := c.codec.Size()
	c.pending = slices.Grow(c.pending, len(items)*size)[:start+len(items)*size]
	for i, item := range items {
		off := start + i*size
		if err := c.codec.Encode(c.pending[off:off+size], item); err != nil {
			c.pending = c.pending[:start]
			return err
		}
	}
	return c.accept(start, len(items))
}

// accept hands the pending records to the dataset once they exceed the
// pending limit. If that fails, the records encoded from start on are dropped
// again so the caller sees an all or nothing insert.
func (c *collectionImpl[T]) accept(start, n int) error {
	if len(c.pending) >= c.product.opts.PendingLimit {
		if err := c.ds.Append(c.pending); err != nil {
			c.pending = c.pending[:start]
			ioErrors.Inc()
			return err
		}
		spills.Inc()
		appendedBytes.Add(len(c.pending))
		c.pending = c.pending[:0]
	}
	insertedRecords.Add(n)
	return nil
}

func (c *collectionImpl[T]) Flush() error {
	if err := c.usable(); err != nil {
		return err
	}

	if len(c.pending) > 0 {
		if err := c.ds.Append(c.pending); err != nil {
			ioErrors.Inc()
			return err
		}
		appendedBytes.Add(len(c.pending))
		c.pending = c.pending[:0]
	}

	// appended records stay in the dataset if Sync fails, the next Flush syncs them
	if err := c.ds.Sync(); err != nil {
		ioErrors.Inc()
		return err
	}
	flushes.Inc()
	return nil
}

func (c *collectionImpl[T]) NbItems() uint64 {
	if c.usable() != nil {
		return 0
	}
	return c.ds.Count()
}

func (c *collectionImpl[T]) Iterator() Iterator[T] {
	if err := c.usable(); err != nil {
		return newErrIterator[T](err)
	}
	return &datasetIterator[T]{
		c:    c,
		end:  c.ds.Count(),
		done: true,
	}
}

func (c *collectionImpl[T]) Remove() error {
	if c.removed || c.product.removed.Load() {
		c.removed = true
		return nil
	}

	c.product.mu.Lock()
	defer c.product.mu.Unlock()

	if err := c.ds.Remove(); err != nil {
		return err
	}
	c.removed = true
	c.pending = nil
	if !c.id.IsMember() {
		c.product.entries.Delete(c.id.Name)
	}
	log.Debugf("removed collection %s of product %s", c.id, c.product.name)
	return nil
}

// pendingRecords returns the number of accepted records not yet handed to the dataset
func (c *collectionImpl[T]) pendingRecords() int {
	return len(c.pending) / c.codec.Size()
}

// --------------------------------------------------------------------------
// Dataset Iterator
// --------------------------------------------------------------------------

// datasetIterator reads the durable records of a collection page by page
type datasetIterator[T comparable] struct {
	c         *collectionImpl[T]
	end       uint64 // durable records when the iterator was created
	pos       uint64
	page      []T
	pageStart uint64
	buf       []byte
	done      bool
	closed    bool
	err       error
}

func (it *datasetIterator[T]) First() {
	it.pos = 0
	it.err = nil
	it.page = it.page[:0]
	it.pageStart = 0
	it.load()
}

func (it *datasetIterator[T]) Next() {
	if it.done {
		return
	}
	it.pos++
	it.load()
}

// load makes the record at pos available, reading the next page if needed
func (it *datasetIterator[T]) load() {
	it.done = true
	if it.closed || it.pos >= it.end {
		return
	}
	if err := it.c.usable(); err != nil {
		it.err = err
		return
	}
	if it.pos >= it.pageStart && it.pos < it.pageStart+uint64(len(it.page)) {
		it.done = false
		return
	}

	size := it.c.codec.Size()
	n := min(uint64(pageRecords), it.end-it.pos)
	if cap(it.buf) < int(n)*size {
		it.buf = make([]byte, int(n)*size)
	}
	buf := it.buf[:int(n)*size]

	read, err := it.c.ds.ReadAt(buf, it.pos)
	if err != nil {
		it.err = err
		return
	}
	if read == 0 {
		return
	}

	page, err := codec.DecodeAll(it.c.codec, buf[:read*size])
	if err != nil {
		it.err = storage.IOFailure(err, "decode %s at record %d", it.c.id, it.pos)
		return
	}
	it.page = page
	it.pageStart = it.pos
	it.done = false
}

func (it *datasetIterator[T]) IsDone() bool {
	return it.done
}

func (it *datasetIterator[T]) Item() T {
	if it.done {
		var zero T
		return zero
	}
	return it.page[it.pos-it.pageStart]
}

func (it *datasetIterator[T]) Err() error {
	return it.err
}

func (it *datasetIterator[T]) Close() error {
	it.closed = true
	it.done = true
	it.page = nil
	it.buf = nil
	return nil
}

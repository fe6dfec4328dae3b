package collections

import (
	"iter"
)

// Iterator is a lazy, forward only cursor over a finite sequence of items.
//
//	it := col.Iterator()
//	defer it.Close()
//	for it.First(); !it.IsDone(); it.Next() {
//		use(it.Item())
//	}
//	if err := it.Err(); err != nil { ... }
//
// First (re)starts the iteration and must be called before the other methods.
type Iterator[T any] interface {
	// First positions the cursor on the first item
	First()
	// Next advances the cursor by one item
	Next()
	// IsDone reports whether the cursor moved past the last item (or failed)
	IsDone() bool
	// Item returns the current item, only valid while !IsDone()
	Item() T
	// Err returns the error that ended the iteration early, if any
	Err() error
	// Close releases the resources of the iterator. It is safe to call more than once.
	Close() error
}

// All adapts an iterator to a range over func. Errors are reported by it.Err().
func All[T any](it Iterator[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for it.First(); !it.IsDone(); it.Next() {
			if !yield(it.Item()) {
				return
			}
		}
	}
}

// Collect reads all items of an iterator and closes it
func Collect[T any](it Iterator[T]) ([]T, error) {
	defer it.Close()
	var items []T
	for item := range All(it) {
		items = append(items, item)
	}
	return items, it.Err()
}

// --------------------------------------------------------------------------
// Slice Iterator
// --------------------------------------------------------------------------

type sliceIterator[T any] struct {
	items   []T
	pos     int
	started bool
}

// NewSliceIterator iterates over the items of a slice
func NewSliceIterator[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

func (it *sliceIterator[T]) First() {
	it.started = true
	it.pos = 0
}

func (it *sliceIterator[T]) Next() {
	it.pos++
}

func (it *sliceIterator[T]) IsDone() bool {
	return !it.started || it.pos >= len(it.items)
}

func (it *sliceIterator[T]) Item() T {
	if it.IsDone() {
		var zero T
		return zero
	}
	return it.items[it.pos]
}

func (it *sliceIterator[T]) Err() error { return nil }

func (it *sliceIterator[T]) Close() error {
	it.items = nil
	return nil
}

// --------------------------------------------------------------------------
// Range Iterator
// --------------------------------------------------------------------------

type rangeIterator struct {
	begin, end uint64
	cur        uint64
	done       bool
}

// NewRangeIterator iterates over begin..end, both inclusive.
// The range is empty if begin > end.
func NewRangeIterator(begin, end uint64) Iterator[uint64] {
	return &rangeIterator{begin: begin, end: end, done: true}
}

func (it *rangeIterator) First() {
	it.cur = it.begin
	it.done = it.begin > it.end
}

func (it *rangeIterator) Next() {
	if it.done || it.cur == it.end {
		it.done = true
		return
	}
	it.cur++
}

func (it *rangeIterator) IsDone() bool { return it.done }

func (it *rangeIterator) Item() uint64 { return it.cur }

func (it *rangeIterator) Err() error { return nil }

func (it *rangeIterator) Close() error { return nil }

// --------------------------------------------------------------------------
// Chain Iterator
// --------------------------------------------------------------------------

type chainIterator[T any] struct {
	its []Iterator[T]
	cur int
	err error
}

// NewChainIterator iterates over the items of all given iterators, one after the other.
// Closing the chain closes all of them.
func NewChainIterator[T any](its ...Iterator[T]) Iterator[T] {
	return &chainIterator[T]{its: its, cur: len(its)}
}

// skip moves to the next iterator that has an item, starting with the current one
func (it *chainIterator[T]) skip() {
	for it.cur < len(it.its) && it.its[it.cur].IsDone() {
		if err := it.its[it.cur].Err(); err != nil {
			it.err = err
			it.cur = len(it.its)
			return
		}
		it.cur++
		if it.cur < len(it.its) {
			it.its[it.cur].First()
		}
	}
}

func (it *chainIterator[T]) First() {
	it.err = nil
	it.cur = 0
	if len(it.its) > 0 {
		it.its[0].First()
	}
	it.skip()
}

func (it *chainIterator[T]) Next() {
	if it.IsDone() {
		return
	}
	it.its[it.cur].Next()
	it.skip()
}

func (it *chainIterator[T]) IsDone() bool {
	return it.cur >= len(it.its)
}

func (it *chainIterator[T]) Item() T {
	if it.IsDone() {
		var zero T
		return zero
	}
	return it.its[it.cur].Item()
}

func (it *chainIterator[T]) Err() error {
	return it.err
}

func (it *chainIterator[T]) Close() error {
	var first error
	for _, sub := range it.its {
		if err := sub.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// --------------------------------------------------------------------------
// Error Iterator
// --------------------------------------------------------------------------

type errIterator[T any] struct {
	err error
}

// newErrIterator returns an empty iterator that reports err
func newErrIterator[T any](err error) Iterator[T] {
	return &errIterator[T]{err: err}
}

func (it *errIterator[T]) First()       {}
func (it *errIterator[T]) Next()        {}
func (it *errIterator[T]) IsDone() bool { return true }
func (it *errIterator[T]) Item() T {
	var zero T
	return zero
}
func (it *errIterator[T]) Err() error   { return it.err }
func (it *errIterator[T]) Close() error { return nil }

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kstore/lib/collections"
	"github.com/ValentinKolb/kstore/lib/util"
	"github.com/alitto/pond/v2"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("dispatch")

// DefaultGroupSize is the number of items handed to a worker at once
const DefaultGroupSize = 1000

// Options configures a dispatcher
type Options struct {
	Workers   int // number of worker goroutines (0 = number of cores)
	GroupSize int // items per batch handed to a worker (0 = DefaultGroupSize)
}

// DefaultOptions returns the default dispatcher options
func DefaultOptions() *Options {
	return &Options{
		Workers:   util.NbCores(),
		GroupSize: DefaultGroupSize,
	}
}

// Functor processes the items assigned to one worker
type Functor[T any] interface {
	Process(item T) error
}

// Finisher is implemented by functors that need a final step once their
// worker ran out of items, e.g. flushing a cache
type Finisher interface {
	Finish() error
}

// FunctorFunc adapts a function to a Functor
type FunctorFunc[T any] func(item T) error

// Process calls f(item)
func (f FunctorFunc[T]) Process(item T) error {
	return f(item)
}

// Dispatcher applies functors to the items of an iterator on a fixed number of workers.
//
// Thread-safety: a dispatcher may run several iterations at once, each gets its own pool.
type Dispatcher struct {
	workers   int
	groupSize int

	registry metrics.Registry
	calls    metrics.Counter
	items    metrics.Counter
	failures metrics.Counter
	duration metrics.Histogram // milliseconds per call
	rate     metrics.Histogram // items per second per call
}

// New creates a dispatcher with the specified options (optional)
func New(opts *Options) *Dispatcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	d := &Dispatcher{
		workers:   opts.Workers,
		groupSize: opts.GroupSize,
		registry:  metrics.NewRegistry(),
		calls:     metrics.NewCounter(),
		items:     metrics.NewCounter(),
		failures:  metrics.NewCounter(),
		duration:  metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015)),
		rate:      metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015)),
	}
	if d.workers <= 0 {
		d.workers = util.NbCores()
	}
	if d.groupSize <= 0 {
		d.groupSize = DefaultGroupSize
	}

	_ = d.registry.Register("dispatch.calls", d.calls)
	_ = d.registry.Register("dispatch.items", d.items)
	_ = d.registry.Register("dispatch.failures", d.failures)
	_ = d.registry.Register("dispatch.duration_ms", d.duration)
	_ = d.registry.Register("dispatch.items_per_second", d.rate)
	return d
}

// Workers returns the number of workers per iteration
func (d *Dispatcher) Workers() int {
	return d.workers
}

// GroupSize returns the number of items per batch
func (d *Dispatcher) GroupSize() int {
	return d.groupSize
}

// Registry returns the metrics of all iterations run by this dispatcher
func (d *Dispatcher) Registry() metrics.Registry {
	return d.registry
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Iterate applies a functor to every item of it. newFunctor is called once per
// worker (with the worker number), so every worker owns its functor and may
// keep unsynchronized state in it, like a PartitionCache.
//
// Items are handed out in batches of GroupSize; a worker processes its batches
// in the order it receives them. Iterate blocks until all workers returned.
// The first error of a functor, a Finish call, the iterator or a recovered
// panic stops feeding new items and is returned once all workers are joined.
// Workers that did not fail still run Finish. The iterator is not closed.
func Iterate[T any](d *Dispatcher, it collections.Iterator[T], newFunctor func(worker int) Functor[T]) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		errOnce  sync.Once
		firstErr error
		done     atomic.Int64
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	batches := make(chan []T, d.workers)
	pool := pond.NewPool(d.workers)
	defer pool.StopAndWait()
	group := pool.NewGroup()

	for w := 0; w < d.workers; w++ {
		// errors are reported through fail only, a task error would cancel
		// the group and skip workers that have not started yet
		group.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("dispatch: worker %d panicked: %v", w, r))
				}
			}()
			if err := runWorker(ctx, w, batches, newFunctor, &done); err != nil {
				fail(err)
			}
		})
	}

	feed(ctx, it, batches, d.groupSize, fail)

	_ = group.Wait()

	d.record(time.Since(start), done.Load(), firstErr)
	return firstErr
}

// feed reads the iterator on the calling goroutine and hands batches to the
// workers until the iterator is exhausted or ctx is cancelled. batches is
// closed on every return, a panicking iterator included.
func feed[T any](ctx context.Context, it collections.Iterator[T], batches chan<- []T, groupSize int, fail func(error)) {
	defer close(batches)
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("dispatch: iterator panicked: %v", r))
		}
	}()

	batch := make([]T, 0, groupSize)
	send := func() bool {
		select {
		case batches <- batch:
			batch = make([]T, 0, groupSize)
			return true
		case <-ctx.Done():
			return false
		}
	}

	fed := true
	for it.First(); !it.IsDone() && fed; it.Next() {
		batch = append(batch, it.Item())
		if len(batch) == groupSize {
			fed = send()
		}
	}
	if fed && len(batch) > 0 {
		send()
	}
	if err := it.Err(); err != nil {
		fail(fmt.Errorf("dispatch: iterator: %w", err))
	}
}

// runWorker processes batches until the channel is closed
func runWorker[T any](ctx context.Context, w int, batches <-chan []T, newFunctor func(worker int) Functor[T], done *atomic.Int64) error {
	f := newFunctor(w)
	for batch := range batches {
		if ctx.Err() != nil {
			// another worker failed, drop the remaining batches
			continue
		}
		for _, item := range batch {
			if err := f.Process(item); err != nil {
				return err
			}
		}
		done.Add(int64(len(batch)))
	}
	if fin, ok := f.(Finisher); ok {
		return fin.Finish()
	}
	return nil
}

// IterateRange applies a functor to every value of begin..end (both inclusive)
func IterateRange(d *Dispatcher, begin, end uint64, newFunctor func(worker int) Functor[uint64]) error {
	return Iterate(d, collections.NewRangeIterator(begin, end), newFunctor)
}

// IterateFunc applies fn to every item of it. fn is shared by all workers
// and must be safe for concurrent use.
func IterateFunc[T any](d *Dispatcher, it collections.Iterator[T], fn func(item T) error) error {
	return Iterate(d, it, func(int) Functor[T] {
		return FunctorFunc[T](fn)
	})
}

// record updates the dispatcher metrics after an iteration
func (d *Dispatcher) record(elapsed time.Duration, items int64, err error) {
	d.calls.Inc(1)
	d.items.Inc(items)
	d.duration.Update(elapsed.Milliseconds())
	if secs := elapsed.Seconds(); secs > 0 {
		d.rate.Update(int64(float64(items) / secs))
	}
	if err != nil {
		d.failures.Inc(1)
		log.Warningf("iteration failed after %d items (%s): %v", items, elapsed, err)
		return
	}
	log.Debugf("iterated %d items on %d workers in %s", items, d.workers, elapsed)
}

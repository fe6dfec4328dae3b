/*
Package dispatch runs a functor over the items of an iterator on a pool of
workers.

Every call to Iterate gets its own worker pool (github.com/alitto/pond/v2).
The calling goroutine reads the iterator and hands out batches of GroupSize
items over a channel. Each worker builds its own functor from the factory,
so per-worker state such as a cache.PartitionCache needs no locking of its
own:

	locks := lockmgr.NewLockManager()
	err := dispatch.IterateRange(d, 0, n-1, func(worker int) dispatch.Functor[uint64] {
		return &insertFunctor{cache: cache.New(partition, 1000, locks)}
	})

Functors implementing Finisher get a last call after the iterator is
exhausted, which is where a cache flushes its buffers.

The first error stops the feeding of new batches. Iterate still joins every
worker before it returns that error, so no goroutine outlives the call.
Panics inside a functor are recovered and reported as errors.

Each dispatcher records the number of calls, items, failures, the duration
and the throughput of its iterations in a github.com/rcrowley/go-metrics
registry (see Dispatcher.Registry).
*/
package dispatch

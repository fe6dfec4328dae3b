package cache

import (
	"github.com/ValentinKolb/kstore/lib/collections"
	"github.com/ValentinKolb/kstore/lib/lockmgr"
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("cache")

var (
	bufferedRecords = metrics.GetOrCreateCounter(`kstore_cache_buffered_records_total`)
	drains          = metrics.GetOrCreateCounter(`kstore_cache_drains_total`)
	drainedRecords  = metrics.GetOrCreateCounter(`kstore_cache_drained_records_total`)
)

// PartitionCache buffers inserts per member of a partition and hands them to
// the member in batches of up to capacity records.
//
// Thread-safety: a cache is owned by one goroutine. Several caches (one per
// worker) may wrap the same partition if they share a lock manager; drains
// and flushes of a member are then serialized by the lock of that member.
type PartitionCache[T comparable] struct {
	partition *collections.Partition[T]
	capacity  int
	sync      lockmgr.ILockManager
	entries   []*Entry[T]
	batches   *util.BatchHistogram
}

// Stats describes the drains a cache performed
type Stats struct {
	Buffered    int     `json:"buffered"`     // records currently buffered
	Drains      int64   `json:"drains"`       // batches handed to members
	Drained     int64   `json:"drained"`      // records handed to members
	MeanBatch   float64 `json:"mean_batch"`   // average records per drain
	MedianBatch int     `json:"median_batch"` // bucket estimate of the median drain
}

// New creates a cache over partition buffering up to capacity records per
// member (at least 1). sync may be nil if the cache is the only writer of
// the partition.
func New[T comparable](partition *collections.Partition[T], capacity int, sync lockmgr.ILockManager) *PartitionCache[T] {
	capacity = max(1, capacity)
	c := &PartitionCache[T]{
		partition: partition,
		capacity:  capacity,
		sync:      sync,
		entries:   make([]*Entry[T], partition.Size()),
		batches:   util.NewBatchHistogram(),
	}
	for i := range c.entries {
		c.entries[i] = &Entry[T]{
			cache:  c,
			index:  i,
			member: partition.At(i),
		}
	}
	return c
}

// Size returns the number of members of the wrapped partition
func (c *PartitionCache[T]) Size() int {
	return c.partition.Size()
}

// Partition returns the wrapped partition
func (c *PartitionCache[T]) Partition() *collections.Partition[T] {
	return c.partition
}

// Index returns the entry of the i-th member. It panics outside [0, Size()), like a slice.
func (c *PartitionCache[T]) Index(i int) *Entry[T] {
	return c.entries[i]
}

// Flush drains every buffer and flushes the members in index order. The first
// failure stops the flush with a PartialFlushFailure carrying the member index:
// members before it are durable, buffers from it on are kept.
func (c *PartitionCache[T]) Flush() error {
	for i, e := range c.entries {
		if err := e.flush(); err != nil {
			log.Warningf("cache flush of partition %s stopped at member %d: %v", c.partition.Name(), i, err)
			return storage.PartialFlushFailure(i, err)
		}
	}
	return nil
}

// Stats returns the drain statistics of this cache
func (c *PartitionCache[T]) Stats() Stats {
	buffered := 0
	for _, e := range c.entries {
		buffered += len(e.buffer)
	}
	return Stats{
		Buffered:    buffered,
		Drains:      c.batches.Count(),
		Drained:     c.batches.Sum(),
		MeanBatch:   c.batches.Mean(),
		MedianBatch: c.batches.Percentile(50),
	}
}

// lock acquires the lock of a member if the cache shares its partition
func (c *PartitionCache[T]) lock(i int) func() {
	if c.sync == nil {
		return func() {}
	}
	return c.sync.AcquireLock(lockmgr.MemberKey(c.partition.Name(), i))
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is the buffer of one partition member inside a cache
type Entry[T comparable] struct {
	cache  *PartitionCache[T]
	index  int
	member collections.Collection[T]
	buffer []T
}

// Insert buffers a record. When the buffer reaches the capacity of the cache
// it is drained into the member under the member lock. If the drain fails the
// record is not buffered and the error is returned; earlier records stay buffered.
func (e *Entry[T]) Insert(item T) error {
	e.buffer = append(e.buffer, item)
	if len(e.buffer) < e.cache.capacity {
		bufferedRecords.Inc()
		return nil
	}

	release := e.cache.lock(e.index)
	err := e.drain()
	release()

	if err != nil {
		e.buffer = e.buffer[:len(e.buffer)-1]
		return err
	}
	bufferedRecords.Inc()
	return nil
}

// NbItems returns the durable records of the member, buffered records are not counted
func (e *Entry[T]) NbItems() uint64 {
	release := e.cache.lock(e.index)
	defer release()
	return e.member.NbItems()
}

// Iterator returns a cursor over the durable records of the member
func (e *Entry[T]) Iterator() collections.Iterator[T] {
	release := e.cache.lock(e.index)
	defer release()
	return e.member.Iterator()
}

// Buffered returns the number of records waiting in this entry
func (e *Entry[T]) Buffered() int {
	return len(e.buffer)
}

// drain hands the buffer to the member, the caller holds the member lock
func (e *Entry[T]) drain() error {
	if len(e.buffer) == 0 {
		return nil
	}
	if err := e.member.InsertAll(e.buffer); err != nil {
		return err
	}

	n := len(e.buffer)
	drains.Inc()
	drainedRecords.Add(n)
	e.cache.batches.AddSample(n)
	e.buffer = e.buffer[:0]
	return nil
}

// flush drains the buffer and flushes the member under the member lock
func (e *Entry[T]) flush() error {
	release := e.cache.lock(e.index)
	defer release()

	if err := e.drain(); err != nil {
		return err
	}
	return e.member.Flush()
}

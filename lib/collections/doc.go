// Package collections implements typed, persistent, append oriented record
// storage on top of a pluggable storage backend.
//
// Core Types:
//
//   - Product: a named logical database bound to one backend (flat files or a
//     structured container). It creates collections and partitions by name and
//     owns their physical storage. Remove deletes all of it.
//
//   - Collection[T]: a typed sequence of fixed size records. Inserts are
//     buffered in a pending area, Flush makes them durable and counted.
//     NbItems only counts durable records.
//
//   - Partition[T]: a fixed number of sibling collections addressed by index.
//     Flush flushes the members in order and reports the index of the first
//     failing member with a PartialFlushFailure.
//
//   - Iterator[T]: a lazy forward cursor (First/Next/IsDone/Item). Every call
//     to Iterator() yields an independent cursor over the records durable at
//     that time. All adapts a cursor to a range over func.
//
// Records are translated to bytes by a codec.Codec; backends never see typed
// values. Reopening a collection with a different codec fails with a
// NameConflict, as does using one name for a collection and a partition.
//
// Durability:
//
//	Flush is a write barrier: once it returns, all records inserted before are
//	durable. A failed Flush keeps the pending records, so calling Flush again
//	neither duplicates nor loses them. Closing a product does not flush.
//
// Thread Safety:
//
//	Products are safe for concurrent use, collections are not. Concurrent
//	writers of one partition go through a cache.PartitionCache each, sharing
//	a lockmgr.ILockManager so drains into the same member are serialized.
//
// Usage:
//
//	p, err := collections.OpenOrCreate("kmers", storage.KindFile, false, nil)
//	if err != nil { ... }
//	defer p.Close()
//
//	col, err := collections.GetCollection(p, "solid", codec.Uint64())
//	_ = col.InsertAll([]uint64{1, 2, 3})
//	_ = col.Flush()
//
//	for v := range collections.All(col.Iterator()) { ... }
package collections

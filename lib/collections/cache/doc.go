// Package cache implements a write buffering layer over a partition.
//
// A PartitionCache keeps one in-memory buffer per partition member. Once a
// buffer holds capacity records it is drained into the member in one
// InsertAll call, so a writer touches the shared member only once per
// capacity records instead of once per record.
//
// Several caches may wrap the same partition (typically one per dispatch
// worker) when they share a lockmgr.ILockManager. Drains and flushes of
// member i then run under the lock of member i only: writers of different
// members never contend, and records of one writer keep their relative order
// inside a member.
//
// Accounting: every record inserted through any cache is either still in
// that cache's buffer or was handed to the member exactly once. After Flush
// returns without error, all records inserted through the cache are durable.
package cache

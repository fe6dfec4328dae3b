// Package lockmgr provides the synchronizer that cooperating writers share
// when they append to the same partition members.
//
// A lock manager holds one mutex per key, created lazily in a concurrent map
// (github.com/puzpuzpuz/xsync/v3). Keys are usually the member keys of a
// partition (MemberKey), so writers that target different members never
// contend and only writers of the same member are serialized.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. A lock is not reentrant: acquiring
//	a key that the caller already holds deadlocks.
//
// Usage Example:
//
//	sync := lockmgr.NewLockManager()
//
//	release := sync.AcquireLock(lockmgr.MemberKey("parts", 3))
//	defer release()
//	// append to member 3 of partition parts
package lockmgr

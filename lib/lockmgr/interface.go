package lockmgr

// ILockManager defines the interface for a lock provider shared by
// cooperating writers.
type ILockManager interface {
	// AcquireLock blocks until the lock for the given key is held.
	// The returned function releases the lock, calling it more than once is a no-op.
	AcquireLock(key string) (release func())
}

package lockmgr

import (
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type lockMgrImpl struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

// NewLockManager creates a lock manager holding one mutex per key.
// Mutexes are created on first use and kept for the lifetime of the manager.
func NewLockManager() ILockManager {
	return &lockMgrImpl{
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (lm *lockMgrImpl) AcquireLock(key string) func() {
	mu, _ := lm.locks.LoadOrCompute(key, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()

	var once sync.Once
	return func() {
		once.Do(mu.Unlock)
	}
}

// MemberKey returns the lock key of the i-th member of a partition
func MemberKey(partition string, i int) string {
	return partition + "/" + strconv.Itoa(i)
}

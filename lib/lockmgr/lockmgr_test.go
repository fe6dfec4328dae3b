package lockmgr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMutualExclusion(t *testing.T) {
	lm := NewLockManager()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		counter int
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				release := lm.AcquireLock("shared")
				if inside.Add(1) != 1 {
					t.Errorf("Expected exclusive access to key shared")
				}
				counter++
				inside.Add(-1)
				release()
			}
		}()
	}
	wg.Wait()

	if counter != 8000 {
		t.Errorf("Expected counter 8000, got %d", counter)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	lm := NewLockManager()

	release := lm.AcquireLock(MemberKey("parts", 0))
	defer release()

	done := make(chan struct{})
	go func() {
		other := lm.AcquireLock(MemberKey("parts", 1))
		other()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Errorf("Expected lock of member 1 not to wait for member 0")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	lm := NewLockManager()

	release := lm.AcquireLock("key")
	release()
	release()

	// the key can be acquired again
	again := lm.AcquireLock("key")
	again()
}

func TestMemberKey(t *testing.T) {
	if MemberKey("parts", 12) != "parts/12" {
		t.Errorf("Expected parts/12, got %s", MemberKey("parts", 12))
	}
}

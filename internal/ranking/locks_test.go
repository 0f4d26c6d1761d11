package ranking

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemLocksSerializeSameItem(t *testing.T) {
	locks := newItemLocks()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(42)
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInside)
	require.Equal(t, 0, locks.len())
}

func TestItemLocksIndependentItems(t *testing.T) {
	locks := newItemLocks()
	unlockA := locks.lock(1)
	unlockB := locks.lock(2)
	require.Equal(t, 2, locks.len())
	unlockA()
	unlockB()
	require.Equal(t, 0, locks.len())
}

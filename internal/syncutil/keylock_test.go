package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_MutualExclusion(t *testing.T) {
	k := NewKeyLock()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "0xwallet")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestKeyLock_ContextCancelled(t *testing.T) {
	k := NewKeyLock()

	unlock, err := k.Lock(context.Background(), "busy")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := k.Lock(context.Background(), "busy")
	require.NoError(t, err)
	again()
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	k := NewKeyLock()
	a, b := "a", "b"
	require.NotEqual(t, shardOf(a), shardOf(b))

	unlockA, err := k.Lock(context.Background(), a)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, b)
	require.NoError(t, err)
	unlockB()
}

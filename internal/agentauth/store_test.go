package agentauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_InsertOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "k", fixedNow))
	assert.ErrorIs(t, store.Insert(ctx, "k", fixedNow), ErrDuplicateKey)
	assert.NoError(t, store.Insert(ctx, "k2", fixedNow))
}

func TestMemoryStore_ConcurrentInsert(t *testing.T) {
	store := NewMemoryStore()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Insert(context.Background(), "same-key", fixedNow) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_PurgeBefore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, "old", fixedNow.Add(-time.Hour)))
	require.NoError(t, store.Insert(ctx, "new", fixedNow))

	n, err := store.PurgeBefore(ctx, fixedNow.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
	assert.NoError(t, store.Insert(ctx, "old", fixedNow))
}

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, _ interface{}, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		cmd := redis.NewBoolCmd(ctx)
		cmd.SetErr(f.err)
		return cmd
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = exp
	return redis.NewBoolResult(true, nil)
}

func TestRedisStore_Insert(t *testing.T) {
	fake := &fakeRedis{keys: map[string]time.Duration{}}
	store := NewRedisStore(fake, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "k", fixedNow))
	assert.ErrorIs(t, store.Insert(ctx, "k", fixedNow), ErrDuplicateKey)
	assert.Equal(t, 10*time.Minute, fake.keys["agentos:nonce:k"])
}

func TestRedisStore_ErrorIsUnavailable(t *testing.T) {
	fake := &fakeRedis{keys: map[string]time.Duration{}, err: errors.New("dial tcp: refused")}
	guard := NewReplayGuard(NewRedisStore(fake, time.Minute), "redis", nil)

	assert.Equal(t, Unavailable, guard.TryConsume(context.Background(), "k"))
}

func TestReplayGuard_Outcomes(t *testing.T) {
	guard := NewReplayGuard(NewMemoryStore(), "memory", nil)
	ctx := context.Background()

	assert.Equal(t, Fresh, guard.TryConsume(ctx, "k"))
	assert.Equal(t, Duplicate, guard.TryConsume(ctx, "k"))
	assert.Equal(t, Unavailable, NewReplayGuard(failingStore{}, "pg", nil).TryConsume(ctx, "k"))
	assert.Equal(t, "duplicate", Duplicate.String())
}

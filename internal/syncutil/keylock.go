// Package syncutil provides keyed locks that give up when the caller's
// context ends.
package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 256

// KeyLock serializes work per key over a fixed pool of shards. Distinct keys
// may share a shard; memory stays bounded however many keys are seen.
type KeyLock struct {
	shards [shardCount]chan struct{}
}

// NewKeyLock creates a KeyLock with every shard unlocked.
func NewKeyLock() *KeyLock {
	k := &KeyLock{}
	for i := range k.shards {
		k.shards[i] = make(chan struct{}, 1)
	}
	return k
}

// Lock blocks until key's shard is free or ctx is done. The returned
// function releases the shard and must be called exactly once.
func (k *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	shard := k.shards[shardOf(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

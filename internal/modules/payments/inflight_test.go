package payments

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuardRejectsSecondHolder(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "o-1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "o-1")
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	other, err := g.Acquire(ctx, "o-2")
	require.NoError(t, err)
	other()

	release()
	release() // idempotent
	assert.False(t, g.Held("o-1"))

	again, err := g.Acquire(ctx, "o-1")
	require.NoError(t, err)
	again()
}

func TestMemoryGuardConcurrentAcquire(t *testing.T) {
	g := NewMemoryGuard()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.Acquire(context.Background(), "same"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	g := NewRedisGuard(client, 5*time.Second)
	ctx := context.Background()
	id := uuid.NewString()

	release, err := g.Acquire(ctx, id)
	require.NoError(t, err)

	_, err = g.Acquire(ctx, id)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	release()
	again, err := g.Acquire(ctx, id)
	require.NoError(t, err)
	again()
}

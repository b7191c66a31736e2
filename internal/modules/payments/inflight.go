package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard is the in-flight flag keyed by order id. Acquire fails with
// ErrDuplicateSubmission while another holder exists; release must be
// called on every path.
type Guard interface {
	Acquire(ctx context.Context, orderID string) (release func(), err error)
}

type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, orderID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[orderID]; ok {
		return nil, fmt.Errorf("%w: order %s", ErrDuplicateSubmission, orderID)
	}
	g.held[orderID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, orderID)
			g.mu.Unlock()
		})
	}, nil
}

// Held reports whether orderID is currently locked.
func (g *MemoryGuard) Held(orderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[orderID]
	return ok
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the flag across server replicas. The TTL bounds how long
// a crashed holder can block retries.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl, prefix: "checkout:inflight:"}
}

func (g *RedisGuard) Acquire(ctx context.Context, orderID string) (func(), error) {
	key := g.prefix + orderID
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("inflight guard: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrDuplicateSubmission, orderID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be canceled here
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.client, []string{key}, token).Err()
		})
	}, nil
}

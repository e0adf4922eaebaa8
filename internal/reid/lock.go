package reid

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes writes to a single animal's biometric record across
// concurrent pipeline workers (possibly in different processes). With a
// Redis client configured it takes a SET NX PX lease, the same pattern the
// rate limiter uses for its sliding-window keys; without one it falls back
// to an in-process mutex per animal ID, which is sufficient for a single
// worker binary.
type Locker struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	inProcess map[int64]*sync.Mutex
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{
		client:    client,
		ttl:       5 * time.Second,
		inProcess: make(map[int64]*sync.Mutex),
	}
}

// Unlock releases a previously acquired lease.
type Unlock func()

// Lock acquires exclusive access to animalID for the duration of a
// biometric read-modify-write. Callers must call the returned Unlock.
func (l *Locker) Lock(ctx context.Context, animalID int64) (Unlock, error) {
	if l.client == nil {
		return l.lockInProcess(animalID), nil
	}
	return l.lockRedis(ctx, animalID)
}

func (l *Locker) lockInProcess(animalID int64) Unlock {
	l.mu.Lock()
	m, ok := l.inProcess[animalID]
	if !ok {
		m = &sync.Mutex{}
		l.inProcess[animalID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return func() { m.Unlock() }
}

func (l *Locker) lockRedis(ctx context.Context, animalID int64) (Unlock, error) {
	key := lockKey(animalID)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	return func() {
		// Best-effort release: only clear the key if we still own it, so a
		// slow worker past its TTL doesn't release a lease someone else
		// has since acquired.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := l.client.Get(releaseCtx, key).Result(); err == nil && v == token {
			l.client.Del(releaseCtx, key)
		}
	}, nil
}

func lockKey(animalID int64) string {
	return "herdvision:animal-lock:" + strconv.FormatInt(animalID, 10)
}

package reid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLock_InProcessFallback_SerializesSameAnimal(t *testing.T) {
	l := NewLocker(nil)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u2, err := l.Lock(ctx, 1)
		require.NoError(t, err)
		close(acquired)
		u2()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on same animal acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	<-acquired
}

func TestLock_InProcessFallback_DifferentAnimalsDontBlock(t *testing.T) {
	l := NewLocker(nil)
	ctx := context.Background()

	unlock1, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2, err := l.Lock(ctx, 2)
		require.NoError(t, err)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different animal ID should not block")
	}
}

func TestLock_Redis_AcquiresAndReleases(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewLocker(client)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 7)
	require.NoError(t, err)

	assert := mr.Exists("herdvision:animal-lock:7")
	require.True(t, assert)

	unlock()
	require.False(t, mr.Exists("herdvision:animal-lock:7"))
}

func TestLock_Redis_BlocksConcurrentHolder(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewLocker(client)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquiredSecond := false
	go func() {
		defer wg.Done()
		u2, err := l.Lock(ctx, 3)
		require.NoError(t, err)
		acquiredSecond = true
		u2()
	}()

	time.Sleep(100 * time.Millisecond)
	require.False(t, acquiredSecond)

	unlock()
	wg.Wait()
	require.True(t, acquiredSecond)
}

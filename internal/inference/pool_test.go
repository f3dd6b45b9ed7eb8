package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id        int
	destroyed *atomic.Int32
}

func (f *fakeSession) Destroy() {
	f.destroyed.Add(1)
}

func newFakePool(t *testing.T, size int) (*SessionPool[*fakeSession], *atomic.Int32) {
	t.Helper()
	var destroyed atomic.Int32
	next := 0
	pool, err := NewSessionPool[*fakeSession](func() (*fakeSession, error) {
		next++
		return &fakeSession{id: next, destroyed: &destroyed}, nil
	}, size)
	require.NoError(t, err)
	return pool, &destroyed
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, destroyed := newFakePool(t, 2)

	a, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	b, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.id, b.id)

	m := pool.GetMetrics()
	assert.Equal(t, 2, m.InUse)
	assert.EqualValues(t, 2, m.TotalAcquired)

	pool.Release(a)
	pool.Release(b)

	m = pool.GetMetrics()
	assert.Zero(t, m.InUse)
	assert.EqualValues(t, 2, m.TotalReleased)
	assert.Equal(t, 2, pool.Size())

	pool.Destroy()
	pool.Destroy()
	assert.EqualValues(t, 2, destroyed.Load())
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	pool, _ := newFakePool(t, 1)
	defer pool.Destroy()

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolClosed(t *testing.T) {
	pool, destroyed := newFakePool(t, 1)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.Destroy()
	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	// a session returned after close is destroyed, not pooled
	pool.Release(held)
	assert.EqualValues(t, 1, destroyed.Load())
}

func TestPoolFactoryFailure(t *testing.T) {
	boom := errors.New("no gpu")
	_, err := NewSessionPool[*fakeSession](func() (*fakeSession, error) {
		return nil, boom
	}, 2)
	assert.ErrorIs(t, err, boom)
}

func TestPoolReplenish(t *testing.T) {
	var destroyed atomic.Int32
	calls := 0
	pool, err := NewSessionPool[*fakeSession](func() (*fakeSession, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("transient")
		}
		return &fakeSession{id: calls, destroyed: &destroyed}, nil
	}, 1)
	require.NoError(t, err)
	defer pool.Destroy()

	// simulate a lost session
	lost, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	_ = lost
	pool.metrics.mu.Lock()
	pool.metrics.InUse--
	pool.metrics.mu.Unlock()

	pool.replenishSessions(1)
	pool.replenishSessions(1)

	assert.Len(t, pool.LastErrors(), 1)
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.id)
}

package middleware

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/pulse/rmap"
)

type fakeClusterMap struct {
	mu     sync.Mutex
	values map[string]string
	ch     chan rmap.EventKind
}

func newFakeClusterMap() *fakeClusterMap {
	return &fakeClusterMap{
		values: make(map[string]string),
		ch:     make(chan rmap.EventKind, 1),
	}
}

func (m *fakeClusterMap) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *fakeClusterMap) SetIfNotExists(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	m.notify()
	return true, nil
}

func (m *fakeClusterMap) TestAndSet(_ context.Context, key, test, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.values[key]
	if !ok || cur != test {
		return cur, nil
	}
	m.values[key] = value
	m.notify()
	return cur, nil
}

func (m *fakeClusterMap) Subscribe() <-chan rmap.EventKind {
	return m.ch
}

func (m *fakeClusterMap) notify() {
	select {
	case m.ch <- rmap.EventChange:
	default:
	}
}

func (m *fakeClusterMap) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.notify()
}

func TestClusterLimiterBackoffUpdatesSharedMap(t *testing.T) {
	ctx := context.Background()
	m := newFakeClusterMap()
	const key = "model"
	m.set(key, strconv.Itoa(80000))

	lim := newClusterAdaptiveRateLimiter(ctx, m, key, 80000, 80000)

	client := &fakeClient{err: throttled()}
	wrapped := lim.Middleware()(client)

	_, _ = wrapped.Complete(ctx, userRequest("hello"))

	// The shared-map write happens on a background goroutine.
	require.Eventually(t, func() bool {
		v, ok := m.Get(key)
		if !ok {
			return false
		}
		cur, err := strconv.Atoi(v)
		return err == nil && cur < 80000
	}, time.Second, 5*time.Millisecond, "shared TPM must decrease after throttling")
}

func TestClusterLimiterAdoptsSharedBudget(t *testing.T) {
	ctx := context.Background()
	m := newFakeClusterMap()
	const key = "model"
	m.set(key, strconv.Itoa(30000))

	lim := newClusterAdaptiveRateLimiter(ctx, m, key, 80000, 80000)

	lim.mu.Lock()
	current := lim.currentTPM
	lim.mu.Unlock()
	assert.Equal(t, 30000.0, current, "an existing shared budget wins over the local initial value")
}

func TestClusterLimiterReconcilesExternalChanges(t *testing.T) {
	ctx := context.Background()
	m := newFakeClusterMap()
	const key = "model"
	m.set(key, strconv.Itoa(80000))

	lim := newClusterAdaptiveRateLimiter(ctx, m, key, 80000, 80000)

	m.set(key, strconv.Itoa(40000))

	require.Eventually(t, func() bool {
		lim.mu.Lock()
		defer lim.mu.Unlock()
		return lim.currentTPM == 40000
	}, time.Second, 5*time.Millisecond, "external budget changes must reach the local limiter")
}

func TestClusterLimiterWithoutKeyIsLocal(t *testing.T) {
	lim := newClusterAdaptiveRateLimiter(context.Background(), newFakeClusterMap(), "", 50000, 50000)
	lim.mu.Lock()
	defer lim.mu.Unlock()
	assert.Equal(t, 50000.0, lim.currentTPM)
	assert.Nil(t, lim.onBackoff)
}

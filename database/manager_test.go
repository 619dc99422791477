package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/gaborage/tenant-records/database/types"
	"github.com/gaborage/tenant-records/logger"
)

type stubHandle struct {
	name     string
	closes   atomic.Int32
	onClosed func(string)
}

func (s *stubHandle) Name() string                               { return s.name }
func (s *stubHandle) Collection(string) types.DocumentCollection { return nil }
func (s *stubHandle) Ping(context.Context) error                 { return nil }
func (s *stubHandle) Close(context.Context) error {
	s.closes.Add(1)
	if s.onClosed != nil {
		s.onClosed(s.name)
	}
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingConnector builds a new stubHandle per call and records them.
type countingConnector struct {
	calls   atomic.Int32
	mu      sync.Mutex
	handles []*stubHandle
}

func (c *countingConnector) connect(_ context.Context, tenantID string) (types.Handle, error) {
	c.calls.Add(1)
	h := &stubHandle{name: tenantID}
	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()
	return h, nil
}

func (c *countingConnector) handle(i int) *stubHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[i]
}

func newTestManager(t *testing.T, opts Options, connector Connector) *Manager {
	t.Helper()
	m, err := NewManager(logger.New("error", false), opts, connector)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func getHandle(t *testing.T, m *Manager, tenant string) (*Lease, types.Handle) {
	t.Helper()
	lease, err := m.Get(context.Background(), tenant)
	require.NoError(t, err)
	return lease, lease.Handle()
}

func TestManagerReturnsSameHandleForSameTenant(t *testing.T) {
	conn := &countingConnector{}
	m := newTestManager(t, Options{}, conn.connect)

	first, h1 := getHandle(t, m, "acme")
	second, h2 := getHandle(t, m, "acme")
	defer first.Release()
	defer second.Release()

	assert.Same(t, h1, h2)
	assert.Equal(t, "acme", first.Tenant())
	assert.Equal(t, int32(1), conn.calls.Load())
	assert.Equal(t, 1, m.Size())
}

func TestManagerDistinctTenantsGetDistinctHandles(t *testing.T) {
	conn := &countingConnector{}
	m := newTestManager(t, Options{}, conn.connect)

	a, ha := getHandle(t, m, "acme")
	b, hb := getHandle(t, m, "other")
	a.Release()
	b.Release()

	assert.NotSame(t, ha, hb)
	assert.Equal(t, "acme", ha.Name())
	assert.Equal(t, "other", hb.Name())
	assert.Equal(t, 2, m.Size())
}

func TestManagerSingleflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var once sync.Once

	m := newTestManager(t, Options{}, func(_ context.Context, tenantID string) (types.Handle, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return &stubHandle{name: tenantID}, nil
	})

	const callers = 20
	handles := make([]types.Handle, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Get(context.Background(), "brand-new")
			if !assert.NoError(t, err) {
				return
			}
			handles[i] = lease.Handle()
			lease.Release()
		}()
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestManagerIdleExpiryBuildsNewHandle(t *testing.T) {
	clock := newFakeClock()
	conn := &countingConnector{}
	m := newTestManager(t, Options{IdleTTL: 15 * time.Minute}, conn.connect)
	m.now = clock.Now

	lease, h1 := getHandle(t, m, "acme")
	lease.Release()

	clock.Advance(14 * time.Minute)
	lease, h2 := getHandle(t, m, "acme")
	lease.Release()
	assert.Same(t, h1, h2, "access within the idle window must reuse the handle")

	clock.Advance(15*time.Minute + time.Second)
	lease, h3 := getHandle(t, m, "acme")
	lease.Release()

	assert.NotSame(t, h1, h3)
	assert.Equal(t, int32(2), conn.calls.Load())
	assert.Equal(t, int32(1), conn.handle(0).closes.Load())
	assert.Zero(t, conn.handle(1).closes.Load())
}

func TestManagerDefersCloseUntilLastRelease(t *testing.T) {
	clock := newFakeClock()
	conn := &countingConnector{}
	m := newTestManager(t, Options{IdleTTL: time.Minute}, conn.connect)
	m.now = clock.Now

	held, old := getHandle(t, m, "acme")

	clock.Advance(2 * time.Minute)
	fresh, replacement := getHandle(t, m, "acme")
	defer fresh.Release()

	assert.NotSame(t, old, replacement)
	assert.Zero(t, conn.handle(0).closes.Load(), "leased handle must stay open after eviction")

	held.Release()
	assert.Equal(t, int32(1), conn.handle(0).closes.Load())

	held.Release()
	assert.Equal(t, int32(1), conn.handle(0).closes.Load(), "release is idempotent")
}

func TestManagerFailedConstructionIsNotCached(t *testing.T) {
	boom := errors.New("store unreachable")
	var calls atomic.Int32
	m := newTestManager(t, Options{}, func(_ context.Context, tenantID string) (types.Handle, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return &stubHandle{name: tenantID}, nil
	})

	_, err := m.Get(context.Background(), "acme")
	require.ErrorIs(t, err, boom)
	assert.Zero(t, m.Size())

	lease, err := m.Get(context.Background(), "acme")
	require.NoError(t, err)
	lease.Release()
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, m.Size())
}

func TestManagerFailureDoesNotAffectOtherTenants(t *testing.T) {
	m := newTestManager(t, Options{}, func(_ context.Context, tenantID string) (types.Handle, error) {
		if tenantID == "broken" {
			return nil, errors.New("bad tenant")
		}
		return &stubHandle{name: tenantID}, nil
	})

	good, h := getHandle(t, m, "acme")
	good.Release()

	_, err := m.Get(context.Background(), "broken")
	require.Error(t, err)

	again, h2 := getHandle(t, m, "acme")
	again.Release()
	assert.Same(t, h, h2)
}

func TestManagerRejectsNilHandle(t *testing.T) {
	m := newTestManager(t, Options{}, func(context.Context, string) (types.Handle, error) {
		return nil, nil
	})

	_, err := m.Get(context.Background(), "acme")
	require.Error(t, err)
	assert.Zero(t, m.Size())
}

func TestManagerCallerCancellationDoesNotAbortConstruction(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var buildErr atomic.Value
	var calls atomic.Int32

	m := newTestManager(t, Options{}, func(ctx context.Context, tenantID string) (types.Handle, error) {
		calls.Add(1)
		close(started)
		<-release
		buildErr.Store(ctx.Err() == nil)
		return &stubHandle{name: tenantID}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx, "acme")
		firstErr <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	secondDone := make(chan *Lease, 1)
	go func() {
		lease, err := m.Get(context.Background(), "acme")
		assert.NoError(t, err)
		secondDone <- lease
	}()

	close(release)
	lease := <-secondDone
	require.NotNil(t, lease)
	lease.Release()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, true, buildErr.Load(), "construction context must survive caller cancellation")
}

func TestManagerCancelledContext(t *testing.T) {
	conn := &countingConnector{}
	m := newTestManager(t, Options{}, conn.connect)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Get(ctx, "acme")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, conn.calls.Load())
}

func TestManagerEvictsLRUWhenBounded(t *testing.T) {
	var mu sync.Mutex
	var closed []string
	m := newTestManager(t, Options{MaxSize: 2}, func(_ context.Context, tenantID string) (types.Handle, error) {
		return &stubHandle{name: tenantID, onClosed: func(name string) {
			mu.Lock()
			defer mu.Unlock()
			closed = append(closed, name)
		}}, nil
	})

	for _, tenant := range []string{"a", "b", "a", "c"} {
		lease, _ := getHandle(t, m, tenant)
		lease.Release()
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b"}, closed)
	assert.Equal(t, 2, m.Size())
}

func TestManagerEvictIdle(t *testing.T) {
	clock := newFakeClock()
	conn := &countingConnector{}
	m := newTestManager(t, Options{IdleTTL: time.Minute}, conn.connect)
	m.now = clock.Now

	stale, _ := getHandle(t, m, "stale")
	stale.Release()
	clock.Advance(45 * time.Second)
	fresh, _ := getHandle(t, m, "fresh")
	fresh.Release()

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, m.evictIdle())
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, int32(1), conn.handle(0).closes.Load())
}

func TestManagerBackgroundCleanup(t *testing.T) {
	clock := newFakeClock()
	conn := &countingConnector{}
	m := newTestManager(t, Options{IdleTTL: time.Minute}, conn.connect)
	m.now = clock.Now

	lease, _ := getHandle(t, m, "acme")
	lease.Release()
	clock.Advance(2 * time.Minute)

	m.StartCleanup(5 * time.Millisecond)
	m.StartCleanup(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return m.Size() == 0 }, time.Second, 5*time.Millisecond)

	m.StopCleanup()
	m.StopCleanup()
}

func TestManagerClose(t *testing.T) {
	conn := &countingConnector{}
	m, err := NewManager(logger.New("error", false), Options{}, conn.connect)
	require.NoError(t, err)

	idle, _ := getHandle(t, m, "idle")
	idle.Release()
	busy, _ := getHandle(t, m, "busy")

	require.NoError(t, m.Close())
	assert.Zero(t, m.Size())
	assert.Equal(t, int32(1), conn.handle(0).closes.Load())
	assert.Zero(t, conn.handle(1).closes.Load())

	busy.Release()
	assert.Equal(t, int32(1), conn.handle(1).closes.Load())

	_, err = m.Get(context.Background(), "idle")
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.NoError(t, m.Close())
}

func TestManagerStats(t *testing.T) {
	conn := &countingConnector{}
	m := newTestManager(t, Options{IdleTTL: 15 * time.Minute, MaxSize: 10}, conn.connect)

	lease, _ := getHandle(t, m, "acme")
	defer lease.Release()

	stats := m.Stats()
	assert.Equal(t, 1, stats["active_handles"])
	assert.Equal(t, 10, stats["max_handles"])
	assert.Equal(t, 900, stats["idle_ttl_seconds"])

	tenants, ok := stats["tenants"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, tenants, 1)
	assert.Equal(t, "acme", tenants[0]["tenant"])
	assert.Equal(t, 1, tenants[0]["leases"])
}

func TestNewManagerRequiresConnector(t *testing.T) {
	_, err := NewManager(logger.New("error", false), Options{}, nil)
	assert.Error(t, err)
}

func sumCounter(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestManagerRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var fail atomic.Bool
	m := newTestManager(t, Options{MeterProvider: provider}, func(_ context.Context, tenantID string) (types.Handle, error) {
		if fail.Load() {
			return nil, errors.New("down")
		}
		return &stubHandle{name: tenantID}, nil
	})

	lease, _ := getHandle(t, m, "acme")
	lease.Release()
	lease, _ = getHandle(t, m, "acme")
	lease.Release()

	fail.Store(true)
	_, err := m.Get(context.Background(), "other")
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(1), sumCounter(t, &rm, metricHit))
	assert.Equal(t, int64(2), sumCounter(t, &rm, metricMiss))
	assert.Equal(t, int64(1), sumCounter(t, &rm, metricCreated))
	assert.Equal(t, int64(1), sumCounter(t, &rm, metricErrors))
	assert.Equal(t, int64(1), sumCounter(t, &rm, metricActive))
}

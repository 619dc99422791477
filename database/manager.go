// Package database owns the tenant-scoped storage handle cache. It is the only
// component that constructs or closes tenant handles.
package database

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/gaborage/tenant-records/database/types"
	"github.com/gaborage/tenant-records/logger"
)

const (
	// DefaultIdleTTL is how long an unused tenant handle stays cached.
	DefaultIdleTTL = 15 * time.Minute
	// DefaultConnectTimeout bounds a single handle construction.
	DefaultConnectTimeout = 10 * time.Second

	defaultCleanupInterval = time.Minute
	closeTimeout           = 10 * time.Second
)

// ErrManagerClosed is returned by Get after Close has been called.
var ErrManagerClosed = errors.New("tenant handle manager is closed")

// Handle is the storage handle type cached per tenant.
type Handle = types.Handle

// Connector builds the storage handle for a tenant. It may perform network setup.
type Connector func(ctx context.Context, tenantID string) (types.Handle, error)

// Options configures the Manager.
type Options struct {
	IdleTTL        time.Duration // evict after this long without access (default 15m)
	MaxSize        int           // maximum cached handles, LRU evicted (0 = unbounded)
	ConnectTimeout time.Duration // bound on one construction (default 10s)
	MeterProvider  metric.MeterProvider
}

// Manager caches one storage handle per tenant. Handles are created lazily on
// first access, shared by concurrent callers through leases and evicted after
// IdleTTL without access. Construction for a given tenant is serialized: at
// most one handle is built per tenant per cache generation.
type Manager struct {
	logger    logger.Logger
	connector Connector
	metrics   *cacheMetrics
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List
	closed  bool

	maxSize        int
	idleTTL        time.Duration
	connectTimeout time.Duration

	cleanupMu   sync.Mutex
	cleanupCh   chan struct{}
	cleanupDone chan struct{}

	sfg singleflight.Group
}

// entry is one cached tenant handle. refs counts outstanding leases; the
// handle is closed once the entry has left the cache and refs drops to zero.
type entry struct {
	key      string
	handle   types.Handle
	element  *list.Element
	lastUsed time.Time
	refs     int
	cached   bool
}

// NewManager creates a handle cache that builds handles with connector.
func NewManager(log logger.Logger, opts Options, connector Connector) (*Manager, error) {
	if connector == nil {
		return nil, errors.New("database: connector is required")
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MaxSize < 0 {
		opts.MaxSize = 0
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	metrics, err := newCacheMetrics(opts.MeterProvider)
	if err != nil {
		log.Warn().Err(err).Msg("Tenant cache metrics disabled")
		metrics = nil
	}

	return &Manager{
		logger:         log,
		connector:      connector,
		metrics:        metrics,
		now:            time.Now,
		entries:        make(map[string]*entry),
		lru:            list.New(),
		maxSize:        opts.MaxSize,
		idleTTL:        opts.IdleTTL,
		connectTimeout: opts.ConnectTimeout,
	}, nil
}

// Get returns a lease on the handle for tenantID, constructing the handle if
// the tenant has no live cache entry. Callers must Release the lease when the
// operation completes. Cancelling ctx abandons the wait but never cancels a
// construction other callers may be waiting on.
func (m *Manager) Get(ctx context.Context, tenantID string) (*Lease, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lease, expired, err := m.acquire(tenantID)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			m.metrics.recordHit(ctx)
			return lease, nil
		}
		if expired != nil {
			m.closeHandles([]types.Handle{expired})
		}
		m.metrics.recordMiss(ctx)

		ch := m.sfg.DoChan(tenantID, func() (any, error) {
			return m.construct(ctx, tenantID)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			lease, err := m.leaseEntry(res.Val.(*entry))
			if err != nil {
				return nil, err
			}
			if lease != nil {
				return lease, nil
			}
			// evicted before we could lease it; start over
		}
	}
}

// acquire leases a live entry for key. An idle-expired entry is evicted and,
// when unreferenced, its handle is returned for closing.
func (m *Manager) acquire(key string) (*Lease, types.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrManagerClosed
	}

	e, ok := m.entries[key]
	if !ok {
		return nil, nil, nil
	}

	now := m.now()
	if m.expiredLocked(e, now) {
		return nil, m.evictLocked(e, reasonIdle), nil
	}
	return m.leaseLocked(e, now), nil, nil
}

func (m *Manager) leaseEntry(e *entry) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if !e.cached {
		return nil, nil
	}
	return m.leaseLocked(e, m.now()), nil
}

func (m *Manager) leaseLocked(e *entry, now time.Time) *Lease {
	e.refs++
	e.lastUsed = now
	m.lru.MoveToFront(e.element)
	return &Lease{entry: e, manager: m}
}

func (m *Manager) expiredLocked(e *entry, now time.Time) bool {
	return now.Sub(e.lastUsed) > m.idleTTL
}

// construct runs inside the singleflight group for key, so at most one
// construction per tenant is in flight.
func (m *Manager) construct(ctx context.Context, key string) (*entry, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	// a previous flight may have finished between our miss and this flight
	if e, ok := m.entries[key]; ok && !m.expiredLocked(e, m.now()) {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.connectTimeout)
	defer cancel()

	start := time.Now()
	handle, err := m.connector(buildCtx, key)
	if err == nil && handle == nil {
		err = errors.New("connector returned no handle")
	}
	if err != nil {
		m.metrics.recordError(ctx)
		m.logger.Warn().
			Err(err).
			Str("tenant", key).
			Msg("Failed to create tenant handle")
		return nil, fmt.Errorf("failed to create handle for tenant %s: %w", key, err)
	}

	var toClose []types.Handle

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.closeHandles([]types.Handle{handle})
		return nil, ErrManagerClosed
	}
	if stale, ok := m.entries[key]; ok {
		if h := m.evictLocked(stale, reasonIdle); h != nil {
			toClose = append(toClose, h)
		}
	}
	toClose = append(toClose, m.evictForCapacityLocked()...)

	e := &entry{
		key:      key,
		handle:   handle,
		element:  m.lru.PushFront(key),
		lastUsed: m.now(),
		cached:   true,
	}
	m.entries[key] = e
	m.mu.Unlock()

	m.closeHandles(toClose)
	m.metrics.recordCreated(ctx)

	m.logger.Info().
		Str("tenant", key).
		Dur("elapsed", time.Since(start)).
		Msg("Created tenant handle")

	return e, nil
}

// evictForCapacityLocked makes room for one more entry when MaxSize is set.
func (m *Manager) evictForCapacityLocked() []types.Handle {
	if m.maxSize <= 0 {
		return nil
	}

	var toClose []types.Handle
	for len(m.entries) >= m.maxSize {
		oldest := m.lru.Back()
		if oldest == nil {
			break
		}
		e := m.entries[oldest.Value.(string)]
		if h := m.evictLocked(e, reasonCapacity); h != nil {
			toClose = append(toClose, h)
		}
	}
	return toClose
}

// evictLocked removes e from the cache. The handle is returned for closing
// when no lease holds it; otherwise the last Release closes it.
func (m *Manager) evictLocked(e *entry, reason string) types.Handle {
	delete(m.entries, e.key)
	m.lru.Remove(e.element)
	e.cached = false

	m.metrics.recordEviction(context.Background(), reason)
	m.logger.Debug().
		Str("tenant", e.key).
		Str("reason", reason).
		Int("leases", e.refs).
		Msg("Evicted tenant handle")

	if e.refs == 0 {
		return e.handle
	}
	return nil
}

func (m *Manager) release(e *entry) {
	m.mu.Lock()
	e.refs--
	var toClose types.Handle
	if e.refs == 0 && !e.cached {
		toClose = e.handle
	}
	m.mu.Unlock()

	if toClose != nil {
		m.closeHandles([]types.Handle{toClose})
	}
}

func (m *Manager) closeHandles(handles []types.Handle) error {
	var errs []error
	for _, h := range handles {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := h.Close(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("tenant", h.Name()).
				Msg("Error closing tenant handle")
			errs = append(errs, fmt.Errorf("close handle for tenant %s: %w", h.Name(), err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

// StartCleanup starts a background sweep that evicts idle handles every interval.
// Idle entries are also evicted lazily by Get, so the sweep only bounds how long
// unused handles linger.
func (m *Manager) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()
	if m.cleanupCh != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.cleanupCh = stop
	m.cleanupDone = done

	go m.cleanupLoop(interval, stop, done)
}

// StopCleanup stops the background sweep and waits for it to exit.
func (m *Manager) StopCleanup() {
	m.cleanupMu.Lock()
	stop, done := m.cleanupCh, m.cleanupDone
	m.cleanupCh, m.cleanupDone = nil, nil
	m.cleanupMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Manager) cleanupLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-stop:
			return
		}
	}
}

// evictIdle evicts every idle-expired entry and returns how many were removed.
func (m *Manager) evictIdle() int {
	m.mu.Lock()
	now := m.now()
	var toClose []types.Handle
	removed := 0
	for _, e := range m.entries {
		if !m.expiredLocked(e, now) {
			continue
		}
		removed++
		if h := m.evictLocked(e, reasonIdle); h != nil {
			toClose = append(toClose, h)
		}
	}
	m.mu.Unlock()

	m.closeHandles(toClose)
	return removed
}

// Close evicts every entry and stops the sweep. Handles still leased are
// closed when their last lease is released.
func (m *Manager) Close() error {
	m.StopCleanup()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var toClose []types.Handle
	for _, e := range m.entries {
		if h := m.evictLocked(e, reasonShutdown); h != nil {
			toClose = append(toClose, h)
		}
	}
	m.lru.Init()
	m.mu.Unlock()

	if err := m.closeHandles(toClose); err != nil {
		return fmt.Errorf("errors closing tenant handles: %w", err)
	}
	return nil
}

// Size returns the number of cached handles.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns a snapshot of the cache for readiness and debug output.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	tenants := make([]map[string]any, 0, len(m.entries))
	for key, e := range m.entries {
		tenants = append(tenants, map[string]any{
			"tenant":       key,
			"last_used":    e.lastUsed.Format(time.RFC3339),
			"idle_seconds": int(now.Sub(e.lastUsed).Seconds()),
			"leases":       e.refs,
		})
	}

	return map[string]any{
		"active_handles":   len(m.entries),
		"max_handles":      m.maxSize,
		"idle_ttl_seconds": int(m.idleTTL.Seconds()),
		"tenants":          tenants,
	}
}

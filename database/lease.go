package database

import (
	"sync"

	"github.com/gaborage/tenant-records/database/types"
)

// Lease is one holder's share of a cached tenant handle. The handle stays
// open at least until every lease taken on it has been released.
type Lease struct {
	entry   *entry
	manager *Manager
	once    sync.Once
}

// Handle returns the leased handle. It returns the same instance for every
// lease taken on the same cache entry.
func (l *Lease) Handle() types.Handle {
	return l.entry.handle
}

// Tenant returns the tenant the handle belongs to.
func (l *Lease) Tenant() string {
	return l.entry.key
}

// Release gives the lease back. Calling it more than once has no effect.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.manager.release(l.entry)
	})
}

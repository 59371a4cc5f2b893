package application

import (
	"sync"

	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// StoreProvider enables runtime hot-swap of the remote DocumentStore.
// It holds a mutex-protected reference to the current store and the name of
// the backend behind it, so a new API token takes effect without restarting
// the application.
type StoreProvider struct {
	mu      sync.RWMutex
	store   driven.DocumentStore
	backend string
}

// NewStoreProvider creates a provider with the given initial store. store may
// be nil if no backend is available at startup.
func NewStoreProvider(store driven.DocumentStore, backend string) *StoreProvider {
	return &StoreProvider{store: store, backend: backend}
}

// Get returns the current store. Callers should check for nil if the
// provider was created without a backend.
func (p *StoreProvider) Get() driven.DocumentStore {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}

// Backend returns the name of the backend behind the current store.
func (p *StoreProvider) Backend() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.backend
}

// Replace swaps the current store. The next caller of Get receives the new one.
func (p *StoreProvider) Replace(store driven.DocumentStore, backend string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store
	p.backend = backend
}

// HasStore returns true if a non-nil store is currently held.
func (p *StoreProvider) HasStore() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store != nil
}

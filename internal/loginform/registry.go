package loginform

import (
	"sync"
	"sync/atomic"
	"time"
)

// A form controller lives for one browsing session ("mount"). The registry
// creates controllers on first sight of a form id and closes them after an
// idle TTL (the "unmount"), so a fetch resolving after eviction lands on a
// closed controller and is dropped.

type registryEntry struct {
	ctrl *Controller
	// lastSeen holds unix nanoseconds; atomic so concurrent requests for
	// the same form id can touch it from the read-locked fast path.
	lastSeen atomic.Int64
}

func (e *registryEntry) touch() {
	e.lastSeen.Store(time.Now().UnixNano())
}

// Registry tracks live controllers keyed by form id.
type Registry struct {
	mu      sync.RWMutex
	forms   map[string]*registryEntry
	factory func() *Controller
	idleTTL time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry creates a registry that builds controllers with factory and
// evicts them after idleTTL without access. It starts a background cleanup
// goroutine; call Stop on shutdown.
func NewRegistry(factory func() *Controller, idleTTL time.Duration) *Registry {
	r := &Registry{
		forms:   make(map[string]*registryEntry),
		factory: factory,
		idleTTL: idleTTL,
		stopCh:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// GetOrCreate returns the controller for formID, creating it on first use.
// Access refreshes the idle clock.
func (r *Registry) GetOrCreate(formID string) *Controller {
	r.mu.RLock()
	entry, exists := r.forms[formID]
	r.mu.RUnlock()
	if exists {
		entry.touch()
		return entry.ctrl
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists = r.forms[formID]
	if exists {
		entry.touch()
		return entry.ctrl
	}

	entry = &registryEntry{ctrl: r.factory()}
	entry.touch()
	r.forms[formID] = entry
	return entry.ctrl
}

// Get returns the controller for formID without creating one.
func (r *Registry) Get(formID string) (*Controller, bool) {
	r.mu.RLock()
	entry, exists := r.forms[formID]
	r.mu.RUnlock()
	if !exists {
		return nil, false
	}
	entry.touch()
	return entry.ctrl, true
}

// Cleanup closes and removes controllers idle for longer than the TTL.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.idleTTL).UnixNano()
	for formID, entry := range r.forms {
		if entry.lastSeen.Load() < cutoff {
			entry.ctrl.Close()
			delete(r.forms, formID)
		}
	}
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// Stop halts the cleanup goroutine and closes all remaining controllers.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for formID, entry := range r.forms {
		entry.ctrl.Close()
		delete(r.forms, formID)
	}
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

package cart

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
)

// StoreFactory opens a store for a session
type StoreFactory func(sessionID string) Store

type registryEntry struct {
	engine *Engine
	cancel context.CancelFunc
}

// Registry holds one Engine per session for this process and keeps each one
// subscribed to the writes of the session's other contexts.
type Registry struct {
	mu       sync.Mutex
	engines  map[string]*registryEntry
	newStore StoreFactory
	idleTTL  time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(newStore StoreFactory, idleTTL time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		engines:  make(map[string]*registryEntry),
		newStore: newStore,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Engine returns the session's engine, creating and hydrating it on first use.
// The identity of the request is observed, which may trigger OnAuthChanged.
func (r *Registry) Engine(ctx context.Context, sessionID string, id auth.Identity) (*Engine, error) {
	r.mu.Lock()
	entry, ok := r.engines[sessionID]
	r.mu.Unlock()

	if ok {
		entry.engine.touch()
		if _, err := entry.engine.ObserveIdentity(ctx, id); err != nil {
			return nil, err
		}
		return entry.engine, nil
	}

	store := r.newStore(sessionID)
	engine, err := NewEngine(ctx, store, id, r.logger.WithField("session_id", sessionID))
	if err != nil {
		return nil, err
	}
	engine.now = r.now
	engine.lastUsed = r.now()

	subCtx, cancel := context.WithCancel(context.Background())
	if err := store.Subscribe(subCtx, func(event ChangeEvent) {
		if engine.OnStorageChanged(event) {
			r.logger.WithField("session_id", sessionID).Debug("Adopted cart written by another context")
		}
	}); err != nil {
		// The engine still works, it just will not see other contexts' writes.
		r.logger.WithError(err).WithField("session_id", sessionID).Warn("Cart change subscription failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.engines[sessionID]; ok {
		// Lost a creation race; keep the first engine.
		cancel()
		return existing.engine, nil
	}
	r.engines[sessionID] = &registryEntry{engine: engine, cancel: cancel}
	return engine, nil
}

// Len returns the number of live engines
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Sweep drops engines idle for longer than the idle TTL and returns how many
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for sessionID, entry := range r.engines {
		if entry.engine.idleSince().Before(cutoff) {
			entry.cancel()
			delete(r.engines, sessionID)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on every tick until ctx is done, then releases all engines
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.WithField("evicted", n).Debug("Evicted idle cart sessions")
			}
		case <-ctx.Done():
			r.Close()
			return
		}
	}
}

// Close cancels every subscription and forgets all engines
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sessionID, entry := range r.engines {
		entry.cancel()
		delete(r.engines, sessionID)
	}
}

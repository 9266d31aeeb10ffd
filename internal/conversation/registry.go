package conversation

import (
	"context"
	"log"
	"sync"
	"time"

	"peasurvey/internal/models"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Snapshotter keeps a copy of a live session outside the process, so a
// session can be picked up again by another instance before it expires.
type Snapshotter interface {
	Load(ctx context.Context, sessionID string) ([]models.Message, bool)
	Save(ctx context.Context, sessionID string, history []models.Message)
	Forget(ctx context.Context, sessionID string)
}

// Registry holds one Store per session.
type Registry struct {
	mu       sync.Mutex
	stores   map[string]*entry
	ttl      time.Duration
	snapshot Snapshotter
	onCreate []func(*Store)
}

// entry pairs a store with its snapshot listener. Once detached, the listener
// never writes again, even for a reply that lands on the store afterwards.
type entry struct {
	store *Store

	mu       sync.Mutex
	detached bool
	cancel   func()
}

func (e *entry) mirror(snap Snapshotter) {
	e.cancel = e.store.Subscribe(func(ev Event) {
		if ev.Type != EventMessageAppended {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.detached {
			return
		}
		snap.Save(context.Background(), e.store.SessionID(), e.store.Messages())
	})
}

func (e *entry) detach() {
	e.mu.Lock()
	e.detached = true
	e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func NewRegistry(ttl time.Duration, snapshot Snapshotter) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		stores:   make(map[string]*entry),
		ttl:      ttl,
		snapshot: snapshot,
	}
}

// OnCreate registers fn to run for every store the registry creates from now on.
func (r *Registry) OnCreate(fn func(*Store)) {
	r.mu.Lock()
	r.onCreate = append(r.onCreate, fn)
	r.mu.Unlock()
}

// Get returns the session's store, creating (and restoring) it when needed.
// The snapshot is loaded without holding the registry lock.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	if st, ok := r.existing(sessionID); ok {
		return st
	}

	e := &entry{store: NewStore(sessionID)}
	if r.snapshot != nil {
		if history, ok := r.snapshot.Load(ctx, sessionID); ok {
			e.store.seed(history)
		}
		e.mirror(r.snapshot)
	}

	r.mu.Lock()
	if cur, ok := r.stores[sessionID]; ok {
		r.mu.Unlock()
		e.detach()
		cur.store.touch()
		return cur.store
	}
	r.stores[sessionID] = e
	hooks := append([]func(*Store){}, r.onCreate...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(e.store)
	}
	return e.store
}

func (r *Registry) existing(sessionID string) (*Store, bool) {
	r.mu.Lock()
	e, ok := r.stores[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.store.touch()
	return e.store, true
}

// Lookup returns the store without creating one.
func (r *Registry) Lookup(sessionID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[sessionID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Drop ends a session. Its store is discarded as a whole and its snapshot
// removed; a reply still in flight for it is not mirrored again.
func (r *Registry) Drop(ctx context.Context, sessionID string) {
	r.mu.Lock()
	e, ok := r.stores[sessionID]
	delete(r.stores, sessionID)
	r.mu.Unlock()
	if ok {
		e.detach()
	}
	if r.snapshot != nil {
		r.snapshot.Forget(ctx, sessionID)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// ExpireIdle drops sessions untouched for longer than the TTL and not
// currently running a query. It returns the number dropped.
func (r *Registry) ExpireIdle(now time.Time) int {
	r.mu.Lock()
	var expired []*entry
	for id, e := range r.stores {
		seen, loading := e.store.idleSince()
		if loading || now.Sub(seen) < r.ttl {
			continue
		}
		expired = append(expired, e)
		delete(r.stores, id)
	}
	r.mu.Unlock()
	for _, e := range expired {
		e.detach()
	}
	return len(expired)
}

// StartJanitor periodically expires idle sessions until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 4
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.ExpireIdle(now); n > 0 {
					log.Printf("expired %d idle sessions", n)
				}
			}
		}
	}()
}

package registry

import (
	"sort"
	"sync"
)

// Repository defines the concurrency-safe contract for reading and mutating
// session state.
type Repository interface {
	// Get returns a copy of the session for streamID.
	Get(streamID string) (Session, bool)

	// Update runs fn against the current session for streamID (nil if there is
	// none) while holding the write lock, so the read-modify-write is applied
	// atomically with respect to every other Update. fn may mutate cur in
	// place. If fn returns a non-nil session it is stored and a copy is
	// returned with ok=true; a nil return leaves the store untouched.
	Update(streamID string, fn func(cur *Session) *Session) (s Session, ok bool)

	// List returns copies of all sessions ordered by stream id.
	List() []Session

	// Count returns the number of sessions and how many of them are online.
	// Used for metrics.
	Count() (total, online int)
}

// InMemoryRepository is a concurrency-safe Repository backed by a Store.
// A single lock guards the whole store.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(streamID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.store.GetSession(streamID)
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Update implements Repository.Update.
func (r *InMemoryRepository) Update(streamID string, fn func(cur *Session) *Session) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, _ := r.store.GetSession(streamID)
	next := fn(cur)
	if next == nil {
		return Session{}, false
	}

	next.StreamID = streamID
	r.store.SetSession(next)
	return next.clone(), true
}

// List implements Repository.List.
func (r *InMemoryRepository) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListStreamIDs()
	sort.Strings(ids)

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := r.store.GetSession(id); ok {
			out = append(out, sess.clone())
		}
	}
	return out
}

// Count implements Repository.Count.
func (r *InMemoryRepository) Count() (total, online int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.store.ListStreamIDs() {
		sess, ok := r.store.GetSession(id)
		if !ok {
			continue
		}
		total++
		if sess.Status == StatusOnline {
			online++
		}
	}
	return total, online
}

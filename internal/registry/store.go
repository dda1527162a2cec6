package registry

// Store is the persistence abstraction for stream sessions.
// The Repository uses Store for all reads and writes and is responsible for
// locking; Store implementations need not be safe for concurrent use.
type Store interface {
	GetSession(streamID string) (*Session, bool)
	SetSession(s *Session)
	ListStreamIDs() []string
}

// InMemoryStore is an in-memory implementation of Store. Its contents live for
// the lifetime of the process.
type InMemoryStore struct {
	sessions map[string]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
	}
}

// GetSession implements Store.GetSession.
func (s *InMemoryStore) GetSession(streamID string) (*Session, bool) {
	sess, ok := s.sessions[streamID]
	return sess, ok
}

// SetSession implements Store.SetSession. An existing session for the same
// stream is replaced.
func (s *InMemoryStore) SetSession(sess *Session) {
	s.sessions[sess.StreamID] = sess
}

// ListStreamIDs implements Store.ListStreamIDs. Order is unspecified.
func (s *InMemoryStore) ListStreamIDs() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

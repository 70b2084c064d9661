package relay

import (
	"sync"

	"github.com/fetti/rideagent/internal/model/query"
)

// session holds one conversation's bounded history under its own lock, so
// concurrent dispatches on unrelated sessions never serialize on each other.
type session struct {
	mu       sync.Mutex
	messages []query.Message
}

// SessionStore maps opaque session IDs to bounded conversation histories.
// Sessions are created lazily on first use and live for the process
// lifetime; there is no eviction sweep (known growth trade-off, memory per
// session is bounded by the history limit).
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	limit    int
}

// NewSessionStore creates an empty store capping every history at limit
// messages (older entries evicted FIFO).
func NewSessionStore(limit int) *SessionStore {
	if limit < 1 {
		limit = 1
	}
	return &SessionStore{
		sessions: make(map[string]*session),
		limit:    limit,
	}
}

func (s *SessionStore) getOrCreate(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; ok {
		return sess
	}
	sess = &session{}
	s.sessions[id] = sess
	return sess
}

// Append adds a message to the session's history, evicting the oldest
// entries beyond the cap.
func (s *SessionStore) Append(id string, msg query.Message) {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.append(msg, s.limit)
}

// AppendAndWindow appends the message and returns a copy of the most recent
// window messages in one atomic step, so interleaved dispatches on the same
// session cannot observe a half-updated history.
func (s *SessionStore) AppendAndWindow(id string, msg query.Message, window int) []query.Message {
	sess := s.getOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.append(msg, s.limit)
	return sess.tail(window)
}

// History returns a copy of the session's full stored history. A session
// that was never written to yields an empty history.
func (s *SessionStore) History(id string) []query.Message {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.tail(len(sess.messages))
}

// Count returns the number of sessions seen so far.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// append must be called with the session lock held.
func (sess *session) append(msg query.Message, limit int) {
	sess.messages = append(sess.messages, msg)
	if len(sess.messages) > limit {
		sess.messages = sess.messages[len(sess.messages)-limit:]
	}
}

// tail must be called with the session lock held.
func (sess *session) tail(n int) []query.Message {
	if n > len(sess.messages) {
		n = len(sess.messages)
	}
	if n == 0 {
		return nil
	}
	out := make([]query.Message, n)
	copy(out, sess.messages[len(sess.messages)-n:])
	return out
}

package editor

import (
	"sync"
	"time"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/history"
)

// session is the in-memory state of one open document. mu serializes every
// read-modify-write of the document.
type session struct {
	mu sync.Mutex

	docID   string
	loaded  bool
	tree    *doctree.Tree
	version int64
	history *history.Stack

	lastUsed time.Time
}

// sessionStore is a thread-safe session registry with idle eviction.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	depth    int
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, depth int) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		depth:    depth,
		now:      time.Now,
	}
}

// get returns the session for docID, creating it if needed.
func (s *sessionStore) get(docID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[docID]
	if !ok {
		sess = &session{docID: docID, history: history.New(s.depth)}
		s.sessions[docID] = sess
	}
	return sess
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// cleanup drops sessions idle for longer than the TTL. Sessions in use are
// skipped.
func (s *sessionStore) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	evicted := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if now.Sub(sess.lastUsed) > s.ttl {
			delete(s.sessions, id)
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

package chat

import (
	"sync"
	"time"

	"github.com/BioTRaX/Growen-sub001/internal/persona"
)

const (
	defaultSessionIdle = 30 * time.Minute
	maxHTTPSessions    = 10000
)

// httpSessions keeps persona state between one-shot turns that share a
// session key and role. Idle entries are swept at most once per idle period.
type httpSessions struct {
	mu         sync.Mutex
	entries    map[string]*httpSession
	idle       time.Duration
	classifier persona.Classifier
	lastSweep  time.Time
	now        func() time.Time
}

// httpSession serializes the turns of one key; the tracker is not safe for
// concurrent use.
type httpSession struct {
	mu      sync.Mutex
	tracker *persona.Tracker
	seen    time.Time
}

func newHTTPSessions(idle time.Duration, c persona.Classifier) *httpSessions {
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &httpSessions{
		entries:    make(map[string]*httpSession),
		idle:       idle,
		classifier: c,
		now:        time.Now,
	}
}

// acquire returns the locked session for key and role. Callers must unlock it.
func (s *httpSessions) acquire(key, role string) *httpSession {
	id := key + "|" + role

	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
	}
	e, ok := s.entries[id]
	if ok && now.Sub(e.seen) > s.idle {
		ok = false
	}
	if !ok {
		if len(s.entries) >= maxHTTPSessions {
			s.evictOldest()
		}
		e = &httpSession{tracker: persona.NewTracker(s.classifier)}
		s.entries[id] = e
	}
	e.seen = now
	s.mu.Unlock()

	e.mu.Lock()
	return e
}

func (s *httpSessions) sweep(now time.Time) {
	for id, e := range s.entries {
		if now.Sub(e.seen) > s.idle {
			delete(s.entries, id)
		}
	}
	s.lastSweep = now
}

func (s *httpSessions) evictOldest() {
	var oldest string
	var at time.Time
	for id, e := range s.entries {
		if oldest == "" || e.seen.Before(at) {
			oldest, at = id, e.seen
		}
	}
	delete(s.entries, oldest)
}

func (s *httpSessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

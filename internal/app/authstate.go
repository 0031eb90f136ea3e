package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const authStateTTL = 10 * time.Minute

type authState struct {
	verifier  string
	createdAt time.Time
}

// AuthStateStore remembers pending logins: state → PKCE verifier. Entries
// live in memory only, are consumed on first use and expire after ten
// minutes.
type AuthStateStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]authState
}

func NewAuthStateStore(clock clockwork.Clock) *AuthStateStore {
	return &AuthStateStore{clock: clock, entries: make(map[string]authState)}
}

func (s *AuthStateStore) Put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = authState{verifier: verifier, createdAt: s.clock.Now()}
}

// Take removes state and returns its verifier. Unknown, consumed and expired
// states report false.
func (s *AuthStateStore) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return "", false
	}
	delete(s.entries, state)

	if s.clock.Since(entry.createdAt) > authStateTTL {
		return "", false
	}
	return entry.verifier, true
}

// Purge drops entries older than the TTL at now and returns how many went.
func (s *AuthStateStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for state, entry := range s.entries {
		if now.Sub(entry.createdAt) > authStateTTL {
			delete(s.entries, state)
			purged++
		}
	}
	return purged
}

// StartSweeper purges expired states every interval until the returned
// function is called.
func (s *AuthStateStore) StartSweeper(interval time.Duration) func() {
	ticker := s.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if purged := s.Purge(s.clock.Now()); purged > 0 {
					slog.Debug("Purged expired auth states", "count", purged)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (s *AuthStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

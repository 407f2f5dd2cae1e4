package monitor

import (
	"sync"
	"time"
)

// ContextStore holds the most recently reported application/window context,
// expiring after a TTL so stale titles never end up on activity logs.
type ContextStore struct {
	mu         sync.RWMutex
	appName    string
	title      string
	reportedAt time.Time
	ttl        time.Duration
}

// NewContextStore creates a context store with the given TTL
func NewContextStore(ttl time.Duration) *ContextStore {
	return &ContextStore{ttl: ttl}
}

// Set records the current application and window title
func (s *ContextStore) Set(appName, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appName = appName
	s.title = title
	s.reportedAt = time.Now()
}

// Current returns the freshest application and title, or empty strings when
// nothing has been reported within the TTL
func (s *ContextStore) Current() (appName, title string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reportedAt.IsZero() || time.Since(s.reportedAt) > s.ttl {
		return "", ""
	}
	return s.appName, s.title
}

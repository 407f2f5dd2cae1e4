package presence

import (
	"sort"
	"sync"
	"time"

	"workpulse/sync-agent/internal/models"

	"go.uber.org/zap"
)

// Registry maintains the set of currently-online users org-wide, derived from
// push-channel events. It holds at most one entry per user; the online count
// is always the size of the entry set. Removal is event-driven only.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]models.PresenceEntry
	logger  *zap.Logger
}

// NewRegistry creates an empty presence registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]models.PresenceEntry),
		logger:  logger,
	}
}

// Upsert inserts or replaces the entry for a user. Status and last-seen are
// last-write-wins; updating an existing user never changes the count.
func (r *Registry) Upsert(e models.PresenceEntry) {
	r.mu.Lock()
	_, existed := r.entries[e.UserID]
	r.entries[e.UserID] = e
	count := len(r.entries)
	r.mu.Unlock()

	if !existed {
		r.logger.Debug("User online",
			zap.String("user_id", e.UserID),
			zap.Int("online_count", count),
		)
	}
}

// Remove deletes a user's entry. Removing an absent user is a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	_, existed := r.entries[userID]
	delete(r.entries, userID)
	count := len(r.entries)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("User offline",
			zap.String("user_id", userID),
			zap.Int("online_count", count),
		)
	}
}

// UpdateStatus changes an online user's status in place and refreshes
// last-seen. Unknown users are ignored.
func (r *Registry) UpdateStatus(userID string, status models.PresenceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return
	}
	e.Status = status
	e.LastSeen = time.Now()
	r.entries[userID] = e
}

// ReplaceAll swaps the registry to exactly match a server-provided snapshot,
// correcting drift from missed events after a reconnect
func (r *Registry) ReplaceAll(entries []models.PresenceEntry) {
	fresh := make(map[string]models.PresenceEntry, len(entries))
	for _, e := range entries {
		fresh[e.UserID] = e
	}

	r.mu.Lock()
	r.entries = fresh
	count := len(r.entries)
	r.mu.Unlock()

	r.logger.Info("Presence roster resynced", zap.Int("online_count", count))
}

// Get returns the entry for a user, if online
func (r *Registry) Get(userID string) (models.PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	return e, ok
}

// Count returns the number of online users
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a copy of the roster sorted by display name
func (r *Registry) Snapshot() []models.PresenceEntry {
	r.mu.RLock()
	entries := make([]models.PresenceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name == entries[j].Name {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

package models

import "time"

// PresenceStatus is a user's last-known activity status on the push channel.
// The backend may introduce new values; consumers must pass unknown statuses
// through rather than reject them.
type PresenceStatus string

const (
	PresenceActive   PresenceStatus = "active"
	PresenceIdle     PresenceStatus = "idle"
	PresencePaused   PresenceStatus = "paused"
	PresenceOffline  PresenceStatus = "offline"
	PresenceInactive PresenceStatus = "inactive"
)

// PresenceEntry is a snapshot of one user's online status. Membership in the
// registry implies the user is currently connected to the push channel.
type PresenceEntry struct {
	UserID   string         `json:"user_id"`
	Name     string         `json:"name"`
	Role     string         `json:"role"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

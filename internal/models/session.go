package models

import "time"

// SessionStatus is the lifecycle state of a work session
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
)

// WorkSession represents one continuous (possibly paused) period of tracked
// effort against a project. The backend owns the cumulative second totals;
// the agent never computes them locally.
type WorkSession struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	OrganizationID     string        `json:"organization_id"`
	ProjectID          string        `json:"project_id"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            *time.Time    `json:"end_time,omitempty"`
	TotalActiveSeconds int64         `json:"total_active_seconds"`
	TotalIdleSeconds   int64         `json:"total_idle_seconds"`
	Status             SessionStatus `json:"status"`
	LastActivityAt     *time.Time    `json:"last_activity_at,omitempty"`
}

// Running reports whether the session still occupies the user's single
// session slot (at most one non-stopped session exists per user).
func (s *WorkSession) Running() bool {
	return s != nil && s.Status != SessionStopped
}

// StartSessionRequest is the payload for starting a new session
type StartSessionRequest struct {
	ProjectID string `json:"project_id"`
}

// ProjectBreakdown is one project's share of a daily summary
type ProjectBreakdown struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Seconds     int64  `json:"seconds"`
}

// DailySummary aggregates a single day's tracked time
type DailySummary struct {
	Date               string             `json:"date"`
	TotalActiveSeconds int64              `json:"total_active_seconds"`
	TotalIdleSeconds   int64              `json:"total_idle_seconds"`
	Projects           []ProjectBreakdown `json:"projects"`
}

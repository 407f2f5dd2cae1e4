package models

import "time"

// AlertType classifies a server-detected alert condition. Unknown values from
// the server are preserved as-is so newer backend versions don't break older
// agents.
type AlertType string

const (
	AlertIdle     AlertType = "idle"
	AlertOvertime AlertType = "overtime"
	AlertSystem   AlertType = "system"
)

// Alert is a server-derived notification of an idle or overtime condition.
// Alerts are created only by the backend; the agent can resolve them but
// never deletes them. Once ResolvedAt is set the alert is immutable.
type Alert struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	UserID         string     `json:"user_id"`
	SessionID      *string    `json:"session_id,omitempty"`
	Type           AlertType  `json:"type"`
	Severity       string     `json:"severity,omitempty"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}

// Resolved reports whether the alert has been resolved
func (a *Alert) Resolved() bool {
	return a.ResolvedAt != nil
}

// AlertFilter narrows an alert listing. Nil fields are not applied.
type AlertFilter struct {
	Type     *AlertType
	Resolved *bool
	Severity *string
}

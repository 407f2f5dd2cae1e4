package models

// ActivityKind is the monitor's rolling classification of the current user
type ActivityKind string

const (
	ActivityActive ActivityKind = "active"
	ActivityIdle   ActivityKind = "idle"
)

// InputKind identifies a qualifying local input event reported by the
// embedding UI
type InputKind string

const (
	InputPointerMove  InputKind = "pointer_move"
	InputPointerPress InputKind = "pointer_press"
	InputKeyPress     InputKind = "key_press"
	InputScroll       InputKind = "scroll"
)

// KnownInputKind reports whether k is a qualifying input event
func KnownInputKind(k InputKind) bool {
	switch k {
	case InputPointerMove, InputPointerPress, InputKeyPress, InputScroll:
		return true
	}
	return false
}

// ActivityLog is one best-effort activity-log submission matching the backend
// ActivityLogRequest structure
type ActivityLog struct {
	Type        ActivityKind `json:"type"`
	AppName     string       `json:"appName"`
	WindowTitle string       `json:"windowTitle"`
	URL         *string      `json:"url,omitempty"`
}

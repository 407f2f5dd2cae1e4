package models

import (
	"encoding/json"
	"fmt"
)

// EventName identifies a push-channel event. The server-pushed names form a
// closed set; RECONNECT is raised locally by the transport and never arrives
// on the wire.
type EventName string

const (
	EventUserOnline    EventName = "USER_ONLINE"
	EventUserOffline   EventName = "USER_OFFLINE"
	EventSessionUpdate EventName = "SESSION_UPDATE"
	EventIdleAlert     EventName = "INACTIVE_ALERT"
	EventOvertimeAlert EventName = "OVERTIME_ALERT"
	EventReconnect     EventName = "RECONNECT"
)

// Envelope is the wire framing for push-channel messages in both directions
type Envelope struct {
	Event   EventName       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a decoded push-channel event. Each payload shape is fixed per
// event name, so handlers can type-assert without inspecting raw JSON.
type Event interface {
	EventName() EventName
}

// UserOnlineEvent announces a user connecting to the push channel
type UserOnlineEvent struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func (UserOnlineEvent) EventName() EventName { return EventUserOnline }

// DisplayName joins the name fields the way the roster shows them
func (e UserOnlineEvent) DisplayName() string {
	if e.FirstName == "" {
		return e.LastName
	}
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// UserOfflineEvent announces a user leaving the push channel
type UserOfflineEvent struct {
	UserID string `json:"user_id"`
}

func (UserOfflineEvent) EventName() EventName { return EventUserOffline }

// SessionUpdateEvent carries the full session record after any server-side
// session transition
type SessionUpdateEvent struct {
	Session WorkSession `json:"session"`
}

func (SessionUpdateEvent) EventName() EventName { return EventSessionUpdate }

// AlertEvent announces a newly raised idle or overtime alert. The same shape
// serves both event names; Kind records which one arrived.
type AlertEvent struct {
	Kind    EventName `json:"-"`
	AlertID string    `json:"alert_id"`
	UserID  string    `json:"user_id"`
	Type    AlertType `json:"type"`
	Message string    `json:"message"`
}

func (e AlertEvent) EventName() EventName { return e.Kind }

// ReconnectEvent is raised locally on every successful reconnect (not the
// initial connect) so downstream components force a full state refresh
type ReconnectEvent struct {
	Attempt int
}

func (ReconnectEvent) EventName() EventName { return EventReconnect }

// DecodeEvent decodes an envelope into its typed event. Unknown event names
// return an error so the caller can log and skip them.
func DecodeEvent(env Envelope) (Event, error) {
	switch env.Event {
	case EventUserOnline:
		var e UserOnlineEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		return e, nil
	case EventUserOffline:
		var e UserOfflineEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		return e, nil
	case EventSessionUpdate:
		var e SessionUpdateEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		return e, nil
	case EventIdleAlert, EventOvertimeAlert:
		var e AlertEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		e.Kind = env.Event
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event name: %s", env.Event)
	}
}

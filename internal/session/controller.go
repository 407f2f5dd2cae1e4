package session

import (
	"context"
	"sync"

	"workpulse/sync-agent/internal/client"
	"workpulse/sync-agent/internal/models"

	"go.uber.org/zap"
)

// API is the backend surface the controller drives session transitions
// through
type API interface {
	StartSession(ctx context.Context, projectID string) (*models.WorkSession, error)
	PauseSession(ctx context.Context, sessionID string) (*models.WorkSession, error)
	ResumeSession(ctx context.Context, sessionID string) (*models.WorkSession, error)
	StopSession(ctx context.Context, sessionID string) (*models.WorkSession, error)
	ActiveSession(ctx context.Context) (*models.WorkSession, error)
}

// Invalidator marks cached reads stale after a confirmed mutation
type Invalidator interface {
	Invalidate(prefixes ...string)
}

// Controller owns the single active work session for the current user.
// Local state changes only after server confirmation; a failed call leaves
// state untouched and the error propagates to the caller. Operations are
// never retried automatically.
type Controller struct {
	api    API
	cache  Invalidator
	userID string
	logger *zap.Logger

	// opMu serializes user-triggered transitions; stateMu guards reads and
	// push-driven merges, which must not wait behind a network call.
	opMu    sync.Mutex
	stateMu sync.Mutex

	current        *models.WorkSession
	gen            uint64
	classification models.ActivityKind
}

// NewController creates a session lifecycle controller for one user
func NewController(api API, cache Invalidator, userID string, logger *zap.Logger) *Controller {
	return &Controller{
		api:            api,
		cache:          cache,
		userID:         userID,
		logger:         logger,
		classification: models.ActivityActive,
	}
}

// Current returns a copy of the active session, or nil when no session is
// running
func (c *Controller) Current() *models.WorkSession {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// Start begins a new session against a project. Fails with ConflictError
// when a non-stopped session already exists; callers must refresh current
// state rather than retry blindly.
func (c *Controller) Start(ctx context.Context, projectID string) (*models.WorkSession, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if cur := c.Current(); cur.Running() {
		return nil, &client.ConflictError{
			Message: "a session is already running; stop it before starting another",
		}
	}

	session, err := c.api.StartSession(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.apply(session)
	c.cache.Invalidate("sessions", "activeSession", "dailySummary")

	c.logger.Info("Session started",
		zap.String("session_id", session.ID),
		zap.String("project_id", projectID),
	)
	return c.Current(), nil
}

// Pause pauses the active session. Valid only from Active.
func (c *Controller) Pause(ctx context.Context) (*models.WorkSession, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Current()
	if cur == nil || cur.Status != models.SessionActive {
		return nil, &client.InvalidStateError{Message: "pause requires an active session"}
	}

	session, err := c.api.PauseSession(ctx, cur.ID)
	if err != nil {
		return nil, err
	}

	c.apply(session)
	c.cache.Invalidate("sessions", "activeSession")

	c.logger.Info("Session paused", zap.String("session_id", session.ID))
	return c.Current(), nil
}

// Resume resumes a paused session. Valid only from Paused.
func (c *Controller) Resume(ctx context.Context) (*models.WorkSession, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Current()
	if cur == nil || cur.Status != models.SessionPaused {
		return nil, &client.InvalidStateError{Message: "resume requires a paused session"}
	}

	session, err := c.api.ResumeSession(ctx, cur.ID)
	if err != nil {
		return nil, err
	}

	c.apply(session)
	c.cache.Invalidate("sessions", "activeSession")

	c.logger.Info("Session resumed", zap.String("session_id", session.ID))
	return c.Current(), nil
}

// Stop ends the session. Valid from Active or Paused; irreversible. A new
// session must be started to resume tracking.
func (c *Controller) Stop(ctx context.Context) (*models.WorkSession, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	cur := c.Current()
	if !cur.Running() {
		return nil, &client.InvalidStateError{Message: "stop requires a running session"}
	}

	session, err := c.api.StopSession(ctx, cur.ID)
	if err != nil {
		return nil, err
	}

	c.apply(session)
	c.cache.Invalidate("sessions", "activeSession", "sessionHistory", "dailySummary")

	c.logger.Info("Session stopped", zap.String("session_id", session.ID))
	return session, nil
}

// ApplyRemote merges a push-delivered session record. Safe to invoke
// redundantly: re-applying the current record is a no-op in effect.
// Sessions belonging to other users are ignored.
func (c *Controller) ApplyRemote(session models.WorkSession) {
	if session.UserID != c.userID {
		return
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if session.Status == models.SessionStopped {
		// A stop for a session we are not tracking stays a no-op.
		if c.current == nil || c.current.ID != session.ID {
			return
		}
		c.gen++
		c.current = nil
		return
	}

	// The server allows one non-stopped session per user, so a different
	// session id means the tracked one was stopped without us seeing it.
	c.gen++
	cp := session
	c.current = &cp
}

// Refresh re-fetches authoritative session state. The result is discarded
// when a newer local transition or push event landed while the fetch was in
// flight.
func (c *Controller) Refresh(ctx context.Context) error {
	c.stateMu.Lock()
	gen := c.gen
	c.stateMu.Unlock()

	session, err := c.api.ActiveSession(ctx)
	if err != nil {
		return err
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.gen != gen {
		c.logger.Debug("Discarding stale session refresh")
		return nil
	}
	c.gen++
	c.current = session
	return nil
}

// SetClassification records the activity monitor's advisory judgment. Local
// state only; server-computed totals are never overwritten.
func (c *Controller) SetClassification(kind models.ActivityKind) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.classification = kind
}

// Classification returns the monitor's latest active/idle judgment
func (c *Controller) Classification() models.ActivityKind {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.classification
}

func (c *Controller) apply(session *models.WorkSession) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.gen++
	if session == nil || session.Status == models.SessionStopped {
		c.current = nil
		return
	}
	cp := *session
	c.current = &cp
}

package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"workpulse/sync-agent/internal/models"

	"go.uber.org/zap"
)

// SessionSource exposes the session the monitor observes for
type SessionSource interface {
	Current() *models.WorkSession
	SetClassification(kind models.ActivityKind)
}

// LogSubmitter submits one activity-log entry to the backend
type LogSubmitter interface {
	SubmitActivityLog(ctx context.Context, sessionID string, log models.ActivityLog) error
}

// Spooler captures failed submissions for later retry. Optional.
type Spooler interface {
	Enqueue(sessionID string, log models.ActivityLog) error
}

// Monitor classifies the current user as active or idle from qualifying
// input events and submits periodic activity logs while a session is Active.
// Classification is coarse-grained sampling, advisory only; the server owns
// cumulative active/idle totals. Submission failures are swallowed (counted
// and optionally spooled) and must never block the session.
type Monitor struct {
	sessions      SessionSource
	submitter     LogSubmitter
	spool         Spooler
	contextStore  *ContextStore
	idleThreshold time.Duration
	checkInterval time.Duration
	appName       string
	logger        *zap.Logger

	mu        sync.Mutex
	lastInput time.Time
	idle      bool

	failures atomic.Uint64

	now      func() time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates an activity monitor
func NewMonitor(
	sessions SessionSource,
	submitter LogSubmitter,
	spool Spooler,
	contextStore *ContextStore,
	idleThreshold time.Duration,
	checkInterval time.Duration,
	appName string,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		sessions:      sessions,
		submitter:     submitter,
		spool:         spool,
		contextStore:  contextStore,
		idleThreshold: idleThreshold,
		checkInterval: checkInterval,
		appName:       appName,
		logger:        logger,
		now:           time.Now,
		lastInput:     time.Now(),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the periodic check loop
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.checkLoop()

	m.logger.Info("Activity monitor started",
		zap.Duration("idle_threshold", m.idleThreshold),
		zap.Duration("check_interval", m.checkInterval),
	)
}

// Stop stops the check loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	select {
	case <-m.stopChan:
		m.mu.Unlock()
		return
	default:
		close(m.stopChan)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Activity monitor stopped")
}

// RecordInput notes a qualifying input event. Unqualified kinds are ignored.
func (m *Monitor) RecordInput(kind models.InputKind) {
	if !models.KnownInputKind(kind) {
		return
	}

	m.mu.Lock()
	m.lastInput = m.now()
	wasIdle := m.idle
	m.idle = false
	m.mu.Unlock()

	if wasIdle {
		m.sessions.SetClassification(models.ActivityActive)
		m.logger.Debug("User active again", zap.String("input", string(kind)))
	}
}

// FailureCount returns how many activity-log submissions have failed since
// start
func (m *Monitor) FailureCount() uint64 {
	return m.failures.Load()
}

// Classify returns the current classification based on time since last input
func (m *Monitor) Classify() models.ActivityKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now().Sub(m.lastInput) >= m.idleThreshold {
		return models.ActivityIdle
	}
	return models.ActivityActive
}

func (m *Monitor) checkLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopChan:
			return
		}
	}
}

// tick runs one classification and submission cycle. Runs only while the
// session is Active; paused and absent sessions generate no logs.
func (m *Monitor) tick() {
	session := m.sessions.Current()
	if session == nil || session.Status != models.SessionActive {
		return
	}

	kind := m.Classify()

	m.mu.Lock()
	m.idle = kind == models.ActivityIdle
	m.mu.Unlock()

	m.sessions.SetClassification(kind)

	appName, title := m.contextStore.Current()
	if appName == "" {
		appName = m.appName
	}

	log := models.ActivityLog{
		Type:        kind,
		AppName:     appName,
		WindowTitle: title,
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.checkInterval)
	defer cancel()

	if err := m.submitter.SubmitActivityLog(ctx, session.ID, log); err != nil {
		m.failures.Add(1)
		m.logger.Debug("Activity log submission failed",
			zap.String("session_id", session.ID),
			zap.String("type", string(kind)),
			zap.Error(err),
		)
		if m.spool != nil {
			if spoolErr := m.spool.Enqueue(session.ID, log); spoolErr != nil {
				m.logger.Warn("Failed to spool activity log", zap.Error(spoolErr))
			}
		}
	}
}

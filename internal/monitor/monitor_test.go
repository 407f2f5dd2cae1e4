package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"workpulse/sync-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessions struct {
	mu              sync.Mutex
	current         *models.WorkSession
	classifications []models.ActivityKind
}

func (f *fakeSessions) Current() *models.WorkSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSessions) SetClassification(kind models.ActivityKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifications = append(f.classifications, kind)
}

func (f *fakeSessions) lastClassification() (models.ActivityKind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.classifications) == 0 {
		return "", false
	}
	return f.classifications[len(f.classifications)-1], true
}

type fakeSubmitter struct {
	mu   sync.Mutex
	logs []models.ActivityLog
	err  error
}

func (f *fakeSubmitter) SubmitActivityLog(ctx context.Context, sessionID string, log models.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

type fakeSpool struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (f *fakeSpool) Enqueue(sessionID string, log models.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, log)
	return nil
}

func activeSession() *models.WorkSession {
	return &models.WorkSession{ID: "s1", UserID: "u1", Status: models.SessionActive}
}

// newTestMonitor wires a monitor with a controllable clock. Returns the
// monitor and a function advancing the clock.
func newTestMonitor(sessions *fakeSessions, submitter *fakeSubmitter, spool Spooler) (*Monitor, func(time.Duration)) {
	m := NewMonitor(sessions, submitter, spool, NewContextStore(time.Minute),
		5*time.Minute, time.Minute, "WorkPulse Agent", zap.NewNop())

	var mu sync.Mutex
	now := time.Now()
	m.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	m.lastInput = now

	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	return m, advance
}

func TestClassify_IdleAfterThreshold(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	m, advance := newTestMonitor(sessions, &fakeSubmitter{}, nil)

	assert.Equal(t, models.ActivityActive, m.Classify())

	advance(4 * time.Minute)
	assert.Equal(t, models.ActivityActive, m.Classify(), "below threshold stays active")

	advance(time.Minute)
	assert.Equal(t, models.ActivityIdle, m.Classify(), "at threshold becomes idle")
}

func TestRecordInput_ResetsIdle(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	m, advance := newTestMonitor(sessions, &fakeSubmitter{}, nil)

	advance(6 * time.Minute)
	m.tick()
	require.Equal(t, models.ActivityIdle, m.Classify())

	m.RecordInput(models.InputKeyPress)
	assert.Equal(t, models.ActivityActive, m.Classify())

	kind, ok := sessions.lastClassification()
	require.True(t, ok)
	assert.Equal(t, models.ActivityActive, kind, "return to activity must be pushed immediately")
}

func TestRecordInput_IgnoresUnknownKinds(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	m, advance := newTestMonitor(sessions, &fakeSubmitter{}, nil)

	advance(6 * time.Minute)
	require.Equal(t, models.ActivityIdle, m.Classify())

	m.RecordInput(models.InputKind("gamepad"))
	assert.Equal(t, models.ActivityIdle, m.Classify(), "unqualified input must not reset the idle clock")
}

func TestTick_SubmitsLogWhileActive(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	submitter := &fakeSubmitter{}
	m, _ := newTestMonitor(sessions, submitter, nil)

	m.contextStore.Set("Firefox", "Dashboard - WorkPulse")
	m.tick()

	require.Len(t, submitter.logs, 1)
	log := submitter.logs[0]
	assert.Equal(t, models.ActivityActive, log.Type)
	assert.Equal(t, "Firefox", log.AppName)
	assert.Equal(t, "Dashboard - WorkPulse", log.WindowTitle)
}

func TestTick_NoSubmissionWithoutActiveSession(t *testing.T) {
	submitter := &fakeSubmitter{}

	for name, session := range map[string]*models.WorkSession{
		"no session": nil,
		"paused":     {ID: "s1", Status: models.SessionPaused},
		"stopped":    {ID: "s1", Status: models.SessionStopped},
	} {
		sessions := &fakeSessions{current: session}
		m, _ := newTestMonitor(sessions, submitter, nil)
		m.tick()
		assert.Empty(t, submitter.logs, "case %q must not submit", name)
		assert.Empty(t, sessions.classifications, "case %q must not classify", name)
	}
}

func TestTick_IdleLogAfterThreshold(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	submitter := &fakeSubmitter{}
	m, advance := newTestMonitor(sessions, submitter, nil)

	advance(6 * time.Minute)
	m.tick()

	require.Len(t, submitter.logs, 1)
	assert.Equal(t, models.ActivityIdle, submitter.logs[0].Type)

	kind, ok := sessions.lastClassification()
	require.True(t, ok)
	assert.Equal(t, models.ActivityIdle, kind)
}

func TestTick_FailureCountedAndSpooled(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	submitter := &fakeSubmitter{err: assert.AnError}
	spool := &fakeSpool{}
	m, _ := newTestMonitor(sessions, submitter, spool)

	m.tick()
	m.tick()

	assert.Equal(t, uint64(2), m.FailureCount())
	assert.Len(t, spool.entries, 2, "failed submissions must be spooled")
}

func TestTick_FailureWithoutSpool(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	submitter := &fakeSubmitter{err: assert.AnError}
	m, _ := newTestMonitor(sessions, submitter, nil)

	// Must not panic with no spool configured
	m.tick()
	assert.Equal(t, uint64(1), m.FailureCount())
}

func TestContextStore_ExpiresAfterTTL(t *testing.T) {
	s := NewContextStore(10 * time.Millisecond)
	s.Set("Firefox", "Dashboard")

	app, title := s.Current()
	assert.Equal(t, "Firefox", app)
	assert.Equal(t, "Dashboard", title)

	time.Sleep(20 * time.Millisecond)
	app, title = s.Current()
	assert.Empty(t, app, "stale context must not be reported")
	assert.Empty(t, title)
}

func TestStartStop(t *testing.T) {
	sessions := &fakeSessions{current: activeSession()}
	m := NewMonitor(sessions, &fakeSubmitter{}, nil, NewContextStore(time.Minute),
		5*time.Minute, 10*time.Millisecond, "WorkPulse Agent", zap.NewNop())

	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop() // idempotent

	kind, ok := sessions.lastClassification()
	require.True(t, ok, "loop must have ticked at least once")
	assert.Equal(t, models.ActivityActive, kind)
}

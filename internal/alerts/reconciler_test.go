package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"workpulse/sync-agent/internal/cache"
	"workpulse/sync-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBackend mimics server-side alert storage, including the one-way
// resolution rule
type fakeBackend struct {
	mu        sync.Mutex
	alerts    map[string]*models.Alert
	listCalls int
	failNext  error
}

func newFakeBackend(alerts ...*models.Alert) *fakeBackend {
	b := &fakeBackend{alerts: make(map[string]*models.Alert)}
	for _, a := range alerts {
		b.alerts[a.ID] = a
	}
	return b
}

func (b *fakeBackend) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++

	var out []models.Alert
	for _, a := range b.alerts {
		if filter.Type != nil && a.Type != *filter.Type {
			continue
		}
		if filter.Resolved != nil && a.Resolved() != *filter.Resolved {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (b *fakeBackend) ResolveAlert(ctx context.Context, alertID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return err
	}
	if a, ok := b.alerts[alertID]; ok && a.ResolvedAt == nil {
		now := time.Now()
		a.ResolvedAt = &now
	}
	return nil
}

func (b *fakeBackend) ResolveAllAlerts(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for _, a := range b.alerts {
		if a.ResolvedAt == nil {
			at := now
			a.ResolvedAt = &at
		}
	}
	return nil
}

func unresolvedAlert(id string, typ models.AlertType) *models.Alert {
	return &models.Alert{
		ID:        id,
		UserID:    "u1",
		Type:      typ,
		Message:   "test alert",
		CreatedAt: time.Now(),
	}
}

func resolvedAlert(id string, at time.Time) *models.Alert {
	a := unresolvedAlert(id, models.AlertIdle)
	a.ResolvedAt = &at
	return a
}

func newReconciler(b *fakeBackend) (*Reconciler, *cache.Cache) {
	c := cache.New(time.Minute, zap.NewNop())
	return NewReconciler(b, c, time.Hour, zap.NewNop()), c
}

func TestList_CachedUntilInvalidated(t *testing.T) {
	backend := newFakeBackend(unresolvedAlert("a1", models.AlertIdle))
	r, _ := newReconciler(backend)

	_, err := r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	_, err = r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.listCalls, "second list must come from cache")
}

func TestResolve_InvalidatesReadCache(t *testing.T) {
	backend := newFakeBackend(unresolvedAlert("a1", models.AlertIdle))
	r, _ := newReconciler(backend)

	resolved := false
	alerts, err := r.List(context.Background(), models.AlertFilter{Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	require.NoError(t, r.Resolve(context.Background(), "a1"))

	// The next read re-fetches and reflects the resolution
	alerts, err = r.List(context.Background(), models.AlertFilter{Resolved: &resolved})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestResolve_FailureLeavesCacheIntact(t *testing.T) {
	backend := newFakeBackend(unresolvedAlert("a1", models.AlertIdle))
	backend.failNext = assert.AnError
	r, _ := newReconciler(backend)

	_, err := r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	listCalls := backend.listCalls

	assert.Error(t, r.Resolve(context.Background(), "a1"))

	// No local mutation on failure: the cached list still serves
	_, err = r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, listCalls, backend.listCalls)
}

func TestResolveAll_Monotonic(t *testing.T) {
	earlier := time.Now().Add(-time.Hour)
	backend := newFakeBackend(
		unresolvedAlert("a1", models.AlertIdle),
		unresolvedAlert("a2", models.AlertOvertime),
		unresolvedAlert("a3", models.AlertIdle),
		resolvedAlert("a4", earlier),
		resolvedAlert("a5", earlier),
	)
	r, _ := newReconciler(backend)

	require.NoError(t, r.ResolveAll(context.Background()))

	alerts, err := r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 5)

	for _, a := range alerts {
		require.NotNil(t, a.ResolvedAt, "alert %s must be resolved", a.ID)
	}

	// Pre-resolved alerts keep their original resolution timestamps
	for _, id := range []string{"a4", "a5"} {
		a := backend.alerts[id]
		assert.True(t, a.ResolvedAt.Equal(earlier), "alert %s must keep its resolved_at", id)
	}
}

func TestNotifyPush_ForcesRefetch(t *testing.T) {
	backend := newFakeBackend(unresolvedAlert("a1", models.AlertIdle))
	r, _ := newReconciler(backend)

	_, err := r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)

	r.NotifyPush(models.AlertEvent{
		Kind:    models.EventIdleAlert,
		AlertID: "a2",
		UserID:  "u1",
		Type:    models.AlertIdle,
		Message: "user idle",
	})

	_, err = r.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.listCalls, "a push-notified alert must force a re-fetch")
}

func TestUnresolvedCount(t *testing.T) {
	backend := newFakeBackend(
		unresolvedAlert("a1", models.AlertIdle),
		unresolvedAlert("a2", models.AlertOvertime),
		resolvedAlert("a3", time.Now()),
	)
	r, _ := newReconciler(backend)

	count, err := r.UnresolvedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

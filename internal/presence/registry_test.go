package presence

import (
	"testing"
	"time"

	"workpulse/sync-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func entry(userID, name string) models.PresenceEntry {
	return models.PresenceEntry{
		UserID:   userID,
		Name:     name,
		Role:     "employee",
		Status:   models.PresenceActive,
		LastSeen: time.Now(),
	}
}

func TestUpsert_NewAndExisting(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Upsert(entry("u1", "Alice"))
	r.Upsert(entry("u2", "Bob"))
	assert.Equal(t, 2, r.Count())

	// Upserting an existing user replaces fields without changing the count
	updated := entry("u1", "Alice")
	updated.Status = models.PresenceIdle
	r.Upsert(updated)

	assert.Equal(t, 2, r.Count())
	got, ok := r.Get("u1")
	assert.True(t, ok)
	assert.Equal(t, models.PresenceIdle, got.Status)
}

func TestRemove_Idempotent(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Upsert(entry("u1", "Alice"))
	r.Remove("u1")
	assert.Equal(t, 0, r.Count())

	// Removing an absent user leaves count and set unchanged
	r.Remove("u1")
	r.Remove("never-existed")
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Snapshot())
}

func TestCountMatchesSnapshot(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	ops := []func(){
		func() { r.Upsert(entry("u1", "Alice")) },
		func() { r.Upsert(entry("u2", "Bob")) },
		func() { r.Upsert(entry("u1", "Alice")) },
		func() { r.Remove("u2") },
		func() { r.Remove("u2") },
		func() { r.Upsert(entry("u3", "Carol")) },
		func() { r.Remove("u1") },
	}

	for _, op := range ops {
		op()
		assert.Equal(t, len(r.Snapshot()), r.Count())
	}
}

func TestReplaceAll(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Upsert(entry("u1", "Alice"))
	r.Upsert(entry("u2", "Bob"))

	// A post-reconnect resync corrects drift from missed events
	r.ReplaceAll([]models.PresenceEntry{
		entry("u2", "Bob"),
		entry("u3", "Carol"),
		entry("u4", "Dave"),
	})

	assert.Equal(t, 3, r.Count())
	_, ok := r.Get("u1")
	assert.False(t, ok, "u1 missed its offline event and must be gone after resync")
	_, ok = r.Get("u4")
	assert.True(t, ok)
}

func TestUpdateStatus(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Upsert(entry("u1", "Alice"))
	r.UpdateStatus("u1", models.PresencePaused)

	got, _ := r.Get("u1")
	assert.Equal(t, models.PresencePaused, got.Status)

	// Unknown users are ignored rather than inserted
	r.UpdateStatus("ghost", models.PresenceActive)
	assert.Equal(t, 1, r.Count())
}

func TestSnapshot_SortedByName(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.Upsert(entry("u3", "Carol"))
	r.Upsert(entry("u1", "Alice"))
	r.Upsert(entry("u2", "Bob"))

	snapshot := r.Snapshot()
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, []string{
		snapshot[0].Name, snapshot[1].Name, snapshot[2].Name,
	})
}

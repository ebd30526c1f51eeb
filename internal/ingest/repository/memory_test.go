package repository

import (
	"testing"

	"mailatlas-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCheckpoints_Monotonic(t *testing.T) {
	store := NewMemoryCheckpoints()

	got, err := store.Get("g1")
	require.NoError(t, err)
	assert.Zero(t, got, "unset checkpoint reads as zero")

	require.NoError(t, store.Set("g1", 100))
	require.NoError(t, store.Set("g1", 50)) // lower write is a no-op

	got, err = store.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	require.NoError(t, store.Set("g1", 200))
	got, _ = store.Get("g1")
	assert.Equal(t, int64(200), got)
}

func TestMemoryDayNotes_BucketsAreIsolated(t *testing.T) {
	store := NewMemoryDayNotes()
	require.NoError(t, store.Append(&domain.DayNote{GrantID: "g1", DayKey: "2025-06-10", MessageID: "m1"}))
	require.NoError(t, store.Append(&domain.DayNote{GrantID: "g1", DayKey: "2025-06-10", MessageID: "m2"}))
	require.NoError(t, store.Append(&domain.DayNote{GrantID: "g2", DayKey: "2025-06-10", MessageID: "m3"}))

	notes, err := store.NotesForDay("g1", "2025-06-10")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "m1", notes[0].MessageID)
	assert.Equal(t, "m2", notes[1].MessageID)

	empty, err := store.NotesForDay("g1", "2025-06-11")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryJobs_TerminalJobsStayTerminal(t *testing.T) {
	store := NewMemoryJobs()
	job := &domain.SyncJob{ID: "j1", GrantID: "g1", Status: domain.JobStatusRunning}
	require.NoError(t, store.Create(job))

	job.Status = domain.JobStatusComplete
	require.NoError(t, store.Update(job))

	job.Status = domain.JobStatusRunning
	assert.Error(t, store.Update(job), "a complete job cannot go back to running")

	got, err := store.GetByID("j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusComplete, got.Status)

	missing, err := store.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemorySummaries_Upsert(t *testing.T) {
	store := NewMemorySummaries()

	got, err := store.Get("g1", domain.SummaryKindDay, "2025-06-10")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.Save("g1", domain.SummaryKindDay, "2025-06-10", "v1"))
	require.NoError(t, store.Save("g1", domain.SummaryKindDay, "2025-06-10", "v2"))

	got, _ = store.Get("g1", domain.SummaryKindDay, "2025-06-10")
	assert.Equal(t, "v2", got)

	// Kinds do not collide on the same key.
	require.NoError(t, store.Save("g1", domain.SummaryKindWeek, "2025-06-10", "other"))
	got, _ = store.Get("g1", domain.SummaryKindDay, "2025-06-10")
	assert.Equal(t, "v2", got)
}

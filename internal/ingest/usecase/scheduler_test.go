package usecase

import (
	"context"
	"testing"
	"time"

	"mailatlas-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSync_BackfillWithoutCheckpoint(t *testing.T) {
	h := newHarness(newScriptedProvider(), testGrant("g1"))
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	h.scheduler.now = func() time.Time { return now }

	job, err := h.scheduler.StartSync(context.Background(), "g1", 500)
	require.NoError(t, err)
	assert.Equal(t, domain.JobTypeBackfill, job.Type)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, 500, job.Max)

	published := h.queue.Published
	require.Len(t, published, 1)
	assert.Equal(t, "g1", published[0].OrderingKey)

	page, err := domain.ParsePageJob(published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "g1", page.GrantID)
	assert.Equal(t, now.AddDate(0, 0, -30).Unix(), page.SinceEpoch)
	assert.Equal(t, 500, page.Max)
	assert.Equal(t, job.ID, page.JobID)
	assert.Empty(t, page.PageToken)
	assert.Zero(t, page.Processed)
	assert.Zero(t, page.Attempt)
}

func TestStartSync_DeltaFromCheckpoint(t *testing.T) {
	h := newHarness(newScriptedProvider(), testGrant("g1"))
	require.NoError(t, h.checkpoints.Set("g1", 1749556800))

	job, err := h.scheduler.StartSync(context.Background(), "g1", 200)
	require.NoError(t, err)
	assert.Equal(t, domain.JobTypeDelta, job.Type)

	page, err := domain.ParsePageJob(h.queue.Published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1749556800), page.SinceEpoch, "delta syncs resume from the checkpoint")
}

func TestStartSync_RejectsBadArguments(t *testing.T) {
	h := newHarness(newScriptedProvider(), testGrant("g1"))

	_, err := h.scheduler.StartSync(context.Background(), "", 100)
	assert.ErrorIs(t, err, domain.ErrMalformedJob)

	_, err = h.scheduler.StartSync(context.Background(), "g1", 0)
	assert.ErrorIs(t, err, domain.ErrMalformedJob)

	assert.Empty(t, h.queue.Published)
}

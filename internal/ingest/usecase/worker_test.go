package usecase

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"mailatlas-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epochAt(day string, hour int) int64 {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return t.Add(time.Duration(hour) * time.Hour).Unix()
}

func queuedJob(t *testing.T, h *harness, grantID string, max int) *domain.PageJob {
	t.Helper()
	rec := &domain.SyncJob{ID: "job-" + grantID, GrantID: grantID, Type: domain.JobTypeDelta, Status: domain.JobStatusQueued, Max: max}
	require.NoError(t, h.jobs.Create(rec))
	return &domain.PageJob{GrantID: grantID, SinceEpoch: 1000, Max: max, JobID: rec.ID}
}

func encode(t *testing.T, job *domain.PageJob) []byte {
	t.Helper()
	payload, err := job.Encode()
	require.NoError(t, err)
	return payload
}

func TestHandleJob_CompletesSinglePage(t *testing.T) {
	early := epochAt("2025-06-10", 9)
	late := epochAt("2025-06-10", 15)
	provider := newScriptedProvider(pageScript{page: &domain.MessagePage{
		Messages: []*domain.Message{
			testMessage("m1", "t1", early),
			testMessage("m2", "t1", late),
		},
	}})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 1000)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	// Provider saw the cursor-free first page, capped at the page size.
	require.Len(t, provider.calls, 1)
	assert.Equal(t, int64(1000), provider.calls[0].sinceEpoch)
	assert.Equal(t, "", provider.calls[0].pageToken)
	assert.Equal(t, 200, provider.calls[0].limit)

	// Message vectors landed under their grammar ids.
	assert.True(t, h.index.hasDense("msg:m1"))
	assert.True(t, h.index.hasDense("msg:m2"))

	// Cleaned text persisted, day notes appended.
	assert.Contains(t, h.contents.Texts, "g1/m1")
	notes, err := h.notes.NotesForDay("g1", "2025-06-10")
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	// Final page: checkpoint advanced to the max observed epoch.
	checkpoint, err := h.checkpoints.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, late, checkpoint)

	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusComplete, rec.Status)
	assert.Equal(t, 2, rec.Processed)

	// No continuation for a final page.
	assert.Empty(t, h.queue.Pending())
}

func TestHandleJob_ContinuationCarriesCursor(t *testing.T) {
	provider := newScriptedProvider(pageScript{page: &domain.MessagePage{
		Messages: []*domain.Message{
			testMessage("m1", "t1", epochAt("2025-06-10", 9)),
			testMessage("m2", "t1", epochAt("2025-06-10", 10)),
		},
		NextPageToken: "p2",
	}})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 1000)
	job.Attempt = 2 // a retried page that now succeeded

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	published := h.queue.Published
	require.Len(t, published, 1)
	assert.Equal(t, "g1", published[0].OrderingKey)
	assert.Equal(t, 200*time.Millisecond, published[0].Delay)

	next, err := domain.ParsePageJob(published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "p2", next.PageToken)
	assert.Equal(t, 2, next.Processed)
	assert.Equal(t, 0, next.Attempt, "continuation starts with a fresh retry budget")
	assert.Equal(t, job.JobID, next.JobID)
	assert.Equal(t, job.SinceEpoch, next.SinceEpoch)

	// Mid-job: the checkpoint does not move.
	checkpoint, err := h.checkpoints.Get("g1")
	require.NoError(t, err)
	assert.Zero(t, checkpoint)

	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, rec.Status)
}

func TestHandleJob_StopsAtMax(t *testing.T) {
	late := epochAt("2025-06-10", 12)
	provider := newScriptedProvider(pageScript{page: &domain.MessagePage{
		Messages: []*domain.Message{
			testMessage("m1", "t1", epochAt("2025-06-10", 9)),
			testMessage("m2", "t1", late),
		},
		NextPageToken: "p2", // provider has more, the cap says stop
	}})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 2)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	assert.Equal(t, 2, provider.calls[0].limit, "limit shrinks to the remaining budget")
	assert.Empty(t, h.queue.Published, "reaching max ends the job even with a next page token")

	checkpoint, err := h.checkpoints.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, late, checkpoint)

	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusComplete, rec.Status)
}

func TestHandleJob_TransientErrorRetriesWithBackoff(t *testing.T) {
	provider := newScriptedProvider(pageScript{err: domain.ErrRateLimited})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 1000)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	published := h.queue.Published
	require.Len(t, published, 1)
	assert.Equal(t, DefaultBackoffLadder[0], published[0].Delay)

	retry, err := domain.ParsePageJob(published[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Attempt)
	assert.Equal(t, job.PageToken, retry.PageToken)
	assert.Equal(t, job.Processed, retry.Processed)

	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.False(t, rec.Terminal(), "retryable failures leave the job live")
}

func TestHandleJob_BackoffLadderIndexedByAttempt(t *testing.T) {
	for attempt, want := range DefaultBackoffLadder {
		provider := newScriptedProvider(pageScript{err: domain.ErrUpstreamUnavailable})
		h := newHarness(provider, testGrant("g1"))
		job := queuedJob(t, h, "g1", 1000)
		job.Attempt = attempt

		require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

		published := h.queue.Published
		require.Len(t, published, 1, "attempt %d", attempt)
		assert.Equal(t, want, published[0].Delay, "attempt %d", attempt)

		retry, err := domain.ParsePageJob(published[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, attempt+1, retry.Attempt)
	}
}

func TestHandleJob_AbandonsAfterLadderExhausted(t *testing.T) {
	provider := newScriptedProvider(pageScript{err: domain.ErrRateLimited})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 1000)
	job.Attempt = len(DefaultBackoffLadder)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	assert.Empty(t, h.queue.Published, "an exhausted ladder publishes nothing")
}

func TestHandleJob_AuthErrorIsTerminal(t *testing.T) {
	provider := newScriptedProvider(pageScript{err: domain.ErrAuth})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 1000)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	assert.Empty(t, h.queue.Published)
	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, rec.Status)
	assert.Contains(t, rec.Message, "reconnect")
}

func TestHandleJob_UnknownErrorIsTerminal(t *testing.T) {
	provider := newScriptedProvider(pageScript{err: errors.New("wire torn")})
	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 1000)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	assert.Empty(t, h.queue.Published)
	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, rec.Status)
}

func TestHandleJob_UnknownGrantFailsJob(t *testing.T) {
	h := newHarness(newScriptedProvider()) // no grants registered
	job := queuedJob(t, h, "ghost", 100)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, rec.Status)
}

func TestHandleJob_MalformedPayloadDropped(t *testing.T) {
	h := newHarness(newScriptedProvider(), testGrant("g1"))

	// Never an error: redelivering a malformed payload cannot help.
	require.NoError(t, h.worker.HandleJob(context.Background(), []byte(`{"max":`)))
	require.NoError(t, h.worker.HandleJob(context.Background(), []byte(`{"grantId":"","max":5}`)))

	assert.Empty(t, h.queue.Published)
	assert.Empty(t, h.provider.calls)
}

func TestHandleJob_AttachmentFailureSkipsOnlyThatAttachment(t *testing.T) {
	msg := testMessage("m1", "t1", epochAt("2025-06-10", 9))
	msg.Attachments = []domain.AttachmentRef{
		{ID: "a1", Filename: "report.pdf", ContentType: "application/pdf"},
		{ID: "a2", Filename: "photo.png", ContentType: "image/png"},
	}
	provider := newScriptedProvider(pageScript{page: &domain.MessagePage{Messages: []*domain.Message{msg}}})
	provider.attachments["m1/a1"] = []byte("pdf bytes")
	provider.attachmentErrs["m1/a2"] = errors.New("download truncated")

	h := newHarness(provider, testGrant("g1"))
	job := queuedJob(t, h, "g1", 100)

	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))

	assert.True(t, h.index.hasDense("msg:m1"))
	assert.True(t, h.index.hasDense("file:m1:a1"))
	assert.False(t, h.index.hasDense("file:m1:a2"), "the failed attachment is skipped, not fatal")
	assert.Contains(t, h.contents.Attachments, "g1/m1/a1")

	rec, err := h.jobs.GetByID(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusComplete, rec.Status)
}

func TestHandleJob_MultiPageCheckpointIsJobWideMax(t *testing.T) {
	// The newest message arrives on the first page; later pages are older.
	newest := epochAt("2025-06-11", 18)
	provider := newScriptedProvider(
		pageScript{page: &domain.MessagePage{
			Messages: []*domain.Message{
				testMessage("m1", "t1", newest),
				testMessage("m2", "t1", epochAt("2025-06-11", 10)),
			},
			NextPageToken: "p2",
		}},
		pageScript{page: &domain.MessagePage{
			Messages: []*domain.Message{
				testMessage("m3", "t2", epochAt("2025-06-10", 8)),
				testMessage("m4", "t2", epochAt("2025-06-10", 9)),
			},
		}},
	)
	h := newHarness(provider, testGrant("g1"))

	job, err := h.scheduler.StartSync(context.Background(), "g1", 1000)
	require.NoError(t, err)

	// Drain the queue: first page, continuation, completion.
	require.NoError(t, h.queue.Subscribe(context.Background(), h.worker.HandleJob))

	checkpoint, err := h.checkpoints.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, newest, checkpoint, "checkpoint is the max epoch across all pages of the job")

	rec, err := h.jobs.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusComplete, rec.Status)
	assert.Equal(t, 4, rec.Processed)
	assert.Len(t, provider.calls, 2)
	assert.Equal(t, "p2", provider.calls[1].pageToken)
}

func TestHandleJob_ReprocessingYieldsSameVectorIDs(t *testing.T) {
	makePage := func() pageScript {
		return pageScript{page: &domain.MessagePage{Messages: []*domain.Message{
			testMessage("m1", "t1", epochAt("2025-06-10", 9)),
			testMessage("m2", "t2", epochAt("2025-06-10", 10)),
		}}}
	}
	provider := newScriptedProvider(makePage(), makePage())
	h := newHarness(provider, testGrant("g1"))

	job := queuedJob(t, h, "g1", 100)
	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, job)))
	firstRun := uniqueSorted(h.index.denseIDs())

	// Redelivery of the same page writes the same ids, so upserts overwrite.
	redelivered := *job
	require.NoError(t, h.worker.HandleJob(context.Background(), encode(t, &redelivered)))
	secondRun := uniqueSorted(h.index.denseIDs())

	assert.Equal(t, firstRun, secondRun)
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

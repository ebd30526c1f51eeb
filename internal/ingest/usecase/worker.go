package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	grantdomain "mailatlas-backend/internal/grant/domain"
	grantrepo "mailatlas-backend/internal/grant/repository"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/pkg/ai"
	"mailatlas-backend/pkg/queue"

	"github.com/rs/zerolog"
)

// DefaultBackoffLadder is the fixed retry schedule for transient provider
// failures. attempt n sleeps ladder[min(n, len-1)]; once attempt reaches the
// ladder length the job is abandoned.
var DefaultBackoffLadder = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	60 * time.Second,
}

const defaultMessageWorkers = 4

// Worker consumes page jobs: it fetches one provider page, runs the
// per-message pipeline, maintains rollups for the touched buckets and
// decides between continuation and completion.
type Worker struct {
	log        zerolog.Logger
	grants     grantrepo.GrantRepository
	providers  map[string]domain.MailProvider
	text       ai.TextService
	summarizer *ai.MapReduceSummarizer
	sparse     *ai.SparseEncoder
	index      VectorIndexService
	queue      queue.Client
	rollups    *RollupEngine

	checkpoints repository.CheckpointRepository
	notes       repository.DayNoteRepository
	jobs        repository.JobRepository
	contents    repository.ContentRepository

	backoff           []time.Duration
	pageSize          int
	continuationDelay time.Duration
	messageWorkers    int
}

// WorkerConfig wires a Worker.
type WorkerConfig struct {
	Grants      grantrepo.GrantRepository
	Providers   map[string]domain.MailProvider
	Text        ai.TextService
	Sparse      *ai.SparseEncoder
	Index       VectorIndexService
	Queue       queue.Client
	Rollups     *RollupEngine
	Checkpoints repository.CheckpointRepository
	Notes       repository.DayNoteRepository
	Jobs        repository.JobRepository
	Contents    repository.ContentRepository

	Backoff           []time.Duration
	PageSize          int
	ContinuationDelay time.Duration
	SummaryThreshold  int
	MessageWorkers    int
	Logger            zerolog.Logger
}

// NewWorker creates an ingestion worker.
func NewWorker(cfg WorkerConfig) *Worker {
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = DefaultBackoffLadder
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 200
	}
	workers := cfg.MessageWorkers
	if workers <= 0 {
		workers = defaultMessageWorkers
	}
	return &Worker{
		log:               cfg.Logger.With().Str("component", "ingest-worker").Logger(),
		grants:            cfg.Grants,
		providers:         cfg.Providers,
		text:              cfg.Text,
		summarizer:        ai.NewMapReduceSummarizer(cfg.Text, cfg.SummaryThreshold),
		sparse:            cfg.Sparse,
		index:             cfg.Index,
		queue:             cfg.Queue,
		rollups:           cfg.Rollups,
		checkpoints:       cfg.Checkpoints,
		notes:             cfg.Notes,
		jobs:              cfg.Jobs,
		contents:          cfg.Contents,
		backoff:           backoff,
		pageSize:          pageSize,
		continuationDelay: cfg.ContinuationDelay,
		messageWorkers:    workers,
	}
}

// HandleJob processes one queue payload. It always returns nil: every
// failure mode is resolved internally (retry publish, terminal job state or
// abandonment), so the transport never redelivers on our account.
func (w *Worker) HandleJob(ctx context.Context, payload []byte) error {
	job, err := domain.ParsePageJob(payload)
	if err != nil {
		// Rejected before any side effect; redelivering would not help.
		w.log.Error().Err(err).Msg("dropping malformed job payload")
		return nil
	}
	log := w.log.With().Str("grant", job.GrantID).Str("job", job.JobID).Logger()

	grant, err := w.grants.FindByID(job.GrantID)
	if err != nil {
		w.failJob(job, fmt.Sprintf("failed to load grant: %v", err))
		return nil
	}
	if grant == nil {
		w.failJob(job, fmt.Sprintf("grant %s not registered", job.GrantID))
		return nil
	}
	provider, ok := w.providers[grant.Provider]
	if !ok {
		w.failJob(job, fmt.Sprintf("no mail provider for kind %q", grant.Provider))
		return nil
	}

	w.markRunning(job)

	limit := w.pageSize
	if remaining := job.Max - job.Processed; remaining < limit {
		limit = remaining
	}

	page, err := provider.ListMessages(ctx, grant, job.SinceEpoch, job.PageToken, limit)
	if err != nil {
		w.handlePageError(ctx, job, err)
		return nil
	}
	log.Info().Int("messages", len(page.Messages)).Str("pageToken", job.PageToken).Msg("processing page")

	result, err := w.processPage(ctx, grant, provider, page)
	if err != nil {
		// Work already upserted this page and earlier stays valid.
		w.failJob(job, fmt.Sprintf("pipeline failed: %v", err))
		return nil
	}

	// Batch upserts amortize the index round trips: one call per mode.
	if err := w.index.UpsertDense(ctx, job.GrantID, result.dense); err != nil {
		w.failJob(job, fmt.Sprintf("dense upsert failed: %v", err))
		return nil
	}
	if err := w.index.UpsertSparse(ctx, job.GrantID, result.sparse); err != nil {
		w.failJob(job, fmt.Sprintf("sparse upsert failed: %v", err))
		return nil
	}
	log.Info().
		Int("dense", len(result.dense)).
		Int("sparse", len(result.sparse)).
		Int64("maxEpoch", result.maxEpoch).
		Msg("page indexed")

	w.rollups.RecomputePage(ctx, job.GrantID, result.dayKeys(), result.threadNotes)

	pageCount := len(page.Messages)
	processed := job.Processed + pageCount
	lastSync := w.bumpProgress(job, processed, len(result.dense)+len(result.sparse), result.maxEpoch)

	if page.NextPageToken != "" && processed < job.Max {
		next := *job
		next.PageToken = page.NextPageToken
		next.Processed = processed
		next.Attempt = 0 // continuation gets a fresh retry budget
		w.enqueue(ctx, &next, w.continuationDelay)
		return nil
	}

	// Final page: advance the checkpoint to the max epoch observed across
	// the whole job, never below a higher prior value.
	final := result.maxEpoch
	if lastSync > final {
		final = lastSync
	}
	if final > 0 {
		if err := w.checkpoints.Set(job.GrantID, final); err != nil {
			log.Error().Err(err).Msg("checkpoint update failed")
		}
	}
	w.completeJob(job, processed, final)
	log.Info().Int("processed", processed).Int64("checkpoint", final).Msg("sync complete")
	return nil
}

// processPage runs the per-message pipeline over the page with bounded
// parallelism. Upserts happen only after every message finished.
func (w *Worker) processPage(ctx context.Context, grant *grantdomain.Grant, provider domain.MailProvider, page *domain.MessagePage) (*pageResult, error) {
	result := newPageResult()

	sem := make(chan struct{}, w.messageWorkers)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	for _, msg := range page.Messages {
		wg.Add(1)
		sem <- struct{}{}
		go func(m *domain.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.processMessage(ctx, grant, provider, m, result); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(msg)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// handlePageError applies the failure taxonomy to a provider page failure.
func (w *Worker) handlePageError(ctx context.Context, job *domain.PageJob, err error) {
	log := w.log.With().Str("grant", job.GrantID).Str("job", job.JobID).Int("attempt", job.Attempt).Logger()

	switch {
	case errors.Is(err, domain.ErrAuth):
		// Terminal: retrying with the same credentials cannot succeed.
		w.failJob(job, fmt.Sprintf("authentication failed, reconnect the grant: %v", err))

	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrUpstreamUnavailable):
		if job.Attempt >= len(w.backoff) {
			// Ladder exhausted: abandon, leaving the job in its last state.
			log.Error().Err(err).Msg("retry ladder exhausted, abandoning job")
			return
		}
		delay := w.backoff[minInt(job.Attempt, len(w.backoff)-1)]
		retry := *job
		retry.Attempt++
		log.Warn().Err(err).Dur("delay", delay).Msg("transient provider error, retrying page")
		w.enqueue(ctx, &retry, delay)

	default:
		w.failJob(job, fmt.Sprintf("unexpected provider error: %v", err))
	}
}

// enqueue publishes a page job under the grant's ordering key.
func (w *Worker) enqueue(ctx context.Context, job *domain.PageJob, delay time.Duration) {
	payload, err := job.Encode()
	if err != nil {
		w.log.Error().Err(err).Msg("failed to encode job")
		return
	}
	if err := w.queue.PublishAfter(ctx, job.GrantID, payload, delay); err != nil {
		w.log.Error().Err(err).Str("grant", job.GrantID).Msg("failed to enqueue job")
	}
}

// Job-state updates are best effort: they feed progress reporting and must
// never crash the pipeline.

func (w *Worker) markRunning(job *domain.PageJob) {
	w.mutateJob(job, func(rec *domain.SyncJob) {
		rec.Status = domain.JobStatusRunning
	})
}

func (w *Worker) bumpProgress(job *domain.PageJob, processed, indexed int, maxEpoch int64) int64 {
	var lastSync int64
	w.mutateJob(job, func(rec *domain.SyncJob) {
		rec.Status = domain.JobStatusRunning
		rec.Processed = processed
		rec.IndexedVectors += indexed
		if maxEpoch > rec.LastSyncTimestamp {
			rec.LastSyncTimestamp = maxEpoch
		}
		lastSync = rec.LastSyncTimestamp
	})
	if lastSync == 0 {
		lastSync = maxEpoch
	}
	return lastSync
}

func (w *Worker) completeJob(job *domain.PageJob, processed int, lastSync int64) {
	w.mutateJob(job, func(rec *domain.SyncJob) {
		rec.Status = domain.JobStatusComplete
		rec.Processed = processed
		rec.LastSyncTimestamp = lastSync
		rec.Message = "sync complete"
	})
}

func (w *Worker) failJob(job *domain.PageJob, message string) {
	w.log.Error().Str("grant", job.GrantID).Str("job", job.JobID).Msg(message)
	w.mutateJob(job, func(rec *domain.SyncJob) {
		rec.Status = domain.JobStatusError
		rec.Message = message
	})
}

func (w *Worker) mutateJob(job *domain.PageJob, mutate func(*domain.SyncJob)) {
	if job.JobID == "" {
		return
	}
	rec, err := w.jobs.GetByID(job.JobID)
	if err != nil || rec == nil {
		w.log.Warn().Err(err).Str("job", job.JobID).Msg("failed to load job record")
		return
	}
	if rec.Terminal() {
		return
	}
	mutate(rec)
	if err := w.jobs.Update(rec); err != nil {
		w.log.Warn().Err(err).Str("job", job.JobID).Msg("failed to update job record")
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

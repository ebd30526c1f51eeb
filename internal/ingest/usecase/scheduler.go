package usecase

import (
	"context"
	"fmt"
	"time"

	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/pkg/queue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduler kicks off sync jobs. Whether a job is a backfill or a delta is
// decided by the checkpoint: with no checkpoint the window opens lookback
// days into the past, otherwise it opens at the stored high-water mark.
type Scheduler struct {
	log          zerolog.Logger
	checkpoints  repository.CheckpointRepository
	jobs         repository.JobRepository
	queue        queue.Client
	lookbackDays int
	now          func() time.Time
}

// NewScheduler creates a scheduler publishing onto the given queue.
func NewScheduler(checkpoints repository.CheckpointRepository, jobs repository.JobRepository, q queue.Client, lookbackDays int, log zerolog.Logger) *Scheduler {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &Scheduler{
		log:          log.With().Str("component", "scheduler").Logger(),
		checkpoints:  checkpoints,
		jobs:         jobs,
		queue:        q,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// StartSync creates a job record and publishes its first page. The returned
// job is in the queued state; the worker advances it from there.
func (s *Scheduler) StartSync(ctx context.Context, grantID string, max int) (*domain.SyncJob, error) {
	if grantID == "" {
		return nil, fmt.Errorf("%w: missing grant id", domain.ErrMalformedJob)
	}
	if max <= 0 {
		return nil, fmt.Errorf("%w: max must be positive", domain.ErrMalformedJob)
	}

	checkpoint, err := s.checkpoints.Get(grantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	jobType := domain.JobTypeDelta
	since := checkpoint
	if checkpoint == 0 {
		jobType = domain.JobTypeBackfill
		since = s.now().UTC().AddDate(0, 0, -s.lookbackDays).Unix()
	}

	job := &domain.SyncJob{
		ID:                uuid.New().String(),
		GrantID:           grantID,
		Type:              jobType,
		Status:            domain.JobStatusQueued,
		Max:               max,
		LastSyncTimestamp: checkpoint,
	}
	if err := s.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	page := &domain.PageJob{
		GrantID:    grantID,
		SinceEpoch: since,
		Max:        max,
		JobID:      job.ID,
	}
	payload, err := page.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.queue.Publish(ctx, grantID, payload); err != nil {
		job.Status = domain.JobStatusError
		job.Message = "failed to enqueue first page"
		if uerr := s.jobs.Update(job); uerr != nil {
			s.log.Warn().Err(uerr).Str("jobId", job.ID).Msg("failed to mark job errored")
		}
		return nil, fmt.Errorf("failed to publish page job: %w", err)
	}

	s.log.Info().
		Str("grantId", grantID).
		Str("jobId", job.ID).
		Str("type", jobType).
		Int64("since", since).
		Int("max", max).
		Msg("sync started")
	return job, nil
}

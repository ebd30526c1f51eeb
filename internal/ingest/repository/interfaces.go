package repository

import "mailatlas-backend/internal/ingest/domain"

// CheckpointRepository stores the per-grant high-water-mark epoch.
type CheckpointRepository interface {
	// Get returns the checkpoint epoch, 0 when none exists yet.
	Get(grantID string) (int64, error)
	// Set stores max(current, epoch); lower writes are no-ops.
	Set(grantID string, epoch int64) error
}

// DayNoteRepository is the append-only per-grant-per-day ledger.
type DayNoteRepository interface {
	Append(note *domain.DayNote) error
	NotesForDay(grantID, dayKey string) ([]domain.DayNote, error)
}

// JobRepository stores job progress records.
type JobRepository interface {
	Create(job *domain.SyncJob) error
	Update(job *domain.SyncJob) error
	GetByID(id string) (*domain.SyncJob, error)
}

// SummaryRepository stores derived rollup text.
type SummaryRepository interface {
	Get(grantID, kind, key string) (string, error)
	Save(grantID, kind, key, summary string) error
}

// ContentRepository persists cleaned message text and raw attachment bytes.
type ContentRepository interface {
	SaveMessageText(grantID, messageID, cleanText string) error
	SaveAttachment(blob *domain.AttachmentBlob) error
}

package repository

import (
	"errors"
	"fmt"

	"mailatlas-backend/internal/ingest/domain"

	"gorm.io/gorm"
)

// jobRepository implements JobRepository on postgres.
type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new instance of jobRepository.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

// Create inserts a new job record.
func (r *jobRepository) Create(job *domain.SyncJob) error {
	return r.db.Create(job).Error
}

// Update persists job progress. A job already in a terminal state is never
// resurrected.
func (r *jobRepository) Update(job *domain.SyncJob) error {
	var current domain.SyncJob
	err := r.db.Where("id = ?", job.ID).First(&current).Error
	if err != nil {
		return err
	}
	if current.Terminal() {
		return fmt.Errorf("job %s already %s", job.ID, current.Status)
	}
	return r.db.Save(job).Error
}

// GetByID returns the job record or nil when it does not exist.
func (r *jobRepository) GetByID(id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

package repository

import (
	"errors"
	"time"

	"mailatlas-backend/internal/ingest/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// checkpointRepository implements CheckpointRepository on postgres.
type checkpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new instance of checkpointRepository.
func NewCheckpointRepository(db *gorm.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

// Get returns the checkpoint epoch, 0 when unset.
func (r *checkpointRepository) Get(grantID string) (int64, error) {
	var cp domain.Checkpoint
	err := r.db.Where("grant_id = ?", grantID).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cp.LastCheckpoint, nil
}

// Set stores max(current, epoch) in a single upsert, so the checkpoint never
// regresses even under concurrent redelivery.
func (r *checkpointRepository) Set(grantID string, epoch int64) error {
	cp := domain.Checkpoint{
		GrantID:        grantID,
		LastCheckpoint: epoch,
		UpdatedAt:      time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "grant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_checkpoint": gorm.Expr("GREATEST(checkpoints.last_checkpoint, EXCLUDED.last_checkpoint)"),
			"updated_at":      time.Now(),
		}),
	}).Create(&cp).Error
}

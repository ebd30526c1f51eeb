package repository

import (
	"errors"
	"time"

	"mailatlas-backend/internal/ingest/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// summaryRepository implements SummaryRepository on postgres.
type summaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new instance of summaryRepository.
func NewSummaryRepository(db *gorm.DB) SummaryRepository {
	return &summaryRepository{db: db}
}

// Get returns the stored summary text, empty when none exists.
func (r *summaryRepository) Get(grantID, kind, key string) (string, error) {
	var rec domain.RollupSummary
	err := r.db.Where("grant_id = ? AND kind = ? AND key = ?", grantID, kind, key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return rec.Summary, nil
}

// Save upserts the summary text for (grant, kind, key).
func (r *summaryRepository) Save(grantID, kind, key, summary string) error {
	rec := domain.RollupSummary{
		GrantID:   grantID,
		Kind:      kind,
		Key:       key,
		Summary:   summary,
		UpdatedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grant_id"}, {Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "updated_at"}),
	}).Create(&rec).Error
}

package repository

import (
	"mailatlas-backend/internal/ingest/domain"

	"gorm.io/gorm"
)

// dayNoteRepository implements DayNoteRepository on postgres. Rows are only
// ever inserted; rollups treat this table as ground truth.
type dayNoteRepository struct {
	db *gorm.DB
}

// NewDayNoteRepository creates a new instance of dayNoteRepository.
func NewDayNoteRepository(db *gorm.DB) DayNoteRepository {
	return &dayNoteRepository{db: db}
}

// Append inserts one note into its (grant, day) bucket.
func (r *dayNoteRepository) Append(note *domain.DayNote) error {
	return r.db.Create(note).Error
}

// NotesForDay returns the full note set of one day bucket in append order.
func (r *dayNoteRepository) NotesForDay(grantID, dayKey string) ([]domain.DayNote, error) {
	var notes []domain.DayNote
	err := r.db.
		Where("grant_id = ? AND day_key = ?", grantID, dayKey).
		Order("id ASC").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

package repository

import (
	"time"

	"mailatlas-backend/internal/ingest/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// contentRepository implements ContentRepository on postgres. Reprocessing a
// message overwrites its derived artifacts by id.
type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new instance of contentRepository.
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

// SaveMessageText upserts the cleaned plain text of a message body.
func (r *contentRepository) SaveMessageText(grantID, messageID, cleanText string) error {
	rec := domain.MessageContent{
		GrantID:   grantID,
		MessageID: messageID,
		CleanText: cleanText,
		UpdatedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grant_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"clean_text", "updated_at"}),
	}).Create(&rec).Error
}

// SaveAttachment upserts raw attachment bytes with their content type.
func (r *contentRepository) SaveAttachment(blob *domain.AttachmentBlob) error {
	blob.CreatedAt = time.Now()
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grant_id"}, {Name: "message_id"}, {Name: "attachment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "content_type", "data"}),
	}).Create(blob).Error
}

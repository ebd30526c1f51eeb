package domain

import "time"

// Checkpoint is the per-grant high-water-mark epoch. Writes below the stored
// value are no-ops; the value never regresses.
type Checkpoint struct {
	GrantID        string `gorm:"primaryKey"`
	LastCheckpoint int64  `gorm:"not null;default:0"`
	UpdatedAt      time.Time
}

// TableName overrides the gorm default.
func (Checkpoint) TableName() string { return "checkpoints" }

// Rollup summary kinds.
const (
	SummaryKindDay        = "day"
	SummaryKindWeek       = "week"
	SummaryKindMonth      = "month"
	SummaryKindThread     = "thread"
	SummaryKindThreadWeek = "thread_week"
)

// RollupSummary is persisted derived text keyed by (grant, kind, key). Fully
// derived from the day-note ledger and regenerable at any time.
type RollupSummary struct {
	GrantID   string `gorm:"primaryKey"`
	Kind      string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Summary   string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (RollupSummary) TableName() string { return "rollup_summaries" }

// MessageContent is the cleaned plain text of one message body.
type MessageContent struct {
	GrantID   string `gorm:"primaryKey"`
	MessageID string `gorm:"primaryKey"`
	CleanText string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (MessageContent) TableName() string { return "message_contents" }

// AttachmentBlob stores raw attachment bytes with their content type.
type AttachmentBlob struct {
	GrantID      string `gorm:"primaryKey"`
	MessageID    string `gorm:"primaryKey"`
	AttachmentID string `gorm:"primaryKey"`
	Filename     string
	ContentType  string
	Data         []byte `gorm:"type:bytea"`
	CreatedAt    time.Time
}

// TableName overrides the gorm default.
func (AttachmentBlob) TableName() string { return "attachment_blobs" }

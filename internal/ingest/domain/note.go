package domain

import "time"

// DayNote is one append-only ledger entry: a lightweight note about one
// processed message, filed under its (grant, day) bucket. Notes are never
// mutated or deleted; every rollup is recomputable from them.
type DayNote struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	GrantID   string    `gorm:"index:idx_day_notes_bucket;not null" json:"-"`
	DayKey    string    `gorm:"index:idx_day_notes_bucket;not null" json:"-"`
	MessageID string    `gorm:"not null" json:"messageId"`
	ThreadID  string    `gorm:"index" json:"thread_id"`
	DateISO   string    `json:"date_iso"`
	From      string    `gorm:"column:from_addr" json:"from"`
	To        string    `gorm:"column:to_addrs" json:"to"`
	Subject   string    `json:"subject"`
	Excerpt   string    `json:"excerpt"`
	CreatedAt time.Time `json:"-"`
}

// TableName overrides the gorm default.
func (DayNote) TableName() string { return "day_notes" }

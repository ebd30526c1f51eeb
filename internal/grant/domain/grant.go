package domain

import "time"

// Provider kinds a grant can be backed by.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Grant is one connected mailbox: the isolation boundary for all persisted
// state and vector namespaces. Credentials are stored encrypted.
type Grant struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"index;not null"`
	Provider     string `gorm:"not null"` // gmail or imap
	AccessToken  string // encrypted, gmail only
	RefreshToken string // encrypted, gmail only
	ImapServer   string
	ImapPort     int
	ImapPassword string // encrypted, imap only
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the gorm default.
func (Grant) TableName() string { return "grants" }

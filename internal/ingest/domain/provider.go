package domain

import (
	"context"

	grantdomain "mailatlas-backend/internal/grant/domain"
)

// MailProvider is the paginated message source behind ingestion. Adapters
// exist for Gmail and IMAP; both map their transport failures onto the error
// taxonomy in errors.go.
type MailProvider interface {
	// ListMessages returns up to limit messages newer than sinceEpoch,
	// resuming from pageToken when set. An empty NextPageToken means the
	// listing is exhausted.
	ListMessages(ctx context.Context, grant *grantdomain.Grant, sinceEpoch int64, pageToken string, limit int) (*MessagePage, error)

	// DownloadAttachment fetches raw attachment bytes and their content type.
	DownloadAttachment(ctx context.Context, grant *grantdomain.Grant, messageID, attachmentID string) ([]byte, string, error)
}

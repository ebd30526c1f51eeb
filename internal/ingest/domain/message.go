package domain

// AttachmentRef points at an attachment that can be downloaded from the mail
// provider.
type AttachmentRef struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is one mail message as fetched from a provider. Immutable once
// fetched; reprocessing overwrites derived artifacts keyed by ID.
type Message struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"thread_id"`
	Subject     string          `json:"subject"`
	From        []string        `json:"from"`
	To          []string        `json:"to"`
	Cc          []string        `json:"cc,omitempty"`
	Bcc         []string        `json:"bcc,omitempty"`
	Date        int64           `json:"date"` // epoch seconds
	Body        string          `json:"body"` // raw body, possibly HTML
	BodyIsHTML  bool            `json:"body_is_html"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	Folder      string          `json:"folder,omitempty"`
	Unread      bool            `json:"unread"`
	Starred     bool            `json:"starred"`
	Size        int64           `json:"size"`
}

// MessagePage is one page of a provider listing.
type MessagePage struct {
	Messages      []*Message
	NextPageToken string
}

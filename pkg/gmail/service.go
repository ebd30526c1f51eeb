// Package gmail adapts the Gmail API to the MailProvider interface.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	grantdomain "mailatlas-backend/internal/grant/domain"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/pkg/secrets"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc persists refreshed OAuth tokens for a grant.
type TokenUpdateFunc func(grantID, accessToken, refreshToken string) error

// Provider implements domain.MailProvider on the Gmail API.
type Provider struct {
	clientID      string
	clientSecret  string
	box           *secrets.Box
	onTokenUpdate TokenUpdateFunc
	log           zerolog.Logger
}

// NewProvider creates a Gmail provider. Credentials come from the grant
// record, decrypted with box; refreshed tokens flow back through
// onTokenUpdate.
func NewProvider(clientID, clientSecret string, box *secrets.Box, onTokenUpdate TokenUpdateFunc, log zerolog.Logger) *Provider {
	return &Provider{
		clientID:      clientID,
		clientSecret:  clientSecret,
		box:           box,
		onTokenUpdate: onTokenUpdate,
		log:           log.With().Str("component", "gmail").Logger(),
	}
}

// notifyTokenSource wraps a token source to detect refreshes.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	grantID  string
	callback TokenUpdateFunc
	log      zerolog.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(s.grantID, t.AccessToken, t.RefreshToken); err != nil {
			s.log.Warn().Err(err).Str("grant", s.grantID).Msg("failed to persist refreshed token")
		}
	}
	return t, nil
}

// service builds a Gmail API client for the grant's credentials.
func (p *Provider) service(ctx context.Context, grant *grantdomain.Grant) (*gmailapi.Service, error) {
	accessToken, err := p.box.Open(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decrypt access token: %v", domain.ErrAuth, err)
	}
	refreshToken := ""
	if grant.RefreshToken != "" {
		refreshToken, err = p.box.Open(grant.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot decrypt refresh token: %v", domain.ErrAuth, err)
		}
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}
	// Force a refresh pass when we can, so expired access tokens recover.
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	conf := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      conf.TokenSource(ctx, token),
		current:  token,
		grantID:  grant.ID,
		callback: p.wrapTokenUpdate(),
		log:      p.log,
	}

	client := oauth2.NewClient(ctx, wrapped)
	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// wrapTokenUpdate re-encrypts refreshed tokens before they are persisted.
func (p *Provider) wrapTokenUpdate() TokenUpdateFunc {
	if p.onTokenUpdate == nil {
		return nil
	}
	return func(grantID, accessToken, refreshToken string) error {
		sealedAccess, err := p.box.Seal(accessToken)
		if err != nil {
			return err
		}
		sealedRefresh := ""
		if refreshToken != "" {
			if sealedRefresh, err = p.box.Seal(refreshToken); err != nil {
				return err
			}
		}
		return p.onTokenUpdate(grantID, sealedAccess, sealedRefresh)
	}
}

// ListMessages fetches up to limit messages newer than sinceEpoch, resuming
// from pageToken.
func (p *Provider) ListMessages(ctx context.Context, grant *grantdomain.Grant, sinceEpoch int64, pageToken string, limit int) (*domain.MessagePage, error) {
	srv, err := p.service(ctx, grant)
	if err != nil {
		return nil, err
	}

	call := srv.Users.Messages.List("me").
		Q(fmt.Sprintf("after:%d", sinceEpoch)).
		MaxResults(int64(limit)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classify(err)
	}

	page := &domain.MessagePage{NextPageToken: resp.NextPageToken}
	for _, ref := range resp.Messages {
		full, err := srv.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, classify(err)
		}
		page.Messages = append(page.Messages, convertMessage(full))
	}
	return page, nil
}

// DownloadAttachment fetches raw attachment bytes.
func (p *Provider) DownloadAttachment(ctx context.Context, grant *grantdomain.Grant, messageID, attachmentID string) ([]byte, string, error) {
	srv, err := p.service(ctx, grant)
	if err != nil {
		return nil, "", err
	}

	att, err := srv.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, "", classify(err)
	}
	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode attachment data: %w", err)
	}
	// Gmail does not echo the content type on the attachment body; callers
	// take it from the part metadata collected at list time.
	return data, "", nil
}

// classify maps API failures onto the provider error taxonomy.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrAuth, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
	}
	return err
}

// convertMessage maps a Gmail message onto the domain model.
func convertMessage(m *gmailapi.Message) *domain.Message {
	msg := &domain.Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Date:     m.InternalDate / 1000,
		Labels:   m.LabelIds,
		Size:     m.SizeEstimate,
	}
	for _, label := range m.LabelIds {
		switch label {
		case "UNREAD":
			msg.Unread = true
		case "STARRED":
			msg.Starred = true
		case "INBOX", "SENT", "DRAFT", "SPAM", "TRASH":
			msg.Folder = strings.ToLower(label)
		}
	}

	if m.Payload == nil {
		return msg
	}
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = splitAddresses(h.Value)
		case "to":
			msg.To = splitAddresses(h.Value)
		case "cc":
			msg.Cc = splitAddresses(h.Value)
		case "bcc":
			msg.Bcc = splitAddresses(h.Value)
		}
	}

	body, isHTML := extractBody(m.Payload)
	msg.Body = body
	msg.BodyIsHTML = isHTML
	msg.Attachments = collectAttachments(m.Payload)
	return msg
}

// extractBody walks the MIME tree preferring HTML over plain text.
func extractBody(part *gmailapi.MessagePart) (string, bool) {
	var plain, html string
	var walk func(p *gmailapi.MessagePart)
	walk = func(p *gmailapi.MessagePart) {
		if p.Body != nil && p.Body.Data != "" && p.Filename == "" {
			decoded, err := base64.URLEncoding.DecodeString(p.Body.Data)
			if err == nil {
				switch p.MimeType {
				case "text/html":
					if html == "" {
						html = string(decoded)
					}
				case "text/plain":
					if plain == "" {
						plain = string(decoded)
					}
				}
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)

	if html != "" {
		return html, true
	}
	return plain, false
}

// collectAttachments lists attachment parts with their metadata.
func collectAttachments(part *gmailapi.MessagePart) []domain.AttachmentRef {
	var refs []domain.AttachmentRef
	var walk func(p *gmailapi.MessagePart)
	walk = func(p *gmailapi.MessagePart) {
		if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
			refs = append(refs, domain.AttachmentRef{
				ID:          p.Body.AttachmentId,
				Filename:    p.Filename,
				ContentType: p.MimeType,
				Size:        p.Body.Size,
			})
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)
	return refs
}

func splitAddresses(header string) []string {
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

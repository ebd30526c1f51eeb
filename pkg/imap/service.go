// Package imap adapts an IMAP mailbox to the MailProvider interface. The
// page cursor is the last processed UID; UIDs are stable within a mailbox,
// so resuming from the cursor never re-lists a processed message.
package imap

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	grantdomain "mailatlas-backend/internal/grant/domain"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/pkg/secrets"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
)

// Provider implements domain.MailProvider over IMAP.
type Provider struct {
	box *secrets.Box
	log zerolog.Logger
}

// NewProvider creates an IMAP provider.
func NewProvider(box *secrets.Box, log zerolog.Logger) *Provider {
	return &Provider{
		box: box,
		log: log.With().Str("component", "imap").Logger(),
	}
}

// connect dials and authenticates with the grant's stored credentials.
func (p *Provider) connect(grant *grantdomain.Grant) (*client.Client, error) {
	password, err := p.box.Open(grant.ImapPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decrypt IMAP password: %v", domain.ErrAuth, err)
	}

	addr := fmt.Sprintf("%s:%d", grant.ImapServer, grant.ImapPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrUpstreamUnavailable, addr, err)
	}
	if err := c.Login(grant.Email, password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: login rejected: %v", domain.ErrAuth, err)
	}
	return c, nil
}

// ListMessages pages UIDs newer than sinceEpoch in ascending order.
func (p *Provider) ListMessages(ctx context.Context, grant *grantdomain.Grant, sinceEpoch int64, pageToken string, limit int) (*domain.MessagePage, error) {
	c, err := p.connect(grant)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("%w: select INBOX: %v", domain.ErrUpstreamUnavailable, err)
	}

	criteria := imap.NewSearchCriteria()
	// IMAP SINCE has day granularity; finer filtering happens downstream
	// through idempotent vector ids.
	criteria.Since = time.Unix(sinceEpoch, 0).UTC()
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: uid search: %v", domain.ErrUpstreamUnavailable, err)
	}

	var cursor uint32
	if pageToken != "" {
		parsed, err := strconv.ParseUint(pageToken, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q: %w", pageToken, err)
		}
		cursor = uint32(parsed)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	remaining := uids[:0:0]
	for _, uid := range uids {
		if uid > cursor {
			remaining = append(remaining, uid)
		}
	}

	page := &domain.MessagePage{}
	if len(remaining) == 0 {
		return page, nil
	}
	selected := remaining
	if len(selected) > limit {
		selected = selected[:limit]
		page.NextPageToken = strconv.FormatUint(uint64(selected[len(selected)-1]), 10)
	}

	messages, err := p.fetch(c, selected)
	if err != nil {
		return nil, err
	}
	page.Messages = messages
	return page, nil
}

// fetch pulls full bodies for the selected UIDs and parses them.
func (p *Provider) fetch(c *client.Client, uids []uint32) ([]*domain.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
	}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var out []*domain.Message
	for m := range ch {
		body := m.GetBody(section)
		if body == nil {
			continue
		}
		msg, err := p.parse(m, body)
		if err != nil {
			// One unparsable message must not sink the page.
			p.log.Warn().Err(err).Uint32("uid", m.Uid).Msg("skipping unparsable message")
			continue
		}
		out = append(out, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch: %v", domain.ErrUpstreamUnavailable, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// parse reads one RFC822 body into the domain model.
func (p *Provider) parse(m *imap.Message, body io.Reader) (*domain.Message, error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	uid := strconv.FormatUint(uint64(m.Uid), 10)
	msg := &domain.Message{
		ID:     uid,
		Date:   m.InternalDate.Unix(),
		Size:   int64(m.Size),
		Folder: "inbox",
		Unread: true,
	}
	for _, flag := range m.Flags {
		switch flag {
		case imap.SeenFlag:
			msg.Unread = false
		case imap.FlaggedFlag:
			msg.Starred = true
		}
	}

	header := mr.Header
	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	}
	msg.From = addressList(header, "From")
	msg.To = addressList(header, "To")
	msg.Cc = addressList(header, "Cc")
	msg.Bcc = addressList(header, "Bcc")
	msg.ThreadID = threadID(header, msg.Subject, uid)

	attachmentIndex := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch contentType {
			case "text/html":
				msg.Body = string(data)
				msg.BodyIsHTML = true
			case "text/plain":
				if msg.Body == "" {
					msg.Body = string(data)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, domain.AttachmentRef{
				ID:          strconv.Itoa(attachmentIndex),
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
			attachmentIndex++
		}
	}
	return msg, nil
}

// DownloadAttachment refetches the message and returns the nth attachment;
// IMAP has no per-attachment handle.
func (p *Provider) DownloadAttachment(ctx context.Context, grant *grantdomain.Grant, messageID, attachmentID string) ([]byte, string, error) {
	wanted, err := strconv.Atoi(attachmentID)
	if err != nil {
		return nil, "", fmt.Errorf("invalid attachment id %q: %w", attachmentID, err)
	}
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return nil, "", fmt.Errorf("invalid message id %q: %w", messageID, err)
	}

	c, err := p.connect(grant)
	if err != nil {
		return nil, "", err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, "", fmt.Errorf("%w: select INBOX: %v", domain.ErrUpstreamUnavailable, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	section := &imap.BodySectionName{Peek: true}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, ch)
	}()

	var data []byte
	var contentType string
	for m := range ch {
		body := m.GetBody(section)
		if body == nil {
			continue
		}
		mr, err := mail.CreateReader(body)
		if err != nil {
			continue
		}
		index := 0
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			h, ok := part.Header.(*mail.AttachmentHeader)
			if !ok {
				continue
			}
			if index == wanted {
				data, _ = io.ReadAll(part.Body)
				contentType, _, _ = h.ContentType()
				break
			}
			index++
		}
	}
	if err := <-done; err != nil {
		return nil, "", fmt.Errorf("%w: uid fetch: %v", domain.ErrUpstreamUnavailable, err)
	}
	if data == nil {
		return nil, "", fmt.Errorf("attachment %s not found on message %s", attachmentID, messageID)
	}
	return data, contentType, nil
}

// threadID picks a stable thread key: the conversation root message id when
// the headers carry one, otherwise the message's own id, otherwise a
// subject-derived fallback.
func threadID(header mail.Header, subject, uid string) string {
	if refs, err := header.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if replies, err := header.MsgIDList("In-Reply-To"); err == nil && len(replies) > 0 {
		return replies[0]
	}
	if id, err := header.MessageID(); err == nil && id != "" {
		return id
	}
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(subject, "Re:")))
	if normalized != "" {
		return "subject:" + normalized
	}
	return "uid:" + uid
}

func addressList(header mail.Header, field string) []string {
	addrs, err := header.AddressList(field)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	grantdomain "mailatlas-backend/internal/grant/domain"
	"mailatlas-backend/internal/ingest/bucket"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/pkg/textutil"
)

const excerptLen = 160

// pageResult accumulates the artifacts of one page across parallel
// per-message pipelines. DayNote appends are order-independent and the max
// reduction commutes, so the accumulator only needs a mutex.
type pageResult struct {
	mu          sync.Mutex
	dense       []domain.VectorRecord
	sparse      []domain.SparseRecord
	touchedDays map[string]struct{}
	threadNotes map[string][]domain.DayNote
	maxEpoch    int64
}

func newPageResult() *pageResult {
	return &pageResult{
		touchedDays: make(map[string]struct{}),
		threadNotes: make(map[string][]domain.DayNote),
	}
}

func (r *pageResult) add(dense []domain.VectorRecord, sparse []domain.SparseRecord, note domain.DayNote, epoch int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dense = append(r.dense, dense...)
	r.sparse = append(r.sparse, sparse...)
	r.touchedDays[note.DayKey] = struct{}{}
	r.threadNotes[note.ThreadID] = append(r.threadNotes[note.ThreadID], note)
	if epoch > r.maxEpoch {
		r.maxEpoch = epoch
	}
}

func (r *pageResult) dayKeys() []string {
	keys := make([]string, 0, len(r.touchedDays))
	for k := range r.touchedDays {
		keys = append(keys, k)
	}
	return keys
}

// processMessage runs the per-message content pipeline: clean and persist the
// body text, download and analyze attachments (log-and-skip on failure),
// summarize, embed dense and sparse, append the day note.
func (w *Worker) processMessage(ctx context.Context, grant *grantdomain.Grant, provider domain.MailProvider, msg *domain.Message, result *pageResult) error {
	// 1. Strip markup and persist the cleaned text.
	cleanText := msg.Body
	if msg.BodyIsHTML {
		cleanText = textutil.StripHTML(msg.Body)
	} else {
		cleanText = textutil.CollapseWhitespace(cleanText)
	}
	if err := w.contents.SaveMessageText(grant.ID, msg.ID, cleanText); err != nil {
		return fmt.Errorf("failed to persist message text: %w", err)
	}

	// 2. Attachments: a single failed attachment never aborts the message.
	var denseRecords []domain.VectorRecord
	var sparseRecords []domain.SparseRecord
	var analyses []string
	for _, ref := range msg.Attachments {
		analysis, records, sparseRecs := w.processAttachment(ctx, grant, provider, msg, ref)
		if analysis != "" {
			analyses = append(analyses, analysis)
		}
		denseRecords = append(denseRecords, records...)
		sparseRecords = append(sparseRecords, sparseRecs...)
	}

	// 3. Summarize body plus attachment analyses; the summarizer switches to
	// map-reduce above the size threshold.
	combined := cleanText
	if len(analyses) > 0 {
		combined = combined + "\n\nAttachments:\n" + strings.Join(analyses, "\n")
	}
	if strings.TrimSpace(combined) == "" {
		combined = msg.Subject
	}
	summary, err := w.summarizer.Summarize(ctx, fmt.Sprintf("Subject: %s\n\n%s", msg.Subject, combined))
	if err != nil {
		return fmt.Errorf("failed to summarize message %s: %w", msg.ID, err)
	}

	// 4. Dense + sparse embeddings with bucket-tagged metadata.
	vector, err := w.text.EmbedText(ctx, summary)
	if err != nil {
		return fmt.Errorf("failed to embed message %s: %w", msg.ID, err)
	}
	meta := messageMetadata(msg, cleanText)
	id := domain.MessageVectorID(msg.ID)
	denseRecords = append(denseRecords, domain.VectorRecord{ID: id, Values: vector, Metadata: meta})
	sparseRecords = append(sparseRecords, domain.SparseRecord{
		ID:       id,
		Vector:   w.sparse.Encode(msg.Subject + "\n" + summary),
		Metadata: meta,
	})

	// 5. Append the ledger note.
	note := domain.DayNote{
		GrantID:   grant.ID,
		DayKey:    bucket.DayKey(msg.Date),
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		DateISO:   bucket.DayKey(msg.Date),
		From:      strings.Join(msg.From, ", "),
		To:        strings.Join(msg.To, ", "),
		Subject:   msg.Subject,
		Excerpt:   textutil.Snippet(cleanText, excerptLen),
	}
	if err := w.notes.Append(&note); err != nil {
		return fmt.Errorf("failed to append day note: %w", err)
	}

	// 6. Reduce into the page accumulator.
	result.add(denseRecords, sparseRecords, note, msg.Date)
	return nil
}

// processAttachment downloads, persists and analyzes one attachment. Every
// failure is logged and skipped; derived records are returned when analysis
// succeeds.
func (w *Worker) processAttachment(ctx context.Context, grant *grantdomain.Grant, provider domain.MailProvider, msg *domain.Message, ref domain.AttachmentRef) (string, []domain.VectorRecord, []domain.SparseRecord) {
	log := w.log.With().Str("grant", grant.ID).Str("message", msg.ID).Str("attachment", ref.ID).Logger()

	data, contentType, err := provider.DownloadAttachment(ctx, grant, msg.ID, ref.ID)
	if err != nil {
		log.Warn().Err(err).Msg("attachment download failed, skipping")
		return "", nil, nil
	}
	if contentType == "" {
		contentType = ref.ContentType
	}

	if err := w.contents.SaveAttachment(&domain.AttachmentBlob{
		GrantID:      grant.ID,
		MessageID:    msg.ID,
		AttachmentID: ref.ID,
		Filename:     ref.Filename,
		ContentType:  contentType,
		Data:         data,
	}); err != nil {
		log.Warn().Err(err).Msg("attachment persist failed, skipping")
		return "", nil, nil
	}

	analysis, err := w.text.AnalyzeAttachment(ctx, ref.Filename, contentType, data)
	if err != nil {
		log.Warn().Err(err).Msg("attachment analysis failed, skipping")
		return "", nil, nil
	}

	vector, err := w.text.EmbedText(ctx, analysis)
	if err != nil {
		log.Warn().Err(err).Msg("attachment embedding failed, skipping")
		return analysis, nil, nil
	}

	meta := map[string]any{
		"type":         "file",
		"message_id":   msg.ID,
		"thread_id":    msg.ThreadID,
		"filename":     ref.Filename,
		"content_type": contentType,
		"day":          bucket.DayKey(msg.Date),
		"week":         bucket.WeekKey(msg.Date),
		"month":        bucket.MonthKey(msg.Date),
	}
	id := domain.FileVectorID(msg.ID, ref.ID)
	dense := []domain.VectorRecord{{ID: id, Values: vector, Metadata: meta}}
	sparse := []domain.SparseRecord{{ID: id, Vector: w.sparse.Encode(ref.Filename + "\n" + analysis), Metadata: meta}}
	return analysis, dense, sparse
}

// messageMetadata builds the filterable payload attached to a message's
// vectors.
func messageMetadata(msg *domain.Message, cleanText string) map[string]any {
	participants := append(append(append([]string{}, msg.From...), msg.To...), msg.Cc...)
	return map[string]any{
		"type":            "message",
		"message_id":      msg.ID,
		"thread_id":       msg.ThreadID,
		"subject":         msg.Subject,
		"from":            strings.Join(msg.From, ", "),
		"to":              strings.Join(msg.To, ", "),
		"participants":    strings.Join(participants, ", "),
		"labels":          strings.Join(msg.Labels, ","),
		"folder":          msg.Folder,
		"day":             bucket.DayKey(msg.Date),
		"week":            bucket.WeekKey(msg.Date),
		"month":           bucket.MonthKey(msg.Date),
		"snippet":         textutil.Snippet(cleanText, excerptLen),
		"has_attachments": len(msg.Attachments) > 0,
		"unread":          msg.Unread,
		"starred":         msg.Starred,
		"date":            msg.Date,
	}
}

package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mailatlas-backend/internal/ingest/bucket"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/pkg/ai"

	"github.com/rs/zerolog"
)

// RollupEngine maintains the derived summary tiers from the day-note ledger.
// Day and thread rollups are incremental (bounded by one page's notes);
// week and month rollups are fully recomputed from the union of their days'
// ledgers, so they always reflect the complete bucket no matter how many
// pages touched it. The engine reads the ledger and owns the summaries; it
// never writes notes.
type RollupEngine struct {
	log        zerolog.Logger
	notes      repository.DayNoteRepository
	summaries  repository.SummaryRepository
	text       ai.TextService
	summarizer *ai.MapReduceSummarizer
	sparse     *ai.SparseEncoder
	index      VectorIndexService
}

// NewRollupEngine creates a rollup engine.
func NewRollupEngine(
	notes repository.DayNoteRepository,
	summaries repository.SummaryRepository,
	text ai.TextService,
	sparse *ai.SparseEncoder,
	index VectorIndexService,
	summaryThreshold int,
	log zerolog.Logger,
) *RollupEngine {
	return &RollupEngine{
		log:        log.With().Str("component", "rollup").Logger(),
		notes:      notes,
		summaries:  summaries,
		text:       text,
		summarizer: ai.NewMapReduceSummarizer(text, summaryThreshold),
		sparse:     sparse,
		index:      index,
	}
}

// RecomputePage refreshes every rollup affected by one processed page:
// touched days and threads, plus every week and month containing a touched
// day. Rollups are regenerable from the ledger at any time, so individual
// bucket failures are logged and skipped rather than failing the page.
func (e *RollupEngine) RecomputePage(ctx context.Context, grantID string, touchedDays []string, threadNotes map[string][]domain.DayNote) {
	sort.Strings(touchedDays)

	var dense []domain.VectorRecord
	var sparse []domain.SparseRecord
	upsert := func(kind, key, id, summary string, extra map[string]any) {
		if strings.TrimSpace(summary) == "" {
			return
		}
		if err := e.summaries.Save(grantID, kind, key, summary); err != nil {
			e.log.Warn().Err(err).Str("kind", kind).Str("key", key).Msg("failed to persist rollup text")
		}
		vector, err := e.text.EmbedText(ctx, summary)
		if err != nil {
			e.log.Warn().Err(err).Str("kind", kind).Str("key", key).Msg("failed to embed rollup")
			return
		}
		meta := map[string]any{"type": "summary", "kind": kind, "key": key}
		for k, v := range extra {
			meta[k] = v
		}
		dense = append(dense, domain.VectorRecord{ID: id, Values: vector, Metadata: meta})
		sparse = append(sparse, domain.SparseRecord{ID: id, Vector: e.sparse.Encode(summary), Metadata: meta})
	}

	// Day rollups: the full day bucket fits one summarization pass.
	for _, dayKey := range touchedDays {
		summary, err := e.summarizeDay(ctx, grantID, dayKey)
		if err != nil {
			e.log.Warn().Err(err).Str("day", dayKey).Msg("day rollup failed")
			continue
		}
		upsert(domain.SummaryKindDay, dayKey, domain.SummaryVectorID(domain.SummaryKindDay, dayKey), summary,
			map[string]any{"day": dayKey})
	}

	// Thread rollups: incremental over the prior summary plus this page's
	// new notes.
	threadIDs := make([]string, 0, len(threadNotes))
	for threadID := range threadNotes {
		threadIDs = append(threadIDs, threadID)
	}
	sort.Strings(threadIDs)
	for _, threadID := range threadIDs {
		summary, err := e.summarizeThread(ctx, grantID, threadID, threadNotes[threadID])
		if err != nil {
			e.log.Warn().Err(err).Str("thread", threadID).Msg("thread rollup failed")
			continue
		}
		upsert(domain.SummaryKindThread, threadID, domain.SummaryVectorID(domain.SummaryKindThread, threadID), summary,
			map[string]any{"thread_id": threadID})
	}

	// Week and month rollups: full recompute from the bucket's complete
	// ledger, not just this page's notes.
	for _, weekKey := range weeksOf(touchedDays) {
		weekNotes, err := e.gatherWeek(grantID, weekKey, touchedDays)
		if err != nil {
			e.log.Warn().Err(err).Str("week", weekKey).Msg("week gather failed")
			continue
		}
		if len(weekNotes) == 0 {
			// Should not happen for a touched week; skip without a vector.
			continue
		}
		summary, err := e.summarizer.Summarize(ctx, notesText(weekNotes))
		if err != nil {
			e.log.Warn().Err(err).Str("week", weekKey).Msg("week rollup failed")
			continue
		}
		upsert(domain.SummaryKindWeek, weekKey, domain.SummaryVectorID(domain.SummaryKindWeek, weekKey), summary,
			map[string]any{"week": weekKey})

		// Per-thread-within-week summaries come from the same gathered set.
		for threadID, tn := range groupByThread(weekNotes) {
			threadSummary, err := e.summarizer.Summarize(ctx, notesText(tn))
			if err != nil {
				e.log.Warn().Err(err).Str("week", weekKey).Str("thread", threadID).Msg("thread-week rollup failed")
				continue
			}
			key := threadID + ":" + weekKey
			upsert(domain.SummaryKindThreadWeek, key, domain.ThreadWeekVectorID(threadID, weekKey), threadSummary,
				map[string]any{"week": weekKey, "thread_id": threadID})
		}
	}

	for _, monthKey := range monthsOf(touchedDays) {
		monthNotes, err := e.gatherMonth(grantID, monthKey, touchedDays)
		if err != nil {
			e.log.Warn().Err(err).Str("month", monthKey).Msg("month gather failed")
			continue
		}
		if len(monthNotes) == 0 {
			continue
		}
		summary, err := e.summarizer.Summarize(ctx, notesText(monthNotes))
		if err != nil {
			e.log.Warn().Err(err).Str("month", monthKey).Msg("month rollup failed")
			continue
		}
		upsert(domain.SummaryKindMonth, monthKey, domain.SummaryVectorID(domain.SummaryKindMonth, monthKey), summary,
			map[string]any{"month": monthKey})
	}

	if err := e.index.UpsertDense(ctx, grantID, dense); err != nil {
		e.log.Warn().Err(err).Msg("rollup dense upsert failed")
	}
	if err := e.index.UpsertSparse(ctx, grantID, sparse); err != nil {
		e.log.Warn().Err(err).Msg("rollup sparse upsert failed")
	}
}

// summarizeDay resummarizes the complete note set of one day bucket.
func (e *RollupEngine) summarizeDay(ctx context.Context, grantID, dayKey string) (string, error) {
	notes, err := e.notes.NotesForDay(grantID, dayKey)
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "", nil
	}
	return e.summarizer.Summarize(ctx, fmt.Sprintf("Emails on %s:\n%s", dayKey, notesText(notes)))
}

// summarizeThread folds this page's new notes into the thread's prior
// summary.
func (e *RollupEngine) summarizeThread(ctx context.Context, grantID, threadID string, newNotes []domain.DayNote) (string, error) {
	if len(newNotes) == 0 {
		return "", nil
	}
	prior, err := e.summaries.Get(grantID, domain.SummaryKindThread, threadID)
	if err != nil {
		return "", err
	}
	input := notesText(newNotes)
	if prior != "" {
		input = fmt.Sprintf("Earlier in this thread: %s\n\nNew messages:\n%s", prior, input)
	}
	return e.summarizer.Summarize(ctx, input)
}

// gatherWeek unions the ledgers of every day in the ISO week.
func (e *RollupEngine) gatherWeek(grantID, weekKey string, touchedDays []string) ([]domain.DayNote, error) {
	anchor, err := anchorDay(weekKey, touchedDays, bucket.WeekOfDay)
	if err != nil {
		return nil, err
	}
	days, err := bucket.WeekDays(anchor)
	if err != nil {
		return nil, err
	}
	return e.gatherDays(grantID, days)
}

// gatherMonth unions the ledgers of every day in the calendar month.
func (e *RollupEngine) gatherMonth(grantID, monthKey string, touchedDays []string) ([]domain.DayNote, error) {
	anchor, err := anchorDay(monthKey, touchedDays, bucket.MonthOfDay)
	if err != nil {
		return nil, err
	}
	days, err := bucket.MonthDays(anchor)
	if err != nil {
		return nil, err
	}
	return e.gatherDays(grantID, days)
}

func (e *RollupEngine) gatherDays(grantID string, days []string) ([]domain.DayNote, error) {
	var all []domain.DayNote
	for _, day := range days {
		notes, err := e.notes.NotesForDay(grantID, day)
		if err != nil {
			return nil, err
		}
		all = append(all, notes...)
	}
	return all, nil
}

// anchorDay finds a touched day belonging to the bucket, to enumerate the
// bucket's days from.
func anchorDay(bucketKey string, touchedDays []string, keyOf func(string) (string, error)) (string, error) {
	for _, day := range touchedDays {
		key, err := keyOf(day)
		if err != nil {
			continue
		}
		if key == bucketKey {
			return day, nil
		}
	}
	return "", fmt.Errorf("no touched day in bucket %s", bucketKey)
}

func weeksOf(days []string) []string {
	return distinctKeys(days, bucket.WeekOfDay)
}

func monthsOf(days []string) []string {
	return distinctKeys(days, bucket.MonthOfDay)
}

func distinctKeys(days []string, keyOf func(string) (string, error)) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, day := range days {
		key, err := keyOf(day)
		if err != nil {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func groupByThread(notes []domain.DayNote) map[string][]domain.DayNote {
	grouped := make(map[string][]domain.DayNote)
	for _, note := range notes {
		grouped[note.ThreadID] = append(grouped[note.ThreadID], note)
	}
	return grouped
}

// notesText renders notes as one line each for the summarizer.
func notesText(notes []domain.DayNote) string {
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("[%s] from %s to %s, %q: %s", n.DateISO, n.From, n.To, n.Subject, n.Excerpt))
	}
	return strings.Join(lines, "\n")
}

package repository

import (
	"fmt"
	"sync"

	"mailatlas-backend/internal/ingest/domain"
)

// In-memory repository implementations. They mirror the postgres stores and
// back the worker and rollup tests; all of them are safe for concurrent use.

// MemoryCheckpoints implements CheckpointRepository in memory.
type MemoryCheckpoints struct {
	mu     sync.Mutex
	epochs map[string]int64
}

// NewMemoryCheckpoints creates an empty checkpoint store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{epochs: make(map[string]int64)}
}

// Get returns the checkpoint epoch, 0 when unset.
func (m *MemoryCheckpoints) Get(grantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epochs[grantID], nil
}

// Set stores max(current, epoch).
func (m *MemoryCheckpoints) Set(grantID string, epoch int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch > m.epochs[grantID] {
		m.epochs[grantID] = epoch
	}
	return nil
}

// MemoryDayNotes implements DayNoteRepository in memory.
type MemoryDayNotes struct {
	mu    sync.Mutex
	next  uint
	notes map[string][]domain.DayNote // (grant, day) -> notes
}

// NewMemoryDayNotes creates an empty ledger.
func NewMemoryDayNotes() *MemoryDayNotes {
	return &MemoryDayNotes{notes: make(map[string][]domain.DayNote)}
}

func ledgerKey(grantID, dayKey string) string {
	return grantID + "/" + dayKey
}

// Append inserts one note into its bucket.
func (m *MemoryDayNotes) Append(note *domain.DayNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	note.ID = m.next
	key := ledgerKey(note.GrantID, note.DayKey)
	m.notes[key] = append(m.notes[key], *note)
	return nil
}

// NotesForDay returns a bucket's notes in append order.
func (m *MemoryDayNotes) NotesForDay(grantID, dayKey string) ([]domain.DayNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.notes[ledgerKey(grantID, dayKey)]
	out := make([]domain.DayNote, len(src))
	copy(out, src)
	return out, nil
}

// MemoryJobs implements JobRepository in memory.
type MemoryJobs struct {
	mu   sync.Mutex
	jobs map[string]domain.SyncJob
}

// NewMemoryJobs creates an empty job store.
func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{jobs: make(map[string]domain.SyncJob)}
}

// Create inserts a job record.
func (m *MemoryJobs) Create(job *domain.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

// Update persists job progress; terminal jobs are never resurrected.
func (m *MemoryJobs) Update(job *domain.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.jobs[job.ID]
	if !exists {
		return fmt.Errorf("job %s not found", job.ID)
	}
	if current.Terminal() {
		return fmt.Errorf("job %s already %s", job.ID, current.Status)
	}
	m.jobs[job.ID] = *job
	return nil
}

// GetByID returns the job or nil.
func (m *MemoryJobs) GetByID(id string) (*domain.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, exists := m.jobs[id]
	if !exists {
		return nil, nil
	}
	out := job
	return &out, nil
}

// MemorySummaries implements SummaryRepository in memory.
type MemorySummaries struct {
	mu        sync.Mutex
	summaries map[string]string
}

// NewMemorySummaries creates an empty summary store.
func NewMemorySummaries() *MemorySummaries {
	return &MemorySummaries{summaries: make(map[string]string)}
}

func summaryKey(grantID, kind, key string) string {
	return grantID + "/" + kind + "/" + key
}

// Get returns stored text, empty when absent.
func (m *MemorySummaries) Get(grantID, kind, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries[summaryKey(grantID, kind, key)], nil
}

// Save upserts summary text.
func (m *MemorySummaries) Save(grantID, kind, key, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summaryKey(grantID, kind, key)] = summary
	return nil
}

// MemoryContents implements ContentRepository in memory.
type MemoryContents struct {
	mu          sync.Mutex
	Texts       map[string]string
	Attachments map[string]domain.AttachmentBlob
}

// NewMemoryContents creates an empty content store.
func NewMemoryContents() *MemoryContents {
	return &MemoryContents{
		Texts:       make(map[string]string),
		Attachments: make(map[string]domain.AttachmentBlob),
	}
}

// SaveMessageText upserts cleaned body text.
func (m *MemoryContents) SaveMessageText(grantID, messageID, cleanText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Texts[grantID+"/"+messageID] = cleanText
	return nil
}

// SaveAttachment upserts attachment bytes.
func (m *MemoryContents) SaveAttachment(blob *domain.AttachmentBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attachments[blob.GrantID+"/"+blob.MessageID+"/"+blob.AttachmentID] = *blob
	return nil
}

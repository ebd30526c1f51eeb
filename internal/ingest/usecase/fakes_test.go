package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	grantdomain "mailatlas-backend/internal/grant/domain"
	"mailatlas-backend/internal/ingest/domain"
	"mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/pkg/ai"
	"mailatlas-backend/pkg/queue"

	"github.com/rs/zerolog"
)

// memoryGrants is a test GrantRepository.
type memoryGrants struct {
	mu     sync.Mutex
	grants map[string]*grantdomain.Grant
}

func newMemoryGrants(grants ...*grantdomain.Grant) *memoryGrants {
	m := &memoryGrants{grants: make(map[string]*grantdomain.Grant)}
	for _, g := range grants {
		m.grants[g.ID] = g
	}
	return m
}

func (m *memoryGrants) FindByID(id string) (*grantdomain.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[id], nil
}

func (m *memoryGrants) Save(grant *grantdomain.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grant.ID] = grant
	return nil
}

func (m *memoryGrants) UpdateTokens(id, accessToken, refreshToken string) error {
	return nil
}

type listCall struct {
	sinceEpoch int64
	pageToken  string
	limit      int
}

type pageScript struct {
	page *domain.MessagePage
	err  error
}

// scriptedProvider returns pre-scripted pages in call order. Attachment
// downloads resolve from the attachments map; missing keys fail.
type scriptedProvider struct {
	mu             sync.Mutex
	script         []pageScript
	calls          []listCall
	attachments    map[string][]byte
	attachmentErrs map[string]error
}

func newScriptedProvider(script ...pageScript) *scriptedProvider {
	return &scriptedProvider{
		script:         script,
		attachments:    make(map[string][]byte),
		attachmentErrs: make(map[string]error),
	}
}

func (p *scriptedProvider) ListMessages(ctx context.Context, grant *grantdomain.Grant, sinceEpoch int64, pageToken string, limit int) (*domain.MessagePage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, listCall{sinceEpoch: sinceEpoch, pageToken: pageToken, limit: limit})
	if len(p.script) == 0 {
		return &domain.MessagePage{}, nil
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next.page, next.err
}

func (p *scriptedProvider) DownloadAttachment(ctx context.Context, grant *grantdomain.Grant, messageID, attachmentID string) ([]byte, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := messageID + "/" + attachmentID
	if err, ok := p.attachmentErrs[key]; ok {
		return nil, "", err
	}
	data, ok := p.attachments[key]
	if !ok {
		return nil, "", fmt.Errorf("no attachment %s", key)
	}
	return data, "application/octet-stream", nil
}

// fakeText is a deterministic ai.TextService. Summaries echo a prefix of the
// input so assertions can look inside them; every input is recorded.
type fakeText struct {
	mu              sync.Mutex
	summarizeInputs []string
	analyzeErrs     map[string]error // by filename
	embedErr        error
}

func newFakeText() *fakeText {
	return &fakeText{analyzeErrs: make(map[string]error)}
}

func (f *fakeText) Summarize(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeInputs = append(f.summarizeInputs, text)
	clean := strings.Join(strings.Fields(text), " ")
	if len(clean) > 120 {
		clean = clean[:120]
	}
	return "summary: " + clean, nil
}

func (f *fakeText) AnalyzeAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.analyzeErrs[filename]; ok {
		return "", err
	}
	return "analysis of " + filename, nil
}

func (f *fakeText) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{float32(len(text)), 1, 0, 1}, nil
}

func (f *fakeText) Dimension() int { return 4 }

func (f *fakeText) inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.summarizeInputs))
	copy(out, f.summarizeInputs)
	return out
}

// capturingIndex records every upsert.
type capturingIndex struct {
	mu        sync.Mutex
	dense     []domain.VectorRecord
	sparse    []domain.SparseRecord
	denseErr  error
	sparseErr error
}

func newCapturingIndex() *capturingIndex {
	return &capturingIndex{}
}

func (c *capturingIndex) UpsertDense(ctx context.Context, grantID string, records []domain.VectorRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denseErr != nil {
		return c.denseErr
	}
	c.dense = append(c.dense, records...)
	return nil
}

func (c *capturingIndex) UpsertSparse(ctx context.Context, grantID string, records []domain.SparseRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sparseErr != nil {
		return c.sparseErr
	}
	c.sparse = append(c.sparse, records...)
	return nil
}

func (c *capturingIndex) HybridQuery(ctx context.Context, grantID string, dense []float32, sparse domain.SparseVector, filter map[string]string, topKDense, topKSparse int) ([]domain.QueryHit, error) {
	return nil, nil
}

func (c *capturingIndex) denseIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.dense))
	for _, rec := range c.dense {
		ids = append(ids, rec.ID)
	}
	return ids
}

func (c *capturingIndex) hasDense(id string) bool {
	for _, got := range c.denseIDs() {
		if got == id {
			return true
		}
	}
	return false
}

// harness wires a worker over in-memory collaborators.
type harness struct {
	worker      *Worker
	scheduler   *Scheduler
	provider    *scriptedProvider
	text        *fakeText
	index       *capturingIndex
	queue       *queue.MemoryQueue
	grants      *memoryGrants
	checkpoints *repository.MemoryCheckpoints
	notes       *repository.MemoryDayNotes
	jobs        *repository.MemoryJobs
	summaries   *repository.MemorySummaries
	contents    *repository.MemoryContents
}

func newHarness(provider *scriptedProvider, grants ...*grantdomain.Grant) *harness {
	h := &harness{
		provider:    provider,
		text:        newFakeText(),
		index:       newCapturingIndex(),
		queue:       queue.NewMemoryQueue(),
		grants:      newMemoryGrants(grants...),
		checkpoints: repository.NewMemoryCheckpoints(),
		notes:       repository.NewMemoryDayNotes(),
		jobs:        repository.NewMemoryJobs(),
		summaries:   repository.NewMemorySummaries(),
		contents:    repository.NewMemoryContents(),
	}
	sparse := ai.NewSparseEncoder()
	log := zerolog.Nop()
	rollups := NewRollupEngine(h.notes, h.summaries, h.text, sparse, h.index, 0, log)
	h.worker = NewWorker(WorkerConfig{
		Grants:            h.grants,
		Providers:         map[string]domain.MailProvider{grantdomain.ProviderGmail: provider},
		Text:              h.text,
		Sparse:            sparse,
		Index:             h.index,
		Queue:             h.queue,
		Rollups:           rollups,
		Checkpoints:       h.checkpoints,
		Notes:             h.notes,
		Jobs:              h.jobs,
		Contents:          h.contents,
		ContinuationDelay: 200 * time.Millisecond,
	})
	h.scheduler = NewScheduler(h.checkpoints, h.jobs, h.queue, 30, log)
	return h
}

func testGrant(id string) *grantdomain.Grant {
	return &grantdomain.Grant{ID: id, Email: id + "@example.com", Provider: grantdomain.ProviderGmail}
}

func testMessage(id, threadID string, date int64) *domain.Message {
	return &domain.Message{
		ID:       id,
		ThreadID: threadID,
		Subject:  "subject " + id,
		From:     []string{"alice@example.com"},
		To:       []string{"bob@example.com"},
		Date:     date,
		Body:     "body of " + id,
	}
}

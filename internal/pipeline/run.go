package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/docqa/internal/collector"
	"github.com/oklog/ulid/v2"
)

// Stage is where a process run currently is, or where it stopped.
type Stage string

const (
	StageCollecting Stage = "collecting"
	StageChunking   Stage = "chunking"
	StageIndexing   Stage = "indexing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Run tracks one Collect → Split → Build pass.
type Run struct {
	mu sync.Mutex

	id        string
	stage     Stage
	haltedAt  Stage
	report    collector.Report
	documents int
	chunks    int
	tokens    int
	indexID   string
	hash      string
	err       string
	createdAt time.Time
	updatedAt time.Time
}

func newRun() *Run {
	now := time.Now().UTC()
	return &Run{id: ulid.Make().String(), createdAt: now, updatedAt: now}
}

func (r *Run) ID() string { return r.id }

func (r *Run) setStage(s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = s
	r.updatedAt = time.Now().UTC()
}

func (r *Run) setCollected(docs int, report collector.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = docs
	r.report = report
	r.updatedAt = time.Now().UTC()
}

func (r *Run) setChunked(chunks, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = chunks
	r.tokens = tokens
	r.updatedAt = time.Now().UTC()
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haltedAt = r.stage
	r.stage = StageFailed
	r.err = err.Error()
	r.updatedAt = time.Now().UTC()
}

func (r *Run) complete(indexID, contentHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = StageCompleted
	r.indexID = indexID
	r.hash = contentHash
	r.updatedAt = time.Now().UTC()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID           string           `json:"run_id"`
	Stage        Stage            `json:"stage"`
	HaltedAt     Stage            `json:"halted_at,omitempty"`
	Documents    int              `json:"documents"`
	Chunks       int              `json:"chunks"`
	ApproxTokens int              `json:"approx_tokens"`
	IndexID      string           `json:"index_id,omitempty"`
	ContentHash  string           `json:"content_hash,omitempty"`
	Error        string           `json:"error,omitempty"`
	Report       collector.Report `json:"report"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	report := r.report
	if report.Items == nil {
		report.Items = []collector.ItemResult{}
	}
	return RunSnapshot{
		ID:           r.id,
		Stage:        r.stage,
		HaltedAt:     r.haltedAt,
		Documents:    r.documents,
		Chunks:       r.chunks,
		ApproxTokens: r.tokens,
		IndexID:      r.indexID,
		ContentHash:  r.hash,
		Error:        r.err,
		Report:       report,
		CreatedAt:    r.createdAt,
		UpdatedAt:    r.updatedAt,
	}
}

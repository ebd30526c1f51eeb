package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job lifecycle states.
const (
	JobStatusQueued   = "queued"
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusError    = "error"
)

// Job sync types.
const (
	JobTypeBackfill = "backfill"
	JobTypeDelta    = "delta"
)

// PageJob is the queue payload for one ingestion page. It is delivered with
// an ordering key equal to GrantID so pages of one grant never race.
type PageJob struct {
	GrantID    string `json:"grantId"`
	SinceEpoch int64  `json:"sinceEpoch"`
	Max        int    `json:"max"`
	PageToken  string `json:"pageToken,omitempty"`
	Processed  int    `json:"processed"`
	Attempt    int    `json:"attempt"`
	JobID      string `json:"jobId,omitempty"`
}

// ParsePageJob decodes and validates a raw queue payload. Malformed payloads
// are rejected here, before any side effect occurs.
func ParsePageJob(data []byte) (*PageJob, error) {
	var job PageJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.GrantID == "" {
		return nil, fmt.Errorf("%w: missing grantId", ErrMalformedJob)
	}
	if job.Max <= 0 {
		return nil, fmt.Errorf("%w: max must be positive", ErrMalformedJob)
	}
	if job.SinceEpoch < 0 || job.Processed < 0 || job.Attempt < 0 {
		return nil, fmt.Errorf("%w: negative counters", ErrMalformedJob)
	}
	return &job, nil
}

// Encode serializes the job for the queue.
func (j *PageJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// SyncJob is the persisted progress record for one sync job. Terminal states
// (complete, error) are never left again.
type SyncJob struct {
	ID                string `gorm:"primaryKey"`
	GrantID           string `gorm:"index;not null"`
	Type              string `gorm:"not null"` // backfill or delta
	Status            string `gorm:"not null"`
	Processed         int
	Max               int
	IndexedVectors    int
	LastSyncTimestamp int64 // running max of message epochs seen across the job
	Message           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName overrides the gorm default.
func (SyncJob) TableName() string { return "sync_jobs" }

// Terminal reports whether the job reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusError
}

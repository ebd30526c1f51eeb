package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// VectorRecord is a dense embedding queued for upsert.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// SparseVector holds index/weight pairs for lexical matching.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// SparseRecord is a sparse embedding queued for upsert.
type SparseRecord struct {
	ID       string
	Vector   SparseVector
	Metadata map[string]any
}

// QueryHit is one hybrid query result.
type QueryHit struct {
	VectorID string
	Score    float32
	Metadata map[string]any
}

// Vector id grammar. The ids are deterministic and stable across
// reprocessing so upserts overwrite instead of duplicating. Downstream query
// logic resolves summaries by reversing these shapes.

// MessageVectorID returns msg:<messageId>.
func MessageVectorID(messageID string) string {
	return "msg:" + messageID
}

// FileVectorID returns file:<messageId>:<attachmentId>.
func FileVectorID(messageID, attachmentID string) string {
	return fmt.Sprintf("file:%s:%s", messageID, attachmentID)
}

// SummaryVectorID returns summary:<kind>:<key>, e.g. summary:day:2025-03-14.
func SummaryVectorID(kind, key string) string {
	return fmt.Sprintf("summary:%s:%s", kind, key)
}

// ThreadWeekVectorID returns summary:thread_week:<threadId>:<weekKey>.
func ThreadWeekVectorID(threadID, weekKey string) string {
	return fmt.Sprintf("summary:thread_week:%s:%s", threadID, weekKey)
}

// pointNamespace scopes deterministic point UUIDs to this system.
var pointNamespace = uuid.MustParse("8f1f54a6-62d1-4a20-9c9d-3bfe52b64c04")

// PointUUID maps a grammar id onto a deterministic UUID. The index backend
// requires UUID point ids; the grammar string itself travels in the payload
// so the mapping stays reversible.
func PointUUID(vectorID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(vectorID)).String()
}

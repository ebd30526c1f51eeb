package usecase

import (
	"context"

	"mailatlas-backend/internal/ingest/domain"
)

// VectorIndexService is the boundary to the per-grant dense/sparse index.
// The pipeline only needs namespace scoping and metadata shapes on upsert;
// ranking fusion at query time belongs to the index backend. UpsertSparse
// attaches to points UpsertDense wrote, so callers flush dense before
// sparse for the same ids.
type VectorIndexService interface {
	UpsertDense(ctx context.Context, grantID string, records []domain.VectorRecord) error
	UpsertSparse(ctx context.Context, grantID string, records []domain.SparseRecord) error
	HybridQuery(ctx context.Context, grantID string, dense []float32, sparse domain.SparseVector, filter map[string]string, topKDense, topKSparse int) ([]domain.QueryHit, error)
}

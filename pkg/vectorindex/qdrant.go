// Package vectorindex adapts the Qdrant client to the per-grant dual-mode
// index the ingestion pipeline writes into. Each grant gets its own
// collection with a named dense vector and a named sparse vector.
package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mailatlas-backend/internal/ingest/domain"

	"github.com/qdrant/go-client/qdrant"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Client wraps a Qdrant connection with grant-scoped collections.
type Client struct {
	client   *qdrant.Client
	embedDim int

	mu     sync.Mutex
	known  map[string]struct{} // collections already ensured this process
	prefix string
}

// Config holds Qdrant connection settings.
type Config struct {
	Host         string
	Port         int
	APIKey       string
	UseTLS       bool
	EmbeddingDim int
}

// NewClient connects to Qdrant.
func NewClient(cfg Config) (*Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Client{
		client:   client,
		embedDim: cfg.EmbeddingDim,
		known:    make(map[string]struct{}),
		prefix:   "mail_",
	}, nil
}

// CollectionForGrant returns the namespaced collection name for a grant.
func (c *Client) CollectionForGrant(grantID string) string {
	// Qdrant collection names are restricted; grant ids can hold dashes.
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, grantID)
	return c.prefix + sanitized
}

// ensureCollection creates the grant's collection on first use.
func (c *Client) ensureCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	_, ok := c.known[name]
	c.mu.Unlock()
	if ok {
		return nil
	}

	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {
					Size:     uint64(c.embedDim),
					Distance: qdrant.Distance_Cosine,
				},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {},
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}

	c.mu.Lock()
	c.known[name] = struct{}{}
	c.mu.Unlock()
	return nil
}

// UpsertDense writes a batch of dense records into the grant's collection.
// Point ids are deterministic, so re-upserting the same record overwrites.
func (c *Client) UpsertDense(ctx context.Context, grantID string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	name := c.CollectionForGrant(grantID)
	if err := c.ensureCollection(ctx, name); err != nil {
		return err
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         densePoints(grantID, records),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("dense upsert failed: %w", err)
	}
	return nil
}

// UpsertSparse attaches sparse vectors to the points the dense pass already
// wrote. A full point upsert here would replace the whole point and erase
// the dense vector, so this goes through the partial vector-update API,
// which only touches the named vectors it carries.
func (c *Client) UpsertSparse(ctx context.Context, grantID string, records []domain.SparseRecord) error {
	if len(records) == 0 {
		return nil
	}
	name := c.CollectionForGrant(grantID)
	if err := c.ensureCollection(ctx, name); err != nil {
		return err
	}

	points := sparseVectorUpdates(records)
	if len(points) == 0 {
		return nil
	}

	_, err := c.client.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
		CollectionName: name,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("sparse vector update failed: %w", err)
	}
	return nil
}

func densePoints(grantID string, records []domain.VectorRecord) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		points = append(points, &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(domain.PointUUID(rec.ID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				denseVectorName: qdrant.NewVector(rec.Values...),
			}),
			Payload: qdrant.NewValueMap(payloadFor(grantID, rec.ID, rec.Metadata)),
		})
	}
	return points
}

func sparseVectorUpdates(records []domain.SparseRecord) []*qdrant.PointVectors {
	points := make([]*qdrant.PointVectors, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector.Indices) == 0 {
			continue
		}
		points = append(points, &qdrant.PointVectors{
			Id: qdrant.NewIDUUID(domain.PointUUID(rec.ID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				sparseVectorName: qdrant.NewVectorSparse(rec.Vector.Indices, rec.Vector.Values),
			}),
		})
	}
	return points
}

// HybridQuery runs a dense and a sparse prefetch fused with reciprocal rank
// fusion, filtered by exact-match payload conditions.
func (c *Client) HybridQuery(ctx context.Context, grantID string, dense []float32, sparse domain.SparseVector, filter map[string]string, topKDense, topKSparse int) ([]domain.QueryHit, error) {
	name := c.CollectionForGrant(grantID)
	if err := c.ensureCollection(ctx, name); err != nil {
		return nil, err
	}

	var qf *qdrant.Filter
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for field, value := range filter {
			conditions = append(conditions, qdrant.NewMatch(field, value))
		}
		qf = &qdrant.Filter{Must: conditions}
	}

	prefetch := []*qdrant.PrefetchQuery{
		{
			Query: qdrant.NewQueryDense(dense),
			Using: qdrant.PtrOf(denseVectorName),
			Limit: qdrant.PtrOf(uint64(topKDense)),
		},
	}
	if len(sparse.Indices) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
			Using: qdrant.PtrOf(sparseVectorName),
			Limit: qdrant.PtrOf(uint64(topKSparse)),
		})
	}

	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid query failed: %w", err)
	}

	hits := make([]domain.QueryHit, 0, len(results))
	for _, point := range results {
		hit := domain.QueryHit{Score: point.Score, Metadata: make(map[string]any)}
		for k, v := range point.Payload {
			hit.Metadata[k] = valueAsInterface(v)
			if k == "vector_id" {
				hit.VectorID = v.GetStringValue()
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// payloadFor merges record metadata with the namespace fields every point
// carries.
func payloadFor(grantID, vectorID string, metadata map[string]any) map[string]any {
	payload := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["grant_id"] = grantID
	payload["vector_id"] = vectorID
	return payload
}

// valueAsInterface converts a qdrant payload Value into the plain Go value it
// wraps, recursing into structs and lists. The qdrant Value mirrors
// structpb.Value (with an added integer kind), which exposes the same
// conversion as AsInterface.
func valueAsInterface(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for k, f := range fields {
			m[k] = valueAsInterface(f)
		}
		return m
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		l := make([]any, 0, len(values))
		for _, e := range values {
			l = append(l, valueAsInterface(e))
		}
		return l
	default:
		return nil
	}
}

package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
)

const categoryPayloadKey = "category"

// QdrantIndex keeps one Qdrant collection per embedding family so vectors of
// different families never share a space.
type QdrantIndex struct {
	client *qdrant.Client
	prefix string
	known  sync.Map // collection name -> struct{}
	logger zerolog.Logger
}

// NewQdrantIndex connects to Qdrant over gRPC
func NewQdrantIndex(host string, port int, apiKey string, logger zerolog.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantIndex{
		client: client,
		prefix: "knowledge",
		logger: logger.With().Str("component", "qdrant_index").Logger(),
	}, nil
}

// Close releases the gRPC connection
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// CollectionName maps an embedding family to its collection
func (q *QdrantIndex) CollectionName(family string) string {
	var b strings.Builder
	b.WriteString(q.prefix)
	b.WriteByte('_')
	for _, r := range strings.ToLower(family) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (q *QdrantIndex) exists(ctx context.Context, name string) (bool, error) {
	if _, ok := q.known.Load(name); ok {
		return true, nil
	}
	ok, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check qdrant collection %s: %w", name, err)
	}
	if ok {
		q.known.Store(name, struct{}{})
	}
	return ok, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, name string, dimensions int) error {
	ok, err := q.exists(ctx, name)
	if err != nil || ok {
		return err
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection %s: %w", name, err)
	}

	q.logger.Info().Str("collection", name).Int("dimensions", dimensions).Msg("Created qdrant collection")
	q.known.Store(name, struct{}{})
	return nil
}

// Upsert writes points keyed by entry id with the category as payload
func (q *QdrantIndex) Upsert(ctx context.Context, family string, vectors []EntryVector) error {
	if len(vectors) == 0 {
		return nil
	}

	name := q.CollectionName(family)
	if err := q.ensureCollection(ctx, name, len(vectors[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		payload := map[string]any{}
		if v.Category != nil {
			payload[categoryPayloadKey] = *v.Category
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(v.EntryID)),
			Vectors: qdrant.NewVectors(v.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert %d points into %s: %w", len(points), name, err)
	}
	return nil
}

// Search queries the family's collection. A family that was never indexed
// has no hits.
func (q *QdrantIndex) Search(ctx context.Context, vq VectorQuery) ([]VectorHit, error) {
	if len(vq.Vector) == 0 || vq.Limit <= 0 {
		return nil, nil
	}

	name := q.CollectionName(vq.Family)
	ok, err := q.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	limit := uint64(vq.Limit)
	threshold := float32(vq.Threshold)
	request := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vq.Vector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
	}
	if len(vq.Categories) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(vq.Categories))
		for _, c := range vq.Categories {
			conditions = append(conditions, qdrant.NewMatch(categoryPayloadKey, c))
		}
		request.Filter = &qdrant.Filter{Should: conditions}
	}

	points, err := q.client.Query(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant collection %s: %w", name, err)
	}

	hits := make([]VectorHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, VectorHit{
			EntryID:    int64(p.GetId().GetNum()),
			Similarity: float64(p.GetScore()),
		})
	}
	return hits, nil
}

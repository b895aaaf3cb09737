package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is the durable VectorStore backend, speaking gRPC to Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore connects to Qdrant and verifies health with exponential
// backoff, failing fast if the server stays unreachable.
func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, collection: collection}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return s, nil
}

// healthCheckWithRetry retries the health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if absent.
// An existing collection whose vector size differs from vectorSize fails
// with ErrVectorSizeMismatch; re-running with the same size is a no-op.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	for _, name := range collections {
		if name != s.collection {
			continue
		}
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("get collection: %w", err)
		}
		existing := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if existing != vectorSize {
			return fmt.Errorf("%w: collection %q has size %d, config wants %d",
				ErrVectorSizeMismatch, s.collection, existing, vectorSize)
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	return s.createPayloadIndexes(ctx)
}

// createPayloadIndexes indexes the filterable payload fields. Without these
// indexes filtered search degrades badly on larger collections.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	keyword := []string{"security_id", "category", "as_of_date"}
	for _, field := range keyword {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}

	// as_of_day backs the inclusive date-range filter.
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "as_of_day",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create index for field as_of_day: %w", err)
	}
	return nil
}

// Exists performs a point lookup by id.
func (s *QdrantStore) Exists(ctx context.Context, id string) (bool, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return false, fmt.Errorf("get point: %w", err)
	}
	return len(result) > 0, nil
}

// Upsert overwrites or inserts the record at its id, retrying transient
// failures with exponential backoff.
func (s *QdrantStore) Upsert(ctx context.Context, rec *Record) error {
	payload := map[string]any{
		"security_id":   rec.SecurityID,
		"security_name": rec.SecurityName,
		"as_of_date":    rec.AsOfDate.Format(time.DateOnly),
		"as_of_day":     dayKey(rec.AsOfDate),
		"category":      rec.Category,
		"text":          rec.Text,
	}
	if rec.Facts != nil {
		payload["facts"] = rec.Facts
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(rec.ID),
		Vectors: qdrant.NewVectors(rec.Vector...),
		Payload: qdrant.NewValueMap(payload),
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpsert, err)
	}
	return nil
}

// Search performs filtered cosine similarity search. Qdrant applies the
// score threshold and returns score-descending order; the deterministic
// tie-break is applied on top.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, params SearchParams) ([]ScoredRecord, error) {
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(params.Limit)),
		ScoreThreshold: qdrant.PtrOf(params.ScoreThreshold),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if filter := buildFilter(params.Filter); filter != nil {
		query.Filter = filter
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	scored := make([]ScoredRecord, 0, len(results))
	for _, result := range results {
		rec := recordFromPayload(result.Id.GetUuid(), result.Payload)
		scored = append(scored, ScoredRecord{Record: rec, Score: result.Score})
	}
	sortScored(scored)
	return scored, nil
}

// Count returns the collection's point count.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}
	return collection.GetPointsCount(), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.SecurityID != "" {
		must = append(must, qdrant.NewMatch("security_id", f.SecurityID))
	}
	if f.Category != "" {
		must = append(must, qdrant.NewMatch("category", f.Category))
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		r := &qdrant.Range{}
		if !f.From.IsZero() {
			r.Gte = qdrant.PtrOf(float64(dayKey(f.From)))
		}
		if !f.To.IsZero() {
			r.Lte = qdrant.PtrOf(float64(dayKey(f.To)))
		}
		must = append(must, qdrant.NewRange("as_of_day", r))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func recordFromPayload(id string, payload map[string]*qdrant.Value) *Record {
	asOf, err := time.Parse(time.DateOnly, payload["as_of_date"].GetStringValue())
	if err != nil {
		asOf = time.Time{}
	}

	return &Record{
		ID:           id,
		SecurityID:   payload["security_id"].GetStringValue(),
		SecurityName: payload["security_name"].GetStringValue(),
		AsOfDate:     asOf,
		Category:     payload["category"].GetStringValue(),
		Text:         payload["text"].GetStringValue(),
		Facts:        factsFromValue(payload["facts"]),
	}
}

// factsFromValue flattens the stored facts struct back into a Go map.
func factsFromValue(v *qdrant.Value) map[string]any {
	if v == nil {
		return nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil
	}
	out := make(map[string]any, len(s.Fields))
	for key, field := range s.Fields {
		switch kind := field.GetKind().(type) {
		case *qdrant.Value_DoubleValue:
			out[key] = kind.DoubleValue
		case *qdrant.Value_IntegerValue:
			out[key] = kind.IntegerValue
		case *qdrant.Value_StringValue:
			out[key] = kind.StringValue
		case *qdrant.Value_BoolValue:
			out[key] = kind.BoolValue
		}
	}
	return out
}

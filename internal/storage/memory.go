package storage

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// MemoryStore is a brute-force cosine VectorStore kept entirely in memory.
// It backs deterministic unit tests and small zero-infrastructure setups;
// semantics (idempotent upsert, filtering, ranking, tie-breaks) match the
// Qdrant backend.
type MemoryStore struct {
	mu         sync.RWMutex
	vectorSize uint64
	records    map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, vectorSize uint64) error {
	if vectorSize == 0 {
		return fmt.Errorf("%w: vector size must be > 0", ErrVectorSizeMismatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectorSize != 0 && s.vectorSize != vectorSize {
		return fmt.Errorf("%w: collection has size %d, config wants %d",
			ErrVectorSizeMismatch, s.vectorSize, vectorSize)
	}
	s.vectorSize = vectorSize
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectorSize != 0 && uint64(len(rec.Vector)) != s.vectorSize {
		return fmt.Errorf("%w: vector has %d dimensions, expected %d",
			ErrDimensionMismatch, len(rec.Vector), s.vectorSize)
	}
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, params SearchParams) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorSize != 0 && uint64(len(vector)) != s.vectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.vectorSize)
	}

	results := make([]ScoredRecord, 0)
	for _, rec := range s.records {
		if !params.Filter.matches(rec) {
			continue
		}
		score := cosine(vector, rec.Vector)
		if score < params.ScoreThreshold {
			continue
		}
		results = append(results, ScoredRecord{Record: rec, Score: score})
	}

	sortScored(results)
	if params.Limit > 0 && len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Package storage persists embedded market documents and serves filtered
// similarity search over them.
package storage

import (
	"context"
	"sort"
	"time"
)

// Record is the persisted form of a document: content-address id, embedding
// vector, filterable payload fields, and the rendered text.
type Record struct {
	ID           string
	Vector       []float32
	SecurityID   string
	SecurityName string
	AsOfDate     time.Time
	Category     string
	Text         string
	Facts        map[string]any
}

// ScoredRecord pairs a record with its cosine similarity to a query vector.
type ScoredRecord struct {
	Record *Record
	Score  float32
}

// Filter restricts a search to a subset of the payload; zero-valued fields
// are unconstrained. All set fields must match (conjunction). The date range
// is inclusive on both ends.
type Filter struct {
	SecurityID string
	Category   string
	From       time.Time
	To         time.Time
}

// SearchParams bounds a similarity search.
type SearchParams struct {
	Limit          int
	ScoreThreshold float32
	Filter         Filter
}

// VectorStore is the contract both the Qdrant and the in-memory backends
// implement. Upsert is idempotent per id; the id-keyed overwrite is the only
// mutation path and serves as the store's concurrency control.
type VectorStore interface {
	// EnsureCollection creates the collection if absent. An existing
	// collection with a different vector size fails with
	// ErrVectorSizeMismatch.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// Exists reports whether a record with the given id is indexed.
	Exists(ctx context.Context, id string) (bool, error)

	// Upsert inserts or overwrites the record at its id.
	Upsert(ctx context.Context, rec *Record) error

	// Search returns at most params.Limit records whose cosine similarity
	// meets params.ScoreThreshold, descending by score. Ties are broken by
	// newer AsOfDate, then id, for deterministic output.
	Search(ctx context.Context, vector []float32, params SearchParams) ([]ScoredRecord, error)

	// Count returns the number of indexed records.
	Count(ctx context.Context) (uint64, error)
}

// dayKey encodes a date as yyyymmdd for numeric range filtering.
func dayKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// sortScored orders results by score descending, then newer AsOfDate, then
// id ascending. Applied in both backends so ranking is deterministic.
func sortScored(results []ScoredRecord) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		di, dj := results[i].Record.AsOfDate, results[j].Record.AsOfDate
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

// matches reports whether a record satisfies every set filter field.
func (f Filter) matches(rec *Record) bool {
	if f.SecurityID != "" && rec.SecurityID != f.SecurityID {
		return false
	}
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && dayKey(rec.AsOfDate) < dayKey(f.From) {
		return false
	}
	if !f.To.IsZero() && dayKey(rec.AsOfDate) > dayKey(f.To) {
		return false
	}
	return true
}

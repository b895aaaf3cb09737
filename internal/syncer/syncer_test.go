package syncer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/twstock-rag/internal/document"
	"github.com/bull/twstock-rag/internal/market"
	"github.com/bull/twstock-rag/internal/storage"
)

const testVectorSize = 8

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatPtr(f float64) *float64 { return &f }

func itemKey(securityID string, date time.Time, category document.Category) string {
	return securityID + "|" + date.Format(time.DateOnly) + "|" + string(category)
}

// fakeSource serves scripted facts per item, optionally after a queue of
// errors, and counts fetch attempts.
type fakeSource struct {
	mu       sync.Mutex
	facts    map[string]document.Facts
	errQueue map[string][]error
	attempts map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		facts:    make(map[string]document.Facts),
		errQueue: make(map[string][]error),
		attempts: make(map[string]int),
	}
}

func (s *fakeSource) set(item Item, facts document.Facts, errs ...error) {
	key := itemKey(item.SecurityID, item.Date, item.Category)
	s.facts[key] = facts
	s.errQueue[key] = errs
}

func (s *fakeSource) attemptCount(item Item) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[itemKey(item.SecurityID, item.Date, item.Category)]
}

func (s *fakeSource) Fetch(_ context.Context, securityID string, date time.Time, category document.Category) (document.Facts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemKey(securityID, date, category)
	s.attempts[key]++

	if queue := s.errQueue[key]; len(queue) > 0 {
		err := queue[0]
		s.errQueue[key] = queue[1:]
		return nil, err
	}

	facts, ok := s.facts[key]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", key, market.ErrNotFound)
	}
	return facts, nil
}

// fakeEmbedder derives a deterministic all-positive vector from each text,
// so distinct texts still have positive cosine similarity.
type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, testVectorSize)
		for j := range vec {
			vec[j] = float32(sum[j]) + 1
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func priceItem(securityID string, date time.Time) Item {
	return Item{
		SecurityID:   securityID,
		SecurityName: securityID,
		Date:         date,
		Category:     document.CategoryPriceTechnical,
	}
}

func priceFacts(close float64) *document.PriceTechnicalFacts {
	return &document.PriceTechnicalFacts{Close: floatPtr(close), RSI14: floatPtr(55)}
}

func fastOptions() Options {
	return Options{
		Workers:         4,
		FetchRatePerSec: 10_000,
		MaxAttempts:     3,
		RetryBaseDelay:  time.Millisecond,
	}
}

func newTestSyncer(t *testing.T, source *fakeSource, opts Options) (*Syncer, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), testVectorSize))
	return New(source, fakeEmbedder{}, store, opts, quietLogger()), store
}

func TestRunInsertsThenSkips(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	items := []Item{priceItem("2330", date), priceItem("2317", date)}
	source := newFakeSource()
	source.set(items[0], priceFacts(600))
	source.set(items[1], priceFacts(180))

	s, store := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Requested)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// Second run over the same window: everything skips before any fetch.
	report, err = s.Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 1, source.attemptCount(items[0]))
	assert.Equal(t, 1, source.attemptCount(items[1]))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRunForceOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	item := priceItem("2330", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	source := newFakeSource()
	source.set(item, priceFacts(600))

	s, store := newTestSyncer(t, source, fastOptions())
	_, err := s.Run(ctx, []Item{item})
	require.NoError(t, err)

	// Provider revises the day; a forced run must overwrite, not duplicate.
	source.set(item, priceFacts(650))
	forced := fastOptions()
	forced.Force = true
	s = New(source, fakeEmbedder{}, store, forced, quietLogger())

	report, err := s.Run(ctx, []Item{item})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	vecs, err := fakeEmbedder{}.GenerateEmbeddings(ctx, []string{"latest close"})
	require.NoError(t, err)
	hits, err := store.Search(ctx, vecs[0], storage.SearchParams{Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Record.Text, "close: 650.00")
}

func TestRunIsolatesBadItems(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	items := []Item{
		priceItem("2330", date),
		priceItem("2317", date),
		priceItem("2454", date),
	}
	source := newFakeSource()
	source.set(items[0], priceFacts(600))
	// 2317 comes back without a close price and must fail validation.
	source.set(items[1], &document.PriceTechnicalFacts{RSI14: floatPtr(40)})
	source.set(items[2], priceFacts(1200))

	s, store := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Failed)

	// Outcomes stay in request order regardless of completion order.
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "2330", report.Outcomes[0].Item.SecurityID)
	assert.Equal(t, StatusInserted, report.Outcomes[0].Status)
	assert.Equal(t, "2317", report.Outcomes[1].Item.SecurityID)
	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.ErrorIs(t, report.Outcomes[1].Err, document.ErrValidation)
	assert.Equal(t, "2454", report.Outcomes[2].Item.SecurityID)
	assert.Equal(t, StatusInserted, report.Outcomes[2].Status)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "2317", report.Failures[0].Item.SecurityID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRunRetriesRateLimitedFetch(t *testing.T) {
	ctx := context.Background()
	item := priceItem("2330", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	source := newFakeSource()
	source.set(item, priceFacts(600), market.ErrRateLimited, market.ErrRateLimited)

	s, _ := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(ctx, []Item{item})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 3, source.attemptCount(item))
}

func TestRunRetryCeilingExhausted(t *testing.T) {
	ctx := context.Background()
	item := priceItem("2330", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	source := newFakeSource()
	source.set(item, priceFacts(600),
		market.ErrTransient, market.ErrTransient, market.ErrTransient)

	s, _ := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(ctx, []Item{item})
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, source.attemptCount(item))
}

func TestRunNotFoundIsPermanent(t *testing.T) {
	ctx := context.Background()
	item := priceItem("9999", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	source := newFakeSource()

	s, _ := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(ctx, []Item{item})
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Outcomes[0].Err, market.ErrNotFound)
	assert.Equal(t, 1, source.attemptCount(item))
}

func TestRunPartialSuccessIsNotAnError(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	items := []Item{priceItem("2330", date), priceItem("9999", date)}
	source := newFakeSource()
	source.set(items[0], priceFacts(600))

	s, _ := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Failed)
}

func TestRunEmptyWindow(t *testing.T) {
	source := newFakeSource()
	s, _ := newTestSyncer(t, source, fastOptions())

	report, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Requested)
}

func TestBuildItems(t *testing.T) {
	// 2025-01-03 is a Friday; the window spans a weekend.
	from := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	securities := map[string]string{"2330": "台積電", "2317": "鴻海"}
	items := BuildItems(securities, from, to, true)

	// Per security: Friday and Monday price items plus one fundamental.
	require.Len(t, items, 6)

	assert.Equal(t, "2317", items[0].SecurityID)
	assert.Equal(t, document.CategoryPriceTechnical, items[0].Category)
	assert.Equal(t, from, items[0].Date)
	assert.Equal(t, to, items[1].Date)
	assert.Equal(t, document.CategoryFundamental, items[2].Category)
	assert.Equal(t, to, items[2].Date)
	assert.Equal(t, "2330", items[3].SecurityID)

	for _, item := range items {
		wd := item.Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}

	noFund := BuildItems(securities, from, to, false)
	assert.Len(t, noFund, 4)
}

// Package syncer drives incremental ingestion: for a window of securities,
// dates and categories it builds documents, skips already-indexed ones, and
// embeds and upserts the rest, tracking per-item outcomes.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bull/twstock-rag/internal/document"
	"github.com/bull/twstock-rag/internal/market"
	"github.com/bull/twstock-rag/internal/storage"
)

// ErrRunFailed marks a run in which not a single item succeeded — the
// signature of a systemic outage rather than bad per-item data.
var ErrRunFailed = errors.New("sync run failed: no items succeeded")

// FactSource supplies facts for one item. Implemented by market.Client.
type FactSource interface {
	Fetch(ctx context.Context, securityID string, date time.Time, category document.Category) (document.Facts, error)
}

// Embedder turns texts into vectors. Implemented by embedding.Embedder.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Options bounds a run.
type Options struct {
	// Workers caps item concurrency.
	Workers int
	// FetchRatePerSec is the shared budget for provider calls. Embedding
	// and upsert calls are not gated; only the fetch is quota-bound.
	FetchRatePerSec float64
	// MaxAttempts is the fetch attempt ceiling per item, counting the
	// first try.
	MaxAttempts int
	// Force skips the exists check, overwriting indexed items in place.
	Force bool
	// RetryBaseDelay overrides the initial backoff interval; zero keeps
	// the default (500ms).
	RetryBaseDelay time.Duration
}

// Syncer orchestrates one ingestion run at a time. The store is the only
// shared mutable state; its id-keyed upsert is the sole mutation path.
type Syncer struct {
	source   FactSource
	embedder Embedder
	store    storage.VectorStore
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
}

func New(source FactSource, embedder Embedder, store storage.VectorStore, opts Options, logger *slog.Logger) *Syncer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.FetchRatePerSec <= 0 {
		opts.FetchRatePerSec = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		source:   source,
		embedder: embedder,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(opts.FetchRatePerSec), 1),
		opts:     opts,
		logger:   logger,
	}
}

// Run processes all items through a bounded worker pool and returns the
// aggregated report. Cancelling ctx stops new items after in-flight ones
// finish; upsert is the last step per item, so a cancelled item leaves the
// store untouched. The error is non-nil only when every item failed.
func (s *Syncer) Run(ctx context.Context, items []Item) (*Report, error) {
	start := time.Now()
	outcomes := make([]Outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = s.processItem(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Requested: len(items),
		Outcomes:  outcomes,
		Duration:  time.Since(start),
	}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case StatusSkipped:
			report.Skipped++
		case StatusInserted:
			report.Inserted++
		case StatusFailed:
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				ID:     outcome.ID,
				Item:   outcome.Item,
				Reason: outcome.Err.Error(),
			})
		}
	}

	s.logger.Info("sync run complete",
		"requested", report.Requested,
		"skipped", report.Skipped,
		"inserted", report.Inserted,
		"failed", report.Failed,
		"duration", report.Duration,
	)

	if report.Requested > 0 && report.Inserted+report.Skipped == 0 {
		return report, ErrRunFailed
	}
	return report, nil
}

// processItem walks one item through its states: skip check first (the
// dedup fast path, before any external call), then fetch, build, embed,
// upsert. All errors terminate this item only.
func (s *Syncer) processItem(ctx context.Context, item Item) Outcome {
	outcome := Outcome{
		Item: item,
		ID:   document.NewID(item.SecurityID, item.Date, item.Category),
	}

	if err := ctx.Err(); err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	if !s.opts.Force {
		exists, err := s.store.Exists(ctx, outcome.ID)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Err = err
			return outcome
		}
		if exists {
			s.logger.Debug("already indexed",
				"security", item.SecurityID, "date", item.Date.Format(time.DateOnly), "category", item.Category)
			outcome.Status = StatusSkipped
			return outcome
		}
	}

	facts, err := s.fetchWithRetry(ctx, item)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	doc, err := document.Build(item.SecurityID, item.SecurityName, item.Date, facts)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	vectors, err := s.embedder.GenerateEmbeddings(ctx, []string{doc.Text})
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	record := &storage.Record{
		ID:           doc.ID,
		Vector:       vectors[0],
		SecurityID:   doc.SecurityID,
		SecurityName: doc.SecurityName,
		AsOfDate:     doc.AsOfDate,
		Category:     string(doc.Category),
		Text:         doc.Text,
		Facts:        doc.Facts.Payload(),
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	s.logger.Info("indexed document",
		"security", item.SecurityID, "date", item.Date.Format(time.DateOnly), "category", item.Category)
	outcome.Status = StatusInserted
	return outcome
}

// fetchWithRetry calls the fact source behind the shared rate gate,
// retrying rate-limited and transient failures with exponential backoff up
// to the attempt ceiling. Not-found and validation failures are permanent.
func (s *Syncer) fetchWithRetry(ctx context.Context, item Item) (document.Facts, error) {
	operation := func() (document.Facts, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		facts, err := s.source.Fetch(ctx, item.SecurityID, item.Date, item.Category)
		if err != nil {
			if errors.Is(err, market.ErrRateLimited) || errors.Is(err, market.ErrTransient) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return facts, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBaseDelay
	b.MaxInterval = 10 * time.Second

	return backoff.RetryWithData(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx))
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/reviewgate/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the default number of concurrent sessions.
const DefaultConcurrency = 4

// Runner runs one crawl session.
// *CrawlSession implements it.
type Runner interface {
	Run(ctx context.Context, req Request) *model.SessionResult
}

// BatchProcessor runs several sessions concurrently.
//
// All sessions share the runner and therefore its compliance gate, so
// per-domain limits hold across the whole batch. Sessions for the same
// domain are paced by the gate; sessions for other domains are not held up.
type BatchProcessor struct {
	runner      Runner
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent sessions.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(runner Runner, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runner:      runner,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Concurrency returns the configured concurrency limit.
func (bp *BatchProcessor) Concurrency() int {
	return bp.concurrency
}

// ProcessBatch runs a session per request and returns the results in request
// order. Every request gets a result; after cancellation the remaining
// sessions finish immediately as aborted with reason cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, reqs []Request) []*model.SessionResult {
	results := make([]*model.SessionResult, len(reqs))
	bp.ProcessBatchWithCallback(ctx, reqs, func(result *model.SessionResult, index int) {
		results[index] = result
	})
	return results
}

// ProcessBatchWithCallback runs a session per request and calls callback as
// each one finishes. callback is called from the session's goroutine and
// must be safe for concurrent use; writes to distinct indexes of a slice are.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	reqs []Request,
	callback func(result *model.SessionResult, index int),
) {
	bp.logger.Info("starting batch processing",
		"total_sessions", len(reqs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			bp.logger.Info("running session",
				"target", req.Target,
				"index", i+1,
				"total", len(reqs),
			)

			result := bp.runner.Run(ctx, req)
			callback(result, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // sessions never return errors

	bp.logger.Info("batch processing complete",
		"total_sessions", len(reqs),
		"elapsed", time.Since(startTime),
	)
}

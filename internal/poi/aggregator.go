package poi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/reviewgate/internal/dedup"
	"github.com/nao1215/reviewgate/internal/model"
	"golang.org/x/sync/errgroup"
)

// SourceStatus reports what one source returned.
type SourceStatus struct {
	Platform model.Platform `json:"platform"`
	Found    int            `json:"found"`
	Error    string         `json:"error,omitempty"`
}

// Result is the merged output of an aggregation.
type Result struct {
	Keyword    string         `json:"keyword"`
	City       string         `json:"city"`
	POIs       []model.POI    `json:"pois"`
	Sources    []SourceStatus `json:"sources"`
	Duplicates int            `json:"duplicates"`
}

// Aggregator merges venue search results from several sources.
type Aggregator struct {
	sources []Source
	limit   int
	logger  *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLimit sets the number of results requested per source.
func WithLimit(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an aggregator over sources. Source order decides
// which duplicate is kept.
func NewAggregator(sources []Source, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{sources: sources, limit: DefaultLimit}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Aggregate queries every source concurrently. A failing source is reported
// in Result.Sources and does not stop the others.
func (a *Aggregator) Aggregate(ctx context.Context, keyword, city string) *Result {
	found := make([][]model.POI, len(a.sources))
	statuses := make([]SourceStatus, len(a.sources))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for i, src := range a.sources {
		g.Go(func() error {
			pois, err := src.Search(ctx, keyword, city, a.limit)

			mu.Lock()
			defer mu.Unlock()
			statuses[i] = SourceStatus{Platform: src.Platform(), Found: len(pois)}
			if err != nil {
				statuses[i].Error = err.Error()
				a.logger.Warn("poi source failed",
					"platform", src.Platform(),
					"error", err,
				)
				return nil
			}
			found[i] = pois
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // source errors are recorded per source

	index := dedup.New()
	merged := make([]model.POI, 0)
	for _, pois := range found {
		for _, p := range pois {
			if !index.TryInsert(dedup.POIKey(p.Name, p.Address)) {
				continue
			}
			p.UniqueID = len(merged) + 1
			merged = append(merged, p)
		}
	}

	a.logger.Info("poi aggregation complete",
		"keyword", keyword,
		"city", city,
		"unique", len(merged),
		"duplicates", index.Rejected(),
	)

	return &Result{
		Keyword:    keyword,
		City:       city,
		POIs:       merged,
		Sources:    statuses,
		Duplicates: index.Rejected(),
	}
}

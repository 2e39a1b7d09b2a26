package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/crawler"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/resolve"
)

// Crawler walks a review listing.
// *crawler.PaginationCrawler implements it.
type Crawler interface {
	Crawl(ctx context.Context, state *model.SessionState, startURL string, cutoff time.Time) *crawler.Result
}

// Sink durably stores a finished bundle.
type Sink interface {
	SaveBundle(ctx context.Context, bundle *model.Bundle) error
}

// ValidateStep rejects requests with an unknown purpose or a platform that
// does not serve review listings.
type ValidateStep struct {
	clock  compliance.Clock
	logger *slog.Logger
}

// NewValidateStep creates a validation step.
func NewValidateStep(clock compliance.Clock, logger *slog.Logger) *ValidateStep {
	return &ValidateStep{clock: clock, logger: logger}
}

// Name returns the step name.
func (s *ValidateStep) Name() string {
	return "validate"
}

// Do checks the request.
func (s *ValidateStep) Do(_ context.Context, run *Run) error {
	if err := run.Request.Validate(); err != nil {
		run.State.Finish(model.SessionAborted, model.ReasonInvalidRequest, s.clock.Now())
		s.logger.Warn("invalid crawl request",
			"session_id", run.State.SessionID,
			"error", err,
		)
	}
	return nil
}

// ResolveStep turns the target into a review listing URL.
// A target that is already an http(s) URL is used as is.
type ResolveStep struct {
	resolver resolve.Resolver
	clock    compliance.Clock
	logger   *slog.Logger
}

// NewResolveStep creates a resolve step.
func NewResolveStep(resolver resolve.Resolver, clock compliance.Clock, logger *slog.Logger) *ResolveStep {
	return &ResolveStep{resolver: resolver, clock: clock, logger: logger}
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return "resolve"
}

// Do resolves the target. The first candidate wins.
func (s *ResolveStep) Do(ctx context.Context, run *Run) error {
	target := strings.TrimSpace(run.Request.Target)
	if isListingURL(target) {
		run.Candidates = []model.CandidateEntity{{Name: target, URL: target}}
		run.State.TargetURL = target
		return nil
	}

	candidates, err := s.resolver.Resolve(ctx, target, run.Request.City)
	if err != nil {
		run.State.Finish(model.SessionAborted, resolveFailureReason(ctx, err), s.clock.Now())
		s.logger.Warn("target resolution failed",
			"session_id", run.State.SessionID,
			"target", target,
			"reason", run.State.Reason,
			"error", err,
		)
		return nil
	}

	run.Candidates = candidates
	if len(candidates) == 0 {
		run.State.Finish(model.SessionAborted, model.ReasonNoMatchingEntity, s.clock.Now())
		return nil
	}

	chosen := candidates[0]
	run.State.TargetURL = chosen.URL
	if len(candidates) > 1 {
		s.logger.Warn("ambiguous target, using first candidate",
			"session_id", run.State.SessionID,
			"target", target,
			"chosen", chosen.Name,
			"candidates", len(candidates),
		)
	}
	return nil
}

// resolveFailureReason maps a resolver error to a session reason.
func resolveFailureReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return model.ReasonCancelled
	case errors.Is(err, compliance.ErrRobotsExcluded):
		return model.ReasonRobotsExcluded
	case errors.Is(err, compliance.ErrRateLimited):
		return model.ReasonRateLimited
	default:
		return model.ReasonResolverFailed
	}
}

// isListingURL reports whether target is an absolute http(s) URL.
func isListingURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CrawlStep runs the pagination crawler over the resolved URL.
type CrawlStep struct {
	crawler Crawler
}

// NewCrawlStep creates a crawl step.
func NewCrawlStep(c Crawler) *CrawlStep {
	return &CrawlStep{crawler: c}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls. The crawler always leaves the state terminal.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	result := s.crawler.Crawl(ctx, run.State, run.State.TargetURL, run.Request.Cutoff)
	if result == nil {
		return fmt.Errorf("failed to crawl %s: no result", run.State.TargetURL)
	}
	run.Records = result.Records
	run.Stats = result.Stats
	return nil
}

// FinalizeStep stamps bundle metadata.
type FinalizeStep struct {
	clock     compliance.Clock
	retention time.Duration
}

// NewFinalizeStep creates a finalize step.
func NewFinalizeStep(clock compliance.Clock, retention time.Duration) *FinalizeStep {
	return &FinalizeStep{clock: clock, retention: retention}
}

// Name returns the step name.
func (s *FinalizeStep) Name() string {
	return "finalize"
}

// Do builds the bundle. A session still running here was stopped by a step
// failure and is aborted.
func (s *FinalizeStep) Do(_ context.Context, run *Run) error {
	now := s.clock.Now()
	if !run.State.Status.IsTerminal() {
		run.State.Finish(model.SessionAborted, model.ReasonInternalError, now)
	}
	run.State.RecordsCollected = len(run.Records)
	run.Bundle = model.NewBundle(run.State, run.Request.Purpose, run.Request.Platform, run.Records, now, s.retention)
	return nil
}

// PersistStep hands the bundle to a sink.
type PersistStep struct {
	sink   Sink
	name   string
	logger *slog.Logger
}

// NewPersistStep creates a persist step. name labels the sink in logs.
func NewPersistStep(sink Sink, name string, logger *slog.Logger) *PersistStep {
	return &PersistStep{sink: sink, name: name, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist_" + s.name
}

// Do stores the bundle. A sink failure is recorded on the run and does not
// change the session status.
func (s *PersistStep) Do(ctx context.Context, run *Run) error {
	if run.Bundle == nil {
		return nil
	}
	if err := s.sink.SaveBundle(ctx, run.Bundle); err != nil {
		err = fmt.Errorf("failed to persist bundle to %s: %w", s.name, err)
		run.PersistErrors = append(run.PersistErrors, err)
		s.logger.Error("persist failed",
			"session_id", run.State.SessionID,
			"sink", s.name,
			"error", err,
		)
		return nil
	}
	s.logger.Info("bundle persisted",
		"session_id", run.State.SessionID,
		"sink", s.name,
		"records", len(run.Bundle.Records),
	)
	return nil
}

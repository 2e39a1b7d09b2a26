package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/resolve"
)

// Session defaults.
const (
	// DefaultRetention is how long a bundle may be kept.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultTimeRangeMonths is how far back reviews are collected.
	DefaultTimeRangeMonths = 6
)

// Request describes one crawl session.
type Request struct {
	// Target is a venue name or a review listing URL.
	Target string

	// City narrows name resolution.
	City string

	// Purpose is the declared collection purpose.
	Purpose model.Purpose

	// Platform is the review source.
	Platform model.Platform

	// Cutoff drops reviews older than this instant. Zero derives it from
	// the session's time range.
	Cutoff time.Time
}

// Validate checks the request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Target) == "" {
		return ErrEmptyTarget
	}
	if !r.Purpose.IsValid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownPurpose, r.Purpose)
	}
	if !r.Platform.IsReviewSource() {
		return fmt.Errorf("%w: %q", ErrNotReviewSource, r.Platform)
	}
	return nil
}

type namedSink struct {
	name string
	sink Sink
}

// CrawlSession resolves a target, crawls it and persists the result.
// A CrawlSession holds no per-run state and is safe for concurrent use when
// its collaborators are.
type CrawlSession struct {
	resolver        resolve.Resolver
	crawler         Crawler
	sinks           []namedSink
	clock           compliance.Clock
	retention       time.Duration
	timeRangeMonths int
	newID           func() string
	logger          *slog.Logger
}

// SessionOption configures a CrawlSession.
type SessionOption func(*CrawlSession)

// WithSink adds a persistence sink. Sinks run in the order added.
func WithSink(name string, sink Sink) SessionOption {
	return func(s *CrawlSession) {
		if sink != nil {
			s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
		}
	}
}

// WithRetention sets how long bundles are retained.
func WithRetention(d time.Duration) SessionOption {
	return func(s *CrawlSession) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithTimeRangeMonths sets how many months back reviews are kept.
// Zero disables the time cutoff.
func WithTimeRangeMonths(months int) SessionOption {
	return func(s *CrawlSession) {
		if months >= 0 {
			s.timeRangeMonths = months
		}
	}
}

// WithSessionClock sets the clock.
func WithSessionClock(clock compliance.Clock) SessionOption {
	return func(s *CrawlSession) {
		s.clock = clock
	}
}

// WithIDGenerator sets the session ID generator.
func WithIDGenerator(fn func() string) SessionOption {
	return func(s *CrawlSession) {
		s.newID = fn
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *CrawlSession) {
		s.logger = logger
	}
}

// NewCrawlSession creates a session runner.
func NewCrawlSession(resolver resolve.Resolver, c Crawler, opts ...SessionOption) *CrawlSession {
	s := &CrawlSession{
		resolver:        resolver,
		crawler:         c,
		clock:           compliance.SystemClock{},
		retention:       DefaultRetention,
		timeRangeMonths: DefaultTimeRangeMonths,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// pipeline builds the steps for one run.
func (s *CrawlSession) pipeline() *Pipeline {
	p := New(WithLogger(s.logger), WithClock(s.clock))
	p.AddSteps(
		NewValidateStep(s.clock, s.logger),
		NewResolveStep(s.resolver, s.clock, s.logger),
		NewCrawlStep(s.crawler),
	)
	p.AddFinalizer(NewFinalizeStep(s.clock, s.retention))
	for _, ns := range s.sinks {
		p.AddFinalizer(NewPersistStep(ns.sink, ns.name, s.logger))
	}
	return p
}

// Run executes one session. It never fails: the result always carries a
// terminal state with a reason, and whatever records were accepted.
func (s *CrawlSession) Run(ctx context.Context, req Request) *model.SessionResult {
	start := s.clock.Now()
	if req.Cutoff.IsZero() && s.timeRangeMonths > 0 {
		req.Cutoff = start.AddDate(0, -s.timeRangeMonths, 0)
	}

	state := model.NewSessionState(s.newID(), req.Target, start)
	run := NewRun(req, state)

	s.logger.Info("session started",
		"session_id", state.SessionID,
		"target", req.Target,
		"purpose", req.Purpose,
		"platform", req.Platform,
	)

	if err := s.pipeline().Execute(ctx, run); err != nil {
		s.logger.Error("session step failed",
			"session_id", state.SessionID,
			"error", err,
		)
	}

	result := run.Result()
	s.logger.Info("session finished",
		"session_id", state.SessionID,
		"status", result.State.Status,
		"reason", result.State.Reason,
		"records", result.State.RecordsCollected,
		"duration", result.State.Duration(s.clock.Now()),
	)
	return result
}

// Result converts the run into a session result.
func (r *Run) Result() *model.SessionResult {
	result := &model.SessionResult{
		State:      *r.State,
		Stats:      r.Stats,
		Bundle:     r.Bundle,
		Candidates: len(r.Candidates),
	}
	if err := errors.Join(r.PersistErrors...); err != nil {
		result.PersistError = err.Error()
	}
	return result
}

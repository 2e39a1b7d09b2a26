package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
)

// Step is one stage of a crawl session.
// Steps run in sequence and share the Run they are given.
type Step interface {
	// Do executes the step. Expected outcomes such as a robots denial are
	// recorded on run.State and return nil; an error means the step itself
	// could not do its work.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Run is the mutable state shared by the steps of one session.
type Run struct {
	// Request is what the session was asked to do.
	Request Request

	// State is the session state. Steps stop running once it is terminal.
	State *model.SessionState

	// Stats are the crawl counters.
	Stats model.CrawlStats

	// Candidates are the entities returned by the resolver.
	Candidates []model.CandidateEntity

	// Records are the accepted anonymized records.
	Records []model.AnonymizedReview

	// Bundle is the stamped record set, set by the finalize step.
	Bundle *model.Bundle

	// PersistErrors are the sink failures, one per failing sink.
	PersistErrors []error

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string
}

// NewRun creates a run for req with a running state.
func NewRun(req Request, state *model.SessionState) *Run {
	return &Run{
		Request: req,
		State:   state,
		Records: make([]model.AnonymizedReview, 0),
	}
}

// Pipeline orchestrates the execution of multiple steps.
//
// Steps run until one fails or the session state becomes terminal.
// Finalizers always run afterwards, even when the context was cancelled,
// so a partial record set is still stamped and persisted.
type Pipeline struct {
	steps      []Step
	finalizers []Step
	logger     *slog.Logger
	clock      compliance.Clock

	// continueOnError keeps running steps after one returns an error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock sets the clock used to stamp cancellation.
func WithClock(clock compliance.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithContinueOnError configures the pipeline to keep running steps after
// one fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:      make([]Step, 0),
		finalizers: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.clock == nil {
		p.clock = compliance.SystemClock{}
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalizer appends a step that always runs after the regular steps.
func (p *Pipeline) AddFinalizer(step Step) {
	p.finalizers = append(p.finalizers, step)
}

// Execute runs the steps and then the finalizers.
//
// A cancelled context stops the regular steps and marks a still running
// session aborted with reason cancelled. Finalizers receive a context that
// is not cancelled with ctx.
//
// Returns the first step error, or nil.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	var firstErr error

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil && !run.State.Status.IsTerminal() {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"session_id", run.State.SessionID,
				"reason", err,
			)
			run.State.Finish(model.SessionAborted, model.ReasonCancelled, p.clock.Now())
		}
		if run.State.Status.IsTerminal() {
			p.logger.Debug("session finished, skipping step",
				"step", step.Name(),
				"session_id", run.State.SessionID,
			)
			break
		}

		if err := p.do(ctx, step, run); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				break
			}
		}
	}

	finalCtx := context.WithoutCancel(ctx)
	for _, step := range p.finalizers {
		if err := p.do(finalCtx, step, run); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// do runs one step with logging.
func (p *Pipeline) do(ctx context.Context, step Step, run *Run) error {
	p.logger.Debug("executing step",
		"step", step.Name(),
		"session_id", run.State.SessionID,
	)

	err := step.Do(ctx, run)
	run.PerformedSteps = append(run.PerformedSteps, step.Name())
	if err != nil {
		p.logger.Error("step failed",
			"step", step.Name(),
			"session_id", run.State.SessionID,
			"error", err,
		)
		return err
	}

	p.logger.Debug("step completed",
		"step", step.Name(),
		"session_id", run.State.SessionID,
	)
	return nil
}

// StepCount returns the number of regular steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps and finalizers in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finalizers))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalizers {
		names = append(names, step.Name())
	}
	return names
}

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/reviewgate/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// fixedClock always reports the same instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

var testStart = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestRun() *Run {
	return NewRun(Request{Target: "target"}, model.NewSessionState("s-1", "target", testStart))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.clock == nil || p.logger == nil {
			t.Error("expected default clock and logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("maintains step order with finalizers last", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddFinalizer(&mockStep{name: "final"})
		p.AddStep(&mockStep{name: "first"})
		p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

		if p.StepCount() != 3 {
			t.Errorf("expected 3 steps, got %d", p.StepCount())
		}

		names := p.StepNames()
		expected := []string{"first", "second", "third", "final"}
		if len(names) != len(expected) {
			t.Fatalf("expected %d names, got %v", len(expected), names)
		}
		for i, name := range names {
			if name != expected[i] {
				t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
			}
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		order := make([]string, 0)
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(_ context.Context, _ *Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("a"), record("b"))
		p.AddFinalizer(record("z"))

		run := newTestRun()
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "z" {
			t.Errorf("unexpected order %v", order)
		}
		if len(run.PerformedSteps) != 3 {
			t.Errorf("expected 3 performed steps, got %v", run.PerformedSteps)
		}
	})

	t.Run("stops at terminal state but runs finalizers", func(t *testing.T) {
		t.Parallel()

		stopper := &mockStep{name: "stop", doFunc: func(_ context.Context, run *Run) error {
			run.State.Finish(model.SessionAborted, model.ReasonNoMatchingEntity, testStart)
			return nil
		}}
		skipped := &mockStep{name: "skipped"}
		final := &mockStep{name: "final"}

		p := New()
		p.AddSteps(stopper, skipped)
		p.AddFinalizer(final)

		run := newTestRun()
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if skipped.callCount != 0 {
			t.Error("expected step after terminal state to be skipped")
		}
		if final.callCount != 1 {
			t.Error("expected finalizer to run")
		}
	})

	t.Run("stops on error by default", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		failing := &mockStep{name: "fail", doFunc: func(context.Context, *Run) error { return boom }}
		next := &mockStep{name: "next"}
		final := &mockStep{name: "final"}

		p := New()
		p.AddSteps(failing, next)
		p.AddFinalizer(final)

		err := p.Execute(context.Background(), newTestRun())
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if next.callCount != 0 {
			t.Error("expected next step to be skipped")
		}
		if final.callCount != 1 {
			t.Error("expected finalizer to run after failure")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		failing := &mockStep{name: "fail", doFunc: func(context.Context, *Run) error { return errors.New("boom") }}
		next := &mockStep{name: "next"}

		p := New(WithContinueOnError(true))
		p.AddSteps(failing, next)

		if err := p.Execute(context.Background(), newTestRun()); err == nil {
			t.Error("expected first error to be returned")
		}
		if next.callCount != 1 {
			t.Error("expected next step to run")
		}
	})

	t.Run("cancellation aborts session and finalizers get live context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "step"}
		var finalErr error
		final := &mockStep{name: "final", doFunc: func(ctx context.Context, _ *Run) error {
			finalErr = ctx.Err()
			return nil
		}}

		p := New(WithClock(fixedClock{now: testStart.Add(time.Minute)}))
		p.AddStep(step)
		p.AddFinalizer(final)

		run := newTestRun()
		if err := p.Execute(ctx, run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if step.callCount != 0 {
			t.Error("expected step to be skipped after cancel")
		}
		if run.State.Status != model.SessionAborted || run.State.Reason != model.ReasonCancelled {
			t.Errorf("expected aborted/cancelled, got %s/%s", run.State.Status, run.State.Reason)
		}
		if !run.State.EndTime.Equal(testStart.Add(time.Minute)) {
			t.Errorf("unexpected end time %v", run.State.EndTime)
		}
		if final.callCount != 1 || finalErr != nil {
			t.Errorf("expected finalizer with live context, calls=%d err=%v", final.callCount, finalErr)
		}
	})
}

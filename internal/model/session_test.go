package model

import (
	"testing"
	"time"
)

func TestSessionStatus(t *testing.T) {
	t.Parallel()

	if SessionRunning.IsTerminal() {
		t.Error("expected running to be non-terminal")
	}
	if !SessionCompleted.IsTerminal() || !SessionAborted.IsTerminal() {
		t.Error("expected completed and aborted to be terminal")
	}
	if got := SessionStatus("").String(); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
}

func TestSessionStateFinish(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("first terminal transition wins", func(t *testing.T) {
		t.Parallel()

		s := NewSessionState("id-1", "全聚德", start)
		if s.Status != SessionRunning {
			t.Fatalf("expected running, got %s", s.Status)
		}

		if !s.Finish(SessionAborted, ReasonRobotsExcluded, start.Add(time.Minute)) {
			t.Fatal("expected first finish to succeed")
		}
		if s.Finish(SessionCompleted, ReasonNoMorePages, start.Add(2*time.Minute)) {
			t.Error("expected second finish to be ignored")
		}
		if s.Status != SessionAborted || s.Reason != ReasonRobotsExcluded {
			t.Errorf("state changed after finish: %s (%s)", s.Status, s.Reason)
		}
		if s.Duration(start.Add(time.Hour)) != time.Minute {
			t.Errorf("expected duration to stop at finish, got %v", s.Duration(start.Add(time.Hour)))
		}
	})

	t.Run("non-terminal status is rejected", func(t *testing.T) {
		t.Parallel()

		s := NewSessionState("id-2", "x", start)
		if s.Finish(SessionRunning, "", start) {
			t.Error("expected running to be rejected")
		}
		if got := s.Duration(start.Add(5 * time.Second)); got != 5*time.Second {
			t.Errorf("expected running duration 5s, got %v", got)
		}
	})
}

func TestSessionResultCompleted(t *testing.T) {
	t.Parallel()

	r := &SessionResult{State: SessionState{Status: SessionCompleted}}
	if !r.Completed() {
		t.Error("expected completed")
	}
	r.State.Status = SessionAborted
	if r.Completed() {
		t.Error("expected aborted not to be completed")
	}
}

func TestTimeBucket(t *testing.T) {
	t.Parallel()

	if TimeBucket("").String() != "unknown" {
		t.Error("expected empty bucket to read as unknown")
	}
	seen := make(map[string]bool)
	for _, b := range []TimeBucket{TimeBucketTodayRange, TimeBucketWithinWeek, TimeBucketWithinMonth, TimeBucketOlder, TimeBucketUnknown} {
		label := b.Label()
		if label == "" || seen[label] {
			t.Errorf("expected a distinct label for %s, got %q", b, label)
		}
		seen[label] = true
	}
}

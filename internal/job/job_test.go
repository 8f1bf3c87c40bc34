package job

import (
	"strings"
	"testing"
	"time"
)

func TestNewJobIsPendingAndTimestamped(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j, err := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if j.State != StatePending {
		t.Fatalf("expected PENDING, got %s", j.State)
	}
	if j.CreatedAt != now || j.UpdatedAt != now {
		t.Fatalf("expected timestamps to match now")
	}
	if len(j.ID) < 40 || len(j.ID) > 64 {
		t.Fatalf("expected id length in [40,64], got %d", len(j.ID))
	}
}

func TestTwoJobsGetDistinctIDs(t *testing.T) {
	now := time.Now()
	a, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	b, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids from random salt, got same: %s", a.ID)
	}
}

func TestValidTransitionSequence(t *testing.T) {
	now := time.Now()
	j, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)

	seq := []State{StateDownloading, StateEncoding, StateUploading, StateFinished}
	for _, s := range seq {
		now = now.Add(time.Second)
		if err := j.Transition(s, "", now); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if j.State != StateFinished {
		t.Fatalf("expected FINISHED, got %s", j.State)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	now := time.Now()
	j, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	if err := j.Transition(StateUploading, "", now); err == nil {
		t.Fatalf("expected error skipping DOWNLOADING/ENCODING")
	}
}

func TestTerminalJobNeverTransitionsAgain(t *testing.T) {
	now := time.Now()
	j, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	_ = j.Transition(StateDownloading, "", now)
	_ = j.Transition(StateError, "boom", now)

	if err := j.Transition(StateDownloading, "", now); err == nil {
		t.Fatalf("expected terminal job to reject further transitions")
	}
}

func TestAbandonIsIdempotentPerJob(t *testing.T) {
	now := time.Now()
	j, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	_ = j.Transition(StateDownloading, "", now)

	first := j.Abandon("stale", now.Add(time.Hour))
	second := j.Abandon("stale again", now.Add(2*time.Hour))

	if !first {
		t.Fatalf("expected first Abandon to take effect")
	}
	if second {
		t.Fatalf("expected second Abandon on an already-terminal job to no-op")
	}
	if j.StateDetail != "stale" {
		t.Fatalf("expected state detail to reflect only the first abandon, got %q", j.StateDetail)
	}
}

func TestUpdatedAtNeverDecreases(t *testing.T) {
	now := time.Now()
	j, _ := New("mem://in/a", "mem://out/a", "", Options{Encoder: "noop"}, now)
	earlier := now.Add(-time.Hour)
	_ = j.Transition(StateDownloading, "", earlier)
	if j.UpdatedAt.Before(now) {
		t.Fatalf("expected UpdatedAt to never move backward, got %v before %v", j.UpdatedAt, now)
	}
}

func TestCapStateDetailKeepsTail(t *testing.T) {
	long := strings.Repeat("x", 2000) + "bad opts"
	capped := CapStateDetail(long)
	if len(capped) != maxStateDetailLen {
		t.Fatalf("expected length %d, got %d", maxStateDetailLen, len(capped))
	}
	if !strings.HasSuffix(capped, "bad opts") {
		t.Fatalf("expected tail to be preserved, got suffix %q", capped[len(capped)-20:])
	}
}

func TestCapStateDetailShortStringUnchanged(t *testing.T) {
	if CapStateDetail("short") != "short" {
		t.Fatalf("expected short strings untouched")
	}
}

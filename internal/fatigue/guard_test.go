package fatigue

import (
	"context"
	"testing"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store/memory"
)

func freshShift(now time.Time) *model.ShiftFatigueState {
	return &model.ShiftFatigueState{ID: "sh-1", WorkerID: "w-1", StartTime: now.Add(-2 * time.Hour)}
}

func TestCheck_LimitLadder(t *testing.T) {
	g := New(memory.New(), Limits{})
	now := time.Now().UTC()

	t.Run("fresh shift allowed", func(t *testing.T) {
		if got := g.check(freshShift(now), now); got != "" {
			t.Errorf("check = %q, want allowed", got)
		}
	})

	t.Run("max entries", func(t *testing.T) {
		s := freshShift(now)
		s.EntryCount = 5
		if got := g.check(s, now); got != model.DenyMaxEntries {
			t.Errorf("check = %q, want %q", got, model.DenyMaxEntries)
		}
	})

	t.Run("max underground time", func(t *testing.T) {
		s := freshShift(now)
		s.TotalUndergroundMinutes = 480
		if got := g.check(s, now); got != model.DenyMaxUndergroundTime {
			t.Errorf("check = %q, want %q", got, model.DenyMaxUndergroundTime)
		}
	})

	t.Run("rest required after recent exit", func(t *testing.T) {
		s := freshShift(now)
		exit := now.Add(-10 * time.Minute)
		s.LastExitTime = &exit
		if got := g.check(s, now); got != model.DenyRestRequired {
			t.Errorf("check = %q, want %q", got, model.DenyRestRequired)
		}
	})

	t.Run("rested long enough", func(t *testing.T) {
		s := freshShift(now)
		exit := now.Add(-31 * time.Minute)
		s.LastExitTime = &exit
		if got := g.check(s, now); got != "" {
			t.Errorf("check = %q, want allowed", got)
		}
	})

	t.Run("shift exceeded", func(t *testing.T) {
		s := freshShift(now)
		s.StartTime = now.Add(-13 * time.Hour)
		if got := g.check(s, now); got != model.DenyShiftExceeded {
			t.Errorf("check = %q, want %q", got, model.DenyShiftExceeded)
		}
	})

	// Entry count outranks the rest of the ladder when several limits are
	// violated at once.
	t.Run("max entries wins over rest", func(t *testing.T) {
		s := freshShift(now)
		s.EntryCount = 5
		exit := now.Add(-5 * time.Minute)
		s.LastExitTime = &exit
		if got := g.check(s, now); got != model.DenyMaxEntries {
			t.Errorf("check = %q, want %q", got, model.DenyMaxEntries)
		}
	})
}

func TestCanWorkerEnter_NoShiftAllowed(t *testing.T) {
	g := New(memory.New(), Limits{})
	reason, err := g.CanWorkerEnter(context.Background(), "w-unknown")
	if err != nil {
		t.Fatalf("CanWorkerEnter: %v", err)
	}
	if reason != "" {
		t.Errorf("reason = %q, want allowed", reason)
	}
}

func TestCanWorkerEnter_UsesActiveShift(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	g := New(st, Limits{})

	shift := freshShift(time.Now().UTC())
	shift.EntryCount = 5
	if err := st.CreateShift(ctx, shift); err != nil {
		t.Fatal(err)
	}

	reason, err := g.CanWorkerEnter(ctx, "w-1")
	if err != nil {
		t.Fatalf("CanWorkerEnter: %v", err)
	}
	if reason != model.DenyMaxEntries {
		t.Errorf("reason = %q, want %q", reason, model.DenyMaxEntries)
	}
}

func TestFatigueScore(t *testing.T) {
	g := New(memory.New(), Limits{})
	now := time.Now().UTC()

	s := freshShift(now)
	s.StartTime = now
	if got := g.FatigueScore(s, now); got != 0 {
		t.Errorf("empty shift score = %d, want 0", got)
	}

	// 2/5 entries (12) + 120/480 minutes (10) + 6/12 hours (15) = 37.
	s = &model.ShiftFatigueState{
		StartTime:               now.Add(-6 * time.Hour),
		EntryCount:              2,
		TotalUndergroundMinutes: 120,
	}
	if got := g.FatigueScore(s, now); got != 37 {
		t.Errorf("score = %d, want 37", got)
	}

	// Saturates at 100.
	s = &model.ShiftFatigueState{
		StartTime:               now.Add(-20 * time.Hour),
		EntryCount:              10,
		TotalUndergroundMinutes: 900,
	}
	if got := g.FatigueScore(s, now); got != 100 {
		t.Errorf("score = %d, want 100", got)
	}
}

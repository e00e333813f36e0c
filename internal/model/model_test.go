package model

import (
	"testing"
	"time"
)

func TestLevelForScore(t *testing.T) {
	for _, tc := range []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskSafe},
		{29, RiskSafe},
		{30, RiskCaution},
		{59, RiskCaution},
		{60, RiskProhibited},
		{100, RiskProhibited},
	} {
		if got := LevelForScore(tc.score); got != tc.want {
			t.Errorf("LevelForScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestEntryStateLive(t *testing.T) {
	live := []EntryState{
		StateEntered, StateActive, StateOverstayAlert,
		StateSOSTriggered, StateGasAlert, StateCheckinMissed,
	}
	for _, s := range live {
		if !s.Live() {
			t.Errorf("%s.Live() = false, want true", s)
		}
	}
	for _, s := range []EntryState{StateIdle, StateScanned, StateChecklistPending, StateExited} {
		if s.Live() {
			t.Errorf("%s.Live() = true, want false", s)
		}
	}
}

func TestOverstayed(t *testing.T) {
	now := time.Now().UTC()
	s := &EntrySession{EntryTime: now.Add(-50 * time.Minute), AllowedDurationMinutes: 45}

	over, by := s.Overstayed(now)
	if !over || by != 5 {
		t.Errorf("Overstayed = %v, %d; want true, 5", over, by)
	}

	// Exactly at the allowance is not yet an overstay.
	s.EntryTime = now.Add(-45 * time.Minute)
	if over, _ := s.Overstayed(now); over {
		t.Error("session exactly at its allowance should not be overstayed")
	}
}

func TestCheckInPromptMissed(t *testing.T) {
	resp := time.Now().UTC()

	unanswered := &CheckInPrompt{}
	if unanswered.Answered() || !unanswered.Missed() {
		t.Error("unanswered prompt must count as a miss")
	}

	late := &CheckInPrompt{RespondedAt: &resp, WasOnTime: false}
	if !late.Answered() || !late.Missed() {
		t.Error("late response must still count as a miss")
	}

	onTime := &CheckInPrompt{RespondedAt: &resp, WasOnTime: true}
	if onTime.Missed() {
		t.Error("on-time response is not a miss")
	}
}

func TestCheckInPromptPending(t *testing.T) {
	now := time.Now().UTC()
	grace := 5 * time.Minute

	fresh := &CheckInPrompt{PromptedAt: now.Add(-2 * time.Minute)}
	if !fresh.Pending(now, grace) {
		t.Error("unanswered prompt inside grace must be pending")
	}

	expired := &CheckInPrompt{PromptedAt: now.Add(-10 * time.Minute)}
	if expired.Pending(now, grace) {
		t.Error("unanswered prompt past grace is a miss, not pending")
	}

	resp := now
	answered := &CheckInPrompt{PromptedAt: now.Add(-2 * time.Minute), RespondedAt: &resp}
	if answered.Pending(now, grace) {
		t.Error("answered prompt is never pending")
	}
}

func TestEnumValidity(t *testing.T) {
	if !TriggerManual.IsValid() || SOSTriggerMethod("pager").IsValid() {
		t.Error("trigger method validity wrong")
	}
	if !MethodVoice.IsValid() || CheckInMethod("fax").IsValid() {
		t.Error("check-in method validity wrong")
	}
	if !StateGasAlert.IsValid() || EntryState("LOST").IsValid() {
		t.Error("entry state validity wrong")
	}
	if !StatusExited.IsValid() || SessionStatus("GONE").IsValid() {
		t.Error("session status validity wrong")
	}
}

func TestDeniedErrorMessage(t *testing.T) {
	if got := Denied(DenyGasUnsafe, "").Error(); got != "entry denied: GAS_UNSAFE" {
		t.Errorf("Error() = %q", got)
	}
	if got := Denied(DenyManholeFull, "2 of 2 underground").Error(); got != "entry denied: MANHOLE_FULL (2 of 2 underground)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestGasReadingAge(t *testing.T) {
	now := time.Now().UTC()
	r := &GasReading{ReadAt: now.Add(-7 * time.Minute)}
	if got := r.Age(now); got != 7*time.Minute {
		t.Errorf("Age = %v, want 7m", got)
	}
}

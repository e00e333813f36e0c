package fsm

import (
	"errors"
	"testing"

	"github.com/fieldward/manholeguard/internal/model"
)

// definedPairs is the full transition table, restated independently so the
// test catches accidental edits to either copy.
var definedPairs = []struct {
	from  model.EntryState
	event model.EntryEvent
	to    model.EntryState
}{
	{model.StateIdle, model.EventScanQR, model.StateScanned},

	{model.StateScanned, model.EventCompleteChecklist, model.StateChecklistPending},
	{model.StateScanned, model.EventReset, model.StateIdle},

	{model.StateChecklistPending, model.EventConfirmEntry, model.StateEntered},
	{model.StateChecklistPending, model.EventReset, model.StateIdle},

	{model.StateEntered, model.EventActivate, model.StateActive},
	{model.StateEntered, model.EventConfirmExit, model.StateExited},
	{model.StateEntered, model.EventReset, model.StateIdle},

	{model.StateActive, model.EventConfirmExit, model.StateExited},
	{model.StateActive, model.EventTriggerAlert, model.StateOverstayAlert},
	{model.StateActive, model.EventGasDanger, model.StateGasAlert},
	{model.StateActive, model.EventMissCheckin, model.StateCheckinMissed},
	{model.StateActive, model.EventTriggerSOS, model.StateSOSTriggered},

	{model.StateExited, model.EventReset, model.StateIdle},

	{model.StateOverstayAlert, model.EventConfirmExit, model.StateExited},
	{model.StateOverstayAlert, model.EventTriggerSOS, model.StateSOSTriggered},

	{model.StateSOSTriggered, model.EventCancelSOS, model.StateActive},
	{model.StateSOSTriggered, model.EventConfirmExit, model.StateExited},

	{model.StateGasAlert, model.EventConfirmExit, model.StateExited},
	{model.StateGasAlert, model.EventResolveGas, model.StateActive},
	{model.StateGasAlert, model.EventTriggerSOS, model.StateSOSTriggered},

	{model.StateCheckinMissed, model.EventResolveCheckin, model.StateActive},
	{model.StateCheckinMissed, model.EventTriggerSOS, model.StateSOSTriggered},
	{model.StateCheckinMissed, model.EventConfirmExit, model.StateExited},
}

var allStates = []model.EntryState{
	model.StateIdle, model.StateScanned, model.StateChecklistPending,
	model.StateEntered, model.StateActive, model.StateExited,
	model.StateOverstayAlert, model.StateSOSTriggered, model.StateGasAlert,
	model.StateCheckinMissed,
}

var allEvents = []model.EntryEvent{
	model.EventScanQR, model.EventCompleteChecklist, model.EventConfirmEntry,
	model.EventActivate, model.EventConfirmExit, model.EventTriggerAlert,
	model.EventGasDanger, model.EventMissCheckin, model.EventTriggerSOS,
	model.EventCancelSOS, model.EventResolveGas, model.EventResolveCheckin,
	model.EventReset,
}

func TestTransition_AllDefinedPairs(t *testing.T) {
	for _, p := range definedPairs {
		m := Resume(p.from)
		if !m.CanTransition(p.event) {
			t.Errorf("CanTransition(%s, %s) = false, want true", p.from, p.event)
		}
		got, err := m.Transition(p.event)
		if err != nil {
			t.Errorf("Transition(%s, %s) error: %v", p.from, p.event, err)
			continue
		}
		if got != p.to {
			t.Errorf("Transition(%s, %s) = %s, want %s", p.from, p.event, got, p.to)
		}
		if m.State() != p.to {
			t.Errorf("machine state after %s/%s = %s, want %s", p.from, p.event, m.State(), p.to)
		}
	}
}

func TestTransition_AllUndefinedPairsFail(t *testing.T) {
	defined := make(map[model.EntryState]map[model.EntryEvent]bool)
	for _, p := range definedPairs {
		if defined[p.from] == nil {
			defined[p.from] = make(map[model.EntryEvent]bool)
		}
		defined[p.from][p.event] = true
	}

	for _, state := range allStates {
		for _, event := range allEvents {
			if defined[state][event] {
				continue
			}
			m := Resume(state)
			if m.CanTransition(event) {
				t.Errorf("CanTransition(%s, %s) = true, want false", state, event)
			}
			got, err := m.Transition(event)
			if err == nil {
				t.Errorf("Transition(%s, %s) succeeded, want StateError", state, event)
				continue
			}
			var se *model.StateError
			if !errors.As(err, &se) {
				t.Errorf("Transition(%s, %s) error type %T, want *model.StateError", state, event, err)
				continue
			}
			if se.State != state || se.Event != event {
				t.Errorf("StateError identifies (%s, %s), want (%s, %s)", se.State, se.Event, state, event)
			}
			if got != state {
				t.Errorf("failed transition moved state to %s, want unchanged %s", got, state)
			}
		}
	}
}

func TestDefinedPairCount(t *testing.T) {
	if len(definedPairs) != 24 {
		t.Errorf("transition table has %d pairs, want 24", len(definedPairs))
	}
}

func TestNew_StartsIdle(t *testing.T) {
	if got := New().State(); got != model.StateIdle {
		t.Errorf("New() state = %s, want IDLE", got)
	}
}

func TestResume_ArbitraryState(t *testing.T) {
	m := Resume(model.StateGasAlert)
	if m.State() != model.StateGasAlert {
		t.Fatalf("Resume state = %s, want GAS_ALERT", m.State())
	}
	got, err := m.Transition(model.EventResolveGas)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got != model.StateActive {
		t.Errorf("resumed GAS_ALERT + RESOLVE_GAS = %s, want ACTIVE", got)
	}
}

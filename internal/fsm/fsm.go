// Package fsm implements the entry-session state machine.
//
// The transition table is the single source of truth for session
// lifecycle: any (state, event) pair absent from the table is rejected
// with a model.StateError naming the pair.
package fsm

import (
	"time"

	"github.com/fieldward/manholeguard/internal/model"
)

// transitions maps current state -> event -> next state. Exhaustive; no
// other pair is valid.
var transitions = map[model.EntryState]map[model.EntryEvent]model.EntryState{
	model.StateIdle: {
		model.EventScanQR: model.StateScanned,
	},
	model.StateScanned: {
		model.EventCompleteChecklist: model.StateChecklistPending,
		model.EventReset:             model.StateIdle,
	},
	model.StateChecklistPending: {
		model.EventConfirmEntry: model.StateEntered,
		model.EventReset:        model.StateIdle,
	},
	model.StateEntered: {
		model.EventActivate:    model.StateActive,
		model.EventConfirmExit: model.StateExited,
		model.EventReset:       model.StateIdle,
	},
	model.StateActive: {
		model.EventConfirmExit:  model.StateExited,
		model.EventTriggerAlert: model.StateOverstayAlert,
		model.EventGasDanger:    model.StateGasAlert,
		model.EventMissCheckin:  model.StateCheckinMissed,
		model.EventTriggerSOS:   model.StateSOSTriggered,
	},
	model.StateExited: {
		model.EventReset: model.StateIdle,
	},
	model.StateOverstayAlert: {
		model.EventConfirmExit: model.StateExited,
		model.EventTriggerSOS:  model.StateSOSTriggered,
	},
	model.StateSOSTriggered: {
		model.EventCancelSOS:   model.StateActive,
		model.EventConfirmExit: model.StateExited,
	},
	model.StateGasAlert: {
		model.EventConfirmExit: model.StateExited,
		model.EventResolveGas:  model.StateActive,
		model.EventTriggerSOS:  model.StateSOSTriggered,
	},
	model.StateCheckinMissed: {
		model.EventResolveCheckin: model.StateActive,
		model.EventTriggerSOS:     model.StateSOSTriggered,
		model.EventConfirmExit:    model.StateExited,
	},
}

// Machine holds the lifecycle state of a single entry session.
type Machine struct {
	state model.EntryState
}

// New returns a machine in the default IDLE state.
func New() *Machine {
	return &Machine{state: model.StateIdle}
}

// Resume returns a machine positioned at an explicit state, for picking up
// a persisted session.
func Resume(state model.EntryState) *Machine {
	return &Machine{state: state}
}

// State returns the current state.
func (m *Machine) State() model.EntryState {
	return m.state
}

// CanTransition reports whether the current state has a mapping for event.
func (m *Machine) CanTransition(event model.EntryEvent) bool {
	_, ok := transitions[m.state][event]
	return ok
}

// Transition applies event, moving to the mapped state and returning it.
// An unmapped (state, event) pair fails with a model.StateError and leaves
// the machine unchanged.
func (m *Machine) Transition(event model.EntryEvent) (model.EntryState, error) {
	next, ok := transitions[m.state][event]
	if !ok {
		return m.state, &model.StateError{State: m.state, Event: event}
	}
	m.state = next
	return next, nil
}

// Next returns the state that event would map to from state, without a
// machine. The second return mirrors map lookup.
func Next(state model.EntryState, event model.EntryEvent) (model.EntryState, bool) {
	next, ok := transitions[state][event]
	return next, ok
}

// Apply drives a session's state machine with event and updates the
// session's state and coarse status in place. ENTERED sessions are stepped
// through ACTIVATE first when the event only has an arc out of ACTIVE
// (the hazard events fired by the watchdog).
func Apply(session *model.EntrySession, event model.EntryEvent) error {
	m := Resume(session.State)
	if !m.CanTransition(event) && session.State == model.StateEntered {
		if _, ok := Next(model.StateActive, event); ok {
			if _, err := m.Transition(model.EventActivate); err != nil {
				return err
			}
		}
	}
	next, err := m.Transition(event)
	if err != nil {
		return err
	}
	session.State = next
	switch next {
	case model.StateOverstayAlert:
		session.Status = model.StatusOverstayAlert
	case model.StateExited:
		session.Status = model.StatusExited
	}
	session.UpdatedAt = time.Now().UTC()
	return nil
}

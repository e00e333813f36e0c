package model

import "time"

// EntryState is the lifecycle state of an entry session.
type EntryState string

const (
	StateIdle             EntryState = "IDLE"
	StateScanned          EntryState = "SCANNED"
	StateChecklistPending EntryState = "CHECKLIST_PENDING"
	StateEntered          EntryState = "ENTERED"
	StateActive           EntryState = "ACTIVE"
	StateExited           EntryState = "EXITED"
	StateOverstayAlert    EntryState = "OVERSTAY_ALERT"
	StateSOSTriggered     EntryState = "SOS_TRIGGERED"
	StateGasAlert         EntryState = "GAS_ALERT"
	StateCheckinMissed    EntryState = "CHECKIN_MISSED"
)

// String returns the string representation of the state.
func (s EntryState) String() string {
	return string(s)
}

// IsValid checks whether the state is a known value.
func (s EntryState) IsValid() bool {
	switch s {
	case StateIdle, StateScanned, StateChecklistPending, StateEntered,
		StateActive, StateExited, StateOverstayAlert, StateSOSTriggered,
		StateGasAlert, StateCheckinMissed:
		return true
	}
	return false
}

// Live reports whether a session in this state still has a worker underground.
func (s EntryState) Live() bool {
	switch s {
	case StateEntered, StateActive, StateOverstayAlert, StateSOSTriggered,
		StateGasAlert, StateCheckinMissed:
		return true
	}
	return false
}

// EntryEvent drives transitions between entry states.
type EntryEvent string

const (
	EventScanQR            EntryEvent = "SCAN_QR"
	EventCompleteChecklist EntryEvent = "COMPLETE_CHECKLIST"
	EventConfirmEntry      EntryEvent = "CONFIRM_ENTRY"
	EventActivate          EntryEvent = "ACTIVATE"
	EventConfirmExit       EntryEvent = "CONFIRM_EXIT"
	EventTriggerAlert      EntryEvent = "TRIGGER_ALERT"
	EventGasDanger         EntryEvent = "GAS_DANGER"
	EventMissCheckin       EntryEvent = "MISS_CHECKIN"
	EventTriggerSOS        EntryEvent = "TRIGGER_SOS"
	EventCancelSOS         EntryEvent = "CANCEL_SOS"
	EventResolveGas        EntryEvent = "RESOLVE_GAS"
	EventResolveCheckin    EntryEvent = "RESOLVE_CHECKIN"
	EventReset             EntryEvent = "RESET"
)

// String returns the string representation of the event.
func (e EntryEvent) String() string {
	return string(e)
}

// SessionStatus is the coarse status of an entry session.
type SessionStatus string

const (
	StatusActive        SessionStatus = "ACTIVE"
	StatusExited        SessionStatus = "EXITED"
	StatusOverstayAlert SessionStatus = "OVERSTAY_ALERT"
)

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusExited, StatusOverstayAlert:
		return true
	}
	return false
}

// EntrySession is one worker's timed presence inside a confined space.
//
// Invariant: Status == ACTIVE implies ExitTime == nil. Once EXITED the
// record is immutable. Sessions are never deleted.
type EntrySession struct {
	ID                     string        `json:"id"`
	WorkerID               string        `json:"worker_id"`
	SiteID                 string        `json:"site_id"`
	EntryTime              time.Time     `json:"entry_time"`
	ExitTime               *time.Time    `json:"exit_time,omitempty"`
	AllowedDurationMinutes int           `json:"allowed_duration_minutes"`
	Status                 SessionStatus `json:"status"`
	State                  EntryState    `json:"state"`
	GeoVerified            bool          `json:"geo_verified"`
	ChecklistCompleted     bool          `json:"checklist_completed"`
	ShiftID                string        `json:"shift_id,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// Overstayed reports whether the session has exceeded its allowed duration
// as of now, and by how many minutes.
func (s *EntrySession) Overstayed(now time.Time) (bool, int) {
	elapsed := int(now.Sub(s.EntryTime).Minutes())
	if elapsed <= s.AllowedDurationMinutes {
		return false, 0
	}
	return true, elapsed - s.AllowedDurationMinutes
}

// SessionFilter selects entry sessions in store list queries.
type SessionFilter struct {
	States   []EntryState
	Statuses []SessionStatus
	SiteID   string
	WorkerID string
	Limit    int
}

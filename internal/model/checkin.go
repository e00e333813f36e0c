package model

import "time"

// CheckInMethod records how a worker answered a liveness prompt.
type CheckInMethod string

const (
	MethodApp    CheckInMethod = "app"
	MethodSMS    CheckInMethod = "sms"
	MethodVoice  CheckInMethod = "voice"
	MethodManual CheckInMethod = "manual" // supervisor confirmed on the worker's behalf
)

// String returns the string representation of the method.
func (m CheckInMethod) String() string {
	return string(m)
}

// IsValid checks whether the method is a known value.
func (m CheckInMethod) IsValid() bool {
	switch m {
	case MethodApp, MethodSMS, MethodVoice, MethodManual:
		return true
	}
	return false
}

// CheckInPrompt is a single liveness prompt issued to a worker underground.
// Immutable once responded.
type CheckInPrompt struct {
	ID             string        `json:"id"`
	EntrySessionID string        `json:"entry_session_id"`
	WorkerID       string        `json:"worker_id"`
	PromptedAt     time.Time     `json:"prompted_at"`
	RespondedAt    *time.Time    `json:"responded_at,omitempty"`
	WasOnTime      bool          `json:"was_on_time"`
	Method         CheckInMethod `json:"method,omitempty"`
}

// Answered reports whether the prompt has been responded to at all.
func (p *CheckInPrompt) Answered() bool {
	return p.RespondedAt != nil
}

// Missed reports whether the prompt counts as a miss: unresponded or late.
func (p *CheckInPrompt) Missed() bool {
	return p.RespondedAt == nil || !p.WasOnTime
}

// Pending reports whether the prompt is unanswered but still inside its
// grace window, so the worker can yet respond on time. An unanswered
// prompt past the window is a miss, not pending.
func (p *CheckInPrompt) Pending(now time.Time, grace time.Duration) bool {
	return p.RespondedAt == nil && now.Sub(p.PromptedAt) <= grace
}

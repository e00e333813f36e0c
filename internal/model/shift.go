package model

import "time"

// ShiftFatigueState accumulates one worker's load across a shift. Mutated
// incrementally as entries start and end.
type ShiftFatigueState struct {
	ID                      string     `json:"id"`
	WorkerID                string     `json:"worker_id"`
	StartTime               time.Time  `json:"start_time"`
	EndTime                 *time.Time `json:"end_time,omitempty"`
	EntryCount              int        `json:"entry_count"`
	TotalUndergroundMinutes int        `json:"total_underground_minutes"`
	BreaksTaken             int        `json:"breaks_taken"`
	FatigueScore            int        `json:"fatigue_score"`
	LastExitTime            *time.Time `json:"last_exit_time,omitempty"`
}

// Active reports whether the shift is still open.
func (s *ShiftFatigueState) Active() bool {
	return s.EndTime == nil
}

// HoursSinceStart returns the shift age in hours as of now.
func (s *ShiftFatigueState) HoursSinceStart(now time.Time) float64 {
	return now.Sub(s.StartTime).Hours()
}

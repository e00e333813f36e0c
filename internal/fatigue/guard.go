// Package fatigue enforces per-shift workload limits.
package fatigue

import (
	"context"
	"math"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// Limits bounds a single shift's workload.
type Limits struct {
	MaxEntries            int     `toml:"max_entries"`
	MaxUndergroundMinutes int     `toml:"max_underground_minutes"`
	MinRestMinutes        int     `toml:"min_rest_minutes"`
	MaxShiftHours         float64 `toml:"max_shift_hours"`
}

// DefaultLimits returns the stock shift limits.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:            5,
		MaxUndergroundMinutes: 480,
		MinRestMinutes:        30,
		MaxShiftHours:         12,
	}
}

// Guard gates entries on accumulated shift fatigue.
type Guard struct {
	limits Limits
	store  store.Store
}

// New returns a guard with the given limits. Zero-value fields fall back
// to defaults.
func New(s store.Store, limits Limits) *Guard {
	def := DefaultLimits()
	if limits.MaxEntries == 0 {
		limits.MaxEntries = def.MaxEntries
	}
	if limits.MaxUndergroundMinutes == 0 {
		limits.MaxUndergroundMinutes = def.MaxUndergroundMinutes
	}
	if limits.MinRestMinutes == 0 {
		limits.MinRestMinutes = def.MinRestMinutes
	}
	if limits.MaxShiftHours == 0 {
		limits.MaxShiftHours = def.MaxShiftHours
	}
	return &Guard{limits: limits, store: s}
}

// Limits returns the effective limits.
func (g *Guard) Limits() Limits {
	return g.limits
}

// CanWorkerEnter checks the worker's active shift against the limits, in
// fixed order, returning the first violated limit as a DeniedError reason.
// A worker with no active shift is always allowed.
func (g *Guard) CanWorkerEnter(ctx context.Context, workerID string) (model.DenialReason, error) {
	shift, err := g.store.GetActiveShift(ctx, workerID)
	if err != nil {
		return "", err
	}
	if shift == nil {
		return "", nil
	}
	return g.check(shift, time.Now()), nil
}

// check evaluates the limit ladder against a shift at the given time.
// Returns "" when the worker may enter.
func (g *Guard) check(shift *model.ShiftFatigueState, now time.Time) model.DenialReason {
	if shift.EntryCount >= g.limits.MaxEntries {
		return model.DenyMaxEntries
	}
	if shift.TotalUndergroundMinutes >= g.limits.MaxUndergroundMinutes {
		return model.DenyMaxUndergroundTime
	}
	if shift.LastExitTime != nil {
		rest := now.Sub(*shift.LastExitTime).Minutes()
		if rest < float64(g.limits.MinRestMinutes) {
			return model.DenyRestRequired
		}
	}
	if shift.HoursSinceStart(now) >= g.limits.MaxShiftHours {
		return model.DenyShiftExceeded
	}
	return ""
}

// FatigueScore summarizes a shift's accumulated load on a 0-100 scale:
// round(min(100, 30*entries/max + 40*minutes/max + 30*hours/max)).
func (g *Guard) FatigueScore(shift *model.ShiftFatigueState, now time.Time) int {
	score := 30*float64(shift.EntryCount)/float64(g.limits.MaxEntries) +
		40*float64(shift.TotalUndergroundMinutes)/float64(g.limits.MaxUndergroundMinutes) +
		30*shift.HoursSinceStart(now)/g.limits.MaxShiftHours
	return int(math.Round(math.Min(100, score)))
}

// Package checkin implements the dead man's switch: periodic liveness
// prompts, responses, and consecutive-miss counting.
package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldward/manholeguard/internal/fsm"
	"github.com/fieldward/manholeguard/internal/idgen"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// Config tunes the dead man's switch.
type Config struct {
	// GracePeriod is how long after a prompt a response still counts as
	// on time.
	GracePeriod time.Duration `toml:"-"`

	// Interval is how often a live session should be prompted.
	Interval time.Duration `toml:"-"`

	// AlertThreshold is the consecutive-miss count that moves a session
	// to CHECKIN_MISSED.
	AlertThreshold int `toml:"alert_threshold"`

	// SOSThreshold is the consecutive-miss count that triggers an SOS.
	SOSThreshold int `toml:"sos_threshold"`
}

// DefaultConfig returns the stock dead-man's-switch settings.
func DefaultConfig() Config {
	return Config{
		GracePeriod:    5 * time.Minute,
		Interval:       15 * time.Minute,
		AlertThreshold: 2,
		SOSThreshold:   3,
	}
}

// Outcome is what HandleMissedCheckIn decided to do.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeAlert
	OutcomeSOS
)

// Ledger issues and records liveness prompts for underground workers.
type Ledger struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// New returns a ledger over the given store. Zero-value config fields fall
// back to defaults.
func New(s store.Store, cfg Config, logger *slog.Logger) *Ledger {
	def := DefaultConfig()
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}
	if cfg.AlertThreshold == 0 {
		cfg.AlertThreshold = def.AlertThreshold
	}
	if cfg.SOSThreshold == 0 {
		cfg.SOSThreshold = def.SOSThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, cfg: cfg, logger: logger}
}

// Config returns the effective settings.
func (l *Ledger) Config() Config {
	return l.cfg
}

// PromptCheckIn issues a new liveness prompt for the entry session.
func (l *Ledger) PromptCheckIn(ctx context.Context, entrySessionID, workerID string) (*model.CheckInPrompt, error) {
	id, err := idgen.GenerateWithPrefix(idgen.PrefixCheckIn)
	if err != nil {
		return nil, fmt.Errorf("generating prompt id: %w", err)
	}
	prompt := &model.CheckInPrompt{
		ID:             id,
		EntrySessionID: entrySessionID,
		WorkerID:       workerID,
		PromptedAt:     time.Now().UTC(),
	}
	if err := l.store.CreateCheckInPrompt(ctx, prompt); err != nil {
		return nil, fmt.Errorf("creating check-in prompt: %w", err)
	}
	return prompt, nil
}

// RespondToCheckIn records a worker's response to a prompt. The response
// is on time when it lands within the grace period. Fails with a
// NotFoundError for an unknown prompt id; a prompt is immutable once
// responded.
func (l *Ledger) RespondToCheckIn(ctx context.Context, promptID string, method model.CheckInMethod) (*model.CheckInPrompt, error) {
	if !method.IsValid() {
		return nil, model.Validationf("invalid check-in method %q", method)
	}
	prompt, err := l.store.GetCheckInPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if prompt == nil {
		return nil, model.NotFound("check-in prompt", promptID)
	}
	if prompt.Answered() {
		return nil, &model.StateError{Msg: "check-in prompt " + promptID + " already responded"}
	}

	now := time.Now().UTC()
	prompt.RespondedAt = &now
	prompt.WasOnTime = now.Sub(prompt.PromptedAt) <= l.cfg.GracePeriod
	prompt.Method = method

	if err := l.store.UpdateCheckInPrompt(ctx, prompt); err != nil {
		return nil, fmt.Errorf("updating check-in prompt: %w", err)
	}
	return prompt, nil
}

// ConsecutiveMissedCount counts the contiguous run of missed
// (unresponded-or-late) prompts for an entry session, newest first. A
// single on-time response ends the run. A prompt still inside its grace
// window is neither a miss nor a response and is skipped.
func (l *Ledger) ConsecutiveMissedCount(ctx context.Context, entrySessionID string) (int, error) {
	prompts, err := l.store.ListCheckInPrompts(ctx, entrySessionID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	count := 0
	for _, p := range prompts {
		if p.Pending(now, l.cfg.GracePeriod) {
			continue
		}
		if !p.Missed() {
			break
		}
		count++
	}
	return count, nil
}

// HandleMissedCheckIn recomputes the miss count for a session and forces
// the session's state accordingly: at or above the SOS threshold the
// session moves to SOS_TRIGGERED, at or above the alert threshold to
// CHECKIN_MISSED, otherwise nothing happens. Returns the decision and the
// count so the caller can dispatch the matching escalation.
func (l *Ledger) HandleMissedCheckIn(ctx context.Context, entrySessionID string) (Outcome, int, error) {
	missed, err := l.ConsecutiveMissedCount(ctx, entrySessionID)
	if err != nil {
		return OutcomeNone, 0, err
	}

	session, err := l.store.GetEntrySession(ctx, entrySessionID)
	if err != nil {
		return OutcomeNone, missed, err
	}
	if session == nil {
		return OutcomeNone, missed, model.NotFound("entry session", entrySessionID)
	}

	switch {
	case missed >= l.cfg.SOSThreshold:
		if session.State == model.StateSOSTriggered {
			return OutcomeNone, missed, nil
		}
		if err := l.applyEvent(ctx, session, model.EventTriggerSOS); err != nil {
			return OutcomeNone, missed, err
		}
		return OutcomeSOS, missed, nil

	case missed >= l.cfg.AlertThreshold:
		if session.State == model.StateCheckinMissed {
			return OutcomeNone, missed, nil
		}
		if err := l.applyEvent(ctx, session, model.EventMissCheckin); err != nil {
			return OutcomeNone, missed, err
		}
		return OutcomeAlert, missed, nil
	}
	return OutcomeNone, missed, nil
}

func (l *Ledger) applyEvent(ctx context.Context, session *model.EntrySession, event model.EntryEvent) error {
	if err := fsm.Apply(session, event); err != nil {
		return err
	}
	if err := l.store.UpdateEntrySession(ctx, session); err != nil {
		return fmt.Errorf("persisting session %s after %s: %w", session.ID, event, err)
	}
	l.logger.Info("check-in ledger moved session",
		"session_id", session.ID, "event", event.String(), "state", session.State.String())
	return nil
}

// Package watchdog runs the periodic scan-and-escalate cycle over live
// entry sessions.
//
// Each tick runs four independent hazard scans: overstay, check-in due,
// missed check-in, and gas danger. A failure inside one scan is caught
// and logged without preventing the other three from running. The
// scheduler keeps no in-memory cursor of what it already handled; every
// decision is re-derived from persisted state, so a process restart
// resumes correctly.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldward/manholeguard/internal/audit"
	"github.com/fieldward/manholeguard/internal/checkin"
	"github.com/fieldward/manholeguard/internal/escalate"
	"github.com/fieldward/manholeguard/internal/fsm"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/notify"
	"github.com/fieldward/manholeguard/internal/store"
)

// Config tunes the watchdog.
type Config struct {
	// TickInterval is how often the scan cycle runs.
	TickInterval time.Duration

	// OverstayEscalateAfter is the overage at which an overstay alert is
	// additionally escalated to the second-tier audience.
	OverstayEscalateAfter time.Duration

	// GasFreshness is how recent a dangerous reading must be to alert on.
	GasFreshness time.Duration
}

// DefaultConfig returns the stock watchdog settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:          30 * time.Second,
		OverstayEscalateAfter: 30 * time.Minute,
		GasFreshness:          10 * time.Minute,
	}
}

// Scheduler drives the periodic hazard scans.
type Scheduler struct {
	store      store.Store
	checkins   *checkin.Ledger
	dispatcher *escalate.Dispatcher
	gateway    notify.Gateway
	auditLog   *audit.Ledger
	cfg        Config
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a scheduler from its collaborators. Zero-value config fields
// fall back to defaults.
func New(s store.Store, ledger *checkin.Ledger, dispatcher *escalate.Dispatcher,
	gw notify.Gateway, auditLog *audit.Ledger, cfg Config, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.OverstayEscalateAfter == 0 {
		cfg.OverstayEscalateAfter = def.OverstayEscalateAfter
	}
	if cfg.GasFreshness == 0 {
		cfg.GasFreshness = def.GasFreshness
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      s,
		checkins:   ledger,
		dispatcher: dispatcher,
		gateway:    gw,
		auditLog:   auditLog,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start begins the tick loop. It runs a first tick immediately, then on
// each interval.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current tick (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.Tick(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// scan is one hazard check run against the store each tick.
type scan struct {
	name string
	run  func(ctx context.Context) error
}

// Tick runs the four hazard scans concurrently. Each scan is
// fail-isolated: an error or panic in one is logged and counted, and the
// others still run. Exported so an external cron can drive the cycle.
func (s *Scheduler) Tick(ctx context.Context) {
	started := time.Now()

	scans := []scan{
		{"overstay", s.scanOverstays},
		{"checkin_due", s.scanCheckInsDue},
		{"checkin_missed", s.scanMissedCheckIns},
		{"gas_danger", s.scanGasDanger},
	}

	var wg sync.WaitGroup
	for _, sc := range scans {
		wg.Add(1)
		go func(sc scan) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					scanFailures.WithLabelValues(sc.name).Inc()
					s.logger.Error("watchdog scan panicked", "scan", sc.name, "panic", r)
				}
			}()
			if err := sc.run(ctx); err != nil {
				scanFailures.WithLabelValues(sc.name).Inc()
				s.logger.Error("watchdog scan failed", "scan", sc.name, "err", err)
			}
		}(sc)
	}
	wg.Wait()

	ticksTotal.Inc()
	tickDuration.Observe(time.Since(started).Seconds())
}

// liveStates are the states the overstay and check-in-due scans cover.
var liveStates = []model.EntryState{model.StateEntered, model.StateActive}

// scanOverstays flags sessions that have exceeded their allowed duration,
// and escalates to the second-tier audience once the overage itself
// crosses the configured threshold.
func (s *Scheduler) scanOverstays(ctx context.Context) error {
	sessions, err := s.store.ListEntrySessions(ctx, model.SessionFilter{States: liveStates})
	if err != nil {
		return fmt.Errorf("listing live sessions: %w", err)
	}

	now := time.Now().UTC()
	for _, session := range sessions {
		overstayed, overage := session.Overstayed(now)
		if !overstayed {
			continue
		}

		if err := s.applyAndAudit(ctx, session, model.EventTriggerAlert, "watchdog.overstay_alert"); err != nil {
			s.logger.Error("overstay transition failed", "session_id", session.ID, "err", err)
			continue
		}
		escalations.WithLabelValues("overstay").Inc()

		notify.BestEffort(ctx, s.gateway, s.logger, notify.Message{
			Channel:        notify.ChannelSupervisors,
			Title:          "Overstay alert",
			Body:           fmt.Sprintf("Worker %s is %d minutes over the allowed %d at site %s", session.WorkerID, overage, session.AllowedDurationMinutes, session.SiteID),
			Priority:       notify.PriorityNormal,
			WorkerID:       session.WorkerID,
			SiteID:         session.SiteID,
			EntrySessionID: session.ID,
		})

		if time.Duration(overage)*time.Minute >= s.cfg.OverstayEscalateAfter {
			escalations.WithLabelValues("overstay_second_tier").Inc()
			notify.BestEffort(ctx, s.gateway, s.logger, notify.Message{
				Channel:        notify.ChannelSafetyOfficers,
				Title:          "Overstay escalation",
				Body:           fmt.Sprintf("Worker %s unaccounted for %d minutes past the limit at site %s", session.WorkerID, overage, session.SiteID),
				Priority:       notify.PriorityHigh,
				WorkerID:       session.WorkerID,
				SiteID:         session.SiteID,
				EntrySessionID: session.ID,
			})
		}
	}
	return nil
}

// scanCheckInsDue issues a fresh liveness prompt when the check-in
// interval has elapsed since the last prompt (or since entry, if none).
// Only a prompt still inside its grace window holds off the next prompt;
// an expired unanswered prompt is a miss, and prompting must continue so
// a silent worker accrues misses up to the SOS threshold.
func (s *Scheduler) scanCheckInsDue(ctx context.Context) error {
	sessions, err := s.store.ListEntrySessions(ctx, model.SessionFilter{States: liveStates})
	if err != nil {
		return fmt.Errorf("listing live sessions: %w", err)
	}

	now := time.Now().UTC()
	cfg := s.checkins.Config()
	for _, session := range sessions {
		latest, err := s.store.LatestCheckInPrompt(ctx, session.ID)
		if err != nil {
			s.logger.Error("latest prompt lookup failed", "session_id", session.ID, "err", err)
			continue
		}

		ref := session.EntryTime
		if latest != nil {
			if latest.Pending(now, cfg.GracePeriod) {
				continue
			}
			ref = latest.PromptedAt
		}
		if now.Sub(ref) < cfg.Interval {
			continue
		}

		prompt, err := s.checkins.PromptCheckIn(ctx, session.ID, session.WorkerID)
		if err != nil {
			s.logger.Error("issuing check-in prompt failed", "session_id", session.ID, "err", err)
			continue
		}

		notify.BestEffort(ctx, s.gateway, s.logger, notify.Message{
			Channel:        notify.ChannelWorker(session.WorkerID),
			Title:          "Check in required",
			Body:           "Confirm you are OK: respond to prompt " + prompt.ID,
			Priority:       notify.PriorityNormal,
			WorkerID:       session.WorkerID,
			SiteID:         session.SiteID,
			EntrySessionID: session.ID,
		})
	}
	return nil
}

// scanMissedCheckIns counts consecutive misses per session and escalates
// through the check-in ledger's thresholds.
func (s *Scheduler) scanMissedCheckIns(ctx context.Context) error {
	states := append([]model.EntryState{}, liveStates...)
	states = append(states, model.StateCheckinMissed)
	sessions, err := s.store.ListEntrySessions(ctx, model.SessionFilter{States: states})
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	for _, session := range sessions {
		outcome, missed, err := s.checkins.HandleMissedCheckIn(ctx, session.ID)
		if err != nil {
			s.logger.Error("missed check-in handling failed", "session_id", session.ID, "err", err)
			continue
		}

		switch outcome {
		case checkin.OutcomeSOS:
			escalations.WithLabelValues("checkin_sos").Inc()
			s.auditBestEffort(ctx, session, "watchdog.checkin_sos")
			if _, err := s.dispatcher.TriggerSOS(ctx, escalate.SOSRequest{
				WorkerID:       session.WorkerID,
				EntrySessionID: session.ID,
				Method:         model.TriggerMissedCheckin,
			}); err != nil {
				s.logger.Error("SOS dispatch failed", "session_id", session.ID, "err", err)
			}

		case checkin.OutcomeAlert:
			escalations.WithLabelValues("checkin_missed").Inc()
			s.auditBestEffort(ctx, session, "watchdog.checkin_missed")
			notify.BestEffort(ctx, s.gateway, s.logger, notify.Message{
				Channel:        notify.ChannelSupervisors,
				Title:          "Missed check-ins",
				Body:           fmt.Sprintf("Worker %s has missed %d consecutive check-ins at site %s", session.WorkerID, missed, session.SiteID),
				Priority:       notify.PriorityHigh,
				WorkerID:       session.WorkerID,
				SiteID:         session.SiteID,
				EntrySessionID: session.ID,
			})
		}
	}
	return nil
}

// scanGasDanger raises a gas alert for underground workers at sites whose
// sensor reported a dangerous reading within the freshness window.
func (s *Scheduler) scanGasDanger(ctx context.Context) error {
	sessions, err := s.store.ListEntrySessions(ctx, model.SessionFilter{
		Statuses: []model.SessionStatus{model.StatusActive},
	})
	if err != nil {
		return fmt.Errorf("listing active sessions: %w", err)
	}

	now := time.Now().UTC()
	type siteGas struct {
		dangerous bool
	}
	siteCache := make(map[string]siteGas)

	for _, session := range sessions {
		// Already alerted or escalated; nothing further to raise here.
		if session.State == model.StateSOSTriggered || session.State == model.StateGasAlert {
			continue
		}

		cached, ok := siteCache[session.SiteID]
		if !ok {
			cached = siteGas{}
			site, err := s.store.GetSite(ctx, session.SiteID)
			if err != nil {
				s.logger.Error("site lookup failed", "site_id", session.SiteID, "err", err)
				siteCache[session.SiteID] = cached
				continue
			}
			if site != nil && site.HasGasSensor {
				reading, err := s.store.LatestGasReading(ctx, session.SiteID)
				if err != nil {
					s.logger.Error("gas reading lookup failed", "site_id", session.SiteID, "err", err)
				} else if reading != nil && reading.IsDangerous && reading.Age(now) < s.cfg.GasFreshness {
					cached.dangerous = true
				}
			}
			siteCache[session.SiteID] = cached
		}
		if !cached.dangerous {
			continue
		}

		if err := s.applyAndAudit(ctx, session, model.EventGasDanger, "watchdog.gas_alert"); err != nil {
			s.logger.Error("gas alert transition failed", "session_id", session.ID, "err", err)
			continue
		}
		escalations.WithLabelValues("gas_danger").Inc()

		notify.BestEffort(ctx, s.gateway, s.logger, notify.Message{
			Channel:        notify.ChannelSite(session.SiteID),
			Title:          "Gas danger",
			Body:           fmt.Sprintf("Dangerous gas reading at site %s: worker %s must evacuate", session.SiteID, session.WorkerID),
			Priority:       notify.PriorityCritical,
			WorkerID:       session.WorkerID,
			SiteID:         session.SiteID,
			EntrySessionID: session.ID,
		})
	}
	return nil
}

// applyAndAudit drives a session transition, persists it, and records the
// action on the audit chain.
func (s *Scheduler) applyAndAudit(ctx context.Context, session *model.EntrySession, event model.EntryEvent, action string) error {
	if err := fsm.Apply(session, event); err != nil {
		return err
	}
	if err := s.store.UpdateEntrySession(ctx, session); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	s.auditBestEffort(ctx, session, action)
	return nil
}

func (s *Scheduler) auditBestEffort(ctx context.Context, session *model.EntrySession, action string) {
	if _, err := s.auditLog.Log(ctx, audit.Record{
		Action:     action,
		EntityType: "entry_session",
		EntityID:   session.ID,
	}); err != nil {
		s.logger.Warn("audit append failed", "action", action, "session_id", session.ID, "err", err)
	}
}

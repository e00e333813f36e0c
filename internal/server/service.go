// Package server exposes the watchdog's operations over HTTP and owns the
// cross-cutting rules they share: clearance before entry, immutability
// after exit, and an audit record for every state change.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldward/manholeguard/internal/audit"
	"github.com/fieldward/manholeguard/internal/checkin"
	"github.com/fieldward/manholeguard/internal/escalate"
	"github.com/fieldward/manholeguard/internal/fatigue"
	"github.com/fieldward/manholeguard/internal/fsm"
	"github.com/fieldward/manholeguard/internal/gas"
	"github.com/fieldward/manholeguard/internal/idgen"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/risk"
	"github.com/fieldward/manholeguard/internal/store"
	"github.com/fieldward/manholeguard/internal/watchdog"
)

// defaultAllowedDuration is the entry duration assumed when a request
// leaves it unset, in minutes.
const defaultAllowedDuration = 45

// GuardServer is the service layer tying the safety components together.
type GuardServer struct {
	store      store.Store
	risk       *risk.Engine
	gas        *gas.Evaluator
	fatigue    *fatigue.Guard
	checkins   *checkin.Ledger
	dispatcher *escalate.Dispatcher
	audit      *audit.Ledger
	watchdog   *watchdog.Scheduler
	logger     *slog.Logger
}

// New wires a GuardServer. The watchdog may be nil when the scan loop is
// driven elsewhere.
func New(s store.Store, r *risk.Engine, g *gas.Evaluator, f *fatigue.Guard,
	c *checkin.Ledger, d *escalate.Dispatcher, a *audit.Ledger,
	w *watchdog.Scheduler, logger *slog.Logger) *GuardServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardServer{
		store: s, risk: r, gas: g, fatigue: f,
		checkins: c, dispatcher: d, audit: a, watchdog: w,
		logger: logger,
	}
}

// StartEntryRequest is the input to StartEntry.
type StartEntryRequest struct {
	WorkerID               string `json:"worker_id"`
	SiteID                 string `json:"site_id"`
	AllowedDurationMinutes int    `json:"allowed_duration_minutes"`
	GeoVerified            bool   `json:"geo_verified"`
	ChecklistCompleted     bool   `json:"checklist_completed"`
}

// StartEntry runs the full clearance ladder and, when the worker is
// cleared, opens an entry session in ENTERED. A refusal surfaces as a
// *model.DeniedError carrying the reason code.
func (s *GuardServer) StartEntry(ctx context.Context, actor string, req StartEntryRequest) (*model.EntrySession, error) {
	if req.WorkerID == "" {
		return nil, model.ValidationError("worker_id is required")
	}
	if req.SiteID == "" {
		return nil, model.ValidationError("site_id is required")
	}
	if !req.ChecklistCompleted {
		return nil, model.ValidationError("checklist must be completed before entry")
	}
	if req.AllowedDurationMinutes == 0 {
		req.AllowedDurationMinutes = defaultAllowedDuration
	}

	if _, err := s.risk.CanWorkerEnter(ctx, req.SiteID, req.WorkerID); err != nil {
		return nil, err
	}

	// Walk the machine from IDLE to ENTERED so a broken transition table
	// fails loudly here rather than later in the watchdog.
	machine := fsm.New()
	for _, event := range []model.EntryEvent{
		model.EventScanQR, model.EventCompleteChecklist, model.EventConfirmEntry,
	} {
		if _, err := machine.Transition(event); err != nil {
			return nil, err
		}
	}

	id, err := idgen.GenerateWithPrefix(idgen.PrefixEntry)
	if err != nil {
		return nil, fmt.Errorf("generating entry id: %w", err)
	}
	now := time.Now().UTC()
	session := &model.EntrySession{
		ID:                     id,
		WorkerID:               req.WorkerID,
		SiteID:                 req.SiteID,
		EntryTime:              now,
		AllowedDurationMinutes: req.AllowedDurationMinutes,
		Status:                 model.StatusActive,
		State:                  machine.State(),
		GeoVerified:            req.GeoVerified,
		ChecklistCompleted:     req.ChecklistCompleted,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	shift, err := s.store.GetActiveShift(ctx, req.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("looking up shift: %w", err)
	}
	if shift != nil {
		session.ShiftID = shift.ID
	}

	if err := model.ValidateEntrySession(session); err != nil {
		return nil, err
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateEntrySession(ctx, session); err != nil {
			return fmt.Errorf("persisting session: %w", err)
		}
		if shift != nil {
			shift.EntryCount++
			shift.FatigueScore = s.fatigue.FatigueScore(shift, now)
			if err := tx.UpdateShift(ctx, shift); err != nil {
				return fmt.Errorf("updating shift: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.auditLog(ctx, actor, "entry.start", "entry_session", session.ID); err != nil {
		return nil, err
	}
	s.logger.Info("entry started",
		"entry_session_id", session.ID, "worker_id", req.WorkerID, "site_id", req.SiteID)
	return session, nil
}

// ConfirmExit closes an entry session. Exited sessions are immutable, so
// a second exit is a conflict, not a no-op.
func (s *GuardServer) ConfirmExit(ctx context.Context, actor, entrySessionID string) (*model.EntrySession, error) {
	session, err := s.store.GetEntrySession(ctx, entrySessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NotFound("entry session", entrySessionID)
	}
	if session.State == model.StateExited {
		return nil, &model.StateError{Msg: "entry session " + entrySessionID + " already exited"}
	}

	if err := fsm.Apply(session, model.EventConfirmExit); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session.ExitTime = &now
	session.UpdatedAt = now

	var shift *model.ShiftFatigueState
	if session.ShiftID != "" {
		shift, err = s.store.GetActiveShift(ctx, session.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("looking up shift: %w", err)
		}
	}

	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.UpdateEntrySession(ctx, session); err != nil {
			return fmt.Errorf("persisting session: %w", err)
		}
		if shift != nil {
			shift.TotalUndergroundMinutes += int(now.Sub(session.EntryTime).Minutes())
			shift.LastExitTime = &now
			shift.FatigueScore = s.fatigue.FatigueScore(shift, now)
			if err := tx.UpdateShift(ctx, shift); err != nil {
				return fmt.Errorf("updating shift: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.auditLog(ctx, actor, "entry.exit", "entry_session", session.ID); err != nil {
		return nil, err
	}
	s.logger.Info("entry exited", "entry_session_id", session.ID, "worker_id", session.WorkerID)
	return session, nil
}

// GetEntrySession returns one session.
func (s *GuardServer) GetEntrySession(ctx context.Context, id string) (*model.EntrySession, error) {
	session, err := s.store.GetEntrySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NotFound("entry session", id)
	}
	return session, nil
}

// ListEntrySessions returns sessions matching the filter.
func (s *GuardServer) ListEntrySessions(ctx context.Context, filter model.SessionFilter) ([]*model.EntrySession, error) {
	return s.store.ListEntrySessions(ctx, filter)
}

// RespondToCheckIn marks a prompt answered on the worker's behalf.
func (s *GuardServer) RespondToCheckIn(ctx context.Context, actor, promptID string, method model.CheckInMethod) (*model.CheckInPrompt, error) {
	prompt, err := s.checkins.RespondToCheckIn(ctx, promptID, method)
	if err != nil {
		return nil, err
	}
	if err := s.auditLog(ctx, actor, "checkin.respond", "checkin_prompt", prompt.ID); err != nil {
		return nil, err
	}
	return prompt, nil
}

// TriggerSOS raises an emergency through the escalation dispatcher.
func (s *GuardServer) TriggerSOS(ctx context.Context, actor string, req escalate.SOSRequest) (*model.SOSRecord, error) {
	record, err := s.dispatcher.TriggerSOS(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.auditLog(ctx, actor, "sos.trigger", "sos_record", record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

// ResolveSOS closes out an SOS record.
func (s *GuardServer) ResolveSOS(ctx context.Context, actor, id, outcome string) (*model.SOSRecord, error) {
	record, err := s.dispatcher.ResolveSOS(ctx, id, outcome)
	if err != nil {
		return nil, err
	}
	if err := s.auditLog(ctx, actor, "sos.resolve", "sos_record", record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

// GetSOSRecord returns one SOS record.
func (s *GuardServer) GetSOSRecord(ctx context.Context, id string) (*model.SOSRecord, error) {
	record, err := s.store.GetSOSRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, model.NotFound("sos record", id)
	}
	return record, nil
}

// PredictRisk recomputes a site's risk assessment.
func (s *GuardServer) PredictRisk(ctx context.Context, actor, siteID string) (*model.RiskAssessment, error) {
	assessment, err := s.risk.PredictRisk(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if err := s.auditLog(ctx, actor, "risk.predict", "site", siteID); err != nil {
		return nil, err
	}
	return assessment, nil
}

// GasReadingRequest is the input to RecordGasReading.
type GasReadingRequest struct {
	SiteID string                 `json:"site_id"`
	Gases  map[string]float64     `json:"gases"`
	O2     float64                `json:"o2"`
	Source model.GasReadingSource `json:"source"`
}

// RecordGasReading appends a sensor sample, classifying it against the
// configured thresholds on the way in.
func (s *GuardServer) RecordGasReading(ctx context.Context, actor string, req GasReadingRequest) (*model.GasReading, error) {
	site, err := s.store.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, model.NotFound("site", req.SiteID)
	}

	id, err := idgen.GenerateWithPrefix(idgen.PrefixReading)
	if err != nil {
		return nil, fmt.Errorf("generating reading id: %w", err)
	}
	reading := &model.GasReading{
		ID:     id,
		SiteID: req.SiteID,
		Gases:  req.Gases,
		O2:     req.O2,
		Source: req.Source,
		ReadAt: time.Now().UTC(),
	}
	if reading.Source == "" {
		reading.Source = model.SourceManualEntry
	}
	if err := model.ValidateGasReading(reading); err != nil {
		return nil, err
	}
	reading.IsDangerous = s.gas.EvaluateDanger(reading)

	if err := s.store.RecordGasReading(ctx, reading); err != nil {
		return nil, fmt.Errorf("persisting reading: %w", err)
	}
	if reading.IsDangerous {
		s.logger.Warn("dangerous gas reading recorded",
			"site_id", req.SiteID, "o2", req.O2)
	}
	if err := s.auditLog(ctx, actor, "gas.record", "gas_reading", reading.ID); err != nil {
		return nil, err
	}
	return reading, nil
}

// StartShift opens a fatigue-tracking shift for a worker. One open shift
// per worker at a time.
func (s *GuardServer) StartShift(ctx context.Context, actor, workerID string) (*model.ShiftFatigueState, error) {
	if workerID == "" {
		return nil, model.ValidationError("worker_id is required")
	}
	existing, err := s.store.GetActiveShift(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &model.StateError{Msg: "worker " + workerID + " already has an open shift"}
	}

	id, err := idgen.GenerateWithPrefix(idgen.PrefixShift)
	if err != nil {
		return nil, fmt.Errorf("generating shift id: %w", err)
	}
	shift := &model.ShiftFatigueState{
		ID:        id,
		WorkerID:  workerID,
		StartTime: time.Now().UTC(),
	}
	if err := s.store.CreateShift(ctx, shift); err != nil {
		return nil, fmt.Errorf("persisting shift: %w", err)
	}
	if err := s.auditLog(ctx, actor, "shift.start", "shift", shift.ID); err != nil {
		return nil, err
	}
	return shift, nil
}

// EndShift closes a worker's open shift.
func (s *GuardServer) EndShift(ctx context.Context, actor, workerID string) (*model.ShiftFatigueState, error) {
	shift, err := s.store.GetActiveShift(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, model.NotFound("active shift for worker", workerID)
	}

	now := time.Now().UTC()
	shift.EndTime = &now
	if err := s.store.UpdateShift(ctx, shift); err != nil {
		return nil, fmt.Errorf("persisting shift: %w", err)
	}
	if err := s.auditLog(ctx, actor, "shift.end", "shift", shift.ID); err != nil {
		return nil, err
	}
	return shift, nil
}

// RegisterSite adds a site to the registry.
func (s *GuardServer) RegisterSite(ctx context.Context, actor string, site *model.Site) (*model.Site, error) {
	if site.ID == "" {
		return nil, model.ValidationError("id is required")
	}
	if site.Name == "" {
		return nil, model.ValidationError("name is required")
	}
	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, err
	}
	if err := s.auditLog(ctx, actor, "site.register", "site", site.ID); err != nil {
		return nil, err
	}
	return site, nil
}

// GetSite returns one site.
func (s *GuardServer) GetSite(ctx context.Context, id string) (*model.Site, error) {
	site, err := s.store.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, model.NotFound("site", id)
	}
	return site, nil
}

// ListSites returns all registered sites.
func (s *GuardServer) ListSites(ctx context.Context) ([]*model.Site, error) {
	return s.store.ListSites(ctx)
}

// ReportBlockage records a blockage observation for a site. Blockage
// frequency feeds the risk engine.
func (s *GuardServer) ReportBlockage(ctx context.Context, actor, siteID string) error {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	if site == nil {
		return model.NotFound("site", siteID)
	}
	if err := s.store.ReportBlockage(ctx, siteID, time.Now().UTC()); err != nil {
		return fmt.Errorf("persisting blockage: %w", err)
	}
	return s.auditLog(ctx, actor, "site.blockage", "site", siteID)
}

// VerifyIntegrity replays the audit chain.
func (s *GuardServer) VerifyIntegrity(ctx context.Context, rng *model.AuditRange) (*model.IntegrityReport, error) {
	return s.audit.VerifyIntegrity(ctx, rng)
}

// Tick runs one watchdog scan cycle on demand.
func (s *GuardServer) Tick(ctx context.Context) error {
	if s.watchdog == nil {
		return &model.StateError{Msg: "watchdog not configured"}
	}
	s.watchdog.Tick(ctx)
	return nil
}

// auditLog appends one chain entry for a state-changing operation. Audit
// failures fail the operation; a safety log with silent gaps is worthless.
func (s *GuardServer) auditLog(ctx context.Context, actor, action, entityType, entityID string) error {
	_, err := s.audit.Log(ctx, audit.Record{
		UserID:     actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	})
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// Package escalate turns detected hazards into SOS records, critical
// incidents, and notification requests.
package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldward/manholeguard/internal/fsm"
	"github.com/fieldward/manholeguard/internal/idgen"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/notify"
	"github.com/fieldward/manholeguard/internal/oracle"
	"github.com/fieldward/manholeguard/internal/store"
)

// Dispatcher creates and resolves SOS records.
type Dispatcher struct {
	store   store.Store
	locator oracle.FacilityLocator
	gateway notify.Gateway
	logger  *slog.Logger
}

// New wires a dispatcher from its collaborators.
func New(s store.Store, locator oracle.FacilityLocator, gw notify.Gateway, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: s, locator: locator, gateway: gw, logger: logger}
}

// SOSRequest is the input to TriggerSOS.
type SOSRequest struct {
	WorkerID       string
	EntrySessionID string // optional; empty means a standalone SOS
	Location       *model.Location
	Method         model.SOSTriggerMethod
}

// TriggerSOS raises an emergency: resolves a location (explicit
// coordinates, else the entry's site coordinates, else none), looks up
// the nearest hospital and fire station best-effort, persists an
// SOSRecord, and broadcasts on the emergency channel. When the SOS is
// bound to an entry session, the session is forced to SOS_TRIGGERED and a
// CRITICAL incident is recorded; a standalone SOS has no session or
// incident side effects.
func (d *Dispatcher) TriggerSOS(ctx context.Context, req SOSRequest) (*model.SOSRecord, error) {
	if req.WorkerID == "" {
		return nil, model.ValidationError("worker_id is required")
	}
	if !req.Method.IsValid() {
		return nil, model.Validationf("invalid trigger method %q", req.Method)
	}

	var session *model.EntrySession
	if req.EntrySessionID != "" {
		var err error
		session, err = d.store.GetEntrySession(ctx, req.EntrySessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, model.NotFound("entry session", req.EntrySessionID)
		}
	}

	location := req.Location
	var site *model.Site
	if session != nil {
		var err error
		site, err = d.store.GetSite(ctx, session.SiteID)
		if err != nil {
			d.logger.Warn("site lookup failed during SOS", "site_id", session.SiteID, "err", err)
		}
		if location == nil && site != nil {
			location = site.Location
		}
	}

	id, err := idgen.GenerateWithPrefix(idgen.PrefixSOS)
	if err != nil {
		return nil, fmt.Errorf("generating sos id: %w", err)
	}
	record := &model.SOSRecord{
		ID:             id,
		WorkerID:       req.WorkerID,
		EntrySessionID: req.EntrySessionID,
		Location:       location,
		TriggerMethod:  req.Method,
		TriggeredAt:    time.Now().UTC(),
	}
	if location != nil {
		record.NearestHospital = d.findFacility(ctx, location, oracle.FacilityHospital)
		record.NearestFireStation = d.findFacility(ctx, location, oracle.FacilityFireStation)
	}

	if err := d.store.CreateSOSRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting sos record: %w", err)
	}

	if session != nil {
		if session.State != model.StateSOSTriggered {
			if err := fsm.Apply(session, model.EventTriggerSOS); err != nil {
				return nil, err
			}
			if err := d.store.UpdateEntrySession(ctx, session); err != nil {
				return nil, fmt.Errorf("persisting session %s: %w", session.ID, err)
			}
		}

		incID, err := idgen.GenerateWithPrefix(idgen.PrefixIncident)
		if err != nil {
			return nil, fmt.Errorf("generating incident id: %w", err)
		}
		incident := &model.Incident{
			ID:             incID,
			SiteID:         session.SiteID,
			WorkerID:       req.WorkerID,
			EntrySessionID: session.ID,
			Severity:       model.SeverityCritical,
			Description:    fmt.Sprintf("SOS triggered (%s) for worker %s", req.Method, req.WorkerID),
			OccurredAt:     record.TriggeredAt,
		}
		if err := d.store.CreateIncident(ctx, incident); err != nil {
			return nil, fmt.Errorf("persisting incident: %w", err)
		}
	}

	msg := notify.Message{
		Channel:        notify.ChannelEmergency,
		Title:          "SOS triggered",
		Body:           fmt.Sprintf("Worker %s triggered SOS (%s)", req.WorkerID, req.Method),
		Priority:       notify.PriorityCritical,
		WorkerID:       req.WorkerID,
		EntrySessionID: req.EntrySessionID,
	}
	if session != nil {
		msg.SiteID = session.SiteID
	}
	notify.BestEffort(ctx, d.gateway, d.logger, msg)

	d.logger.Info("SOS triggered",
		"sos_id", record.ID, "worker_id", req.WorkerID,
		"entry_session_id", req.EntrySessionID, "method", req.Method.String())
	return record, nil
}

// findFacility is a best-effort lookup; failures are logged and the field
// stays empty.
func (d *Dispatcher) findFacility(ctx context.Context, loc *model.Location, kind oracle.FacilityKind) *model.Facility {
	found, err := d.locator.FindNearest(ctx, loc.Lat, loc.Lng, kind)
	if err != nil {
		d.logger.Warn("facility lookup failed", "kind", string(kind), "err", err)
		return nil
	}
	if found == nil {
		return nil
	}
	return &model.Facility{Name: found.Name, DistanceKm: found.DistanceKm}
}

// ResolveSOS closes out an SOS record. Sets resolution fields only;
// triggers no further automation.
func (d *Dispatcher) ResolveSOS(ctx context.Context, id, outcome string) (*model.SOSRecord, error) {
	record, err := d.store.GetSOSRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, model.NotFound("sos record", id)
	}
	if record.Resolved() {
		return nil, &model.StateError{Msg: "sos record " + id + " already resolved"}
	}

	now := time.Now().UTC()
	record.ResolvedAt = &now
	record.Outcome = outcome
	if err := d.store.UpdateSOSRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting sos resolution: %w", err)
	}

	d.logger.Info("SOS resolved", "sos_id", id, "outcome", outcome)
	return record, nil
}

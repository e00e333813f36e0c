package store

import (
	"context"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
)

// Store defines the persistence interface for the safety watchdog.
type Store interface {
	// Entry sessions
	CreateEntrySession(ctx context.Context, session *model.EntrySession) error
	GetEntrySession(ctx context.Context, id string) (*model.EntrySession, error)
	ListEntrySessions(ctx context.Context, filter model.SessionFilter) ([]*model.EntrySession, error)
	UpdateEntrySession(ctx context.Context, session *model.EntrySession) error
	CountActiveAtSite(ctx context.Context, siteID string) (int, error)

	// Check-in prompts
	CreateCheckInPrompt(ctx context.Context, prompt *model.CheckInPrompt) error
	GetCheckInPrompt(ctx context.Context, id string) (*model.CheckInPrompt, error)
	UpdateCheckInPrompt(ctx context.Context, prompt *model.CheckInPrompt) error
	// ListCheckInPrompts returns prompts for an entry session ordered
	// most-recent-first.
	ListCheckInPrompts(ctx context.Context, entrySessionID string) ([]*model.CheckInPrompt, error)
	LatestCheckInPrompt(ctx context.Context, entrySessionID string) (*model.CheckInPrompt, error)

	// Gas readings (append-only)
	RecordGasReading(ctx context.Context, reading *model.GasReading) error
	LatestGasReading(ctx context.Context, siteID string) (*model.GasReading, error)

	// Risk assessments (append-only) and site risk fields
	CreateRiskAssessment(ctx context.Context, assessment *model.RiskAssessment) error
	CreateSite(ctx context.Context, site *model.Site) error
	GetSite(ctx context.Context, id string) (*model.Site, error)
	ListSites(ctx context.Context) ([]*model.Site, error)
	UpdateSiteRisk(ctx context.Context, siteID string, score int, level model.RiskLevel, at time.Time) error
	ReportBlockage(ctx context.Context, siteID string, at time.Time) error
	CountBlockages(ctx context.Context, siteID string, since time.Time) (int, error)
	CountSiteIncidents(ctx context.Context, siteID string, since time.Time) (int, error)
	CountAreaIncidents(ctx context.Context, areaCode string, since time.Time) (int, error)

	// SOS records
	CreateSOSRecord(ctx context.Context, record *model.SOSRecord) error
	GetSOSRecord(ctx context.Context, id string) (*model.SOSRecord, error)
	UpdateSOSRecord(ctx context.Context, record *model.SOSRecord) error

	// Incidents
	CreateIncident(ctx context.Context, incident *model.Incident) error

	// Shift fatigue state
	GetActiveShift(ctx context.Context, workerID string) (*model.ShiftFatigueState, error)
	CreateShift(ctx context.Context, shift *model.ShiftFatigueState) error
	UpdateShift(ctx context.Context, shift *model.ShiftFatigueState) error

	// Audit chain (append-only)
	AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error
	LatestAuditEntry(ctx context.Context) (*model.AuditEntry, error)
	// ListAuditEntries returns entries oldest-to-newest, optionally bounded
	// by the given range.
	ListAuditEntries(ctx context.Context, rng *model.AuditRange) ([]*model.AuditEntry, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

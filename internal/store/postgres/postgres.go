// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateEntrySession(ctx context.Context, session *model.EntrySession) error {
	return queryCreateEntrySession(ctx, s.db, session)
}

func (s *PostgresStore) GetEntrySession(ctx context.Context, id string) (*model.EntrySession, error) {
	return queryGetEntrySession(ctx, s.db, id)
}

func (s *PostgresStore) ListEntrySessions(ctx context.Context, filter model.SessionFilter) ([]*model.EntrySession, error) {
	return queryListEntrySessions(ctx, s.db, filter)
}

func (s *PostgresStore) UpdateEntrySession(ctx context.Context, session *model.EntrySession) error {
	return queryUpdateEntrySession(ctx, s.db, session)
}

func (s *PostgresStore) CountActiveAtSite(ctx context.Context, siteID string) (int, error) {
	return queryCountActiveAtSite(ctx, s.db, siteID)
}

func (s *PostgresStore) CreateCheckInPrompt(ctx context.Context, prompt *model.CheckInPrompt) error {
	return queryCreateCheckInPrompt(ctx, s.db, prompt)
}

func (s *PostgresStore) GetCheckInPrompt(ctx context.Context, id string) (*model.CheckInPrompt, error) {
	return queryGetCheckInPrompt(ctx, s.db, id)
}

func (s *PostgresStore) UpdateCheckInPrompt(ctx context.Context, prompt *model.CheckInPrompt) error {
	return queryUpdateCheckInPrompt(ctx, s.db, prompt)
}

func (s *PostgresStore) ListCheckInPrompts(ctx context.Context, entrySessionID string) ([]*model.CheckInPrompt, error) {
	return queryListCheckInPrompts(ctx, s.db, entrySessionID)
}

func (s *PostgresStore) LatestCheckInPrompt(ctx context.Context, entrySessionID string) (*model.CheckInPrompt, error) {
	return queryLatestCheckInPrompt(ctx, s.db, entrySessionID)
}

func (s *PostgresStore) RecordGasReading(ctx context.Context, reading *model.GasReading) error {
	return queryRecordGasReading(ctx, s.db, reading)
}

func (s *PostgresStore) LatestGasReading(ctx context.Context, siteID string) (*model.GasReading, error) {
	return queryLatestGasReading(ctx, s.db, siteID)
}

func (s *PostgresStore) CreateRiskAssessment(ctx context.Context, assessment *model.RiskAssessment) error {
	return queryCreateRiskAssessment(ctx, s.db, assessment)
}

func (s *PostgresStore) CreateSite(ctx context.Context, site *model.Site) error {
	return queryCreateSite(ctx, s.db, site)
}

func (s *PostgresStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	return queryGetSite(ctx, s.db, id)
}

func (s *PostgresStore) ListSites(ctx context.Context) ([]*model.Site, error) {
	return queryListSites(ctx, s.db)
}

func (s *PostgresStore) UpdateSiteRisk(ctx context.Context, siteID string, score int, level model.RiskLevel, at time.Time) error {
	return queryUpdateSiteRisk(ctx, s.db, siteID, score, level, at)
}

func (s *PostgresStore) ReportBlockage(ctx context.Context, siteID string, at time.Time) error {
	return queryReportBlockage(ctx, s.db, siteID, at)
}

func (s *PostgresStore) CountBlockages(ctx context.Context, siteID string, since time.Time) (int, error) {
	return queryCountBlockages(ctx, s.db, siteID, since)
}

func (s *PostgresStore) CountSiteIncidents(ctx context.Context, siteID string, since time.Time) (int, error) {
	return queryCountSiteIncidents(ctx, s.db, siteID, since)
}

func (s *PostgresStore) CountAreaIncidents(ctx context.Context, areaCode string, since time.Time) (int, error) {
	return queryCountAreaIncidents(ctx, s.db, areaCode, since)
}

func (s *PostgresStore) CreateSOSRecord(ctx context.Context, record *model.SOSRecord) error {
	return queryCreateSOSRecord(ctx, s.db, record)
}

func (s *PostgresStore) GetSOSRecord(ctx context.Context, id string) (*model.SOSRecord, error) {
	return queryGetSOSRecord(ctx, s.db, id)
}

func (s *PostgresStore) UpdateSOSRecord(ctx context.Context, record *model.SOSRecord) error {
	return queryUpdateSOSRecord(ctx, s.db, record)
}

func (s *PostgresStore) CreateIncident(ctx context.Context, incident *model.Incident) error {
	return queryCreateIncident(ctx, s.db, incident)
}

func (s *PostgresStore) GetActiveShift(ctx context.Context, workerID string) (*model.ShiftFatigueState, error) {
	return queryGetActiveShift(ctx, s.db, workerID)
}

func (s *PostgresStore) CreateShift(ctx context.Context, shift *model.ShiftFatigueState) error {
	return queryCreateShift(ctx, s.db, shift)
}

func (s *PostgresStore) UpdateShift(ctx context.Context, shift *model.ShiftFatigueState) error {
	return queryUpdateShift(ctx, s.db, shift)
}

func (s *PostgresStore) AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	return queryAppendAuditEntry(ctx, s.db, entry)
}

func (s *PostgresStore) LatestAuditEntry(ctx context.Context) (*model.AuditEntry, error) {
	return queryLatestAuditEntry(ctx, s.db)
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, rng *model.AuditRange) ([]*model.AuditEntry, error) {
	return queryListAuditEntries(ctx, s.db, rng)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateEntrySession(ctx context.Context, session *model.EntrySession) error {
	return queryCreateEntrySession(ctx, s.tx, session)
}

func (s *txStore) GetEntrySession(ctx context.Context, id string) (*model.EntrySession, error) {
	return queryGetEntrySession(ctx, s.tx, id)
}

func (s *txStore) ListEntrySessions(ctx context.Context, filter model.SessionFilter) ([]*model.EntrySession, error) {
	return queryListEntrySessions(ctx, s.tx, filter)
}

func (s *txStore) UpdateEntrySession(ctx context.Context, session *model.EntrySession) error {
	return queryUpdateEntrySession(ctx, s.tx, session)
}

func (s *txStore) CountActiveAtSite(ctx context.Context, siteID string) (int, error) {
	return queryCountActiveAtSite(ctx, s.tx, siteID)
}

func (s *txStore) CreateCheckInPrompt(ctx context.Context, prompt *model.CheckInPrompt) error {
	return queryCreateCheckInPrompt(ctx, s.tx, prompt)
}

func (s *txStore) GetCheckInPrompt(ctx context.Context, id string) (*model.CheckInPrompt, error) {
	return queryGetCheckInPrompt(ctx, s.tx, id)
}

func (s *txStore) UpdateCheckInPrompt(ctx context.Context, prompt *model.CheckInPrompt) error {
	return queryUpdateCheckInPrompt(ctx, s.tx, prompt)
}

func (s *txStore) ListCheckInPrompts(ctx context.Context, entrySessionID string) ([]*model.CheckInPrompt, error) {
	return queryListCheckInPrompts(ctx, s.tx, entrySessionID)
}

func (s *txStore) LatestCheckInPrompt(ctx context.Context, entrySessionID string) (*model.CheckInPrompt, error) {
	return queryLatestCheckInPrompt(ctx, s.tx, entrySessionID)
}

func (s *txStore) RecordGasReading(ctx context.Context, reading *model.GasReading) error {
	return queryRecordGasReading(ctx, s.tx, reading)
}

func (s *txStore) LatestGasReading(ctx context.Context, siteID string) (*model.GasReading, error) {
	return queryLatestGasReading(ctx, s.tx, siteID)
}

func (s *txStore) CreateRiskAssessment(ctx context.Context, assessment *model.RiskAssessment) error {
	return queryCreateRiskAssessment(ctx, s.tx, assessment)
}

func (s *txStore) CreateSite(ctx context.Context, site *model.Site) error {
	return queryCreateSite(ctx, s.tx, site)
}

func (s *txStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	return queryGetSite(ctx, s.tx, id)
}

func (s *txStore) ListSites(ctx context.Context) ([]*model.Site, error) {
	return queryListSites(ctx, s.tx)
}

func (s *txStore) UpdateSiteRisk(ctx context.Context, siteID string, score int, level model.RiskLevel, at time.Time) error {
	return queryUpdateSiteRisk(ctx, s.tx, siteID, score, level, at)
}

func (s *txStore) ReportBlockage(ctx context.Context, siteID string, at time.Time) error {
	return queryReportBlockage(ctx, s.tx, siteID, at)
}

func (s *txStore) CountBlockages(ctx context.Context, siteID string, since time.Time) (int, error) {
	return queryCountBlockages(ctx, s.tx, siteID, since)
}

func (s *txStore) CountSiteIncidents(ctx context.Context, siteID string, since time.Time) (int, error) {
	return queryCountSiteIncidents(ctx, s.tx, siteID, since)
}

func (s *txStore) CountAreaIncidents(ctx context.Context, areaCode string, since time.Time) (int, error) {
	return queryCountAreaIncidents(ctx, s.tx, areaCode, since)
}

func (s *txStore) CreateSOSRecord(ctx context.Context, record *model.SOSRecord) error {
	return queryCreateSOSRecord(ctx, s.tx, record)
}

func (s *txStore) GetSOSRecord(ctx context.Context, id string) (*model.SOSRecord, error) {
	return queryGetSOSRecord(ctx, s.tx, id)
}

func (s *txStore) UpdateSOSRecord(ctx context.Context, record *model.SOSRecord) error {
	return queryUpdateSOSRecord(ctx, s.tx, record)
}

func (s *txStore) CreateIncident(ctx context.Context, incident *model.Incident) error {
	return queryCreateIncident(ctx, s.tx, incident)
}

func (s *txStore) GetActiveShift(ctx context.Context, workerID string) (*model.ShiftFatigueState, error) {
	return queryGetActiveShift(ctx, s.tx, workerID)
}

func (s *txStore) CreateShift(ctx context.Context, shift *model.ShiftFatigueState) error {
	return queryCreateShift(ctx, s.tx, shift)
}

func (s *txStore) UpdateShift(ctx context.Context, shift *model.ShiftFatigueState) error {
	return queryUpdateShift(ctx, s.tx, shift)
}

func (s *txStore) AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	return queryAppendAuditEntry(ctx, s.tx, entry)
}

func (s *txStore) LatestAuditEntry(ctx context.Context) (*model.AuditEntry, error) {
	return queryLatestAuditEntry(ctx, s.tx)
}

func (s *txStore) ListAuditEntries(ctx context.Context, rng *model.AuditRange) ([]*model.AuditEntry, error) {
	return queryListAuditEntries(ctx, s.tx, rng)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}

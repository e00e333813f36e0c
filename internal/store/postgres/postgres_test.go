package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var sessionRowColumns = []string{
	"id", "worker_id", "site_id", "entry_time", "exit_time",
	"allowed_duration_minutes", "status", "state", "geo_verified",
	"checklist_completed", "shift_id", "created_at", "updated_at",
}

func addSessionRow(rows *sqlmock.Rows, id, workerID, siteID string, state model.EntryState, now time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, workerID, siteID, now, nil,
		45, string(model.StatusActive), string(state), true,
		true, nil, now, now,
	)
}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("mh-7"); !ns.Valid || ns.String != "mh-7" {
		t.Errorf("nullString(\"mh-7\") = %v", ns)
	}

	if b, err := gasesJSON(nil); err != nil || b != nil {
		t.Errorf("gasesJSON(nil) = %v, %v", b, err)
	}
	b, err := gasesJSON(map[string]float64{"co": 12.5})
	if err != nil || string(b) != `{"co":12.5}` {
		t.Errorf("gasesJSON = %s, %v", b, err)
	}
}

func TestGetEntrySession(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows(sessionRowColumns)
	addSessionRow(rows, "en-1", "w-1", "mh-1", model.StateActive, now)
	mock.ExpectQuery("SELECT .+ FROM entry_sessions WHERE id = \\$1").
		WithArgs("en-1").WillReturnRows(rows)

	got, err := store.GetEntrySession(context.Background(), "en-1")
	if err != nil {
		t.Fatalf("GetEntrySession: %v", err)
	}
	if got.ID != "en-1" || got.State != model.StateActive || got.ExitTime != nil {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestGetEntrySession_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT .+ FROM entry_sessions WHERE id = \\$1").
		WithArgs("en-missing").WillReturnRows(sqlmock.NewRows(sessionRowColumns))

	got, err := store.GetEntrySession(context.Background(), "en-missing")
	if err != nil {
		t.Fatalf("GetEntrySession: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil session, got %+v", got)
	}
}

func TestCreateEntrySession(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO entry_sessions").
		WithArgs("en-1", "w-1", "mh-1", now, nullTimePtr(nil),
			45, "ACTIVE", "ENTERED", true, true, nullString(""), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &model.EntrySession{
		ID: "en-1", WorkerID: "w-1", SiteID: "mh-1",
		EntryTime: now, AllowedDurationMinutes: 45,
		Status: model.StatusActive, State: model.StateEntered,
		GeoVerified: true, ChecklistCompleted: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateEntrySession(context.Background(), session); err != nil {
		t.Fatalf("CreateEntrySession: %v", err)
	}
}

func TestUpdateEntrySession_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}

	mock.ExpectExec("UPDATE entry_sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateEntrySession(context.Background(), &model.EntrySession{ID: "en-gone"})
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestListEntrySessions_FilterPlaceholders(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows(sessionRowColumns)
	addSessionRow(rows, "en-1", "w-1", "mh-1", model.StateEntered, now)
	addSessionRow(rows, "en-2", "w-2", "mh-1", model.StateActive, now)
	mock.ExpectQuery("SELECT .+ FROM entry_sessions WHERE state IN \\(\\$1, \\$2\\) AND site_id = \\$3").
		WithArgs("ENTERED", "ACTIVE", "mh-1").
		WillReturnRows(rows)

	got, err := store.ListEntrySessions(context.Background(), model.SessionFilter{
		States: []model.EntryState{model.StateEntered, model.StateActive},
		SiteID: "mh-1",
	})
	if err != nil {
		t.Fatalf("ListEntrySessions: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(got))
	}
}

func TestCountActiveAtSite(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM entry_sessions WHERE site_id = \\$1 AND state IN").
		WithArgs("mh-1", "ENTERED", "ACTIVE", "OVERSTAY_ALERT", "SOS_TRIGGERED", "GAS_ALERT", "CHECKIN_MISSED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.CountActiveAtSite(context.Background(), "mh-1")
	if err != nil {
		t.Fatalf("CountActiveAtSite: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestLatestGasReading(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "site_id", "gases", "o2", "is_dangerous", "source", "read_at"}).
		AddRow("gr-1", "mh-1", []byte(`{"co":12.5,"h2s":0.4}`), 20.9, false, "fixed_sensor", now)
	mock.ExpectQuery("SELECT .+ FROM gas_readings WHERE site_id = \\$1 ORDER BY read_at DESC LIMIT 1").
		WithArgs("mh-1").WillReturnRows(rows)

	got, err := store.LatestGasReading(context.Background(), "mh-1")
	if err != nil {
		t.Fatalf("LatestGasReading: %v", err)
	}
	if got.Gases["co"] != 12.5 || got.O2 != 20.9 || got.IsDangerous {
		t.Errorf("unexpected reading: %+v", got)
	}
}

func TestLatestAuditEntry_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	store := &PostgresStore{db: db}

	mock.ExpectQuery("SELECT .+ FROM audit_log ORDER BY seq DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "entity_type", "entity_id", "ts", "hash_chain"}))

	got, err := store.LatestAuditEntry(context.Background())
	if err != nil {
		t.Fatalf("LatestAuditEntry: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil entry, got %+v", got)
	}
}

func TestRunInTransaction_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	pg := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := fmt.Errorf("boom")
	err := pg.RunInTransaction(context.Background(), func(tx store.Store) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error back, got %v", err)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	pg := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO blockage_reports").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := pg.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.ReportBlockage(context.Background(), "mh-1", time.Now())
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

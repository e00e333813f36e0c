package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEntrySession scans a single row into a model.EntrySession.
// The row must contain columns in the order defined by sessionColumns.
func scanEntrySession(row scannable) (*model.EntrySession, error) {
	var s model.EntrySession
	var (
		exitTime sql.NullTime
		shiftID  sql.NullString
	)

	err := row.Scan(
		&s.ID,
		&s.WorkerID,
		&s.SiteID,
		&s.EntryTime,
		&exitTime,
		&s.AllowedDurationMinutes,
		&s.Status,
		&s.State,
		&s.GeoVerified,
		&s.ChecklistCompleted,
		&shiftID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ShiftID = shiftID.String
	if exitTime.Valid {
		t := exitTime.Time
		s.ExitTime = &t
	}
	return &s, nil
}

func scanEntrySessions(rows *sql.Rows) ([]*model.EntrySession, error) {
	var sessions []*model.EntrySession
	for rows.Next() {
		s, err := scanEntrySession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanCheckInPrompt(row scannable) (*model.CheckInPrompt, error) {
	var p model.CheckInPrompt
	var (
		respondedAt sql.NullTime
		method      sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.EntrySessionID,
		&p.WorkerID,
		&p.PromptedAt,
		&respondedAt,
		&p.WasOnTime,
		&method,
	)
	if err != nil {
		return nil, err
	}
	p.Method = model.CheckInMethod(method.String)
	if respondedAt.Valid {
		t := respondedAt.Time
		p.RespondedAt = &t
	}
	return &p, nil
}

func scanCheckInPrompts(rows *sql.Rows) ([]*model.CheckInPrompt, error) {
	var prompts []*model.CheckInPrompt
	for rows.Next() {
		p, err := scanCheckInPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prompts, nil
}

func scanGasReading(row scannable) (*model.GasReading, error) {
	var r model.GasReading
	var gases []byte
	err := row.Scan(
		&r.ID,
		&r.SiteID,
		&gases,
		&r.O2,
		&r.IsDangerous,
		&r.Source,
		&r.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	if len(gases) > 0 {
		if err := json.Unmarshal(gases, &r.Gases); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func scanSite(row scannable) (*model.Site, error) {
	var s model.Site
	var (
		lat           sql.NullFloat64
		lng           sql.NullFloat64
		areaCode      sql.NullString
		riskLevel     sql.NullString
		riskUpdatedAt sql.NullTime
	)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&lat,
		&lng,
		&s.Capacity,
		&s.HasGasSensor,
		&areaCode,
		&s.CurrentRiskScore,
		&riskLevel,
		&riskUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.AreaCode = areaCode.String
	s.CurrentRiskLevel = model.RiskLevel(riskLevel.String)
	if lat.Valid && lng.Valid {
		s.Location = &model.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if riskUpdatedAt.Valid {
		t := riskUpdatedAt.Time
		s.RiskUpdatedAt = &t
	}
	return &s, nil
}

func scanSites(rows *sql.Rows) ([]*model.Site, error) {
	var sites []*model.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sites, nil
}

func scanSOSRecord(row scannable) (*model.SOSRecord, error) {
	var r model.SOSRecord
	var (
		entrySessionID sql.NullString
		lat            sql.NullFloat64
		lng            sql.NullFloat64
		hospitalName   sql.NullString
		hospitalKm     sql.NullFloat64
		fireName       sql.NullString
		fireKm         sql.NullFloat64
		resolvedAt     sql.NullTime
		outcome        sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.WorkerID,
		&entrySessionID,
		&lat,
		&lng,
		&r.TriggerMethod,
		&hospitalName,
		&hospitalKm,
		&fireName,
		&fireKm,
		&r.TriggeredAt,
		&resolvedAt,
		&outcome,
	)
	if err != nil {
		return nil, err
	}
	r.EntrySessionID = entrySessionID.String
	r.Outcome = outcome.String
	if lat.Valid && lng.Valid {
		r.Location = &model.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if hospitalName.Valid {
		r.NearestHospital = &model.Facility{Name: hospitalName.String, DistanceKm: hospitalKm.Float64}
	}
	if fireName.Valid {
		r.NearestFireStation = &model.Facility{Name: fireName.String, DistanceKm: fireKm.Float64}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

func scanShift(row scannable) (*model.ShiftFatigueState, error) {
	var s model.ShiftFatigueState
	var (
		endTime      sql.NullTime
		lastExitTime sql.NullTime
	)
	err := row.Scan(
		&s.ID,
		&s.WorkerID,
		&s.StartTime,
		&endTime,
		&s.EntryCount,
		&s.TotalUndergroundMinutes,
		&s.BreaksTaken,
		&s.FatigueScore,
		&lastExitTime,
	)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	if lastExitTime.Valid {
		t := lastExitTime.Time
		s.LastExitTime = &t
	}
	return &s, nil
}

func scanAuditEntry(row scannable) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var (
		userID   sql.NullString
		entityID sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&userID,
		&e.Action,
		&e.EntityType,
		&entityID,
		&e.Timestamp,
		&e.HashChain,
	)
	if err != nil {
		return nil, err
	}
	e.UserID = userID.String
	e.EntityID = entityID.String
	return &e, nil
}

func scanAuditEntries(rows *sql.Rows) ([]*model.AuditEntry, error) {
	var entries []*model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// gasesJSON encodes a gas concentration map for a JSONB column.
func gasesJSON(gases map[string]float64) ([]byte, error) {
	if len(gases) == 0 {
		return nil, nil
	}
	return json.Marshal(gases)
}

// factorsJSON encodes a risk factor breakdown for a JSONB column.
func factorsJSON(f model.RiskFactors) ([]byte, error) {
	return json.Marshal(f)
}

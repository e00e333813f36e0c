package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
)

// sessionColumns is the column list used for SELECT statements on the
// entry_sessions table.
const sessionColumns = `id, worker_id, site_id, entry_time, exit_time,
	allowed_duration_minutes, status, state, geo_verified,
	checklist_completed, shift_id, created_at, updated_at`

const promptColumns = `id, entry_session_id, worker_id, prompted_at,
	responded_at, was_on_time, method`

const gasColumns = `id, site_id, gases, o2, is_dangerous, source, read_at`

const siteColumns = `id, name, lat, lng, capacity, has_gas_sensor,
	area_code, current_risk_score, current_risk_level, risk_updated_at`

const sosColumns = `id, worker_id, entry_session_id, lat, lng,
	trigger_method, hospital_name, hospital_distance_km,
	fire_station_name, fire_station_distance_km, triggered_at,
	resolved_at, outcome`

const shiftColumns = `id, worker_id, start_time, end_time, entry_count,
	total_underground_minutes, breaks_taken, fatigue_score, last_exit_time`

const auditColumns = `id, user_id, action, entity_type, entity_id, ts, hash_chain`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateEntrySession(ctx context.Context, db executor, s *model.EntrySession) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entry_sessions (
			id, worker_id, site_id, entry_time, exit_time,
			allowed_duration_minutes, status, state, geo_verified,
			checklist_completed, shift_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		)`,
		s.ID,
		s.WorkerID,
		s.SiteID,
		s.EntryTime,
		nullTimePtr(s.ExitTime),
		s.AllowedDurationMinutes,
		string(s.Status),
		string(s.State),
		s.GeoVerified,
		s.ChecklistCompleted,
		nullString(s.ShiftID),
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func queryGetEntrySession(ctx context.Context, db executor, id string) (*model.EntrySession, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM entry_sessions WHERE id = $1`, id)
	s, err := scanEntrySession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func queryListEntrySessions(ctx context.Context, db executor, filter model.SessionFilter) ([]*model.EntrySession, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, st := range filter.States {
			placeholders[i] = nextArg()
			args = append(args, string(st))
		}
		whereClauses = append(whereClauses, "state IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = nextArg()
			args = append(args, string(st))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.SiteID != "" {
		whereClauses = append(whereClauses, "site_id = "+nextArg())
		args = append(args, filter.SiteID)
	}

	if filter.WorkerID != "" {
		whereClauses = append(whereClauses, "worker_id = "+nextArg())
		args = append(args, filter.WorkerID)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query := `SELECT ` + sessionColumns + ` FROM entry_sessions` + whereSQL + ` ORDER BY entry_time DESC`
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntrySessions(rows)
}

func queryUpdateEntrySession(ctx context.Context, db executor, s *model.EntrySession) error {
	res, err := db.ExecContext(ctx, `
		UPDATE entry_sessions SET
			exit_time = $2,
			allowed_duration_minutes = $3,
			status = $4,
			state = $5,
			geo_verified = $6,
			checklist_completed = $7,
			shift_id = $8,
			updated_at = $9
		WHERE id = $1`,
		s.ID,
		nullTimePtr(s.ExitTime),
		s.AllowedDurationMinutes,
		string(s.Status),
		string(s.State),
		s.GeoVerified,
		s.ChecklistCompleted,
		nullString(s.ShiftID),
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("entry session", s.ID)
	}
	return nil
}

func queryCountActiveAtSite(ctx context.Context, db executor, siteID string) (int, error) {
	live := []model.EntryState{
		model.StateEntered, model.StateActive, model.StateOverstayAlert,
		model.StateSOSTriggered, model.StateGasAlert, model.StateCheckinMissed,
	}
	placeholders := make([]string, len(live))
	args := []any{siteID}
	for i, st := range live {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, string(st))
	}
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entry_sessions WHERE site_id = $1 AND state IN (`+
			strings.Join(placeholders, ", ")+`)`, args...).Scan(&n)
	return n, err
}

func queryCreateCheckInPrompt(ctx context.Context, db executor, p *model.CheckInPrompt) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO checkin_prompts (
			id, entry_session_id, worker_id, prompted_at,
			responded_at, was_on_time, method
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID,
		p.EntrySessionID,
		p.WorkerID,
		p.PromptedAt,
		nullTimePtr(p.RespondedAt),
		p.WasOnTime,
		nullString(string(p.Method)),
	)
	return err
}

func queryGetCheckInPrompt(ctx context.Context, db executor, id string) (*model.CheckInPrompt, error) {
	row := db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM checkin_prompts WHERE id = $1`, id)
	p, err := scanCheckInPrompt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func queryUpdateCheckInPrompt(ctx context.Context, db executor, p *model.CheckInPrompt) error {
	res, err := db.ExecContext(ctx, `
		UPDATE checkin_prompts SET
			responded_at = $2,
			was_on_time = $3,
			method = $4
		WHERE id = $1`,
		p.ID,
		nullTimePtr(p.RespondedAt),
		p.WasOnTime,
		nullString(string(p.Method)),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("check-in prompt", p.ID)
	}
	return nil
}

func queryListCheckInPrompts(ctx context.Context, db executor, entrySessionID string) ([]*model.CheckInPrompt, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+promptColumns+` FROM checkin_prompts WHERE entry_session_id = $1 ORDER BY prompted_at DESC`,
		entrySessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCheckInPrompts(rows)
}

func queryLatestCheckInPrompt(ctx context.Context, db executor, entrySessionID string) (*model.CheckInPrompt, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM checkin_prompts WHERE entry_session_id = $1 ORDER BY prompted_at DESC LIMIT 1`,
		entrySessionID)
	p, err := scanCheckInPrompt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func queryRecordGasReading(ctx context.Context, db executor, r *model.GasReading) error {
	gases, err := gasesJSON(r.Gases)
	if err != nil {
		return fmt.Errorf("encode gases: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO gas_readings (
			id, site_id, gases, o2, is_dangerous, source, read_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID,
		r.SiteID,
		gases,
		r.O2,
		r.IsDangerous,
		string(r.Source),
		r.ReadAt,
	)
	return err
}

func queryLatestGasReading(ctx context.Context, db executor, siteID string) (*model.GasReading, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+gasColumns+` FROM gas_readings WHERE site_id = $1 ORDER BY read_at DESC LIMIT 1`,
		siteID)
	r, err := scanGasReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func queryCreateRiskAssessment(ctx context.Context, db executor, a *model.RiskAssessment) error {
	factors, err := factorsJSON(a.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO risk_assessments (
			id, site_id, risk_score, risk_level, factors, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID,
		a.SiteID,
		a.RiskScore,
		string(a.RiskLevel),
		factors,
		a.CalculatedAt,
	)
	return err
}

func queryCreateSite(ctx context.Context, db executor, s *model.Site) error {
	var lat, lng sql.NullFloat64
	if s.Location != nil {
		lat = sql.NullFloat64{Float64: s.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: s.Location.Lng, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sites (
			id, name, lat, lng, capacity, has_gas_sensor, area_code,
			current_risk_score, current_risk_level, risk_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID,
		s.Name,
		lat,
		lng,
		s.Capacity,
		s.HasGasSensor,
		nullString(s.AreaCode),
		s.CurrentRiskScore,
		nullString(string(s.CurrentRiskLevel)),
		nullTimePtr(s.RiskUpdatedAt),
	)
	return err
}

func queryGetSite(ctx context.Context, db executor, id string) (*model.Site, error) {
	row := db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	s, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func queryListSites(ctx context.Context, db executor) ([]*model.Site, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSites(rows)
}

func queryUpdateSiteRisk(ctx context.Context, db executor, siteID string, score int, level model.RiskLevel, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sites SET
			current_risk_score = $2,
			current_risk_level = $3,
			risk_updated_at = $4
		WHERE id = $1`,
		siteID, score, string(level), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("site", siteID)
	}
	return nil
}

func queryReportBlockage(ctx context.Context, db executor, siteID string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO blockage_reports (site_id, reported_at) VALUES ($1, $2)`,
		siteID, at)
	return err
}

func queryCountBlockages(ctx context.Context, db executor, siteID string, since time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blockage_reports WHERE site_id = $1 AND reported_at >= $2`,
		siteID, since).Scan(&n)
	return n, err
}

func queryCountSiteIncidents(ctx context.Context, db executor, siteID string, since time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE site_id = $1 AND occurred_at >= $2`,
		siteID, since).Scan(&n)
	return n, err
}

func queryCountAreaIncidents(ctx context.Context, db executor, areaCode string, since time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM incidents i
		JOIN sites s ON i.site_id = s.id
		WHERE s.area_code = $1 AND i.occurred_at >= $2`,
		areaCode, since).Scan(&n)
	return n, err
}

func queryCreateSOSRecord(ctx context.Context, db executor, r *model.SOSRecord) error {
	var lat, lng sql.NullFloat64
	if r.Location != nil {
		lat = sql.NullFloat64{Float64: r.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: r.Location.Lng, Valid: true}
	}
	hospitalName, hospitalKm := facilityFields(r.NearestHospital)
	fireName, fireKm := facilityFields(r.NearestFireStation)
	_, err := db.ExecContext(ctx, `
		INSERT INTO sos_records (
			id, worker_id, entry_session_id, lat, lng,
			trigger_method, hospital_name, hospital_distance_km,
			fire_station_name, fire_station_distance_km, triggered_at,
			resolved_at, outcome
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13
		)`,
		r.ID,
		r.WorkerID,
		nullString(r.EntrySessionID),
		lat,
		lng,
		string(r.TriggerMethod),
		hospitalName,
		hospitalKm,
		fireName,
		fireKm,
		r.TriggeredAt,
		nullTimePtr(r.ResolvedAt),
		nullString(r.Outcome),
	)
	return err
}

func queryGetSOSRecord(ctx context.Context, db executor, id string) (*model.SOSRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sosColumns+` FROM sos_records WHERE id = $1`, id)
	r, err := scanSOSRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func queryUpdateSOSRecord(ctx context.Context, db executor, r *model.SOSRecord) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sos_records SET
			resolved_at = $2,
			outcome = $3
		WHERE id = $1`,
		r.ID, nullTimePtr(r.ResolvedAt), nullString(r.Outcome))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("sos record", r.ID)
	}
	return nil
}

func queryCreateIncident(ctx context.Context, db executor, inc *model.Incident) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, site_id, worker_id, entry_session_id, severity,
			description, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inc.ID,
		nullString(inc.SiteID),
		nullString(inc.WorkerID),
		nullString(inc.EntrySessionID),
		string(inc.Severity),
		inc.Description,
		inc.OccurredAt,
	)
	return err
}

func queryGetActiveShift(ctx context.Context, db executor, workerID string) (*model.ShiftFatigueState, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE worker_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC LIMIT 1`,
		workerID)
	s, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func queryCreateShift(ctx context.Context, db executor, s *model.ShiftFatigueState) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO shifts (
			id, worker_id, start_time, end_time, entry_count,
			total_underground_minutes, breaks_taken, fatigue_score,
			last_exit_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID,
		s.WorkerID,
		s.StartTime,
		nullTimePtr(s.EndTime),
		s.EntryCount,
		s.TotalUndergroundMinutes,
		s.BreaksTaken,
		s.FatigueScore,
		nullTimePtr(s.LastExitTime),
	)
	return err
}

func queryUpdateShift(ctx context.Context, db executor, s *model.ShiftFatigueState) error {
	res, err := db.ExecContext(ctx, `
		UPDATE shifts SET
			end_time = $2,
			entry_count = $3,
			total_underground_minutes = $4,
			breaks_taken = $5,
			fatigue_score = $6,
			last_exit_time = $7
		WHERE id = $1`,
		s.ID,
		nullTimePtr(s.EndTime),
		s.EntryCount,
		s.TotalUndergroundMinutes,
		s.BreaksTaken,
		s.FatigueScore,
		nullTimePtr(s.LastExitTime),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("shift", s.ID)
	}
	return nil
}

func queryAppendAuditEntry(ctx context.Context, db executor, e *model.AuditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, user_id, action, entity_type, entity_id, ts, hash_chain
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID,
		nullString(e.UserID),
		e.Action,
		e.EntityType,
		nullString(e.EntityID),
		e.Timestamp,
		e.HashChain,
	)
	return err
}

func queryLatestAuditEntry(ctx context.Context, db executor) (*model.AuditEntry, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log ORDER BY seq DESC LIMIT 1`)
	e, err := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func queryListAuditEntries(ctx context.Context, db executor, rng *model.AuditRange) ([]*model.AuditEntry, error) {
	var (
		whereClauses []string
		args         []any
	)
	if rng != nil && !rng.From.IsZero() {
		args = append(args, rng.From)
		whereClauses = append(whereClauses, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if rng != nil && !rng.To.IsZero() {
		args = append(args, rng.To)
		whereClauses = append(whereClauses, fmt.Sprintf("ts <= $%d", len(args)))
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log`+whereSQL+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// facilityFields flattens an optional facility into its nullable columns.
func facilityFields(f *model.Facility) (sql.NullString, sql.NullFloat64) {
	if f == nil {
		return sql.NullString{}, sql.NullFloat64{}
	}
	return sql.NullString{String: f.Name, Valid: true},
		sql.NullFloat64{Float64: f.DistanceKm, Valid: true}
}

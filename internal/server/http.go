package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldward/manholeguard/internal/escalate"
	"github.com/fieldward/manholeguard/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *GuardServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/entries", s.handleStartEntry)
	mux.HandleFunc("GET /v1/entries", s.handleListEntries)
	mux.HandleFunc("GET /v1/entries/{id}", s.handleGetEntry)
	mux.HandleFunc("POST /v1/entries/{id}/exit", s.handleConfirmExit)
	mux.HandleFunc("POST /v1/checkins/{id}/respond", s.handleRespondToCheckIn)
	mux.HandleFunc("POST /v1/sos", s.handleTriggerSOS)
	mux.HandleFunc("GET /v1/sos/{id}", s.handleGetSOS)
	mux.HandleFunc("POST /v1/sos/{id}/resolve", s.handleResolveSOS)
	mux.HandleFunc("POST /v1/sites", s.handleRegisterSite)
	mux.HandleFunc("GET /v1/sites", s.handleListSites)
	mux.HandleFunc("GET /v1/sites/{id}", s.handleGetSite)
	mux.HandleFunc("POST /v1/sites/{id}/risk", s.handlePredictRisk)
	mux.HandleFunc("POST /v1/sites/{id}/blockages", s.handleReportBlockage)
	mux.HandleFunc("POST /v1/sites/{id}/gas", s.handleRecordGasReading)
	mux.HandleFunc("POST /v1/shifts", s.handleStartShift)
	mux.HandleFunc("POST /v1/shifts/end", s.handleEndShift)
	mux.HandleFunc("GET /v1/audit/verify", s.handleVerifyIntegrity)
	mux.HandleFunc("POST /v1/watchdog/tick", s.handleTick)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// actor identifies who performed the request, for the audit chain.
func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

func (s *GuardServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *GuardServer) handleStartEntry(w http.ResponseWriter, r *http.Request) {
	var req StartEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.StartEntry(r.Context(), actor(r), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *GuardServer) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.SessionFilter{
		SiteID:   q.Get("site_id"),
		WorkerID: q.Get("worker_id"),
	}
	if q.Get("live") == "1" || q.Get("live") == "true" {
		filter.States = []model.EntryState{
			model.StateEntered, model.StateActive, model.StateOverstayAlert,
			model.StateSOSTriggered, model.StateGasAlert, model.StateCheckinMissed,
		}
	}
	sessions, err := s.ListEntrySessions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": sessions})
}

func (s *GuardServer) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	session, err := s.GetEntrySession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *GuardServer) handleConfirmExit(w http.ResponseWriter, r *http.Request) {
	session, err := s.ConfirmExit(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *GuardServer) handleRespondToCheckIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method model.CheckInMethod `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	prompt, err := s.RespondToCheckIn(r.Context(), actor(r), r.PathValue("id"), req.Method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (s *GuardServer) handleTriggerSOS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerID       string                 `json:"worker_id"`
		EntrySessionID string                 `json:"entry_session_id"`
		Location       *model.Location        `json:"location"`
		Method         model.SOSTriggerMethod `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Method == "" {
		req.Method = model.TriggerManual
	}
	record, err := s.TriggerSOS(r.Context(), actor(r), escalate.SOSRequest{
		WorkerID:       req.WorkerID,
		EntrySessionID: req.EntrySessionID,
		Location:       req.Location,
		Method:         req.Method,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *GuardServer) handleGetSOS(w http.ResponseWriter, r *http.Request) {
	record, err := s.GetSOSRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *GuardServer) handleResolveSOS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.ResolveSOS(r.Context(), actor(r), r.PathValue("id"), req.Outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *GuardServer) handleRegisterSite(w http.ResponseWriter, r *http.Request) {
	var site model.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.RegisterSite(r.Context(), actor(r), &site)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *GuardServer) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.ListSites(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *GuardServer) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.GetSite(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *GuardServer) handlePredictRisk(w http.ResponseWriter, r *http.Request) {
	assessment, err := s.PredictRisk(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *GuardServer) handleReportBlockage(w http.ResponseWriter, r *http.Request) {
	if err := s.ReportBlockage(r.Context(), actor(r), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *GuardServer) handleRecordGasReading(w http.ResponseWriter, r *http.Request) {
	var req GasReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SiteID = r.PathValue("id")
	reading, err := s.RecordGasReading(r.Context(), actor(r), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func (s *GuardServer) handleStartShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerID string `json:"worker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shift, err := s.StartShift(r.Context(), actor(r), req.WorkerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

func (s *GuardServer) handleEndShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerID string `json:"worker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shift, err := s.EndShift(r.Context(), actor(r), req.WorkerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (s *GuardServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	rng, err := parseAuditRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.VerifyIntegrity(r.Context(), rng)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *GuardServer) handleTick(w http.ResponseWriter, r *http.Request) {
	if err := s.Tick(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scanned"})
}

// parseAuditRange reads optional RFC3339 from/to query parameters.
func parseAuditRange(r *http.Request) (*model.AuditRange, error) {
	fromStr, toStr := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromStr == "" && toStr == "" {
		return nil, nil
	}
	var rng model.AuditRange
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, errors.New("from: invalid RFC3339 timestamp")
		}
		rng.From = t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, errors.New("to: invalid RFC3339 timestamp")
		}
		rng.To = t
	}
	return &rng, nil
}

// writeDomainError maps domain error types onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation model.ValidationError
		notFound   *model.NotFoundError
		state      *model.StateError
		denied     *model.DeniedError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":  err.Error(),
			"reason": string(denied.Reason),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

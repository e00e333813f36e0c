package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
)

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Actor", "test-actor")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestHTTP_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.NewHTTPHandler(), "GET", "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHTTP_EntryLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.NewHTTPHandler()

	rec := doJSON(t, h, "POST", "/v1/sites", map[string]any{
		"id": "mh-1", "name": "Pump station 4 access", "area_code": "A1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register site status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "POST", "/v1/entries", map[string]any{
		"worker_id": "w-1", "site_id": "mh-1", "checklist_completed": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start entry status = %d, body %s", rec.Code, rec.Body)
	}
	session := decode[model.EntrySession](t, rec)
	if session.State != model.StateEntered {
		t.Errorf("state = %s, want ENTERED", session.State)
	}

	rec = doJSON(t, h, "GET", "/v1/entries/"+session.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get entry status = %d", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/v1/entries?live=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list entries status = %d", rec.Code)
	}
	list := decode[struct {
		Entries []*model.EntrySession `json:"entries"`
	}](t, rec)
	if len(list.Entries) != 1 {
		t.Errorf("live entries = %d, want 1", len(list.Entries))
	}

	rec = doJSON(t, h, "POST", "/v1/entries/"+session.ID+"/exit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("exit status = %d, body %s", rec.Code, rec.Body)
	}

	// Second exit conflicts.
	rec = doJSON(t, h, "POST", "/v1/entries/"+session.ID+"/exit", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double exit status = %d, want 409", rec.Code)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	srv, st := newTestServer(t)
	registerTestSite(t, st)
	h := srv.NewHTTPHandler()

	// Malformed body.
	req := httptest.NewRequest("POST", "/v1/entries", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}

	// Validation failure.
	rec = doJSON(t, h, "POST", "/v1/entries", map[string]any{"worker_id": "w-1", "site_id": "mh-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("checklist missing status = %d, want 400", rec.Code)
	}

	// Unknown entity.
	rec = doJSON(t, h, "GET", "/v1/entries/en-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entry status = %d, want 404", rec.Code)
	}

	// Clearance refusal carries the machine-readable reason.
	err := st.RecordGasReading(context.Background(), &model.GasReading{
		ID: "gr-1", SiteID: "mh-1", Gases: map[string]float64{"h2s": 20},
		O2: 20.9, IsDangerous: true, ReadAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	rec = doJSON(t, h, "POST", "/v1/entries", map[string]any{
		"worker_id": "w-1", "site_id": "mh-1", "checklist_completed": true,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("denied status = %d, want 403", rec.Code)
	}
	denial := decode[struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}](t, rec)
	if denial.Reason != string(model.DenyGasUnsafe) {
		t.Errorf("reason = %q, want GAS_UNSAFE", denial.Reason)
	}
}

func TestHTTP_SOS(t *testing.T) {
	srv, st := newTestServer(t)
	registerTestSite(t, st)
	h := srv.NewHTTPHandler()

	rec := doJSON(t, h, "POST", "/v1/sos", map[string]any{"worker_id": "w-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("trigger status = %d, body %s", rec.Code, rec.Body)
	}
	record := decode[model.SOSRecord](t, rec)
	if record.TriggerMethod != model.TriggerManual {
		t.Errorf("method = %s, want manual default", record.TriggerMethod)
	}

	rec = doJSON(t, h, "GET", "/v1/sos/"+record.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/v1/sos/"+record.ID+"/resolve", map[string]any{"outcome": "rescued"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "POST", "/v1/sos/"+record.ID+"/resolve", map[string]any{"outcome": "again"})
	if rec.Code != http.StatusConflict {
		t.Errorf("double resolve status = %d, want 409", rec.Code)
	}
}

func TestHTTP_GasAndRisk(t *testing.T) {
	srv, st := newTestServer(t)
	registerTestSite(t, st)
	h := srv.NewHTTPHandler()

	rec := doJSON(t, h, "POST", "/v1/sites/mh-1/gas", map[string]any{
		"gases": map[string]float64{"co": 5}, "o2": 20.9,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("gas status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "POST", "/v1/sites/mh-1/blockages", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("blockage status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, "POST", "/v1/sites/mh-1/risk", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("risk status = %d, body %s", rec.Code, rec.Body)
	}
	assessment := decode[model.RiskAssessment](t, rec)
	if assessment.SiteID != "mh-1" || assessment.RiskLevel == "" {
		t.Errorf("assessment = %+v", assessment)
	}
}

func TestHTTP_AuditVerify(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.NewHTTPHandler()

	rec := doJSON(t, h, "GET", "/v1/audit/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}
	report := decode[model.IntegrityReport](t, rec)
	if !report.Valid {
		t.Errorf("report = %+v, want valid", report)
	}

	rec = doJSON(t, h, "GET", "/v1/audit/verify?from=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp status = %d, want 400", rec.Code)
	}
}

func TestHTTP_TickWithoutWatchdog(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.NewHTTPHandler(), "POST", "/v1/watchdog/tick", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("tick status = %d, want 409", rec.Code)
	}
}

// Package memory implements store.Store with in-process maps. It backs
// unit tests and the daemon's --dev mode; production deployments use the
// postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// Store is an in-memory store.Store implementation. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	sessions    map[string]*model.EntrySession
	prompts     map[string]*model.CheckInPrompt
	readings    []*model.GasReading
	assessments []*model.RiskAssessment
	sites       map[string]*model.Site
	sosRecords  map[string]*model.SOSRecord
	incidents   []*model.Incident
	shifts      map[string]*model.ShiftFatigueState
	auditLog    []*model.AuditEntry
	blockages   map[string][]time.Time // siteID -> report times
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]*model.EntrySession),
		prompts:    make(map[string]*model.CheckInPrompt),
		sites:      make(map[string]*model.Site),
		sosRecords: make(map[string]*model.SOSRecord),
		shifts:     make(map[string]*model.ShiftFatigueState),
		blockages:  make(map[string][]time.Time),
	}
}

func (m *Store) CreateEntrySession(_ context.Context, s *model.EntrySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *Store) GetEntrySession(_ context.Context, id string) (*model.EntrySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *Store) ListEntrySessions(_ context.Context, filter model.SessionFilter) ([]*model.EntrySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.EntrySession
	for _, s := range m.sessions {
		if !matchSession(s, filter) {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchSession(s *model.EntrySession, f model.SessionFilter) bool {
	if f.SiteID != "" && s.SiteID != f.SiteID {
		return false
	}
	if f.WorkerID != "" && s.WorkerID != f.WorkerID {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, st := range f.States {
			if s.State == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Store) UpdateEntrySession(_ context.Context, s *model.EntrySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return model.NotFound("entry session", s.ID)
	}
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *Store) CountActiveAtSite(_ context.Context, siteID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.SiteID == siteID && s.State.Live() {
			n++
		}
	}
	return n, nil
}

func (m *Store) CreateCheckInPrompt(_ context.Context, p *model.CheckInPrompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.prompts[p.ID] = &c
	return nil
}

func (m *Store) GetCheckInPrompt(_ context.Context, id string) (*model.CheckInPrompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prompts[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (m *Store) UpdateCheckInPrompt(_ context.Context, p *model.CheckInPrompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[p.ID]; !ok {
		return model.NotFound("check-in prompt", p.ID)
	}
	c := *p
	m.prompts[p.ID] = &c
	return nil
}

func (m *Store) ListCheckInPrompts(_ context.Context, entrySessionID string) ([]*model.CheckInPrompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CheckInPrompt
	for _, p := range m.prompts {
		if p.EntrySessionID != entrySessionID {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	// Most recent first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].PromptedAt.After(out[j].PromptedAt)
	})
	return out, nil
}

func (m *Store) LatestCheckInPrompt(ctx context.Context, entrySessionID string) (*model.CheckInPrompt, error) {
	prompts, err := m.ListCheckInPrompts(ctx, entrySessionID)
	if err != nil || len(prompts) == 0 {
		return nil, err
	}
	return prompts[0], nil
}

func (m *Store) RecordGasReading(_ context.Context, r *model.GasReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.readings = append(m.readings, &c)
	return nil
}

func (m *Store) LatestGasReading(_ context.Context, siteID string) (*model.GasReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.GasReading
	for _, r := range m.readings {
		if r.SiteID != siteID {
			continue
		}
		if latest == nil || r.ReadAt.After(latest.ReadAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (m *Store) CreateRiskAssessment(_ context.Context, a *model.RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.assessments = append(m.assessments, &c)
	return nil
}

// Assessments returns all recorded risk assessments, oldest first.
func (m *Store) Assessments() []*model.RiskAssessment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.RiskAssessment, len(m.assessments))
	copy(out, m.assessments)
	return out
}

func (m *Store) GetSite(_ context.Context, id string) (*model.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *Store) ListSites(_ context.Context) ([]*model.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Site
	for _, s := range m.sites {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) CreateSite(_ context.Context, s *model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[s.ID]; ok {
		return model.Validationf("site %s already exists", s.ID)
	}
	c := *s
	m.sites[s.ID] = &c
	return nil
}

// PutSite registers or replaces a site. Sites are reference data seeded at
// startup or by tests.
func (m *Store) PutSite(s *model.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sites[s.ID] = &c
}

func (m *Store) UpdateSiteRisk(_ context.Context, siteID string, score int, level model.RiskLevel, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[siteID]
	if !ok {
		return model.NotFound("site", siteID)
	}
	s.CurrentRiskScore = score
	s.CurrentRiskLevel = level
	s.RiskUpdatedAt = &at
	return nil
}

func (m *Store) ReportBlockage(_ context.Context, siteID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockages[siteID] = append(m.blockages[siteID], at)
	return nil
}

// AddBlockage records a blockage report for a site at the given time.
// Test convenience wrapper around ReportBlockage.
func (m *Store) AddBlockage(siteID string, at time.Time) {
	_ = m.ReportBlockage(context.Background(), siteID, at)
}

func (m *Store) CountBlockages(_ context.Context, siteID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, at := range m.blockages[siteID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Store) CountSiteIncidents(_ context.Context, siteID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inc := range m.incidents {
		if inc.SiteID == siteID && !inc.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Store) CountAreaIncidents(_ context.Context, areaCode string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inc := range m.incidents {
		if inc.OccurredAt.Before(since) {
			continue
		}
		site, ok := m.sites[inc.SiteID]
		if ok && site.AreaCode == areaCode {
			n++
		}
	}
	return n, nil
}

func (m *Store) CreateSOSRecord(_ context.Context, r *model.SOSRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.sosRecords[r.ID] = &c
	return nil
}

func (m *Store) GetSOSRecord(_ context.Context, id string) (*model.SOSRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.sosRecords[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *Store) UpdateSOSRecord(_ context.Context, r *model.SOSRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sosRecords[r.ID]; !ok {
		return model.NotFound("sos record", r.ID)
	}
	c := *r
	m.sosRecords[r.ID] = &c
	return nil
}

func (m *Store) CreateIncident(_ context.Context, inc *model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *inc
	m.incidents = append(m.incidents, &c)
	return nil
}

// Incidents returns all recorded incidents, oldest first.
func (m *Store) Incidents() []*model.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Incident, len(m.incidents))
	copy(out, m.incidents)
	return out
}

func (m *Store) GetActiveShift(_ context.Context, workerID string) (*model.ShiftFatigueState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sh := range m.shifts {
		if sh.WorkerID == workerID && sh.Active() {
			c := *sh
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Store) CreateShift(_ context.Context, sh *model.ShiftFatigueState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *sh
	m.shifts[sh.ID] = &c
	return nil
}

func (m *Store) UpdateShift(_ context.Context, sh *model.ShiftFatigueState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[sh.ID]; !ok {
		return model.NotFound("shift", sh.ID)
	}
	c := *sh
	m.shifts[sh.ID] = &c
	return nil
}

func (m *Store) AppendAuditEntry(_ context.Context, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *e
	m.auditLog = append(m.auditLog, &c)
	return nil
}

func (m *Store) LatestAuditEntry(_ context.Context) (*model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.auditLog) == 0 {
		return nil, nil
	}
	c := *m.auditLog[len(m.auditLog)-1]
	return &c, nil
}

func (m *Store) ListAuditEntries(_ context.Context, rng *model.AuditRange) ([]*model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.AuditEntry
	for _, e := range m.auditLog {
		if rng != nil {
			if !rng.From.IsZero() && e.Timestamp.Before(rng.From) {
				continue
			}
			if !rng.To.IsZero() && e.Timestamp.After(rng.To) {
				continue
			}
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// TamperAuditEntry mutates a stored audit entry in place. Test hook for
// integrity verification; no production caller.
func (m *Store) TamperAuditEntry(id string, fn func(*model.AuditEntry)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.auditLog {
		if e.ID == id {
			fn(e)
			return true
		}
	}
	return false
}

// RunInTransaction runs fn against the store itself; the in-memory store
// has no transaction isolation.
func (m *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *Store) Close() error {
	return nil
}

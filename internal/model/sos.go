package model

import "time"

// SOSTriggerMethod records how an SOS was raised.
type SOSTriggerMethod string

const (
	TriggerManual        SOSTriggerMethod = "manual"         // worker pressed the button
	TriggerMissedCheckin SOSTriggerMethod = "missed_checkin" // dead man's switch fired
	TriggerOverstay      SOSTriggerMethod = "overstay"
	TriggerGasDanger     SOSTriggerMethod = "gas_danger"
)

// String returns the string representation of the trigger method.
func (m SOSTriggerMethod) String() string {
	return string(m)
}

// IsValid checks whether the trigger method is a known value.
func (m SOSTriggerMethod) IsValid() bool {
	switch m {
	case TriggerManual, TriggerMissedCheckin, TriggerOverstay, TriggerGasDanger:
		return true
	}
	return false
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Facility is a nearby emergency facility resolved best-effort at SOS time.
type Facility struct {
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distance_km"`
}

// SOSRecord is one emergency dispatch. Created by the escalation
// dispatcher; mutated only by resolution.
type SOSRecord struct {
	ID                 string           `json:"id"`
	WorkerID           string           `json:"worker_id"`
	EntrySessionID     string           `json:"entry_session_id,omitempty"`
	Location           *Location        `json:"location,omitempty"`
	TriggerMethod      SOSTriggerMethod `json:"trigger_method"`
	NearestHospital    *Facility        `json:"nearest_hospital,omitempty"`
	NearestFireStation *Facility        `json:"nearest_fire_station,omitempty"`
	TriggeredAt        time.Time        `json:"triggered_at"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
	Outcome            string           `json:"outcome,omitempty"`
}

// Resolved reports whether the SOS has been closed out.
func (r *SOSRecord) Resolved() bool {
	return r.ResolvedAt != nil
}

// IncidentSeverity ranks an incident.
type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "LOW"
	SeverityMedium   IncidentSeverity = "MEDIUM"
	SeverityHigh     IncidentSeverity = "HIGH"
	SeverityCritical IncidentSeverity = "CRITICAL"
)

// Incident is a safety incident record. The escalation dispatcher creates
// a CRITICAL incident for every session-bound SOS.
type Incident struct {
	ID             string           `json:"id"`
	SiteID         string           `json:"site_id,omitempty"`
	WorkerID       string           `json:"worker_id,omitempty"`
	EntrySessionID string           `json:"entry_session_id,omitempty"`
	Severity       IncidentSeverity `json:"severity"`
	Description    string           `json:"description"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

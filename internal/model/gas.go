package model

import "time"

// GasReadingSource identifies where a reading came from.
type GasReadingSource string

const (
	SourceFixedSensor    GasReadingSource = "fixed_sensor"
	SourcePortableSensor GasReadingSource = "portable_sensor"
	SourceManualEntry    GasReadingSource = "manual"
)

// GasReading is one multi-gas/oxygen sample for a site. Append-only.
//
// Gases maps a gas key (e.g. "co", "h2s", "ch4") to its measured
// concentration in that gas's native unit (ppm or %LEL).
type GasReading struct {
	ID          string             `json:"id"`
	SiteID      string             `json:"site_id"`
	Gases       map[string]float64 `json:"gases"`
	O2          float64            `json:"o2"`
	IsDangerous bool               `json:"is_dangerous"`
	Source      GasReadingSource   `json:"source"`
	ReadAt      time.Time          `json:"read_at"`
}

// Age returns how old the reading is as of now.
func (r *GasReading) Age(now time.Time) time.Duration {
	return now.Sub(r.ReadAt)
}

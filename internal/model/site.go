package model

import "time"

// Site is a registered confined-space work site (a manhole or equivalent).
type Site struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Location     *Location  `json:"location,omitempty"`
	Capacity     int        `json:"capacity"` // max concurrent workers underground
	HasGasSensor bool       `json:"has_gas_sensor"`
	AreaCode     string     `json:"area_code,omitempty"`

	// Current risk fields, refreshed on every risk prediction.
	CurrentRiskScore int        `json:"current_risk_score"`
	CurrentRiskLevel RiskLevel  `json:"current_risk_level,omitempty"`
	RiskUpdatedAt    *time.Time `json:"risk_updated_at,omitempty"`
}

package model

import "time"

// RiskLevel classifies a weighted risk score.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "SAFE"
	RiskCaution    RiskLevel = "CAUTION"
	RiskProhibited RiskLevel = "PROHIBITED"
)

// String returns the string representation of the risk level.
func (l RiskLevel) String() string {
	return string(l)
}

// LevelForScore maps a 0-100 risk score onto a risk level.
// Thresholds: score < 30 is SAFE, < 60 is CAUTION, else PROHIBITED.
func LevelForScore(score int) RiskLevel {
	switch {
	case score < 30:
		return RiskSafe
	case score < 60:
		return RiskCaution
	default:
		return RiskProhibited
	}
}

// RiskFactors is the per-factor breakdown behind a risk score. Each factor
// is normalized to 0-100 before weighting.
type RiskFactors struct {
	BlockageFrequency float64 `json:"blockage_frequency"`
	IncidentFactor    float64 `json:"incident_factor"`
	RainfallFactor    float64 `json:"rainfall_factor"`
	AreaRisk          float64 `json:"area_risk"`
	GasFactor         float64 `json:"gas_factor"`
	WeatherFactor     float64 `json:"weather_factor"`
}

// RiskAssessment is one prediction for a site. Assessments are superseded
// by newer ones, never updated in place.
type RiskAssessment struct {
	ID           string      `json:"id"`
	SiteID       string      `json:"site_id"`
	RiskScore    int         `json:"risk_score"`
	RiskLevel    RiskLevel   `json:"risk_level"`
	Factors      RiskFactors `json:"factors"`
	CalculatedAt time.Time   `json:"calculated_at"`
}

// DenialReason is the machine-readable code attached to a refused entry.
type DenialReason string

const (
	DenyRiskProhibited      DenialReason = "RISK_PROHIBITED"
	DenyCertsExpired        DenialReason = "CERTS_EXPIRED"
	DenyMaxEntries          DenialReason = "MAX_ENTRIES_REACHED"
	DenyMaxUndergroundTime  DenialReason = "MAX_UNDERGROUND_TIME_REACHED"
	DenyRestRequired        DenialReason = "REST_REQUIRED"
	DenyShiftExceeded       DenialReason = "SHIFT_EXCEEDED"
	DenyGasUnsafe           DenialReason = "GAS_UNSAFE"
	DenyWeatherUnsafe       DenialReason = "WEATHER_UNSAFE"
	DenyManholeFull         DenialReason = "MANHOLE_FULL"
)

// String returns the string representation of the denial reason.
func (r DenialReason) String() string {
	return string(r)
}

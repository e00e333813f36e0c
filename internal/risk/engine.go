// Package risk scores site risk and gates entry clearance.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fieldward/manholeguard/internal/fatigue"
	"github.com/fieldward/manholeguard/internal/gas"
	"github.com/fieldward/manholeguard/internal/idgen"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/oracle"
	"github.com/fieldward/manholeguard/internal/store"
)

// Factor weights. Must sum to 1.
const (
	weightBlockage = 0.25
	weightIncident = 0.20
	weightRainfall = 0.15
	weightArea     = 0.10
	weightGas      = 0.20
	weightWeather  = 0.10
)

// lookback is the rolling window for blockage and incident counts.
const lookback = 30 * 24 * time.Hour

// gasFactorDefault is the conservative gas factor assumed when a site has
// no reading on file.
const gasFactorDefault = 40

// weatherUnsafeAt is the weather factor at or above which entry clearance
// is refused outright.
const weatherUnsafeAt = 70

// Engine computes weighted risk scores and entry clearance decisions.
type Engine struct {
	store    store.Store
	gas      *gas.Evaluator
	fatigue  *fatigue.Guard
	weather  oracle.WeatherOracle
	rainfall oracle.RainfallOracle
	certs    oracle.CertificationChecker
	logger   *slog.Logger
}

// New wires an engine from its collaborators.
func New(s store.Store, g *gas.Evaluator, f *fatigue.Guard,
	weather oracle.WeatherOracle, rainfall oracle.RainfallOracle,
	certs oracle.CertificationChecker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store: s, gas: g, fatigue: f,
		weather: weather, rainfall: rainfall, certs: certs,
		logger: logger,
	}
}

// PredictRisk computes the six-factor weighted risk score for a site,
// persists the assessment, and refreshes the site's current risk fields.
// A failing oracle degrades its factor to 0 rather than aborting; the
// safety-critical factors come from the store and do abort on error.
func (e *Engine) PredictRisk(ctx context.Context, siteID string) (*model.RiskAssessment, error) {
	site, err := e.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, model.NotFound("site", siteID)
	}

	now := time.Now().UTC()
	since := now.Add(-lookback)

	blockages, err := e.store.CountBlockages(ctx, siteID, since)
	if err != nil {
		return nil, fmt.Errorf("counting blockages: %w", err)
	}
	siteIncidents, err := e.store.CountSiteIncidents(ctx, siteID, since)
	if err != nil {
		return nil, fmt.Errorf("counting site incidents: %w", err)
	}
	areaIncidents, err := e.store.CountAreaIncidents(ctx, site.AreaCode, since)
	if err != nil {
		return nil, fmt.Errorf("counting area incidents: %w", err)
	}

	factors := model.RiskFactors{
		BlockageFrequency: math.Min(100, float64(blockages)*20),
		IncidentFactor:    math.Min(100, float64(siteIncidents)*15),
		AreaRisk:          math.Min(100, float64(areaIncidents)*10),
		RainfallFactor:    e.oracleFactor(ctx, siteID, "rainfall", e.rainfall.RainfallFactor),
		WeatherFactor:     e.oracleFactor(ctx, siteID, "weather", e.weather.WeatherFactor),
		GasFactor:         float64(e.gasFactor(ctx, siteID)),
	}

	score := int(math.Round(
		factors.BlockageFrequency*weightBlockage +
			factors.IncidentFactor*weightIncident +
			factors.RainfallFactor*weightRainfall +
			factors.AreaRisk*weightArea +
			factors.GasFactor*weightGas +
			factors.WeatherFactor*weightWeather))

	id, err := idgen.GenerateWithPrefix(idgen.PrefixAssessment)
	if err != nil {
		return nil, fmt.Errorf("generating assessment id: %w", err)
	}
	assessment := &model.RiskAssessment{
		ID:           id,
		SiteID:       siteID,
		RiskScore:    score,
		RiskLevel:    model.LevelForScore(score),
		Factors:      factors,
		CalculatedAt: now,
	}

	if err := e.store.CreateRiskAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("persisting assessment: %w", err)
	}
	if err := e.store.UpdateSiteRisk(ctx, siteID, score, assessment.RiskLevel, now); err != nil {
		return nil, fmt.Errorf("updating site risk: %w", err)
	}
	return assessment, nil
}

// oracleFactor fetches one oracle factor, degrading to 0 on failure.
func (e *Engine) oracleFactor(ctx context.Context, siteID, name string,
	fetch func(context.Context, string) (float64, error)) float64 {
	factor, err := fetch(ctx, siteID)
	if err != nil {
		e.logger.Warn("oracle unavailable, factor degraded to 0",
			"oracle", name, "site_id", siteID, "err", err)
		return 0
	}
	return math.Min(100, math.Max(0, factor))
}

// gasFactor derives the gas risk factor from the site's latest reading:
// 100 when flagged dangerous, the evaluator's factor otherwise, and a
// conservative default when no reading exists.
func (e *Engine) gasFactor(ctx context.Context, siteID string) int {
	reading, err := e.store.LatestGasReading(ctx, siteID)
	if err != nil {
		e.logger.Warn("gas reading lookup failed, using conservative default",
			"site_id", siteID, "err", err)
		return gasFactorDefault
	}
	if reading == nil {
		return gasFactorDefault
	}
	if reading.IsDangerous {
		return 100
	}
	return e.gas.GasFactor(reading)
}

// CanWorkerEnter decides whether a worker may start an entry at a site.
// It always runs a fresh risk prediction, then applies the denial ladder
// in fixed order, refusing on the first failure. On refusal the error is
// a *model.DeniedError carrying the reason code; the assessment is
// returned either way so the caller can attach it.
func (e *Engine) CanWorkerEnter(ctx context.Context, siteID, workerID string) (*model.RiskAssessment, error) {
	assessment, err := e.PredictRisk(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if assessment.RiskLevel == model.RiskProhibited {
		return assessment, model.Denied(model.DenyRiskProhibited,
			fmt.Sprintf("risk score %d", assessment.RiskScore))
	}

	valid, err := e.certs.HasValidCerts(ctx, workerID)
	if err != nil {
		return assessment, fmt.Errorf("checking certifications: %w", err)
	}
	if !valid {
		return assessment, model.Denied(model.DenyCertsExpired, "")
	}

	reason, err := e.fatigue.CanWorkerEnter(ctx, workerID)
	if err != nil {
		return assessment, fmt.Errorf("checking fatigue: %w", err)
	}
	if reason != "" {
		return assessment, model.Denied(reason, "")
	}

	safe, err := e.gas.SafeToEnter(ctx, siteID)
	if err != nil {
		return assessment, fmt.Errorf("checking gas safety: %w", err)
	}
	if !safe {
		return assessment, model.Denied(model.DenyGasUnsafe, "")
	}

	if assessment.Factors.WeatherFactor >= weatherUnsafeAt {
		return assessment, model.Denied(model.DenyWeatherUnsafe,
			fmt.Sprintf("weather factor %.0f", assessment.Factors.WeatherFactor))
	}

	site, err := e.store.GetSite(ctx, siteID)
	if err != nil {
		return assessment, err
	}
	if site != nil && site.Capacity > 0 {
		active, err := e.store.CountActiveAtSite(ctx, siteID)
		if err != nil {
			return assessment, fmt.Errorf("counting active workers: %w", err)
		}
		if active >= site.Capacity {
			return assessment, model.Denied(model.DenyManholeFull,
				fmt.Sprintf("%d of %d underground", active, site.Capacity))
		}
	}

	return assessment, nil
}

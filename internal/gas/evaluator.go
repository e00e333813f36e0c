// Package gas classifies multi-gas/oxygen readings for confined spaces.
package gas

import (
	"context"
	"math"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// Threshold holds the warning and danger concentrations for one gas, in
// that gas's native unit (ppm or %LEL).
type Threshold struct {
	Warning float64 `toml:"warning"`
	Danger  float64 `toml:"danger"`
}

// Config holds per-gas thresholds and the acceptable oxygen band.
type Config struct {
	Gases  map[string]Threshold `toml:"gases"`
	O2Low  float64              `toml:"o2_low"`
	O2High float64              `toml:"o2_high"`

	// StaleAfter is how old a reading may be before SafeToEnter stops
	// trusting it. Default 2 hours.
	StaleAfter time.Duration `toml:"-"`
}

// DefaultConfig returns OSHA-flavored confined-space defaults.
func DefaultConfig() Config {
	return Config{
		Gases: map[string]Threshold{
			"co":  {Warning: 35, Danger: 100},     // ppm
			"h2s": {Warning: 5, Danger: 10},       // ppm
			"ch4": {Warning: 10, Danger: 20},      // %LEL
			"co2": {Warning: 5000, Danger: 30000}, // ppm
		},
		O2Low:      19.5,
		O2High:     23.5,
		StaleAfter: 2 * time.Hour,
	}
}

// Evaluator classifies gas readings against configured thresholds.
type Evaluator struct {
	cfg   Config
	store store.Store
}

// New returns an evaluator over the given store. Zero-value config fields
// fall back to defaults.
func New(s store.Store, cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.Gases == nil {
		cfg.Gases = def.Gases
	}
	if cfg.O2Low == 0 {
		cfg.O2Low = def.O2Low
	}
	if cfg.O2High == 0 {
		cfg.O2High = def.O2High
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &Evaluator{cfg: cfg, store: s}
}

// o2OutOfRange reports whether the oxygen level falls outside the safe band.
func (e *Evaluator) o2OutOfRange(o2 float64) bool {
	return o2 < e.cfg.O2Low || o2 > e.cfg.O2High
}

// EvaluateDanger reports whether a reading is immediately dangerous: any
// configured gas at or above its danger threshold, or oxygen outside the
// safe band. Gases without a configured threshold are ignored.
func (e *Evaluator) EvaluateDanger(reading *model.GasReading) bool {
	if e.o2OutOfRange(reading.O2) {
		return true
	}
	for gasKey, value := range reading.Gases {
		th, ok := e.cfg.Gases[gasKey]
		if !ok {
			continue
		}
		if value >= th.Danger {
			return true
		}
	}
	return false
}

// GasFactor normalizes a reading to a 0-100 hazard factor.
//
// Per gas: 100 at or above danger (short-circuits), 60 at or above
// warning, otherwise (value/warning)*40. The factor is the max over all
// gases, forced to 100 when oxygen is out of range, and rounded.
func (e *Evaluator) GasFactor(reading *model.GasReading) int {
	factor := 0.0
	for gasKey, value := range reading.Gases {
		th, ok := e.cfg.Gases[gasKey]
		if !ok {
			continue
		}
		if value >= th.Danger {
			factor = 100
			break
		}
		candidate := (value / th.Warning) * 40
		if value >= th.Warning {
			candidate = 60
		}
		if candidate > factor {
			factor = candidate
		}
	}
	if e.o2OutOfRange(reading.O2) {
		factor = 100
	}
	return int(math.Round(factor))
}

// SafeToEnter reports whether a site's latest reading permits entry.
//
// No reading on file is treated as safe, and so is a reading older than
// the staleness window. The stale-reading default is deliberately
// permissive and preserved as-is; callers that want a stricter policy
// must check reading age themselves.
func (e *Evaluator) SafeToEnter(ctx context.Context, siteID string) (bool, error) {
	reading, err := e.store.LatestGasReading(ctx, siteID)
	if err != nil {
		return false, err
	}
	if reading == nil {
		return true, nil
	}
	if reading.Age(time.Now()) > e.cfg.StaleAfter {
		return true, nil
	}
	return !reading.IsDangerous, nil
}

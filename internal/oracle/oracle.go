// Package oracle defines the auxiliary external data sources the risk
// engine and escalation dispatcher consult. Implementations are external
// collaborators; this package ships interfaces, caching decorators, and
// static stand-ins for dev mode.
package oracle

import (
	"context"
	"sync"
	"time"
)

// WeatherOracle returns a normalized 0-100 weather hazard factor for a site.
type WeatherOracle interface {
	WeatherFactor(ctx context.Context, siteID string) (float64, error)
}

// RainfallOracle returns a normalized 0-100 rainfall factor for a site.
type RainfallOracle interface {
	RainfallFactor(ctx context.Context, siteID string) (float64, error)
}

// CertificationChecker reports whether a worker's safety certifications
// are current.
type CertificationChecker interface {
	HasValidCerts(ctx context.Context, workerID string) (bool, error)
}

// FacilityKind selects what kind of emergency facility to locate.
type FacilityKind string

const (
	FacilityHospital    FacilityKind = "hospital"
	FacilityFireStation FacilityKind = "fire_station"
)

// NearestFacility is a located emergency facility.
type NearestFacility struct {
	Name       string
	DistanceKm float64
}

// FacilityLocator finds the nearest facility of a kind to a coordinate.
// Returns nil when nothing could be located.
type FacilityLocator interface {
	FindNearest(ctx context.Context, lat, lng float64, kind FacilityKind) (*NearestFacility, error)
}

// factorFunc fetches one factor; shared shape for the two oracles.
type factorFunc func(ctx context.Context, siteID string) (float64, error)

// cachedFactor memoizes per-site factor lookups for a TTL. Oracles are
// slow external services and the risk engine may be called per entry
// attempt.
type cachedFactor struct {
	fetch factorFunc
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cachedValue
}

type cachedValue struct {
	factor    float64
	fetchedAt time.Time
}

func newCachedFactor(fetch factorFunc, ttl time.Duration) *cachedFactor {
	return &cachedFactor{
		fetch: fetch,
		ttl:   ttl,
		cache: make(map[string]cachedValue),
	}
}

func (c *cachedFactor) get(ctx context.Context, siteID string) (float64, error) {
	c.mu.Lock()
	if v, ok := c.cache[siteID]; ok && time.Since(v.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return v.factor, nil
	}
	c.mu.Unlock()

	factor, err := c.fetch(ctx, siteID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cache[siteID] = cachedValue{factor: factor, fetchedAt: time.Now()}
	c.mu.Unlock()
	return factor, nil
}

// CachedWeather wraps a WeatherOracle with a per-site TTL cache.
func CachedWeather(o WeatherOracle, ttl time.Duration) WeatherOracle {
	c := newCachedFactor(o.WeatherFactor, ttl)
	return weatherFunc(c.get)
}

// CachedRainfall wraps a RainfallOracle with a per-site TTL cache.
func CachedRainfall(o RainfallOracle, ttl time.Duration) RainfallOracle {
	c := newCachedFactor(o.RainfallFactor, ttl)
	return rainfallFunc(c.get)
}

type weatherFunc func(ctx context.Context, siteID string) (float64, error)

func (f weatherFunc) WeatherFactor(ctx context.Context, siteID string) (float64, error) {
	return f(ctx, siteID)
}

type rainfallFunc func(ctx context.Context, siteID string) (float64, error)

func (f rainfallFunc) RainfallFactor(ctx context.Context, siteID string) (float64, error) {
	return f(ctx, siteID)
}

// StaticOracle returns fixed factors and always-valid certifications.
// Used in dev mode and tests.
type StaticOracle struct {
	Weather  float64
	Rainfall float64
}

func (s *StaticOracle) WeatherFactor(_ context.Context, _ string) (float64, error) {
	return s.Weather, nil
}

func (s *StaticOracle) RainfallFactor(_ context.Context, _ string) (float64, error) {
	return s.Rainfall, nil
}

func (s *StaticOracle) HasValidCerts(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// NoopLocator is a FacilityLocator that never finds anything.
type NoopLocator struct{}

func (NoopLocator) FindNearest(_ context.Context, _, _ float64, _ FacilityKind) (*NearestFacility, error) {
	return nil, nil
}

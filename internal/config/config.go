// Package config loads daemon settings from the environment and the
// optional TOML safety-limits file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fieldward/manholeguard/internal/checkin"
	"github.com/fieldward/manholeguard/internal/fatigue"
	"github.com/fieldward/manholeguard/internal/gas"
	"github.com/fieldward/manholeguard/internal/watchdog"
)

type Config struct {
	DatabaseURL string // MHG_DATABASE_URL (required unless DevMode)
	HTTPAddr    string // MHG_HTTP_ADDR (default ":8080")
	NATSURL     string // MHG_NATS_URL (optional, empty = notifications disabled)
	DevMode     bool   // MHG_DEV (in-memory store, no database)
	LimitsFile  string // MHG_LIMITS_FILE (optional TOML threshold overrides)

	// Audit archive settings
	ArchiveInterval   time.Duration // MHG_ARCHIVE_INTERVAL (default 1h; 0 = disabled)
	ArchiveS3Bucket   string        // MHG_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // MHG_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // MHG_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string        // MHG_ARCHIVE_S3_PREFIX (default "manholeguard/audit")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("MHG_DATABASE_URL"),
		HTTPAddr:          envOrDefault("MHG_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("MHG_NATS_URL"),
		DevMode:           os.Getenv("MHG_DEV") == "1" || os.Getenv("MHG_DEV") == "true",
		LimitsFile:        os.Getenv("MHG_LIMITS_FILE"),
		ArchiveS3Bucket:   os.Getenv("MHG_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("MHG_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("MHG_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("MHG_ARCHIVE_S3_PREFIX", "manholeguard/audit"),
	}
	if c.DatabaseURL == "" && !c.DevMode {
		return nil, fmt.Errorf("MHG_DATABASE_URL is required")
	}

	intervalStr := envOrDefault("MHG_ARCHIVE_INTERVAL", "1h")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("MHG_ARCHIVE_INTERVAL: %w", err)
		}
		c.ArchiveInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Limits bundles the tunable safety thresholds. Everything defaults to the
// stock values; a TOML limits file overrides per field.
type Limits struct {
	Gas      gas.Config
	Fatigue  fatigue.Limits
	CheckIn  checkin.Config
	Watchdog watchdog.Config
}

// DefaultLimits returns the stock thresholds of every safety component.
func DefaultLimits() Limits {
	return Limits{
		Gas:      gas.DefaultConfig(),
		Fatigue:  fatigue.DefaultLimits(),
		CheckIn:  checkin.DefaultConfig(),
		Watchdog: watchdog.DefaultConfig(),
	}
}

// limitsFile is the TOML shape of the limits file. Durations are strings
// in Go duration syntax ("5m", "2h").
type limitsFile struct {
	Gas struct {
		Gases      map[string]gas.Threshold `toml:"gases"`
		O2Low      float64                  `toml:"o2_low"`
		O2High     float64                  `toml:"o2_high"`
		StaleAfter string                   `toml:"stale_after"`
	} `toml:"gas"`
	Fatigue fatigue.Limits `toml:"fatigue"`
	CheckIn struct {
		GracePeriod    string `toml:"grace_period"`
		Interval       string `toml:"interval"`
		AlertThreshold int    `toml:"alert_threshold"`
		SOSThreshold   int    `toml:"sos_threshold"`
	} `toml:"checkin"`
	Watchdog struct {
		TickInterval          string `toml:"tick_interval"`
		OverstayEscalateAfter string `toml:"overstay_escalate_after"`
		GasFreshness          string `toml:"gas_freshness"`
	} `toml:"watchdog"`
}

// LoadLimits reads the TOML limits file at path. An empty path returns
// the defaults. Fields absent from the file keep their defaults.
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}

	var f limitsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return limits, fmt.Errorf("parse limits file %s: %w", path, err)
	}

	if len(f.Gas.Gases) > 0 {
		limits.Gas.Gases = f.Gas.Gases
	}
	if f.Gas.O2Low != 0 {
		limits.Gas.O2Low = f.Gas.O2Low
	}
	if f.Gas.O2High != 0 {
		limits.Gas.O2High = f.Gas.O2High
	}
	if err := overrideDuration(&limits.Gas.StaleAfter, f.Gas.StaleAfter, "gas.stale_after"); err != nil {
		return limits, err
	}

	if f.Fatigue.MaxEntries != 0 {
		limits.Fatigue.MaxEntries = f.Fatigue.MaxEntries
	}
	if f.Fatigue.MaxUndergroundMinutes != 0 {
		limits.Fatigue.MaxUndergroundMinutes = f.Fatigue.MaxUndergroundMinutes
	}
	if f.Fatigue.MinRestMinutes != 0 {
		limits.Fatigue.MinRestMinutes = f.Fatigue.MinRestMinutes
	}
	if f.Fatigue.MaxShiftHours != 0 {
		limits.Fatigue.MaxShiftHours = f.Fatigue.MaxShiftHours
	}

	if f.CheckIn.AlertThreshold != 0 {
		limits.CheckIn.AlertThreshold = f.CheckIn.AlertThreshold
	}
	if f.CheckIn.SOSThreshold != 0 {
		limits.CheckIn.SOSThreshold = f.CheckIn.SOSThreshold
	}
	if err := overrideDuration(&limits.CheckIn.GracePeriod, f.CheckIn.GracePeriod, "checkin.grace_period"); err != nil {
		return limits, err
	}
	if err := overrideDuration(&limits.CheckIn.Interval, f.CheckIn.Interval, "checkin.interval"); err != nil {
		return limits, err
	}

	if err := overrideDuration(&limits.Watchdog.TickInterval, f.Watchdog.TickInterval, "watchdog.tick_interval"); err != nil {
		return limits, err
	}
	if err := overrideDuration(&limits.Watchdog.OverstayEscalateAfter, f.Watchdog.OverstayEscalateAfter, "watchdog.overstay_escalate_after"); err != nil {
		return limits, err
	}
	if err := overrideDuration(&limits.Watchdog.GasFreshness, f.Watchdog.GasFreshness, "watchdog.gas_freshness"); err != nil {
		return limits, err
	}

	return limits, nil
}

// overrideDuration parses a duration string from the limits file into dst,
// leaving dst alone when the string is empty.
func overrideDuration(dst *time.Duration, s, field string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

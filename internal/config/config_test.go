package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("MHG_DATABASE_URL", "")
	t.Setenv("MHG_DEV", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when MHG_DATABASE_URL is unset")
	}
}

func TestLoad_DevModeSkipsDatabaseURL(t *testing.T) {
	t.Setenv("MHG_DATABASE_URL", "")
	t.Setenv("MHG_DEV", "1")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.DevMode {
		t.Error("expected DevMode")
	}
	if c.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", c.HTTPAddr)
	}
	if c.ArchiveInterval != time.Hour {
		t.Errorf("ArchiveInterval = %v, want 1h", c.ArchiveInterval)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MHG_DATABASE_URL", "postgres://localhost/mhg")
	t.Setenv("MHG_HTTP_ADDR", ":9999")
	t.Setenv("MHG_ARCHIVE_INTERVAL", "15m")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", c.HTTPAddr)
	}
	if c.ArchiveInterval != 15*time.Minute {
		t.Errorf("ArchiveInterval = %v", c.ArchiveInterval)
	}
}

func TestLoadLimits_EmptyPathReturnsDefaults(t *testing.T) {
	limits, err := LoadLimits("")
	if err != nil {
		t.Fatalf("LoadLimits: %v", err)
	}
	if limits.Fatigue.MaxEntries != 5 {
		t.Errorf("MaxEntries = %d, want 5", limits.Fatigue.MaxEntries)
	}
	if limits.CheckIn.Interval != 15*time.Minute {
		t.Errorf("Interval = %v, want 15m", limits.CheckIn.Interval)
	}
	if limits.Gas.Gases["co"].Danger != 100 {
		t.Errorf("co danger = %v, want 100", limits.Gas.Gases["co"].Danger)
	}
}

func TestLoadLimits_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	data := `
[gas]
o2_low = 19.0
stale_after = "1h"

[gas.gases.co]
warning = 25
danger = 50

[fatigue]
max_entries = 3

[checkin]
interval = "10m"
sos_threshold = 4

[watchdog]
tick_interval = "10s"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	limits, err := LoadLimits(path)
	if err != nil {
		t.Fatalf("LoadLimits: %v", err)
	}
	if limits.Gas.O2Low != 19.0 {
		t.Errorf("O2Low = %v", limits.Gas.O2Low)
	}
	if limits.Gas.O2High != 23.5 {
		t.Errorf("O2High should keep default, got %v", limits.Gas.O2High)
	}
	if limits.Gas.StaleAfter != time.Hour {
		t.Errorf("StaleAfter = %v", limits.Gas.StaleAfter)
	}
	if limits.Gas.Gases["co"].Warning != 25 {
		t.Errorf("co warning = %v", limits.Gas.Gases["co"].Warning)
	}
	if limits.Fatigue.MaxEntries != 3 {
		t.Errorf("MaxEntries = %d", limits.Fatigue.MaxEntries)
	}
	if limits.Fatigue.MaxUndergroundMinutes != 480 {
		t.Errorf("MaxUndergroundMinutes should keep default, got %d", limits.Fatigue.MaxUndergroundMinutes)
	}
	if limits.CheckIn.Interval != 10*time.Minute {
		t.Errorf("Interval = %v", limits.CheckIn.Interval)
	}
	if limits.CheckIn.SOSThreshold != 4 {
		t.Errorf("SOSThreshold = %d", limits.CheckIn.SOSThreshold)
	}
	if limits.CheckIn.AlertThreshold != 2 {
		t.Errorf("AlertThreshold should keep default, got %d", limits.CheckIn.AlertThreshold)
	}
	if limits.Watchdog.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %v", limits.Watchdog.TickInterval)
	}
}

func TestLoadLimits_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	if err := os.WriteFile(path, []byte("[checkin]\ninterval = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLimits(path); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

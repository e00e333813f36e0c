package gas

import (
	"context"
	"testing"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store/memory"
)

func reading(gases map[string]float64, o2 float64) *model.GasReading {
	return &model.GasReading{Gases: gases, O2: o2, ReadAt: time.Now().UTC()}
}

func TestEvaluateDanger(t *testing.T) {
	e := New(memory.New(), Config{})

	for _, tc := range []struct {
		name string
		r    *model.GasReading
		want bool
	}{
		{"clean air", reading(map[string]float64{"co": 5}, 20.9), false},
		{"co at danger", reading(map[string]float64{"co": 100}, 20.9), true},
		{"co above danger", reading(map[string]float64{"co": 150}, 20.9), true},
		{"co at warning only", reading(map[string]float64{"co": 35}, 20.9), false},
		{"h2s at danger", reading(map[string]float64{"h2s": 10}, 20.9), true},
		{"o2 too low", reading(nil, 19.4), true},
		{"o2 too high", reading(nil, 23.6), true},
		{"o2 at lower bound", reading(nil, 19.5), false},
		{"o2 at upper bound", reading(nil, 23.5), false},
		{"unknown gas ignored", reading(map[string]float64{"radon": 9999}, 20.9), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.EvaluateDanger(tc.r); got != tc.want {
				t.Errorf("EvaluateDanger = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGasFactor(t *testing.T) {
	e := New(memory.New(), Config{})

	for _, tc := range []struct {
		name string
		r    *model.GasReading
		want int
	}{
		{"no gases", reading(nil, 20.9), 0},
		{"at danger is 100", reading(map[string]float64{"co": 100}, 20.9), 100},
		{"at warning is 60", reading(map[string]float64{"co": 35}, 20.9), 60},
		{"half warning is 20", reading(map[string]float64{"co": 17.5}, 20.9), 20},
		{"o2 excursion forces 100", reading(map[string]float64{"co": 5}, 18.0), 100},
		{"max over gases", reading(map[string]float64{"co": 17.5, "h2s": 5}, 20.9), 60},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.GasFactor(tc.r); got != tc.want {
				t.Errorf("GasFactor = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSafeToEnter(t *testing.T) {
	ctx := context.Background()

	t.Run("no reading is safe", func(t *testing.T) {
		e := New(memory.New(), Config{})
		safe, err := e.SafeToEnter(ctx, "mh-1")
		if err != nil || !safe {
			t.Errorf("SafeToEnter = %v, %v; want true", safe, err)
		}
	})

	t.Run("fresh dangerous reading blocks entry", func(t *testing.T) {
		st := memory.New()
		e := New(st, Config{})
		r := reading(map[string]float64{"co": 150}, 20.9)
		r.ID, r.SiteID, r.IsDangerous = "gr-1", "mh-1", true
		if err := st.RecordGasReading(ctx, r); err != nil {
			t.Fatal(err)
		}
		safe, err := e.SafeToEnter(ctx, "mh-1")
		if err != nil || safe {
			t.Errorf("SafeToEnter = %v, %v; want false", safe, err)
		}
	})

	t.Run("stale dangerous reading is trusted no longer", func(t *testing.T) {
		st := memory.New()
		e := New(st, Config{})
		r := reading(map[string]float64{"co": 150}, 20.9)
		r.ID, r.SiteID, r.IsDangerous = "gr-1", "mh-1", true
		r.ReadAt = time.Now().Add(-3 * time.Hour)
		if err := st.RecordGasReading(ctx, r); err != nil {
			t.Fatal(err)
		}
		safe, err := e.SafeToEnter(ctx, "mh-1")
		if err != nil || !safe {
			t.Errorf("SafeToEnter = %v, %v; want true for stale reading", safe, err)
		}
	})
}

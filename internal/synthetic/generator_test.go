package synthetic

import (
	"reflect"
	"testing"
)

func TestGenerateShapesAndBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genes = 8
	cfg.Timepoints = 12
	cfg.Cohorts = 3
	cfg.Density = 0.3

	gen, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	ds := gen.Generate()

	if len(ds.Truth) != 64 || len(ds.Cohorts) != 3 {
		t.Fatalf("unexpected dataset shape: truth=%d cohorts=%d", len(ds.Truth), len(ds.Cohorts))
	}
	for i := 0; i < 8; i++ {
		if ds.Truth[i*8+i] != 0 {
			t.Fatalf("ground truth has a self-loop on gene %d", i)
		}
	}
	for _, v := range ds.Truth {
		if v != 0 && v != 1 && v != -1 {
			t.Fatalf("unexpected truth entry %v", v)
		}
	}
	for c, series := range ds.Cohorts {
		if len(series) != 12 {
			t.Fatalf("cohort %d: expected 12 timepoints, got %d", c, len(series))
		}
		for tp, row := range series {
			if len(row) != 8 {
				t.Fatalf("cohort %d timepoint %d: expected 8 genes", c, tp)
			}
			for _, v := range row {
				if v < 0 || v > 1 {
					t.Fatalf("cohort %d timepoint %d: value %v outside [0,1]", c, tp, v)
				}
			}
		}
		for _, v := range series[0] {
			if v > 0.5 {
				t.Fatalf("initial expression %v above 0.5", v)
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genes = 5
	cfg.Cohorts = 2
	cfg.Timepoints = 6

	a, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	b, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if !reflect.DeepEqual(a.Generate(), b.Generate()) {
		t.Fatal("expected identical datasets for identical seed")
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Genes = 0 },
		func(c *Config) { c.Density = 2 },
		func(c *Config) { c.Excitatory = -0.1 },
		func(c *Config) { c.Decay = 1.5 },
		func(c *Config) { c.Noise = -1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewGenerator(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

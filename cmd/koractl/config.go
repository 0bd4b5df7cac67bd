package main

import (
	"encoding/json"
	"fmt"
	"os"

	"kora/internal/model"
	"kora/internal/training"
	koraapi "kora/pkg/kora"
)

// pipelineConfig gathers every encode/train knob the CLI exposes. It can be
// loaded from JSON and is then overridden by explicitly set flags.
type pipelineConfig struct {
	Encoder    model.EncoderConfig
	Plasticity model.PlasticityConfig
	Normalize  string
	IntervalMS float64
	MaxNeurons int
	Mode       string
	DT         float64
	DurationMS float64
	Workers    int
}

func defaultPipelineConfig() pipelineConfig {
	return pipelineConfig{
		Encoder:    model.DefaultEncoderConfig(),
		Plasticity: model.DefaultPlasticityConfig(),
		Normalize:  koraapi.NormalizeRescale,
		IntervalMS: 20,
		MaxNeurons: 5000,
		Mode:       training.ModeIndependent,
		Workers:    4,
	}
}

func loadPipelineConfig(path string) (pipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipelineConfig{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return pipelineConfig{}, err
	}

	cfg := defaultPipelineConfig()
	if v, ok := asString(raw["mode"]); ok {
		cfg.Mode = v
	}
	if v, ok := asFloat64(raw["dt"]); ok {
		cfg.DT = v
	}
	if v, ok := asFloat64(raw["duration_ms"]); ok {
		cfg.DurationMS = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		cfg.Workers = v
	}
	if v, ok := asString(raw["normalize"]); ok {
		cfg.Normalize = v
	}
	if v, ok := asFloat64(raw["interval_ms"]); ok {
		cfg.IntervalMS = v
	}
	if v, ok := asInt(raw["max_neurons"]); ok {
		cfg.MaxNeurons = v
	}

	if enc, ok := raw["encoder"].(map[string]any); ok {
		if v, ok := asFloat64(enc["dt"]); ok {
			cfg.Encoder.DT = v
		}
		if v, ok := asFloat64(enc["max_freq"]); ok {
			cfg.Encoder.MaxFreq = v
		}
		if v, ok := asFloat64(enc["refractory_period"]); ok {
			cfg.Encoder.RefractoryPeriod = v
		}
		if v, ok := asInt64(enc["seed"]); ok {
			cfg.Encoder.Seed = v
		}
	}

	if p, ok := raw["plasticity"].(map[string]any); ok {
		if v, ok := asString(p["rule"]); ok {
			cfg.Plasticity.Rule = v
		}
		if v, ok := asFloat64(p["learning_rate"]); ok {
			cfg.Plasticity.LearningRate = v
		}
		if v, ok := asFloat64(p["tau_plus"]); ok {
			cfg.Plasticity.TauPlus = v
		}
		if v, ok := asFloat64(p["tau_minus"]); ok {
			cfg.Plasticity.TauMinus = v
		}
		if v, ok := asFloat64(p["a_plus"]); ok {
			cfg.Plasticity.APlus = v
		}
		if v, ok := asFloat64(p["a_minus"]); ok {
			cfg.Plasticity.AMinus = v
		}
		if v, ok := asFloat64(p["w_min"]); ok {
			cfg.Plasticity.WMin = v
		}
		if v, ok := asFloat64(p["w_max"]); ok {
			cfg.Plasticity.WMax = v
		}
		if v, ok := asFloat64(p["trace_decay"]); ok {
			cfg.Plasticity.TraceDecay = v
		}
		if v, ok := asFloat64(p["modulation"]); ok {
			cfg.Plasticity.Modulation = v
		}
	}
	return cfg, nil
}

func loadOrDefaultPipelineConfig(configPath string) (pipelineConfig, error) {
	if configPath == "" {
		return defaultPipelineConfig(), nil
	}
	cfg, err := loadPipelineConfig(configPath)
	if err != nil {
		return pipelineConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(cfg *pipelineConfig, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "mode":
			cfg.Mode = v.(string)
		case "dt":
			cfg.DT = v.(float64)
			cfg.Encoder.DT = v.(float64)
		case "duration-ms":
			cfg.DurationMS = v.(float64)
		case "workers":
			cfg.Workers = v.(int)
		case "normalize":
			cfg.Normalize = v.(string)
		case "interval-ms":
			cfg.IntervalMS = v.(float64)
		case "max-neurons":
			cfg.MaxNeurons = v.(int)
		case "max-freq":
			cfg.Encoder.MaxFreq = v.(float64)
		case "refractory":
			cfg.Encoder.RefractoryPeriod = v.(float64)
		case "seed":
			cfg.Encoder.Seed = v.(int64)
		case "rule":
			cfg.Plasticity.Rule = v.(string)
		case "lr":
			cfg.Plasticity.LearningRate = v.(float64)
		case "tau-plus":
			cfg.Plasticity.TauPlus = v.(float64)
		case "tau-minus":
			cfg.Plasticity.TauMinus = v.(float64)
		case "a-plus":
			cfg.Plasticity.APlus = v.(float64)
		case "a-minus":
			cfg.Plasticity.AMinus = v.(float64)
		case "w-min":
			cfg.Plasticity.WMin = v.(float64)
		case "w-max":
			cfg.Plasticity.WMax = v.(float64)
		case "trace-decay":
			cfg.Plasticity.TraceDecay = v.(float64)
		case "modulation":
			cfg.Plasticity.Modulation = v.(float64)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

package nn

import (
	"fmt"
	"math"
	"strings"

	"kora/internal/model"
)

const (
	PlasticityNone       = "none"
	PlasticityCausalSTDP = "causal_stdp"
)

func NormalizePlasticityRuleName(rule string) string {
	switch strings.ToLower(strings.TrimSpace(rule)) {
	case "", PlasticityCausalSTDP, "stdp", "causal", "causalstdp":
		return PlasticityCausalSTDP
	case PlasticityNone, "frozen":
		return PlasticityNone
	default:
		return strings.ToLower(strings.TrimSpace(rule))
	}
}

// ValidatePlasticityConfig checks the numeric parameters shared by all rules.
func ValidatePlasticityConfig(cfg model.PlasticityConfig) error {
	if cfg.WMin > cfg.WMax {
		return fmt.Errorf("w_min %v exceeds w_max %v", cfg.WMin, cfg.WMax)
	}
	if !(cfg.TraceDecay >= 0 && cfg.TraceDecay <= 1) {
		return fmt.Errorf("trace_decay must be in [0, 1], got %v", cfg.TraceDecay)
	}
	if !(cfg.TauPlus >= 0 && cfg.TauMinus >= 0) {
		return fmt.Errorf("tau_plus and tau_minus must be >= 0")
	}
	for name, v := range map[string]float64{
		"learning_rate": cfg.LearningRate,
		"a_plus":        cfg.APlus,
		"a_minus":       cfg.AMinus,
		"w_min":         cfg.WMin,
		"w_max":         cfg.WMax,
		"modulation":    cfg.Modulation,
		"trace_decay":   cfg.TraceDecay,
		"tau_plus":      cfg.TauPlus,
		"tau_minus":     cfg.TauMinus,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
	}
	return nil
}

// CausalSTDP is the additive trace-based pair rule. Postsynaptic spikes
// potentiate incoming weights by the presynaptic trace; presynaptic spikes
// depress outgoing weights by the postsynaptic trace.
type CausalSTDP struct {
	cfg model.PlasticityConfig
}

func NewCausalSTDP(cfg model.PlasticityConfig) (*CausalSTDP, error) {
	if err := ValidatePlasticityConfig(cfg); err != nil {
		return nil, err
	}
	return &CausalSTDP{cfg: cfg}, nil
}

func (r *CausalSTDP) Name() string {
	return PlasticityCausalSTDP
}

func (r *CausalSTDP) Config() model.PlasticityConfig {
	return r.cfg
}

// Apply mutates w in place. Traces must already include this step's decay
// and spike increments.
func (r *CausalSTDP) Apply(w *Weights, preTrace, postTrace []float64, preSpikes, postSpikes []bool, modulation float64) {
	n := w.N()
	ltp := r.cfg.LearningRate * modulation * r.cfg.APlus
	ltd := r.cfg.LearningRate * modulation * r.cfg.AMinus

	for j := 0; j < n; j++ {
		if !postSpikes[j] {
			continue
		}
		for i := 0; i < n; i++ {
			w.data[i*n+j] += ltp * preTrace[i]
		}
	}
	for i := 0; i < n; i++ {
		if !preSpikes[i] {
			continue
		}
		row := w.Row(i)
		for j := range row {
			row[j] -= ltd * postTrace[j]
		}
	}

	w.Enforce(r.cfg.WMin, r.cfg.WMax)
}

// Kernel is the classical pair-based STDP window for dt = t_post - t_pre.
func (r *CausalSTDP) Kernel(dt float64) float64 {
	switch {
	case dt > 0:
		return r.cfg.APlus * math.Exp(-dt/r.cfg.TauPlus)
	case dt < 0:
		return -r.cfg.AMinus * math.Exp(dt/r.cfg.TauMinus)
	default:
		return 0
	}
}

// Frozen leaves the weights untouched apart from the bound invariants.
type Frozen struct {
	cfg model.PlasticityConfig
}

func (r *Frozen) Name() string {
	return PlasticityNone
}

func (r *Frozen) Apply(w *Weights, _, _ []float64, _, _ []bool, _ float64) {
	w.Enforce(r.cfg.WMin, r.cfg.WMax)
}

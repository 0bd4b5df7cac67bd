package nn

import (
	"kora/internal/model"
)

// NetworkState is the position of a Network within a cohort.
type NetworkState int

const (
	// Idle is between cohorts: traces are zero and no step has run.
	Idle NetworkState = iota
	// Stepping is mid-simulation of a cohort.
	Stepping
)

func (s NetworkState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stepping:
		return "stepping"
	default:
		return "unknown"
	}
}

// Traces is the pre/post trace pair of a population whose neurons act as
// source and target simultaneously: one spike mask feeds both sides.
type Traces struct {
	Pre  []float64
	Post []float64
}

func NewTraces(n int) Traces {
	return Traces{Pre: make([]float64, n), Post: make([]float64, n)}
}

// Observe decays both traces and adds 1 for every neuron spiking this step.
func (t Traces) Observe(spikes []bool, decay float64) {
	keep := 1 - decay
	for i := range t.Pre {
		t.Pre[i] *= keep
		t.Post[i] *= keep
		if spikes[i] {
			t.Pre[i] += 1.0
			t.Post[i] += 1.0
		}
	}
}

func (t Traces) Zero() {
	clear(t.Pre)
	clear(t.Post)
}

// Network is a fully connected single population trained by a plasticity
// rule. Weights persist across Reset; traces do not.
type Network struct {
	cfg        model.PlasticityConfig
	rule       Rule
	weights    *Weights
	traces     Traces
	modulation float64
	state      NetworkState
	steps      int
}

func NewNetwork(n int, cfg model.PlasticityConfig) (*Network, error) {
	rule, err := NewRule(cfg)
	if err != nil {
		return nil, err
	}
	modulation := cfg.Modulation
	if modulation == 0 {
		modulation = 1
	}
	return &Network{
		cfg:        cfg,
		rule:       rule,
		weights:    NewWeights(n),
		traces:     NewTraces(n),
		modulation: modulation,
		state:      Idle,
	}, nil
}

func (n *Network) Size() int {
	return n.weights.N()
}

func (n *Network) State() NetworkState {
	return n.state
}

// Steps returns the number of steps run since the last Reset.
func (n *Network) Steps() int {
	return n.steps
}

func (n *Network) Weights() *Weights {
	return n.weights
}

func (n *Network) Traces() Traces {
	return n.traces
}

func (n *Network) Rule() Rule {
	return n.rule
}

func (n *Network) Modulation() float64 {
	return n.modulation
}

// SetModulation scales subsequent plasticity updates. Zero restores the
// configured modulation.
func (n *Network) SetModulation(m float64) {
	if m == 0 {
		m = n.cfg.Modulation
		if m == 0 {
			m = 1
		}
	}
	n.modulation = m
}

// Reset zeroes traces and returns to Idle. Weights are untouched.
func (n *Network) Reset() {
	n.traces.Zero()
	n.state = Idle
	n.steps = 0
}

// Step advances the network by one time step. spikes must have Size()
// entries. The trace decay is already expressed per step, so dt does not
// enter the update.
func (n *Network) Step(spikes []bool, dt float64, learning bool) {
	n.state = Stepping
	n.steps++

	n.traces.Observe(spikes, n.cfg.TraceDecay)
	if learning {
		n.rule.Apply(n.weights, n.traces.Pre, n.traces.Post, spikes, spikes, n.modulation)
	}
}

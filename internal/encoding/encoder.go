package encoding

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"kora/internal/model"
)

// ErrInputShape is returned when an expression signal is not rank 1 or 2.
var ErrInputShape = errors.New("expression must be 1-D or 2-D")

// Signal is a dense expression array. A rank-1 signal is one snapshot
// (genes); a rank-2 signal is a time series (timepoints x genes).
type Signal struct {
	Shape  []int
	Values []float64
}

func Vector(values []float64) Signal {
	return Signal{Shape: []int{len(values)}, Values: values}
}

func Matrix(rows [][]float64) Signal {
	if len(rows) == 0 {
		return Signal{Shape: []int{0, 0}}
	}
	cols := len(rows[0])
	values := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		values = append(values, row...)
	}
	return Signal{Shape: []int{len(rows), cols}, Values: values}
}

// Rank returns the number of dimensions of the signal.
func (s Signal) Rank() int {
	return len(s.Shape)
}

// Encoder converts expression values into spike trains with a thinned
// Poisson process. It keeps one seeded random stream across calls.
type Encoder struct {
	cfg model.EncoderConfig
	rng *rand.Rand
}

func NewEncoder(cfg model.EncoderConfig) (*Encoder, error) {
	if cfg.DT <= 0 || math.IsNaN(cfg.DT) {
		return nil, fmt.Errorf("encoder dt must be > 0, got %v", cfg.DT)
	}
	if cfg.MaxFreq < 0 || math.IsNaN(cfg.MaxFreq) {
		return nil, fmt.Errorf("encoder max_freq must be >= 0, got %v", cfg.MaxFreq)
	}
	if cfg.RefractoryPeriod < 0 || math.IsNaN(cfg.RefractoryPeriod) {
		return nil, fmt.Errorf("encoder refractory_period must be >= 0, got %v", cfg.RefractoryPeriod)
	}
	return &Encoder{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (e *Encoder) Config() model.EncoderConfig {
	return e.cfg
}

// Encode returns one spike train per gene covering [0, durationMS).
func (e *Encoder) Encode(sig Signal, durationMS float64) ([]model.SpikeTrain, error) {
	for _, d := range sig.Shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in shape %v", ErrInputShape, sig.Shape)
		}
	}
	switch sig.Rank() {
	case 1:
		if len(sig.Values) != sig.Shape[0] {
			return nil, fmt.Errorf("%w: shape %v does not match %d values", ErrInputShape, sig.Shape, len(sig.Values))
		}
		return e.encodeStatic(sig.Values, durationMS), nil
	case 2:
		if len(sig.Values) != sig.Shape[0]*sig.Shape[1] {
			return nil, fmt.Errorf("%w: shape %v does not match %d values", ErrInputShape, sig.Shape, len(sig.Values))
		}
		return e.encodeSeries(sig.Values, sig.Shape[0], sig.Shape[1], durationMS), nil
	default:
		return nil, fmt.Errorf("%w: got rank %d", ErrInputShape, sig.Rank())
	}
}

func (e *Encoder) EncodeVector(values []float64, durationMS float64) ([]model.SpikeTrain, error) {
	return e.Encode(Vector(values), durationMS)
}

func (e *Encoder) EncodeMatrix(rows [][]float64, durationMS float64) ([]model.SpikeTrain, error) {
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, fmt.Errorf("%w: row %d has %d genes, want %d", ErrInputShape, i, len(row), len(rows[0]))
		}
	}
	return e.Encode(Matrix(rows), durationMS)
}

// stepProbability is the per-step firing probability for an expression value.
func (e *Encoder) stepProbability(value float64) float64 {
	return value * e.cfg.MaxFreq * (e.cfg.DT / 1000.0)
}

func (e *Encoder) encodeStatic(values []float64, durationMS float64) []model.SpikeTrain {
	trains := newTrains(len(values))
	steps := int(durationMS / e.cfg.DT)

	for gene, value := range values {
		p := e.stepProbability(value)
		last := math.Inf(-1)
		for step := 0; step < steps; step++ {
			t := float64(step) * e.cfg.DT
			draw := e.rng.Float64()
			if draw < p && t-last >= e.cfg.RefractoryPeriod {
				trains[gene] = append(trains[gene], t)
				last = t
			}
		}
	}
	return trains
}

// encodeSeries holds each timepoint constant over an equal window of the
// duration. Candidates are drawn per window in bulk; the refractory state
// is carried across windows.
func (e *Encoder) encodeSeries(values []float64, timepoints, genes int, durationMS float64) []model.SpikeTrain {
	trains := newTrains(genes)
	if timepoints == 0 || genes == 0 {
		return trains
	}

	window := durationMS / float64(timepoints)
	stepsInWindow := int(window / e.cfg.DT)
	if stepsInWindow <= 0 {
		return trains
	}

	last := make([]float64, genes)
	for i := range last {
		last[i] = math.Inf(-1)
	}
	probs := make([]float64, genes)
	draws := make([]float64, stepsInWindow*genes)

	for tp := 0; tp < timepoints; tp++ {
		row := values[tp*genes : (tp+1)*genes]
		for g, value := range row {
			probs[g] = e.stepProbability(value)
		}
		for i := range draws {
			draws[i] = e.rng.Float64()
		}

		offset := float64(tp) * window
		for step := 0; step < stepsInWindow; step++ {
			t := offset + float64(step)*e.cfg.DT
			candidates := draws[step*genes : (step+1)*genes]
			for g, draw := range candidates {
				if draw >= probs[g] {
					continue
				}
				if t-last[g] < e.cfg.RefractoryPeriod {
					continue
				}
				trains[g] = append(trains[g], t)
				last[g] = t
			}
		}
	}
	return trains
}

func newTrains(n int) []model.SpikeTrain {
	trains := make([]model.SpikeTrain, n)
	for i := range trains {
		trains[i] = model.SpikeTrain{}
	}
	return trains
}

// Clip01 clamps every value into [0, 1] in place and reports how many
// values were changed.
func Clip01(values []float64) int {
	clipped := 0
	for i, v := range values {
		switch {
		case math.IsNaN(v) || v < 0:
			values[i] = 0
			clipped++
		case v > 1:
			values[i] = 1
			clipped++
		}
	}
	return clipped
}

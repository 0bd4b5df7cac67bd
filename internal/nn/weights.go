package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Weights is a dense square matrix stored row-major. Row i is the source
// (presynaptic) neuron and column j the target (postsynaptic) neuron.
type Weights struct {
	n    int
	data []float64
}

func NewWeights(n int) *Weights {
	return &Weights{n: n, data: make([]float64, n*n)}
}

// WeightsFrom wraps a row-major copy of data. It returns nil when data does
// not hold n*n values.
func WeightsFrom(n int, data []float64) *Weights {
	if len(data) != n*n {
		return nil
	}
	return &Weights{n: n, data: append([]float64(nil), data...)}
}

func (w *Weights) N() int {
	return w.n
}

func (w *Weights) At(i, j int) float64 {
	return w.data[i*w.n+j]
}

func (w *Weights) Set(i, j int, v float64) {
	w.data[i*w.n+j] = v
}

// Row returns the live outgoing weights of source i.
func (w *Weights) Row(i int) []float64 {
	return w.data[i*w.n : (i+1)*w.n]
}

// Raw returns the live row-major backing slice.
func (w *Weights) Raw() []float64 {
	return w.data
}

// Clone returns an independent copy.
func (w *Weights) Clone() *Weights {
	return &Weights{n: w.n, data: append([]float64(nil), w.data...)}
}

// Enforce clamps every entry to [lo, hi] and zeroes the diagonal.
func (w *Weights) Enforce(lo, hi float64) {
	for i, v := range w.data {
		if v < lo {
			w.data[i] = lo
		} else if v > hi {
			w.data[i] = hi
		}
	}
	w.ZeroDiagonal()
}

func (w *Weights) ZeroDiagonal() {
	for i := 0; i < w.n; i++ {
		w.data[i*w.n+i] = 0
	}
}

// Equal reports bit-identical contents.
func (w *Weights) Equal(other *Weights) bool {
	if other == nil || w.n != other.n {
		return false
	}
	for i, v := range w.data {
		if math.Float64bits(v) != math.Float64bits(other.data[i]) {
			return false
		}
	}
	return true
}

type WeightStats struct {
	MeanAbs float64
	Max     float64
	Min     float64
}

func (w *Weights) Stats() WeightStats {
	if len(w.data) == 0 {
		return WeightStats{}
	}
	abs := make([]float64, len(w.data))
	for i, v := range w.data {
		abs[i] = math.Abs(v)
	}
	return WeightStats{
		MeanAbs: floats.Sum(abs) / float64(len(abs)),
		Max:     floats.Max(w.data),
		Min:     floats.Min(w.data),
	}
}

package grn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"kora/internal/model"
)

// DefaultSigma is the number of standard deviations above mean |w| used
// when no fixed threshold is set.
const DefaultSigma = 2.0

// Extractor turns a trained weight matrix into signed regulatory edges.
// A positive Threshold is used as is; otherwise the threshold is
// mean(|W|) + Sigma*std(|W|) over every entry.
type Extractor struct {
	Threshold float64
	Sigma     float64
}

// Result is the extracted graph together with the threshold that produced it.
type Result struct {
	Threshold float64
	Edges     []model.Edge
	Adjacency []float64
}

func (e Extractor) Extract(w model.WeightSnapshot) (Result, error) {
	if w.N < 0 || len(w.Weights) != w.N*w.N {
		return Result{}, fmt.Errorf("weight snapshot holds %d values for n=%d", len(w.Weights), w.N)
	}
	names := w.GeneNames
	if len(names) == 0 {
		names = DefaultGeneNames(w.N)
	}
	if len(names) != w.N {
		return Result{}, fmt.Errorf("got %d gene names for %d neurons", len(names), w.N)
	}

	threshold := e.threshold(w.Weights)
	res := Result{
		Threshold: threshold,
		Edges:     []model.Edge{},
		Adjacency: make([]float64, len(w.Weights)),
	}
	for i := 0; i < w.N; i++ {
		for j := 0; j < w.N; j++ {
			if i == j {
				continue
			}
			v := w.At(i, j)
			if math.Abs(v) <= threshold {
				continue
			}
			res.Adjacency[i*w.N+j] = v
			kind := model.EdgeActivation
			if v < 0 {
				kind = model.EdgeRepression
			}
			res.Edges = append(res.Edges, model.Edge{
				Source: names[i],
				Target: names[j],
				Weight: v,
				Type:   kind,
			})
		}
	}
	return res, nil
}

func (e Extractor) threshold(weights []float64) float64 {
	if e.Threshold > 0 {
		return e.Threshold
	}
	if len(weights) == 0 {
		return 0
	}
	sigma := e.Sigma
	if sigma == 0 {
		sigma = DefaultSigma
	}
	abs := make([]float64, len(weights))
	for i, v := range weights {
		abs[i] = math.Abs(v)
	}
	mean, std := stat.PopMeanStdDev(abs, nil)
	return mean + sigma*std
}

func DefaultGeneNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Gene_%d", i)
	}
	return names
}

// Metrics scores an inferred adjacency against ground truth, counting any
// non-zero entry as an edge.
type Metrics struct {
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1"`
	EdgesTrue     int     `json:"edges_true"`
	EdgesInferred int     `json:"edges_inferred"`
}

func Compare(inferred, truth []float64) (Metrics, error) {
	if len(inferred) != len(truth) {
		return Metrics{}, errors.New("inferred and ground-truth matrices differ in size")
	}
	var tp, fp, fn int
	var m Metrics
	for i := range truth {
		isTrue := truth[i] != 0
		isPred := inferred[i] != 0
		if isTrue {
			m.EdgesTrue++
		}
		if isPred {
			m.EdgesInferred++
		}
		switch {
		case isTrue && isPred:
			tp++
		case isPred:
			fp++
		case isTrue:
			fn++
		}
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

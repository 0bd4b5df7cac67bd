package grn

import (
	"math"
	"testing"

	"kora/internal/model"
)

func TestExtractFixedThreshold(t *testing.T) {
	w := model.WeightSnapshot{
		N:         3,
		GeneNames: []string{"A", "B", "C"},
		Weights: []float64{
			0.9, 0.5, -0.05,
			-0.4, 0, 0.1,
			0.2, 0, 0,
		},
	}

	res, err := Extractor{Threshold: 0.15}.Extract(w)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []model.Edge{
		{Source: "A", Target: "B", Weight: 0.5, Type: model.EdgeActivation},
		{Source: "B", Target: "A", Weight: -0.4, Type: model.EdgeRepression},
		{Source: "C", Target: "A", Weight: 0.2, Type: model.EdgeActivation},
	}
	if len(res.Edges) != len(want) {
		t.Fatalf("unexpected edges: %+v", res.Edges)
	}
	for i := range want {
		if res.Edges[i] != want[i] {
			t.Fatalf("edge %d: got=%+v want=%+v", i, res.Edges[i], want[i])
		}
	}
	if res.Adjacency[0] != 0 {
		t.Fatal("diagonal must never become an edge")
	}
}

func TestExtractStatisticalThreshold(t *testing.T) {
	weights := make([]float64, 16)
	weights[1] = 0.8
	w := model.WeightSnapshot{N: 4, Weights: weights}

	res, err := Extractor{}.Extract(w)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// mean = 0.05, population std = sqrt(0.64/16 - 0.0025)
	want := 0.05 + 2*math.Sqrt(0.04-0.0025)
	if math.Abs(res.Threshold-want) > 1e-12 {
		t.Fatalf("unexpected threshold: got=%f want=%f", res.Threshold, want)
	}
	if len(res.Edges) != 1 || res.Edges[0].Source != "Gene_0" || res.Edges[0].Target != "Gene_1" {
		t.Fatalf("unexpected edges: %+v", res.Edges)
	}
}

func TestExtractValidation(t *testing.T) {
	if _, err := (Extractor{}).Extract(model.WeightSnapshot{N: 2, Weights: []float64{1}}); err == nil {
		t.Fatal("expected size error")
	}
	if _, err := (Extractor{}).Extract(model.WeightSnapshot{N: 1, Weights: []float64{0}, GeneNames: []string{"a", "b"}}); err == nil {
		t.Fatal("expected gene name count error")
	}
}

func TestCompare(t *testing.T) {
	truth := []float64{0, 1, -1, 0}
	inferred := []float64{0, 0.4, 0, 0.2}

	m, err := Compare(inferred, truth)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if m.EdgesTrue != 2 || m.EdgesInferred != 2 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.Precision != 0.5 || m.Recall != 0.5 || m.F1 != 0.5 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	if _, err := Compare([]float64{1}, truth); err == nil {
		t.Fatal("expected size mismatch error")
	}
	empty, err := Compare([]float64{0, 0}, []float64{0, 0})
	if err != nil || empty.F1 != 0 {
		t.Fatalf("unexpected empty comparison: %+v err=%v", empty, err)
	}
}

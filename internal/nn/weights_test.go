package nn

import (
	"math"
	"testing"
)

func TestWeightsRowMajorLayout(t *testing.T) {
	w := NewWeights(3)
	w.Set(1, 2, 0.5)
	if got := w.Row(1)[2]; got != 0.5 {
		t.Fatalf("unexpected row value: %f", got)
	}
	if got := w.Raw()[1*3+2]; got != 0.5 {
		t.Fatalf("unexpected raw value: %f", got)
	}
}

func TestWeightsCloneIsIndependent(t *testing.T) {
	w := NewWeights(2)
	w.Set(0, 1, 0.25)
	snap := w.Clone()
	w.Set(0, 1, 0.75)
	if snap.At(0, 1) != 0.25 {
		t.Fatalf("clone changed with source: %f", snap.At(0, 1))
	}
	if snap.Equal(w) {
		t.Fatal("expected clone to differ after mutation")
	}
}

func TestWeightsFromValidatesLength(t *testing.T) {
	if WeightsFrom(2, []float64{1, 2, 3}) != nil {
		t.Fatal("expected nil for mismatched data")
	}
	data := []float64{0, 1, 2, 0}
	w := WeightsFrom(2, data)
	data[1] = 9
	if w.At(0, 1) != 1 {
		t.Fatal("expected WeightsFrom to copy data")
	}
}

func TestWeightsEnforce(t *testing.T) {
	w := WeightsFrom(2, []float64{0.3, 4, -4, 0.1})
	w.Enforce(-1, 1)
	want := []float64{0, 1, -1, 0}
	for i, v := range w.Raw() {
		if v != want[i] {
			t.Fatalf("unexpected enforced weights: %v", w.Raw())
		}
	}
}

func TestWeightsStats(t *testing.T) {
	w := WeightsFrom(2, []float64{0, 0.5, -0.25, 0})
	stats := w.Stats()
	if math.Abs(stats.MeanAbs-0.1875) > 1e-12 {
		t.Fatalf("unexpected mean abs: %f", stats.MeanAbs)
	}
	if stats.Max != 0.5 || stats.Min != -0.25 {
		t.Fatalf("unexpected extremes: %+v", stats)
	}
	if (NewWeights(0).Stats() != WeightStats{}) {
		t.Fatal("expected zero stats for empty matrix")
	}
}

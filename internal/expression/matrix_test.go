package expression

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := "sample,GATA1,TAL1,SPI1\n" +
		"t0,0.1,0.5,1\n" +
		"\n" +
		"t1, 0.2 ,0.25,0\n"

	m, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !reflect.DeepEqual(m.Genes, []string{"GATA1", "TAL1", "SPI1"}) {
		t.Fatalf("unexpected genes: %v", m.Genes)
	}
	if !reflect.DeepEqual(m.Samples, []string{"t0", "t1"}) {
		t.Fatalf("unexpected samples: %v", m.Samples)
	}
	if m.Values[1][0] != 0.2 || m.Values[0][2] != 1 {
		t.Fatalf("unexpected values: %v", m.Values)
	}

	sig := m.Signal()
	if !reflect.DeepEqual(sig.Shape, []int{2, 3}) {
		t.Fatalf("unexpected signal shape: %v", sig.Shape)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"no-genes":   "sample\nt0\n",
		"ragged":     "sample,a,b\nt0,1\n",
		"non-number": "sample,a\nt0,high\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	m := Matrix{
		Samples: []string{"a", "b"},
		Genes:   []string{"g1", "g2"},
		Values:  [][]float64{{0.125, 1}, {0, 0.5}},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, m); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got, m)
	}
}

func TestRescaleUsesGlobalRange(t *testing.T) {
	m := Matrix{Genes: []string{"a", "b"}, Values: [][]float64{{2, 4}, {6, 10}}}
	out, err := m.Rescale()
	if err != nil {
		t.Fatalf("rescale: %v", err)
	}
	want := [][]float64{{0, 0.25}, {0.5, 1}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(out.Values[i][j]-want[i][j]) > 1e-12 {
				t.Fatalf("unexpected rescaled values: %v", out.Values)
			}
		}
	}
	if m.Values[0][0] != 2 {
		t.Fatal("rescale must not modify the input")
	}

	flat := Matrix{Genes: []string{"a"}, Values: [][]float64{{3}, {3}}}
	if _, err := flat.Rescale(); err == nil {
		t.Fatal("expected flat matrix error")
	}
}

func TestClip(t *testing.T) {
	m := Matrix{Genes: []string{"a", "b"}, Values: [][]float64{{-1, 0.5}, {2, 1}}}
	out, n := m.Clip()
	if n != 2 {
		t.Fatalf("expected 2 clipped values, got %d", n)
	}
	if !reflect.DeepEqual(out.Values, [][]float64{{0, 0.5}, {1, 1}}) {
		t.Fatalf("unexpected clipped values: %v", out.Values)
	}
}

func TestSelectVariableGenes(t *testing.T) {
	m := Matrix{
		Genes: []string{"flat", "wide", "mid", "narrow"},
		Values: [][]float64{
			{0.5, 0.0, 0.2, 0.4},
			{0.5, 1.0, 0.8, 0.5},
			{0.5, 0.0, 0.2, 0.4},
		},
	}
	if got := m.SelectVariableGenes(2); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("unexpected selection: %v", got)
	}
	if got := m.SelectVariableGenes(10); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("expected all genes under the cap: %v", got)
	}

	sub := m.Columns([]int{1, 3})
	if !reflect.DeepEqual(sub.Genes, []string{"wide", "narrow"}) || sub.Values[1][1] != 0.5 {
		t.Fatalf("unexpected column subset: %+v", sub)
	}
}

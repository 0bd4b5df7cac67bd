package encoding

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"kora/internal/model"
)

func newTestEncoder(t *testing.T, cfg model.EncoderConfig) *Encoder {
	t.Helper()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	return enc
}

func TestEncodeStaticZeroExpressionIsSilent(t *testing.T) {
	enc := newTestEncoder(t, model.EncoderConfig{DT: 1, MaxFreq: 250, Seed: 7})

	trains, err := enc.EncodeVector([]float64{0, 0, 0, 0}, 500)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(trains) != 4 {
		t.Fatalf("expected 4 trains, got %d", len(trains))
	}
	for i, train := range trains {
		if len(train) != 0 {
			t.Fatalf("train %d: expected no spikes, got %v", i, train)
		}
	}
}

func TestEncodeStaticSaturatedFiresEveryStep(t *testing.T) {
	// max_freq * dt / 1000 == 1
	enc := newTestEncoder(t, model.EncoderConfig{DT: 1, MaxFreq: 1000, RefractoryPeriod: 0, Seed: 3})

	trains, err := enc.EncodeVector([]float64{1, 1, 1}, 50)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i, train := range trains {
		if len(train) != 50 {
			t.Fatalf("train %d: expected 50 spikes, got %d", i, len(train))
		}
		for step, spike := range train {
			if spike != float64(step) {
				t.Fatalf("train %d: spike %d at %v, want %v", i, step, spike, float64(step))
			}
		}
	}
}

func TestEncodeStaticRefractoryPeriod(t *testing.T) {
	const refractory = 5.0
	enc := newTestEncoder(t, model.EncoderConfig{DT: 1, MaxFreq: 800, RefractoryPeriod: refractory, Seed: 11})

	trains, err := enc.EncodeVector([]float64{1, 0.7, 0.3}, 1000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	assertRefractory(t, trains, refractory)
	if len(trains[0]) == 0 {
		t.Fatal("expected saturated neuron to fire")
	}
}

func TestEncodeSeriesRefractoryAcrossWindows(t *testing.T) {
	const refractory = 7.0
	enc := newTestEncoder(t, model.EncoderConfig{DT: 1, MaxFreq: 1000, RefractoryPeriod: refractory, Seed: 5})

	// Windows of 10ms; saturated rate forces a spike whenever the neuron is
	// not refractory, so a reset at the window edge would show up as a
	// 3ms gap (spike at 7, then at 10).
	rows := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	trains, err := enc.EncodeMatrix(rows, 40)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	assertRefractory(t, trains, refractory)

	want := model.SpikeTrain{0, 7, 14, 21, 28, 35}
	if !reflect.DeepEqual(trains[0], want) {
		t.Fatalf("unexpected train: got=%v want=%v", trains[0], want)
	}
}

func TestEncodeSeriesPiecewiseConstantRate(t *testing.T) {
	enc := newTestEncoder(t, model.EncoderConfig{DT: 1, MaxFreq: 1000, Seed: 9})

	rows := [][]float64{{0, 1}, {1, 0}}
	trains, err := enc.EncodeMatrix(rows, 20)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, spike := range trains[0] {
		if spike < 10 {
			t.Fatalf("gene 0 is silent in window 0, got spike at %v", spike)
		}
	}
	for _, spike := range trains[1] {
		if spike >= 10 {
			t.Fatalf("gene 1 is silent in window 1, got spike at %v", spike)
		}
	}
	if len(trains[0]) != 10 || len(trains[1]) != 10 {
		t.Fatalf("expected 10 spikes per active window, got %d and %d", len(trains[0]), len(trains[1]))
	}
}

func TestEncodeSpikeTimesAscendingAndBounded(t *testing.T) {
	enc := newTestEncoder(t, model.EncoderConfig{DT: 0.5, MaxFreq: 120, RefractoryPeriod: 2, Seed: 21})

	rows := [][]float64{{0.2, 0.9, 0.5}, {0.8, 0.1, 0.5}, {0.4, 0.4, 1}}
	const duration = 300.0
	trains, err := enc.EncodeMatrix(rows, duration)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i, train := range trains {
		for j, spike := range train {
			if spike < 0 || spike >= duration {
				t.Fatalf("train %d: spike %v outside [0, %v)", i, spike, duration)
			}
			if j > 0 && spike <= train[j-1] {
				t.Fatalf("train %d: spikes not ascending at %d: %v", i, j, train)
			}
		}
	}
}

func TestEncodeDeterministicForSeed(t *testing.T) {
	cfg := model.EncoderConfig{DT: 1, MaxFreq: 100, RefractoryPeriod: 2, Seed: 42}
	values := []float64{0.1, 0.5, 0.9}

	a, err := newTestEncoder(t, cfg).EncodeVector(values, 400)
	if err != nil {
		t.Fatalf("encode a: %v", err)
	}
	b, err := newTestEncoder(t, cfg).EncodeVector(values, 400)
	if err != nil {
		t.Fatalf("encode b: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected identical trains for identical seed")
	}

	cfg.Seed = 43
	c, err := newTestEncoder(t, cfg).EncodeVector(values, 400)
	if err != nil {
		t.Fatalf("encode c: %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Fatal("expected different trains for different seed")
	}
}

func TestEncodeRejectsBadRank(t *testing.T) {
	enc := newTestEncoder(t, model.DefaultEncoderConfig())

	tests := []struct {
		name string
		sig  Signal
	}{
		{name: "scalar", sig: Signal{Shape: nil, Values: []float64{0.5}}},
		{name: "rank3", sig: Signal{Shape: []int{1, 1, 2}, Values: []float64{0.5, 0.5}}},
		{name: "mismatched", sig: Signal{Shape: []int{2, 2}, Values: []float64{0.5}}},
		{name: "negative-dims", sig: Signal{Shape: []int{-1, -1}, Values: []float64{0.5}}},
		{name: "negative-vector", sig: Signal{Shape: []int{-1}, Values: []float64{}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			trains, err := enc.Encode(tc.sig, 100)
			if !errors.Is(err, ErrInputShape) {
				t.Fatalf("expected ErrInputShape, got %v", err)
			}
			if trains != nil {
				t.Fatalf("expected no partial output, got %v", trains)
			}
		})
	}

	if _, err := enc.EncodeMatrix([][]float64{{0.1, 0.2}, {0.3}}, 100); !errors.Is(err, ErrInputShape) {
		t.Fatalf("expected ragged matrix to be rejected, got %v", err)
	}
}

func TestNewEncoderValidation(t *testing.T) {
	bad := []model.EncoderConfig{
		{DT: 0, MaxFreq: 100},
		{DT: -1, MaxFreq: 100},
		{DT: 1, MaxFreq: -5},
		{DT: 1, MaxFreq: 100, RefractoryPeriod: -1},
		{DT: 1, MaxFreq: 100, RefractoryPeriod: math.NaN()},
		{DT: math.NaN(), MaxFreq: 100},
	}
	for _, cfg := range bad {
		if _, err := NewEncoder(cfg); err == nil {
			t.Fatalf("expected error for config %+v", cfg)
		}
	}
}

func TestEncodeZeroDuration(t *testing.T) {
	enc := newTestEncoder(t, model.DefaultEncoderConfig())
	trains, err := enc.EncodeVector([]float64{1, 1}, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(trains) != 2 || len(trains[0]) != 0 || len(trains[1]) != 0 {
		t.Fatalf("expected two empty trains, got %v", trains)
	}
}

func TestClip01(t *testing.T) {
	values := []float64{-0.5, 0.25, 1.5, 1}
	if n := Clip01(values); n != 2 {
		t.Fatalf("expected 2 clipped values, got %d", n)
	}
	want := []float64{0, 0.25, 1, 1}
	if !reflect.DeepEqual(values, want) {
		t.Fatalf("unexpected clipped values: got=%v want=%v", values, want)
	}
}

func assertRefractory(t *testing.T, trains []model.SpikeTrain, refractory float64) {
	t.Helper()
	for i, train := range trains {
		for j := 1; j < len(train); j++ {
			if gap := train[j] - train[j-1]; gap < refractory {
				t.Fatalf("train %d: spikes %v and %v closer than %v", i, train[j-1], train[j], refractory)
			}
		}
	}
}

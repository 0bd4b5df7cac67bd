package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"kora/internal/model"
)

func TestDecodeSpikesFixture(t *testing.T) {
	spikes, err := DecodeSpikes(readFixture(t, "cohort_spikes_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if spikes.CohortID != "cohort-minimal-1" {
		t.Fatalf("unexpected cohort id: %s", spikes.CohortID)
	}
	if len(spikes.Trains) != 2 || spikes.Trains[1][1] != 21 {
		t.Fatalf("unexpected trains: %+v", spikes.Trains)
	}
	if spikes.Encoder.MaxFreq != 100 || spikes.Encoder.Seed != 42 {
		t.Fatalf("unexpected encoder config: %+v", spikes.Encoder)
	}
}

func TestDecodeWeightsFixture(t *testing.T) {
	snapshot, err := DecodeWeights(readFixture(t, "weight_snapshot_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if snapshot.At(0, 1) != 0.25 || snapshot.At(1, 0) != -0.1 {
		t.Fatalf("unexpected weights: %+v", snapshot.Weights)
	}
}

func TestDecodeGRNFixture(t *testing.T) {
	grn, err := DecodeGRN(readFixture(t, "grn_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if len(grn.Edges) != 2 || grn.Edges[1].Type != model.EdgeRepression {
		t.Fatalf("unexpected edges: %+v", grn.Edges)
	}
}

func TestDecodeRunFixture(t *testing.T) {
	run, err := DecodeRun(readFixture(t, "run_record_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if !reflect.DeepEqual(run.Plasticity, model.DefaultPlasticityConfig()) {
		t.Fatalf("unexpected plasticity config: %+v", run.Plasticity)
	}
	if run.Mode != "independent" || len(run.CohortIDs) != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	_, err := DecodeWeights(readFixture(t, "weight_snapshot_v0.json"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeWeightsRejectsSizeMismatch(t *testing.T) {
	snapshot := model.WeightSnapshot{
		VersionedRecord: StampVersion(),
		RunID:           "r",
		CohortID:        "c",
		N:               2,
		Weights:         []float64{0, 1, 2},
	}
	data, err := EncodeWeights(snapshot)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeWeights(data); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestTrainingStatsRoundTrip(t *testing.T) {
	input := []model.TrainingStats{{
		VersionedRecord: StampVersion(),
		RunID:           "run-1",
		CohortID:        "c1",
		Mode:            "continual",
		NGenes:          3,
		Steps:           100,
		GridSpikes:      17,
		MeanAbsWeight:   0.02,
	}}
	data, err := EncodeTrainingStats(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeTrainingStats(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch: %+v != %+v", output, input)
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

package artifacts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kora/internal/model"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	artifacts := RunArtifacts{
		Run: model.RunRecord{RunID: runID, Mode: "independent", CohortIDs: []string{"c1"}},
		Stats: []model.TrainingStats{{
			RunID:    runID,
			CohortID: "c1",
			Steps:    10,
		}},
		Weights: []model.WeightSnapshot{{
			RunID:     runID,
			CohortID:  "c1",
			GeneNames: []string{"A", "B"},
			N:         2,
			Weights:   []float64{0, 0.5, -0.25, 0},
		}},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if _, err := WriteGRN(baseDir, model.GRN{RunID: runID, CohortID: "c1", Edges: []model.Edge{{Source: "A", Target: "B", Weight: 0.5, Type: model.EdgeActivation}}}); err != nil {
		t.Fatalf("write grn: %v", err)
	}

	files := []string{"run.json", "training_stats.json", filepath.Join("weights", "c1.csv"), filepath.Join("grn", "c1.csv")}
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	run, ok, err := ReadRun(outDir, runID)
	if err != nil || !ok {
		t.Fatalf("read exported run: ok=%v err=%v", ok, err)
	}
	if run.Mode != "independent" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestExportMissingRun(t *testing.T) {
	if _, err := ExportRunArtifacts(t.TempDir(), "missing", t.TempDir()); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestRunIndexAppendListAndUpsert(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z"},
	}
	for _, e := range entries {
		if err := AppendRunIndex(baseDir, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", Mode: "continual", CreatedAtUTC: "2026-01-03T00:00:00Z"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	listed, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(listed))
	}
	if listed[0].RunID != "a" || listed[0].Mode != "continual" {
		t.Fatalf("expected upserted run first, got %+v", listed[0])
	}
}

func TestListRunIndexMissingFile(t *testing.T) {
	listed, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty index, got %+v", listed)
	}
}

func TestWriteWeightsCSV(t *testing.T) {
	var buf bytes.Buffer
	snapshot := model.WeightSnapshot{GeneNames: []string{"A", "B"}, N: 2, Weights: []float64{0, 0.5, -0.25, 0}}
	if err := WriteWeightsCSV(&buf, snapshot); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "source,A,B\nA,0,0.5\nB,-0.25,0\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s\nwant:\n%s", buf.String(), want)
	}

	if err := WriteWeightsCSV(&buf, model.WeightSnapshot{N: 2, Weights: []float64{1}}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := map[string]string{
		"cohort-1":  "cohort-1",
		"a/b c":     "a_b_c",
		"///":       "unknown",
		"stage.III": "stage_III",
	}
	for in, want := range cases {
		if got := sanitizeToken(in); got != want {
			t.Fatalf("sanitizeToken(%q)=%q want=%q", in, got, want)
		}
	}
	if strings.Contains(sanitizeToken("../x"), "/") {
		t.Fatal("sanitized token contains a path separator")
	}
}

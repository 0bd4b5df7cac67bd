package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"kora/internal/model"
)

const runIndexFile = "run_index.json"

// RunArtifacts is everything a training run leaves on disk.
type RunArtifacts struct {
	Run     model.RunRecord
	Stats   []model.TrainingStats
	Weights []model.WeightSnapshot
}

type RunIndexEntry struct {
	RunID         string  `json:"run_id"`
	Mode          string  `json:"mode"`
	Cohorts       int     `json:"cohorts"`
	Genes         int     `json:"genes"`
	MeanAbsWeight float64 `json:"mean_abs_weight"`
	CreatedAtUTC  string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes run.json, training_stats.json and one weights CSV
// per cohort under baseDir/<run id>.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.RunID)
	weightsDir := filepath.Join(runDir, "weights")
	if err := os.MkdirAll(weightsDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "training_stats.json"), artifacts.Stats); err != nil {
		return "", err
	}
	for _, snapshot := range artifacts.Weights {
		path := filepath.Join(weightsDir, sanitizeToken(snapshot.CohortID)+".csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteWeightsCSV(w, snapshot) }); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// WriteGRN stores an extracted network next to the run's weights.
func WriteGRN(baseDir string, grn model.GRN) (string, error) {
	if grn.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	dir := filepath.Join(baseDir, grn.RunID, "grn")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, sanitizeToken(grn.CohortID)+".csv")
	if err := writeFile(path, func(w io.Writer) error { return WriteEdgesCSV(w, grn.Edges) }); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWeightsCSV writes the matrix with gene names as both header and row
// labels. Rows are sources, columns are targets.
func WriteWeightsCSV(out io.Writer, snapshot model.WeightSnapshot) error {
	if len(snapshot.Weights) != snapshot.N*snapshot.N {
		return fmt.Errorf("weight snapshot holds %d values for n=%d", len(snapshot.Weights), snapshot.N)
	}
	names := snapshot.GeneNames
	if len(names) != snapshot.N {
		names = make([]string, snapshot.N)
		for i := range names {
			names[i] = strconv.Itoa(i)
		}
	}

	writer := csv.NewWriter(out)
	if err := writer.Write(append([]string{"source"}, names...)); err != nil {
		return err
	}
	for i := 0; i < snapshot.N; i++ {
		record := make([]string, 0, snapshot.N+1)
		record = append(record, names[i])
		for j := 0; j < snapshot.N; j++ {
			record = append(record, strconv.FormatFloat(snapshot.At(i, j), 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteEdgesCSV(out io.Writer, edges []model.Edge) error {
	writer := csv.NewWriter(out)
	if err := writer.Write([]string{"source", "target", "weight", "type"}); err != nil {
		return err
	}
	for _, e := range edges {
		if err := writer.Write([]string{e.Source, e.Target, strconv.FormatFloat(e.Weight, 'g', -1, 64), e.Type}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies the run directory tree to outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "run.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func sanitizeToken(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	token := strings.Trim(b.String(), "_")
	if token == "" {
		return "unknown"
	}
	return token
}

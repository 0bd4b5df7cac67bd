package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"

	"kora/internal/artifacts"
	"kora/internal/expression"
	"kora/internal/storage"
	"kora/internal/synthetic"
	koraapi "kora/pkg/kora"
)

const (
	runsDir       = "runs"
	exportsDir    = "exports"
	defaultDBPath = "kora.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "encode":
		return runEncode(ctx, args[1:])
	case "synth":
		return runSynth(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "extract":
		return runExtract(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runEncode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	configPath := fs.String("config", "", "optional pipeline config JSON path")
	input := fs.String("input", "", "expression CSV (samples x genes, first column is the sample label)")
	cohortID := fs.String("cohort-id", "", "cohort id (defaults to the input file name)")
	verbose := fs.Bool("verbose", false, "log progress to stderr")
	pipelineValues := registerPipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("encode requires --input")
	}
	cfg, err := resolvePipelineConfig(fs, *configPath, pipelineValues())
	if err != nil {
		return err
	}

	client, err := openClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	id := *cohortID
	if id == "" {
		id = cohortIDFromPath(*input)
	}
	summary, err := encodeFile(ctx, client, cfg, id, *input)
	if err != nil {
		return err
	}
	printEncodeSummary(summary)
	return nil
}

func runSynth(ctx context.Context, args []string) error {
	defaults := synthetic.DefaultConfig()
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	genes := fs.Int("genes", defaults.Genes, "gene count")
	timepoints := fs.Int("timepoints", defaults.Timepoints, "samples per cohort")
	cohorts := fs.Int("cohorts", defaults.Cohorts, "cohort count")
	density := fs.Float64("density", defaults.Density, "probability of an edge between two genes")
	excitatory := fs.Float64("excitatory", defaults.Excitatory, "fraction of edges that activate")
	noise := fs.Float64("noise", defaults.Noise, "gaussian noise scale")
	decay := fs.Float64("decay", defaults.Decay, "expression update rate")
	seed := fs.Int64("seed", defaults.Seed, "rng seed")
	prefix := fs.String("prefix", "synthetic", "cohort id prefix")
	outDir := fs.String("out", "synthetic", "directory for cohort CSVs and truth.csv")
	intervalMS := fs.Float64("interval-ms", 20, "hold time per sample in ms")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Synthesize(ctx, koraapi.SynthRequest{
		Config: synthetic.Config{
			Genes:      *genes,
			Timepoints: *timepoints,
			Cohorts:    *cohorts,
			Density:    *density,
			Excitatory: *excitatory,
			Noise:      *noise,
			Decay:      *decay,
			Seed:       *seed,
		},
		CohortPrefix:     *prefix,
		SampleIntervalMS: *intervalMS,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	for i, id := range summary.CohortIDs {
		if err := writeMatrixFile(filepath.Join(*outDir, id+".csv"), summary.Series[i]); err != nil {
			return err
		}
	}
	truth := expression.Matrix{Samples: summary.GeneNames, Genes: summary.GeneNames, Values: squareRows(summary.Truth, len(summary.GeneNames))}
	if err := writeMatrixFile(filepath.Join(*outDir, "truth.csv"), truth); err != nil {
		return err
	}

	edges := 0
	for _, v := range summary.Truth {
		if v != 0 {
			edges++
		}
	}
	fmt.Printf("synthesized cohorts=%d genes=%d truth_edges=%d spikes=%s out=%s\n",
		len(summary.CohortIDs), len(summary.GeneNames), edges, humanize.Comma(int64(summary.Spikes)), filepath.Clean(*outDir))
	for _, id := range summary.CohortIDs {
		fmt.Printf("cohort_id=%s\n", id)
	}
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	configPath := fs.String("config", "", "optional pipeline config JSON path")
	cohortList := fs.String("cohorts", "", "comma-separated ids of encoded cohorts")
	inputList := fs.String("input", "", "comma-separated expression CSVs to encode before training")
	extract := fs.Bool("extract", false, "extract a GRN for every trained cohort")
	threshold := fs.Float64("threshold", 0, "fixed edge threshold (0 uses mean + sigma*std)")
	sigma := fs.Float64("sigma", 2, "standard deviations above mean |w| for the statistical threshold")
	truthPath := fs.String("truth", "", "optional ground-truth adjacency CSV for scoring")
	verbose := fs.Bool("verbose", false, "log progress to stderr")
	pipelineValues := registerPipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolvePipelineConfig(fs, *configPath, pipelineValues())
	if err != nil {
		return err
	}

	cohortIDs := splitList(*cohortList)
	inputs := splitList(*inputList)
	if len(cohortIDs) == 0 && len(inputs) == 0 {
		return errors.New("train requires --cohorts or --input")
	}
	truth, err := loadTruth(*truthPath)
	if err != nil {
		return err
	}

	client, err := openClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, path := range inputs {
		summary, err := encodeFile(ctx, client, cfg, cohortIDFromPath(path), path)
		if err != nil {
			return err
		}
		printEncodeSummary(summary)
		cohortIDs = append(cohortIDs, summary.CohortID)
	}

	summary, err := client.Train(ctx, koraapi.TrainRequest{
		CohortIDs:  cohortIDs,
		Mode:       cfg.Mode,
		Plasticity: cfg.Plasticity,
		DT:         cfg.DT,
		DurationMS: cfg.DurationMS,
		Workers:    cfg.Workers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("train completed run_id=%s mode=%s cohorts=%d\n", summary.RunID, summary.Mode, len(summary.Stats))
	for _, s := range summary.Stats {
		fmt.Printf("cohort_id=%s genes=%d steps=%s grid=%s spikes=%s mean_abs_w=%.6f max_w=%.6f min_w=%.6f\n",
			s.CohortID,
			s.NGenes,
			humanize.Comma(int64(s.Steps)),
			datasize.ByteSize(uint64(s.Steps)*uint64(s.NGenes)).HumanReadable(),
			humanize.Comma(int64(s.GridSpikes)),
			s.MeanAbsWeight,
			s.MaxWeight,
			s.MinWeight,
		)
	}
	fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)

	if !*extract {
		return nil
	}
	for _, s := range summary.Stats {
		res, err := client.Extract(ctx, koraapi.ExtractRequest{
			RunID:     summary.RunID,
			CohortID:  s.CohortID,
			Threshold: *threshold,
			Sigma:     *sigma,
			Truth:     truth,
		})
		if err != nil {
			return err
		}
		printExtractSummary(res)
	}
	return nil
}

func runExtract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	cohortID := fs.String("cohort", "", "cohort id (defaults to the run's last cohort)")
	threshold := fs.Float64("threshold", 0, "fixed edge threshold (0 uses mean + sigma*std)")
	sigma := fs.Float64("sigma", 2, "standard deviations above mean |w| for the statistical threshold")
	truthPath := fs.String("truth", "", "optional ground-truth adjacency CSV for scoring")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("extract requires --run-id or --latest")
	}
	truth, err := loadTruth(*truthPath)
	if err != nil {
		return err
	}

	client, err := openClient(*storeKind, *dbPath, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	res, err := client.Extract(ctx, koraapi.ExtractRequest{
		RunID:     *runID,
		Latest:    *latest,
		CohortID:  *cohortID,
		Threshold: *threshold,
		Sigma:     *sigma,
		Truth:     truth,
	})
	if err != nil {
		return err
	}
	printExtractSummary(res)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := artifacts.ListRunIndex(runsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s mode=%s cohorts=%d genes=%d mean_abs_w=%.6f\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Mode,
			e.Cohorts,
			e.Genes,
			e.MeanAbsWeight,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := openClient("memory", "", false)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, koraapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
	return nil
}

func openClient(storeKind, dbPath string, verbose bool) (*koraapi.Client, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return koraapi.New(koraapi.Options{
		StoreKind:    storeKind,
		DBPath:       dbPath,
		ArtifactsDir: runsDir,
		ExportsDir:   exportsDir,
		Logger:       logger,
	})
}

// registerPipelineFlags adds the encode/train overrides and returns a getter
// for their parsed values keyed by flag name.
func registerPipelineFlags(fs *flag.FlagSet) func() map[string]any {
	d := defaultPipelineConfig()
	mode := fs.String("mode", d.Mode, "training mode: independent|continual")
	dt := fs.Float64("dt", d.Encoder.DT, "simulation step in ms")
	durationMS := fs.Float64("duration-ms", d.DurationMS, "training duration per cohort in ms (0 uses the encoded duration)")
	workers := fs.Int("workers", d.Workers, "parallel cohorts for independent training")
	normalize := fs.String("normalize", d.Normalize, "expression normalization: rescale|clip|none")
	intervalMS := fs.Float64("interval-ms", d.IntervalMS, "hold time per sample in ms")
	maxNeurons := fs.Int("max-neurons", d.MaxNeurons, "keep at most this many highest-variance genes")
	maxFreq := fs.Float64("max-freq", d.Encoder.MaxFreq, "firing rate in Hz at expression 1.0")
	refractory := fs.Float64("refractory", d.Encoder.RefractoryPeriod, "refractory period in ms")
	seed := fs.Int64("seed", d.Encoder.Seed, "encoder rng seed")
	rule := fs.String("rule", d.Plasticity.Rule, "plasticity rule: causal_stdp|none")
	lr := fs.Float64("lr", d.Plasticity.LearningRate, "STDP learning rate")
	tauPlus := fs.Float64("tau-plus", d.Plasticity.TauPlus, "LTP time constant in ms")
	tauMinus := fs.Float64("tau-minus", d.Plasticity.TauMinus, "LTD time constant in ms")
	aPlus := fs.Float64("a-plus", d.Plasticity.APlus, "LTP amplitude")
	aMinus := fs.Float64("a-minus", d.Plasticity.AMinus, "LTD amplitude")
	wMin := fs.Float64("w-min", d.Plasticity.WMin, "lower weight bound")
	wMax := fs.Float64("w-max", d.Plasticity.WMax, "upper weight bound")
	traceDecay := fs.Float64("trace-decay", d.Plasticity.TraceDecay, "per-step trace decay in [0,1]")
	modulation := fs.Float64("modulation", d.Plasticity.Modulation, "learning modulation factor")

	return func() map[string]any {
		return map[string]any{
			"mode":        *mode,
			"dt":          *dt,
			"duration-ms": *durationMS,
			"workers":     *workers,
			"normalize":   *normalize,
			"interval-ms": *intervalMS,
			"max-neurons": *maxNeurons,
			"max-freq":    *maxFreq,
			"refractory":  *refractory,
			"seed":        *seed,
			"rule":        *rule,
			"lr":          *lr,
			"tau-plus":    *tauPlus,
			"tau-minus":   *tauMinus,
			"a-plus":      *aPlus,
			"a-minus":     *aMinus,
			"w-min":       *wMin,
			"w-max":       *wMax,
			"trace-decay": *traceDecay,
			"modulation":  *modulation,
		}
	}
}

func resolvePipelineConfig(fs *flag.FlagSet, configPath string, values map[string]any) (pipelineConfig, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	cfg, err := loadOrDefaultPipelineConfig(configPath)
	if err != nil {
		return pipelineConfig{}, err
	}
	if err := overrideFromFlags(&cfg, setFlags, values); err != nil {
		return pipelineConfig{}, err
	}
	return cfg, nil
}

func encodeFile(ctx context.Context, client *koraapi.Client, cfg pipelineConfig, cohortID, path string) (koraapi.EncodeSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return koraapi.EncodeSummary{}, err
	}
	defer file.Close()

	matrix, err := expression.ReadCSV(file)
	if err != nil {
		return koraapi.EncodeSummary{}, fmt.Errorf("%s: %w", path, err)
	}
	return client.Encode(ctx, koraapi.EncodeRequest{
		CohortID:         cohortID,
		Matrix:           matrix,
		Normalize:        cfg.Normalize,
		SampleIntervalMS: cfg.IntervalMS,
		Encoder:          cfg.Encoder,
		MaxNeurons:       cfg.MaxNeurons,
	})
}

func loadTruth(path string) ([]float64, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	matrix, err := expression.ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n := matrix.NumGenes()
	if matrix.NumSamples() != n {
		return nil, fmt.Errorf("ground truth must be square, got %dx%d", matrix.NumSamples(), n)
	}
	truth := make([]float64, 0, n*n)
	for _, row := range matrix.Values {
		truth = append(truth, row...)
	}
	return truth, nil
}

func writeMatrixFile(path string, m expression.Matrix) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := expression.WriteCSV(file, m); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func squareRows(flat []float64, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = flat[i*n : (i+1)*n]
	}
	return rows
}

func printEncodeSummary(s koraapi.EncodeSummary) {
	fmt.Printf("encoded cohort_id=%s samples=%d genes=%d duration_ms=%.1f spikes=%s clipped=%d\n",
		s.CohortID, s.Samples, s.Genes, s.DurationMS, humanize.Comma(int64(s.Spikes)), s.Clipped)
}

func printExtractSummary(res koraapi.ExtractSummary) {
	activation, repression := 0, 0
	for _, e := range res.GRN.Edges {
		if e.Weight > 0 {
			activation++
		} else {
			repression++
		}
	}
	fmt.Printf("extracted run_id=%s cohort_id=%s threshold=%.6f edges=%d activation=%d repression=%d path=%s\n",
		res.GRN.RunID, res.GRN.CohortID, res.GRN.Threshold, len(res.GRN.Edges), activation, repression, filepath.Clean(res.Path))
	if res.Metrics != nil {
		fmt.Printf("precision=%.4f recall=%.4f f1=%.4f true_edges=%d inferred_edges=%d\n",
			res.Metrics.Precision, res.Metrics.Recall, res.Metrics.F1, res.Metrics.EdgesTrue, res.Metrics.EdgesInferred)
	}
}

func cohortIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: koractl <init|encode|synth|train|extract|runs|export> [flags]", msg)
}

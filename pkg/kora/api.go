package kora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"kora/internal/artifacts"
	"kora/internal/encoding"
	"kora/internal/expression"
	"kora/internal/grn"
	"kora/internal/model"
	"kora/internal/storage"
	"kora/internal/synthetic"
	"kora/internal/training"
)

const (
	defaultArtifactsDir     = "runs"
	defaultExportsDir       = "exports"
	defaultDBPath           = "kora.db"
	defaultSampleIntervalMS = 20.0
	defaultTrainWorkers     = 4
	defaultRunsLimit        = 20
	createdAtLayout         = "2006-01-02T15:04:05.000000000Z"

	NormalizeRescale = "rescale"
	NormalizeClip    = "clip"
	NormalizeNone    = "none"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	initOnce sync.Once
	initErr  error

	artifactsDir string
	exportsDir   string
}

type EncodeRequest struct {
	CohortID string
	Matrix   expression.Matrix
	// Normalize is one of rescale (default), clip or none.
	Normalize        string
	SampleIntervalMS float64
	// DurationMS defaults to samples * SampleIntervalMS.
	DurationMS float64
	Encoder    model.EncoderConfig
	MaxNeurons int
}

type EncodeSummary struct {
	CohortID   string
	Samples    int
	Genes      int
	DurationMS float64
	Spikes     int
	Clipped    int
}

type SynthRequest struct {
	Config           synthetic.Config
	CohortPrefix     string
	SampleIntervalMS float64
	Encoder          model.EncoderConfig
}

type SynthSummary struct {
	CohortIDs []string
	GeneNames []string
	Truth     []float64
	Series    []expression.Matrix
	Spikes    int
}

type TrainRequest struct {
	CohortIDs  []string
	Mode       string
	Plasticity model.PlasticityConfig
	// DT defaults to the encoder step of the first cohort.
	DT float64
	// DurationMS overrides every cohort's duration when positive.
	DurationMS  float64
	Workers     int
	GridWorkers int
}

type TrainSummary struct {
	RunID        string
	Mode         string
	ArtifactsDir string
	Stats        []model.TrainingStats
}

type ExtractRequest struct {
	RunID    string
	Latest   bool
	CohortID string
	// Threshold is used as is when positive; otherwise mean + Sigma*std.
	Threshold float64
	Sigma     float64
	// Truth is an optional n x n ground-truth adjacency, row-major.
	Truth []float64
}

type ExtractSummary struct {
	GRN     model.GRN
	Path    string
	Metrics *grn.Metrics
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Encode normalizes one cohort's expression table, caps it to the most
// variable genes, converts it to spike trains and stores them.
func (c *Client) Encode(ctx context.Context, req EncodeRequest) (EncodeSummary, error) {
	if err := c.Init(ctx); err != nil {
		return EncodeSummary{}, err
	}
	if req.CohortID == "" {
		req.CohortID = uuid.NewString()
	}
	if req.Normalize == "" {
		req.Normalize = NormalizeRescale
	}
	if req.SampleIntervalMS <= 0 {
		req.SampleIntervalMS = defaultSampleIntervalMS
	}
	if req.Encoder == (model.EncoderConfig{}) {
		req.Encoder = model.DefaultEncoderConfig()
	}
	if req.MaxNeurons <= 0 {
		req.MaxNeurons = expression.DefaultMaxNeurons
	}
	if req.Matrix.NumSamples() == 0 || req.Matrix.NumGenes() == 0 {
		return EncodeSummary{}, errors.New("expression matrix is empty")
	}

	matrix := req.Matrix
	clipped := 0
	switch req.Normalize {
	case NormalizeRescale:
		rescaled, err := matrix.Rescale()
		if err != nil {
			return EncodeSummary{}, err
		}
		matrix = rescaled
	case NormalizeClip:
		matrix, clipped = matrix.Clip()
	case NormalizeNone:
	default:
		return EncodeSummary{}, fmt.Errorf("unsupported normalization: %s", req.Normalize)
	}

	var selected []int
	if matrix.NumGenes() > req.MaxNeurons {
		selected = matrix.SelectVariableGenes(req.MaxNeurons)
		c.logger.Info("capped genes", "cohort", req.CohortID, "genes", matrix.NumGenes(), "kept", len(selected))
		matrix = matrix.Columns(selected)
	}

	duration := req.DurationMS
	if duration <= 0 {
		duration = float64(matrix.NumSamples()) * req.SampleIntervalMS
	}

	encoder, err := encoding.NewEncoder(req.Encoder)
	if err != nil {
		return EncodeSummary{}, err
	}
	trains, err := encoder.Encode(matrix.Signal(), duration)
	if err != nil {
		return EncodeSummary{}, fmt.Errorf("encode cohort %s: %w", req.CohortID, err)
	}

	spikes := model.CohortSpikes{
		VersionedRecord: storage.StampVersion(),
		CohortID:        req.CohortID,
		GeneNames:       append([]string(nil), matrix.Genes...),
		DurationMS:      duration,
		Encoder:         req.Encoder,
		Trains:          trains,
		SelectedIndices: selected,
	}
	if err := c.store.SaveSpikes(ctx, spikes); err != nil {
		return EncodeSummary{}, err
	}

	return EncodeSummary{
		CohortID:   req.CohortID,
		Samples:    matrix.NumSamples(),
		Genes:      matrix.NumGenes(),
		DurationMS: duration,
		Spikes:     countSpikes(trains),
		Clipped:    clipped,
	}, nil
}

// Synthesize generates benchmark cohorts from a random ground-truth network
// and encodes each of them.
func (c *Client) Synthesize(ctx context.Context, req SynthRequest) (SynthSummary, error) {
	if req.Config == (synthetic.Config{}) {
		req.Config = synthetic.DefaultConfig()
	}
	if req.CohortPrefix == "" {
		req.CohortPrefix = "synthetic"
	}
	generator, err := synthetic.NewGenerator(req.Config)
	if err != nil {
		return SynthSummary{}, err
	}
	dataset := generator.Generate()

	names := grn.DefaultGeneNames(dataset.Genes)
	summary := SynthSummary{
		GeneNames: names,
		Truth:     dataset.Truth,
	}
	for i, series := range dataset.Cohorts {
		samples := make([]string, len(series))
		for t := range samples {
			samples[t] = fmt.Sprintf("t%d", t)
		}
		matrix := expression.Matrix{Samples: samples, Genes: append([]string(nil), names...), Values: series}
		encoded, err := c.Encode(ctx, EncodeRequest{
			CohortID:         fmt.Sprintf("%s-%d", req.CohortPrefix, i),
			Matrix:           matrix,
			Normalize:        NormalizeNone,
			SampleIntervalMS: req.SampleIntervalMS,
			Encoder:          req.Encoder,
		})
		if err != nil {
			return SynthSummary{}, err
		}
		summary.CohortIDs = append(summary.CohortIDs, encoded.CohortID)
		summary.Series = append(summary.Series, matrix)
		summary.Spikes += encoded.Spikes
	}
	return summary, nil
}

// Train runs STDP over stored cohorts and persists weights, statistics and
// the run record under a new run ID.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if err := c.Init(ctx); err != nil {
		return TrainSummary{}, err
	}
	if len(req.CohortIDs) == 0 {
		return TrainSummary{}, errors.New("at least one cohort is required")
	}
	if req.Mode == "" {
		req.Mode = training.ModeIndependent
	}
	if req.Mode != training.ModeIndependent && req.Mode != training.ModeContinual {
		return TrainSummary{}, fmt.Errorf("unsupported training mode: %s", req.Mode)
	}
	if req.Plasticity == (model.PlasticityConfig{}) {
		req.Plasticity = model.DefaultPlasticityConfig()
	}
	if req.Workers <= 0 {
		req.Workers = defaultTrainWorkers
	}

	loaded := make([]model.CohortSpikes, 0, len(req.CohortIDs))
	for _, id := range req.CohortIDs {
		spikes, ok, err := c.store.GetSpikes(ctx, id)
		if err != nil {
			return TrainSummary{}, err
		}
		if !ok {
			return TrainSummary{}, fmt.Errorf("cohort not found: %s", id)
		}
		loaded = append(loaded, spikes)
	}
	if req.DT <= 0 {
		req.DT = loaded[0].Encoder.DT
	}
	if req.Mode == training.ModeContinual {
		for _, spikes := range loaded[1:] {
			if len(spikes.Trains) != len(loaded[0].Trains) {
				return TrainSummary{}, fmt.Errorf("continual training needs equal gene counts: cohort %s has %d, cohort %s has %d",
					spikes.CohortID, len(spikes.Trains), loaded[0].CohortID, len(loaded[0].Trains))
			}
		}
	}

	cohorts := make([]training.Cohort, len(loaded))
	for i, spikes := range loaded {
		duration := req.DurationMS
		if duration <= 0 {
			duration = spikes.DurationMS
		}
		if duration <= 0 {
			duration = training.InferDuration(spikes.Trains)
		}
		cohorts[i] = training.Cohort{
			ID:         spikes.CohortID,
			Trains:     spikes.Trains,
			DurationMS: duration,
			DT:         req.DT,
		}
	}

	cfg := training.Config{
		Plasticity:  req.Plasticity,
		GridWorkers: req.GridWorkers,
		Logger:      c.logger,
	}
	var results []training.CohortResult
	var err error
	if req.Mode == training.ModeContinual {
		results, _, err = training.TrainContinual(cfg, cohorts)
	} else {
		results, err = training.TrainIndependentAll(ctx, cfg, cohorts, req.Workers)
	}
	if err != nil {
		return TrainSummary{}, err
	}

	runID := uuid.NewString()
	run := model.RunRecord{
		VersionedRecord: storage.StampVersion(),
		RunID:           runID,
		CreatedAtUTC:    time.Now().UTC().Format(createdAtLayout),
		Mode:            req.Mode,
		CohortIDs:       append([]string(nil), req.CohortIDs...),
		DT:              req.DT,
		DurationMS:      req.DurationMS,
		Plasticity:      req.Plasticity,
	}

	stats := make([]model.TrainingStats, len(results))
	snapshots := make([]model.WeightSnapshot, len(results))
	for i, res := range results {
		snapshots[i] = model.WeightSnapshot{
			VersionedRecord: storage.StampVersion(),
			RunID:           runID,
			CohortID:        res.CohortID,
			GeneNames:       loaded[i].GeneNames,
			SelectedIndices: loaded[i].SelectedIndices,
			N:               res.Weights.N(),
			Weights:         res.Weights.Raw(),
		}
		stats[i] = model.TrainingStats{
			VersionedRecord: storage.StampVersion(),
			RunID:           runID,
			CohortID:        res.CohortID,
			Mode:            res.Mode,
			NGenes:          res.Weights.N(),
			DurationMS:      res.DurationMS,
			DT:              res.DT,
			Steps:           res.Steps,
			GridSpikes:      res.GridSpikes,
			MeanAbsWeight:   res.Stats.MeanAbs,
			MaxWeight:       res.Stats.Max,
			MinWeight:       res.Stats.Min,
		}
		if err := c.store.SaveWeights(ctx, snapshots[i]); err != nil {
			return TrainSummary{}, err
		}
	}
	if err := c.store.SaveTrainingStats(ctx, runID, stats); err != nil {
		return TrainSummary{}, err
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return TrainSummary{}, err
	}

	runDir, err := artifacts.WriteRunArtifacts(c.artifactsDir, artifacts.RunArtifacts{
		Run:     run,
		Stats:   stats,
		Weights: snapshots,
	})
	if err != nil {
		return TrainSummary{}, err
	}
	last := stats[len(stats)-1]
	if err := artifacts.AppendRunIndex(c.artifactsDir, artifacts.RunIndexEntry{
		RunID:         runID,
		Mode:          req.Mode,
		Cohorts:       len(cohorts),
		Genes:         last.NGenes,
		MeanAbsWeight: last.MeanAbsWeight,
		CreatedAtUTC:  run.CreatedAtUTC,
	}); err != nil {
		return TrainSummary{}, err
	}
	c.logger.Info("training complete", "run_id", runID, "mode", req.Mode, "cohorts", len(cohorts))

	return TrainSummary{
		RunID:        runID,
		Mode:         req.Mode,
		ArtifactsDir: filepath.Clean(runDir),
		Stats:        stats,
	}, nil
}

// Extract thresholds a stored weight snapshot into a GRN. Without a cohort
// ID the last cohort of the run is used.
func (c *Client) Extract(ctx context.Context, req ExtractRequest) (ExtractSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ExtractSummary{}, err
	}
	run, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExtractSummary{}, err
	}
	cohortID := req.CohortID
	if cohortID == "" {
		if len(run.CohortIDs) == 0 {
			return ExtractSummary{}, fmt.Errorf("run %s has no cohorts", run.RunID)
		}
		cohortID = run.CohortIDs[len(run.CohortIDs)-1]
	}

	snapshot, err := c.Weights(ctx, run.RunID, cohortID)
	if err != nil {
		return ExtractSummary{}, err
	}
	result, err := grn.Extractor{Threshold: req.Threshold, Sigma: req.Sigma}.Extract(snapshot)
	if err != nil {
		return ExtractSummary{}, err
	}

	network := model.GRN{
		VersionedRecord: storage.StampVersion(),
		RunID:           run.RunID,
		CohortID:        cohortID,
		Threshold:       result.Threshold,
		Edges:           result.Edges,
	}
	if err := c.store.SaveGRN(ctx, network); err != nil {
		return ExtractSummary{}, err
	}
	path, err := artifacts.WriteGRN(c.artifactsDir, network)
	if err != nil {
		return ExtractSummary{}, err
	}

	summary := ExtractSummary{GRN: network, Path: path}
	if req.Truth != nil {
		metrics, err := grn.Compare(result.Adjacency, req.Truth)
		if err != nil {
			return ExtractSummary{}, err
		}
		summary.Metrics = &metrics
	}
	return summary, nil
}

func (c *Client) Weights(ctx context.Context, runID, cohortID string) (model.WeightSnapshot, error) {
	if err := c.Init(ctx); err != nil {
		return model.WeightSnapshot{}, err
	}
	snapshot, ok, err := c.store.GetWeights(ctx, runID, cohortID)
	if err != nil {
		return model.WeightSnapshot{}, err
	}
	if !ok {
		return model.WeightSnapshot{}, fmt.Errorf("weights not found for run %s cohort %s", runID, cohortID)
	}
	return snapshot, nil
}

func (c *Client) TrainingStats(ctx context.Context, runID string) ([]model.TrainingStats, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	stats, ok, err := c.store.GetTrainingStats(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("training stats not found for run %s", runID)
	}
	return stats, nil
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, min(len(runs), req.Limit))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := artifacts.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := artifacts.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRun(ctx context.Context, runID string, latest bool) (model.RunRecord, error) {
	if runID != "" && latest {
		return model.RunRecord{}, errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return model.RunRecord{}, errors.New("run id or latest is required")
	}
	if latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return model.RunRecord{}, err
		}
		if len(runs) == 0 {
			return model.RunRecord{}, errors.New("no runs available")
		}
		return runs[len(runs)-1], nil
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

func countSpikes(trains []model.SpikeTrain) int {
	total := 0
	for _, train := range trains {
		total += train.Count()
	}
	return total
}

package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/c2h5oh/datasize"

	"kora/internal/model"
	"kora/internal/nn"
)

const (
	ModeIndependent = "independent"
	ModeContinual   = "continual"

	// DurationPadMS is added to the last spike when a cohort has no duration.
	DurationPadMS = 100.0

	progressEvery = 10
)

// Cohort is one training unit: a spike train per neuron plus its timing.
type Cohort struct {
	ID         string
	Trains     []model.SpikeTrain
	DurationMS float64
	DT         float64
	// Modulation scales learning for this cohort; 0 uses the configured value.
	Modulation float64
}

// CohortResult summarizes one completed cohort.
type CohortResult struct {
	CohortID   string
	Mode       string
	Steps      int
	GridSpikes int
	DurationMS float64
	DT         float64
	Weights    *nn.Weights
	Stats      nn.WeightStats
}

type Config struct {
	Neurons    int
	Plasticity model.PlasticityConfig
	// GridWorkers bounds the goroutines used to build the spike grid.
	GridWorkers int
	Logger      *slog.Logger
}

// Trainer owns one Network and its weight matrix for a whole session.
// Weights persist across cohorts; traces are reset per cohort.
type Trainer struct {
	mu      sync.Mutex
	network *nn.Network
	workers int
	logger  *slog.Logger
	cohorts int
}

func NewTrainer(cfg Config) (*Trainer, error) {
	if cfg.Neurons < 0 {
		return nil, fmt.Errorf("neurons must be >= 0, got %d", cfg.Neurons)
	}
	network, err := nn.NewNetwork(cfg.Neurons, cfg.Plasticity)
	if err != nil {
		return nil, err
	}
	workers := cfg.GridWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Trainer{
		network: network,
		workers: workers,
		logger:  logger,
	}, nil
}

func (t *Trainer) Neurons() int {
	return t.network.Size()
}

// Snapshot copies the current weights. It waits for an in-flight step, never
// for a whole cohort.
func (t *Trainer) Snapshot() *nn.Weights {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.network.Weights().Clone()
}

// CohortsTrained counts cohorts completed by this trainer.
func (t *Trainer) CohortsTrained() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cohorts
}

// TrainCohort resets traces, replays the cohort's spikes step by step with
// learning on, and returns a snapshot of the weights. A cohort trained after
// an earlier one on the same Trainer starts from its weights and is labelled
// continual.
func (t *Trainer) TrainCohort(trains []model.SpikeTrain, durationMS, dt float64) (*nn.Weights, error) {
	res, err := t.train(Cohort{Trains: trains, DurationMS: durationMS, DT: dt}, ModeIndependent)
	if err != nil {
		return nil, err
	}
	return res.Weights, nil
}

// TrainCohortResult is TrainCohort with per-cohort statistics.
func (t *Trainer) TrainCohortResult(c Cohort) (CohortResult, error) {
	return t.train(c, ModeIndependent)
}

// TrainBatch trains cohorts in order on the same weights, without resetting
// them between cohorts.
func (t *Trainer) TrainBatch(cohorts []Cohort) ([]CohortResult, *nn.Weights, error) {
	results := make([]CohortResult, 0, len(cohorts))
	for i, c := range cohorts {
		res, err := t.train(c, ModeContinual)
		if err != nil {
			return results, nil, fmt.Errorf("cohort %d (%s): %w", i, c.ID, err)
		}
		results = append(results, res)
		if (i+1)%progressEvery == 0 {
			t.logger.Info("processed cohorts", "count", i+1, "total", len(cohorts))
		}
	}
	return results, t.Snapshot(), nil
}

func (t *Trainer) train(c Cohort, mode string) (CohortResult, error) {
	if len(c.Trains) != t.network.Size() {
		return CohortResult{}, fmt.Errorf("cohort has %d spike trains, network has %d neurons", len(c.Trains), t.network.Size())
	}
	if c.DT <= 0 || math.IsNaN(c.DT) {
		return CohortResult{}, fmt.Errorf("dt must be > 0, got %v", c.DT)
	}
	duration := c.DurationMS
	if duration < 0 || math.IsNaN(duration) {
		return CohortResult{}, fmt.Errorf("duration must be >= 0, got %v", duration)
	}

	steps := int(math.Floor(duration / c.DT))
	grid := BuildGrid(c.Trains, steps, c.DT, t.workers)
	t.logger.Debug("built spike grid",
		"cohort", c.ID,
		"steps", steps,
		"neurons", grid.Neurons(),
		"size", datasize.ByteSize(grid.Bytes()).HumanReadable(),
	)

	t.mu.Lock()
	if mode == ModeIndependent && t.cohorts > 0 {
		mode = ModeContinual
	}
	t.network.Reset()
	t.network.SetModulation(c.Modulation)
	t.mu.Unlock()

	for step := 0; step < steps; step++ {
		t.mu.Lock()
		t.network.Step(grid.Row(step), c.DT, true)
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.cohorts++
	snapshot := t.network.Weights().Clone()
	t.mu.Unlock()

	return CohortResult{
		CohortID:   c.ID,
		Mode:       mode,
		Steps:      steps,
		GridSpikes: grid.Spikes(),
		DurationMS: duration,
		DT:         c.DT,
		Weights:    snapshot,
		Stats:      snapshot.Stats(),
	}, nil
}

// TrainIndependent trains one cohort on a freshly constructed Trainer.
func TrainIndependent(cfg Config, c Cohort) (CohortResult, error) {
	cfg.Neurons = len(c.Trains)
	trainer, err := NewTrainer(cfg)
	if err != nil {
		return CohortResult{}, err
	}
	return trainer.TrainCohortResult(c)
}

// TrainContinual trains all cohorts in order on one Trainer so that weights
// carry from each cohort into the next.
func TrainContinual(cfg Config, cohorts []Cohort) ([]CohortResult, *nn.Weights, error) {
	if len(cohorts) == 0 {
		return nil, nil, errors.New("at least one cohort is required")
	}
	cfg.Neurons = len(cohorts[0].Trains)
	trainer, err := NewTrainer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return trainer.TrainBatch(cohorts)
}

// TrainIndependentAll trains every cohort on its own Trainer using a bounded
// worker pool. Results keep the input order. Cancellation is checked before
// each cohort starts.
func TrainIndependentAll(ctx context.Context, cfg Config, cohorts []Cohort, workers int) ([]CohortResult, error) {
	type job struct {
		idx    int
		cohort Cohort
	}
	type result struct {
		idx int
		res CohortResult
		err error
	}

	if len(cohorts) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(cohorts) {
		workers = len(cohorts)
	}
	// Each cohort already runs on its own worker; keep grid building serial.
	if cfg.GridWorkers <= 0 {
		cfg.GridWorkers = 1
	}

	jobs := make(chan job)
	results := make(chan result, len(cohorts))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				res, err := TrainIndependent(cfg, j.cohort)
				results <- result{idx: j.idx, res: res, err: err}
			}
		}()
	}

	for i := range cohorts {
		jobs <- job{idx: i, cohort: cohorts[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]CohortResult, len(cohorts))
	var firstErr error
	firstErrIdx := len(cohorts)
	for r := range results {
		if r.err != nil {
			if r.idx < firstErrIdx {
				firstErr = fmt.Errorf("cohort %d (%s): %w", r.idx, cohorts[r.idx].ID, r.err)
				firstErrIdx = r.idx
			}
			continue
		}
		out[r.idx] = r.res
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// InferDuration returns the last spike time plus DurationPadMS.
func InferDuration(trains []model.SpikeTrain) float64 {
	last := 0.0
	for _, train := range trains {
		for _, t := range train {
			if t > last {
				last = t
			}
		}
	}
	return last + DurationPadMS
}

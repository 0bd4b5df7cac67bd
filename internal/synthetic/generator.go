package synthetic

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Config describes a synthetic benchmark: a random sparse ground-truth
// network and expression dynamics driven by it.
type Config struct {
	Genes      int
	Timepoints int
	Cohorts    int
	Density    float64
	// Excitatory is the probability that an edge is +1 rather than -1.
	Excitatory float64
	Noise      float64
	Decay      float64
	Seed       int64
}

func DefaultConfig() Config {
	return Config{
		Genes:      50,
		Timepoints: 50,
		Cohorts:    10,
		Density:    0.1,
		Excitatory: 0.7,
		Noise:      0.1,
		Decay:      0.2,
		Seed:       42,
	}
}

func (c Config) Validate() error {
	if c.Genes <= 0 || c.Timepoints <= 0 || c.Cohorts <= 0 {
		return errors.New("genes, timepoints and cohorts must be > 0")
	}
	if c.Density < 0 || c.Density > 1 {
		return fmt.Errorf("density must be in [0, 1], got %v", c.Density)
	}
	if c.Excitatory < 0 || c.Excitatory > 1 {
		return fmt.Errorf("excitatory fraction must be in [0, 1], got %v", c.Excitatory)
	}
	if c.Decay < 0 || c.Decay > 1 {
		return fmt.Errorf("decay must be in [0, 1], got %v", c.Decay)
	}
	if c.Noise < 0 {
		return fmt.Errorf("noise must be >= 0, got %v", c.Noise)
	}
	return nil
}

// Dataset holds the ground truth and one timepoints x genes series per cohort.
type Dataset struct {
	Genes int
	// Truth is row-major, row = source, column = target, entries in {-1, 0, 1}.
	Truth   []float64
	Cohorts [][][]float64
}

type Generator struct {
	cfg Config
	rng *rand.Rand
}

func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

func (g *Generator) Generate() Dataset {
	truth := g.groundTruth()
	cohorts := make([][][]float64, g.cfg.Cohorts)
	for c := range cohorts {
		cohorts[c] = g.simulate(truth)
	}
	return Dataset{Genes: g.cfg.Genes, Truth: truth, Cohorts: cohorts}
}

func (g *Generator) groundTruth() []float64 {
	n := g.cfg.Genes
	truth := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || g.rng.Float64() >= g.cfg.Density {
				continue
			}
			if g.rng.Float64() < g.cfg.Excitatory {
				truth[i*n+j] = 1
			} else {
				truth[i*n+j] = -1
			}
		}
	}
	return truth
}

// simulate runs x(t+1) = clip((1-decay)x(t) + decay*sigmoid(W^T x(t)) + noise).
func (g *Generator) simulate(truth []float64) [][]float64 {
	n := g.cfg.Genes
	series := make([][]float64, g.cfg.Timepoints)
	x := make([]float64, n)
	for i := range x {
		x[i] = 0.5 * g.rng.Float64()
	}
	series[0] = append([]float64(nil), x...)

	for t := 1; t < g.cfg.Timepoints; t++ {
		next := make([]float64, n)
		for j := 0; j < n; j++ {
			input := 0.0
			for i := 0; i < n; i++ {
				input += x[i] * truth[i*n+j]
			}
			activation := 1 / (1 + math.Exp(-input))
			v := (1-g.cfg.Decay)*x[j] + g.cfg.Decay*activation + g.cfg.Noise*g.rng.NormFloat64()
			next[j] = math.Min(1, math.Max(0, v))
		}
		series[t] = next
		x = next
	}
	return series
}

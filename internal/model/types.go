package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// SpikeTrain is the ascending list of spike times (ms) emitted by one neuron.
type SpikeTrain []float64

// Count returns the number of spikes in the train.
func (s SpikeTrain) Count() int {
	return len(s)
}

// EncoderConfig controls rate-based spike encoding.
type EncoderConfig struct {
	DT               float64 `json:"dt"`
	MaxFreq          float64 `json:"max_freq"`
	RefractoryPeriod float64 `json:"refractory_period"`
	Seed             int64   `json:"seed"`
}

func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		DT:               1.0,
		MaxFreq:          100.0,
		RefractoryPeriod: 0.0,
		Seed:             42,
	}
}

// PlasticityConfig holds the STDP parameters. It is supplied once per run
// and never mutated while training.
type PlasticityConfig struct {
	Rule         string  `json:"rule"`
	LearningRate float64 `json:"learning_rate"`
	TauPlus      float64 `json:"tau_plus"`
	TauMinus     float64 `json:"tau_minus"`
	APlus        float64 `json:"a_plus"`
	AMinus       float64 `json:"a_minus"`
	WMin         float64 `json:"w_min"`
	WMax         float64 `json:"w_max"`
	TraceDecay   float64 `json:"trace_decay"`
	Modulation   float64 `json:"modulation"`
}

func DefaultPlasticityConfig() PlasticityConfig {
	return PlasticityConfig{
		Rule:         "causal_stdp",
		LearningRate: 0.01,
		TauPlus:      20.0,
		TauMinus:     20.0,
		APlus:        1.0,
		AMinus:       1.0,
		WMin:         -1.0,
		WMax:         1.0,
		TraceDecay:   0.1,
		Modulation:   1.0,
	}
}

// CohortSpikes is the persisted output of encoding one cohort.
type CohortSpikes struct {
	VersionedRecord
	CohortID   string        `json:"cohort_id"`
	GeneNames  []string      `json:"gene_names"`
	DurationMS float64       `json:"duration_ms"`
	Encoder    EncoderConfig `json:"encoder"`
	Trains     []SpikeTrain  `json:"trains"`
	// SelectedIndices maps each train back to its column in the source
	// expression table when genes were capped.
	SelectedIndices []int `json:"selected_indices,omitempty"`
}

// WeightSnapshot is a dense n x n weight matrix stored row-major.
// Row is the source (regulator), column is the target.
type WeightSnapshot struct {
	VersionedRecord
	RunID           string    `json:"run_id"`
	CohortID        string    `json:"cohort_id"`
	GeneNames       []string  `json:"gene_names"`
	SelectedIndices []int     `json:"selected_indices,omitempty"`
	N               int       `json:"n"`
	Weights         []float64 `json:"weights"`
}

// At returns the weight from source i to target j.
func (w WeightSnapshot) At(i, j int) float64 {
	return w.Weights[i*w.N+j]
}

type TrainingStats struct {
	VersionedRecord
	RunID         string  `json:"run_id"`
	CohortID      string  `json:"cohort_id"`
	Mode          string  `json:"mode"`
	NGenes        int     `json:"n_genes"`
	DurationMS    float64 `json:"duration_ms"`
	DT            float64 `json:"dt"`
	Steps         int     `json:"steps"`
	GridSpikes    int     `json:"grid_spikes"`
	MeanAbsWeight float64 `json:"mean_abs_weight"`
	MaxWeight     float64 `json:"max_weight"`
	MinWeight     float64 `json:"min_weight"`
}

const (
	EdgeActivation = "activation"
	EdgeRepression = "repression"
)

type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Type   string  `json:"type"`
}

type GRN struct {
	VersionedRecord
	RunID     string  `json:"run_id"`
	CohortID  string  `json:"cohort_id"`
	Threshold float64 `json:"threshold"`
	Edges     []Edge  `json:"edges"`
}

type RunRecord struct {
	VersionedRecord
	RunID        string           `json:"run_id"`
	CreatedAtUTC string           `json:"created_at_utc"`
	Mode         string           `json:"mode"`
	CohortIDs    []string         `json:"cohort_ids"`
	DT           float64          `json:"dt"`
	DurationMS   float64          `json:"duration_ms"`
	Plasticity   PlasticityConfig `json:"plasticity"`
}

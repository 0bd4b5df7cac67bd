package storage

import (
	"context"

	"kora/internal/model"
)

// Store defines transaction-like persistence operations for encoded cohorts,
// trained weights and the networks extracted from them.
type Store interface {
	Init(ctx context.Context) error
	SaveSpikes(ctx context.Context, spikes model.CohortSpikes) error
	GetSpikes(ctx context.Context, cohortID string) (model.CohortSpikes, bool, error)
	ListCohorts(ctx context.Context) ([]string, error)
	SaveWeights(ctx context.Context, snapshot model.WeightSnapshot) error
	GetWeights(ctx context.Context, runID, cohortID string) (model.WeightSnapshot, bool, error)
	SaveTrainingStats(ctx context.Context, runID string, stats []model.TrainingStats) error
	GetTrainingStats(ctx context.Context, runID string) ([]model.TrainingStats, bool, error)
	SaveGRN(ctx context.Context, grn model.GRN) error
	GetGRN(ctx context.Context, runID, cohortID string) (model.GRN, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}

// StampVersion returns the record versions written by this build.
func StampVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

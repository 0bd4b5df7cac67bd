package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"kora/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	spikes      map[string]model.CohortSpikes
	weights     map[string]model.WeightSnapshot
	stats       map[string][]model.TrainingStats
	grns        map[string]model.GRN
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.spikes = make(map[string]model.CohortSpikes)
	s.weights = make(map[string]model.WeightSnapshot)
	s.stats = make(map[string][]model.TrainingStats)
	s.grns = make(map[string]model.GRN)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func runCohortKey(runID, cohortID string) string {
	return runID + "/" + cohortID
}

func (s *MemoryStore) SaveSpikes(_ context.Context, spikes model.CohortSpikes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.spikes[spikes.CohortID] = cloneSpikes(spikes)
	return nil
}

func (s *MemoryStore) GetSpikes(_ context.Context, cohortID string) (model.CohortSpikes, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spikes, ok := s.spikes[cohortID]
	if !ok {
		return model.CohortSpikes{}, false, nil
	}
	return cloneSpikes(spikes), true, nil
}

func (s *MemoryStore) ListCohorts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.spikes))
	for id := range s.spikes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) SaveWeights(_ context.Context, snapshot model.WeightSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	snapshot.Weights = append([]float64(nil), snapshot.Weights...)
	snapshot.GeneNames = append([]string(nil), snapshot.GeneNames...)
	snapshot.SelectedIndices = append([]int(nil), snapshot.SelectedIndices...)
	s.weights[runCohortKey(snapshot.RunID, snapshot.CohortID)] = snapshot
	return nil
}

func (s *MemoryStore) GetWeights(_ context.Context, runID, cohortID string) (model.WeightSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.weights[runCohortKey(runID, cohortID)]
	if !ok {
		return model.WeightSnapshot{}, false, nil
	}
	snapshot.Weights = append([]float64(nil), snapshot.Weights...)
	return snapshot, true, nil
}

func (s *MemoryStore) SaveTrainingStats(_ context.Context, runID string, stats []model.TrainingStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.stats[runID] = append([]model.TrainingStats(nil), stats...)
	return nil
}

func (s *MemoryStore) GetTrainingStats(_ context.Context, runID string) ([]model.TrainingStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.TrainingStats(nil), stats...), true, nil
}

func (s *MemoryStore) SaveGRN(_ context.Context, grn model.GRN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	grn.Edges = append([]model.Edge(nil), grn.Edges...)
	s.grns[runCohortKey(grn.RunID, grn.CohortID)] = grn
	return nil
}

func (s *MemoryStore) GetGRN(_ context.Context, runID, cohortID string) (model.GRN, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grn, ok := s.grns[runCohortKey(runID, cohortID)]
	if !ok {
		return model.GRN{}, false, nil
	}
	grn.Edges = append([]model.Edge(nil), grn.Edges...)
	return grn, true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	run.CohortIDs = append([]string(nil), run.CohortIDs...)
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

// ListRuns returns runs ordered by creation time, oldest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
	})
}

func cloneSpikes(s model.CohortSpikes) model.CohortSpikes {
	s.GeneNames = append([]string(nil), s.GeneNames...)
	trains := make([]model.SpikeTrain, len(s.Trains))
	for i, train := range s.Trains {
		trains[i] = append(model.SpikeTrain(nil), train...)
	}
	s.Trains = trains
	return s
}

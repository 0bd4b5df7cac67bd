package storage

import (
	"encoding/json"
	"errors"

	"kora/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeSpikes(s model.CohortSpikes) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSpikes(data []byte) (model.CohortSpikes, error) {
	var spikes model.CohortSpikes
	if err := json.Unmarshal(data, &spikes); err != nil {
		return model.CohortSpikes{}, err
	}
	if err := checkVersion(spikes.VersionedRecord); err != nil {
		return model.CohortSpikes{}, err
	}
	return spikes, nil
}

func EncodeWeights(w model.WeightSnapshot) ([]byte, error) {
	return json.Marshal(w)
}

func DecodeWeights(data []byte) (model.WeightSnapshot, error) {
	var snapshot model.WeightSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.WeightSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.WeightSnapshot{}, err
	}
	if len(snapshot.Weights) != snapshot.N*snapshot.N {
		return model.WeightSnapshot{}, errors.New("weight snapshot size does not match n")
	}
	return snapshot, nil
}

func EncodeTrainingStats(stats []model.TrainingStats) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeTrainingStats(data []byte) ([]model.TrainingStats, error) {
	var stats []model.TrainingStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	for _, s := range stats {
		if err := checkVersion(s.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func EncodeGRN(g model.GRN) ([]byte, error) {
	return json.Marshal(g)
}

func DecodeGRN(data []byte) (model.GRN, error) {
	var grn model.GRN
	if err := json.Unmarshal(data, &grn); err != nil {
		return model.GRN{}, err
	}
	if err := checkVersion(grn.VersionedRecord); err != nil {
		return model.GRN{}, err
	}
	return grn, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

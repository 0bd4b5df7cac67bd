//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"kora/internal/model"

	_ "modernc.org/sqlite"
)

func DefaultStoreKind() string {
	return KindSQLite
}

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveSpikes(ctx context.Context, spikes model.CohortSpikes) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSpikes(spikes)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO spikes (cohort_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cohort_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, spikes.CohortID, spikes.SchemaVersion, spikes.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetSpikes(ctx context.Context, cohortID string) (model.CohortSpikes, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.CohortSpikes{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM spikes WHERE cohort_id = ?`, cohortID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CohortSpikes{}, false, nil
		}
		return model.CohortSpikes{}, false, err
	}

	spikes, err := DecodeSpikes(payload)
	if err != nil {
		return model.CohortSpikes{}, false, fmt.Errorf("decode spikes %s: %w", cohortID, err)
	}
	return spikes, true, nil
}

func (s *SQLiteStore) ListCohorts(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT cohort_id FROM spikes ORDER BY cohort_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SaveWeights(ctx context.Context, snapshot model.WeightSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeWeights(snapshot)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO weights (run_id, cohort_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cohort_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snapshot.RunID, snapshot.CohortID, snapshot.SchemaVersion, snapshot.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetWeights(ctx context.Context, runID, cohortID string) (model.WeightSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.WeightSnapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM weights WHERE run_id = ? AND cohort_id = ?`, runID, cohortID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.WeightSnapshot{}, false, nil
		}
		return model.WeightSnapshot{}, false, err
	}

	snapshot, err := DecodeWeights(payload)
	if err != nil {
		return model.WeightSnapshot{}, false, fmt.Errorf("decode weights %s/%s: %w", runID, cohortID, err)
	}
	return snapshot, true, nil
}

func (s *SQLiteStore) SaveTrainingStats(ctx context.Context, runID string, stats []model.TrainingStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTrainingStats(stats)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO training_stats (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetTrainingStats(ctx context.Context, runID string) ([]model.TrainingStats, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM training_stats WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	stats, err := DecodeTrainingStats(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode training stats %s: %w", runID, err)
	}
	return stats, true, nil
}

func (s *SQLiteStore) SaveGRN(ctx context.Context, grn model.GRN) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGRN(grn)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO grns (run_id, cohort_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cohort_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, grn.RunID, grn.CohortID, grn.SchemaVersion, grn.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetGRN(ctx context.Context, runID, cohortID string) (model.GRN, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.GRN{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM grns WHERE run_id = ? AND cohort_id = ?`, runID, cohortID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.GRN{}, false, nil
		}
		return model.GRN{}, false, err
	}

	grn, err := DecodeGRN(payload)
	if err != nil {
		return model.GRN{}, false, fmt.Errorf("decode grn %s/%s: %w", runID, cohortID, err)
	}
	return grn, true, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at_utc, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload
	`, run.RunID, run.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, payload FROM runs ORDER BY created_at_utc, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			runID   string
			payload []byte
		)
		if err := rows.Scan(&runID, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", runID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS spikes (
			cohort_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS weights (
			run_id TEXT NOT NULL,
			cohort_id TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, cohort_id)
		);
		CREATE TABLE IF NOT EXISTS training_stats (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS grns (
			run_id TEXT NOT NULL,
			cohort_id TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, cohort_id)
		);
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}

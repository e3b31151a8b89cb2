//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"coevolve/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
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

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunSummary) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	stamp(&run.VersionedRecord)
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			started_at = excluded.started_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.RunID, run.StartedAt.UnixNano(), run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (model.RunSummary, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunSummary{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunSummary{}, false, nil
		}
		return model.RunSummary{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunSummary{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, payload FROM runs ORDER BY started_at DESC, run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.RunSummary, 0)
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
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendGeneration(ctx context.Context, rec model.GenerationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGeneration(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (run_id, population, generation, objective, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, population, generation, objective) DO UPDATE SET
			payload = excluded.payload
	`, rec.RunID, rec.Population, rec.Generation, rec.Objective, payload)
	return err
}

func (s *SQLiteStore) GetGenerations(ctx context.Context, runID, population string) ([]model.GenerationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT payload FROM generations
		WHERE run_id = ? AND (? = '' OR population = ?)
		ORDER BY generation ASC, objective ASC, population ASC
	`, runID, population, population)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.GenerationRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := DecodeGeneration(payload)
		if err != nil {
			return nil, fmt.Errorf("decode generation for run %s: %w", runID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveBestGenome(ctx context.Context, rec model.BestGenomeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeBestGenome(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO best_genomes (run_id, population, generation, objective, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, population, generation, objective) DO UPDATE SET
			payload = excluded.payload
	`, rec.RunID, rec.Population, rec.Generation, rec.Objective, payload)
	return err
}

func (s *SQLiteStore) GetBestGenomes(ctx context.Context, runID, population string) ([]model.BestGenomeRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT payload FROM best_genomes
		WHERE run_id = ? AND (? = '' OR population = ?)
		ORDER BY generation ASC, objective ASC, population ASC
	`, runID, population, population)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.BestGenomeRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := DecodeBestGenome(payload)
		if err != nil {
			return nil, fmt.Errorf("decode best genome for run %s: %w", runID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap model.PopulationSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, population, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, population) DO UPDATE SET
			payload = excluded.payload
	`, snap.ID, snap.Population, payload)
	return err
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, runID, population string) (model.PopulationSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PopulationSnapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE run_id = ? AND population = ?`, runID, population).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PopulationSnapshot{}, false, nil
		}
		return model.PopulationSnapshot{}, false, err
	}

	snap, err := DecodeSnapshot(payload)
	if err != nil {
		return model.PopulationSnapshot{}, false, fmt.Errorf("decode snapshot %s/%s: %w", runID, population, err)
	}
	return snap, true, nil
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
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			population TEXT NOT NULL,
			generation INTEGER NOT NULL,
			objective INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, population, generation, objective)
		);
		CREATE TABLE IF NOT EXISTS best_genomes (
			run_id TEXT NOT NULL,
			population TEXT NOT NULL,
			generation INTEGER NOT NULL,
			objective INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, population, generation, objective)
		);
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			population TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, population)
		);
	`)
	return err
}

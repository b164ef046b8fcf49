package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// SQLiteStore is a TrialStore backed by a single SQLite file. The full record
// is kept as JSON; cancer type and status are duplicated into columns for
// filtering.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the catalog database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createTrialSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createTrialSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trials (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		nct_number TEXT NOT NULL UNIQUE,
		cancer_type TEXT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trials_cancer_type ON trials(cancer_type);
	CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(status);
	`

	_, err := db.Exec(schema)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrial(s scanner) (*domain.Trial, error) {
	var data string
	if err := s.Scan(&data); err != nil {
		return nil, err
	}

	var t domain.Trial
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to decode trial record: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) queryTrials(ctx context.Context, query string, args ...interface{}) ([]domain.Trial, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Trial, 0)
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTrials returns every trial, or only those of cancerType when it is set
func (s *SQLiteStore) GetTrials(ctx context.Context, cancerType *domain.CancerType) ([]domain.Trial, error) {
	if cancerType == nil {
		return s.queryTrials(ctx, "SELECT data FROM trials ORDER BY position")
	}
	return s.queryTrials(ctx, "SELECT data FROM trials WHERE cancer_type = ? ORDER BY position", string(*cancerType))
}

// GetTrial returns the trial with the given NCT number or domain.ErrNotFound
func (s *SQLiteStore) GetTrial(ctx context.Context, nctNumber string) (*domain.Trial, error) {
	row := s.db.QueryRowContext(ctx, "SELECT data FROM trials WHERE nct_number = ?", nctNumber)

	t, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return t, nil
}

// ListTrials returns one page of trials passing the filter
func (s *SQLiteStore) ListTrials(ctx context.Context, filter domain.TrialFilter) ([]domain.Trial, error) {
	filter = filter.Normalize()

	query := "SELECT data FROM trials WHERE 1=1"
	var args []interface{}
	if filter.CancerType != nil {
		query += " AND cancer_type = ?"
		args = append(args, string(*filter.CancerType))
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY position LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Skip)

	return s.queryTrials(ctx, query, args...)
}

// CountTrials returns the number of stored trials
func (s *SQLiteStore) CountTrials(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&count)
	return count, err
}

// CreateTrial validates and inserts a trial
func (s *SQLiteStore) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	if err := trial.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(trial)
	if err != nil {
		return fmt.Errorf("failed to encode trial: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM trials WHERE nct_number = ?", trial.NCTNumber).Scan(&exists)
	if err == nil {
		return fmt.Errorf("trial %s: %w", trial.NCTNumber, domain.ErrAlreadyExists)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trials (id, nct_number, cancer_type, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		trial.ID,
		trial.NCTNumber,
		string(trial.CancerType),
		string(trial.Status),
		string(data),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return tx.Commit()
}

// UpdateTrial applies a partial update and validates the merged record
func (s *SQLiteStore) UpdateTrial(ctx context.Context, nctNumber string, patch *domain.TrialPatch) (*domain.Trial, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanTrial(tx.QueryRowContext(ctx, "SELECT data FROM trials WHERE nct_number = ?", nctNumber))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	updated := patch.Apply(*current)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(&updated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trial: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE trials SET
			status = ?,
			data = ?,
			updated_at = ?
		WHERE nct_number = ?
	`,
		string(updated.Status),
		string(data),
		time.Now(),
		nctNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return &updated, nil
}

// DeleteTrial removes a trial by NCT number
func (s *SQLiteStore) DeleteTrial(ctx context.Context, nctNumber string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM trials WHERE nct_number = ?", nctNumber)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}
	return nil
}

// Close closes the store and releases resources
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

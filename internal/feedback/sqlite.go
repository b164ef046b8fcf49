package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite feedback store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the MCP server read while the CLI writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFeedback scans a row into a Feedback struct.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var cancerType, confidence, outcome string

	err := s.Scan(
		&fb.ID, &fb.NCTNumber, &cancerType, &fb.Score,
		&confidence, &outcome, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.CancerType = domain.CancerType(cancerType)
	fb.Confidence = domain.ConfidenceLevel(confidence)
	fb.Outcome = Outcome(outcome)
	return fb, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS match_feedback (
		id TEXT PRIMARY KEY,
		nct_number TEXT NOT NULL,
		cancer_type TEXT DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		confidence TEXT DEFAULT '',
		outcome TEXT NOT NULL,
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_nct_number ON match_feedback(nct_number);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON match_feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

const selectFeedback = `
	SELECT id, nct_number, cancer_type, score, confidence, outcome, notes, created_at, updated_at
	FROM match_feedback`

// Save stores or updates feedback.
func (s *SQLiteStore) Save(ctx context.Context, feedback *Feedback) error {
	if err := feedback.Validate(); err != nil {
		return err
	}
	feedback.ensureID()
	now := time.Now().UTC()

	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM match_feedback WHERE id = ?", feedback.ID).Scan(&existing)

	if err == nil {
		feedback.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE match_feedback SET
				nct_number = ?,
				cancer_type = ?,
				score = ?,
				confidence = ?,
				outcome = ?,
				notes = ?,
				updated_at = ?
			WHERE id = ?
		`,
			feedback.NCTNumber,
			string(feedback.CancerType),
			feedback.Score,
			string(feedback.Confidence),
			string(feedback.Outcome),
			feedback.Notes,
			now,
			feedback.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		return s.db.QueryRowContext(ctx, "SELECT created_at FROM match_feedback WHERE id = ?", feedback.ID).
			Scan(&feedback.CreatedAt)
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = now
	}
	feedback.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_feedback (
			id, nct_number, cancer_type, score, confidence, outcome, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		feedback.ID,
		feedback.NCTNumber,
		string(feedback.CancerType),
		feedback.Score,
		string(feedback.Confidence),
		string(feedback.Outcome),
		feedback.Notes,
		feedback.CreatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get retrieves feedback by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx, selectFeedback+" WHERE id = ?", id)

	fb, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return fb, nil
}

// List returns feedback entries with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx, selectFeedback+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

// Count returns the total number of feedback entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM match_feedback").Scan(&count)
	return count, err
}

// Delete removes a feedback entry by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM match_feedback WHERE id = ?", id)
	return err
}

// ExportJSON exports all feedback to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports feedback from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

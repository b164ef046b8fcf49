// Package repository persists the trial catalog in PostgreSQL
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

const uniqueViolation = "23505"

const trialColumns = `id, nct_number, title, phase, sponsor, status, location, distance,
	cancer_type, last_updated, eligibility_score, match_confidence,
	eligibility_criteria, burden, exclusion_risks, translated_info`

// TrialRepository implements domain.TrialStore over the trials table. Nested
// structures (criteria, burden, risks, translated info) live in JSONB columns.
type TrialRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewTrialRepository creates a new trial repository
func NewTrialRepository(db *pgxpool.Pool, logger *logrus.Logger) *TrialRepository {
	return &TrialRepository{
		db:  db,
		log: logger,
	}
}

type trialJSON struct {
	criteria, burden, risks, info []byte
}

func encodeTrialJSON(t *domain.Trial) (trialJSON, error) {
	var out trialJSON
	var err error

	criteria := t.EligibilityCriteria
	if criteria == nil {
		criteria = []domain.EligibilityCriterion{}
	}
	if out.criteria, err = json.Marshal(criteria); err != nil {
		return out, fmt.Errorf("encoding eligibility criteria: %w", err)
	}
	if out.burden, err = json.Marshal(t.Burden); err != nil {
		return out, fmt.Errorf("encoding burden: %w", err)
	}
	if out.risks, err = json.Marshal(t.ExclusionRisks); err != nil {
		return out, fmt.Errorf("encoding exclusion risks: %w", err)
	}
	if out.info, err = json.Marshal(t.TranslatedInfo); err != nil {
		return out, fmt.Errorf("encoding translated info: %w", err)
	}
	return out, nil
}

func scanTrial(row pgx.Row) (*domain.Trial, error) {
	var t domain.Trial
	var raw trialJSON

	err := row.Scan(
		&t.ID,
		&t.NCTNumber,
		&t.Title,
		&t.Phase,
		&t.Sponsor,
		&t.Status,
		&t.Location,
		&t.Distance,
		&t.CancerType,
		&t.LastUpdated,
		&t.EligibilityScore,
		&t.MatchConfidence,
		&raw.criteria,
		&raw.burden,
		&raw.risks,
		&raw.info,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(raw.criteria, &t.EligibilityCriteria); err != nil {
		return nil, fmt.Errorf("decoding eligibility criteria of %s: %w", t.NCTNumber, err)
	}
	if err := json.Unmarshal(raw.burden, &t.Burden); err != nil {
		return nil, fmt.Errorf("decoding burden of %s: %w", t.NCTNumber, err)
	}
	if err := json.Unmarshal(raw.risks, &t.ExclusionRisks); err != nil {
		return nil, fmt.Errorf("decoding exclusion risks of %s: %w", t.NCTNumber, err)
	}
	if err := json.Unmarshal(raw.info, &t.TranslatedInfo); err != nil {
		return nil, fmt.Errorf("decoding translated info of %s: %w", t.NCTNumber, err)
	}
	return &t, nil
}

func (r *TrialRepository) queryTrials(ctx context.Context, query string, args ...interface{}) ([]domain.Trial, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trials: %w", err)
	}
	defer rows.Close()

	trials := make([]domain.Trial, 0)
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trial: %w", err)
		}
		trials = append(trials, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trials: %w", err)
	}
	return trials, nil
}

// GetTrials returns every trial, or only those of cancerType when it is set
func (r *TrialRepository) GetTrials(ctx context.Context, cancerType *domain.CancerType) ([]domain.Trial, error) {
	if cancerType == nil {
		return r.queryTrials(ctx, `SELECT `+trialColumns+` FROM trials ORDER BY position`)
	}
	return r.queryTrials(ctx, `SELECT `+trialColumns+` FROM trials WHERE cancer_type = $1 ORDER BY position`,
		string(*cancerType))
}

// GetTrial retrieves a trial by its NCT number
func (r *TrialRepository) GetTrial(ctx context.Context, nctNumber string) (*domain.Trial, error) {
	row := r.db.QueryRow(ctx, `SELECT `+trialColumns+` FROM trials WHERE nct_number = $1`, nctNumber)

	t, err := scanTrial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"nct_number": nctNumber,
			"error":      err,
		}).Error("Failed to get trial")
		return nil, fmt.Errorf("getting trial: %w", err)
	}
	return t, nil
}

// ListTrials returns one page of trials passing the filter
func (r *TrialRepository) ListTrials(ctx context.Context, filter domain.TrialFilter) ([]domain.Trial, error) {
	filter = filter.Normalize()

	var where []string
	var args []interface{}
	if filter.CancerType != nil {
		args = append(args, string(*filter.CancerType))
		where = append(where, fmt.Sprintf("cancer_type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + trialColumns + ` FROM trials`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Skip)
	query += fmt.Sprintf(" ORDER BY position LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryTrials(ctx, query, args...)
}

// CountTrials returns the number of trials in the catalog
func (r *TrialRepository) CountTrials(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM trials").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting trials: %w", err)
	}
	return count, nil
}

// CreateTrial validates and inserts a new trial
func (r *TrialRepository) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	if err := trial.Validate(); err != nil {
		return err
	}

	raw, err := encodeTrialJSON(trial)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trials (` + trialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.db.Exec(ctx, query,
		trial.ID,
		trial.NCTNumber,
		trial.Title,
		string(trial.Phase),
		trial.Sponsor,
		string(trial.Status),
		trial.Location,
		trial.Distance,
		string(trial.CancerType),
		trial.LastUpdated,
		string(trial.EligibilityScore),
		string(trial.MatchConfidence),
		raw.criteria,
		raw.burden,
		raw.risks,
		raw.info,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("trial %s: %w", trial.NCTNumber, domain.ErrAlreadyExists)
		}
		r.log.WithFields(logrus.Fields{
			"nct_number": trial.NCTNumber,
			"error":      err,
		}).Error("Failed to create trial")
		return fmt.Errorf("creating trial: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"nct_number":  trial.NCTNumber,
		"cancer_type": trial.CancerType,
	}).Info("Trial created successfully")

	return nil
}

// UpdateTrial applies a partial update inside a transaction, validating the merged record
func (r *TrialRepository) UpdateTrial(ctx context.Context, nctNumber string, patch *domain.TrialPatch) (*domain.Trial, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanTrial(tx.QueryRow(ctx,
		`SELECT `+trialColumns+` FROM trials WHERE nct_number = $1 FOR UPDATE`, nctNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("loading trial: %w", err)
	}

	updated := patch.Apply(*current)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	raw, err := encodeTrialJSON(&updated)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE trials SET
			title = $2, phase = $3, sponsor = $4, status = $5, location = $6,
			distance = $7, last_updated = $8, eligibility_score = $9, match_confidence = $10,
			eligibility_criteria = $11, burden = $12, exclusion_risks = $13, translated_info = $14,
			updated_at = NOW()
		WHERE nct_number = $1`

	_, err = tx.Exec(ctx, query,
		nctNumber,
		updated.Title,
		string(updated.Phase),
		updated.Sponsor,
		string(updated.Status),
		updated.Location,
		updated.Distance,
		updated.LastUpdated,
		string(updated.EligibilityScore),
		string(updated.MatchConfidence),
		raw.criteria,
		raw.burden,
		raw.risks,
		raw.info,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"nct_number": nctNumber,
			"error":      err,
		}).Error("Failed to update trial")
		return nil, fmt.Errorf("updating trial: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing trial update: %w", err)
	}

	r.log.WithField("nct_number", nctNumber).Info("Trial updated successfully")
	return &updated, nil
}

// DeleteTrial removes a trial by NCT number
func (r *TrialRepository) DeleteTrial(ctx context.Context, nctNumber string) error {
	result, err := r.db.Exec(ctx, "DELETE FROM trials WHERE nct_number = $1", nctNumber)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"nct_number": nctNumber,
			"error":      err,
		}).Error("Failed to delete trial")
		return fmt.Errorf("deleting trial: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("trial %s: %w", nctNumber, domain.ErrNotFound)
	}

	r.log.WithField("nct_number", nctNumber).Info("Trial deleted successfully")
	return nil
}

// Package feedback stores clinician feedback on surfaced trial matches: whether
// a suggested trial led to enrollment, a screen failure or was not pursued.
package feedback

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// Outcome is what happened after a match was shown to the care team
type Outcome string

const (
	OutcomeEnrolled     Outcome = "enrolled"
	OutcomeScreenFailed Outcome = "screen_failed"
	OutcomeNotPursued   Outcome = "not_pursued"
	OutcomePending      Outcome = "pending"
)

// Feedback is one clinician report about a match
type Feedback struct {
	ID         string                 `json:"id,omitempty"`
	NCTNumber  string                 `json:"nct_number" validate:"required,nct"`
	CancerType domain.CancerType      `json:"cancer_type,omitempty" validate:"omitempty,oneof=breast lung"`
	Score      int                    `json:"score,omitempty" validate:"omitempty,min=85,max=99"`
	Confidence domain.ConfidenceLevel `json:"confidence,omitempty" validate:"omitempty,oneof=high medium low"`
	Outcome    Outcome                `json:"outcome" validate:"required,oneof=enrolled screen_failed not_pursued pending"`
	Notes      string                 `json:"notes,omitempty" validate:"max=2000"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Validate checks the NCT number, outcome and optional score fields
func (f *Feedback) Validate() error {
	return domain.ValidateStruct(f)
}

// ensureID assigns a new UUID to feedback saved without one
func (f *Feedback) ensureID() {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. A record without an ID gets a new one;
	// a record whose ID exists replaces the stored values.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves feedback by ID. It returns nil, nil when none exists.
	Get(ctx context.Context, id string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	Count(ctx context.Context) (int64, error)

	Delete(ctx context.Context, id string) error

	// ExportJSON writes all feedback in the FeedbackExport format.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads a FeedbackExport. Entries whose ID already exists are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

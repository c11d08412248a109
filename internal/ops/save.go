package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/submission"
)

// SaveInput contains parameters for the Save operation.
type SaveInput struct {
	Form   string              // default: api
	Values map[string][]string // raw name → values
}

// SaveOutput contains the result of the Save operation.
type SaveOutput struct {
	ID      string    `json:"id"`
	Form    string    `json:"form"`
	SavedAt time.Time `json:"savedAt"`
}

// Save assembles a record from values and stores it as a draft for review.
// Incomplete or invalid values are rejected before anything is stored.
func Save(ctx context.Context, database *sql.DB, input SaveInput) (*SaveOutput, error) {
	reg, err := lookupForm(input.Form)
	if err != nil {
		return nil, err
	}
	snap := form.FromValues(reg, input.Values)
	if err := gate(snap); err != nil {
		return nil, err
	}

	rec := submission.Assemble(snap)
	if err := db.InsertDraft(ctx, database, rec); err != nil {
		return nil, err
	}

	return &SaveOutput{
		ID:      rec.ID,
		Form:    rec.Form,
		SavedAt: rec.SavedAt,
	}, nil
}

// gate applies the submit preconditions: no validation errors, then every
// section complete.
func gate(snap *form.Snapshot) error {
	if errs := snap.Validate(); len(errs) > 0 {
		return errors.NewValidationFailed(errs)
	}
	if c := snap.Completion(); !c.Complete() {
		return errors.NewIncomplete(c.Incomplete())
	}
	return nil
}

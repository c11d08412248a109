package ops

import (
	"context"
	"database/sql"

	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/submission"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string
	IncludeDeleted bool
	IncludeText    *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	db.Draft                      // embedded (copy, not pointer)
	Text       string             `json:"text,omitempty"`
	Groups     []submission.Group `json:"-"`
	Dispatches []db.DispatchEntry `json:"dispatches"`
}

// Fetch retrieves a draft by identifier together with its rendered text and
// dispatch history.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	d, err := db.GetDraft(ctx, database, id, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	dispatches, err := db.ListDispatches(ctx, database, id)
	if err != nil {
		return nil, err
	}
	if dispatches == nil {
		dispatches = []db.DispatchEntry{}
	}

	output := &FetchOutput{
		Draft:      *d,
		Groups:     submission.Groups(d.Record),
		Dispatches: dispatches,
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}
	if includeText {
		output.Text = submission.Render(d.Record)
	}

	return output, nil
}

package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/terminus-industrials/intake/internal/db"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Form           string // optional filter
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []db.DraftSummary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List retrieves draft summaries with pagination, newest first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	formName := strings.TrimSpace(input.Form)
	if formName != "" {
		if _, err := lookupForm(formName); err != nil {
			return nil, err
		}
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	items, total, err := db.ListDrafts(ctx, database, db.ListFilter{
		Form:           formName,
		IncludeDeleted: input.IncludeDeleted,
	}, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if items == nil {
		items = []db.DraftSummary{}
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "saved_at_desc",
	}, nil
}

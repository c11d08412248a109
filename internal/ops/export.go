package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/errors"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Form           string // optional filter
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Count      int   `json:"count"`
	ExportedAt int64 `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export.
type ExportHeader struct {
	IntakeExport  bool   `json:"_intake_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// Export writes drafts to w as JSONL: a header line, then one draft per line
// in saved order.
func Export(ctx context.Context, database *sql.DB, w io.Writer, input ExportInput) (*ExportOutput, error) {
	formName := strings.TrimSpace(input.Form)
	if formName != "" {
		if _, err := lookupForm(formName); err != nil {
			return nil, err
		}
	}

	exportedAt := time.Now().Unix()
	enc := json.NewEncoder(w)
	if err := enc.Encode(ExportHeader{
		IntakeExport:  true,
		SchemaVersion: "1.0",
		ExportedAt:    exportedAt,
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := db.StreamForExport(ctx, database, formName, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternal(err)
		}
		d, err := db.ScanDraftFromRows(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := enc.Encode(d); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ExportOutput{Count: count, ExportedAt: exportedAt}, nil
}

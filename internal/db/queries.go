package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/submission"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.IntakeError{
	Code:    errors.ErrUniqueConstraint,
	Status:  409,
	Message: "unique constraint violation",
}

// Draft is a stored submission record.
type Draft struct {
	submission.Record

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64 `json:"deletedAt,omitempty"`
}

// DraftSummary is the listing view of a draft.
type DraftSummary struct {
	ID           string    `json:"id"`
	Form         string    `json:"form"`
	Company      string    `json:"company,omitempty"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	SavedAt      time.Time `json:"savedAt"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Sent         int       `json:"sent"`
	DeletedAt    *int64    `json:"deletedAt,omitempty"`
}

// DispatchEntry is one line of the dispatch log.
type DispatchEntry struct {
	ID          string    `json:"id"`
	RecordID    string    `json:"recordId"`
	Form        string    `json:"form"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// ListFilter narrows ListDrafts.
type ListFilter struct {
	Form           string // optional
	IncludeDeleted bool
}

const draftColumns = `id, form, values_json, saved_at, submitted_at, deleted_at`

// InsertDraft stores a record. Identifiers are never reused.
func InsertDraft(ctx context.Context, db *sql.DB, r submission.Record) error {
	valuesJSON, err := json.Marshal(r.Values)
	if err != nil {
		return errors.NewInternal(err)
	}

	company, contact := summaryFields(r)
	query := `
		INSERT INTO drafts (
			id, form, values_json, company, contact_email, saved_at, submitted_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = db.ExecContext(ctx, query,
		r.ID, r.Form, string(valuesJSON), toNullString(company), toNullString(contact),
		toUnixNano(r.SavedAt), toUnixNano(r.SubmittedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// summaryFields picks the organisation and address used in listings.
func summaryFields(r submission.Record) (company, contact string) {
	company = r.Text("companyName")
	if company == "" {
		company = r.Text("company")
	}
	contact = r.Text("contactEmail")
	if contact == "" {
		contact = r.Text("email")
	}
	return company, contact
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetDraft retrieves a draft by its ULID.
// If includeDeleted is false, soft-deleted drafts are excluded.
func GetDraft(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	d, err := scanDraft(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return d, nil
}

// ListDrafts returns summaries ordered by saved_at descending (id breaks
// ties) along with the total matching count.
func ListDrafts(ctx context.Context, db *sql.DB, filter ListFilter, limit, offset int) ([]DraftSummary, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Form != "" {
		where = append(where, "d.form = ?")
		args = append(args, filter.Form)
	}
	if !filter.IncludeDeleted {
		where = append(where, "d.deleted_at IS NULL")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT d.id, d.form, d.company, d.contact_email, d.saved_at, d.submitted_at, d.deleted_at,
			(SELECT COUNT(*) FROM dispatch_log l WHERE l.record_id = d.id AND l.success = 1)
		FROM drafts d` + clause + `
		ORDER BY d.saved_at DESC, d.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []DraftSummary
	for rows.Next() {
		var (
			s           DraftSummary
			company     sql.NullString
			contact     sql.NullString
			savedAt     int64
			submittedAt int64
			deletedAt   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Form, &company, &contact, &savedAt, &submittedAt, &deletedAt, &s.Sent); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		s.Company = company.String
		s.ContactEmail = contact.String
		s.SavedAt = fromUnixNano(savedAt)
		s.SubmittedAt = fromUnixNano(submittedAt)
		if deletedAt.Valid {
			s.DeletedAt = &deletedAt.Int64
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// SoftDelete marks a draft as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE drafts SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// PurgeDeleted permanently removes soft-deleted drafts. With olderThanDays
// set, only drafts deleted before that cutoff are removed.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := `DELETE FROM drafts WHERE deleted_at IS NOT NULL`
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// StreamForExport returns rows for every draft in saved order. Callers must
// close the rows and scan with ScanDraftFromRows.
func StreamForExport(ctx context.Context, db *sql.DB, form string, includeDeleted bool) (*sql.Rows, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE 1=1`
	var args []any
	if form != "" {
		query += " AND form = ?"
		args = append(args, form)
	}
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY saved_at ASC, id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// ScanDraftFromRows scans the current row of a StreamForExport result.
func ScanDraftFromRows(rows *sql.Rows) (*Draft, error) {
	return scanDraft(rows)
}

// AppendDispatch records one dispatch attempt. The log is append-only.
func AppendDispatch(ctx context.Context, db *sql.DB, recordID, form string, dispatchErr error, at time.Time) (*DispatchEntry, error) {
	e := &DispatchEntry{
		ID:          ulid.Make().String(),
		RecordID:    recordID,
		Form:        form,
		Success:     dispatchErr == nil,
		AttemptedAt: at.UTC(),
	}
	var errText sql.NullString
	if dispatchErr != nil {
		e.Error = dispatchErr.Error()
		if iErr, ok := dispatchErr.(*errors.IntakeError); ok {
			e.Error = iErr.Message
		}
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO dispatch_log (id, record_id, form, success, error, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.RecordID, e.Form, boolToInt(e.Success), errText, toUnixNano(e.AttemptedAt))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListDispatches returns the attempts for a record, oldest first.
func ListDispatches(ctx context.Context, db *sql.DB, recordID string) ([]DispatchEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, record_id, form, success, error, attempted_at
		FROM dispatch_log
		WHERE record_id = ?
		ORDER BY attempted_at ASC, id ASC
	`, recordID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []DispatchEntry
	for rows.Next() {
		var (
			e       DispatchEntry
			success int
			errText sql.NullString
			at      int64
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Form, &success, &errText, &at); err != nil {
			return nil, errors.NewInternal(err)
		}
		e.Success = success == 1
		e.Error = errText.String
		e.AttemptedAt = fromUnixNano(at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDraft scans a single row selected with draftColumns.
func scanDraft(row scanner) (*Draft, error) {
	var (
		d           Draft
		valuesJSON  string
		savedAt     int64
		submittedAt int64
		deletedAt   sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Form, &valuesJSON, &savedAt, &submittedAt, &deletedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(valuesJSON), &d.Values); err != nil {
		return nil, err
	}
	if d.Values == nil {
		d.Values = map[string]submission.Value{}
	}
	d.SavedAt = fromUnixNano(savedAt)
	d.SubmittedAt = fromUnixNano(submittedAt)
	if deletedAt.Valid {
		d.DeletedAt = &deletedAt.Int64
	}
	return &d, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toUnixNano(t time.Time) int64 { return t.UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

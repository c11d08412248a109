package ops

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/session"
)

// SubmitOutput contains the result of a successful dispatch.
type SubmitOutput struct {
	ID          string    `json:"id"`
	Form        string    `json:"form"`
	SubmittedAt time.Time `json:"submittedAt"`
	Success     bool      `json:"success"`
}

// SubmitDraftInput contains parameters for the SubmitDraft operation.
type SubmitDraftInput struct {
	ID string
}

// SubmitDraft confirms a stored draft: a copy with a fresh submission time is
// dispatched and the attempt is appended to the dispatch log. The stored
// draft is not modified. A second request for the same draft while the
// first is in flight fails with DISPATCH_IN_FLIGHT; requests after a
// completed dispatch are sent again.
func SubmitDraft(ctx context.Context, database *sql.DB, d session.Dispatcher, guard *session.Guard, input SubmitDraftInput) (*SubmitOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	release, ok := guard.Acquire(id)
	if !ok {
		return nil, errors.NewDispatchInFlight(id)
	}
	defer release()

	draft, err := db.GetDraft(ctx, database, id, false)
	if err != nil {
		return nil, err
	}

	sess, err := session.FromDraft(draft.Record)
	if err != nil {
		return nil, err
	}
	return submit(ctx, database, sess, d)
}

// SubmitFormInput contains parameters for the SubmitForm operation.
type SubmitFormInput struct {
	Form   string              // default: api
	Values map[string][]string // raw name → values
}

// SubmitForm assembles and dispatches values directly, without a review
// step. Used by the contact form.
func SubmitForm(ctx context.Context, database *sql.DB, d session.Dispatcher, input SubmitFormInput) (*SubmitOutput, error) {
	reg, err := lookupForm(input.Form)
	if err != nil {
		return nil, err
	}
	sess := session.Resume(form.FromValues(reg, input.Values))
	return submit(ctx, database, sess, d)
}

func submit(ctx context.Context, database *sql.DB, sess *session.Session, d session.Dispatcher) (*SubmitOutput, error) {
	rec, err := sess.Submit(ctx, d)
	if rec.ID == "" {
		// Rejected before dispatch.
		return nil, err
	}

	// The log write must happen even if the caller has gone away.
	if _, logErr := db.AppendDispatch(context.WithoutCancel(ctx), database, rec.ID, rec.Form, err, time.Now()); logErr != nil {
		log.Printf("dispatch log for %s: %v", rec.ID, logErr)
	}
	if err != nil {
		return nil, err
	}

	return &SubmitOutput{
		ID:          rec.ID,
		Form:        rec.Form,
		SubmittedAt: rec.SubmittedAt,
		Success:     true,
	}, nil
}

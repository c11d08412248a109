// Package session tracks one form session from first edit to dispatch.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	intakeerr "github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/submission"
)

// State is a session's position in its lifecycle.
type State int

const (
	Editing State = iota
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

// Dispatcher sends an assembled record.
type Dispatcher interface {
	Dispatch(ctx context.Context, r submission.Record) error
}

// Session owns a snapshot exclusively. Edits are rejected while a dispatch
// is in flight and after the session has been submitted.
type Session struct {
	mu      sync.Mutex
	snap    *form.Snapshot
	state   State
	errs    form.Errors
	open    []int
	lastErr error
	draft   *submission.Record
	sent    *submission.Record
	now     func() time.Time
}

// New starts a session with the form's defaults applied.
func New(reg *form.Registry) *Session {
	return Resume(form.NewSnapshot(reg))
}

// Resume starts a session over an existing snapshot, such as one posted by
// a browser.
func Resume(snap *form.Snapshot) *Session {
	return &Session{
		snap: snap,
		errs: form.Errors{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// FromDraft starts a session over a saved record. Submitting without edits
// confirms the draft itself: its identifier is kept and only the submission
// time changes.
func FromDraft(r submission.Record) (*Session, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, intakeerr.NewInvalidRequest(err.Error())
	}
	s := Resume(snap)
	s.draft = &r
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current values.
func (s *Session) Snapshot() *form.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Errors returns the current validation error set.
func (s *Session) Errors() form.Errors {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(form.Errors, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// OpenSections lists sections forced open by the last failed submit.
func (s *Session) OpenSections() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.open...)
}

// LastError returns the error from the last failed submit, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Completion reports per-section completion for the current values.
func (s *Session) Completion() form.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Completion()
}

// Set assigns a single-valued field.
func (s *Session) Set(name, value string) (form.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return form.Change{}, err
	}
	c, err := s.snap.Set(name, value)
	if err != nil {
		return form.Change{}, intakeerr.NewInvalidRequest(err.Error())
	}
	s.edited(name)
	for _, dep := range c.Disabled {
		delete(s.errs, dep)
	}
	return c, nil
}

// Toggle selects or deselects a multi-choice option.
func (s *Session) Toggle(name, option string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	if err := s.snap.Toggle(name, option, on); err != nil {
		return intakeerr.NewInvalidRequest(err.Error())
	}
	s.edited(name)
	return nil
}

// Blur validates one field as the user leaves it and records the result.
func (s *Session) Blur(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.snap.Registry().ValidateField(name, s.snap.Value(name))
	if msg == "" {
		delete(s.errs, name)
	} else {
		s.errs[name] = msg
	}
	return msg
}

// Submit checks completion and validation, assembles a record and hands it
// to d. Only one dispatch may be in flight: a concurrent call fails with
// DISPATCH_IN_FLIGHT. A failed dispatch returns the session to Editing with
// its values intact. The dispatch is not cancelled when ctx is.
func (s *Session) Submit(ctx context.Context, d Dispatcher) (submission.Record, error) {
	s.mu.Lock()
	switch s.state {
	case Submitting:
		s.mu.Unlock()
		return submission.Record{}, intakeerr.NewDispatchInFlight(s.pendingID())
	case Submitted:
		id := s.sent.ID
		s.mu.Unlock()
		return submission.Record{}, intakeerr.NewAlreadySubmitted(id)
	}

	if err := s.gate(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return submission.Record{}, err
	}

	var rec submission.Record
	if s.draft != nil {
		rec = s.draft.WithSubmittedAt(s.now())
	} else {
		rec = submission.Assemble(s.snap)
	}
	s.state = Submitting
	s.sent = &rec
	s.mu.Unlock()

	err := d.Dispatch(context.WithoutCancel(ctx), rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Editing
		s.sent = nil
		s.lastErr = err
		return rec, err
	}
	s.state = Submitted
	s.lastErr = nil
	return rec, nil
}

// gate runs completion then validation. Caller holds mu.
func (s *Session) gate() error {
	completion := s.snap.Completion()
	errs := s.snap.Validate()
	s.errs = errs

	open := map[int]bool{}
	for _, n := range completion.Incomplete() {
		open[n] = true
	}
	for name := range errs {
		if f, ok := s.snap.Registry().Field(name); ok {
			open[f.Section] = true
		}
	}
	s.open = s.open[:0]
	for n := range open {
		s.open = append(s.open, n)
	}
	sort.Ints(s.open)

	if len(errs) > 0 {
		return intakeerr.NewValidationFailed(errs)
	}
	if !completion.Complete() {
		return intakeerr.NewIncomplete(completion.Incomplete())
	}
	return nil
}

func (s *Session) editable() error {
	switch s.state {
	case Submitting:
		return intakeerr.NewDispatchInFlight(s.pendingID())
	case Submitted:
		return intakeerr.NewAlreadySubmitted(s.sent.ID)
	}
	return nil
}

// edited clears draft identity and any stale error for name.
func (s *Session) edited(name string) {
	s.draft = nil
	delete(s.errs, name)
}

func (s *Session) pendingID() string {
	if s.sent != nil {
		return s.sent.ID
	}
	return ""
}

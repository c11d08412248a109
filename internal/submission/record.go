// Package submission assembles immutable submission records from form
// snapshots and renders them as section-grouped plain text.
package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/terminus-industrials/intake/internal/form"
)

// Value is a stored field value: a scalar string or an ordered list of
// selections. It encodes to JSON as a string or an array respectively.
type Value struct {
	items []string
	list  bool
}

// Scalar returns a single-valued Value.
func Scalar(s string) Value {
	return Value{items: []string{s}}
}

// List returns a multi-valued Value preserving the given order.
func List(items ...string) Value {
	return Value{items: slices.Clone(items), list: true}
}

// IsList reports whether v came from a multi-choice field.
func (v Value) IsList() bool { return v.list }

// Items returns a copy of the values.
func (v Value) Items() []string { return slices.Clone(v.items) }

// String returns the scalar value, or the list joined with ", ".
func (v Value) String() string { return strings.Join(v.items, ", ") }

// Empty reports whether v holds nothing worth showing.
func (v Value) Empty() bool {
	if v.list {
		return len(v.items) == 0
	}
	return len(v.items) == 0 || v.items[0] == ""
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.list {
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	}
	if len(v.items) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(v.items[0])
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("field value must be a string or an array of strings: %w", err)
	}
	*v = Scalar(s)
	return nil
}

// Record is an assembled submission. A Record is never mutated after it is
// built; WithSubmittedAt returns a corrected copy instead.
type Record struct {
	// ID is a ULID assigned at assembly
	ID string `json:"id"`

	// Form is the registry name the values belong to
	Form string `json:"form"`

	// Values holds every enabled, non-empty field at assembly time
	Values map[string]Value `json:"values"`

	// SavedAt is when the record was assembled
	SavedAt time.Time `json:"savedAt"`

	// SubmittedAt is when the record was last confirmed for dispatch
	SubmittedAt time.Time `json:"submittedAt"`
}

// Assemble turns a snapshot into a record with a fresh identifier. Both
// timestamps are set to the current time. Callers are expected to have
// checked completion and validation first.
func Assemble(s *form.Snapshot) Record {
	return assembleAt(s, time.Now().UTC(), ulid.Make().String())
}

func assembleAt(s *form.Snapshot, now time.Time, id string) Record {
	reg := s.Registry()
	values := make(map[string]Value)
	for _, f := range reg.Fields() {
		if s.IsEmpty(f.Name) {
			continue
		}
		if f.Kind == form.KindMultiChoice {
			values[f.Name] = List(s.List(f.Name)...)
		} else {
			values[f.Name] = Scalar(s.Value(f.Name))
		}
	}
	return Record{
		ID:          id,
		Form:        reg.Name(),
		Values:      values,
		SavedAt:     now,
		SubmittedAt: now,
	}
}

// Text returns the raw value of a field, or "" when the field is absent.
func (r Record) Text(name string) string {
	return r.Values[name].String()
}

// WithSubmittedAt returns a copy of r stamped with a new submission time.
// The identifier and values are carried over unchanged.
func (r Record) WithSubmittedAt(t time.Time) Record {
	c := r
	c.Values = maps.Clone(r.Values)
	c.SubmittedAt = t.UTC()
	return c
}

// Snapshot rebuilds an editable snapshot from the record, used to
// pre-populate the form when a draft is edited.
func (r Record) Snapshot() (*form.Snapshot, error) {
	reg, ok := form.Lookup(r.Form)
	if !ok {
		return nil, fmt.Errorf("unknown form %q", r.Form)
	}
	raw := make(map[string][]string, len(r.Values))
	for name, v := range r.Values {
		raw[name] = v.Items()
	}
	return form.FromValues(reg, raw), nil
}

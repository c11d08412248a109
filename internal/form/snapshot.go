package form

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Snapshot holds the current values of one form session. Single-valued
// fields hold at most one entry; multi-choice fields hold their selections
// in the order they were made.
type Snapshot struct {
	reg     *Registry
	values  map[string][]string
	enabled map[string]bool
}

// NewSnapshot returns a snapshot with the form's default selections applied.
func NewSnapshot(reg *Registry) *Snapshot {
	s := Empty(reg)
	for _, f := range reg.fields {
		if len(f.Default) > 0 {
			s.values[f.Name] = slices.Clone(f.Default)
		}
	}
	s.refresh()
	return s
}

// Empty returns a snapshot with no values, not even defaults.
func Empty(reg *Registry) *Snapshot {
	s := &Snapshot{
		reg:     reg,
		values:  make(map[string][]string),
		enabled: make(map[string]bool),
	}
	s.refresh()
	return s
}

// FromValues builds a snapshot from raw name → values pairs, such as a posted
// form or a stored draft. Unknown names are ignored; choice values that are
// not options are dropped; single-valued fields keep their first entry.
func FromValues(reg *Registry, values map[string][]string) *Snapshot {
	s := Empty(reg)
	for _, f := range reg.fields {
		raw, ok := values[f.Name]
		if !ok {
			continue
		}
		var kept []string
		for _, v := range raw {
			if f.IsChoice() && !f.HasOption(v) {
				continue
			}
			kept = append(kept, v)
		}
		if f.Kind != KindMultiChoice && len(kept) > 1 {
			kept = kept[:1]
		}
		if len(kept) > 0 {
			s.values[f.Name] = kept
		}
	}
	s.refresh()
	return s
}

// FromForm builds a snapshot from posted form values.
func FromForm(reg *Registry, form url.Values) *Snapshot {
	return FromValues(reg, map[string][]string(form))
}

// Registry returns the form this snapshot belongs to.
func (s *Snapshot) Registry() *Registry { return s.reg }

// Set assigns a single-valued field. Setting a controller re-evaluates the
// conditional bindings and reports dependents that changed state.
func (s *Snapshot) Set(name, value string) (Change, error) {
	f, ok := s.reg.byName[name]
	if !ok {
		return Change{}, fmt.Errorf("unknown field %q", name)
	}
	if f.Kind == KindMultiChoice {
		return Change{}, fmt.Errorf("field %q is multi-choice; use Toggle", name)
	}
	if !s.Enabled(name) {
		return Change{}, fmt.Errorf("field %q is disabled", name)
	}
	if f.Kind == KindSingleChoice && value != "" && !f.HasOption(value) {
		return Change{}, fmt.Errorf("%q is not an option of %q", value, name)
	}

	before := s.enabledCopy()
	if value == "" {
		delete(s.values, name)
	} else {
		s.values[name] = []string{value}
	}
	s.refresh()
	return diffStates(s.reg.bindings, before, s.enabled), nil
}

// Toggle selects or deselects an option of a multi-choice field. New
// selections are appended so the list keeps selection order.
func (s *Snapshot) Toggle(name, option string, on bool) error {
	f, ok := s.reg.byName[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	if f.Kind != KindMultiChoice {
		return fmt.Errorf("field %q is not multi-choice", name)
	}
	if !f.HasOption(option) {
		return fmt.Errorf("%q is not an option of %q", option, name)
	}

	current := s.values[name]
	idx := slices.Index(current, option)
	switch {
	case on && idx < 0:
		s.values[name] = append(current, option)
	case !on && idx >= 0:
		current = slices.Delete(slices.Clone(current), idx, idx+1)
		if len(current) == 0 {
			delete(s.values, name)
		} else {
			s.values[name] = current
		}
	}
	return nil
}

// Clear removes a field's value.
func (s *Snapshot) Clear(name string) Change {
	before := s.enabledCopy()
	delete(s.values, name)
	s.refresh()
	return diffStates(s.reg.bindings, before, s.enabled)
}

// Value returns the current scalar value of a field, or "" when the field is
// absent or disabled. For multi-choice fields it returns the first selection.
func (s *Snapshot) Value(name string) string {
	if !s.Enabled(name) {
		return ""
	}
	if v := s.values[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// List returns a copy of the field's values, or nil when disabled.
func (s *Snapshot) List(name string) []string {
	if !s.Enabled(name) {
		return nil
	}
	return slices.Clone(s.values[name])
}

// Selected reports whether option is currently chosen for name.
func (s *Snapshot) Selected(name, option string) bool {
	return slices.Contains(s.List(name), option)
}

// Enabled reports whether a field is actionable. Fields without a condition
// are always enabled.
func (s *Snapshot) Enabled(name string) bool {
	if on, conditional := s.enabled[name]; conditional {
		return on
	}
	return true
}

// IsEmpty applies the kind-specific emptiness rule: choice fields are filled
// when at least one option is selected, text fields when the trimmed value is
// non-empty. Disabled fields are always empty.
func (s *Snapshot) IsEmpty(name string) bool {
	f, ok := s.reg.byName[name]
	if !ok || !s.Enabled(name) {
		return true
	}
	vals := s.values[name]
	if f.IsChoice() {
		return len(vals) == 0
	}
	return len(vals) == 0 || strings.TrimSpace(vals[0]) == ""
}

// Values returns every enabled, non-empty field as name → values.
func (s *Snapshot) Values() map[string][]string {
	out := make(map[string][]string, len(s.values))
	for _, f := range s.reg.fields {
		if s.IsEmpty(f.Name) {
			continue
		}
		out[f.Name] = slices.Clone(s.values[f.Name])
	}
	return out
}

// Clone returns an independent copy.
func (s *Snapshot) Clone() *Snapshot {
	c := Empty(s.reg)
	for k, v := range s.values {
		c.values[k] = slices.Clone(v)
	}
	c.refresh()
	return c
}

// Completion is shorthand for ComputeCompletion(s).
func (s *Snapshot) Completion() Completion { return ComputeCompletion(s) }

// Validate is shorthand for ValidateAll(s).
func (s *Snapshot) Validate() Errors { return ValidateAll(s) }

// rawValues returns stored values for validation; callers check Enabled.
func (s *Snapshot) rawValues(name string) []string {
	return s.values[name]
}

func (s *Snapshot) refresh() {
	s.enabled = EnabledStates(s.reg.bindings, func(name string) string {
		if v := s.values[name]; len(v) > 0 {
			return v[0]
		}
		return ""
	})
}

func (s *Snapshot) enabledCopy() map[string]bool {
	out := make(map[string]bool, len(s.enabled))
	for k, v := range s.enabled {
		out[k] = v
	}
	return out
}

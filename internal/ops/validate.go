package ops

import (
	"github.com/terminus-industrials/intake/internal/form"
)

// ValidateInput contains parameters for the Validate operation.
type ValidateInput struct {
	Form   string              // default: api
	Values map[string][]string // raw name → values, as posted
	Field  string              // optional: validate only this field
}

// ValidateOutput reports validation and completion for a set of values.
type ValidateOutput struct {
	Valid      bool           `json:"valid"`
	Complete   bool           `json:"complete"`
	Errors     form.Errors    `json:"errors"`
	Completion map[int]bool   `json:"completion"`
	Incomplete []int          `json:"incomplete"`
	Disabled   []string       `json:"disabled,omitempty"`
	Snapshot   *form.Snapshot `json:"-"`
}

// Validate evaluates values against a form without saving anything. With
// Field set, only that field is validated, as on blur; completion is still
// reported for the whole form.
func Validate(input ValidateInput) (*ValidateOutput, error) {
	reg, err := lookupForm(input.Form)
	if err != nil {
		return nil, err
	}
	snap := form.FromValues(reg, input.Values)

	errs := form.Errors{}
	if input.Field != "" {
		if msg := reg.ValidateField(input.Field, snap.Value(input.Field)); msg != "" {
			errs[input.Field] = msg
		}
	} else {
		errs = snap.Validate()
	}

	completion := snap.Completion()
	incomplete := completion.Incomplete()
	if incomplete == nil {
		incomplete = []int{}
	}

	var disabled []string
	for _, b := range reg.Bindings() {
		if !snap.Enabled(b.Dependent) {
			disabled = append(disabled, b.Dependent)
		}
	}

	return &ValidateOutput{
		Valid:      len(errs) == 0,
		Complete:   completion.Complete(),
		Errors:     errs,
		Completion: completion,
		Incomplete: incomplete,
		Disabled:   disabled,
		Snapshot:   snap,
	}, nil
}

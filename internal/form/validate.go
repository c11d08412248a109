package form

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Validator checks a raw value and returns a human-readable error message,
// or "" when the value is valid. Validators treat the empty string as valid:
// missing values are a completion concern.
type Validator func(raw string) string

// Errors maps field names to error messages. A missing key means the field
// is valid or has not been evaluated.
type Errors map[string]string

// Rule is the declarative form of a validator.
type Rule struct {
	Type string `yaml:"type" json:"type"` // number, phone, email

	// number bounds
	Min          *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max          *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	ExclusiveMin bool     `yaml:"exclusive_min,omitempty" json:"exclusive_min,omitempty"`
	ExclusiveMax bool     `yaml:"exclusive_max,omitempty" json:"exclusive_max,omitempty"`

	// phone digit counts
	MinDigits int `yaml:"min_digits,omitempty" json:"min_digits,omitempty"`
	MaxDigits int `yaml:"max_digits,omitempty" json:"max_digits,omitempty"`
}

const (
	defaultMinPhoneDigits = 7
	defaultMaxPhoneDigits = 15
)

var (
	emailRegex      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneCharsRegex = regexp.MustCompile(`^[0-9 +\-()]+$`)
)

func compileRule(r *Rule) (Validator, error) {
	if r == nil {
		return nil, nil
	}
	switch r.Type {
	case "number":
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return nil, fmt.Errorf("number rule min %v exceeds max %v", *r.Min, *r.Max)
		}
		return NumberValidator(r.Min, r.Max, r.ExclusiveMin, r.ExclusiveMax), nil
	case "phone":
		minDigits, maxDigits := r.MinDigits, r.MaxDigits
		if minDigits == 0 {
			minDigits = defaultMinPhoneDigits
		}
		if maxDigits == 0 {
			maxDigits = defaultMaxPhoneDigits
		}
		if minDigits > maxDigits {
			return nil, fmt.Errorf("phone rule min_digits %d exceeds max_digits %d", minDigits, maxDigits)
		}
		return PhoneValidator(minDigits, maxDigits), nil
	case "email":
		return EmailValidator(), nil
	}
	return nil, fmt.Errorf("unknown rule type %q", r.Type)
}

// NumberValidator rejects non-numeric input and values outside the bounds.
// A nil bound is open.
func NumberValidator(min, max *float64, exclusiveMin, exclusiveMax bool) Validator {
	return func(raw string) string {
		s := strings.TrimSpace(raw)
		if s == "" {
			return ""
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return "Must be a number"
		}

		belowMin := min != nil && (v < *min || (exclusiveMin && v == *min))
		aboveMax := max != nil && (v > *max || (exclusiveMax && v == *max))
		if !belowMin && !aboveMax {
			return ""
		}

		switch {
		case min != nil && max != nil:
			return fmt.Sprintf("Must be %s %s and %s %s",
				lowerWord(exclusiveMin), formatBound(*min), upperWord(exclusiveMax), formatBound(*max))
		case min != nil && *min == 0 && exclusiveMin:
			return "Must be greater than 0"
		case min != nil && *min == 0:
			return "Must not be negative"
		case min != nil:
			return fmt.Sprintf("Must be %s %s", lowerWord(exclusiveMin), formatBound(*min))
		default:
			return fmt.Sprintf("Must be %s %s", upperWord(exclusiveMax), formatBound(*max))
		}
	}
}

func lowerWord(exclusive bool) string {
	if exclusive {
		return "greater than"
	}
	return "at least"
}

func upperWord(exclusive bool) string {
	if exclusive {
		return "less than"
	}
	return "at most"
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PhoneValidator accepts digits, spaces, +, -, ( and ) with a digit count
// between minDigits and maxDigits.
func PhoneValidator(minDigits, maxDigits int) Validator {
	return func(raw string) string {
		s := strings.TrimSpace(raw)
		if s == "" {
			return ""
		}
		if !phoneCharsRegex.MatchString(s) {
			return "Phone number may only contain digits, spaces, +, -, ( and )"
		}
		digits := 0
		for _, r := range s {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < minDigits {
			return fmt.Sprintf("Phone number must have at least %d digits", minDigits)
		}
		if digits > maxDigits {
			return fmt.Sprintf("Phone number must have at most %d digits", maxDigits)
		}
		return ""
	}
}

// EmailValidator accepts strings shaped like local@domain.tld.
func EmailValidator() Validator {
	return func(raw string) string {
		s := strings.TrimSpace(raw)
		if s == "" {
			return ""
		}
		if !emailRegex.MatchString(s) {
			return "Please enter a valid email address"
		}
		return ""
	}
}

// ValidateField runs the field's validator against raw. Unknown fields and
// fields without a validator are always valid.
func (r *Registry) ValidateField(name, raw string) string {
	f, ok := r.byName[name]
	if !ok || f.validate == nil {
		return ""
	}
	return f.validate(raw)
}

// ValidateAll runs every registered validator against the snapshot,
// including empty values. Disabled fields are skipped.
func ValidateAll(s *Snapshot) Errors {
	errs := Errors{}
	for _, f := range s.reg.fields {
		if f.validate == nil || !s.Enabled(f.Name) {
			continue
		}
		for _, v := range s.rawValues(f.Name) {
			if msg := f.validate(v); msg != "" {
				errs[f.Name] = msg
				break
			}
		}
		if _, bad := errs[f.Name]; !bad && len(s.rawValues(f.Name)) == 0 {
			if msg := f.validate(""); msg != "" {
				errs[f.Name] = msg
			}
		}
	}
	return errs
}

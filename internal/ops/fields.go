package ops

import (
	"github.com/terminus-industrials/intake/internal/form"
)

// FieldsInput contains parameters for the Fields operation.
type FieldsInput struct {
	Form string // default: api
}

// FieldsSection is one section of a form with its field definitions.
type FieldsSection struct {
	form.Section
	Heading string       `json:"heading"`
	Fields  []form.Field `json:"fields"`
}

// FieldsOutput describes a form's sections and fields in canonical order.
type FieldsOutput struct {
	Form     string          `json:"form"`
	Title    string          `json:"title"`
	Sections []FieldsSection `json:"sections"`
}

// Fields describes the fields of a form.
func Fields(input FieldsInput) (*FieldsOutput, error) {
	reg, err := lookupForm(input.Form)
	if err != nil {
		return nil, err
	}

	out := &FieldsOutput{Form: reg.Name(), Title: reg.Title()}
	for _, sec := range reg.Sections() {
		fs := FieldsSection{Section: sec, Heading: sec.Heading(), Fields: []form.Field{}}
		for _, name := range reg.SectionFields(sec.Number) {
			f, _ := reg.Field(name)
			fs.Fields = append(fs.Fields, f)
		}
		out.Sections = append(out.Sections, fs)
	}
	return out, nil
}

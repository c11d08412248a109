// Package form holds the declarative field registry for the intake forms and
// the pure functions that evaluate a form session against it: completion,
// validation and conditional enabling.
package form

import (
	"embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var definitionsFS embed.FS

// Kind is the value shape of a field.
type Kind string

const (
	KindText         Kind = "text"          // single-value text or number
	KindSingleChoice Kind = "single_choice" // mutually exclusive options
	KindMultiChoice  Kind = "multi_choice"  // independent toggles
	KindTextArea     Kind = "textarea"      // free text
)

// Option is one selectable value of a choice field.
type Option struct {
	Value string `yaml:"value" json:"value"`

	// Label is the text shown next to the input.
	Label string `yaml:"label" json:"label"`

	// Display is how the value reads on review screens and in email.
	// Defaults to Value.
	Display string `yaml:"display,omitempty" json:"display,omitempty"`
}

// Condition enables a field only while Field currently equals Equals.
type Condition struct {
	Field  string `yaml:"field" json:"field"`
	Equals string `yaml:"equals" json:"equals"`
}

// Field describes a single form field.
type Field struct {
	Name        string     `yaml:"name" json:"name"`
	Section     int        `yaml:"section" json:"section"`
	Kind        Kind       `yaml:"kind" json:"kind"`
	Input       string     `yaml:"input,omitempty" json:"input,omitempty"`
	Step        string     `yaml:"step,omitempty" json:"step,omitempty"`
	Label       string     `yaml:"label" json:"label"`
	Prompt      string     `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Placeholder string     `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Required    bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Default     []string   `yaml:"default,omitempty" json:"default,omitempty"`
	Options     []Option   `yaml:"options,omitempty" json:"options,omitempty"`
	Rule        *Rule      `yaml:"rule,omitempty" json:"rule,omitempty"`
	EnabledWhen *Condition `yaml:"enabled_when,omitempty" json:"enabled_when,omitempty"`

	validate Validator
}

// PromptText returns the input label, falling back to Label.
func (f Field) PromptText() string {
	if f.Prompt != "" {
		return f.Prompt
	}
	return f.Label
}

// Display formats a raw value for review screens and email.
func (f Field) Display(value string) string {
	for _, opt := range f.Options {
		if opt.Value == value {
			if opt.Display != "" {
				return opt.Display
			}
			return opt.Value
		}
	}
	return value
}

// HasOption reports whether value is one of the field's options.
func (f Field) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// IsChoice reports whether the field takes its values from Options.
func (f Field) IsChoice() bool {
	return f.Kind == KindSingleChoice || f.Kind == KindMultiChoice
}

// Section is a numbered group of fields.
type Section struct {
	Number int    `yaml:"number" json:"number"`
	Title  string `yaml:"title" json:"title"`
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Note   string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Heading returns the numbered section title, e.g. "1. Basic Information".
func (s Section) Heading() string {
	return fmt.Sprintf("%d. %s", s.Number, s.Title)
}

// Legend returns the numbered title used above the inputs.
func (s Section) Legend() string {
	if s.Prompt != "" {
		return fmt.Sprintf("%d. %s", s.Number, s.Prompt)
	}
	return s.Heading()
}

// Binding ties a dependent field to the value of its controller.
type Binding struct {
	Controller string `json:"controller"`
	Trigger    string `json:"trigger"`
	Dependent  string `json:"dependent"`
}

// Registry is the read-only description of one form.
type Registry struct {
	name     string
	title    string
	sections []Section
	fields   []*Field
	byName   map[string]*Field
	bindings []Binding
}

type definition struct {
	Name     string    `yaml:"name"`
	Title    string    `yaml:"title"`
	Sections []Section `yaml:"sections"`
	Fields   []*Field  `yaml:"fields"`
}

// Load parses a YAML form definition and checks its integrity.
// Duplicate names, section gaps, fields outside a declared section, unknown
// kinds or rules, and conditions that reference a missing controller or
// trigger option are all rejected.
func Load(data []byte) (*Registry, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse form definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("form definition has no name")
	}
	if len(def.Sections) == 0 {
		return nil, fmt.Errorf("form %q declares no sections", def.Name)
	}

	sort.SliceStable(def.Sections, func(i, j int) bool {
		return def.Sections[i].Number < def.Sections[j].Number
	})
	for i, s := range def.Sections {
		if s.Number != i+1 {
			return nil, fmt.Errorf("form %q: sections must be numbered 1..%d without gaps, found %d", def.Name, len(def.Sections), s.Number)
		}
	}

	r := &Registry{
		name:     def.Name,
		title:    def.Title,
		sections: def.Sections,
		fields:   def.Fields,
		byName:   make(map[string]*Field, len(def.Fields)),
	}

	for _, f := range def.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("form %q: field without a name", def.Name)
		}
		if _, dup := r.byName[f.Name]; dup {
			return nil, fmt.Errorf("form %q: duplicate field %q", def.Name, f.Name)
		}
		if f.Section < 1 || f.Section > len(def.Sections) {
			return nil, fmt.Errorf("form %q: field %q belongs to undeclared section %d", def.Name, f.Name, f.Section)
		}
		switch f.Kind {
		case KindText, KindTextArea:
			if len(f.Options) > 0 {
				return nil, fmt.Errorf("form %q: field %q of kind %s cannot have options", def.Name, f.Name, f.Kind)
			}
		case KindSingleChoice, KindMultiChoice:
			if len(f.Options) == 0 {
				return nil, fmt.Errorf("form %q: choice field %q has no options", def.Name, f.Name)
			}
			for _, d := range f.Default {
				if !f.HasOption(d) {
					return nil, fmt.Errorf("form %q: field %q default %q is not an option", def.Name, f.Name, d)
				}
			}
		default:
			return nil, fmt.Errorf("form %q: field %q has unknown kind %q", def.Name, f.Name, f.Kind)
		}
		if f.Kind == KindSingleChoice && len(f.Default) > 1 {
			return nil, fmt.Errorf("form %q: single choice field %q has more than one default", def.Name, f.Name)
		}

		v, err := compileRule(f.Rule)
		if err != nil {
			return nil, fmt.Errorf("form %q: field %q: %w", def.Name, f.Name, err)
		}
		f.validate = v
		r.byName[f.Name] = f
	}

	for _, f := range def.Fields {
		if f.EnabledWhen == nil {
			continue
		}
		ctrl, ok := r.byName[f.EnabledWhen.Field]
		if !ok {
			return nil, fmt.Errorf("form %q: field %q depends on unknown field %q", def.Name, f.Name, f.EnabledWhen.Field)
		}
		if ctrl.Kind != KindSingleChoice {
			return nil, fmt.Errorf("form %q: field %q must be controlled by a single choice field", def.Name, f.Name)
		}
		if !ctrl.HasOption(f.EnabledWhen.Equals) {
			return nil, fmt.Errorf("form %q: field %q trigger %q is not an option of %q", def.Name, f.Name, f.EnabledWhen.Equals, ctrl.Name)
		}
		if f.Required {
			return nil, fmt.Errorf("form %q: conditional field %q cannot be required", def.Name, f.Name)
		}
		r.bindings = append(r.bindings, Binding{
			Controller: ctrl.Name,
			Trigger:    f.EnabledWhen.Equals,
			Dependent:  f.Name,
		})
	}

	return r, nil
}

// MustLoad is like Load but panics on error. Used for embedded definitions.
func MustLoad(data []byte) *Registry {
	r, err := Load(data)
	if err != nil {
		panic(err)
	}
	return r
}

func mustLoadEmbedded(file string) func() *Registry {
	return sync.OnceValue(func() *Registry {
		data, err := definitionsFS.ReadFile("definitions/" + file)
		if err != nil {
			panic(err)
		}
		return MustLoad(data)
	})
}

var (
	apiForm     = mustLoadEmbedded("api.yaml")
	contactForm = mustLoadEmbedded("contact.yaml")
)

// Form names.
const (
	FormAPI     = "api"
	FormContact = "contact"
)

// API returns the Advance Purchase Indication form registry.
func API() *Registry { return apiForm() }

// Contact returns the contact form registry.
func Contact() *Registry { return contactForm() }

// Lookup returns the registry for a form name.
func Lookup(name string) (*Registry, bool) {
	switch name {
	case FormAPI:
		return API(), true
	case FormContact:
		return Contact(), true
	}
	return nil, false
}

// Name returns the form's key.
func (r *Registry) Name() string { return r.name }

// Title returns the form's display title.
func (r *Registry) Title() string { return r.title }

// Sections returns the sections in canonical order.
func (r *Registry) Sections() []Section {
	out := make([]Section, len(r.sections))
	copy(out, r.sections)
	return out
}

// Section returns the section with the given number.
func (r *Registry) Section(n int) (Section, bool) {
	if n < 1 || n > len(r.sections) {
		return Section{}, false
	}
	return r.sections[n-1], true
}

// Fields returns every field in declaration order.
func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.fields))
	for i, f := range r.fields {
		out[i] = *f
	}
	return out
}

// Field looks up a field by name.
func (r *Registry) Field(name string) (Field, bool) {
	f, ok := r.byName[name]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// SectionFields returns the names of the fields in section n, in order.
func (r *Registry) SectionFields(n int) []string {
	var names []string
	for _, f := range r.fields {
		if f.Section == n {
			names = append(names, f.Name)
		}
	}
	return names
}

// RequiredFields returns the names of the required fields in section n.
func (r *Registry) RequiredFields(n int) []string {
	var names []string
	for _, f := range r.fields {
		if f.Section == n && f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Bindings returns the conditional field bindings.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

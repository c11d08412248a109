package main

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/urfave/cli/v2"

	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/ops"
	"github.com/terminus-industrials/intake/internal/session"
)

// askFunc has the shape of survey.AskOne so tests can answer prompts.
type askFunc func(p survey.Prompt, response any, opts ...survey.AskOpt) error

// skipLabel is the extra choice offered for optional single-choice fields.
const skipLabel = "(skip)"

// fillCmd walks a form interactively, section by section.
func fillCmd(db *sql.DB, d session.Dispatcher, guard *session.Guard) *cli.Command {
	return &cli.Command{
		Name:  "fill",
		Usage: "Fill in a form interactively, then save it as a draft",
		Flags: []cli.Flag{
			formFlag(),
			&cli.BoolFlag{Name: "submit", Usage: "Send the draft once saved"},
		},
		Action: func(c *cli.Context) error {
			reg, ok := form.Lookup(c.String("form"))
			if !ok {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown form %q", c.String("form"))))
			}

			// Prompts go to stderr so stdout carries only the JSON result
			ask := func(p survey.Prompt, response any, opts ...survey.AskOpt) error {
				return survey.AskOne(p, response, append(opts, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr))...)
			}

			sess, err := fillForm(reg, ask, os.Stderr)
			if err != nil {
				if stderrors.Is(err, terminal.InterruptErr) {
					return outputError(errors.NewInvalidRequest("fill cancelled"))
				}
				return outputError(err)
			}
			values := sess.Snapshot().Values()

			// Contact messages have no review step
			if reg.Name() == form.FormContact {
				output, err := ops.SubmitForm(c.Context, db, d, ops.SubmitFormInput{Form: form.FormContact, Values: values})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			saved, err := ops.Save(c.Context, db, ops.SaveInput{Form: reg.Name(), Values: values})
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("submit") {
				return outputJSON(saved)
			}

			output, err := ops.SubmitDraft(c.Context, db, d, guard, ops.SubmitDraftInput{ID: saved.ID})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fillForm prompts for every enabled field in section order. Dependents are
// asked only when their controller has just enabled them.
func fillForm(reg *form.Registry, ask askFunc, out io.Writer) (*session.Session, error) {
	sess := session.New(reg)
	for _, sec := range reg.Sections() {
		fmt.Fprintf(out, "\n%s\n", sec.Legend())
		if sec.Note != "" {
			fmt.Fprintf(out, "%s\n", sec.Note)
		}
		for _, name := range reg.SectionFields(sec.Number) {
			snap := sess.Snapshot()
			if !snap.Enabled(name) {
				continue
			}
			f, _ := reg.Field(name)
			if err := askField(sess, snap, f, ask); err != nil {
				return nil, err
			}
		}
	}
	return sess, nil
}

func askField(sess *session.Session, snap *form.Snapshot, f form.Field, ask askFunc) error {
	labels, values := optionLabels(f)

	switch f.Kind {
	case form.KindSingleChoice:
		if !f.Required {
			labels = append([]string{skipLabel}, labels...)
			values = append([]string{""}, values...)
		}
		p := &survey.Select{Message: f.PromptText(), Options: labels}
		if i := slices.Index(values, snap.Value(f.Name)); i >= 0 {
			p.Default = labels[i]
		}

		var choice string
		if err := ask(p, &choice); err != nil {
			return err
		}
		i := slices.Index(labels, choice)
		if i < 0 {
			return errors.NewInvalidRequest(fmt.Sprintf("%q is not an option of %q", choice, f.Name))
		}
		_, err := sess.Set(f.Name, values[i])
		return err

	case form.KindMultiChoice:
		p := &survey.MultiSelect{Message: f.PromptText(), Options: labels}
		var defaults []string
		for i, v := range values {
			if snap.Selected(f.Name, v) {
				defaults = append(defaults, labels[i])
			}
		}
		if len(defaults) > 0 {
			p.Default = defaults
		}

		var picked []string
		if err := ask(p, &picked); err != nil {
			return err
		}
		for i, v := range values {
			if err := sess.Toggle(f.Name, v, slices.Contains(picked, labels[i])); err != nil {
				return err
			}
		}
		return nil
	}

	var p survey.Prompt
	if f.Kind == form.KindTextArea {
		p = &survey.Multiline{Message: f.PromptText()}
	} else {
		p = &survey.Input{Message: f.PromptText(), Default: snap.Value(f.Name), Help: f.Placeholder}
	}
	opts := []survey.AskOpt{survey.WithValidator(fieldValidator(snap.Registry(), f.Name))}
	if f.Required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}

	var answer string
	if err := ask(p, &answer, opts...); err != nil {
		return err
	}
	_, err := sess.Set(f.Name, strings.TrimSpace(answer))
	return err
}

// optionLabels returns the shown labels of a choice field and the values
// they stand for, index-aligned.
func optionLabels(f form.Field) (labels, values []string) {
	for _, opt := range f.Options {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		labels = append(labels, label)
		values = append(values, opt.Value)
	}
	return labels, values
}

// fieldValidator adapts the registry's per-field rule to a survey validator.
func fieldValidator(reg *form.Registry, name string) survey.Validator {
	return func(ans any) error {
		s, _ := ans.(string)
		if msg := reg.ValidateField(name, strings.TrimSpace(s)); msg != "" {
			return stderrors.New(msg)
		}
		return nil
	}
}

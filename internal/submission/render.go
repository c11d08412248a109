package submission

import (
	"strings"
	"time"

	"github.com/terminus-industrials/intake/internal/form"
)

// TimeLayout is how submission timestamps are shown to people.
const TimeLayout = "2006-01-02 15:04:05 UTC"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Line is one labelled value in a rendered section.
type Line struct {
	Label string
	Value string
}

// Group is a section heading with the lines of its non-empty fields.
type Group struct {
	Heading string
	Lines   []Line
}

// Groups returns the record's non-empty fields grouped by section in
// canonical order. Sections with no values are omitted.
func Groups(r Record) []Group {
	reg, ok := form.Lookup(r.Form)
	if !ok {
		return nil
	}

	var groups []Group
	for _, sec := range reg.Sections() {
		var lines []Line
		for _, name := range reg.SectionFields(sec.Number) {
			v, ok := r.Values[name]
			if !ok || v.Empty() {
				continue
			}
			f, _ := reg.Field(name)
			lines = append(lines, Line{Label: f.Label, Value: displayValue(f, v)})
		}
		if len(lines) > 0 {
			groups = append(groups, Group{Heading: sec.Heading(), Lines: lines})
		}
	}
	return groups
}

func displayValue(f form.Field, v Value) string {
	items := v.Items()
	shown := make([]string, len(items))
	for i, item := range items {
		shown[i] = f.Display(item)
	}
	return strings.Join(shown, ", ")
}

// Render formats the record as plain text for email. Each non-empty section
// is introduced by a "--- heading ---" line; a trailing block always reports
// the identifier and submission time.
func Render(r Record) string {
	var lines []string
	for _, g := range Groups(r) {
		lines = append(lines, "\n--- "+g.Heading+" ---")
		for _, l := range g.Lines {
			lines = append(lines, l.Label+": "+l.Value)
		}
	}

	lines = append(lines, "\n--- Submission Info ---")
	lines = append(lines, "Submission ID: "+r.ID)
	if !r.SubmittedAt.IsZero() {
		lines = append(lines, "Submitted At: "+FormatTime(r.SubmittedAt))
	}
	return strings.Join(lines, "\n")
}

package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/terminus-industrials/intake/internal/form"
)

// OptionView is one option of a choice field as rendered.
type OptionView struct {
	form.Option
	Checked bool
}

// FieldView is a field with its current value, state and error.
type FieldView struct {
	form.Field
	Value   string
	Options []OptionView
	Enabled bool
	Error   string
}

// SectionView is a section with its fields as rendered.
type SectionView struct {
	form.Section
	Fields   []FieldView
	Open     bool
	Complete bool
}

// buildSections lays out snap for rendering. Sections named in open are
// expanded; a nil open expands every section.
func buildSections(snap *form.Snapshot, errs form.Errors, open map[int]bool) []SectionView {
	reg := snap.Registry()
	completion := snap.Completion()

	var out []SectionView
	for _, sec := range reg.Sections() {
		sv := SectionView{
			Section:  sec,
			Open:     open == nil || open[sec.Number],
			Complete: completion[sec.Number],
		}
		for _, name := range reg.SectionFields(sec.Number) {
			f, _ := reg.Field(name)
			fv := FieldView{
				Field:   f,
				Value:   snap.Value(name),
				Enabled: snap.Enabled(name),
				Error:   errs[name],
			}
			for _, opt := range f.Options {
				fv.Options = append(fv.Options, OptionView{Option: opt, Checked: snap.Selected(name, opt.Value)})
			}
			sv.Fields = append(sv.Fields, fv)
		}
		out = append(out, sv)
	}
	return out
}

// openSections returns the sections to expand after a rejected submit: every
// incomplete section and every section holding a field error.
func openSections(reg *form.Registry, errs form.Errors, incomplete []int) map[int]bool {
	open := make(map[int]bool, len(incomplete))
	for _, n := range incomplete {
		open[n] = true
	}
	for name := range errs {
		if f, ok := reg.Field(name); ok {
			open[f.Section] = true
		}
	}
	return open
}

// Theme cookie
const (
	themeCookie = "theme"
	themeLight  = "light"
	themeDark   = "dark"
)

// themeFrom reads the theme for a request, defaulting to light.
func themeFrom(r *http.Request) string {
	if r == nil {
		return themeLight
	}
	c, err := r.Cookie(themeCookie)
	if err != nil || c.Value != themeDark {
		return themeLight
	}
	return themeDark
}

func themeCookieFor(theme string) *http.Cookie {
	return &http.Cookie{
		Name:     themeCookie,
		Value:    theme,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	}
}

// localPath returns p if it is a same-site absolute path, else "/".
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

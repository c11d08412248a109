package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/submission"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "home", "contact", "apply"
	Theme   string // "light" or "dark"
	Path    string // request path, for the theme toggle to return to
}

// FormPageData is the template data for the contact and API form pages.
type FormPageData struct {
	PageData
	Form     string
	Action   string
	Sections []SectionView
	Purpose  template.HTML
	Terms    template.HTML
	Message  string // form-level error, e.g. a failed send
	EditID   string
}

// ReviewPageData is the template data for the draft review page.
type ReviewPageData struct {
	PageData
	ID         string
	SavedAt    time.Time
	Groups     []submission.Group
	Dispatches []db.DispatchEntry
	Message    string
}

// NotFoundPageData is the template data for a missing draft or page.
type NotFoundPageData struct {
	PageData
	ID string
}

// SuccessPageData is the template data shown after a successful send.
type SuccessPageData struct {
	PageData
	Heading string
	Message string
	ID      string
}

// HomePageData is the template data for the landing page.
type HomePageData struct {
	PageData
	Intro template.HTML
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	copy      map[string]template.HTML
	version   string
}

// NewRenderer creates a Renderer by parsing templates from templateFS and
// rendering the markdown copy in copyFS.
func NewRenderer(templateFS, copyFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"formatTime": submission.FormatTime,
	}

	// Layout and shared partials form the base of every page
	base := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html", "fields.html"))

	pages := map[string]string{
		"home":     "home.html",
		"form":     "form.html",
		"review":   "review.html",
		"notfound": "notfound.html",
		"success":  "success.html",
		"error":    "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(base.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		copy:      loadCopy(copyFS),
		version:   version,
	}
}

// page returns the common page fields for a request.
func (r *Renderer) page(req *http.Request, title, nav string) PageData {
	pd := PageData{
		Title:   title,
		Version: r.version,
		Nav:     nav,
		Theme:   themeFrom(req),
		Path:    "/",
	}
	if req != nil && req.Method == http.MethodGet {
		pd.Path = req.URL.RequestURI()
	}
	return pd
}

// Copy returns the rendered copy block with the given name, or "".
func (r *Renderer) Copy(name string) template.HTML {
	return r.copy[name]
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		log.Printf("template %q not found", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if isHTMX(req) {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		log.Printf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderBlock renders a specific named block from a page template.
// Used for htmx partial swaps that target a sub-section of the page.
func (r *Renderer) renderBlock(w http.ResponseWriter, status int, page, block string, data any) {
	t, ok := r.templates[page]
	if !ok {
		log.Printf("template %q not found", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		log.Printf("template block %q execution error: %v", block, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var iErr *errors.IntakeError
	if !stderrors.As(err, &iErr) {
		iErr = errors.NewInternal(err)
	}

	status := iErr.Status
	message := iErr.Message
	if iErr.Code == errors.ErrInternal {
		log.Printf("%s %s: %v", req.Method, req.URL.Path, message)
		message = "internal server error"
	}

	// HTMX request: return HTML fragment
	if isHTMX(req) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(iErr.Code),
				"message": message,
				"status":  status,
				"details": iErr.Details,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData:   r.page(req, fmt.Sprintf("Error %d", status), ""),
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

var copyPolicy = bluemonday.UGCPolicy()

// renderMarkdown converts markdown text to sanitized HTML.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(copyPolicy.SanitizeBytes(buf.Bytes()))
}

// loadCopy renders every *.md file in fsys, keyed by base name.
func loadCopy(fsys fs.FS) map[string]template.HTML {
	out := make(map[string]template.HTML)
	if fsys == nil {
		return out
	}
	files, err := fs.Glob(fsys, "*.md")
	if err != nil {
		log.Printf("copy glob: %v", err)
		return out
	}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			log.Printf("copy %s: %v", file, err)
			continue
		}
		out[strings.TrimSuffix(path.Base(file), ".md")] = renderMarkdown(string(data))
	}
	return out
}

func isHTMX(req *http.Request) bool {
	return req != nil && req.Header.Get("HX-Request") == "true"
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

package web

import (
	"database/sql"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/ops"
	"github.com/terminus-industrials/intake/internal/session"
)

// Paths of the public pages.
const (
	pathContact = "/contact-us"
	pathApply   = "/request-advance-purchase-indication"
	pathReview  = pathApply + "/review"
)

// incompleteHeader carries the incomplete section numbers on a blur
// validation fragment, comma separated, so the page can refresh its
// section markers.
const incompleteHeader = "X-Incomplete-Sections"

// Handlers contains HTTP route handlers for the site.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	renderer   *Renderer
	dispatcher session.Dispatcher
	guard      *session.Guard
}

// HandleHome handles GET /: the landing page.
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "home", HomePageData{
		PageData: h.renderer.page(r, h.cfg.CompanyName, "home"),
		Intro:    h.renderer.Copy("home"),
	})
}

// HandleNotFound renders the not-found page for unknown paths.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPageStatus(w, r, http.StatusNotFound, "notfound", NotFoundPageData{
		PageData: h.renderer.page(r, "Not Found", ""),
	})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.renderer.version})
}

// HandleContactForm handles GET /contact-us.
func (h *Handlers) HandleContactForm(w http.ResponseWriter, r *http.Request) {
	h.renderContact(w, r, http.StatusOK, form.NewSnapshot(form.Contact()), nil, nil, "")
}

// HandleContactSubmit handles POST /contact-us: validate and send at once.
func (h *Handlers) HandleContactSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	result, err := ops.SubmitForm(r.Context(), h.db, h.dispatcher, ops.SubmitFormInput{
		Form:   form.FormContact,
		Values: r.PostForm,
	})
	if err != nil {
		snap := form.FromForm(form.Contact(), r.PostForm)
		status, errs, open, msg, ok := rejection(snap, err)
		if !ok {
			h.renderer.renderError(w, r, err)
			return
		}
		if errors.Is(err, errors.ErrDispatchFailed) {
			msg = "Failed to send message: " + msg
		}
		h.renderContact(w, r, status, snap, errs, open, msg)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "success", SuccessPageData{
		PageData: h.renderer.page(r, "Message Sent", "contact"),
		Heading:  "Message Sent",
		Message:  "Your message was sent successfully!",
	})
}

func (h *Handlers) renderContact(w http.ResponseWriter, r *http.Request, status int, snap *form.Snapshot, errs form.Errors, open map[int]bool, msg string) {
	h.renderer.renderPageStatus(w, r, status, "form", FormPageData{
		PageData: h.renderer.page(r, "Contact Us", "contact"),
		Form:     form.FormContact,
		Action:   pathContact,
		Sections: buildSections(snap, errs, open),
		Message:  msg,
	})
}

// HandleApplyForm handles GET /request-advance-purchase-indication. With
// ?edit=<id> the form is pre-populated from the stored draft.
func (h *Handlers) HandleApplyForm(w http.ResponseWriter, r *http.Request) {
	editID := r.URL.Query().Get("edit")
	if editID == "" {
		h.renderApply(w, r, http.StatusOK, form.NewSnapshot(form.API()), nil, map[int]bool{1: true}, "", "")
		return
	}

	noText := false
	draft, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: editID, IncludeText: &noText})
	if err != nil {
		h.renderMissing(w, r, editID, err)
		return
	}
	snap, err := draft.Record.Snapshot()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderApply(w, r, http.StatusOK, snap, nil, nil, "", editID)
}

// HandleApplySave handles POST /request-advance-purchase-indication: the
// values are gated and stored as a draft, then the client is sent to review.
func (h *Handlers) HandleApplySave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	result, err := ops.Save(r.Context(), h.db, ops.SaveInput{Form: form.FormAPI, Values: r.PostForm})
	if err != nil {
		snap := form.FromForm(form.API(), r.PostForm)
		status, errs, open, msg, ok := rejection(snap, err)
		if !ok {
			h.renderer.renderError(w, r, err)
			return
		}
		h.renderApply(w, r, status, snap, errs, open, msg, r.URL.Query().Get("edit"))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, result)
		return
	}

	target := pathReview + "?" + url.Values{"id": {result.ID}}.Encode()
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handlers) renderApply(w http.ResponseWriter, r *http.Request, status int, snap *form.Snapshot, errs form.Errors, open map[int]bool, msg, editID string) {
	h.renderer.renderPageStatus(w, r, status, "form", FormPageData{
		PageData: h.renderer.page(r, "Advance Purchase Indication", "apply"),
		Form:     form.FormAPI,
		Action:   pathApply,
		Sections: buildSections(snap, errs, open),
		Purpose:  h.renderer.Copy("purpose"),
		Terms:    h.renderer.Copy("conditions"),
		Message:  msg,
		EditID:   editID,
	})
}

// HandleReview handles GET /request-advance-purchase-indication/review?id=.
func (h *Handlers) HandleReview(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	h.renderReview(w, r, http.StatusOK, id, "")
}

// HandleReviewSubmit handles POST .../review/{id}/submit: dispatch a copy of
// the draft with a fresh submission time.
func (h *Handlers) HandleReviewSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := ops.SubmitDraft(r.Context(), h.db, h.dispatcher, h.guard, ops.SubmitDraftInput{ID: id})
	if err != nil {
		var iErr *errors.IntakeError
		switch {
		case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrInvalidRequest):
			h.renderMissing(w, r, id, err)
		case errors.Is(err, errors.ErrDispatchFailed), errors.Is(err, errors.ErrDispatchInFlight):
			stderrors.As(err, &iErr)
			if wantsJSON(r) {
				h.renderer.renderError(w, r, err)
				return
			}
			h.renderReview(w, r, iErr.Status, id, "Failed to submit: "+iErr.Message)
		default:
			h.renderer.renderError(w, r, err)
		}
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "success", SuccessPageData{
		PageData: h.renderer.page(r, "Submission Received", "apply"),
		Heading:  "Submission Received",
		Message:  "Thank you. Your Advance Purchase Indication was submitted successfully. A confirmation has been sent to your email.",
		ID:       result.ID,
	})
}

func (h *Handlers) renderReview(w http.ResponseWriter, r *http.Request, status int, id, msg string) {
	draft, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: id})
	if err != nil {
		h.renderMissing(w, r, id, err)
		return
	}
	h.renderer.renderPageStatus(w, r, status, "review", ReviewPageData{
		PageData:   h.renderer.page(r, "Review Your Submission", "apply"),
		ID:         draft.ID,
		SavedAt:    draft.SavedAt,
		Groups:     draft.Groups,
		Dispatches: draft.Dispatches,
		Message:    msg,
	})
}

// renderMissing shows the not-found state for a missing or unknown draft id.
// Other errors fall through to the error page.
func (h *Handlers) renderMissing(w http.ResponseWriter, r *http.Request, id string, err error) {
	if !errors.Is(err, errors.ErrNotFound) && !errors.Is(err, errors.ErrInvalidRequest) {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		h.renderer.renderError(w, r, errors.NewNotFound(id))
		return
	}
	h.renderer.renderPageStatus(w, r, http.StatusNotFound, "notfound", NotFoundPageData{
		PageData: h.renderer.page(r, "Submission Not Found", "apply"),
		ID:       id,
	})
}

// HandleValidate handles POST /validate: validate a single field on blur.
// The posted body is the whole form plus "_field" and "_form".
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	field := r.PostForm.Get("_field")
	result, err := ops.Validate(ops.ValidateInput{
		Form:   r.PostForm.Get("_form"),
		Values: r.PostForm,
		Field:  field,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if isHTMX(r) && field != "" {
		w.Header().Set(incompleteHeader, joinInts(result.Incomplete))
		h.renderer.renderBlock(w, http.StatusOK, "form", "field-error", FieldView{
			Field: form.Field{Name: field},
			Error: result.Errors[field],
		})
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleTheme handles POST /theme: flip the theme cookie and go back.
func (h *Handlers) HandleTheme(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	next := themeDark
	if themeFrom(r) == themeDark {
		next = themeLight
	}
	if t := r.PostForm.Get("theme"); t == themeLight || t == themeDark {
		next = t
	}
	http.SetCookie(w, themeCookieFor(next))

	if isHTMX(r) {
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, localPath(r.PostForm.Get("next")), http.StatusSeeOther)
}

// rejection maps a failed submit onto what the form page shows: status, field
// errors, sections to open and a form-level message. ok is false for errors
// the form page cannot show.
func rejection(snap *form.Snapshot, err error) (status int, errs form.Errors, open map[int]bool, msg string, ok bool) {
	var iErr *errors.IntakeError
	if !stderrors.As(err, &iErr) {
		return 0, nil, nil, "", false
	}

	switch iErr.Code {
	case errors.ErrValidationFailed:
		errs = snap.Validate()
		return iErr.Status, errs, openSections(snap.Registry(), errs, nil), "Please correct the highlighted fields.", true
	case errors.ErrIncomplete:
		incomplete := snap.Completion().Incomplete()
		return iErr.Status, nil, openSections(snap.Registry(), nil, incomplete), "Please complete all required fields.", true
	case errors.ErrDispatchFailed:
		return iErr.Status, nil, nil, iErr.Message, true
	default:
		return 0, nil, nil, "", false
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

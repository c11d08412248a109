package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/ops"
	"github.com/terminus-industrials/intake/internal/session"
	"github.com/terminus-industrials/intake/internal/submission"
)

// stubDispatcher counts dispatches and returns err.
type stubDispatcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, r submission.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *stubDispatcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func setupTest(t *testing.T) (*Handlers, *stubDispatcher) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	d := &stubDispatcher{}
	return &Handlers{
		db:         database,
		cfg:        config.DefaultConfig(),
		renderer:   newEmbeddedRenderer("test"),
		dispatcher: d,
		guard:      session.NewGuard(),
	}, d
}

func apiForm() url.Values {
	return url.Values{
		"companyName":  {"Acme"},
		"contactName":  {"Jane Doe"},
		"contactEmail": {"a@b.com"},
		"frequency":    {"60Hz"},
		"mvaRating":    {"50"},
		"testing":      {"FRA", "standardRoutine"},
	}
}

func contactForm() url.Values {
	return url.Values{
		"name":    {"Jane Doe"},
		"company": {"Acme"},
		"email":   {"jane@acme.example"},
		"subject": {"Quote"},
		"message": {"Need a 50 MVA unit."},
	}
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// seedDraft stores a valid API draft and returns its ID.
func seedDraft(t *testing.T, h *Handlers) string {
	t.Helper()
	out, err := ops.Save(context.Background(), h.db, ops.SaveInput{Values: apiForm()})
	if err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	return out.ID
}

// --- HandleHome ---

func TestHandleHome(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleHome(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>Advance Purchase Indication</strong>") {
		t.Error("expected rendered markdown copy")
	}
	if !strings.Contains(body, `data-theme="light"`) {
		t.Error("expected light theme by default")
	}
}

func TestHandleHome_DarkThemeCookie(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: themeCookie, Value: themeDark})
	rec := httptest.NewRecorder()
	h.HandleHome(rec, req)

	if !strings.Contains(rec.Body.String(), `data-theme="dark"`) {
		t.Error("expected dark theme from cookie")
	}
}

// --- HandleApplyForm ---

func TestHandleApplyForm_New(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleApplyForm(rec, httptest.NewRequest("GET", pathApply, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"1. Basic Information",
		"11. Additional Notes / Requirements",
		`name="companyName"`,
		"Non-Binding Purchase Order",
		"I. Purpose",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in form page", want)
		}
	}
	if !strings.Contains(body, `value="60Hz"`) {
		t.Error("expected frequency options")
	}
	if !strings.Contains(body, "data-submit-once") {
		t.Error("expected the form to lock on submit")
	}
	if !strings.Contains(body, `data-section="1" aria-label="complete" hidden`) {
		t.Error("expected an empty section to hide its complete marker")
	}
}

func TestHandleApplyForm_HtmxReturnsContentOnly(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest("GET", pathApply, nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.HandleApplyForm(rec, req)

	if strings.Contains(rec.Body.String(), "<!DOCTYPE html>") {
		t.Error("htmx response should not contain full layout")
	}
}

func TestHandleApplyForm_Edit(t *testing.T) {
	h, _ := setupTest(t)
	id := seedDraft(t, h)

	rec := httptest.NewRecorder()
	h.HandleApplyForm(rec, httptest.NewRequest("GET", pathApply+"?edit="+id, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `value="Acme"`) {
		t.Error("expected form pre-populated from draft")
	}
	if !strings.Contains(body, "?edit="+id) {
		t.Error("expected form action to carry the edit id")
	}
}

func TestHandleApplyForm_EditUnknown(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleApplyForm(rec, httptest.NewRequest("GET", pathApply+"?edit=nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Submission Not Found") {
		t.Error("expected not-found state")
	}
}

// --- HandleApplySave ---

func TestHandleApplySave_RedirectsToReview(t *testing.T) {
	h, d := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleApplySave(rec, postForm(pathApply, apiForm()))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, pathReview+"?id=") {
		t.Errorf("Location = %q, want review page", loc)
	}
	if d.count() != 0 {
		t.Error("saving a draft must not dispatch")
	}
}

func TestHandleApplySave_HtmxRedirect(t *testing.T) {
	h, _ := setupTest(t)

	req := postForm(pathApply, apiForm())
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.HandleApplySave(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("HX-Redirect"), pathReview) {
		t.Errorf("HX-Redirect = %q", rec.Header().Get("HX-Redirect"))
	}
}

func TestHandleApplySave_Incomplete(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleApplySave(rec, postForm(pathApply, url.Values{"companyName": {"Acme"}}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Please complete all required fields.") {
		t.Error("expected incomplete message")
	}
	if !strings.Contains(body, `value="Acme"`) {
		t.Error("expected entered values to be kept")
	}
	if !strings.Contains(body, `id="section-1" open`) {
		t.Error("expected incomplete section 1 to be open")
	}

	list, err := ops.List(context.Background(), h.db, ops.ListInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 0 {
		t.Error("rejected form must not be stored")
	}
}

func TestHandleApplySave_InvalidEmail(t *testing.T) {
	h, _ := setupTest(t)
	values := apiForm()
	values.Set("contactEmail", "not-an-email")

	rec := httptest.NewRecorder()
	h.HandleApplySave(rec, postForm(pathApply, values))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Please enter a valid email address") {
		t.Error("expected field error in page")
	}
}

func TestHandleApplySave_JSON(t *testing.T) {
	h, _ := setupTest(t)

	req := postForm(pathApply, apiForm())
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleApplySave(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var out ops.SaveOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ID == "" || out.Form != "api" {
		t.Errorf("unexpected output %+v", out)
	}
}

// --- HandleReview ---

func TestHandleReview_Found(t *testing.T) {
	h, _ := setupTest(t)
	id := seedDraft(t, h)

	rec := httptest.NewRecorder()
	h.HandleReview(rec, httptest.NewRequest("GET", pathReview+"?id="+id, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Review Your Submission",
		"1. Basic Information",
		"Acme",
		"FRA (Frequency Response Analysis), Standard IEEE/IEC Routine Tests",
		"Submit API",
		pathApply + "?edit=" + id,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in review page", want)
		}
	}
	if strings.Contains(body, "Previous Attempts") {
		t.Error("no dispatch log expected yet")
	}
	if !strings.Contains(body, "data-submit-once") {
		t.Error("expected the submit form to lock on submit")
	}
}

func TestHandleReview_MissingID(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleReview(rec, httptest.NewRequest("GET", pathReview, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No submission ID was provided.") {
		t.Error("expected missing-id message")
	}
}

func TestHandleReview_UnknownID(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleReview(rec, httptest.NewRequest("GET", pathReview+"?id=01UNKNOWN", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "01UNKNOWN") {
		t.Error("expected the unknown id in the message")
	}
	if !strings.Contains(body, "Start a New Request") {
		t.Error("expected link back to a new request")
	}
}

// --- HandleReviewSubmit ---

func submitRequest(id string) *http.Request {
	req := httptest.NewRequest("POST", pathReview+"/"+id+"/submit", nil)
	req.SetPathValue("id", id)
	return req
}

func TestHandleReviewSubmit_Success(t *testing.T) {
	h, d := setupTest(t)
	id := seedDraft(t, h)

	rec := httptest.NewRecorder()
	h.HandleReviewSubmit(rec, submitRequest(id))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Submission Received") {
		t.Error("expected success page")
	}
	if d.count() != 1 {
		t.Errorf("dispatches = %d, want 1", d.count())
	}
}

func TestHandleReviewSubmit_DispatchFailed(t *testing.T) {
	h, d := setupTest(t)
	d.err = errors.NewDispatchFailed("Mailgun: Domain not found")
	id := seedDraft(t, h)

	rec := httptest.NewRecorder()
	h.HandleReviewSubmit(rec, submitRequest(id))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Failed to submit: Mailgun: Domain not found") {
		t.Error("expected relay error text")
	}
	if !strings.Contains(body, "Previous Attempts") {
		t.Error("expected the failed attempt in the dispatch log")
	}
	if !strings.Contains(body, "Submit API") {
		t.Error("expected the review page to allow a retry")
	}
}

func TestHandleReviewSubmit_JSON(t *testing.T) {
	h, _ := setupTest(t)
	id := seedDraft(t, h)

	req := submitRequest(id)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleReviewSubmit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.SubmitOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.ID != id {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestHandleReviewSubmit_NotFound(t *testing.T) {
	h, d := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleReviewSubmit(rec, submitRequest("01UNKNOWN"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if d.count() != 0 {
		t.Error("unknown draft must not dispatch")
	}
}

// --- Contact ---

func TestHandleContactForm(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleContactForm(rec, httptest.NewRequest("GET", pathContact, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="message"`) || !strings.Contains(body, "Send Message") {
		t.Error("expected contact form")
	}
	if strings.Contains(body, "Commercial Conditions") {
		t.Error("contact form should not carry API terms")
	}
	if !strings.Contains(body, "data-submit-once") {
		t.Error("expected the contact form to lock on submit")
	}
}

func TestHandleContactSubmit_Success(t *testing.T) {
	h, d := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleContactSubmit(rec, postForm(pathContact, contactForm()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Your message was sent successfully!") {
		t.Error("expected success message")
	}
	if d.count() != 1 {
		t.Errorf("dispatches = %d, want 1", d.count())
	}
}

func TestHandleContactSubmit_InvalidEmail(t *testing.T) {
	h, d := setupTest(t)
	values := contactForm()
	values.Set("email", "not-an-email")

	rec := httptest.NewRecorder()
	h.HandleContactSubmit(rec, postForm(pathContact, values))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Please enter a valid email address") {
		t.Error("expected field error")
	}
	if d.count() != 0 {
		t.Error("invalid contact form must not dispatch")
	}
}

func TestHandleContactSubmit_DispatchFailed(t *testing.T) {
	h, d := setupTest(t)
	d.err = errors.NewDispatchFailed("Unknown error")

	rec := httptest.NewRecorder()
	h.HandleContactSubmit(rec, postForm(pathContact, contactForm()))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Failed to send message: Unknown error") {
		t.Error("expected failure message")
	}
	if !strings.Contains(body, "Need a 50 MVA unit.") {
		t.Error("expected entered values to be kept for retry")
	}
}

// --- HandleValidate ---

func TestHandleValidate_HtmxFragment(t *testing.T) {
	h, _ := setupTest(t)

	req := postForm("/validate", url.Values{
		"_field":       {"contactEmail"},
		"_form":        {"api"},
		"contactEmail": {"not-an-email"},
	})
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.HandleValidate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="error-contactEmail"`) {
		t.Error("expected error slot id")
	}
	if !strings.Contains(body, "Please enter a valid email address") {
		t.Error("expected error message")
	}
	if strings.Contains(body, "<html") {
		t.Error("expected a fragment")
	}
	if got := rec.Header().Get("X-Incomplete-Sections"); got != "1,2" {
		t.Errorf("X-Incomplete-Sections = %q, want %q", got, "1,2")
	}
}

func TestHandleValidate_HtmxReportsSectionsComplete(t *testing.T) {
	h, _ := setupTest(t)

	values := url.Values{"_field": {"email"}, "_form": {"contact"}}
	for k, v := range contactForm() {
		values[k] = v
	}
	req := postForm("/validate", values)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.HandleValidate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	hdr, ok := rec.Header()["X-Incomplete-Sections"]
	if !ok {
		t.Fatal("expected X-Incomplete-Sections header")
	}
	if len(hdr) != 1 || hdr[0] != "" {
		t.Errorf("X-Incomplete-Sections = %q, want empty", hdr)
	}
}

func TestHandleValidate_ValidFieldClearsError(t *testing.T) {
	h, _ := setupTest(t)

	req := postForm("/validate", url.Values{"_field": {"mvaRating"}, "mvaRating": {"50"}})
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.HandleValidate(rec, req)

	if !strings.Contains(rec.Body.String(), `id="error-mvaRating" role="alert"></span>`) {
		t.Errorf("expected empty error slot, got %q", rec.Body.String())
	}
}

func TestHandleValidate_JSON(t *testing.T) {
	h, _ := setupTest(t)

	req := postForm("/validate", url.Values{"mvaRating": {"0"}})
	rec := httptest.NewRecorder()
	h.HandleValidate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.ValidateOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Valid {
		t.Error("mvaRating=0 should be invalid")
	}
	if out.Errors["mvaRating"] == "" {
		t.Errorf("Errors = %v", out.Errors)
	}
}

func TestHandleValidate_UnknownForm(t *testing.T) {
	h, _ := setupTest(t)

	req := postForm("/validate", url.Values{"_form": {"careers"}})
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleValidate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- HandleTheme ---

func TestHandleTheme_Toggle(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleTheme(rec, postForm("/theme", url.Values{"next": {pathContact}}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if rec.Header().Get("Location") != pathContact {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != themeDark {
		t.Fatalf("cookies = %v, want theme=dark", cookies)
	}

	req := postForm("/theme", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.HandleTheme(rec, req)
	if got := rec.Result().Cookies()[0].Value; got != themeLight {
		t.Errorf("second toggle = %q, want light", got)
	}
}

func TestHandleTheme_RejectsOffsiteNext(t *testing.T) {
	h, _ := setupTest(t)

	for _, next := range []string{"//evil.example", "https://evil.example", "", `/\evil.example`} {
		rec := httptest.NewRecorder()
		h.HandleTheme(rec, postForm("/theme", url.Values{"next": {next}}))
		if loc := rec.Header().Get("Location"); loc != "/" {
			t.Errorf("next=%q: Location = %q, want /", next, loc)
		}
	}
}

// --- Health ---

func TestHandleHealth(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

// --- Error rendering ---

func TestErrorRendering_HtmxFragment(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.renderer.renderError(rec, req, errors.NewInvalidRequest("bad <input>"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if rec.Body.String() != `<div class="error-message">bad &lt;input&gt;</div>` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestErrorRendering_JSONError(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.renderer.renderError(rec, req, errors.NewIncomplete([]int{1, 2}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Status  int            `json:"status"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "INCOMPLETE" || body.Error.Status != 422 {
		t.Errorf("error = %+v", body.Error)
	}
	if body.Error.Details["sections"] == nil {
		t.Error("expected sections in details")
	}
}

func TestErrorRendering_FullErrorPage(t *testing.T) {
	h, _ := setupTest(t)

	rec := httptest.NewRecorder()
	h.renderer.renderError(rec, httptest.NewRequest("GET", "/", nil), context.Canceled)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Error 500") {
		t.Error("expected error page")
	}
	if strings.Contains(body, "context canceled") {
		t.Error("internal error text must not reach the page")
	}
}

package ops

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/db"
	"github.com/terminus-industrials/intake/internal/dispatch"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/relay"
	"github.com/terminus-industrials/intake/internal/session"
)

// TestFullWorkflow exercises the draft lifecycle:
// save → fetch → list → submit → fetch (dispatch log) → delete → purge → fetch (not found)
func TestFullWorkflow(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	d := &stubDispatcher{}
	guard := session.NewGuard()

	// 1. Save
	saveOut, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)
	require.Len(t, saveOut.ID, 26)
	id := saveOut.ID

	// 2. Fetch
	fetchOut, err := Fetch(ctx, database, FetchInput{ID: id})
	require.NoError(t, err)
	require.Equal(t, "Acme", fetchOut.Draft.Text("companyName"))
	require.Equal(t, []string{"FRA", "standardRoutine", "partialDischarge"}, fetchOut.Values["testing"].Items())
	require.Contains(t, fetchOut.Text, "--- 1. Basic Information ---")
	require.Empty(t, fetchOut.Dispatches)

	// 3. List
	listOut, err := List(ctx, database, ListInput{})
	require.NoError(t, err)
	require.Len(t, listOut.Items, 1)
	require.Equal(t, id, listOut.Items[0].ID)
	require.Equal(t, "Acme", listOut.Items[0].Company)

	// 4. Submit
	submitOut, err := SubmitDraft(ctx, database, d, guard, SubmitDraftInput{ID: id})
	require.NoError(t, err)
	require.True(t, submitOut.Success)
	require.Equal(t, id, submitOut.ID)
	require.False(t, submitOut.SubmittedAt.Before(fetchOut.SubmittedAt))
	require.Equal(t, 1, d.count())

	// 5. Stored draft unchanged; dispatch logged
	fetchOut2, err := Fetch(ctx, database, FetchInput{ID: id})
	require.NoError(t, err)
	require.True(t, fetchOut2.SubmittedAt.Equal(fetchOut.SubmittedAt))
	require.Len(t, fetchOut2.Dispatches, 1)
	require.True(t, fetchOut2.Dispatches[0].Success)

	// 6. Delete
	deleteOut, err := Delete(ctx, database, DeleteInput{ID: id})
	require.NoError(t, err)
	require.True(t, deleteOut.Deleted)

	_, err = Fetch(ctx, database, FetchInput{ID: id})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	// 7. Purge
	purgeOut, err := Purge(ctx, database, PurgeInput{})
	require.NoError(t, err)
	require.Equal(t, 1, purgeOut.Purged)
	require.Equal(t, "Permanently deleted 1 draft", purgeOut.Message)

	_, err = Fetch(ctx, database, FetchInput{ID: id, IncludeDeleted: true})
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSave_RejectsInvalidAndIncomplete(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	values := validAPIValues()
	values["contactEmail"] = []string{"not-an-email"}
	_, err := Save(ctx, database, SaveInput{Values: values})
	require.True(t, errors.Is(err, errors.ErrValidationFailed), "got %v", err)

	_, err = Save(ctx, database, SaveInput{Values: map[string][]string{"companyName": {"Acme"}}})
	require.True(t, errors.Is(err, errors.ErrIncomplete), "got %v", err)
	require.Equal(t, []int{1, 2}, err.(*errors.IntakeError).Details["sections"])

	list, err := List(ctx, database, ListInput{})
	require.NoError(t, err)
	require.Empty(t, list.Items)
}

func TestSubmitDraft_NotFound(t *testing.T) {
	database := openTestDB(t)
	_, err := SubmitDraft(context.Background(), database, &stubDispatcher{}, session.NewGuard(), SubmitDraftInput{ID: "01HZY3J3R6K5N1V6T4S5A2B3C4"})
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSubmitDraft_InFlight(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	saveOut, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)

	d := &stubDispatcher{block: make(chan struct{})}
	guard := session.NewGuard()

	done := make(chan error, 1)
	go func() {
		_, err := SubmitDraft(ctx, database, d, guard, SubmitDraftInput{ID: saveOut.ID})
		done <- err
	}()
	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, 5*time.Millisecond)

	_, err = SubmitDraft(ctx, database, d, guard, SubmitDraftInput{ID: saveOut.ID})
	require.True(t, errors.Is(err, errors.ErrDispatchInFlight), "got %v", err)

	close(d.block)
	require.NoError(t, <-done)
	require.Equal(t, 1, d.count())
	require.False(t, guard.InFlight(saveOut.ID))
}

func TestSubmitDraft_RepeatIsNotDeduplicated(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	saveOut, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)

	d := &stubDispatcher{}
	guard := session.NewGuard()
	for i := 0; i < 2; i++ {
		_, err := SubmitDraft(ctx, database, d, guard, SubmitDraftInput{ID: saveOut.ID})
		require.NoError(t, err)
	}
	require.Equal(t, 2, d.count())

	entries, err := db.ListDispatches(ctx, database, saveOut.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSubmitForm_Contact(t *testing.T) {
	database := openTestDB(t)
	d := &stubDispatcher{}

	out, err := SubmitForm(context.Background(), database, d, SubmitFormInput{Form: form.FormContact, Values: validContactValues()})
	require.NoError(t, err)
	require.Equal(t, form.FormContact, out.Form)
	require.Equal(t, "Acme", d.records[0].Text("company"))

	entries, err := db.ListDispatches(context.Background(), database, out.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSubmitForm_BlockedBeforeNetwork(t *testing.T) {
	database := openTestDB(t)
	d := &stubDispatcher{}

	values := validContactValues()
	values["email"] = []string{"not-an-email"}
	_, err := SubmitForm(context.Background(), database, d, SubmitFormInput{Form: form.FormContact, Values: values})
	require.True(t, errors.Is(err, errors.ErrValidationFailed))
	require.Zero(t, d.count())
}

// relayStub answers like the relay service, failing sends to failTo.
type relayStub struct {
	mu   sync.Mutex
	sent []relay.Message
}

func (rs *relayStub) messages() []relay.Message {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]relay.Message(nil), rs.sent...)
}

func newRelayStub(t *testing.T, failTo string) (*httptest.Server, *relayStub) {
	t.Helper()
	rs := &relayStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m relay.Message
		json.NewDecoder(r.Body).Decode(&m)
		rs.mu.Lock()
		rs.sent = append(rs.sent, m)
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if m.To == failTo {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"success":false,"error":"Mailgun: Domain not found"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, rs
}

func TestEndToEnd_SaveAndSubmitSendsTwoEmails(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	srv, stub := newRelayStub(t, "")

	cfg := config.DefaultConfig()
	d := dispatch.New(relay.NewClient(srv.URL, time.Second), cfg)

	saveOut, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)
	out, err := SubmitDraft(ctx, database, d, session.NewGuard(), SubmitDraftInput{ID: saveOut.ID})
	require.NoError(t, err)
	require.True(t, out.Success)
	sent := stub.messages()
	require.Len(t, sent, 2)
	require.Equal(t, "a@b.com", sent[0].To)
	require.Equal(t, cfg.SalesAddress, sent[1].To)
	require.Contains(t, sent[1].Body, "Submission ID: "+saveOut.ID)
}

func TestEndToEnd_NotificationRelayErrorFailsSubmit(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()
	srv, stub := newRelayStub(t, cfg.SalesAddress)
	d := dispatch.New(relay.NewClient(srv.URL, time.Second), cfg)

	saveOut, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)

	_, err = SubmitDraft(ctx, database, d, session.NewGuard(), SubmitDraftInput{ID: saveOut.ID})
	require.True(t, errors.Is(err, errors.ErrDispatchFailed), "got %v", err)
	require.Equal(t, "Mailgun: Domain not found", err.(*errors.IntakeError).Message)
	require.Len(t, stub.messages(), 2)

	entries, err := db.ListDispatches(ctx, database, saveOut.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Success)
	require.Equal(t, "Mailgun: Domain not found", entries[0].Error)
}

func TestEndToEnd_UnreachableRelayHidesAddress(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	relayURL := srv.URL
	srv.Close()
	d := dispatch.New(relay.NewClient(relayURL, time.Second), config.DefaultConfig())

	saveOut, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)

	_, err = SubmitDraft(ctx, database, d, session.NewGuard(), SubmitDraftInput{ID: saveOut.ID})
	require.True(t, errors.Is(err, errors.ErrDispatchFailed), "got %v", err)
	require.NotContains(t, err.Error(), relayURL)

	entries, err := db.ListDispatches(ctx, database, saveOut.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotContains(t, entries[0].Error, relayURL)
}

func TestExport(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	first, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)
	second, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
	require.NoError(t, err)
	_, err = Delete(ctx, database, DeleteInput{ID: second.ID})
	require.NoError(t, err)

	var buf bytes.Buffer
	out, err := Export(ctx, database, &buf, ExportInput{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)

	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var header ExportHeader
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	require.True(t, header.IntakeExport)

	var d db.Draft
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &d))
	require.Equal(t, first.ID, d.ID)

	buf.Reset()
	out, err = Export(ctx, database, &buf, ExportInput{IncludeDeleted: true})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
}

func TestPurge_Validation(t *testing.T) {
	database := openTestDB(t)
	days := -1
	_, err := Purge(context.Background(), database, PurgeInput{OlderThanDays: &days})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	out, err := Purge(context.Background(), database, PurgeInput{})
	require.NoError(t, err)
	require.Equal(t, "No deleted drafts to purge", out.Message)
}

func TestList_Pagination(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := Save(ctx, database, SaveInput{Values: validAPIValues()})
		require.NoError(t, err)
	}

	out, err := List(ctx, database, ListInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	require.True(t, out.Pagination.HasMore)
	require.Equal(t, 3, out.Pagination.Total)

	out, err = List(ctx, database, ListInput{Limit: 500, Offset: 2})
	require.NoError(t, err)
	require.Equal(t, MaxListLimit, out.Pagination.Limit)
	require.Len(t, out.Items, 1)
	require.False(t, out.Pagination.HasMore)

	_, err = List(ctx, database, ListInput{Form: "careers"})
	require.Error(t, err)
}

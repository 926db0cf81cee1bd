package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/fakeapi"
	"github.com/dsrosen/cfrm-console/internal/tokenstore"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seededTitle = "Distribution d'eau interrompue"

func backend(t *testing.T, signedIn bool) *fakeapi.Server {
	t.Helper()
	srv := fakeapi.New(t)
	store := tokenstore.NewMemory()
	require.NoError(t, connect(api.Config{BaseUrl: srv.URL(), StrictAuth: true}, store))

	prevSpinner, prevOutput := withSpinner, output
	withSpinner = func(_ string, fn func()) error { fn(); return nil }
	output = "table"
	ctx = context.Background()
	t.Cleanup(func() { withSpinner, output = prevSpinner, prevOutput })

	if signedIn {
		require.NoError(t, store.Set(tokenstore.TokenKey, srv.AccessToken(fakeapi.AdminUsername)))
	}
	return srv
}

func run(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	t.Cleanup(func() {
		c.SetOut(nil)
		c.SetErr(nil)
	})
	err := c.RunE(c, args)
	return buf.String(), err
}

func TestValidateOutput(t *testing.T) {
	for _, f := range outputFormats {
		assert.NoError(t, validateOutput(f))
	}
	assert.Error(t, validateOutput("xml"))
}

func TestRender(t *testing.T) {
	v := view{
		value:   map[string]any{"title": "x", "id": "123", "tags": []string{"a", "b"}},
		headers: []string{"ID", "TITLE"},
		rows:    [][]string{{"123", "x"}},
	}

	t.Run("table", func(t *testing.T) {
		output = "table"
		var buf bytes.Buffer
		require.NoError(t, render(&buf, v))
		assert.Contains(t, buf.String(), "TITLE")
		assert.Contains(t, buf.String(), "123")
	})

	t.Run("json", func(t *testing.T) {
		output = "json"
		var buf bytes.Buffer
		require.NoError(t, render(&buf, v))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "x", got["title"])
	})

	t.Run("yaml", func(t *testing.T) {
		output = "yaml"
		var buf bytes.Buffer
		require.NoError(t, render(&buf, v))
		assert.Contains(t, buf.String(), "title: x\n")
		assert.Contains(t, buf.String(), `id: "123"`, "numeric-looking strings stay strings")
		assert.NotContains(t, buf.String(), "[")
	})

	output = "table"
}

func TestRender_EmptyTable(t *testing.T) {
	output = "table"
	var buf bytes.Buffer
	require.NoError(t, render(&buf, view{headers: []string{"ID"}}))
	assert.Contains(t, buf.String(), "nothing to show")
}

func TestRequireLogin(t *testing.T) {
	backend(t, false)

	err := requireLogin()
	require.ErrorIs(t, err, errLoginRequired)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Contains(t, errorOutput(err), "cfrm login")
}

func TestErrorOutput(t *testing.T) {
	apiErr := &api.Error{Method: http.MethodGet, Path: "/tickets/", StatusCode: http.StatusUnauthorized}
	expired := errorOutput(fmt.Errorf("listing tickets: %w: %w", api.ErrUnauthorized, apiErr))
	assert.Contains(t, expired, "session expired")

	plain := errorOutput(errors.New("boom"))
	assert.Contains(t, plain, "boom")
}

func TestLogin_StoresTokens(t *testing.T) {
	srv := backend(t, false)
	loginUsername, loginPassword = fakeapi.AdminUsername, fakeapi.AdminPassword
	t.Cleanup(func() { loginUsername, loginPassword = "", "" })

	out, err := run(t, loginCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "SIGNED IN")
	assert.NoError(t, requireLogin())
	assert.Len(t, srv.RequestsTo(http.MethodPost, "/auth/login/"), 1)

	out, err = run(t, logoutCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "SIGNED OUT")
	assert.ErrorIs(t, requireLogin(), errLoginRequired)
}

func TestLogin_BadPassword(t *testing.T) {
	backend(t, false)
	loginUsername, loginPassword = fakeapi.AdminUsername, "wrong"
	t.Cleanup(func() { loginUsername, loginPassword = "", "" })

	_, err := run(t, loginCmd)
	require.Error(t, err)
	assert.ErrorIs(t, requireLogin(), errLoginRequired)
}

func TestWhoami(t *testing.T) {
	backend(t, true)

	out, err := run(t, whoamiCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Admin CFRM")
	assert.Contains(t, out, "Administrateur")
}

func TestTicketsList(t *testing.T) {
	backend(t, true)

	out, err := run(t, ticketsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, seededTitle)
	assert.Contains(t, out, "1 tickets")
}

func TestTicketsList_Json(t *testing.T) {
	backend(t, true)
	output = "json"

	out, err := run(t, ticketsListCmd)
	require.NoError(t, err)

	var got []cfrm.Ticket
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, seededTitle, got[0].Title)
}

func TestTicketsCreate_ThenListed(t *testing.T) {
	srv := backend(t, true)
	newTicket = cfrm.TicketInput{
		Title:    "Latrines bouchées",
		Content:  "Camp nord, bloc C",
		Category: "2",
		Priority: "2",
		Channel:  "1",
	}
	t.Cleanup(func() { newTicket = cfrm.TicketInput{} })

	out, err := run(t, ticketsCreateCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "CREATED")
	assert.Len(t, srv.Tickets(), 2)

	out, err = run(t, ticketsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Latrines bouchées")
}

func TestTicketsCreate_MissingFieldsNeverSent(t *testing.T) {
	srv := backend(t, true)
	newTicket = cfrm.TicketInput{Title: "Only a title"}
	t.Cleanup(func() { newTicket = cfrm.TicketInput{} })

	_, err := run(t, ticketsCreateCmd)
	var ve *cfrm.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, srv.RequestsTo(http.MethodPost, "/tickets/"))
}

func TestTicketsCloseAndReopen(t *testing.T) {
	srv := backend(t, true)
	id := srv.Tickets()[0].Id.String()

	out, err := run(t, ticketsCloseCmd, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Fermé")

	out, err = run(t, ticketsReopenCmd, id)
	require.NoError(t, err)
	assert.NotContains(t, out, "Fermé")
}

func TestTicketsUpdate_NeedsAField(t *testing.T) {
	srv := backend(t, true)
	id := srv.Tickets()[0].Id.String()

	_, err := run(t, ticketsUpdateCmd, id)
	assert.ErrorContains(t, err, "nothing to update")
}

func TestTicketsGet_InvalidId(t *testing.T) {
	srv := backend(t, true)
	before := len(srv.Requests())

	_, err := run(t, ticketsGetCmd, "42")
	assert.ErrorIs(t, err, cfrm.ErrInvalidTicketId)
	assert.Len(t, srv.Requests(), before)
}

func TestTicketsTemplateAndImport(t *testing.T) {
	srv := backend(t, true)
	path := filepath.Join(t.TempDir(), "tickets.csv")

	_, err := run(t, ticketsTemplateCmd, path)
	require.NoError(t, err)

	out, err := run(t, ticketsImportCmd, path)
	require.NoError(t, err)
	assert.Contains(t, out, "IMPORTED")
	assert.Len(t, srv.Imports(), 1)

	_, err = run(t, ticketsImportCmd, strings.TrimSuffix(path, ".csv")+".txt")
	assert.ErrorContains(t, err, "not a .csv file")
}

func TestChannelsCreateAndWebhook(t *testing.T) {
	srv := backend(t, true)
	channelIn = cfrm.ChannelInput{Name: "Email terrain", IsActive: true}
	channelType, channelConfig = "EMAIL", `{"from":"terrain@cfrm.org"}`
	t.Cleanup(func() {
		channelIn = cfrm.ChannelInput{}
		channelType, channelConfig = "", ""
	})

	out, err := run(t, channelsCreateCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Email terrain")

	out, err = run(t, channelsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Email terrain")

	smsStatus = "delivered"
	out, err = run(t, webhooksCmd, "sms")
	require.NoError(t, err)
	assert.Contains(t, out, "ACCEPTED")
	require.Len(t, srv.Webhooks(), 1)
	assert.Equal(t, "delivered", srv.Webhooks()[0]["MessageStatus"])
}

func TestWebhookPayload(t *testing.T) {
	smsSid, smsStatus = "", "failed"
	p, err := webhookPayload(cfrm.WebhookSMS)
	require.NoError(t, err)
	sid, _ := p["MessageSid"].(string)
	assert.True(t, strings.HasPrefix(sid, "SM"))
	assert.Len(t, sid, 34)

	webhookJSON = `{"custom":true}`
	t.Cleanup(func() { webhookJSON = "" })
	p, err = webhookPayload(cfrm.WebhookWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"custom": true}, p)
}

func TestReportsGenerateAndSave(t *testing.T) {
	backend(t, true)
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	reportFormat, reportSave = string(cfrm.ReportExcel), true
	t.Cleanup(func() { reportFormat, reportSave = string(cfrm.ReportPDF), false })

	out, err := run(t, reportsGenerateCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "READY")
	assert.Contains(t, out, "SAVED")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReportsGenerate_UnsetFiltersSendEmptyLists(t *testing.T) {
	b, err := json.Marshal(reportReq)
	require.NoError(t, err)

	body := string(b)
	for _, key := range []string{"categories", "statuses", "priorities", "channels"} {
		assert.Contains(t, body, `"`+key+`":[]`)
	}
	assert.NotContains(t, body, "null")
}

func TestPrefsSet(t *testing.T) {
	backend(t, true)
	prefs = cfrm.UserPreferences{Theme: "Dark", ItemsPerPage: 50}
	t.Cleanup(func() { prefs = cfrm.UserPreferences{} })

	out, err := run(t, prefsSetCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "dark")
	assert.Contains(t, out, "50")

	prefs.Theme = "neon"
	_, err = run(t, prefsSetCmd)
	assert.ErrorContains(t, err, "unknown theme")
}

func TestDashboard(t *testing.T) {
	backend(t, true)

	out, err := run(t, dashboardCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Overdue")
	assert.Contains(t, out, "Status: Nouveau")
}

func TestConfigValidate(t *testing.T) {
	good := Config{
		Api:     api.Config{BaseUrl: "https://cfrm.example.org/api/v1"},
		Session: SessionConfig{File: "/tmp/session.json"},
	}
	assert.NoError(t, good.validate())

	bad := good
	bad.Api.BaseUrl = "localhost:8000"
	bad.Session.Encrypt = true
	err := bad.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")
	assert.Contains(t, err.Error(), "session.identity_file")
}

func TestOpenTokenStore_Encrypted(t *testing.T) {
	dir := t.TempDir()
	cfg := SessionConfig{
		File:         filepath.Join(dir, sessionFileName),
		Encrypt:      true,
		IdentityFile: filepath.Join(dir, identityFileName),
	}

	store, err := openTokenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Set(tokenstore.TokenKey, "secret-token"))

	raw, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")

	again, err := openTokenStore(cfg)
	require.NoError(t, err)
	v, ok := again.Get(tokenstore.TokenKey)
	assert.True(t, ok)
	assert.Equal(t, "secret-token", v)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "a b", truncate("a\n  b", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

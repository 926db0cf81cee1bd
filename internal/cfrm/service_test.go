package cfrm_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dsrosen/cfrm-console/internal/api"
	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/dsrosen/cfrm-console/internal/fakeapi"
	"github.com/dsrosen/cfrm-console/internal/tokenstore"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

func build(t *testing.T, strict bool, opts ...fakeapi.Option) (*cfrm.Client, *fakeapi.Server, *tokenstore.Memory) {
	t.Helper()
	srv := fakeapi.New(t, opts...)
	tokens := tokenstore.NewMemory()

	a, err := api.NewClient(api.Config{BaseUrl: srv.URL(), StrictAuth: strict}, tokens)
	require.NoError(t, err)

	return cfrm.NewClient(a), srv, tokens
}

func newClient(t *testing.T, opts ...fakeapi.Option) (*cfrm.Client, *fakeapi.Server, *tokenstore.Memory) {
	t.Helper()
	return build(t, false, opts...)
}

// loggedIn sends the bearer everywhere; the preferences and profile
// endpoints sit under the allow-listed /users/ prefix.
func loggedIn(t *testing.T, opts ...fakeapi.Option) (*cfrm.Client, *fakeapi.Server, *tokenstore.Memory) {
	t.Helper()
	c, srv, tokens := build(t, true, opts...)
	require.NoError(t, tokens.Set(tokenstore.TokenKey, srv.AccessToken(fakeapi.AdminUsername)))
	return c, srv, tokens
}

func validInput(title string) cfrm.TicketInput {
	return cfrm.TicketInput{
		Title:         title,
		Content:       "Le centre de santé manque de médicaments.",
		Category:      "2",
		Priority:      "1",
		Channel:       "1",
		SubmitterName: "Moussa",
		Tags:          []string{"santé"},
	}
}

func TestLogin(t *testing.T) {
	c, _, tokens := newClient(t)
	ctx := context.Background()

	res, err := c.Login(ctx, cfrm.Credentials{Username: fakeapi.AdminUsername, Password: fakeapi.AdminPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Access)
	assert.NotEmpty(t, res.Refresh)
	assert.Equal(t, "admin", res.User.Username)

	require.NoError(t, tokens.Set(tokenstore.TokenKey, res.Access))
	me, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Admin CFRM", me.DisplayName())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	c, _, _ := newClient(t)

	_, err := c.Login(context.Background(), cfrm.Credentials{Username: "admin", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, "Identifiants invalides", api.ErrorMessage(err, "login failed"))
	assert.Equal(t, api.KindValidation, api.Classify(err))
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	c, _, tokens := newClient(t)
	require.NoError(t, tokens.Set(tokenstore.TokenKey, "garbage"))

	_, err := c.CurrentUser(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, ok := tokens.Get(tokenstore.TokenKey)
	assert.False(t, ok)
}

func TestRefreshToken(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	res, err := c.Login(ctx, cfrm.Credentials{Username: fakeapi.AdminUsername, Password: fakeapi.AdminPassword})
	require.NoError(t, err)

	access, _, err := c.RefreshToken(ctx, res.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	_, _, err = c.RefreshToken(ctx, "not-a-token")
	assert.Error(t, err)
}

func TestLogout_RevokesRefresh(t *testing.T) {
	c, _, tokens := newClient(t)
	ctx := context.Background()

	res, err := c.Login(ctx, cfrm.Credentials{Username: fakeapi.AdminUsername, Password: fakeapi.AdminPassword})
	require.NoError(t, err)
	require.NoError(t, tokens.Set(tokenstore.TokenKey, res.Access))

	require.NoError(t, c.Logout(ctx, res.Refresh))

	_, _, err = c.RefreshToken(ctx, res.Refresh)
	assert.Error(t, err)
}

func TestCreateTicket_AppearsInList(t *testing.T) {
	c, srv, _ := newClient(t)
	ctx := context.Background()

	created, err := c.CreateTicket(ctx, validInput("Pénurie de médicaments"))
	require.NoError(t, err)
	assert.NoError(t, cfrm.ValidateTicketId(created.Id.String()))
	assert.Equal(t, "Plainte", created.CategoryLabel())
	assert.Equal(t, "Nouveau", created.StatusLabel())

	list, err := c.ListTickets(ctx, cfrm.TicketFilters{})
	require.NoError(t, err)

	var titles []string
	for _, tk := range list.Items() {
		titles = append(titles, tk.Title)
	}
	assert.Contains(t, titles, "Pénurie de médicaments")
	assert.Len(t, srv.RequestsTo(http.MethodPost, "/tickets/"), 1)
}

func TestCreateTicketMultipart_SendsFieldsAndAttachments(t *testing.T) {
	c, srv, _ := newClient(t)

	in := validInput("Avec pièce jointe")
	in.Metadata = map[string]any{"source": "test"}
	in.Attachments = []api.FormFile{{Field: "attachments", Name: "photo.jpg", Reader: strings.NewReader("jpeg")}}

	var progress []int
	created, err := c.CreateTicketMultipart(context.Background(), in, func(p int) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, []string{"santé"}, created.Tags)
	assert.Equal(t, "test", created.Metadata["source"])
	assert.Len(t, created.Attachments, 1)
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.Len(t, srv.Tickets(), 2)
}

func TestCreateTicket_ValidatesBeforeSending(t *testing.T) {
	c, srv, _ := newClient(t)

	_, err := c.CreateTicket(context.Background(), cfrm.TicketInput{Title: "only a title"})
	var vErr *cfrm.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Fields, "content")
	assert.Empty(t, srv.RequestsTo(http.MethodPost, "/tickets/"))
}

func TestTicketIdIsValidatedBeforeSending(t *testing.T) {
	c, srv, _ := newClient(t)

	_, err := c.GetTicket(context.Background(), "../users")
	assert.ErrorIs(t, err, cfrm.ErrInvalidTicketId)
	assert.Empty(t, srv.Requests())
}

func TestTicketLifecycle(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	tk, err := c.CreateTicket(ctx, validInput("Cycle de vie"))
	require.NoError(t, err)
	id := tk.Id.String()

	tk, err = c.AssignTicket(ctx, id, "2")
	require.NoError(t, err)
	assert.Equal(t, "Agent Terrain", tk.AssignedTo.Label())
	assert.Equal(t, "En cours", tk.StatusLabel())

	tk, err = c.EscalateTicket(ctx, id, "protection@unhcr.org")
	require.NoError(t, err)
	assert.Equal(t, "Escaladé", tk.StatusLabel())
	assert.Equal(t, "protection@unhcr.org", tk.EscalatedTo)

	_, err = c.EscalateTicket(ctx, id, "")
	assert.Error(t, err)

	tk, err = c.CloseTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fermé", tk.StatusLabel())
	assert.NotNil(t, tk.ClosedAt)

	tk, err = c.ReopenTicket(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, tk.ClosedAt)

	title := "Titre modifié"
	tk, err = c.UpdateTicket(ctx, id, cfrm.TicketPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, tk.Title)

	logs, err := c.TicketLogs(ctx, id)
	require.NoError(t, err)
	assert.Len(t, logs, 6)

	stats, err := c.TicketStats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.LogsCount)

	require.NoError(t, c.DeleteTicket(ctx, id))
	_, err = c.GetTicket(ctx, id)
	assert.Equal(t, api.KindValidation, api.Classify(err))
}

func TestResponsesAndFeedback(t *testing.T) {
	c, _, _ := loggedIn(t)
	ctx := context.Background()

	tk, err := c.CreateTicket(ctx, validInput("Réponses"))
	require.NoError(t, err)
	id := tk.Id.String()

	_, err = c.CreateResponse(ctx, cfrm.ResponseInput{Ticket: id, Content: "Nous avons transmis.", Channel: "2"})
	require.NoError(t, err)
	_, err = c.CreateResponse(ctx, cfrm.ResponseInput{Ticket: id, Content: "Note interne", IsInternal: true})
	require.NoError(t, err)

	responses, err := c.Responses(ctx, id)
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "SMS", responses[0].Channel.Label())
	assert.True(t, responses[1].IsInternal)

	yes := true
	fb, err := c.CreateFeedback(ctx, cfrm.FeedbackInput{Ticket: id, SatisfactionRating: 4, QualityRating: 5, WouldRecommend: &yes})
	require.NoError(t, err)
	assert.Equal(t, 4, fb.SatisfactionRating)

	_, err = c.CreateFeedback(ctx, cfrm.FeedbackInput{Ticket: id, SatisfactionRating: 4})
	assert.Equal(t, "Un feedback existe déjà pour ce ticket.", api.ErrorMessage(err, ""))

	full, err := c.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Len(t, full.Responses, 2)
	require.NotNil(t, full.Feedback)
}

func TestReferenceData_ShapesAgree(t *testing.T) {
	bare, _, _ := newClient(t)
	paged, _, _ := newClient(t, fakeapi.WithPagination())
	ctx := context.Background()

	a, err := bare.ReferenceData(ctx)
	require.NoError(t, err)
	b, err := paged.ReferenceData(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("reference data differs between bare and paginated backends:\n%s", diff)
	}
	assert.Len(t, a.Categories, 3)
	assert.Equal(t, "Plainte", a.CategoryName("2"))
	assert.Equal(t, "99", a.StatusName("99"))
}

func TestReferenceData_AllOrNothing(t *testing.T) {
	c, srv, _ := newClient(t)
	srv.FailNext(http.MethodGet, "/priorities/", http.StatusInternalServerError)

	rd, err := c.ReferenceData(context.Background())
	assert.Nil(t, rd)
	assert.Equal(t, api.KindServer, api.Classify(err))
}

func TestListTickets_Pagination(t *testing.T) {
	c, _, _ := newClient(t, fakeapi.WithPagination())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := c.CreateTicket(ctx, validInput("Ticket"))
		require.NoError(t, err)
	}

	first, err := c.ListTickets(ctx, cfrm.TicketFilters{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, first.Items(), 10)
	assert.Equal(t, 13, first.Count())
	assert.True(t, first.HasNext())
	assert.False(t, first.HasPrevious())

	second, err := c.ListTickets(ctx, cfrm.TicketFilters{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, second.Items(), 3)
	assert.False(t, second.HasNext())
	assert.True(t, second.HasPrevious())

	filtered, err := c.ListTickets(ctx, cfrm.TicketFilters{Search: "eau"})
	require.NoError(t, err)
	assert.Len(t, filtered.Items(), 1)
}

func TestDashboardStats(t *testing.T) {
	c, _, _ := newClient(t)

	s, err := c.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Total())
	assert.Equal(t, 1, s.OverdueCount)
	assert.Equal(t, []cfrm.NameCount{{Name: "SMS", Count: 1}}, s.ChannelStats)
}

func TestChannelConfigCrud(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	ch, err := c.CreateChannelConfig(ctx, cfrm.ChannelInput{Name: "Email terrain", Type: cfrm.ChannelEmail, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, cfrm.ChannelEmail, ch.Type)

	ch, err = c.UpdateChannelConfig(ctx, ch.Id.String(), cfrm.ChannelInput{Name: "Email", Type: cfrm.ChannelEmail, Configuration: map[string]any{"smtp": "mail.cfrm.org"}})
	require.NoError(t, err)
	assert.False(t, ch.IsActive)
	assert.Equal(t, "mail.cfrm.org", ch.Configuration["smtp"])

	all, err := c.ListChannelConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, c.DeleteChannelConfig(ctx, ch.Id.String()))
	all, err = c.ListChannelConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = c.CreateChannelConfig(ctx, cfrm.ChannelInput{Name: "x", Type: "pigeon"})
	var vErr *cfrm.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestSendWebhook(t *testing.T) {
	c, srv, _ := newClient(t)
	ctx := context.Background()

	res, err := c.SendWebhook(ctx, cfrm.WebhookSMS, cfrm.SMSStatusPayload("SM123", "delivered"))
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.NotEmpty(t, res.EventId)
	require.Len(t, srv.Webhooks(), 1)
	assert.Equal(t, "SM123", srv.Webhooks()[0]["MessageSid"])

	// the seeded WhatsApp channel is inactive
	_, err = c.SendWebhook(ctx, cfrm.WebhookWhatsApp, cfrm.WhatsAppMessagePayload("+22370000000", "Bonjour"))
	assert.Equal(t, api.KindValidation, api.Classify(err))

	_, err = c.SendWebhook(ctx, "fax", nil)
	assert.Error(t, err)
}

func TestGenerateReportAndDownload(t *testing.T) {
	c, srv, _ := loggedIn(t)
	ctx := context.Background()

	res, err := c.GenerateReport(ctx, cfrm.NewReportRequest(cfrm.ReportExcel, time.Now()))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.DownloadUrl, ".xlsx"))
	assert.Equal(t, 1, res.TicketCount)

	u, err := c.ResolveDownloadUrl(res)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, srv.URL()+"/reports/download/rapport_"), u)

	var buf bytes.Buffer
	n, err := c.DownloadTo(ctx, res.DownloadUrl, &buf)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Contains(t, buf.String(), "rapport_")
}

func TestGenerateReport_RequiresAuth(t *testing.T) {
	c, _, _ := newClient(t)

	_, err := c.GenerateReport(context.Background(), cfrm.NewReportRequest(cfrm.ReportPDF, time.Now()))
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestImportTickets(t *testing.T) {
	c, srv, _ := newClient(t)
	ctx := context.Background()

	var csv bytes.Buffer
	require.NoError(t, cfrm.WriteImportTemplate(&csv))
	csv.WriteString(",missing title,1,1,1,,,,,false\n")

	res, err := c.ImportTickets(ctx, "batch.csv", &csv, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Ligne 3")
	assert.Len(t, srv.Imports(), 1)

	_, err = c.ImportTickets(ctx, "batch.xlsx", strings.NewReader(""), nil)
	var vErr *cfrm.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestPreferencesAndProfile(t *testing.T) {
	c, _, _ := loggedIn(t)
	ctx := context.Background()

	p, err := c.MyPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "light", p.Theme)

	no := false
	p, err = c.UpdateMyPreferences(ctx, cfrm.UserPreferences{Theme: "dark", EmailNotifications: &no})
	require.NoError(t, err)
	assert.Equal(t, "dark", p.Theme)
	assert.False(t, *p.EmailNotifications)
	assert.Equal(t, 20, p.ItemsPerPage)

	name := "Administratrice"
	u, err := c.UpdateProfile(ctx, cfrm.UserPatch{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, u.FullName)

	err = c.ChangePassword(ctx, cfrm.PasswordChange{OldPassword: "wrong", NewPassword: "longenough"})
	assert.Equal(t, "old_password: Mot de passe incorrect", api.ErrorMessage(err, ""))
	require.NoError(t, c.ChangePassword(ctx, cfrm.PasswordChange{OldPassword: fakeapi.AdminPassword, NewPassword: "longenough"}))

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

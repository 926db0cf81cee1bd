package tui

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	from := now.AddDate(0, 0, -7)
	closed := now.Add(-24 * time.Hour)

	tickets := []cfrm.Ticket{
		{Title: "a", StatusName: "Nouveau", CategoryName: "Plainte", PriorityName: "Haute", ChannelName: "SMS", CreatedAt: now.Add(-48 * time.Hour), IsOverdue: true},
		{Title: "b", StatusName: "Fermé", CategoryName: "Plainte", PriorityName: "Basse", ChannelName: "SMS", CreatedAt: now.Add(-72 * time.Hour), ClosedAt: &closed},
		{Title: "c", StatusName: "Nouveau", CategoryName: "PSEA", PriorityName: "Critique", ChannelName: "Portail Web", CreatedAt: now.Add(-48 * time.Hour), IsPsea: true},
	}

	a := summarize(tickets, 7, from, now)

	assert.Equal(t, 3, a.total)
	assert.Equal(t, 1, a.overdue)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, a.psea)
	assert.Equal(t, 48*time.Hour, a.avgAge)

	want := []cfrm.NameCount{{Name: "Plainte", Count: 2}, {Name: "PSEA", Count: 1}}
	if diff := cmp.Diff(want, a.byCategory); diff != "" {
		t.Errorf("byCategory mismatch (-want +got):\n%s", diff)
	}
	want = []cfrm.NameCount{{Name: "Nouveau", Count: 2}, {Name: "Fermé", Count: 1}}
	if diff := cmp.Diff(want, a.byStatus); diff != "" {
		t.Errorf("byStatus mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, a.perDay, 8)
	assert.Equal(t, "2026-03-08", a.perDay[5].Name)
	assert.Equal(t, 2, a.perDay[5].Count)
}

func TestSummarize_Empty(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	a := summarize(nil, 7, now.AddDate(0, 0, -7), now)

	assert.Zero(t, a.total)
	assert.Zero(t, a.avgAge)
	assert.Empty(t, a.byStatus)
	assert.Len(t, a.perDay, 8)
}

func TestSummarize_BucketsInLocalDays(t *testing.T) {
	dakarPlus2 := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, dakarPlus2)
	from := now.AddDate(0, 0, -2)

	tickets := []cfrm.Ticket{{Title: "late", CreatedAt: time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)}}
	a := summarize(tickets, 2, from, now)

	require.Len(t, a.perDay, 3)
	last := a.perDay[2]
	assert.Equal(t, "2026-03-10", last.Name)
	assert.Equal(t, 1, last.Count)
}

func TestTicketMarkdown_RatingIsClamped(t *testing.T) {
	e := &env{now: time.Now}
	for _, rating := range []int{-3, 0, 9} {
		tk := &cfrm.Ticket{Title: "x", Feedback: &cfrm.Feedback{SatisfactionRating: rating, Comments: "ok"}}
		var md string
		require.NotPanics(t, func() { md = ticketMarkdown(tk, e) })
		assert.NotContains(t, md, "******")
	}
}

func TestSparkline(t *testing.T) {
	days := []cfrm.NameCount{{Count: 0}, {Count: 1}, {Count: 4}}
	assert.Contains(t, sparkline(days), " ▂█")
}

func TestAnalyticsPage_WindowCycles(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeAnalytics, "")
	p := h.m.page.(*analyticsPage)
	require.True(t, p.data.loaded)
	assert.Equal(t, 30, p.data.data.days)
	assert.Equal(t, 1, p.data.data.total)

	h.press("w")
	assert.Equal(t, 90, p.data.data.days)
	h.press("w")
	assert.Equal(t, 7, p.data.data.days)
}

func TestImportPage_UploadsCsv(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeImport, "")
	p := h.m.page.(*importPage)

	path := filepath.Join(t.TempDir(), "tickets.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, cfrm.WriteImportTemplate(f))
	require.NoError(t, f.Close())

	h.drain(p.upload(path))

	require.NoError(t, p.err)
	require.NotNil(t, p.result)
	assert.Equal(t, 1, p.result.ImportedCount)
	assert.Contains(t, h.m.status, "IMPORTED")
	assert.Len(t, h.srv.Imports(), 1)
}

func TestImportPage_MissingFile(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeImport, "")
	p := h.m.page.(*importPage)

	h.drain(p.upload(filepath.Join(t.TempDir(), "absent.csv")))

	require.Error(t, p.err)
	assert.Contains(t, h.m.View(), "IMPORT FAILED")
	assert.Empty(t, h.srv.Imports())
}

func TestChannelsPage_CreateAndWebhook(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeChannels, "")
	p := h.m.page.(*channelsPage)
	require.True(t, p.list.loaded)
	before := len(p.list.data)

	h.drain(p.submit(createChannelForm, cfrm.Channel{}, channelDraft{name: "Email terrain", kind: "email", active: true}))
	assert.Len(t, p.list.data, before+1)

	var sms cfrm.Channel
	for _, ch := range p.list.data {
		if ch.Type == cfrm.ChannelSMS {
			sms = ch
		}
	}
	require.NotEmpty(t, sms.Id)

	h.drain(p.submit(webhookForm, sms, channelDraft{}))
	assert.Len(t, h.srv.Webhooks(), 1)
	assert.Contains(t, h.m.status, "webhook accepted")
}

func TestChannelsPage_DeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t, true)
	h.goTo(routeChannels, "")
	p := h.m.page.(*channelsPage)
	target := p.list.data[0]
	before := len(h.srv.RequestsTo(http.MethodDelete, "/channels/"+target.Id.String()+"/"))

	h.drain(p.submit(deleteChannelForm, target, channelDraft{confirm: false}))
	assert.Len(t, h.srv.RequestsTo(http.MethodDelete, "/channels/"+target.Id.String()+"/"), before)

	h.drain(p.submit(deleteChannelForm, target, channelDraft{confirm: true}))
	assert.Len(t, h.srv.RequestsTo(http.MethodDelete, "/channels/"+target.Id.String()+"/"), before+1)
}

func TestDraftInput(t *testing.T) {
	in, err := ticketDraft{
		title:     "  Titre ",
		content:   "Contenu",
		category:  "1",
		priority:  "2",
		channel:   "1",
		anonymous: true,
		name:      "Awa",
		tags:      "eau, , nord",
	}.input()
	require.NoError(t, err)

	assert.Equal(t, "Titre", in.Title)
	assert.Empty(t, in.SubmitterName, "anonymous drops the submitter")
	assert.Equal(t, []string{"eau", "nord"}, in.Tags)

	_, err = ticketDraft{attachments: "/does/not/exist.pdf"}.input()
	assert.Error(t, err)
}

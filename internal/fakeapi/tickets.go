package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ticketBody struct {
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	IsAnonymous       bool           `json:"is_anonymous"`
	Category          string         `json:"category"`
	Priority          string         `json:"priority"`
	Channel           string         `json:"channel"`
	ExternalId        string         `json:"external_id"`
	SubmitterName     string         `json:"submitter_name"`
	SubmitterPhone    string         `json:"submitter_phone"`
	SubmitterEmail    string         `json:"submitter_email"`
	SubmitterLocation string         `json:"submitter_location"`
	Tags              []string       `json:"tags"`
	Metadata          map[string]any `json:"metadata"`
}

// readTicketBody accepts both the JSON and the multipart form encodings.
func readTicketBody(r *http.Request) (ticketBody, int, error) {
	var b ticketBody
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return b, 0, decode(r, &b)
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return b, 0, err
	}

	b.Title = r.FormValue("title")
	b.Content = r.FormValue("content")
	b.IsAnonymous = r.FormValue("is_anonymous") == "true"
	b.Category = r.FormValue("category")
	b.Priority = r.FormValue("priority")
	b.Channel = r.FormValue("channel")
	b.ExternalId = r.FormValue("external_id")
	b.SubmitterName = r.FormValue("submitter_name")
	b.SubmitterPhone = r.FormValue("submitter_phone")
	b.SubmitterEmail = r.FormValue("submitter_email")
	b.SubmitterLocation = r.FormValue("submitter_location")

	if v := r.FormValue("tags"); v != "" {
		if err := json.Unmarshal([]byte(v), &b.Tags); err != nil {
			return b, 0, fmt.Errorf("tags: %w", err)
		}
	}
	if v := r.FormValue("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &b.Metadata); err != nil {
			return b, 0, fmt.Errorf("metadata: %w", err)
		}
	}

	return b, len(r.MultipartForm.File["attachments"]), nil
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	in, attachments, err := readTicketBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	missing := map[string][]string{}
	for field, v := range map[string]string{"title": in.Title, "content": in.Content, "category": in.Category, "priority": in.Priority, "channel": in.Channel} {
		if v == "" {
			missing[field] = []string{"Ce champ est obligatoire."}
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}

	now := time.Now().UTC().Truncate(time.Second)
	s.mu.Lock()
	t := &cfrm.Ticket{
		Id:                cfrm.Id(uuid.NewString()),
		Title:             in.Title,
		Content:           in.Content,
		IsAnonymous:       in.IsAnonymous,
		Category:          s.categoryRef(in.Category),
		Priority:          s.priorityRef(in.Priority),
		Status:            s.statusRef("1"),
		Channel:           s.channelRef(in.Channel),
		ExternalId:        in.ExternalId,
		SubmitterName:     in.SubmitterName,
		SubmitterPhone:    in.SubmitterPhone,
		SubmitterEmail:    in.SubmitterEmail,
		SubmitterLocation: in.SubmitterLocation,
		Tags:              in.Tags,
		Metadata:          in.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i := 0; i < attachments; i++ {
		t.Attachments = append(t.Attachments, map[string]any{"index": i})
	}
	s.tickets = append([]*cfrm.Ticket{t}, s.tickets...)
	s.logLocked(t.Id, "created", "Ticket créé")
	out := *t
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func matches(t *cfrm.Ticket, q map[string]string) bool {
	if v := q["search"]; v != "" {
		hay := strings.ToLower(t.Title + " " + t.Content)
		if !strings.Contains(hay, strings.ToLower(v)) {
			return false
		}
	}

	refs := map[string]*cfrm.Ref{"status": t.Status, "category": t.Category, "priority": t.Priority, "channel": t.Channel, "assigned_to": t.AssignedTo}
	for key, ref := range refs {
		want := q[key]
		if want == "" {
			continue
		}
		if ref == nil || ref.Id.String() != want {
			return false
		}
	}

	if v := q["is_overdue"]; v != "" && strconv.FormatBool(t.IsOverdue) != v {
		return false
	}

	return true
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}

	s.mu.Lock()
	var all []cfrm.Ticket
	for _, t := range s.tickets {
		if matches(t, q) {
			all = append(all, *t)
		}
	}
	s.mu.Unlock()

	if !s.paginate {
		list(s, w, all)
		return
	}

	page, _ := strconv.Atoi(q["page"])
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(q["page_size"])
	if size < 1 {
		size = cfrm.DefaultPageSize
	}

	start := min((page-1)*size, len(all))
	end := min(start+size, len(all))
	res := cfrm.Paginated[cfrm.Ticket]{Results: all[start:end], Count: len(all)}
	if res.Results == nil {
		res.Results = []cfrm.Ticket{}
	}
	if end < len(all) {
		res.Next = fmt.Sprintf("%s/tickets/?page=%d", BasePath, page+1)
	}
	if page > 1 {
		res.Previous = fmt.Sprintf("%s/tickets/?page=%d", BasePath, page-1)
	}

	writeJSON(w, http.StatusOK, res)
}

// find must be called with s.mu held.
func (s *Server) find(id string) *cfrm.Ticket {
	for _, t := range s.tickets {
		if t.Id.String() == id {
			return t
		}
	}
	return nil
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(chi.URLParam(r, "id"))
	if t == nil {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	out := *t
	out.Logs = slices.Clone(s.logs[t.Id])
	for _, resp := range s.responses {
		if resp.Ticket == t.Id {
			out.Responses = append(out.Responses, resp)
		}
	}
	if fb, ok := s.feedback[t.Id]; ok {
		out.Feedback = &fb
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) patchTicket(w http.ResponseWriter, r *http.Request) {
	var patch cfrm.TicketPatch
	if err := decode(r, &patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(chi.URLParam(r, "id"))
	if t == nil {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	if patch.Category != nil {
		t.Category = s.categoryRef(*patch.Category)
	}
	if patch.Priority != nil {
		t.Priority = s.priorityRef(*patch.Priority)
	}
	if patch.Status != nil {
		t.Status = s.statusRef(*patch.Status)
	}
	if patch.Channel != nil {
		t.Channel = s.channelRef(*patch.Channel)
	}
	if patch.AssignedTo != nil {
		t.AssignedTo = s.userRef(*patch.AssignedTo)
	}
	if patch.Tags != nil {
		t.Tags = patch.Tags
	}
	t.UpdatedAt = time.Now().UTC()
	s.logLocked(t.Id, "updated", "Ticket modifié")

	writeJSON(w, http.StatusOK, *t)
}

func (s *Server) deleteTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.tickets, func(t *cfrm.Ticket) bool { return t.Id.String() == id })
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	s.tickets = slices.Delete(s.tickets, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ticketAction(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = decode(r, &body)

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(chi.URLParam(r, "id"))
	if t == nil {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	now := time.Now().UTC()
	switch action := chi.URLParam(r, "action"); action {
	case "assign":
		ref := s.userRef(body["assigned_to"])
		if ref == nil {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"assigned_to": {"Utilisateur introuvable."}})
			return
		}
		t.AssignedTo = ref
		t.Status = s.statusRef("2")
		s.logLocked(t.Id, "assigned", "Assigné à "+ref.Label())
	case "close":
		t.Status = s.statusRef("4")
		t.ClosedAt = &now
		s.logLocked(t.Id, "closed", "Ticket fermé")
	case "reopen":
		t.Status = s.statusRef("2")
		t.ClosedAt = nil
		s.logLocked(t.Id, "reopened", "Ticket rouvert")
	case "escalate":
		if body["escalated_to"] == "" {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"escalated_to": {"Ce champ est obligatoire."}})
			return
		}
		t.Status = s.statusRef("3")
		t.EscalatedAt = &now
		t.EscalatedTo = body["escalated_to"]
		s.logLocked(t.Id, "escalated", "Escaladé vers "+body["escalated_to"])
	default:
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	t.UpdatedAt = now
	writeJSON(w, http.StatusOK, *t)
}

func (s *Server) ticketStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(chi.URLParam(r, "id"))
	if t == nil {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	responses := 0
	for _, resp := range s.responses {
		if resp.Ticket == t.Id {
			responses++
		}
	}
	fb, hasFb := s.feedback[t.Id]
	stats := cfrm.TicketDetailStats{
		DaysSinceCreation: t.DaysSinceCreation,
		IsOverdue:         t.IsOverdue,
		ResponsesCount:    responses,
		LogsCount:         len(s.logs[t.Id]),
		HasFeedback:       hasFb,
	}
	if hasFb {
		stats.Feedback = &fb
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, category, channel := map[string]int{}, map[string]int{}, map[string]int{}
	overdue, weekly := 0, 0
	weekAgo := time.Now().Add(-7 * 24 * time.Hour)
	for _, t := range s.tickets {
		status[t.StatusLabel()]++
		category[t.CategoryLabel()]++
		channel[t.ChannelLabel()]++
		if t.IsOverdue {
			overdue++
		}
		if t.CreatedAt.After(weekAgo) {
			weekly++
		}
	}
	s.mu.Unlock()

	breakdown := func(key string, m map[string]int) []map[string]any {
		out := []map[string]any{}
		for _, name := range sortedKeys(m) {
			out = append(out, map[string]any{key: name, "count": m[name]})
		}
		return out
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status_stats":      breakdown("status__name", status),
		"category_stats":    breakdown("category__name", category),
		"channel_stats":     breakdown("channel__name", channel),
		"overdue_count":     overdue,
		"weekly_tickets":    weekly,
		"avg_response_time": nil,
	})
}

func (s *Server) importTickets(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Aucun fichier fourni"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var errs []string
	imported := 0

	s.mu.Lock()
	s.imports = append(s.imports, data)
	now := time.Now().UTC().Truncate(time.Second)
	for i, line := range lines[1:] {
		cols := strings.Split(strings.TrimSpace(line), ",")
		if len(cols) < 2 || cols[0] == "" || cols[1] == "" {
			errs = append(errs, fmt.Sprintf("Ligne %d: Titre et contenu requis", i+2))
			continue
		}
		s.tickets = append(s.tickets, &cfrm.Ticket{
			Id:        cfrm.Id(uuid.NewString()),
			Title:     cols[0],
			Content:   cols[1],
			Status:    s.statusRef("1"),
			CreatedAt: now,
			UpdatedAt: now,
		})
		imported++
	}
	s.mu.Unlock()

	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, cfrm.ImportResult{
		Message:       fmt.Sprintf("Importation terminée. %d tickets importés.", imported),
		ImportedCount: imported,
		Errors:        errs,
	})
}

// logLocked must be called with s.mu held.
func (s *Server) logLocked(id cfrm.Id, action, desc string) {
	s.logs[id] = append(s.logs[id], cfrm.TicketLog{
		Id:            s.newId(),
		Action:        action,
		ActionDisplay: action,
		Description:   desc,
		CreatedAt:     time.Now().UTC(),
	})
}

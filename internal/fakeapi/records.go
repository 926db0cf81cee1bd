package fakeapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/go-chi/chi/v5"
)

func (s *Server) listResponses(w http.ResponseWriter, r *http.Request) {
	ticket := cfrm.Id(r.URL.Query().Get("ticket"))

	s.mu.Lock()
	var out []cfrm.Response
	for _, resp := range s.responses {
		if ticket == "" || resp.Ticket == ticket {
			out = append(out, resp)
		}
	}
	s.mu.Unlock()

	list(s, w, out)
}

func (s *Server) createResponse(w http.ResponseWriter, r *http.Request) {
	var in cfrm.ResponseInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(in.Ticket)
	if t == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"ticket": {"Ticket introuvable."}})
		return
	}

	resp := cfrm.Response{
		Id:             s.newId(),
		Ticket:         t.Id,
		Content:        in.Content,
		IsInternal:     in.IsInternal,
		Channel:        s.channelRef(in.Channel),
		CreatedAt:      time.Now().UTC(),
		DeliveryStatus: "pending",
	}
	s.responses = append(s.responses, resp)
	s.logLocked(t.Id, "response_added", "Réponse ajoutée")

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	ticket := cfrm.Id(r.URL.Query().Get("ticket"))

	s.mu.Lock()
	out := append([]cfrm.TicketLog(nil), s.logs[ticket]...)
	s.mu.Unlock()

	list(s, w, out)
}

func (s *Server) createFeedback(w http.ResponseWriter, r *http.Request) {
	var in cfrm.FeedbackInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(in.Ticket)
	if t == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"ticket": {"Ticket introuvable."}})
		return
	}
	if _, ok := s.feedback[t.Id]; ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Un feedback existe déjà pour ce ticket."}})
		return
	}

	fb := cfrm.Feedback{
		Id:                 s.newId(),
		SatisfactionRating: in.SatisfactionRating,
		ResponseTimeRating: in.ResponseTimeRating,
		QualityRating:      in.QualityRating,
		Comments:           in.Comments,
		WouldRecommend:     in.WouldRecommend,
		CreatedAt:          time.Now().UTC(),
	}
	s.feedback[t.Id] = fb

	writeJSON(w, http.StatusCreated, fb)
}

func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	var req cfrm.ReportRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	ext := "pdf"
	if req.Format == cfrm.ReportExcel {
		ext = "xlsx"
	}

	s.mu.Lock()
	count := len(s.tickets)
	s.mu.Unlock()

	name := fmt.Sprintf("rapport_%s.%s", time.Now().Format("20060102_150405"), ext)
	writeJSON(w, http.StatusOK, cfrm.ReportResult{
		Message:     "Rapport généré avec succès",
		DownloadUrl: BasePath + "/reports/download/" + name,
		Format:      req.Format,
		TicketCount: count,
	})
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !strings.HasPrefix(name, "rapport_") {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = fmt.Fprintf(w, "report %s", name)
}

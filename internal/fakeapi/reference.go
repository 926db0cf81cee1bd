package fakeapi

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := slices.Clone(s.categories)
	s.mu.Unlock()
	list(s, w, items)
}

func (s *Server) listPriorities(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := slices.Clone(s.priorities)
	s.mu.Unlock()
	list(s, w, items)
}

func (s *Server) listStatuses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := slices.Clone(s.statuses)
	s.mu.Unlock()
	list(s, w, items)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := slices.Clone(s.channels)
	s.mu.Unlock()
	list(s, w, items)
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	var in cfrm.ChannelInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}
	if in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"Ce champ est obligatoire."}})
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	ch := cfrm.Channel{
		Id:            s.newId(),
		Name:          in.Name,
		Type:          in.Type,
		Description:   in.Description,
		IsActive:      in.IsActive,
		Configuration: in.Configuration,
		CreatedAt:     &now,
		UpdatedAt:     &now,
	}
	s.channels = append(s.channels, ch)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) updateChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in cfrm.ChannelInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.channels, func(c cfrm.Channel) bool { return c.Id.String() == id })
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	now := time.Now().UTC()
	ch := &s.channels[i]
	ch.Name, ch.Type, ch.Description = in.Name, in.Type, in.Description
	ch.IsActive, ch.Configuration, ch.UpdatedAt = in.IsActive, in.Configuration, &now
	writeJSON(w, http.StatusOK, *ch)
}

func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.channels, func(c cfrm.Channel) bool { return c.Id.String() == id })
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Non trouvé.")
		return
	}

	s.channels = slices.Delete(s.channels, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	kind := cfrm.ChannelType(chi.URLParam(r, "kind"))
	var payload map[string]any
	if err := decode(r, &payload); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	active := slices.ContainsFunc(s.channels, func(c cfrm.Channel) bool { return c.Type == kind && c.IsActive })
	if !active {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Canal %s non configuré", kind)})
		return
	}

	s.webhooks = append(s.webhooks, payload)
	writeJSON(w, http.StatusOK, cfrm.WebhookResult{Status: "success", EventId: uuid.NewString()})
}

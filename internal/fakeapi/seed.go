package fakeapi

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/google/uuid"
)

func (s *Server) seed() {
	s.accounts = map[string]*account{
		AdminUsername: {
			password: AdminPassword,
			user: cfrm.User{
				Id:           "1",
				Username:     AdminUsername,
				Email:        "admin@cfrm.org",
				FirstName:    "Admin",
				LastName:     "CFRM",
				FullName:     "Admin CFRM",
				Organization: cfrm.Organization{Id: "1", Name: "CFRM"},
				Role:         cfrm.Role{Id: "1", Name: "Administrateur"},
				IsActive:     true,
				IsVerified:   true,
			},
		},
		"agent": {
			password: "agent123",
			user: cfrm.User{
				Id:           "2",
				Username:     "agent",
				Email:        "agent@cfrm.org",
				FullName:     "Agent Terrain",
				Organization: cfrm.Organization{Id: "1", Name: "CFRM"},
				Role:         cfrm.Role{Id: "2", Name: "Agent"},
				IsActive:     true,
			},
		},
	}

	s.categories = []cfrm.Category{
		{Id: "1", Name: "Information", Description: "Demande d'information"},
		{Id: "2", Name: "Plainte", Description: "Plainte sur un service"},
		{Id: "3", Name: "PSEA", Description: "Exploitation et abus sexuels", IsSensitive: true},
	}
	s.priorities = []cfrm.Priority{
		{Id: "1", Name: "Critique", Level: 1, SlaHours: 4},
		{Id: "2", Name: "Haute", Level: 2, SlaHours: 24},
		{Id: "3", Name: "Moyenne", Level: 3, SlaHours: 72},
		{Id: "4", Name: "Basse", Level: 4, SlaHours: 168},
	}
	s.statuses = []cfrm.Status{
		{Id: "1", Name: "Nouveau"},
		{Id: "2", Name: "En cours"},
		{Id: "3", Name: "Escaladé"},
		{Id: "4", Name: "Fermé", IsFinal: true},
	}
	s.channels = []cfrm.Channel{
		{Id: "1", Name: "Portail Web", Type: cfrm.ChannelWeb, IsActive: true},
		{Id: "2", Name: "SMS", Type: cfrm.ChannelSMS, IsActive: true, Configuration: map[string]any{"sender": "+15550100"}},
		{Id: "3", Name: "WhatsApp", Type: cfrm.ChannelWhatsApp, IsActive: false},
	}

	created := time.Now().Add(-72 * time.Hour).UTC().Truncate(time.Second)
	s.tickets = []*cfrm.Ticket{
		{
			Id:             cfrm.Id(uuid.NewString()),
			Title:          "Distribution d'eau interrompue",
			Content:        "Le point d'eau du camp B est fermé depuis **trois jours**.",
			Category:       s.categoryRef("2"),
			Priority:       s.priorityRef("2"),
			Status:         s.statusRef("1"),
			Channel:        s.channelRef("2"),
			SubmitterName:  "Awa",
			SubmitterPhone: "+22370000000",
			CreatedAt:      created,
			UpdatedAt:      created,
			Tags:           []string{"eau", "camp-b"},
		},
	}
	s.tickets[0].IsOverdue = true
	s.tickets[0].DaysSinceCreation = 3
}

func (s *Server) newId() cfrm.Id {
	s.nextId++
	return cfrm.Id(strconv.Itoa(s.nextId))
}

func (s *Server) categoryRef(id string) *cfrm.Ref {
	for _, v := range s.categories {
		if v.Id.String() == id {
			return &cfrm.Ref{Id: v.Id, Name: v.Name}
		}
	}
	return nil
}

func (s *Server) priorityRef(id string) *cfrm.Ref {
	for _, v := range s.priorities {
		if v.Id.String() == id {
			return &cfrm.Ref{Id: v.Id, Name: v.Name, Level: v.Level}
		}
	}
	return nil
}

func (s *Server) statusRef(id string) *cfrm.Ref {
	for _, v := range s.statuses {
		if v.Id.String() == id {
			return &cfrm.Ref{Id: v.Id, Name: v.Name}
		}
	}
	return nil
}

func (s *Server) channelRef(id string) *cfrm.Ref {
	for _, v := range s.channels {
		if v.Id.String() == id {
			return &cfrm.Ref{Id: v.Id, Name: v.Name, Type: string(v.Type)}
		}
	}
	return nil
}

func (s *Server) userRef(id string) *cfrm.Ref {
	for _, a := range s.accounts {
		if a.user.Id.String() == id {
			return &cfrm.Ref{Id: a.user.Id, Username: a.user.Username, FullName: a.user.FullName}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

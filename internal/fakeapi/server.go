// Package fakeapi is an in-memory CFRM backend for tests. It serves the
// subset of /api/v1 the console consumes, issues real signed JWTs, and can
// be told to fail specific requests.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/go-chi/chi/v5"
)

const (
	BasePath      = "/api/v1"
	AdminUsername = "admin"
	AdminPassword = "admin123"
)

type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
}

type account struct {
	password string
	user     cfrm.User
}

type failure struct {
	status int
	body   string
}

type Server struct {
	srv *httptest.Server

	mu sync.Mutex

	// Paginate wraps list responses in {count,next,previous,results}
	// instead of returning bare arrays.
	paginate bool
	tokenTTL time.Duration
	latency  time.Duration
	secret   []byte

	accounts   map[string]*account
	revoked    map[string]bool
	prefs      map[string]cfrm.UserPreferences
	categories []cfrm.Category
	priorities []cfrm.Priority
	statuses   []cfrm.Status
	channels   []cfrm.Channel
	tickets    []*cfrm.Ticket
	responses  []cfrm.Response
	logs       map[cfrm.Id][]cfrm.TicketLog
	feedback   map[cfrm.Id]cfrm.Feedback
	webhooks   []map[string]any
	imports    [][]byte

	failures map[string][]failure
	requests []Request
	nextId   int
}

type Option func(*Server)

func WithPagination() Option {
	return func(s *Server) { s.paginate = true }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithLatency delays every response, for cancellation tests.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// New starts a fake backend seeded with reference data and an admin
// account. It is closed when the test ends.
func New(t interface {
	Helper()
	Cleanup(func())
}, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		tokenTTL: time.Hour,
		secret:   []byte("fakeapi-signing-key"),
		revoked:  map[string]bool{},
		prefs:    map[string]cfrm.UserPreferences{},
		logs:     map[cfrm.Id][]cfrm.TicketLog{},
		feedback: map[cfrm.Id]cfrm.Feedback{},
		failures: map[string][]failure{},
		nextId:   100,
	}
	for _, o := range opts {
		o(s)
	}
	s.seed()

	s.srv = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// URL is the API base, including /api/v1.
func (s *Server) URL() string {
	return s.srv.URL + BasePath
}

// FailNext makes the next request matching method and path (relative to
// /api/v1, e.g. "/tickets/") answer with status. Calls queue up.
func (s *Server) FailNext(method, path string, status int) {
	s.FailNextWithBody(method, path, status, fmt.Sprintf(`{"detail":"forced %d"}`, status))
}

func (s *Server) FailNextWithBody(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests for method and relative path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) Tickets() []cfrm.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cfrm.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, *t)
	}
	return out
}

func (s *Server) Webhooks() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.webhooks...)
}

func (s *Server) Imports() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.imports...)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordMiddleware)
	r.Use(s.failureMiddleware)

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/auth/login/", s.login)
		r.Post("/auth/token/refresh/", s.refresh)

		r.Get("/categories/", s.listCategories)
		r.Get("/priorities/", s.listPriorities)
		r.Get("/statuses/", s.listStatuses)
		r.Get("/channels/", s.listChannels)
		r.Post("/channels/", s.createChannel)
		r.Put("/channels/{id}/", s.updateChannel)
		r.Delete("/channels/{id}/", s.deleteChannel)
		r.Post("/channels/webhooks/{kind}/", s.webhook)

		r.Get("/users/", s.listUsers)

		r.Get("/tickets/", s.listTickets)
		r.Post("/tickets/", s.createTicket)
		r.Get("/tickets/dashboard_stats/", s.dashboardStats)
		r.Post("/tickets/import/", s.importTickets)
		r.Get("/tickets/{id}/", s.getTicket)
		r.Patch("/tickets/{id}/", s.patchTicket)
		r.Delete("/tickets/{id}/", s.deleteTicket)
		r.Post("/tickets/{id}/{action}/", s.ticketAction)
		r.Get("/tickets/{id}/stats/", s.ticketStats)

		r.Get("/responses/", s.listResponses)
		r.Post("/responses/", s.createResponse)
		r.Get("/logs/", s.listLogs)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/auth/me/", s.me)
			r.Post("/auth/logout/", s.logout)
			r.Post("/users/users/change_password/", s.changePassword)
			r.Patch("/users/users/me/", s.updateMe)
			r.Get("/users/preferences/my_preferences/", s.myPreferences)
			r.Post("/users/preferences/update_preferences/", s.updatePreferences)
			r.Post("/feedback/", s.createFeedback)
			r.Post("/reports/generate/", s.generateReport)
		})

		r.Get("/reports/download/{name}", s.downloadReport)
	})

	return r
}

func relPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, BasePath)
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          relPath(r),
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		})
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + relPath(r)

		s.mu.Lock()
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// list answers with a bare array or a one-page envelope depending on the
// server's pagination mode.
func list[T any](s *Server, w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}

	if !s.paginate {
		writeJSON(w, http.StatusOK, items)
		return
	}

	writeJSON(w, http.StatusOK, cfrm.Paginated[T]{Results: items, Count: len(items)})
}

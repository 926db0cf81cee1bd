package fakeapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey struct{}

type tokenClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (s *Server) issue(username, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parse(raw, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims.TokenType != kind {
		return nil, fmt.Errorf("token type %q, want %q", claims.TokenType, kind)
	}

	s.mu.Lock()
	revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, fmt.Errorf("token revoked")
	}

	return claims, nil
}

// AccessToken mints a valid access token for username, for tests that
// start from an already-persisted session.
func (s *Server) AccessToken(username string) string {
	tok, err := s.issue(username, "access", s.tokenTTL)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		claims, err := s.parse(raw, "access")
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		s.mu.Lock()
		acct, ok := s.accounts[claims.Subject]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, acct)))
	})
}

func accountFrom(r *http.Request) *account {
	a, _ := r.Context().Value(ctxKey{}).(*account)
	return a
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds cfrm.Credentials
	if err := decode(r, &creds); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[creds.Username]
	s.mu.Unlock()
	if !ok || acct.password != creds.Password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Identifiants invalides"}})
		return
	}

	access, err := s.issue(creds.Username, "access", s.tokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, err := s.issue(creds.Username, "refresh", 24*time.Hour)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	user := acct.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access":  access,
		"refresh": refresh,
		"user":    user,
		"message": "Connexion réussie",
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := decode(r, &body); err != nil || body.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	claims, err := s.parse(body.Refresh, "refresh")
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	access, err := s.issue(claims.Subject, "access", s.tokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = decode(r, &body)

	if body.Refresh != "" {
		if claims, err := s.parse(body.Refresh, "refresh"); err == nil {
			s.mu.Lock()
			s.revoked[claims.ID] = true
			s.mu.Unlock()
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Déconnexion réussie"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	user := accountFrom(r).user
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var patch cfrm.UserPatch
	if err := decode(r, &patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	acct := accountFrom(r)
	s.mu.Lock()
	acct.user = acct.user.Apply(patch)
	user := acct.user
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, user)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decode(r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	acct := accountFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.password != body.OldPassword {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"old_password": {"Mot de passe incorrect"}})
		return
	}
	if len(body.NewPassword) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"new_password": {"Ce mot de passe est trop court."}})
		return
	}

	acct.password = body.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Mot de passe modifié avec succès"})
}

func (s *Server) myPreferences(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)
	s.mu.Lock()
	p := s.prefsFor(acct.user.Username)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var in cfrm.UserPreferences
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	acct := accountFrom(r)
	s.mu.Lock()
	p := s.prefsFor(acct.user.Username)
	if in.Theme != "" {
		p.Theme = in.Theme
	}
	if in.ItemsPerPage > 0 {
		p.ItemsPerPage = in.ItemsPerPage
	}
	if in.DefaultView != "" {
		p.DefaultView = in.DefaultView
	}
	if in.EmailNotifications != nil {
		p.EmailNotifications = in.EmailNotifications
	}
	if in.SmsNotifications != nil {
		p.SmsNotifications = in.SmsNotifications
	}
	if in.PushNotifications != nil {
		p.PushNotifications = in.PushNotifications
	}
	if in.DefaultFilters != nil {
		p.DefaultFilters = in.DefaultFilters
	}
	s.prefs[acct.user.Username] = p
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, p)
}

// prefsFor must be called with s.mu held.
func (s *Server) prefsFor(username string) cfrm.UserPreferences {
	if p, ok := s.prefs[username]; ok {
		return p
	}

	yes, no := true, false
	return cfrm.UserPreferences{
		Theme:              "light",
		ItemsPerPage:       20,
		DefaultView:        "list",
		EmailNotifications: &yes,
		SmsNotifications:   &no,
		PushNotifications:  &yes,
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]cfrm.User, 0, len(s.accounts))
	for _, name := range sortedKeys(s.accounts) {
		users = append(users, s.accounts[name].user)
	}
	s.mu.Unlock()
	list(s, w, users)
}

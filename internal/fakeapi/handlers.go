package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/api"
)

const refreshTTL = 7 * 24 * time.Hour

type tokenClaims struct {
	Email string `json:"email"`
	Kind  string `json:"type"`
	jwt.RegisteredClaims
}

type validationItem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user api.User)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "Malformed form body")
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "" && grant != "password" {
		writeDetail(w, http.StatusBadRequest, "Unsupported grant type")
		return
	}
	email := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if strings.TrimSpace(email) == "" || password == "" {
		writeValidation(w, missing("body", "username", email), missing("body", "password", password))
		return
	}
	acct, ok := s.Account(email)
	if !ok || acct.Password != password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !acct.User.IsActive {
		writeDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}
	access, err := s.sign(acct.User, "access", s.settings.TokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	refresh, err := s.sign(acct.User, "refresh", refreshTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	s.touchLogin(acct.User.Email)
	writeJSON(w, http.StatusOK, api.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.settings.TokenTTL / time.Second),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in api.RegisterRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	var problems []validationItem
	for _, f := range []struct{ name, value string }{
		{"email", in.Email},
		{"password", in.Password},
		{"full_name", in.FullName},
	} {
		problems = append(problems, missing("body", f.name, f.value)...)
	}
	if len(problems) > 0 {
		writeValidation(w, problems)
		return
	}
	now := s.clock().UTC().Format("2006-01-02T15:04:05.000000")
	user := api.User{
		ID:             uuid.NewString(),
		Email:          strings.TrimSpace(in.Email),
		FullName:       in.FullName,
		Organization:   in.Organization,
		Department:     in.Department,
		Role:           in.Role,
		IsActive:       in.IsActive,
		IsVerified:     in.IsVerified,
		IsSuperuser:    in.IsSuperuser,
		AllowedDomains: append([]string{}, in.AllowedDomains...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.mu.Lock()
	key := normalizeEmail(user.Email)
	if _, exists := s.accounts[key]; exists {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.accounts[key] = &Account{Password: in.Password, User: user}
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user api.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDomains(w http.ResponseWriter, _ *http.Request, _ api.User) {
	s.mu.RLock()
	out := append([]api.Domain{}, s.catalog...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user api.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.settings.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File exceeds upload limit")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Malformed multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	domainID := r.FormValue("domain_id")
	file, header, err := r.FormFile("file")
	if domainID == "" || err != nil {
		var problems []validationItem
		problems = append(problems, missing("body", "domain_id", domainID)...)
		if err != nil {
			problems = append(problems, validationItem{Loc: []string{"body", "file"}, Msg: "Field required", Type: "missing"})
		}
		writeValidation(w, problems)
		return
	}
	defer file.Close()
	domain, ok := s.domainByID(domainID)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Domain not found")
		return
	}
	if !user.Allows(domain.Name) {
		writeDetail(w, http.StatusForbidden, "You do not have access to this domain")
		return
	}
	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Could not read file")
		return
	}
	rec := Upload{
		DomainID: domainID,
		FileName: header.Filename,
		Size:     size,
		Title:    r.FormValue("title"),
		Author:   r.FormValue("author"),
		Language: r.FormValue("language"),
		Email:    user.Email,
		Received: s.clock(),
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, rec)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": uuid.NewString(),
		"filename":    rec.FileName,
		"domain":      domain.Name,
		"status":      "queued",
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, user api.User) {
	var in api.QueryRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		writeValidation(w, missing("body", "query", in.Query))
		return
	}
	var scoped []api.Domain
	s.mu.RLock()
	for _, d := range s.catalog {
		if !user.Allows(d.Name) {
			continue
		}
		if len(in.DomainIDs) > 0 && !contains(in.DomainIDs, d.ID) {
			continue
		}
		scoped = append(scoped, d)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.answerer(user, in.Query, scoped))
}

// authed resolves the bearer token to a stored user.
func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			unauthorized(w, "Not authenticated")
			return
		}
		claims := &tokenClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.settings.SigningKey, nil
		}, jwt.WithTimeFunc(s.clock))
		if err != nil || claims.Kind != "access" {
			unauthorized(w, "Could not validate credentials")
			return
		}
		acct, ok := s.Account(claims.Email)
		if !ok || acct.User.ID != claims.Subject {
			unauthorized(w, "Could not validate credentials")
			return
		}
		next(w, r, acct.User)
	}
}

// guard applies injected failures and latency before next runs.
func (s *Server) guard(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-r.Context().Done():
				return
			}
		}
		s.mu.RLock()
		f, failing := s.failures[route]
		s.mu.RUnlock()
		if !failing {
			next(w, r)
			return
		}
		if f.status == DropConnection {
			if conn, _, err := http.NewResponseController(w).Hijack(); err == nil {
				_ = conn.Close()
				return
			}
			panic(http.ErrAbortHandler)
		}
		if f.detail == "" {
			writeJSON(w, f.status, map[string]any{})
			return
		}
		writeDetail(w, f.status, f.detail)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("fakeapi: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(started)),
		)
	})
}

func (s *Server) sign(user api.User, kind string, ttl time.Duration) (string, error) {
	now := s.clock()
	claims := tokenClaims{
		Email: user.Email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.settings.SigningKey)
}

func (s *Server) touchLogin(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[normalizeEmail(email)]; ok {
		acct.User.LastLogin = s.clock().UTC().Format("2006-01-02T15:04:05.000000")
	}
}

func (s *Server) domainByID(id string) (api.Domain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.catalog {
		if d.ID == id {
			return d, true
		}
	}
	return api.Domain{}, false
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Payload exceeds limit")
			return false
		}
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func missing(loc, field, value string) []validationItem {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return []validationItem{{Loc: []string{loc, field}, Msg: "Field required", Type: "missing"}}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

func writeValidation(w http.ResponseWriter, groups ...[]validationItem) {
	var items []validationItem
	for _, g := range groups {
		items = append(items, g...)
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": items})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

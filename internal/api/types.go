package api

import (
	"encoding/json"
	"io"
	"time"
)

// TokenResponse is the body of a successful password-grant login.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExpiresAfter converts expires_in seconds into a duration.
func (t TokenResponse) ExpiresAfter() time.Duration {
	if t.ExpiresIn <= 0 {
		return 0
	}
	return time.Duration(t.ExpiresIn) * time.Second
}

// User is the /auth/me snapshot.
type User struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	Organization   string   `json:"organization"`
	Department     string   `json:"department"`
	Role           string   `json:"role"`
	IsActive       bool     `json:"is_active"`
	IsVerified     bool     `json:"is_verified"`
	IsSuperuser    bool     `json:"is_superuser"`
	AllowedDomains []string `json:"allowed_domains"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
	LastLogin      string   `json:"last_login,omitempty"`
}

// Allows reports whether name is one of the user's permitted domains.
func (u User) Allows(name string) bool {
	for _, allowed := range u.AllowedDomains {
		if allowed == name {
			return true
		}
	}
	return false
}

// Domain is a knowledge partition (a.k.a. department).
type Domain struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	Description    string   `json:"description"`
	IsActive       bool     `json:"is_active"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	ChunkSize      int      `json:"chunk_size,omitempty"`
	ChunkOverlap   int      `json:"chunk_overlap,omitempty"`
	AllowedRoles   []string `json:"allowed_roles,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

// Label is the human name of the domain.
func (d Domain) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// RegisterRequest is the signup payload. The account flags are always
// overwritten by Client.Register before sending.
type RegisterRequest struct {
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	Organization   string   `json:"organization"`
	Department     string   `json:"department"`
	Role           string   `json:"role"`
	Password       string   `json:"password"`
	AllowedDomains []string `json:"allowed_domains"`
	IsActive       bool     `json:"is_active"`
	IsVerified     bool     `json:"is_verified"`
	IsSuperuser    bool     `json:"is_superuser"`
}

// UploadRequest is one multipart submission to /ingestion/upload.
type UploadRequest struct {
	DomainID string
	FileName string
	Content  io.Reader
	// Title, Author and Language are sent even when empty.
	Title    string
	Author   string
	Language string
}

// QueryRequest asks the answering service a question scoped to domains.
type QueryRequest struct {
	Query     string   `json:"query"`
	DomainIDs []string `json:"domain_ids"`
}

// Source is an opaque citation record returned with an answer.
type Source map[string]any

// Answer is the AIMessageData shape: either an answer or an error.
type Answer struct {
	Answer          string   `json:"answer,omitempty"`
	DomainsSearched []string `json:"domains_searched,omitempty"`
	Sources         []Source `json:"sources,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// detailBody is the FastAPI-style failure body. detail is usually a string
// but validation failures send a list of {loc, msg, type} objects.
type detailBody struct {
	Detail json.RawMessage `json:"detail"`
}

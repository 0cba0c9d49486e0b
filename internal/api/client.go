// Package api talks to the remote knowledge service: authentication, the
// domain catalog, document ingestion and question answering.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	pathLogin    = "/auth/login"
	pathRegister = "/auth/register"
	pathMe       = "/auth/me"
	pathDomains  = "/knowledge-base/domains"
	pathUpload   = "/ingestion/upload"

	// maxErrorBody caps how much of a failure body is read for its detail.
	maxErrorBody int64 = 64 << 10
)

// Settings captures how the client reaches the service.
type Settings struct {
	BaseURL   string
	QueryPath string
	Timeout   time.Duration
}

// Client issues requests against the knowledge API. Anonymous endpoints
// (login, register) use the plain transport; everything else goes through an
// oauth2.Transport fed by the session's token source.
type Client struct {
	settings Settings
	base     http.RoundTripper
	tokens   oauth2.TokenSource
	logger   *zap.Logger

	anon   *http.Client
	authed *http.Client
}

// Option customizes client construction.
type Option func(*Client)

// WithTokenSource supplies bearer tokens for authenticated calls.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// WithTransport overrides the base round tripper (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.base = rt
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New prepares a client for settings.
func New(settings Settings, opts ...Option) *Client {
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	if settings.QueryPath == "" {
		settings.QueryPath = "/query"
	}
	c := &Client{
		settings: settings,
		base:     http.DefaultTransport,
		tokens:   missingTokens{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.anon = &http.Client{Transport: c.base, Timeout: settings.Timeout}
	c.authed = &http.Client{
		Transport: &oauth2.Transport{Source: unauthenticatedSource{c.tokens}, Base: c.base},
		Timeout:   settings.Timeout,
	}
	return c
}

// BaseURL returns the service root every path is resolved against.
func (c *Client) BaseURL() string {
	return c.settings.BaseURL
}

// Login exchanges credentials for a token pair via the password grant.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", email)
	form.Set("password", password)
	form.Set("scope", "")
	form.Set("client_id", "")
	form.Set("client_secret", "")
	req, err := c.newRequest(ctx, http.MethodPost, pathLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out TokenResponse
	if err := c.do(c.anon, req, &out); err != nil {
		return TokenResponse{}, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return TokenResponse{}, fmt.Errorf("api: login response missing access_token")
	}
	return out, nil
}

// Register creates an account. New accounts are always active, unverified
// and not superusers, whatever the caller put in the request.
func (c *Client) Register(ctx context.Context, in RegisterRequest) error {
	in.IsActive = true
	in.IsVerified = false
	in.IsSuperuser = false
	if in.AllowedDomains == nil {
		in.AllowedDomains = []string{}
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, pathRegister, in)
	if err != nil {
		return err
	}
	return c.do(c.anon, req, nil)
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathMe, nil)
	if err != nil {
		return User{}, err
	}
	var out User
	if err := c.do(c.authed, req, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

// Domains returns the full domain catalog.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathDomains, nil)
	if err != nil {
		return nil, err
	}
	var out []Domain
	if err := c.do(c.authed, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload submits one document to a domain as multipart/form-data.
func (c *Client) Upload(ctx context.Context, in UploadRequest) error {
	if strings.TrimSpace(in.DomainID) == "" || in.Content == nil {
		return fmt.Errorf("api: upload requires a domain and a file")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"domain_id", in.DomainID},
		{"title", in.Title},
		{"author", in.Author},
		{"language", in.Language},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("api: encode upload: %w", err)
		}
	}
	name := in.FileName
	if name == "" {
		name = "upload"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("api: encode upload: %w", err)
	}
	if _, err := io.Copy(part, in.Content); err != nil {
		return fmt.Errorf("api: read upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("api: encode upload: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathUpload, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(c.authed, req, nil)
}

// Query asks the answering service a question. A 2xx body carrying only an
// error field is returned as an Answer, not as a Go error.
func (c *Client) Query(ctx context.Context, in QueryRequest) (Answer, error) {
	if in.DomainIDs == nil {
		in.DomainIDs = []string{}
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.settings.QueryPath, in)
	if err != nil {
		return Answer{}, err
	}
	var out Answer
	if err := c.do(c.authed, req, &out); err != nil {
		return Answer{}, err
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.settings.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("api: encode %s: %w", path, err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out (when non-nil). Failures
// come back as ErrUnauthenticated, *Error or ErrNetwork.
func (c *Client) do(hc *http.Client, req *http.Request, out any) error {
	started := time.Now()
	path := strings.TrimPrefix(req.URL.Path, strings.TrimRight(mustPath(c.settings.BaseURL), "/"))
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("endpoint", path),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
	}
	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			c.logger.Info("request skipped: not signed in", fields...)
			return err
		}
		c.logger.Warn("request failed", append(fields, zap.Error(err), zap.Duration("latency", time.Since(started)))...)
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, path, err)
	}
	defer resp.Body.Close()
	fields = append(fields, zap.Int("status", resp.StatusCode), zap.Duration("latency", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &Error{Status: resp.StatusCode, Detail: parseDetail(body)}
		c.logger.Warn("request rejected", append(fields, zap.String("detail", apiErr.Detail))...)
		return apiErr
	}
	c.logger.Debug("request finished", fields...)
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrNetwork, path, err)
	}
	return nil
}

func mustPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

// unauthenticatedSource maps any token-source failure onto ErrUnauthenticated
// so callers can tell "sign in again" apart from network trouble.
type unauthenticatedSource struct {
	src oauth2.TokenSource
}

func (s unauthenticatedSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return tok, nil
}

type missingTokens struct{}

func (missingTokens) Token() (*oauth2.Token, error) {
	return nil, errors.New("no token source configured")
}

package fakeapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kingrea/adaapt/internal/api"
)

func mount(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	srv := NewServer(Settings{Prefix: DefaultPrefix}, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL + DefaultPrefix
}

func clientFor(base string, token string) *api.Client {
	opts := []api.Option{}
	if token != "" {
		opts = append(opts, api.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	}
	return api.New(api.Settings{BaseURL: base, Timeout: 5 * time.Second}, opts...)
}

func TestLoginThenAuthenticatedCalls(t *testing.T) {
	_, base := mount(t)
	tok, err := clientFor(base, "").Login(context.Background(), DemoEmail, DemoPassword)
	require.NoError(t, err)
	assert.EqualValues(t, 3600, tok.ExpiresIn)
	assert.NotEmpty(t, tok.RefreshToken)

	c := clientFor(base, tok.AccessToken)
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DemoEmail, me.Email)
	assert.NotEmpty(t, me.LastLogin)

	domains, err := c.Domains(context.Background())
	require.NoError(t, err)
	assert.Len(t, domains, 3)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, base := mount(t)
	_, err := clientFor(base, "").Login(context.Background(), DemoEmail, "wrong")
	assert.Equal(t, "Invalid credentials", api.Describe(err, "x"))
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	_, base := mount(t)
	tok, err := clientFor(base, "").Login(context.Background(), DemoEmail, DemoPassword)
	require.NoError(t, err)
	_, err = clientFor(base, tok.RefreshToken).Me(context.Background())
	assert.True(t, api.IsUnauthorized(err))
}

func TestExpiredTokenIsRejected(t *testing.T) {
	now := time.Now()
	srv, base := mount(t, WithClock(func() time.Time { return now }))
	tok, err := srv.IssueToken(DemoEmail)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = clientFor(base, tok).Me(context.Background())
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Could not validate credentials", apiErr.Detail)
}

func TestRegisterStoresAccount(t *testing.T) {
	srv, base := mount(t)
	c := clientFor(base, "")
	req := api.RegisterRequest{Email: "new@example.com", FullName: "New", Password: "pw", AllowedDomains: []string{"hr_policy_docs_v2"}}
	require.NoError(t, c.Register(context.Background(), req))

	acct, ok := srv.Account("NEW@example.com")
	require.True(t, ok)
	assert.True(t, acct.User.IsActive)
	assert.False(t, acct.User.IsVerified)
	assert.False(t, acct.User.IsSuperuser)

	err := c.Register(context.Background(), req)
	assert.Equal(t, "Email already registered", api.Describe(err, "x"))

	_, err = c.Login(context.Background(), "new@example.com", "pw")
	require.NoError(t, err)
}

func TestRegisterValidationDetailIsJoined(t *testing.T) {
	_, base := mount(t)
	err := clientFor(base, "").Register(context.Background(), api.RegisterRequest{Email: "x@example.com"})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "Field required; Field required", apiErr.Detail)
}

func TestUploadRecordsDocumentAndChecksAccess(t *testing.T) {
	srv, base := mount(t)
	tok, err := srv.IssueToken(DemoEmail)
	require.NoError(t, err)
	c := clientFor(base, tok)

	err = c.Upload(context.Background(), api.UploadRequest{
		DomainID: "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		FileName: "q3.csv",
		Content:  strings.NewReader("a,b\n1,2\n"),
	})
	require.NoError(t, err)
	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "q3.csv", uploads[0].FileName)
	assert.EqualValues(t, 8, uploads[0].Size)
	assert.Equal(t, DemoEmail, uploads[0].Email)

	err = c.Upload(context.Background(), api.UploadRequest{
		DomainID: "c0ffee00-1234-4abc-9def-000000000003",
		FileName: "contract.pdf",
		Content:  strings.NewReader("%PDF"),
	})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Len(t, srv.Uploads(), 1)
}

func TestUploadLimit(t *testing.T) {
	srv := NewServer(Settings{Prefix: DefaultPrefix, MaxUploadBytes: 1024})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	tok, err := srv.IssueToken(DemoEmail)
	require.NoError(t, err)

	err = clientFor(ts.URL+DefaultPrefix, tok).Upload(context.Background(), api.UploadRequest{
		DomainID: "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		FileName: "big.bin",
		Content:  strings.NewReader(strings.Repeat("x", 4096)),
	})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.Status)
}

func TestQueryScopesToAllowedSelection(t *testing.T) {
	srv, base := mount(t)
	tok, err := srv.IssueToken(DemoEmail)
	require.NoError(t, err)
	c := clientFor(base, tok)

	ans, err := c.Query(context.Background(), api.QueryRequest{Query: "leave policy", DomainIDs: []string{"a1b2c3d4-e5f6-7890-1234-567890abcdef"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"hr_policy_docs_v2"}, ans.DomainsSearched)
	assert.Len(t, ans.Sources, 1)

	ans, err = c.Query(context.Background(), api.QueryRequest{Query: "everything"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hr_policy_docs_v2", "sales_q3_2025_data"}, ans.DomainsSearched)

	ans, err = c.Query(context.Background(), api.QueryRequest{Query: "contracts", DomainIDs: []string{"c0ffee00-1234-4abc-9def-000000000003"}})
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Error)
	assert.Empty(t, ans.Answer)
}

func TestInjectedFailures(t *testing.T) {
	srv, base := mount(t)
	tok, err := srv.IssueToken(DemoEmail)
	require.NoError(t, err)
	c := clientFor(base, tok)

	srv.Fail(RouteDomains, http.StatusServiceUnavailable, "Catalog offline")
	_, err = c.Domains(context.Background())
	assert.Equal(t, "Catalog offline", api.Describe(err, "x"))

	srv.Fail(RouteMe, DropConnection, "")
	_, err = c.Me(context.Background())
	assert.ErrorIs(t, err, api.ErrNetwork)

	srv.Recover(RouteDomains)
	srv.Recover(RouteMe)
	_, err = c.Domains(context.Background())
	assert.NoError(t, err)
}

func TestMissingBearerIsRejected(t *testing.T) {
	_, base := mount(t)
	resp, err := http.Get(base + "/auth/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
}

func TestStartAndShutdown(t *testing.T) {
	srv := NewServer(Settings{Host: "127.0.0.1", Port: 0, Prefix: DefaultPrefix})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	require.Error(t, srv.Start(context.Background()))

	base := srv.BaseURL()
	assert.True(t, strings.HasSuffix(base, DefaultPrefix))
	resp, err := http.Get(strings.TrimSuffix(base, DefaultPrefix) + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestDefaultSettingsHonorEnv(t *testing.T) {
	t.Setenv("ADAAPT_MOCK_PORT", "9100")
	t.Setenv("ADAAPT_MOCK_HOST", "0.0.0.0")
	s := DefaultSettings()
	assert.Equal(t, 9100, s.Port)
	assert.Equal(t, "http://0.0.0.0:9100/api/v1", s.URL())
}

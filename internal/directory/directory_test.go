package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kingrea/adaapt/internal/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	user      api.User
	domains   []api.Domain
	userErr   error
	domainErr error
	// delays let tests control which call settles first.
	userDelay   time.Duration
	domainDelay time.Duration
	inFlight    atomic.Int32
	peak        atomic.Int32
}

func (f *fakeSource) enter() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSource) Me(ctx context.Context) (api.User, error) {
	defer f.enter()()
	select {
	case <-time.After(f.userDelay):
	case <-ctx.Done():
		return api.User{}, ctx.Err()
	}
	return f.user, f.userErr
}

func (f *fakeSource) Domains(ctx context.Context) ([]api.Domain, error) {
	defer f.enter()()
	select {
	case <-time.After(f.domainDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.domains, f.domainErr
}

func catalog() []api.Domain {
	return []api.Domain{
		{ID: "1", Name: "sales"},
		{ID: "2", Name: "hr"},
		{ID: "3", Name: "legal"},
	}
}

func TestListAccessibleFiltersByAllowedNames(t *testing.T) {
	src := &fakeSource{
		user:        api.User{AllowedDomains: []string{"legal", "sales", "unknown"}},
		domains:     catalog(),
		userDelay:   20 * time.Millisecond,
		domainDelay: 20 * time.Millisecond,
	}
	got := New(src).ListAccessible(context.Background())

	require.False(t, got.Degraded)
	assert.Empty(t, got.Warning)
	require.Len(t, got.Domains, 2)
	assert.Equal(t, "1", got.Domains[0].ID)
	assert.Equal(t, "3", got.Domains[1].ID)
	assert.EqualValues(t, 2, src.peak.Load(), "user and catalog should be fetched concurrently")
}

func TestListAccessibleWaitsForSlowerCall(t *testing.T) {
	src := &fakeSource{
		user:      api.User{AllowedDomains: []string{"hr"}},
		domains:   catalog(),
		userDelay: 30 * time.Millisecond,
	}
	got := New(src).ListAccessible(context.Background())
	require.Len(t, got.Domains, 1)
	assert.Equal(t, "hr", got.Domains[0].Name)
}

func TestListAccessibleNoPermissions(t *testing.T) {
	src := &fakeSource{domains: catalog()}
	got := New(src).ListAccessible(context.Background())
	assert.False(t, got.Degraded)
	assert.NotNil(t, got.Domains)
	assert.Empty(t, got.Domains)
}

func TestListAccessibleFallsBackWhenEitherCallFails(t *testing.T) {
	cases := map[string]*fakeSource{
		"user fails":    {userErr: errors.New("boom"), domains: catalog()},
		"catalog fails": {user: api.User{AllowedDomains: []string{"sales"}}, domainErr: api.ErrNetwork, domainDelay: 10 * time.Millisecond},
		"both fail":     {userErr: &api.Error{Status: 500}, domainErr: api.ErrNetwork},
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			got := New(src).ListAccessible(context.Background())
			require.True(t, got.Degraded)
			assert.Equal(t, FallbackWarning, got.Warning)
			assert.Error(t, got.Cause)
			assert.Equal(t, Fallback(), got.Domains)
		})
	}
}

func TestListAccessibleCanceledContextDegrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{domains: catalog(), userDelay: time.Second, domainDelay: time.Second}
	got := New(src).ListAccessible(ctx)
	assert.True(t, got.Degraded)
	assert.ErrorIs(t, got.Cause, context.Canceled)
}

func TestFallbackOnlyExposesAllowedEntries(t *testing.T) {
	got := Fallback()
	require.Len(t, got, 1)
	assert.Equal(t, "sales_q3_2025_data", got[0].Name)
	assert.Equal(t, "Sales Department (Fallback)", got[0].Label())
	assert.Len(t, FallbackCatalog(), 2)
}

func TestFilterProperty(t *testing.T) {
	domains := catalog()
	users := []api.User{
		{},
		{AllowedDomains: []string{"sales"}},
		{AllowedDomains: []string{"hr", "legal", "sales"}},
		{AllowedDomains: []string{"nope"}},
	}
	for _, u := range users {
		got := Filter(domains, u)
		for _, d := range got {
			assert.True(t, u.Allows(d.Name))
		}
		var want int
		for _, d := range domains {
			if u.Allows(d.Name) {
				want++
			}
		}
		assert.Len(t, got, want)
	}
}

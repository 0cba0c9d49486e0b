// Package directory resolves which knowledge domains the signed-in user may
// work with. It joins the user profile with the global catalog and, when
// either lookup fails, degrades to a fixed fallback catalog instead of
// failing the caller.
package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/adaapt/internal/api"
)

// FallbackWarning is shown when the fallback catalog is served.
const FallbackWarning = "Could not load data. Displaying accessible fallback departments."

// Source is the slice of the API client the directory needs.
type Source interface {
	Me(ctx context.Context) (api.User, error)
	Domains(ctx context.Context) ([]api.Domain, error)
}

// Listing is the outcome of one directory lookup.
type Listing struct {
	Domains []api.Domain
	// Degraded is set when Domains came from the fallback catalog.
	Degraded bool
	Warning  string
	// Cause records why the lookup degraded. It is informational only.
	Cause error
}

// Client lists accessible domains.
type Client struct {
	source Source
	logger *zap.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a directory client over source.
func New(source Source, opts ...Option) *Client {
	c := &Client{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ListAccessible fetches the user and the catalog concurrently, waits for
// both, and returns the catalog entries whose name the user is allowed. It
// never returns an error: any failure yields the fallback listing.
func (c *Client) ListAccessible(ctx context.Context) Listing {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		user    api.User
		catalog []api.Domain
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := c.source.Me(gctx)
		if err != nil {
			return fmt.Errorf("directory: load user: %w", err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		d, err := c.source.Domains(gctx)
		if err != nil {
			return fmt.Errorf("directory: load catalog: %w", err)
		}
		catalog = d
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("serving fallback domains", zap.Error(err))
		return Listing{
			Domains:  Fallback(),
			Degraded: true,
			Warning:  FallbackWarning,
			Cause:    err,
		}
	}
	accessible := Filter(catalog, user)
	c.logger.Debug("domains resolved",
		zap.Int("catalog", len(catalog)),
		zap.Int("accessible", len(accessible)),
	)
	return Listing{Domains: accessible}
}

// Filter keeps the domains whose name is in the user's allowed set, in
// catalog order. The result is never nil.
func Filter(domains []api.Domain, user api.User) []api.Domain {
	allowed := make(map[string]struct{}, len(user.AllowedDomains))
	for _, name := range user.AllowedDomains {
		allowed[name] = struct{}{}
	}
	out := make([]api.Domain, 0, len(domains))
	for _, d := range domains {
		if _, ok := allowed[d.Name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// fallbackAllowed is the permission set applied to the fallback catalog.
var fallbackAllowed = []string{"sales_q3_2025_data"}

// FallbackCatalog returns the full built-in catalog, before filtering.
func FallbackCatalog() []api.Domain {
	return []api.Domain{
		{
			ID:          "3fa85f64-5717-4562-b3fc-2c963f66afa6",
			Name:        "sales_q3_2025_data",
			DisplayName: "Sales Department (Fallback)",
			Description: "Fallback data for Sales.",
			IsActive:    true,
		},
		{
			ID:          "a1b2c3d4-e5f6-7890-1234-567890abcdef",
			Name:        "hr_policy_docs_v2",
			DisplayName: "Human Resources (Fallback)",
			Description: "Fallback data for HR.",
			IsActive:    true,
		},
	}
}

// Fallback returns the built-in catalog filtered by the fallback permission set.
func Fallback() []api.Domain {
	return Filter(FallbackCatalog(), api.User{AllowedDomains: fallbackAllowed})
}

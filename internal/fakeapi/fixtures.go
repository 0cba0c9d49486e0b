package fakeapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/adaapt/internal/api"
)

// Account is a user the fake service can sign in.
type Account struct {
	Password string
	User     api.User
}

// Fixtures seed the fake service.
type Fixtures struct {
	Accounts []Account
	Domains  []api.Domain
}

// DemoEmail and DemoPassword sign in to the default fixtures.
const (
	DemoEmail    = "demo@adaapt.local"
	DemoPassword = "demo"
)

// DefaultFixtures returns one demo account and a three-domain catalog, two of
// which the demo account may use.
func DefaultFixtures() Fixtures {
	return Fixtures{
		Accounts: []Account{{
			Password: DemoPassword,
			User: api.User{
				ID:             "7d3f1c52-0b8e-4d6a-9c41-2f5e8a1b9d00",
				Email:          DemoEmail,
				FullName:       "Demo User",
				Organization:   "Adaapt",
				Department:     "Sales",
				Role:           "Analyst",
				IsActive:       true,
				IsVerified:     true,
				AllowedDomains: []string{"sales_q3_2025_data", "hr_policy_docs_v2"},
			},
		}},
		Domains: []api.Domain{
			{
				ID:             "3fa85f64-5717-4562-b3fc-2c963f66afa6",
				Name:           "sales_q3_2025_data",
				DisplayName:    "Sales Department",
				Description:    "Q3 2025 pipeline, bookings and NPS survey results.",
				IsActive:       true,
				EmbeddingModel: "all-MiniLM-L6-v2",
				ChunkSize:      1000,
				ChunkOverlap:   200,
				AllowedRoles:   []string{"Analyst", "Manager"},
			},
			{
				ID:             "a1b2c3d4-e5f6-7890-1234-567890abcdef",
				Name:           "hr_policy_docs_v2",
				DisplayName:    "Human Resources",
				Description:    "Leave, travel and benefits policies.",
				IsActive:       true,
				EmbeddingModel: "all-MiniLM-L6-v2",
				ChunkSize:      800,
				ChunkOverlap:   100,
				AllowedRoles:   []string{"Analyst", "Manager", "HR"},
			},
			{
				ID:             "c0ffee00-1234-4abc-9def-000000000003",
				Name:           "legal_contracts",
				DisplayName:    "Legal",
				Description:    "Signed customer contracts.",
				IsActive:       true,
				EmbeddingModel: "all-MiniLM-L6-v2",
				ChunkSize:      1200,
				ChunkOverlap:   200,
				AllowedRoles:   []string{"Counsel"},
			},
		},
	}
}

// Answerer produces the reply to a question. domains holds the catalog
// entries the question was scoped to, already limited to what the user may see.
type Answerer func(user api.User, query string, domains []api.Domain) api.Answer

// EchoAnswerer is the default Answerer: it cites one source per searched domain.
func EchoAnswerer(user api.User, query string, domains []api.Domain) api.Answer {
	if len(domains) == 0 {
		return api.Answer{Error: "No accessible datasets to search."}
	}
	names := make([]string, 0, len(domains))
	sources := make([]api.Source, 0, len(domains))
	for _, d := range domains {
		names = append(names, d.Name)
		sources = append(sources, api.Source{
			"domain":  d.Name,
			"title":   d.Label() + " overview",
			"snippet": d.Description,
		})
	}
	sort.Strings(names)
	return api.Answer{
		Answer: fmt.Sprintf("Here is what I found about **%s** in %s.",
			strings.TrimSpace(query), strings.Join(names, ", ")),
		DomainsSearched: names,
		Sources:         sources,
	}
}

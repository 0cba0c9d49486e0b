package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/chat"
)

func TestResolveDomain(t *testing.T) {
	listing := []api.Domain{
		{ID: "id-sales", Name: "sales_q3_2025_data", DisplayName: "Sales Department"},
		{ID: "id-hr", Name: "hr_policy_docs_v2", DisplayName: "Human Resources"},
	}
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"by id", "id-hr", "id-hr"},
		{"by name", "sales_q3_2025_data", "id-sales"},
		{"by name any case", "HR_POLICY_DOCS_V2", "id-hr"},
		{"by display name", "  sales department ", "id-sales"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveDomain(listing, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, value := range []string{"bogus", "", "id-"} {
		_, err := resolveDomain(listing, value)
		assert.ErrorIs(t, err, errUnknownDepartment, "value %q", value)
	}
	_, err := resolveDomain(nil, "id-sales")
	assert.ErrorIs(t, err, errUnknownDepartment)
}

func TestRenderAnswer(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out bytes.Buffer
	renderAnswer(&out, chat.Message{Kind: chat.KindAssistant, Answer: api.Answer{
		Answer:          "Revenue grew in Q3.",
		DomainsSearched: []string{"sales_q3_2025_data", "hr_policy_docs_v2"},
	}})
	assert.Contains(t, out.String(), "Revenue")
	assert.Contains(t, out.String(), "Searched: sales_q3_2025_data, hr_policy_docs_v2")

	out.Reset()
	renderAnswer(&out, chat.Message{Kind: chat.KindAssistant, Answer: api.Answer{Error: "Sorry, I could not answer that."}})
	assert.Equal(t, "Sorry, I could not answer that.\n", out.String())
	assert.NotContains(t, out.String(), "Searched")
}

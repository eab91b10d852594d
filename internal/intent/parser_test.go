package intent

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leadon/outreach-cli/internal/config"
	"github.com/leadon/outreach-cli/pkg/anthropic"
)

func respondWith(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func newParser(t *testing.T, reply *anthropic.MessageResponse, err error) *Parser {
	t.Helper()
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply, err)
	return NewParser(mc, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"})
}

func TestParse_ExtractsAllFilters(t *testing.T) {
	p := newParser(t, respondWith(`{
		"titles": ["CTO", "VP Engineering"],
		"seniorities": ["c_suite", "vp"],
		"locations": ["Berlin"],
		"industries": ["fintech"],
		"employee_ranges": ["11-50"],
		"keywords": "payments",
		"target": 25
	}`), nil)

	parsed, err := p.Parse(context.Background(), "find 25 fintech CTOs and VPs of engineering in Berlin at payments startups")
	require.NoError(t, err)

	assert.Equal(t, []string{"CTO", "VP Engineering"}, parsed.Criteria.Titles)
	assert.Equal(t, []string{"c_suite", "vp"}, parsed.Criteria.Seniorities)
	assert.Equal(t, []string{"Berlin"}, parsed.Criteria.Locations)
	assert.Equal(t, []string{"fintech"}, parsed.Criteria.Industries)
	assert.Equal(t, []string{"11-50"}, parsed.Criteria.EmployeeRanges)
	assert.Equal(t, "payments", parsed.Criteria.Query)
	assert.Equal(t, 25, parsed.Target)
}

func TestParse_StripsCodeFences(t *testing.T) {
	p := newParser(t, respondWith("```json\n{\"titles\": [\"CEO\"]}\n```"), nil)

	parsed, err := p.Parse(context.Background(), "CEOs please")
	require.NoError(t, err)
	assert.Equal(t, []string{"CEO"}, parsed.Criteria.Titles)
	assert.Zero(t, parsed.Target)
}

func TestParse_KeepsQueryWhenNoTitlesOrKeywords(t *testing.T) {
	p := newParser(t, respondWith(`{"locations": ["Hamburg"]}`), nil)

	parsed, err := p.Parse(context.Background(), "people in Hamburg worth talking to")
	require.NoError(t, err)
	assert.Equal(t, "people in Hamburg worth talking to", parsed.Criteria.Query)
	assert.Equal(t, []string{"Hamburg"}, parsed.Criteria.Locations)
}

func TestParse_GarbageOutputFailsWithSentinel(t *testing.T) {
	p := newParser(t, respondWith("I could not determine any filters, sorry."), nil)

	_, err := p.Parse(context.Background(), "something vague")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrIntentParse))
}

func TestParse_EmptyFiltersFailWithSentinel(t *testing.T) {
	p := newParser(t, respondWith(`{"titles": [], "keywords": ""}`), nil)

	_, err := p.Parse(context.Background(), "hmm")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrIntentParse))
}

func TestParse_ModelErrorIsNotASentinel(t *testing.T) {
	p := newParser(t, nil, eris.New("rate limited"))

	_, err := p.Parse(context.Background(), "CTOs in Berlin")
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrIntentParse))
}

func TestParse_EmptyQuery(t *testing.T) {
	p := newParser(t, respondWith(`{}`), nil)
	_, err := p.Parse(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrIntentParse))
}

func TestParse_NegativeTargetClamped(t *testing.T) {
	p := newParser(t, respondWith(`{"titles": ["CTO"], "target": -5}`), nil)

	parsed, err := p.Parse(context.Background(), "CTOs")
	require.NoError(t, err)
	assert.Zero(t, parsed.Target)
}

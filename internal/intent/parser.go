// Package intent turns a natural-language lead request into structured
// search criteria via the Anthropic API.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/config"
	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/pkg/anthropic"
)

// ErrIntentParse is returned when the model's output cannot be turned into
// usable criteria. There is no keyword fallback: a request we cannot
// interpret must fail loudly rather than search for the wrong people.
var ErrIntentParse = eris.New("intent: could not derive search criteria")

const systemPrompt = `You extract structured people-search filters from a lead generation request.

Respond with a single JSON object and nothing else:
{
  "titles": [],           // job titles, e.g. ["CTO", "VP Engineering"]
  "seniorities": [],      // one or more of: owner, founder, c_suite, partner, vp, head, director, manager, senior, entry, intern
  "locations": [],        // cities, regions, or countries
  "industries": [],       // industry keywords
  "employee_ranges": [],  // company size bands like "1-10", "11-50", "51-200", "201-500", "501-1000", "1001-5000"
  "keywords": "",         // residual free-text keywords not captured above
  "target": 0             // requested number of contacts, 0 if not stated
}

Only include filters the request actually states or clearly implies. Leave everything else empty.`

// Parsed is the structured interpretation of one request.
type Parsed struct {
	Criteria model.SearchCriteria
	// Target is the contact count the request asked for, 0 when unstated.
	Target int
}

// Parser extracts search criteria from free-form requests.
type Parser struct {
	client anthropic.Client
	model  string
}

// NewParser creates a parser using the configured model.
func NewParser(client anthropic.Client, cfg config.AnthropicConfig) *Parser {
	m := cfg.Model
	if m == "" {
		m = "claude-haiku-4-5-20251001"
	}
	return &Parser{client: client, model: m}
}

type wireCriteria struct {
	Titles         []string `json:"titles"`
	Seniorities    []string `json:"seniorities"`
	Locations      []string `json:"locations"`
	Industries     []string `json:"industries"`
	EmployeeRanges []string `json:"employee_ranges"`
	Keywords       string   `json:"keywords"`
	Target         int      `json:"target"`
}

// Parse interprets one request. The raw query is also preserved as the
// criteria's free-text keywords when the model returns none, so the
// directory search never loses the operator's own words entirely.
func (p *Parser) Parse(ctx context.Context, query string) (*Parsed, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.Wrap(ErrIntentParse, "empty query")
	}

	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   1024,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: query}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "intent: model call")
	}
	resp.Usage.LogCost(p.model, "intent_parse")

	var wire wireCriteria
	if err := json.Unmarshal([]byte(extractJSON(resp.Text())), &wire); err != nil {
		zap.L().Warn("unparseable intent response",
			zap.String("query", query), zap.Error(err))
		return nil, eris.Wrap(ErrIntentParse, err.Error())
	}

	criteria := model.SearchCriteria{
		Query:          strings.TrimSpace(wire.Keywords),
		Titles:         cleanList(wire.Titles),
		Seniorities:    cleanList(wire.Seniorities),
		Locations:      cleanList(wire.Locations),
		Industries:     cleanList(wire.Industries),
		EmployeeRanges: cleanList(wire.EmployeeRanges),
	}
	if criteria.Empty() {
		return nil, eris.Wrap(ErrIntentParse, "no filters extracted")
	}
	if criteria.Query == "" && len(criteria.Titles) == 0 {
		criteria.Query = strings.TrimSpace(query)
	}

	target := wire.Target
	if target < 0 {
		target = 0
	}
	return &Parsed{Criteria: criteria, Target: target}, nil
}

// extractJSON strips markdown code fences and surrounding prose, leaving
// the outermost JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

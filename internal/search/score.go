package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/pkg/apollo"
)

// Dimension weights. Exact title match dominates, then seniority, industry,
// location. A free-text keyword bonus tops the score up to 100.
const (
	weightTitleExact   = 40
	weightTitlePartial = 25
	weightSeniority    = 25
	weightIndustry     = 20
	weightLocation     = 15
	keywordBonusEach   = 5
	keywordBonusMax    = 10
)

var fold = cases.Fold()

// Score rates a raw candidate against the original search intent on a
// 0-100 scale. Dimensions the intent leaves unspecified are treated as
// satisfied, so an empty intent disqualifies nobody.
func Score(person apollo.Person, intent model.SearchCriteria) int {
	score := 0

	score += titleScore(person.Title, intent.Titles)
	score += matchAny(person.Seniority, intent.Seniorities, weightSeniority)

	industry := ""
	if person.Organization != nil {
		industry = person.Organization.Industry
	}
	score += matchAny(industry, intent.Industries, weightIndustry)

	location := strings.Join([]string{person.City, person.State, person.Country}, ", ")
	score += matchAny(location, intent.Locations, weightLocation)

	score += keywordBonus(person, intent.Query)

	if score > 100 {
		score = 100
	}
	return score
}

func titleScore(title string, wanted []string) int {
	if len(wanted) == 0 {
		return weightTitleExact
	}
	t := fold.String(strings.TrimSpace(title))
	if t == "" {
		return 0
	}
	best := 0
	for _, w := range wanted {
		fw := fold.String(strings.TrimSpace(w))
		if fw == "" {
			continue
		}
		switch {
		case t == fw:
			return weightTitleExact
		case strings.Contains(t, fw) || strings.Contains(fw, t):
			best = weightTitlePartial
		}
	}
	return best
}

// matchAny awards the full weight when the candidate value contains any of
// the wanted values (case-folded, either direction). Unspecified dimensions
// score their full weight.
func matchAny(value string, wanted []string, weight int) int {
	if len(wanted) == 0 {
		return weight
	}
	v := fold.String(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	for _, w := range wanted {
		fw := fold.String(strings.TrimSpace(w))
		if fw == "" {
			continue
		}
		if strings.Contains(v, fw) || strings.Contains(fw, v) {
			return weight
		}
	}
	return 0
}

func keywordBonus(person apollo.Person, query string) int {
	if query == "" {
		return 0
	}
	haystack := fold.String(person.Title)
	if person.Organization != nil {
		haystack += " " + fold.String(person.Organization.Name) + " " + fold.String(person.Organization.Industry)
	}

	bonus := 0
	for _, word := range strings.Fields(fold.String(query)) {
		if len(word) < 3 {
			continue
		}
		if strings.Contains(haystack, word) {
			bonus += keywordBonusEach
			if bonus >= keywordBonusMax {
				return keywordBonusMax
			}
		}
	}
	return bonus
}

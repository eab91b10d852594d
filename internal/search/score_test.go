package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/pkg/apollo"
)

func ctoIntent() model.SearchCriteria {
	return model.SearchCriteria{
		Titles:      []string{"CTO"},
		Seniorities: []string{"executive"},
		Locations:   []string{"Berlin"},
		Industries:  []string{"fintech"},
	}
}

func TestScore_FullMatch(t *testing.T) {
	person := apollo.Person{
		Title:     "CTO",
		Seniority: "executive",
		City:      "Berlin",
		Country:   "Germany",
		Organization: &apollo.Organization{
			Name:     "Paylane",
			Industry: "Fintech",
		},
	}
	assert.Equal(t, 100, Score(person, ctoIntent()))
}

func TestScore_ExactTitleBeatsPartial(t *testing.T) {
	exact := apollo.Person{Title: "cto"}
	partial := apollo.Person{Title: "Deputy CTO of Platform"}
	intent := model.SearchCriteria{Titles: []string{"CTO"}}

	assert.Greater(t, Score(exact, intent), Score(partial, intent))
	// Both still matched the remaining unspecified dimensions in full.
	assert.Equal(t, weightTitleExact+weightSeniority+weightIndustry+weightLocation, Score(exact, intent))
	assert.Equal(t, weightTitlePartial+weightSeniority+weightIndustry+weightLocation, Score(partial, intent))
}

func TestScore_UnspecifiedDimensionsCount(t *testing.T) {
	// An empty intent disqualifies nobody.
	assert.Equal(t, 100, Score(apollo.Person{Name: "Anyone"}, model.SearchCriteria{}))
}

func TestScore_MissingFieldsLoseTheirDimension(t *testing.T) {
	person := apollo.Person{Title: "CTO", Seniority: "executive"}
	// No location and no organization on the record, both dimensions
	// were requested, so neither scores.
	assert.Equal(t, weightTitleExact+weightSeniority, Score(person, ctoIntent()))
}

func TestScore_LocationMatchesAnyComponent(t *testing.T) {
	person := apollo.Person{State: "Bavaria", Country: "Germany"}
	intent := model.SearchCriteria{Locations: []string{"germany"}}
	assert.Equal(t, 100, Score(person, intent))
}

func TestScore_KeywordBonusIsCapped(t *testing.T) {
	person := apollo.Person{
		Title: "Payments Infrastructure Lead",
		Organization: &apollo.Organization{
			Name:     "Infra Payments GmbH",
			Industry: "payments infrastructure",
		},
	}
	intent := model.SearchCriteria{
		Query:  "payments infrastructure lead",
		Titles: []string{"Something Else"},
	}
	// Title misses, the remaining dimensions are unspecified; the bonus
	// tops out at its cap regardless of how many words hit.
	assert.Equal(t, weightSeniority+weightIndustry+weightLocation+keywordBonusMax, Score(person, intent))
}

func TestScore_NeverExceedsHundred(t *testing.T) {
	person := apollo.Person{
		Title:     "CTO",
		Seniority: "executive",
		City:      "Berlin",
		Organization: &apollo.Organization{
			Name:     "Fintech Berlin CTO Club",
			Industry: "fintech",
		},
	}
	intent := ctoIntent()
	intent.Query = "fintech berlin cto"
	assert.Equal(t, 100, Score(person, intent))
}

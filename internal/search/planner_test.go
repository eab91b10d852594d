package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadon/outreach-cli/internal/model"
)

func TestPlanner_OversamplesRemainingNeed(t *testing.T) {
	p := Planner{Oversample: 2.5}

	params := p.Plan(model.SearchCriteria{}, 20)
	assert.Equal(t, 50, params.PerPage)
	assert.Equal(t, 1, params.Page)
}

func TestPlanner_ClampsToBatchBounds(t *testing.T) {
	p := Planner{Oversample: 2.5}

	assert.Equal(t, 10, p.Plan(model.SearchCriteria{}, 2).PerPage)
	assert.Equal(t, 100, p.Plan(model.SearchCriteria{}, 500).PerPage)
}

func TestPlanner_DefaultOversample(t *testing.T) {
	params := Planner{}.Plan(model.SearchCriteria{}, 20)
	assert.Equal(t, 50, params.PerPage)
}

func TestPlanner_ZeroRemainingStillQueries(t *testing.T) {
	params := Planner{Oversample: 2.5}.Plan(model.SearchCriteria{}, 0)
	assert.Equal(t, minBatch, params.PerPage)
}

func TestPlanner_MapsCriteriaOntoParams(t *testing.T) {
	criteria := model.SearchCriteria{
		Query:          "payments",
		Titles:         []string{"CTO"},
		Seniorities:    []string{"c_suite"},
		Locations:      []string{"Austin"},
		Industries:     []string{"fintech"},
		EmployeeRanges: []string{"11-50"},
	}

	params := Planner{}.Plan(criteria, 10)
	assert.Equal(t, "payments", params.Keywords)
	assert.Equal(t, []string{"CTO"}, params.Titles)
	assert.Equal(t, []string{"c_suite"}, params.Seniorities)
	assert.Equal(t, []string{"Austin"}, params.Locations)
	assert.Equal(t, []string{"fintech"}, params.Industries)
	assert.Equal(t, []string{"11-50"}, params.EmployeeRanges)
}

// Package search implements the agentic search refinement loop: bounded
// rounds of plan, query, score, dedup, and criteria loosening.
package search

import (
	"math"

	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/pkg/apollo"
)

const (
	// minBatch keeps tiny remainders from wasting a provider call on a
	// handful of results.
	minBatch = 10
	// maxBatch mirrors the provider's page size ceiling.
	maxBatch = 100
)

// Planner converts one round's criteria into provider query parameters and
// a result budget.
type Planner struct {
	// Oversample scales the remaining need to absorb dedup and relevance
	// loss. Default 2.5.
	Oversample float64
}

// Plan builds the provider parameters for a round that still needs
// `remaining` unique contacts.
func (p Planner) Plan(criteria model.SearchCriteria, remaining int) apollo.SearchParams {
	oversample := p.Oversample
	if oversample <= 0 {
		oversample = 2.5
	}
	if remaining < 1 {
		remaining = 1
	}

	batch := int(math.Ceil(float64(remaining) * oversample))
	if batch < minBatch {
		batch = minBatch
	}
	if batch > maxBatch {
		batch = maxBatch
	}

	return apollo.SearchParams{
		Keywords:       criteria.Query,
		Titles:         criteria.Titles,
		Locations:      criteria.Locations,
		Seniorities:    criteria.Seniorities,
		Industries:     criteria.Industries,
		EmployeeRanges: criteria.EmployeeRanges,
		Page:           1,
		PerPage:        batch,
	}
}

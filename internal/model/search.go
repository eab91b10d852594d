package model

import "time"

// SearchCriteria is the semantic filter for one refinement round. Instances
// are immutable per round; refinement produces a derived copy.
type SearchCriteria struct {
	Query          string   `json:"query,omitempty"` // free-text keywords
	Titles         []string `json:"titles,omitempty"`
	Seniorities    []string `json:"seniorities,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	Industries     []string `json:"industries,omitempty"`
	EmployeeRanges []string `json:"employee_ranges,omitempty"` // company-size bands, e.g. "11-50"
}

// Clone returns a deep copy so refinement never aliases a prior round's
// criteria.
func (c SearchCriteria) Clone() SearchCriteria {
	out := c
	out.Titles = append([]string(nil), c.Titles...)
	out.Seniorities = append([]string(nil), c.Seniorities...)
	out.Locations = append([]string(nil), c.Locations...)
	out.Industries = append([]string(nil), c.Industries...)
	out.EmployeeRanges = append([]string(nil), c.EmployeeRanges...)
	return out
}

// Empty reports whether no filter dimension is set.
func (c SearchCriteria) Empty() bool {
	return c.Query == "" && len(c.Titles) == 0 && len(c.Seniorities) == 0 &&
		len(c.Locations) == 0 && len(c.Industries) == 0 && len(c.EmployeeRanges) == 0
}

// SearchRound records one iteration of the search loop. Rounds are
// append-only and bounded by the loop's iteration budget.
type SearchRound struct {
	Number           int            `json:"number"` // 1-based
	Criteria         SearchCriteria `json:"criteria"`
	RawCount         int            `json:"raw_count"`        // candidates returned by the provider
	QualifyingCount  int            `json:"qualifying_count"` // passed the relevance threshold
	NewUniqueCount   int            `json:"new_unique_count"` // survived dedup against prior rounds and storage
	CumulativeUnique int            `json:"cumulative_unique"`
	ExecutedAt       time.Time      `json:"executed_at"`
}

// SearchRun is a persisted execution of the agentic search loop.
type SearchRun struct {
	ID        string        `json:"id"`
	Query     string        `json:"query"` // original natural-language request
	Target    int           `json:"target"`
	Rounds    []SearchRound `json:"rounds"`
	Partial   bool          `json:"partial"`
	CreatedAt time.Time     `json:"created_at"`
}

// SearchResult is what the loop returns to its caller.
type SearchResult struct {
	Contacts   []CandidateContact `json:"contacts"`
	RoundsUsed int                `json:"rounds_used"`
	Partial    bool               `json:"partial"` // true when a provider fault cut the loop short
}

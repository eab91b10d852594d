package search

import "github.com/leadon/outreach-cli/internal/model"

// Refine loosens one constraint on the criteria and reports what changed.
// Constraints are relaxed in order of how much they typically narrow a
// people search: employee ranges first, then the last location, then the
// last title (always keeping at least one), then the last industry. ok is
// false when nothing is left to loosen.
func Refine(criteria model.SearchCriteria) (model.SearchCriteria, string, bool) {
	next := criteria.Clone()

	if len(next.EmployeeRanges) > 0 {
		next.EmployeeRanges = nil
		return next, "dropped company size filter", true
	}
	if len(next.Locations) > 0 {
		dropped := next.Locations[len(next.Locations)-1]
		next.Locations = next.Locations[:len(next.Locations)-1]
		return next, "dropped location " + dropped, true
	}
	if len(next.Titles) > 1 {
		dropped := next.Titles[len(next.Titles)-1]
		next.Titles = next.Titles[:len(next.Titles)-1]
		return next, "dropped title " + dropped, true
	}
	if len(next.Industries) > 0 {
		dropped := next.Industries[len(next.Industries)-1]
		next.Industries = next.Industries[:len(next.Industries)-1]
		return next, "dropped industry " + dropped, true
	}
	return criteria, "", false
}

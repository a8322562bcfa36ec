package plan

import (
	"sort"

	"github.com/emberwake/warden/internal/entity"
)

// Warning records a set-bucket conflict resolved during a merge. The later
// plan's value won; the earlier value is kept for logging and audit detail.
type Warning struct {
	// Path is the conflicting field path.
	Path string
	// Overwritten is the value from the earlier plan that lost.
	Overwritten any
	// Kept is the value that survived the merge.
	Kept any
	// PlanIndex is the index of the plan whose value won.
	PlanIndex int
}

// Merged is the result of folding an ordered list of plans into one.
type Merged struct {
	Plan
	// Warnings lists set conflicts resolved last-writer-wins.
	Warnings []Warning
}

// Merge folds plans in list order into a single merged plan.
//
// Set entries resolve last-writer-wins: a later plan overwrites an earlier
// plan's value for the same path and the overwrite is recorded as a Warning.
// Add, delete, and create entries are concatenated across plans; avoiding
// duplicates there is the caller's responsibility. Inputs are never mutated
// and the merge is deterministic: identical inputs yield identical output.
func Merge(plans []Plan) Merged {
	merged := Merged{Plan: Plan{
		Set:    map[string]any{},
		Add:    map[string][]SubEntitySpec{},
		Delete: map[string][]string{},
		Create: map[entity.Kind][]CreateSpec{},
	}}

	for i, input := range plans {
		p := input.Clone()
		// Sorted path order keeps warning output deterministic.
		paths := make([]string, 0, len(p.Set))
		for path := range p.Set {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			value := p.Set[path]
			if previous, exists := merged.Set[path]; exists {
				merged.Warnings = append(merged.Warnings, Warning{
					Path:        path,
					Overwritten: previous,
					Kept:        value,
					PlanIndex:   i,
				})
			}
			merged.Set[path] = value
		}
		for collection, specs := range p.Add {
			merged.Add[collection] = append(merged.Add[collection], specs...)
		}
		for collection, ids := range p.Delete {
			merged.Delete[collection] = append(merged.Delete[collection], ids...)
		}
		for kind, specs := range p.Create {
			merged.Create[kind] = append(merged.Create[kind], specs...)
		}
	}

	return merged
}

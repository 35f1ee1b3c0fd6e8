package course

import (
	"fmt"
	"strings"
)

// CyclicPrerequisiteError is returned when a prerequisite edit would create a
// cycle. Path holds the offending module ids, starting and ending with the
// module whose prerequisites were being edited.
type CyclicPrerequisiteError struct {
	Path []int
}

func (e *CyclicPrerequisiteError) Error() string {
	ids := make([]string, len(e.Path))
	for i, id := range e.Path {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return "prerequisite cycle: " + strings.Join(ids, " -> ")
}

// modulesByID indexes the non-deleted modules of a course.
func modulesByID(mods []Module) map[int]Module {
	byID := make(map[int]Module, len(mods))
	for _, mod := range mods {
		if !mod.IsDeleted() {
			byID[mod.ID] = mod
		}
	}
	return byID
}

// DetectCycle walks the course's prerequisite graph with the proposed edges
// substituted for moduleID's current ones. The existing graph is acyclic, so
// any new cycle must pass through moduleID; it is found by following edges
// from each proposed prerequisite back to moduleID.
func DetectCycle(mods []Module, moduleID int, proposed []int) error {
	byID := modulesByID(mods)

	var walk func(from int, path []int) []int
	walk = func(from int, path []int) []int {
		path = append(path, from)
		if from == moduleID {
			return path
		}
		mod, ok := byID[from]
		if !ok {
			return nil // broken edge, nothing beyond it
		}
		for _, next := range mod.PrerequisiteIDs {
			if cycle := walk(next, path); cycle != nil {
				return cycle
			}
		}
		return nil
	}

	for _, pid := range proposed {
		if cycle := walk(pid, []int{moduleID}); cycle != nil {
			return &CyclicPrerequisiteError{Path: cycle}
		}
	}
	return nil
}

// PrereqsSatisfied reports whether every prerequisite of mod is satisfied for
// a learner. A prerequisite that no longer resolves to a non-deleted module
// counts as satisfied; broken edges never permanently lock a module.
func PrereqsSatisfied(mod Module, byID map[int]Module, completed func(id int) bool) bool {
	for _, pid := range mod.PrerequisiteIDs {
		if _, ok := byID[pid]; !ok {
			continue
		}
		if !completed(pid) {
			return false
		}
	}
	return true
}

package course

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

type (
	// FactsProvider exposes a learner's recorded interactions with module
	// items. Learners or items with no recorded activity yield zero Facts.
	FactsProvider interface {
		FactsFor(ctx context.Context, learnerID string, itemID int) (Facts, error)
	}

	// ProgressRepository persists derived Progress snapshots. Snapshots only
	// anchor completed_at across recomputations; state is always re-derived.
	ProgressRepository interface {
		GetProgress(ctx context.Context, learnerID string, moduleID int) (Progress, error)
		SaveProgress(ctx context.Context, learnerID string, moduleID int, prog Progress) error
	}

	// ProgressEngine computes a learner's progression state for each module of
	// a course from unlock times, prerequisite satisfaction and completion
	// requirement rollup.
	ProgressEngine struct {
		repo     Repository
		progRepo ProgressRepository
		facts    FactsProvider
		nowFunc  func() time.Time // mockable
	}
)

// requirementChecks dispatches requirement evaluation by kind.
var requirementChecks = map[string]func(Facts, Requirement) bool{
	MustView:       func(f Facts, _ Requirement) bool { return f.Viewed },
	MustSubmit:     func(f Facts, _ Requirement) bool { return f.Submitted },
	MustContribute: func(f Facts, _ Requirement) bool { return f.Contributed },
	MinScore: func(f Facts, req Requirement) bool {
		return f.Score.Valid && req.MinScoreValue.Valid && f.Score.Float64 >= req.MinScoreValue.Float64
	},
}

func NewProgressEngine(repo Repository, progRepo ProgressRepository, facts FactsProvider) *ProgressEngine {
	return &ProgressEngine{
		repo:     repo,
		progRepo: progRepo,
		facts:    facts,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// RequirementMet reports whether a learner's facts satisfy one requirement.
func (e *ProgressEngine) RequirementMet(ctx context.Context, learnerID string, req Requirement) (bool, error) {
	check, ok := requirementChecks[req.Kind]
	if !ok {
		return false, nil // unknown kinds are rejected at write time
	}
	facts, err := e.facts.FactsFor(ctx, learnerID, req.ItemID)
	if err != nil {
		return false, errors.Wrap(err, "reading interaction facts")
	}
	return check(facts, req), nil
}

// ModuleProgress computes the learner's progression state for one module.
// Unknown modules, deleted modules and modules of other courses all come back
// locked; progress queries never fail on absence.
func (e *ProgressEngine) ModuleProgress(ctx context.Context, courseID int, learnerID string, moduleID int) (Progress, error) {
	mods, err := e.repo.QueryModules(ctx, courseID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "querying course modules")
	}
	memo := make(map[int]Progress, len(mods))
	return e.compute(ctx, learnerID, modulesByID(mods), memo, make(map[int]bool), moduleID)
}

// CourseProgress computes the learner's progression state for every active
// module of a course, keyed by module id.
func (e *ProgressEngine) CourseProgress(ctx context.Context, courseID int, learnerID string) (map[int]Progress, error) {
	mods, err := e.repo.QueryModules(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course modules")
	}
	byID := modulesByID(mods)
	memo := make(map[int]Progress, len(mods))
	visiting := make(map[int]bool)
	res := make(map[int]Progress, len(mods))
	for _, mod := range mods {
		if !mod.IsActive() {
			continue
		}
		prog, err := e.compute(ctx, learnerID, byID, memo, visiting, mod.ID)
		if err != nil {
			return nil, err
		}
		res[mod.ID] = prog
	}
	return res, nil
}

func (e *ProgressEngine) compute(
	ctx context.Context,
	learnerID string,
	byID map[int]Module,
	memo map[int]Progress,
	visiting map[int]bool,
	moduleID int,
) (Progress, error) {
	if prog, ok := memo[moduleID]; ok {
		return prog, nil
	}
	locked := Progress{State: ProgressLocked}

	mod, ok := byID[moduleID]
	if !ok || !mod.IsActive() || visiting[moduleID] {
		memo[moduleID] = locked
		return locked, nil
	}
	visiting[moduleID] = true
	defer delete(visiting, moduleID)

	now := e.nowFunc()

	// time lock applies regardless of prerequisites
	if !mod.Unlocked(now) {
		memo[moduleID] = locked
		return locked, nil
	}

	var prereqErr error
	satisfied := PrereqsSatisfied(mod, byID, func(pid int) bool {
		prereq, err := e.compute(ctx, learnerID, byID, memo, visiting, pid)
		if err != nil {
			prereqErr = err
			return false
		}
		return prereq.State == ProgressCompleted
	})
	if prereqErr != nil {
		return Progress{}, prereqErr
	}
	if !satisfied {
		memo[moduleID] = locked
		return locked, nil
	}

	// requirement rollup; sub-headers never carry requirements (write-time rule)
	var prog Progress
	switch total := len(mod.Requirements); total {
	case 0:
		// no requirements: completed the moment the module unlocks
		prog = Progress{State: ProgressCompleted}
	default:
		done := make([]int, 0, total)
		for _, req := range mod.Requirements {
			met, err := e.RequirementMet(ctx, learnerID, req)
			if err != nil {
				return Progress{}, err
			}
			if met {
				done = append(done, req.ItemID)
			}
		}
		switch {
		case len(done) == 0:
			prog = Progress{State: ProgressUnlocked}
		case len(done) < total:
			prog = Progress{State: ProgressStarted, CompletedItemIDs: done}
		default:
			prog = Progress{State: ProgressCompleted, CompletedItemIDs: done}
		}
	}

	prog, err := e.anchorCompletedAt(ctx, learnerID, moduleID, prog, now)
	if err != nil {
		return Progress{}, err
	}
	memo[moduleID] = prog
	return prog, nil
}

// anchorCompletedAt pins completed_at to the recomputation that satisfied the
// last outstanding requirement: once set it survives later recomputations,
// and is cleared only when the state falls back out of completed (e.g. an
// instructor adds a requirement after the fact).
func (e *ProgressEngine) anchorCompletedAt(
	ctx context.Context,
	learnerID string,
	moduleID int,
	prog Progress,
	now time.Time,
) (Progress, error) {
	stored, err := e.progRepo.GetProgress(ctx, learnerID, moduleID)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return Progress{}, errors.Wrap(err, "reading progress snapshot")
	}

	if prog.State == ProgressCompleted {
		if stored.State == ProgressCompleted && stored.CompletedAt.Valid {
			prog.CompletedAt = stored.CompletedAt
		} else {
			prog.CompletedAt = null.TimeFrom(now)
		}
	}

	if prog.State != stored.State || !prog.CompletedAt.Time.Equal(stored.CompletedAt.Time) {
		if err := e.progRepo.SaveProgress(ctx, learnerID, moduleID, prog); err != nil {
			return Progress{}, errors.Wrap(err, "saving progress snapshot")
		}
	}
	return prog, nil
}

// AccessibleItems reports, per item id, whether the learner may access each
// item of the module. No item is accessible while the module itself is locked
// for the learner. Once it unlocks, without sequential progress every item is
// accessible; with it, an item is accessible only once every
// requirement-carrying item at an earlier position is satisfied, and items
// without requirements never block.
func (e *ProgressEngine) AccessibleItems(ctx context.Context, learnerID string, mod Module) (map[int]bool, error) {
	items, err := e.repo.QueryItems(ctx, mod.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying module items")
	}

	access := make(map[int]bool, len(items))

	prog, err := e.ModuleProgress(ctx, mod.CourseID, learnerID, mod.ID)
	if err != nil {
		return nil, err
	}
	if prog.State == ProgressLocked {
		for _, it := range items {
			access[it.ID] = false
		}
		return access, nil
	}

	blocked := false
	for _, it := range items {
		access[it.ID] = !mod.RequireSequentialProgress || !blocked
		req, ok := mod.RequirementFor(it.ID)
		if !ok {
			continue
		}
		met, err := e.RequirementMet(ctx, learnerID, req)
		if err != nil {
			return nil, err
		}
		if !met {
			blocked = true
		}
	}
	return access, nil
}

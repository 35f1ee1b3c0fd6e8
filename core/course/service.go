package course

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound        = errors.New("module not found")
	ErrInvalidEvent    = errors.New("invalid event; must be one of publish, unpublish, delete")
	ErrInvalidPosition = errors.New("module does not belong to this course")
)

type (
	// Repository persists modules and their items.
	// QueryModules returns the course's non-deleted modules ordered by
	// position. RewriteCourseModules hands that same list to fn inside a
	// per-course critical section and persists whatever fn returns; every
	// read-then-rewrite of the position sequence or the prerequisite graph
	// must go through it so concurrent edits cannot interleave.
	Repository interface {
		CreateModule(ctx context.Context, mod Module) (Module, error) // appends at the end of the course
		GetModule(ctx context.Context, courseID, id int) (Module, error)
		QueryModules(ctx context.Context, courseID int) ([]Module, error)
		UpdateModule(ctx context.Context, mod Module) (Module, error)
		RewriteCourseModules(ctx context.Context, courseID int, fn func(mods []Module) ([]Module, error)) ([]Module, error)

		CreateItem(ctx context.Context, item Item) (Item, error) // appends at the end of the module
		QueryItems(ctx context.Context, moduleID int) ([]Item, error)
		QueryItemsByContent(ctx context.Context, courseID int, contentType string, contentID int) ([]Item, error)
	}

	// FactsRecorder stores learner interaction facts on behalf of the content
	// subsystems (assignments, quizzes, discussions, pages).
	FactsRecorder interface {
		RecordAction(ctx context.Context, learnerID string, itemID int, action string) error
		RecordScore(ctx context.Context, learnerID string, itemID int, score float64) error
	}

	Service struct {
		repo     Repository
		recorder FactsRecorder
	}
)

// Learner interaction actions, recorded against module items.
const (
	ActionViewed      = "viewed"
	ActionSubmitted   = "submitted"
	ActionContributed = "contributed"
)

func NewService(repo Repository, recorder FactsRecorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// Create adds a module at the end of the course, or at nm.Position (clamped)
// when one is given, shifting later siblings down.
func (svc *Service) Create(ctx context.Context, courseID int, nm NewModule) (Module, error) {
	if err := nm.Validate(); err != nil {
		return Module{}, err
	}
	if err := svc.validatePrereqs(ctx, courseID, 0, nm.PrerequisiteIDs); err != nil {
		return Module{}, err
	}

	now := time.Now().UTC()
	mod := Module{
		CourseID:                  courseID,
		Name:                      nm.Name,
		WorkflowState:             WorkflowUnpublished,
		UnlockAt:                  nm.UnlockAt,
		RequireSequentialProgress: nm.RequireSequentialProgress,
		PrerequisiteIDs:           nm.PrerequisiteIDs,
		Requirements:              nm.Requirements,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	mod, err := svc.repo.CreateModule(ctx, mod)
	if err != nil {
		return Module{}, errors.Wrap(err, "creating module")
	}
	if nm.Position.Valid {
		return svc.Reorder(ctx, courseID, mod.ID, nm.Position.Int)
	}
	return mod, nil
}

// Query returns the course's non-deleted modules ordered by position,
// excluding unpublished ones unless the viewer may see them.
func (svc *Service) Query(ctx context.Context, courseID int, includeUnpublished bool) ([]Module, error) {
	mods, err := svc.repo.QueryModules(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	if includeUnpublished {
		return mods, nil
	}
	visible := make([]Module, 0, len(mods))
	for _, mod := range mods {
		if mod.IsActive() {
			visible = append(visible, mod)
		}
	}
	return visible, nil
}

// Get fetches one module; deleted modules, and unpublished ones when the
// viewer may not see them, come back as ErrNotFound.
func (svc *Service) Get(ctx context.Context, courseID, id int, includeUnpublished bool) (Module, error) {
	mod, err := svc.repo.GetModule(ctx, courseID, id)
	if err != nil {
		return Module{}, err
	}
	if mod.IsDeleted() || (mod.IsUnpublished() && !includeUnpublished) {
		return Module{}, ErrNotFound
	}
	return mod, nil
}

// Update applies a partial update. Absent fields are left untouched; an
// explicitly empty prerequisite or requirement list clears it.
func (svc *Service) Update(ctx context.Context, courseID, id int, um UpdateModule) (Module, error) {
	if err := um.Validate(); err != nil {
		return Module{}, err
	}
	if um.Requirements != nil {
		if err := svc.validateRequirementItems(ctx, id, *um.Requirements); err != nil {
			return Module{}, err
		}
	}

	var updated Module
	_, err := svc.repo.RewriteCourseModules(ctx, courseID, func(mods []Module) ([]Module, error) {
		idx := indexOf(mods, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		mod := &mods[idx]

		if um.PrerequisiteIDs != nil {
			ids := *um.PrerequisiteIDs
			if err := validatePrereqCandidates(mods, id, ids); err != nil {
				return nil, err
			}
			if err := DetectCycle(mods, id, ids); err != nil {
				return nil, err
			}
			mod.PrerequisiteIDs = ids
		}
		if um.Name.Valid {
			mod.Name = um.Name.String
		}
		if um.UnlockAt != nil {
			mod.UnlockAt = *um.UnlockAt
		}
		if um.RequireSequentialProgress.Valid {
			mod.RequireSequentialProgress = um.RequireSequentialProgress.Bool
		}
		if um.Requirements != nil {
			mod.Requirements = *um.Requirements
		}
		if um.Publish.Valid && um.Publish.Bool {
			mod.WorkflowState = WorkflowActive
		}
		if um.Unpublish.Valid && um.Unpublish.Bool {
			mod.WorkflowState = WorkflowUnpublished
		}
		if um.Position.Valid {
			moveToPosition(mods, id, um.Position.Int)
		}
		mod.UpdatedAt = time.Now().UTC()
		updated = *mod
		return mods, nil
	})
	if err != nil {
		return Module{}, err
	}
	return updated, nil
}

// Reorder moves a module to pos (clamped to [1, N]), shifting the affected
// sibling range. ErrInvalidPosition is returned only when the module is not
// part of the course.
func (svc *Service) Reorder(ctx context.Context, courseID, id, pos int) (Module, error) {
	var moved Module
	_, err := svc.repo.RewriteCourseModules(ctx, courseID, func(mods []Module) ([]Module, error) {
		if !moveToPosition(mods, id, pos) {
			return nil, ErrInvalidPosition
		}
		idx := indexOf(mods, id)
		mods[idx].UpdatedAt = time.Now().UTC()
		moved = mods[idx]
		return mods, nil
	})
	if err != nil {
		return Module{}, err
	}
	return moved, nil
}

// Publish activates a module. Idempotent; deleted modules cannot be published.
func (svc *Service) Publish(ctx context.Context, courseID, id int) (Module, error) {
	return svc.setWorkflowState(ctx, courseID, id, WorkflowActive)
}

// Unpublish reverts a module to draft state. Idempotent; deleted modules
// cannot be unpublished.
func (svc *Service) Unpublish(ctx context.Context, courseID, id int) (Module, error) {
	return svc.setWorkflowState(ctx, courseID, id, WorkflowUnpublished)
}

func (svc *Service) setWorkflowState(ctx context.Context, courseID, id int, state string) (Module, error) {
	mod, err := svc.repo.GetModule(ctx, courseID, id)
	if err != nil {
		return Module{}, err
	}
	if mod.IsDeleted() {
		return Module{}, ErrNotFound
	}
	if mod.WorkflowState == state {
		return mod, nil
	}
	mod.WorkflowState = state
	mod.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateModule(ctx, mod)
}

// Delete soft-deletes a module: it drops out of listings, position
// renumbering and prerequisite resolution, and its id is scrubbed from other
// modules' prerequisite lists. There is no un-delete.
func (svc *Service) Delete(ctx context.Context, courseID, id int) (Module, error) {
	var deleted Module
	_, err := svc.repo.RewriteCourseModules(ctx, courseID, func(mods []Module) ([]Module, error) {
		idx := indexOf(mods, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		softDelete(mods, idx)
		deleted = mods[idx]
		return mods, nil
	})
	if err != nil {
		return Module{}, err
	}
	return deleted, nil
}

// BatchUpdate applies one lifecycle event across several modules of a course
// and returns the ids actually acted on. Tokens that do not parse as integers
// are dropped without error and duplicates collapse to one application; ids
// that do not resolve to a live in-course module are skipped; an empty
// resolved set is ErrNotFound. Validation failures surface before any module
// is touched.
func (svc *Service) BatchUpdate(ctx context.Context, courseID int, event string, rawIDs []string) ([]int, error) {
	switch event {
	case EventPublish, EventUnpublish, EventDelete:
	default:
		return nil, ErrInvalidEvent
	}
	if len(rawIDs) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "module_ids", Error: "this field is required"})
	}

	ids := make([]int, 0, len(rawIDs))
	seen := make(map[int]bool, len(rawIDs))
	for _, raw := range rawIDs {
		if id, err := strconv.Atoi(core.CleanString(raw)); err == nil && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	completed := make([]int, 0, len(ids))
	_, err := svc.repo.RewriteCourseModules(ctx, courseID, func(mods []Module) ([]Module, error) {
		now := time.Now().UTC()
		for _, id := range ids {
			idx := indexOf(mods, id)
			if idx < 0 {
				continue
			}
			switch event {
			case EventPublish:
				mods[idx].WorkflowState = WorkflowActive
			case EventUnpublish:
				mods[idx].WorkflowState = WorkflowUnpublished
			case EventDelete:
				softDelete(mods, idx)
			}
			mods[idx].UpdatedAt = now
			completed = append(completed, id)
		}
		if len(completed) == 0 {
			return nil, ErrNotFound
		}
		return mods, nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// AddItem appends an item to the module.
func (svc *Service) AddItem(ctx context.Context, courseID, moduleID int, ni NewItem) (Item, error) {
	if err := ni.Validate(); err != nil {
		return Item{}, err
	}
	mod, err := svc.repo.GetModule(ctx, courseID, moduleID)
	if err != nil {
		return Item{}, err
	}
	if mod.IsDeleted() {
		return Item{}, ErrNotFound
	}
	item := Item{
		ModuleID:  mod.ID,
		Type:      ni.Type,
		ContentID: ni.ContentID,
		Title:     ni.Title,
		URL:       ni.URL,
		Indent:    ni.Indent,
	}
	return svc.repo.CreateItem(ctx, item)
}

// Items lists a module's items ordered by position.
func (svc *Service) Items(ctx context.Context, moduleID int) ([]Item, error) {
	return svc.repo.QueryItems(ctx, moduleID)
}

// ContentAction records a learner interaction against every module item of
// the course referencing the given content. Content with no module item is a
// no-op.
func (svc *Service) ContentAction(ctx context.Context, courseID int, learnerID, action, contentType string, contentID int) error {
	items, err := svc.repo.QueryItemsByContent(ctx, courseID, contentType, contentID)
	if err != nil {
		return errors.Wrap(err, "querying items by content")
	}
	for _, it := range items {
		if err := svc.recorder.RecordAction(ctx, learnerID, it.ID, action); err != nil {
			return errors.Wrap(err, "recording interaction")
		}
	}
	return nil
}

// RecordScore records a score fact against every module item of the course
// referencing the given content.
func (svc *Service) RecordScore(ctx context.Context, courseID int, learnerID, contentType string, contentID int, score float64) error {
	items, err := svc.repo.QueryItemsByContent(ctx, courseID, contentType, contentID)
	if err != nil {
		return errors.Wrap(err, "querying items by content")
	}
	for _, it := range items {
		if err := svc.recorder.RecordScore(ctx, learnerID, it.ID, score); err != nil {
			return errors.Wrap(err, "recording score")
		}
	}
	return nil
}

func (svc *Service) validatePrereqs(ctx context.Context, courseID, moduleID int, candidates []int) error {
	if len(candidates) == 0 {
		return nil
	}
	mods, err := svc.repo.QueryModules(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}
	if err := validatePrereqCandidates(mods, moduleID, candidates); err != nil {
		return err
	}
	return DetectCycle(mods, moduleID, candidates)
}

// validateRequirementItems checks that every requirement references an item
// of the module that may carry one.
func (svc *Service) validateRequirementItems(ctx context.Context, moduleID int, reqs []Requirement) error {
	if len(reqs) == 0 {
		return nil
	}
	items, err := svc.repo.QueryItems(ctx, moduleID)
	if err != nil {
		return errors.Wrap(err, "querying module items")
	}
	byID := make(map[int]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, req := range reqs {
		it, ok := byID[req.ItemID]
		if !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "completion_requirements", Error: "requirement references an unknown item"})
		}
		if it.IsSubHeader() {
			return core.NewValidationError(nil, core.FieldError{Field: "completion_requirements", Error: "sub-headers cannot carry requirements"})
		}
	}
	return nil
}

func validatePrereqCandidates(mods []Module, moduleID int, candidates []int) error {
	byID := modulesByID(mods)
	for _, pid := range candidates {
		if pid == moduleID {
			return core.NewValidationError(nil, core.FieldError{Field: "prerequisite_module_ids", Error: "a module cannot be its own prerequisite"})
		}
		if _, ok := byID[pid]; !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "prerequisite_module_ids", Error: "prerequisite module not found in this course"})
		}
	}
	return nil
}

// indexOf finds a non-deleted module by id.
func indexOf(mods []Module, id int) int {
	for i := range mods {
		if mods[i].ID == id && !mods[i].IsDeleted() {
			return i
		}
	}
	return -1
}

// softDelete marks mods[idx] deleted, scrubs it from sibling prerequisite
// lists and closes the position gap.
func softDelete(mods []Module, idx int) {
	id := mods[idx].ID
	mods[idx].WorkflowState = WorkflowDeleted
	for i := range mods {
		if i == idx || !mods[i].HasPrerequisite(id) {
			continue
		}
		kept := make([]int, 0, len(mods[i].PrerequisiteIDs)-1)
		for _, pid := range mods[i].PrerequisiteIDs {
			if pid != id {
				kept = append(kept, pid)
			}
		}
		mods[i].PrerequisiteIDs = kept
	}
	Renumber(mods)
}

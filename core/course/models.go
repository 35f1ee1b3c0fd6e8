package course

import (
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Module workflow states.
const (
	WorkflowActive      = "active"
	WorkflowUnpublished = "unpublished"
	WorkflowDeleted     = "deleted"
)

// Learner progression states, computed per (learner, module) on read.
const (
	ProgressLocked    = "locked"
	ProgressUnlocked  = "unlocked"
	ProgressStarted   = "started"
	ProgressCompleted = "completed"
)

// Completion requirement kinds.
const (
	MustView       = "must_view"
	MustSubmit     = "must_submit"
	MustContribute = "must_contribute"
	MinScore       = "min_score"
)

// Item content types.
const (
	ContentAssignment  = "assignment"
	ContentQuiz        = "quiz"
	ContentDiscussion  = "discussion"
	ContentPage        = "page"
	ContentAttachment  = "attachment"
	ContentExternalURL = "external_url"
	ContentSubHeader   = "sub_header"
)

// Batch update events.
const (
	EventPublish   = "publish"
	EventUnpublish = "unpublish"
	EventDelete    = "delete"
)

// Requirement is a completion requirement on a single module item.
// MinScoreValue is only meaningful (and required) for kind MinScore.
type Requirement struct {
	ItemID        int          `json:"item_id" db:"item_id"`
	Kind          string       `json:"kind" db:"kind"`
	MinScoreValue null.Float64 `json:"min_score,omitempty" db:"min_score"`
}

// Module is an ordered, gated container of content items within a course.
type Module struct {
	ID                        int           `json:"id" db:"id"`
	CourseID                  int           `json:"course_id" db:"course_id"`
	Name                      string        `json:"name" db:"name"`
	Position                  int           `json:"position" db:"position"`
	WorkflowState             string        `json:"workflow_state" db:"workflow_state"`
	UnlockAt                  null.Time     `json:"unlock_at" db:"unlock_at"`
	RequireSequentialProgress bool          `json:"require_sequential_progress" db:"require_sequential_progress"`
	PrerequisiteIDs           []int         `json:"prerequisite_module_ids"`
	Requirements              []Requirement `json:"completion_requirements,omitempty"`
	CreatedAt                 time.Time     `json:"created_at" db:"created_at"` // UTC
	UpdatedAt                 time.Time     `json:"updated_at" db:"updated_at"` // UTC
}

func (m *Module) IsActive() bool      { return m.WorkflowState == WorkflowActive }
func (m *Module) IsUnpublished() bool { return m.WorkflowState == WorkflowUnpublished }
func (m *Module) IsDeleted() bool     { return m.WorkflowState == WorkflowDeleted }

// Unlocked reports whether the module's time lock, if any, has passed.
func (m *Module) Unlocked(now time.Time) bool {
	return !m.UnlockAt.Valid || !m.UnlockAt.Time.After(now)
}

func (m *Module) RequirementFor(itemID int) (Requirement, bool) {
	for _, req := range m.Requirements {
		if req.ItemID == itemID {
			return req, true
		}
	}
	return Requirement{}, false
}

func (m *Module) HasPrerequisite(id int) bool {
	for _, pid := range m.PrerequisiteIDs {
		if pid == id {
			return true
		}
	}
	return false
}

// Item is a single content reference inside a module.
// ContentID is unset for sub-headers and external URLs.
type Item struct {
	ID        int      `json:"id" db:"id"`
	ModuleID  int      `json:"module_id" db:"module_id"`
	Position  int      `json:"position" db:"position"`
	Type      string   `json:"type" db:"content_type"`
	ContentID null.Int `json:"content_id,omitempty" db:"content_id"`
	Title     string   `json:"title" db:"title"`
	URL       string   `json:"external_url,omitempty" db:"url"`
	Indent    int      `json:"indent" db:"indent"`
}

func (it *Item) IsSubHeader() bool { return it.Type == ContentSubHeader }

// Progress is a learner's progression through one module; derived from
// interaction facts and module state, never edited by hand.
type Progress struct {
	State            string    `json:"state" db:"state"`
	CompletedItemIDs []int     `json:"completed_item_ids,omitempty"`
	CompletedAt      null.Time `json:"completed_at" db:"completed_at"`
}

// Facts are a learner's recorded interactions with one item, supplied by the
// assignment/quiz/discussion collaborators.
type Facts struct {
	Viewed      bool
	Submitted   bool
	Contributed bool
	Score       null.Float64
}

// NewModule contains information needed to create a new Module.
type NewModule struct {
	Name                      string        `json:"name" validate:"required"`
	UnlockAt                  null.Time     `json:"unlock_at"`
	Position                  null.Int      `json:"position"`
	RequireSequentialProgress bool          `json:"require_sequential_progress"`
	PrerequisiteIDs           []int         `json:"prerequisite_module_ids"`
	Requirements              []Requirement `json:"completion_requirements" validate:"omitempty,dive"`
}

func (nm *NewModule) Validate() error {
	nm.Name = core.CleanString(nm.Name)
	if err := core.Validate.Struct(nm); err != nil {
		return err
	}
	return validateRequirements(nm.Requirements)
}

// UpdateModule defines what information may be provided to modify an existing Module.
// Absent fields leave the module untouched; in particular UnlockAt,
// PrerequisiteIDs and Requirements distinguish "not provided" (nil) from
// "provided null/empty" (clear).
type UpdateModule struct {
	Name                      null.String    `json:"name"`
	UnlockAt                  *null.Time     `json:"unlock_at"`
	Position                  null.Int       `json:"position"`
	RequireSequentialProgress null.Bool      `json:"require_sequential_progress"`
	PrerequisiteIDs           *[]int         `json:"prerequisite_module_ids"`
	Requirements              *[]Requirement `json:"completion_requirements"`
	Publish                   null.Bool      `json:"publish"`
	Unpublish                 null.Bool      `json:"unpublish"`
}

func (um *UpdateModule) Validate() error {
	if um.Name.Valid {
		um.Name.String = core.CleanString(um.Name.String)
		if um.Name.String == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
		}
	}
	if um.Publish.Valid && um.Unpublish.Valid && um.Publish.Bool && um.Unpublish.Bool {
		return core.NewValidationError(nil, core.FieldError{Field: "publish", Error: "cannot both publish and unpublish"})
	}
	if um.Requirements != nil {
		return validateRequirements(*um.Requirements)
	}
	return nil
}

// NewItem contains information needed to append an Item to a module.
type NewItem struct {
	Type      string   `json:"type" validate:"required,itemtype"`
	ContentID null.Int `json:"content_id"`
	Title     string   `json:"title"`
	URL       string   `json:"external_url" validate:"omitempty,url"`
	Indent    int      `json:"indent" validate:"gte=0"`
}

func (ni *NewItem) Validate() error {
	ni.Title = core.CleanString(ni.Title)
	if err := core.Validate.Struct(ni); err != nil {
		return err
	}
	switch ni.Type {
	case ContentSubHeader:
		if ni.ContentID.Valid {
			return core.NewValidationError(nil, core.FieldError{Field: "content_id", Error: "sub-headers carry no content"})
		}
	case ContentExternalURL:
		if ni.URL == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "external_url", Error: "this field is required"})
		}
	default:
		if !ni.ContentID.Valid {
			return core.NewValidationError(nil, core.FieldError{Field: "content_id", Error: "this field is required"})
		}
	}
	return nil
}

// sortByPosition orders modules by position, oldest id first on ties
// (ties only occur transiently, before renumbering).
func sortByPosition(mods []Module) {
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].Position == mods[j].Position {
			return mods[i].ID < mods[j].ID
		}
		return mods[i].Position < mods[j].Position
	})
}

// Renumber restores the invariant that positions among non-deleted modules
// form the contiguous sequence {1..N}. Deleted modules are skipped and keep
// their stale position, which is never read again.
func Renumber(mods []Module) {
	sortByPosition(mods)
	pos := 0
	for i := range mods {
		if mods[i].IsDeleted() {
			continue
		}
		pos++
		mods[i].Position = pos
	}
}

// ClampPosition bounds a requested position to [1, count].
func ClampPosition(pos, count int) int {
	if pos < 1 {
		return 1
	}
	if pos > count {
		return count
	}
	return pos
}

// moveToPosition shifts the module with the given id to pos (clamped),
// renumbering its siblings. Reports whether the id was found.
func moveToPosition(mods []Module, id, pos int) bool {
	var target *Module
	count := 0
	for i := range mods {
		if mods[i].IsDeleted() {
			continue
		}
		count++
		if mods[i].ID == id {
			target = &mods[i]
		}
	}
	if target == nil {
		return false
	}
	pos = ClampPosition(pos, count)

	// lift the target out of the sequence, close the gap, then drop it back in
	old := target.Position
	for i := range mods {
		if mods[i].IsDeleted() || mods[i].ID == id {
			continue
		}
		switch {
		case old < pos && mods[i].Position > old && mods[i].Position <= pos:
			mods[i].Position--
		case old > pos && mods[i].Position >= pos && mods[i].Position < old:
			mods[i].Position++
		}
	}
	target.Position = pos
	return true
}

func validateRequirements(reqs []Requirement) error {
	seen := make(map[int]bool, len(reqs))
	for _, req := range reqs {
		if seen[req.ItemID] {
			return core.NewValidationError(nil, core.FieldError{Field: "completion_requirements", Error: "duplicate requirement for one item"})
		}
		seen[req.ItemID] = true

		switch req.Kind {
		case MustView, MustSubmit, MustContribute:
			if req.MinScoreValue.Valid {
				return core.NewValidationError(nil, core.FieldError{Field: "completion_requirements", Error: "min_score only applies to kind min_score"})
			}
		case MinScore:
			if !req.MinScoreValue.Valid {
				return core.NewValidationError(nil, core.FieldError{Field: "completion_requirements", Error: "kind min_score requires a min_score threshold"})
			}
		default:
			return core.NewValidationError(nil, core.FieldError{Field: "completion_requirements", Error: "unknown requirement kind: " + req.Kind})
		}
	}
	return nil
}

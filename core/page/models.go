package page

import (
	"regexp"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Page workflow states.
const (
	WorkflowActive      = "active"
	WorkflowUnpublished = "unpublished"
	WorkflowDeleted     = "deleted"
)

// Editing roles.
const (
	EditTeachers = "teachers"
	EditStudents = "students"
	EditPublic   = "public"
)

// FrontPageSlug resolves the course's front page.
const FrontPageSlug = "front-page"

var (
	editingRoles = map[string]bool{EditTeachers: true, EditStudents: true, EditPublic: true}

	slugRegex  = regexp.MustCompile(`[^a-z0-9]+`)
	trimDashes = regexp.MustCompile(`^-+|-+$`)
)

// Page is rich content associated with a course, addressed by a url slug
// derived from its title.
type Page struct {
	ID               int       `json:"-" db:"id"`
	CourseID         int       `json:"course_id" db:"course_id"`
	URL              string    `json:"url" db:"url"`
	Title            string    `json:"title" db:"title"`
	Body             string    `json:"body,omitempty" db:"body"`
	HideFromStudents bool      `json:"hide_from_students" db:"hide_from_students"`
	EditingRoles     string    `json:"editing_roles,omitempty" db:"editing_roles"` // comma-separated
	WorkflowState    string    `json:"-" db:"workflow_state"`
	Published        bool      `json:"published" db:"-"`
	FrontPage        bool      `json:"front_page" db:"front_page"`
	LastEditedByID   string    `json:"last_edited_by_id,omitempty" db:"last_edited_by_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (p *Page) IsActive() bool  { return p.WorkflowState == WorkflowActive }
func (p *Page) IsDeleted() bool { return p.WorkflowState == WorkflowDeleted }

// EditableBy reports whether the given role may edit the page's content.
func (p *Page) EditableBy(role string) bool {
	for _, r := range strings.Split(p.EditingRoles, ",") {
		if r == role {
			return true
		}
	}
	return false
}

// Slugify derives a url slug from a page title.
func Slugify(title string) string {
	slug := strings.ToLower(core.CleanString(title))
	slug = slugRegex.ReplaceAllString(slug, "-")
	return trimDashes.ReplaceAllString(slug, "")
}

// FilterEditingRoles drops unknown roles from a comma-separated list.
func FilterEditingRoles(roles string) string {
	kept := make([]string, 0, 3)
	for _, role := range strings.Split(roles, ",") {
		role = core.CleanString(role)
		if editingRoles[role] {
			kept = append(kept, role)
		}
	}
	return strings.Join(kept, ",")
}

// NewPage contains information needed to create a new Page.
type NewPage struct {
	Title            string    `json:"title" validate:"required"`
	Body             string    `json:"body"`
	HideFromStudents bool      `json:"hide_from_students"`
	EditingRoles     string    `json:"editing_roles"`
	Published        null.Bool `json:"published"`
	FrontPage        bool      `json:"front_page"`
	NotifyOfUpdate   bool      `json:"notify_of_update"`
}

func (np *NewPage) Validate() error {
	np.Title = core.CleanString(np.Title)
	np.EditingRoles = FilterEditingRoles(np.EditingRoles)
	return core.Validate.Struct(np)
}

// UpdatePage defines what information may be provided to modify an existing
// Page. Absent fields leave the page untouched.
type UpdatePage struct {
	Title            null.String `json:"title"`
	Body             null.String `json:"body"`
	HideFromStudents null.Bool   `json:"hide_from_students"`
	EditingRoles     null.String `json:"editing_roles"`
	Published        null.Bool   `json:"published"`
	FrontPage        null.Bool   `json:"front_page"`
	NotifyOfUpdate   bool        `json:"notify_of_update"`
}

func (up *UpdatePage) Validate() error {
	if up.Title.Valid {
		up.Title.String = core.CleanString(up.Title.String)
		if up.Title.String == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "title", Error: "this field is required"})
		}
	}
	if up.EditingRoles.Valid {
		up.EditingRoles.String = FilterEditingRoles(up.EditingRoles.String)
	}
	return nil
}

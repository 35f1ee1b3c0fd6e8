package page

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var ErrNotFound = errors.New("page not found")

type (
	// QueryFilter narrows and orders page listings.
	QueryFilter struct {
		IncludeUnpublished bool
		IncludeHidden      bool
		SortField          string // "title", "created_at" or "updated_at"; anything else sorts by id
		Descending         bool
	}

	Repository interface {
		CreatePage(ctx context.Context, pg Page) (Page, error)
		GetPageBySlug(ctx context.Context, courseID int, slug string) (Page, error)
		GetFrontPage(ctx context.Context, courseID int) (Page, error)
		// QueryPages omits page bodies; they are only loaded for single-page reads.
		QueryPages(ctx context.Context, courseID int, filter QueryFilter) ([]Page, error)
		UpdatePage(ctx context.Context, pg Page) (Page, error)
	}

	// ParticipantDirectory resolves the recipients of page update notifications.
	ParticipantDirectory interface {
		CourseParticipants(ctx context.Context, courseID int) ([]mail.Address, error)
	}

	Service struct {
		repo         Repository
		mailSvc      core.EmailService
		participants ParticipantDirectory
	}
)

func NewService(repo Repository, mailSvc core.EmailService, participants ParticipantDirectory) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, participants: participants}
}

// Query lists the course's pages per filter, never including deleted ones.
func (svc *Service) Query(ctx context.Context, courseID int, filter QueryFilter) ([]Page, error) {
	pages, err := svc.repo.QueryPages(ctx, courseID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	return pages, nil
}

// Get fetches one page by slug; FrontPageSlug resolves the course's front
// page. Deleted pages, and pages the viewer may not see, are ErrNotFound.
func (svc *Service) Get(ctx context.Context, courseID int, slug string, filter QueryFilter) (Page, error) {
	var pg Page
	var err error
	if slug == FrontPageSlug {
		pg, err = svc.repo.GetFrontPage(ctx, courseID)
	} else {
		pg, err = svc.repo.GetPageBySlug(ctx, courseID, slug)
	}
	if err != nil {
		return Page{}, err
	}
	if pg.IsDeleted() ||
		(!pg.IsActive() && !filter.IncludeUnpublished) ||
		(pg.HideFromStudents && !filter.IncludeHidden) {
		return Page{}, ErrNotFound
	}
	pg.Published = pg.IsActive()
	return pg, nil
}

func (svc *Service) Create(ctx context.Context, courseID int, editorID string, np NewPage) (Page, error) {
	if err := np.Validate(); err != nil {
		return Page{}, err
	}

	state := WorkflowUnpublished
	if !np.Published.Valid || np.Published.Bool {
		state = WorkflowActive
	}
	now := time.Now().UTC()
	pg := Page{
		CourseID:         courseID,
		URL:              Slugify(np.Title),
		Title:            np.Title,
		Body:             np.Body,
		HideFromStudents: np.HideFromStudents,
		EditingRoles:     np.EditingRoles,
		WorkflowState:    state,
		FrontPage:        np.FrontPage,
		LastEditedByID:   editorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	pg, err := svc.repo.CreatePage(ctx, pg)
	if err != nil {
		return Page{}, errors.Wrap(err, "creating page")
	}
	pg.Published = pg.IsActive()
	if np.NotifyOfUpdate {
		svc.notify(ctx, pg)
	}
	return pg, nil
}

// Update applies a partial update. contentOnly restricts the edit to the body,
// for editors granted access through the page's editing roles rather than
// course-level permissions. Changing the title changes the url.
func (svc *Service) Update(ctx context.Context, courseID int, slug, editorID string, up UpdatePage, contentOnly bool) (Page, error) {
	if err := up.Validate(); err != nil {
		return Page{}, err
	}
	pg, err := svc.repo.GetPageBySlug(ctx, courseID, slug)
	if err != nil {
		return Page{}, err
	}
	if pg.IsDeleted() {
		return Page{}, ErrNotFound
	}

	if up.Body.Valid {
		pg.Body = up.Body.String
	}
	if !contentOnly {
		if up.Title.Valid {
			pg.Title = up.Title.String
			pg.URL = Slugify(up.Title.String)
		}
		if up.HideFromStudents.Valid {
			pg.HideFromStudents = up.HideFromStudents.Bool
		}
		if up.EditingRoles.Valid {
			pg.EditingRoles = up.EditingRoles.String
		}
		if up.FrontPage.Valid {
			pg.FrontPage = up.FrontPage.Bool
		}
		if up.Published.Valid {
			if up.Published.Bool {
				pg.WorkflowState = WorkflowActive
			} else {
				pg.WorkflowState = WorkflowUnpublished
			}
		}
	}
	pg.LastEditedByID = editorID
	pg.UpdatedAt = time.Now().UTC()

	pg, err = svc.repo.UpdatePage(ctx, pg)
	if err != nil {
		return Page{}, errors.Wrap(err, "updating page")
	}
	pg.Published = pg.IsActive()
	if up.NotifyOfUpdate {
		svc.notify(ctx, pg)
	}
	return pg, nil
}

// Delete soft-deletes a page. There is no un-delete.
func (svc *Service) Delete(ctx context.Context, courseID int, slug string) (Page, error) {
	pg, err := svc.repo.GetPageBySlug(ctx, courseID, slug)
	if err != nil {
		return Page{}, err
	}
	if pg.IsDeleted() {
		return Page{}, ErrNotFound
	}
	pg.WorkflowState = WorkflowDeleted
	pg.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePage(ctx, pg)
}

func (svc *Service) notify(ctx context.Context, pg Page) {
	recipients, err := svc.participants.CourseParticipants(ctx, pg.CourseID)
	if err != nil || len(recipients) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           recipients,
		Subject:      "Page updated: " + pg.Title,
		TemplateName: "page-updated",
		TemplateData: pg,
		BodyStr:      "The page \"" + pg.Title + "\" has been updated.",
	})
}

package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/page"
)

type pageRepository struct {
	db *sqlx.DB
}

var _ page.Repository = (*pageRepository)(nil)

func NewPageRepository(db *sqlx.DB) *pageRepository {
	return &pageRepository{db: db}
}

const pageColumns = `id, course_id, url, title, body, hide_from_students, editing_roles, workflow_state, front_page, last_edited_by_id, created_at, updated_at`

func (repo *pageRepository) CreatePage(ctx context.Context, pg page.Page) (page.Page, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return page.Page{}, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	if pg.FrontPage {
		if err := clearFrontPage(ctx, tx, pg.CourseID); err != nil {
			return page.Page{}, err
		}
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO wiki_page (course_id, url, title, body, hide_from_students, editing_roles, workflow_state, front_page, last_edited_by_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		pg.CourseID, pg.URL, pg.Title, pg.Body, pg.HideFromStudents, pg.EditingRoles,
		pg.WorkflowState, pg.FrontPage, pg.LastEditedByID, pg.CreatedAt, pg.UpdatedAt,
	).Scan(&pg.ID)
	if err != nil {
		return page.Page{}, errors.Wrap(err, "inserting page")
	}
	return pg, errors.Wrap(tx.Commit(), "committing")
}

func (repo *pageRepository) GetPageBySlug(ctx context.Context, courseID int, slug string) (page.Page, error) {
	var pg page.Page
	err := repo.db.GetContext(ctx, &pg,
		`SELECT `+pageColumns+` FROM wiki_page WHERE course_id = $1 AND url = $2`, courseID, slug)
	if err == sql.ErrNoRows {
		return page.Page{}, page.ErrNotFound
	}
	return pg, errors.Wrap(err, "getting page")
}

func (repo *pageRepository) GetFrontPage(ctx context.Context, courseID int) (page.Page, error) {
	var pg page.Page
	err := repo.db.GetContext(ctx, &pg,
		`SELECT `+pageColumns+` FROM wiki_page
		 WHERE course_id = $1 AND front_page AND workflow_state <> 'deleted'`, courseID)
	if err == sql.ErrNoRows {
		return page.Page{}, page.ErrNotFound
	}
	return pg, errors.Wrap(err, "getting front page")
}

func (repo *pageRepository) QueryPages(ctx context.Context, courseID int, filter page.QueryFilter) ([]page.Page, error) {
	query := `SELECT id, course_id, url, title, '' AS body, hide_from_students, editing_roles,
	                 workflow_state, front_page, last_edited_by_id, created_at, updated_at
	          FROM wiki_page WHERE course_id = $1 AND workflow_state <> 'deleted'`
	if !filter.IncludeUnpublished {
		query += ` AND workflow_state = 'active'`
	}
	if !filter.IncludeHidden {
		query += ` AND NOT hide_from_students`
	}

	order := "id"
	switch filter.SortField {
	case "title", "created_at", "updated_at":
		order = filter.SortField
	}
	query += ` ORDER BY ` + order
	if filter.Descending {
		query += ` DESC`
	}

	pages := make([]page.Page, 0)
	if err := repo.db.SelectContext(ctx, &pages, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	for i := range pages {
		pages[i].Published = pages[i].IsActive()
	}
	return pages, nil
}

func (repo *pageRepository) UpdatePage(ctx context.Context, pg page.Page) (page.Page, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return page.Page{}, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	if pg.FrontPage {
		if err := clearFrontPage(ctx, tx, pg.CourseID); err != nil {
			return page.Page{}, err
		}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE wiki_page
		 SET url = $1, title = $2, body = $3, hide_from_students = $4, editing_roles = $5,
		     workflow_state = $6, front_page = $7, last_edited_by_id = $8, updated_at = $9
		 WHERE id = $10`,
		pg.URL, pg.Title, pg.Body, pg.HideFromStudents, pg.EditingRoles,
		pg.WorkflowState, pg.FrontPage, pg.LastEditedByID, pg.UpdatedAt, pg.ID)
	if err != nil {
		return page.Page{}, errors.Wrap(err, "updating page")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return page.Page{}, page.ErrNotFound
	}
	return pg, errors.Wrap(tx.Commit(), "committing")
}

// clearFrontPage demotes the course's current front page so at most one page
// holds the flag.
func clearFrontPage(ctx context.Context, tx *sqlx.Tx, courseID int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wiki_page SET front_page = FALSE WHERE course_id = $1 AND front_page`, courseID)
	return errors.Wrap(err, "clearing front page")
}

package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
)

type moduleRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*moduleRepository)(nil)

func NewModuleRepository(db *sqlx.DB) *moduleRepository {
	return &moduleRepository{db: db}
}

const moduleColumns = `id, course_id, name, position, workflow_state, unlock_at, require_sequential_progress, created_at, updated_at`

// loadEdges attaches prerequisite ids (in declared order) and requirements to
// the given modules.
func loadEdges(ctx context.Context, q sqlx.QueryerContext, mods []course.Module) error {
	if len(mods) == 0 {
		return nil
	}
	idx := make(map[int]*course.Module, len(mods))
	ids := make([]int, 0, len(mods))
	for i := range mods {
		idx[mods[i].ID] = &mods[i]
		ids = append(ids, mods[i].ID)
	}

	query, args, err := sqlx.In(
		`SELECT module_id, prerequisite_id FROM module_prerequisite WHERE module_id IN (?) ORDER BY module_id, ordinal`, ids)
	if err != nil {
		return errors.Wrap(err, "building prerequisite query")
	}
	rows, err := q.QueryxContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return errors.Wrap(err, "querying prerequisites")
	}
	defer rows.Close()
	for rows.Next() {
		var moduleID, prereqID int
		if err := rows.Scan(&moduleID, &prereqID); err != nil {
			return errors.Wrap(err, "scanning prerequisite")
		}
		mod := idx[moduleID]
		mod.PrerequisiteIDs = append(mod.PrerequisiteIDs, prereqID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	query, args, err = sqlx.In(
		`SELECT module_id, item_id, kind, min_score FROM module_requirement WHERE module_id IN (?) ORDER BY module_id, item_id`, ids)
	if err != nil {
		return errors.Wrap(err, "building requirement query")
	}
	reqRows, err := q.QueryxContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return errors.Wrap(err, "querying requirements")
	}
	defer reqRows.Close()
	for reqRows.Next() {
		var moduleID int
		var req course.Requirement
		if err := reqRows.Scan(&moduleID, &req.ItemID, &req.Kind, &req.MinScoreValue); err != nil {
			return errors.Wrap(err, "scanning requirement")
		}
		mod := idx[moduleID]
		mod.Requirements = append(mod.Requirements, req)
	}
	return reqRows.Err()
}

// saveEdges rewrites a module's prerequisite and requirement rows.
func saveEdges(ctx context.Context, tx *sqlx.Tx, mod course.Module) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM module_prerequisite WHERE module_id = $1`, mod.ID); err != nil {
		return errors.Wrap(err, "clearing prerequisites")
	}
	for i, pid := range mod.PrerequisiteIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO module_prerequisite (module_id, prerequisite_id, ordinal) VALUES ($1, $2, $3)`,
			mod.ID, pid, i,
		); err != nil {
			return errors.Wrap(err, "inserting prerequisite")
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM module_requirement WHERE module_id = $1`, mod.ID); err != nil {
		return errors.Wrap(err, "clearing requirements")
	}
	for _, req := range mod.Requirements {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO module_requirement (module_id, item_id, kind, min_score) VALUES ($1, $2, $3, $4)`,
			mod.ID, req.ItemID, req.Kind, req.MinScoreValue,
		); err != nil {
			return errors.Wrap(err, "inserting requirement")
		}
	}
	return nil
}

func (repo *moduleRepository) CreateModule(ctx context.Context, mod course.Module) (course.Module, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return course.Module{}, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	// serialize position assignment with concurrent course edits
	if _, err := tx.ExecContext(ctx,
		`SELECT id FROM context_module WHERE course_id = $1 FOR UPDATE`, mod.CourseID); err != nil {
		return course.Module{}, errors.Wrap(err, "locking course modules")
	}
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(COUNT(*), 0) FROM context_module WHERE course_id = $1 AND workflow_state <> 'deleted'`,
		mod.CourseID)
	var count int
	if err := row.Scan(&count); err != nil {
		return course.Module{}, errors.Wrap(err, "counting modules")
	}
	mod.Position = count + 1

	err = tx.QueryRowContext(ctx,
		`INSERT INTO context_module (course_id, name, position, workflow_state, unlock_at, require_sequential_progress, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		mod.CourseID, mod.Name, mod.Position, mod.WorkflowState, mod.UnlockAt,
		mod.RequireSequentialProgress, mod.CreatedAt, mod.UpdatedAt,
	).Scan(&mod.ID)
	if err != nil {
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	if err := saveEdges(ctx, tx, mod); err != nil {
		return course.Module{}, err
	}
	return mod, errors.Wrap(tx.Commit(), "committing")
}

func (repo *moduleRepository) GetModule(ctx context.Context, courseID, id int) (course.Module, error) {
	var mod course.Module
	err := repo.db.GetContext(ctx, &mod,
		`SELECT `+moduleColumns+` FROM context_module WHERE course_id = $1 AND id = $2`, courseID, id)
	if err == sql.ErrNoRows {
		return course.Module{}, course.ErrNotFound
	}
	if err != nil {
		return course.Module{}, errors.Wrap(err, "getting module")
	}
	mods := []course.Module{mod}
	if err := loadEdges(ctx, repo.db, mods); err != nil {
		return course.Module{}, err
	}
	return mods[0], nil
}

func (repo *moduleRepository) QueryModules(ctx context.Context, courseID int) ([]course.Module, error) {
	mods := make([]course.Module, 0)
	err := repo.db.SelectContext(ctx, &mods,
		`SELECT `+moduleColumns+` FROM context_module
		 WHERE course_id = $1 AND workflow_state <> 'deleted' ORDER BY position`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	if err := loadEdges(ctx, repo.db, mods); err != nil {
		return nil, err
	}
	return mods, nil
}

func (repo *moduleRepository) UpdateModule(ctx context.Context, mod course.Module) (course.Module, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return course.Module{}, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	if err := updateModuleTx(ctx, tx, mod); err != nil {
		return course.Module{}, err
	}
	return mod, errors.Wrap(tx.Commit(), "committing")
}

func updateModuleTx(ctx context.Context, tx *sqlx.Tx, mod course.Module) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE context_module
		 SET name = $1, position = $2, workflow_state = $3, unlock_at = $4,
		     require_sequential_progress = $5, updated_at = $6
		 WHERE id = $7`,
		mod.Name, mod.Position, mod.WorkflowState, mod.UnlockAt,
		mod.RequireSequentialProgress, mod.UpdatedAt, mod.ID)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.ErrNotFound
	}
	return saveEdges(ctx, tx, mod)
}

func (repo *moduleRepository) RewriteCourseModules(
	ctx context.Context,
	courseID int,
	fn func(mods []course.Module) ([]course.Module, error),
) ([]course.Module, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	mods := make([]course.Module, 0)
	err = tx.SelectContext(ctx, &mods,
		`SELECT `+moduleColumns+` FROM context_module
		 WHERE course_id = $1 AND workflow_state <> 'deleted' ORDER BY position FOR UPDATE`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "locking course modules")
	}
	if err := loadEdges(ctx, tx, mods); err != nil {
		return nil, err
	}

	mods, err = fn(mods)
	if err != nil {
		return nil, err
	}
	for _, mod := range mods {
		if err := updateModuleTx(ctx, tx, mod); err != nil {
			return nil, err
		}
	}
	return mods, errors.Wrap(tx.Commit(), "committing")
}

func (repo *moduleRepository) CreateItem(ctx context.Context, item course.Item) (course.Item, error) {
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO module_item (module_id, position, content_type, content_id, title, url, indent)
		 VALUES ($1,
		         (SELECT COALESCE(MAX(position), 0) + 1 FROM module_item WHERE module_id = $1),
		         $2, $3, $4, $5, $6)
		 RETURNING id, position`,
		item.ModuleID, item.Type, item.ContentID, item.Title, item.URL, item.Indent,
	).Scan(&item.ID, &item.Position)
	if err != nil {
		return course.Item{}, errors.Wrap(err, "inserting item")
	}
	return item, nil
}

func (repo *moduleRepository) QueryItems(ctx context.Context, moduleID int) ([]course.Item, error) {
	items := make([]course.Item, 0)
	err := repo.db.SelectContext(ctx, &items,
		`SELECT id, module_id, position, content_type, content_id, title, url, indent
		 FROM module_item WHERE module_id = $1 ORDER BY position`, moduleID)
	return items, errors.Wrap(err, "querying items")
}

func (repo *moduleRepository) QueryItemsByContent(
	ctx context.Context,
	courseID int,
	contentType string,
	contentID int,
) ([]course.Item, error) {
	items := make([]course.Item, 0)
	err := repo.db.SelectContext(ctx, &items,
		`SELECT i.id, i.module_id, i.position, i.content_type, i.content_id, i.title, i.url, i.indent
		 FROM module_item i
		 JOIN context_module m ON m.id = i.module_id
		 WHERE m.course_id = $1 AND m.workflow_state <> 'deleted' AND i.content_type = $2 AND i.content_id = $3
		 ORDER BY i.id`, courseID, contentType, contentID)
	return items, errors.Wrap(err, "querying items by content")
}

package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

type progressRepository struct {
	db core.DBExecutor
}

var _ course.ProgressRepository = (*progressRepository)(nil)

func NewProgressRepository(db core.DBExecutor) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetProgress(ctx context.Context, learnerID string, moduleID int) (course.Progress, error) {
	var prog course.Progress
	err := repo.db.QueryRowContext(ctx,
		`SELECT state, completed_at FROM learner_progress WHERE learner_id = $1 AND module_id = $2`,
		learnerID, moduleID,
	).Scan(&prog.State, &prog.CompletedAt)
	if err == sql.ErrNoRows {
		return course.Progress{}, course.ErrNotFound
	}
	return prog, errors.Wrap(err, "reading progress snapshot")
}

func (repo *progressRepository) SaveProgress(ctx context.Context, learnerID string, moduleID int, prog course.Progress) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO learner_progress (learner_id, module_id, state, completed_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (learner_id, module_id) DO UPDATE SET state = $3, completed_at = $4`,
		learnerID, moduleID, prog.State, prog.CompletedAt)
	return errors.Wrap(err, "saving progress snapshot")
}

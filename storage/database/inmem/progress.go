package inmemdb

import (
	"context"

	"github.com/trezcool/darasa/core/course"
)

type progressRepository struct {
	db *progressTable
}

var _ course.ProgressRepository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db.progress}
}

func (repo *progressRepository) GetProgress(_ context.Context, learnerID string, moduleID int) (course.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if prog, ok := repo.db.table[progressKey{learnerID, moduleID}]; ok {
		return prog, nil
	}
	return course.Progress{}, course.ErrNotFound
}

func (repo *progressRepository) SaveProgress(_ context.Context, learnerID string, moduleID int, prog course.Progress) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[progressKey{learnerID, moduleID}] = prog
	return nil
}

package inmemdb

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/course"
)

type factsRepository struct {
	db *factsTable
}

var (
	_ course.FactsProvider = (*factsRepository)(nil)
	_ course.FactsRecorder = (*factsRepository)(nil)
)

func NewFactsRepository(db *DB) *factsRepository {
	return &factsRepository{db: db.facts}
}

func (repo *factsRepository) FactsFor(_ context.Context, learnerID string, itemID int) (course.Facts, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if facts, ok := repo.db.table[factKey{learnerID, itemID}]; ok {
		return *facts, nil
	}
	return course.Facts{}, nil
}

func (repo *factsRepository) RecordAction(_ context.Context, learnerID string, itemID int, action string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	facts := repo.get(learnerID, itemID)
	switch action {
	case course.ActionViewed:
		facts.Viewed = true
	case course.ActionSubmitted:
		facts.Submitted = true
	case course.ActionContributed:
		facts.Contributed = true
	default:
		return errors.Errorf("unknown interaction action %q", action)
	}
	return nil
}

func (repo *factsRepository) RecordScore(_ context.Context, learnerID string, itemID int, score float64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	facts := repo.get(learnerID, itemID)
	// keep the best score
	if !facts.Score.Valid || score > facts.Score.Float64 {
		facts.Score = null.Float64From(score)
	}
	return nil
}

// get returns the stored facts for (learner, item), creating them if absent.
// Callers must hold the table mutex.
func (repo *factsRepository) get(learnerID string, itemID int) *course.Facts {
	key := factKey{learnerID, itemID}
	facts, ok := repo.db.table[key]
	if !ok {
		facts = &course.Facts{}
		repo.db.table[key] = facts
	}
	return facts
}

package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

type factsRepository struct {
	db core.DBExecutor
}

var (
	_ course.FactsProvider = (*factsRepository)(nil)
	_ course.FactsRecorder = (*factsRepository)(nil)
)

func NewFactsRepository(db core.DBExecutor) *factsRepository {
	return &factsRepository{db: db}
}

func (repo *factsRepository) FactsFor(ctx context.Context, learnerID string, itemID int) (course.Facts, error) {
	var facts course.Facts
	err := repo.db.QueryRowContext(ctx,
		`SELECT viewed, submitted, contributed, score FROM learner_fact WHERE learner_id = $1 AND item_id = $2`,
		learnerID, itemID,
	).Scan(&facts.Viewed, &facts.Submitted, &facts.Contributed, &facts.Score)
	if err == sql.ErrNoRows {
		return course.Facts{}, nil // no recorded activity
	}
	if err != nil {
		return course.Facts{}, errors.Wrap(err, "reading facts")
	}
	return facts, nil
}

func (repo *factsRepository) RecordAction(ctx context.Context, learnerID string, itemID int, action string) error {
	var col string
	switch action {
	case course.ActionViewed:
		col = "viewed"
	case course.ActionSubmitted:
		col = "submitted"
	case course.ActionContributed:
		col = "contributed"
	default:
		return errors.Errorf("unknown action %q", action)
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO learner_fact (learner_id, item_id, `+col+`) VALUES ($1, $2, TRUE)
		 ON CONFLICT (learner_id, item_id) DO UPDATE SET `+col+` = TRUE`,
		learnerID, itemID)
	return errors.Wrap(err, "recording action")
}

func (repo *factsRepository) RecordScore(ctx context.Context, learnerID string, itemID int, score float64) error {
	// keeps the learner's best score
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO learner_fact (learner_id, item_id, score) VALUES ($1, $2, $3)
		 ON CONFLICT (learner_id, item_id)
		 DO UPDATE SET score = GREATEST(COALESCE(learner_fact.score, $3), $3)`,
		learnerID, itemID, score)
	return errors.Wrap(err, "recording score")
}

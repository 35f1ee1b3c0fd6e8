package course_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/course"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

type progressFixture struct {
	svc    *course.Service
	engine *course.ProgressEngine
	facts  course.FactsRecorder
	ctx    context.Context
}

func newProgressFixture(t *testing.T) *progressFixture {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewModuleRepository(db)
	facts := inmemdb.NewFactsRepository(db)
	return &progressFixture{
		svc:    course.NewService(repo, facts),
		engine: course.NewProgressEngine(repo, inmemdb.NewProgressRepository(db), facts),
		facts:  facts,
		ctx:    context.Background(),
	}
}

// publishedModule creates an active module, optionally with items carrying the
// given requirement kinds (one item per requirement).
func (f *progressFixture) publishedModule(t *testing.T, courseID int, name string, kinds ...string) (course.Module, []course.Item) {
	t.Helper()
	mod, err := f.svc.Create(f.ctx, courseID, course.NewModule{Name: name})
	require.NoError(t, err)

	items := make([]course.Item, 0, len(kinds))
	reqs := make([]course.Requirement, 0, len(kinds))
	for i, kind := range kinds {
		it, err := f.svc.AddItem(f.ctx, courseID, mod.ID, course.NewItem{
			Type:      course.ContentAssignment,
			ContentID: null.IntFrom(100*mod.ID + i),
			Title:     name,
		})
		require.NoError(t, err)
		items = append(items, it)

		req := course.Requirement{ItemID: it.ID, Kind: kind}
		if kind == course.MinScore {
			req.MinScoreValue = null.Float64From(70)
		}
		reqs = append(reqs, req)
	}

	um := course.UpdateModule{Publish: null.BoolFrom(true)}
	if len(reqs) > 0 {
		um.Requirements = &reqs
	}
	mod, err = f.svc.Update(f.ctx, courseID, mod.ID, um)
	require.NoError(t, err)
	return mod, items
}

func (f *progressFixture) progress(t *testing.T, courseID int, learnerID string, moduleID int) course.Progress {
	t.Helper()
	prog, err := f.engine.ModuleProgress(f.ctx, courseID, learnerID, moduleID)
	require.NoError(t, err)
	return prog
}

func TestProgressEngine_noRequirements(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 100

	mod, _ := f.publishedModule(t, courseID, "Intro")

	// no requirements: completed the moment it unlocks
	prog := f.progress(t, courseID, "learner-1", mod.ID)
	assert.Equal(t, course.ProgressCompleted, prog.State)
	assert.True(t, prog.CompletedAt.Valid)
}

func TestProgressEngine_requirementRollup(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 110
	learner := "learner-1"

	mod, items := f.publishedModule(t, courseID, "Week 1",
		course.MustView, course.MustSubmit, course.MustContribute, course.MinScore)

	prog := f.progress(t, courseID, learner, mod.ID)
	assert.Equal(t, course.ProgressUnlocked, prog.State)
	assert.Empty(t, prog.CompletedItemIDs)
	assert.False(t, prog.CompletedAt.Valid)

	require.NoError(t, f.facts.RecordAction(f.ctx, learner, items[0].ID, course.ActionViewed))
	require.NoError(t, f.facts.RecordAction(f.ctx, learner, items[1].ID, course.ActionSubmitted))

	prog = f.progress(t, courseID, learner, mod.ID)
	assert.Equal(t, course.ProgressStarted, prog.State)
	assert.ElementsMatch(t, []int{items[0].ID, items[1].ID}, prog.CompletedItemIDs)
	assert.False(t, prog.CompletedAt.Valid, "completed_at only set at completion")

	// a score below the threshold does not satisfy min_score
	require.NoError(t, f.facts.RecordScore(f.ctx, learner, items[3].ID, 50))
	require.NoError(t, f.facts.RecordAction(f.ctx, learner, items[2].ID, course.ActionContributed))
	prog = f.progress(t, courseID, learner, mod.ID)
	assert.Equal(t, course.ProgressStarted, prog.State)

	require.NoError(t, f.facts.RecordScore(f.ctx, learner, items[3].ID, 85))
	prog = f.progress(t, courseID, learner, mod.ID)
	assert.Equal(t, course.ProgressCompleted, prog.State)
	require.True(t, prog.CompletedAt.Valid)

	// completed_at survives recomputation
	first := prog.CompletedAt.Time
	time.Sleep(5 * time.Millisecond)
	prog = f.progress(t, courseID, learner, mod.ID)
	assert.True(t, prog.CompletedAt.Time.Equal(first))
}

func TestProgressEngine_completedAtClearedOnRegression(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 120
	learner := "learner-1"

	mod, items := f.publishedModule(t, courseID, "Week 1", course.MustView)
	require.NoError(t, f.facts.RecordAction(f.ctx, learner, items[0].ID, course.ActionViewed))
	prog := f.progress(t, courseID, learner, mod.ID)
	require.Equal(t, course.ProgressCompleted, prog.State)

	// an instructor adds a requirement after the fact
	it2, err := f.svc.AddItem(f.ctx, courseID, mod.ID, course.NewItem{
		Type: course.ContentQuiz, ContentID: null.IntFrom(9), Title: "Quiz",
	})
	require.NoError(t, err)
	reqs := []course.Requirement{
		{ItemID: items[0].ID, Kind: course.MustView},
		{ItemID: it2.ID, Kind: course.MustSubmit},
	}
	_, err = f.svc.Update(f.ctx, courseID, mod.ID, course.UpdateModule{Requirements: &reqs})
	require.NoError(t, err)

	prog = f.progress(t, courseID, learner, mod.ID)
	assert.Equal(t, course.ProgressStarted, prog.State)
	assert.False(t, prog.CompletedAt.Valid)
}

func TestProgressEngine_prerequisites(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 130
	learner := "learner-1"

	m1, items := f.publishedModule(t, courseID, "Week 1", course.MustView)
	m2, _ := f.publishedModule(t, courseID, "Week 2")

	prereqs := []int{m1.ID}
	_, err := f.svc.Update(f.ctx, courseID, m2.ID, course.UpdateModule{PrerequisiteIDs: &prereqs})
	require.NoError(t, err)

	prog := f.progress(t, courseID, learner, m2.ID)
	assert.Equal(t, course.ProgressLocked, prog.State)

	require.NoError(t, f.facts.RecordAction(f.ctx, learner, items[0].ID, course.ActionViewed))
	prog = f.progress(t, courseID, learner, m2.ID)
	assert.Equal(t, course.ProgressCompleted, prog.State, "no requirements of its own")

	// deleting the prerequisite breaks the edge, which counts satisfied
	m3, _ := f.publishedModule(t, courseID, "Week 3")
	prereqs = []int{m1.ID}
	_, err = f.svc.Update(f.ctx, courseID, m3.ID, course.UpdateModule{PrerequisiteIDs: &prereqs})
	require.NoError(t, err)
	_, err = f.svc.Delete(f.ctx, courseID, m1.ID)
	require.NoError(t, err)

	prog = f.progress(t, courseID, learner, m3.ID)
	assert.Equal(t, course.ProgressCompleted, prog.State)
}

func TestProgressEngine_timeLock(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 140

	mod, _ := f.publishedModule(t, courseID, "Future")
	unlockAt := null.TimeFrom(time.Now().UTC().Add(time.Hour))
	_, err := f.svc.Update(f.ctx, courseID, mod.ID, course.UpdateModule{UnlockAt: &unlockAt})
	require.NoError(t, err)

	prog := f.progress(t, courseID, "learner-1", mod.ID)
	assert.Equal(t, course.ProgressLocked, prog.State)

	// an explicit null clears the time lock; an absent field leaves it alone
	name := null.StringFrom("Future Week")
	_, err = f.svc.Update(f.ctx, courseID, mod.ID, course.UpdateModule{Name: name})
	require.NoError(t, err)
	prog = f.progress(t, courseID, "learner-1", mod.ID)
	assert.Equal(t, course.ProgressLocked, prog.State)

	cleared := null.Time{}
	_, err = f.svc.Update(f.ctx, courseID, mod.ID, course.UpdateModule{UnlockAt: &cleared})
	require.NoError(t, err)
	prog = f.progress(t, courseID, "learner-1", mod.ID)
	assert.Equal(t, course.ProgressCompleted, prog.State)
}

func TestProgressEngine_lockedModuleItemsInaccessible(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 145
	learner := "learner-1"

	mod, items := f.publishedModule(t, courseID, "Future", course.MustView)
	unlockAt := null.TimeFrom(time.Now().UTC().Add(24 * time.Hour))
	mod, err := f.svc.Update(f.ctx, courseID, mod.ID, course.UpdateModule{UnlockAt: &unlockAt})
	require.NoError(t, err)

	access, err := f.engine.AccessibleItems(f.ctx, learner, mod)
	require.NoError(t, err)
	assert.False(t, access[items[0].ID], "items of a time-locked module are inaccessible")

	// same for a module locked behind an incomplete prerequisite
	gate, _ := f.publishedModule(t, courseID, "Gate", course.MustSubmit)
	gated, gatedItems := f.publishedModule(t, courseID, "Gated", course.MustView)
	prereqs := []int{gate.ID}
	gated, err = f.svc.Update(f.ctx, courseID, gated.ID, course.UpdateModule{PrerequisiteIDs: &prereqs})
	require.NoError(t, err)

	access, err = f.engine.AccessibleItems(f.ctx, learner, gated)
	require.NoError(t, err)
	assert.False(t, access[gatedItems[0].ID], "items of a prerequisite-locked module are inaccessible")

	// completing the prerequisite opens them up
	gateItems, err := f.svc.Items(f.ctx, gate.ID)
	require.NoError(t, err)
	require.NoError(t, f.facts.RecordAction(f.ctx, learner, gateItems[0].ID, course.ActionSubmitted))
	access, err = f.engine.AccessibleItems(f.ctx, learner, gated)
	require.NoError(t, err)
	assert.True(t, access[gatedItems[0].ID])
}

func TestProgressEngine_unknownModulesLocked(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 150

	mod, _ := f.publishedModule(t, courseID, "Week 1")

	prog := f.progress(t, courseID, "learner-1", 9999)
	assert.Equal(t, course.ProgressLocked, prog.State)

	// module of another course
	prog = f.progress(t, courseID+1, "learner-1", mod.ID)
	assert.Equal(t, course.ProgressLocked, prog.State)
}

func TestProgressEngine_courseProgress(t *testing.T) {
	f := newProgressFixture(t)
	courseID := 160
	learner := "learner-1"

	m1, _ := f.publishedModule(t, courseID, "Week 1")
	m2, items := f.publishedModule(t, courseID, "Week 2", course.MustView)
	draft, err := f.svc.Create(f.ctx, courseID, course.NewModule{Name: "Draft"})
	require.NoError(t, err)

	progress, err := f.engine.CourseProgress(f.ctx, courseID, learner)
	require.NoError(t, err)
	assert.Len(t, progress, 2, "unpublished modules are excluded")
	assert.NotContains(t, progress, draft.ID)
	assert.Equal(t, course.ProgressCompleted, progress[m1.ID].State)
	assert.Equal(t, course.ProgressUnlocked, progress[m2.ID].State)

	require.NoError(t, f.facts.RecordAction(f.ctx, learner, items[0].ID, course.ActionViewed))
	progress, err = f.engine.CourseProgress(f.ctx, courseID, learner)
	require.NoError(t, err)
	assert.Equal(t, course.ProgressCompleted, progress[m2.ID].State)
}

func TestProgressEngine_sequentialAccess(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()
	courseID := 170
	learner := "learner-1"

	mod, err := f.svc.Create(ctx, courseID, course.NewModule{Name: "Week 1", RequireSequentialProgress: true})
	require.NoError(t, err)

	addItem := func(title string) course.Item {
		it, err := f.svc.AddItem(ctx, courseID, mod.ID, course.NewItem{
			Type: course.ContentAssignment, ContentID: null.IntFrom(len(title)), Title: title,
		})
		require.NoError(t, err)
		return it
	}
	it1 := addItem("a")
	it2 := addItem("bb")
	it3 := addItem("ccc")
	it4 := addItem("dddd")

	// only items 2 and 3 carry requirements
	reqs := []course.Requirement{
		{ItemID: it2.ID, Kind: course.MustView},
		{ItemID: it3.ID, Kind: course.MustView},
	}
	_, err = f.svc.Update(ctx, courseID, mod.ID, course.UpdateModule{
		Requirements: &reqs,
		Publish:      null.BoolFrom(true),
	})
	require.NoError(t, err)
	mod, err = f.svc.Get(ctx, courseID, mod.ID, true)
	require.NoError(t, err)

	access, err := f.engine.AccessibleItems(ctx, learner, mod)
	require.NoError(t, err)
	assert.True(t, access[it1.ID], "requirement-less items never block")
	assert.True(t, access[it2.ID], "first unmet requirement is itself accessible")
	assert.False(t, access[it3.ID])
	assert.False(t, access[it4.ID])

	// satisfying item 2 opens item 3 but item 4 stays blocked behind item 3
	require.NoError(t, f.facts.RecordAction(ctx, learner, it2.ID, course.ActionViewed))
	access, err = f.engine.AccessibleItems(ctx, learner, mod)
	require.NoError(t, err)
	assert.True(t, access[it3.ID])
	assert.False(t, access[it4.ID])

	require.NoError(t, f.facts.RecordAction(ctx, learner, it3.ID, course.ActionViewed))
	access, err = f.engine.AccessibleItems(ctx, learner, mod)
	require.NoError(t, err)
	assert.True(t, access[it4.ID])
}

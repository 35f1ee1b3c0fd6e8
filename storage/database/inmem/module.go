package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/course"
)

var (
	modulePKCount int
	itemPKCount   int
)

type moduleRepository struct {
	modules *moduleTable
	items   *itemTable
}

var _ course.Repository = (*moduleRepository)(nil)

func NewModuleRepository(db *DB) *moduleRepository {
	return &moduleRepository{modules: db.module, items: db.item}
}

// cloneModule copies a module so callers never alias table storage.
func cloneModule(mod course.Module) course.Module {
	if mod.PrerequisiteIDs != nil {
		mod.PrerequisiteIDs = append([]int(nil), mod.PrerequisiteIDs...)
	}
	if mod.Requirements != nil {
		mod.Requirements = append([]course.Requirement(nil), mod.Requirements...)
	}
	return mod
}

// queryCourse returns the course's non-deleted modules ordered by position.
// Callers must hold the table mutex.
func (repo *moduleRepository) queryCourse(courseID int) []course.Module {
	mods := make([]course.Module, 0)
	for _, mod := range repo.modules.table {
		if mod.CourseID == courseID && !mod.IsDeleted() {
			mods = append(mods, cloneModule(*mod))
		}
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })
	return mods
}

func (repo *moduleRepository) CreateModule(_ context.Context, mod course.Module) (course.Module, error) {
	repo.modules.mutex.Lock()
	defer repo.modules.mutex.Unlock()

	modulePKCount++
	mod.ID = modulePKCount
	mod.Position = len(repo.queryCourse(mod.CourseID)) + 1
	stored := cloneModule(mod)
	repo.modules.table[mod.ID] = &stored
	return mod, nil
}

func (repo *moduleRepository) GetModule(_ context.Context, courseID, id int) (course.Module, error) {
	repo.modules.mutex.RLock()
	defer repo.modules.mutex.RUnlock()

	if mod, ok := repo.modules.table[id]; ok && mod.CourseID == courseID {
		return cloneModule(*mod), nil
	}
	return course.Module{}, course.ErrNotFound
}

func (repo *moduleRepository) QueryModules(_ context.Context, courseID int) ([]course.Module, error) {
	repo.modules.mutex.RLock()
	defer repo.modules.mutex.RUnlock()
	return repo.queryCourse(courseID), nil
}

func (repo *moduleRepository) UpdateModule(_ context.Context, mod course.Module) (course.Module, error) {
	repo.modules.mutex.Lock()
	defer repo.modules.mutex.Unlock()

	if _, ok := repo.modules.table[mod.ID]; !ok {
		return course.Module{}, course.ErrNotFound
	}
	stored := cloneModule(mod)
	repo.modules.table[mod.ID] = &stored
	return mod, nil
}

func (repo *moduleRepository) RewriteCourseModules(
	_ context.Context,
	courseID int,
	fn func(mods []course.Module) ([]course.Module, error),
) ([]course.Module, error) {
	repo.modules.mutex.Lock()
	defer repo.modules.mutex.Unlock()

	mods, err := fn(repo.queryCourse(courseID))
	if err != nil {
		return nil, err
	}
	for i := range mods {
		stored := cloneModule(mods[i])
		repo.modules.table[stored.ID] = &stored
	}
	return mods, nil
}

func (repo *moduleRepository) CreateItem(_ context.Context, item course.Item) (course.Item, error) {
	repo.items.mutex.Lock()
	defer repo.items.mutex.Unlock()

	pos := 0
	for _, it := range repo.items.table {
		if it.ModuleID == item.ModuleID {
			pos++
		}
	}
	itemPKCount++
	item.ID = itemPKCount
	item.Position = pos + 1
	stored := item
	repo.items.table[item.ID] = &stored
	return item, nil
}

func (repo *moduleRepository) QueryItems(_ context.Context, moduleID int) ([]course.Item, error) {
	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	items := make([]course.Item, 0)
	for _, it := range repo.items.table {
		if it.ModuleID == moduleID {
			items = append(items, *it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

func (repo *moduleRepository) QueryItemsByContent(
	_ context.Context,
	courseID int,
	contentType string,
	contentID int,
) ([]course.Item, error) {
	repo.modules.mutex.RLock()
	defer repo.modules.mutex.RUnlock()
	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	items := make([]course.Item, 0)
	for _, it := range repo.items.table {
		if it.Type != contentType || !it.ContentID.Valid || it.ContentID.Int != contentID {
			continue
		}
		if mod, ok := repo.modules.table[it.ModuleID]; ok && mod.CourseID == courseID && !mod.IsDeleted() {
			items = append(items, *it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

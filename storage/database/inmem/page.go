package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/darasa/core/page"
)

var pagePKCount int

type pageRepository struct {
	db *pageTable
}

var _ page.Repository = (*pageRepository)(nil)

func NewPageRepository(db *DB) *pageRepository {
	return &pageRepository{db: db.page}
}

func (repo *pageRepository) CreatePage(_ context.Context, pg page.Page) (page.Page, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	pagePKCount++
	pg.ID = pagePKCount
	stored := pg
	repo.db.table[pg.ID] = &stored
	return pg, nil
}

func (repo *pageRepository) GetPageBySlug(_ context.Context, courseID int, slug string) (page.Page, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, pg := range repo.db.table {
		if pg.CourseID == courseID && pg.URL == slug && !pg.IsDeleted() {
			return *pg, nil
		}
	}
	return page.Page{}, page.ErrNotFound
}

func (repo *pageRepository) GetFrontPage(_ context.Context, courseID int) (page.Page, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, pg := range repo.db.table {
		if pg.CourseID == courseID && pg.FrontPage && !pg.IsDeleted() {
			return *pg, nil
		}
	}
	return page.Page{}, page.ErrNotFound
}

func (repo *pageRepository) QueryPages(_ context.Context, courseID int, filter page.QueryFilter) ([]page.Page, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	pages := make([]page.Page, 0)
	for _, pg := range repo.db.table {
		if pg.CourseID != courseID || pg.IsDeleted() {
			continue
		}
		if !pg.IsActive() && !filter.IncludeUnpublished {
			continue
		}
		if pg.HideFromStudents && !filter.IncludeHidden {
			continue
		}
		cp := *pg
		cp.Body = "" // bodies are only loaded for single-page reads
		cp.Published = cp.IsActive()
		pages = append(pages, cp)
	}

	less := func(i, j int) bool { return pages[i].ID < pages[j].ID }
	switch filter.SortField {
	case "title":
		less = func(i, j int) bool { return strings.ToLower(pages[i].Title) < strings.ToLower(pages[j].Title) }
	case "created_at":
		less = func(i, j int) bool { return pages[i].CreatedAt.Before(pages[j].CreatedAt) }
	case "updated_at":
		less = func(i, j int) bool { return pages[i].UpdatedAt.Before(pages[j].UpdatedAt) }
	}
	if filter.Descending {
		asc := less
		less = func(i, j int) bool { return asc(j, i) }
	}
	sort.SliceStable(pages, less)
	return pages, nil
}

func (repo *pageRepository) UpdatePage(_ context.Context, pg page.Page) (page.Page, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[pg.ID]; !ok {
		return page.Page{}, page.ErrNotFound
	}
	stored := pg
	repo.db.table[pg.ID] = &stored
	return pg, nil
}

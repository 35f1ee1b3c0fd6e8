package inmemdb

import (
	"sync"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/page"
	"github.com/trezcool/darasa/core/user"
)

type (
	moduleTable struct {
		mutex sync.RWMutex
		table map[int]*course.Module
	}

	itemTable struct {
		mutex sync.RWMutex
		table map[int]*course.Item
	}

	pageTable struct {
		mutex sync.RWMutex
		table map[int]*page.Page
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	factKey struct {
		learnerID string
		itemID    int
	}

	factsTable struct {
		mutex sync.RWMutex
		table map[factKey]*course.Facts
	}

	progressKey struct {
		learnerID string
		moduleID  int
	}

	progressTable struct {
		mutex sync.RWMutex
		table map[progressKey]course.Progress
	}

	DB struct {
		module   *moduleTable
		item     *itemTable
		page     *pageTable
		user     *userTable
		facts    *factsTable
		progress *progressTable
	}
)

func Open() (*DB, error) {
	db := &DB{
		module:   &moduleTable{table: make(map[int]*course.Module)},
		item:     &itemTable{table: make(map[int]*course.Item)},
		page:     &pageTable{table: make(map[int]*page.Page)},
		user:     &userTable{table: make(map[string]*user.User)},
		facts:    &factsTable{table: make(map[factKey]*course.Facts)},
		progress: &progressTable{table: make(map[progressKey]course.Progress)},
	}
	return db, nil
}

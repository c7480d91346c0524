package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
)

type directory struct {
	db *DB
}

var _ school.Directory = (*directory)(nil)

func NewDirectory(db *DB) *directory {
	return &directory{db: db}
}

// AddTeacher stores or replaces a teacher.
func (db *DB) AddTeacher(t school.Teacher) school.Teacher {
	db.mu.Lock()
	defer db.mu.Unlock()
	t.Subjects = append([]string(nil), t.Subjects...)
	db.t.teachers[t.ID] = t
	return t
}

// AddClass stores or replaces a class.
func (db *DB) AddClass(c school.Class) school.Class {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t.classes[c.ID] = c
	return c
}

func (repo *directory) GetTeacher(_ context.Context, id string, _ ...core.DBExecutor) (school.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.teachers[id]; ok {
		return t, nil
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *directory) GetClass(_ context.Context, id string, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.t.classes[id]; ok {
		return c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *directory) ListClasses(_ context.Context, schoolID string, _ ...core.DBExecutor) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0)
	for _, c := range repo.db.t.classes {
		if c.SchoolID == schoolID {
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name != classes[j].Name {
			return classes[i].Name < classes[j].Name
		}
		return classes[i].ID < classes[j].ID
	})
	return classes, nil
}

func (repo *directory) ListTeachers(_ context.Context, schoolID string, _ ...core.DBExecutor) ([]school.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teachers := make([]school.Teacher, 0)
	for _, t := range repo.db.t.teachers {
		if t.SchoolID == schoolID {
			teachers = append(teachers, t)
		}
	}
	sort.Slice(teachers, func(i, j int) bool {
		if teachers[i].Name != teachers[j].Name {
			return teachers[i].Name < teachers[j].Name
		}
		return teachers[i].ID < teachers[j].ID
	})
	return teachers, nil
}

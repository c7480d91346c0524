package school

import (
	"context"
	"errors"

	"github.com/trezcool/ratiba/core"
)

var (
	// errors
	ErrTeacherNotFound = errors.New("teacher not found")
	ErrClassNotFound   = errors.New("class not found")
)

type (
	Teacher struct {
		ID               string   `json:"id"`
		SchoolID         string   `json:"school_id"`
		Name             string   `json:"name"`
		Email            string   `json:"email,omitempty"`
		Subjects         []string `json:"subjects"`
		MaxPeriodsPerDay int      `json:"max_periods_per_day"`
		IsActive         bool     `json:"is_active"`
	}

	Class struct {
		ID       string `json:"id"`
		SchoolID string `json:"school_id"`
		Name     string `json:"name"`
	}

	// Directory is the read side of the school administration records
	// (teachers and classes are managed elsewhere).
	Directory interface {
		GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (Teacher, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		// ListClasses returns the classes of a school ordered by name.
		ListClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]Class, error)
		// ListTeachers returns all teachers of a school, active or not, ordered by name.
		ListTeachers(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]Teacher, error)
	}
)

// Teaches reports whether the teacher is qualified for the subject.
// Teachers without declared subjects are qualified for none.
func (t Teacher) Teaches(subjectID string) bool {
	if subjectID == "" {
		return false
	}
	for _, s := range t.Subjects {
		if s == subjectID {
			return true
		}
	}
	return false
}

// FindTeacherByName looks a teacher up by case-insensitive name among `teachers`.
func FindTeacherByName(teachers []Teacher, name string) (Teacher, bool) {
	name = core.CleanString(name, true)
	for _, t := range teachers {
		if core.CleanString(t.Name, true) == name {
			return t, true
		}
	}
	return Teacher{}, false
}

// FindClassByName looks a class up by case-insensitive name among `classes`.
func FindClassByName(classes []Class, name string) (Class, bool) {
	name = core.CleanString(name, true)
	for _, c := range classes {
		if core.CleanString(c.Name, true) == name {
			return c, true
		}
	}
	return Class{}, false
}

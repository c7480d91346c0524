package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
)

const (
	teacherColumns = `id, school_id, name, email, subjects, max_periods_per_day, is_active`
	classColumns   = `id, school_id, name`
)

type teacherRow struct {
	ID               string         `db:"id"`
	SchoolID         string         `db:"school_id"`
	Name             string         `db:"name"`
	Email            string         `db:"email"`
	Subjects         pq.StringArray `db:"subjects"`
	MaxPeriodsPerDay int            `db:"max_periods_per_day"`
	IsActive         bool           `db:"is_active"`
}

func (r teacherRow) toTeacher() school.Teacher {
	return school.Teacher{
		ID:               r.ID,
		SchoolID:         r.SchoolID,
		Name:             r.Name,
		Email:            r.Email,
		Subjects:         append([]string{}, r.Subjects...),
		MaxPeriodsPerDay: r.MaxPeriodsPerDay,
		IsActive:         r.IsActive,
	}
}

type classRow struct {
	ID       string `db:"id"`
	SchoolID string `db:"school_id"`
	Name     string `db:"name"`
}

func (r classRow) toClass() school.Class {
	return school.Class{ID: r.ID, SchoolID: r.SchoolID, Name: r.Name}
}

type directory struct {
	base
}

var _ school.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(exec core.DBExecutor) *directory {
	return &directory{base{exec: exec}}
}

func (repo directory) GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (school.Teacher, error) {
	var rows []teacherRow
	q := `SELECT ` + teacherColumns + ` FROM teachers WHERE id = $1`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, id); err != nil {
		return school.Teacher{}, errors.Wrap(err, "finding teacher")
	}
	if len(rows) == 0 {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	return rows[0].toTeacher(), nil
}

func (repo directory) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	var rows []classRow
	q := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, id); err != nil {
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	if len(rows) == 0 {
		return school.Class{}, school.ErrClassNotFound
	}
	return rows[0].toClass(), nil
}

func (repo directory) ListClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]school.Class, error) {
	var rows []classRow
	q := `SELECT ` + classColumns + ` FROM classes WHERE school_id = $1 ORDER BY name, id`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.toClass())
	}
	return classes, nil
}

func (repo directory) ListTeachers(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]school.Teacher, error) {
	var rows []teacherRow
	q := `SELECT ` + teacherColumns + ` FROM teachers WHERE school_id = $1 ORDER BY name, id`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	teachers := make([]school.Teacher, 0, len(rows))
	for _, r := range rows {
		teachers = append(teachers, r.toTeacher())
	}
	return teachers, nil
}

package timetable

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

type (
	CandidateQuery struct {
		ClassID          string
		SubjectID        string
		ExcludeTeacherID string
		Day              Day
		Period           int
		WeekStart        time.Time
	}

	Candidate struct {
		TeacherID         string `json:"teacher_id"`
		Name              string `json:"name"`
		SubjectCompatible bool   `json:"subject_compatible"`
	}
)

// FindCandidates ranks the teachers who could cover (q.Day, q.Period) of the class in the given week.
// Teachers qualified for q.SubjectID come first, then everyone by name.
func (svc *Service) FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	return svc.findCandidates(ctx, q, nil, bookIgnore{})
}

func (svc *Service) findCandidates(
	ctx context.Context,
	q CandidateQuery,
	book *weekBook,
	ign bookIgnore,
	exec ...core.DBExecutor,
) ([]Candidate, error) {
	cls, err := svc.dir.GetClass(ctx, q.ClassID, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "getting class")
	}
	teachers, err := svc.dir.ListTeachers(ctx, cls.SchoolID, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}

	weekStart := WeekStart(q.WeekStart)
	date := DateOf(weekStart, q.Day)
	if book == nil {
		if book, err = svc.buildWeekBook(ctx, cls.SchoolID, weekStart, exec...); err != nil {
			return nil, errors.Wrap(err, "building week book")
		}
	}

	candidates := make([]Candidate, 0, len(teachers))
	for _, t := range teachers {
		if t.ID == q.ExcludeTeacherID {
			continue
		}
		ok, err := svc.isAvailable(ctx, t, q.Day, q.Period, date, book, ign, exec...)
		if err != nil {
			return nil, errors.Wrapf(err, "checking availability of teacher %s", t.ID)
		}
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			TeacherID:         t.ID,
			Name:              t.Name,
			SubjectCompatible: t.Teaches(q.SubjectID),
		})
	}
	sortCandidates(candidates)
	return candidates, nil
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SubjectCompatible != b.SubjectCompatible {
			return a.SubjectCompatible
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.TeacherID < b.TeacherID
	})
}

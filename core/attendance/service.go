package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
)

type Service struct {
	repo Repository
	dir  school.Directory
	now  func() time.Time
}

func NewService(repo Repository, dir school.Directory) *Service {
	return &Service{
		repo: repo,
		dir:  dir,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// MaxLeaveDays bounds the length of a leave range.
const MaxLeaveDays = 366

// Mark records the attendance and returns the status transition it caused for that date,
// plus the changes it caused on the dates of the leave ranges involved.
// A teacher without a record for the date is present.
func (svc *Service) Mark(ctx context.Context, m Mark) (Record, Transition, error) {
	date, err := time.Parse("2006-01-02", m.Date)
	if err != nil {
		return Record{}, Transition{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: "invalid date"})
	}
	if _, err = svc.dir.GetTeacher(ctx, m.TeacherID); err != nil {
		return Record{}, Transition{}, errors.Wrap(err, "getting teacher")
	}

	now := svc.now()
	rec := Record{
		ID:        uuid.New().String(),
		TeacherID: m.TeacherID,
		Date:      date,
		Status:    m.Status,
		Reason:    core.CleanString(m.Reason),
		MarkedBy:  m.MarkedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.LeaveFrom != "" && m.LeaveTo != "" {
		from, err := time.Parse("2006-01-02", m.LeaveFrom)
		if err != nil {
			return Record{}, Transition{}, core.NewValidationError(err, core.FieldError{Field: "leave_from", Error: "invalid date"})
		}
		to, err := time.Parse("2006-01-02", m.LeaveTo)
		if err != nil {
			return Record{}, Transition{}, core.NewValidationError(err, core.FieldError{Field: "leave_to", Error: "invalid date"})
		}
		if to.Sub(from) > MaxLeaveDays*24*time.Hour {
			return Record{}, Transition{}, core.NewValidationError(
				errors.New("leave range too long"),
				core.FieldError{Field: "leave_to", Error: fmt.Sprintf("leave range cannot exceed %d days", MaxLeaveDays)},
			)
		}
		rec.LeaveFrom, rec.LeaveTo = &from, &to
	}

	// the dates this mark can change: the new range and the range of the record it replaces
	dates := leaveDates(rec)
	if old, err := svc.repo.GetRecord(ctx, m.TeacherID, date); err == nil {
		dates = append(dates, leaveDates(old)...)
	} else if errors.Cause(err) != ErrNotFound {
		return Record{}, Transition{}, errors.Wrap(err, "getting attendance record")
	}
	dates = uniqueDates(date, dates)

	prev, err := svc.StatusOn(ctx, m.TeacherID, date)
	if err != nil {
		return Record{}, Transition{}, errors.Wrap(err, "getting previous status")
	}
	prevCovered := make([]Status, len(dates))
	for i, d := range dates {
		if prevCovered[i], err = svc.StatusOn(ctx, m.TeacherID, d); err != nil {
			return Record{}, Transition{}, errors.Wrap(err, "getting previous status")
		}
	}

	rec, err = svc.repo.UpsertRecord(ctx, rec)
	if err != nil {
		return Record{}, Transition{}, errors.Wrap(err, "upserting attendance record")
	}

	tr := Transition{
		TeacherID: rec.TeacherID,
		Date:      date,
		Previous:  prev,
		Current:   rec.Status,
		Reason:    rec.Reason,
		MarkedBy:  rec.MarkedBy,
	}
	for i, d := range dates {
		cur, err := svc.StatusOn(ctx, m.TeacherID, d)
		if err != nil {
			return Record{}, Transition{}, errors.Wrap(err, "getting current status")
		}
		if cur != prevCovered[i] {
			tr.Covered = append(tr.Covered, DateStatus{Date: d, Previous: prevCovered[i], Current: cur})
		}
	}
	return rec, tr, nil
}

// leaveDates returns every date of the record's leave range.
func leaveDates(r Record) []time.Time {
	if r.LeaveFrom == nil || r.LeaveTo == nil {
		return nil
	}
	var dates []time.Time
	for d, to := truncateDate(*r.LeaveFrom), truncateDate(*r.LeaveTo); !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// uniqueDates sorts and dedupes `dates`, leaving `exclude` out.
func uniqueDates(exclude time.Time, dates []time.Time) []time.Time {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := dates[:0]
	for _, d := range dates {
		if d.Equal(exclude) || (len(out) > 0 && out[len(out)-1].Equal(d)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// StatusOn returns the teacher's status for `date`, taking leave ranges into account.
func (svc *Service) StatusOn(ctx context.Context, teacherID string, date time.Time) (Status, error) {
	rec, err := svc.repo.FindCovering(ctx, teacherID, truncateDate(date))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return StatusPresent, nil
		}
		return "", errors.Wrap(err, "finding attendance record")
	}
	return rec.Status, nil
}

// Get returns the record marked for exactly `date`.
func (svc *Service) Get(ctx context.Context, teacherID string, date time.Time) (Record, error) {
	return svc.repo.GetRecord(ctx, teacherID, truncateDate(date))
}

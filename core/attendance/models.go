package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
)

var (
	// errors
	ErrNotFound = errors.New("attendance record not found")
)

// Status is a teacher's attendance status for one day.
type Status string

const (
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusLeave     Status = "leave"
	StatusSickLeave Status = "sick_leave"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLeave, StatusSickLeave}

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsAbsent reports whether the teacher is unavailable for teaching.
// An unknown (empty) status counts as present.
func (s Status) IsAbsent() bool {
	return s != "" && s != StatusPresent
}

type (
	Record struct {
		ID        string     `json:"id"`
		TeacherID string     `json:"teacher_id"`
		Date      time.Time  `json:"date"`
		Status    Status     `json:"status"`
		LeaveFrom *time.Time `json:"leave_from,omitempty"`
		LeaveTo   *time.Time `json:"leave_to,omitempty"`
		Reason    string     `json:"reason"`
		MarkedBy  string     `json:"marked_by"`
		CreatedAt time.Time  `json:"created_at"`
		UpdatedAt time.Time  `json:"updated_at"`
	}

	// Mark is a request to record a teacher's attendance for a date.
	Mark struct {
		TeacherID string `json:"teacher_id" validate:"required"`
		Date      string `json:"date" validate:"required,isodate"`
		Status    Status `json:"status" validate:"required,attendance_status"`
		LeaveFrom string `json:"leave_from" validate:"omitempty,isodate"`
		LeaveTo   string `json:"leave_to" validate:"omitempty,isodate"`
		Reason    string `json:"reason" validate:"max=500"`
		MarkedBy  string `json:"-"`
	}

	// Transition describes how a teacher's status for a date changed with a Mark.
	Transition struct {
		TeacherID string    `json:"teacher_id"`
		Date      time.Time `json:"date"`
		Previous  Status    `json:"previous"`
		Current   Status    `json:"current"`
		Reason    string    `json:"reason"`
		MarkedBy  string    `json:"marked_by"`

		// Covered lists the other dates whose status changed because a leave range was set, moved or dropped.
		Covered []DateStatus `json:"covered,omitempty"`
	}

	DateStatus struct {
		Date     time.Time `json:"date"`
		Previous Status    `json:"previous"`
		Current  Status    `json:"current"`
	}

	Repository interface {
		// GetRecord returns the record marked for exactly `date`.
		GetRecord(ctx context.Context, teacherID string, date time.Time, exec ...core.DBExecutor) (Record, error)
		// FindCovering returns the record for `date`, falling back to a leave record whose range covers it.
		FindCovering(ctx context.Context, teacherID string, date time.Time, exec ...core.DBExecutor) (Record, error)
		// UpsertRecord inserts the record or updates the one already marked for (TeacherID, Date).
		UpsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
	}
)

func (m Mark) Validate(validate *validator.Validate) error {
	return validate.Struct(m)
}

// Covers reports whether the record applies to `date`.
func (r Record) Covers(date time.Time) bool {
	date = truncateDate(date)
	if r.Date.Equal(date) {
		return true
	}
	if r.LeaveFrom == nil || r.LeaveTo == nil {
		return false
	}
	return !date.Before(truncateDate(*r.LeaveFrom)) && !date.After(truncateDate(*r.LeaveTo))
}

func (ds DateStatus) IsAbsenceStart() bool {
	return !ds.Previous.IsAbsent() && ds.Current.IsAbsent()
}

func (ds DateStatus) IsReturn() bool {
	return ds.Previous.IsAbsent() && !ds.Current.IsAbsent()
}

// IsAbsenceStart reports whether the teacher became absent on the marked date.
func (t Transition) IsAbsenceStart() bool {
	return DateStatus{Previous: t.Previous, Current: t.Current}.IsAbsenceStart()
}

// IsReturn reports whether the teacher came back on the marked date.
func (t Transition) IsReturn() bool {
	return DateStatus{Previous: t.Previous, Current: t.Current}.IsReturn()
}

// Dates returns the status change of the marked date followed by the covered ones.
func (t Transition) Dates() []DateStatus {
	dates := make([]DateStatus, 0, len(t.Covered)+1)
	dates = append(dates, DateStatus{Date: t.Date, Previous: t.Previous, Current: t.Current})
	return append(dates, t.Covered...)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

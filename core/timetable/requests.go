package timetable

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var (
	errInvalidSchedule = errors.New("invalid schedule")
	errInvalidSlot     = errors.New("invalid slot")
	errForeignTeacher  = errors.New("teacher belongs to another school")
)

type (
	SlotInput struct {
		Day       Day    `json:"day" validate:"required,weekday"`
		Period    int    `json:"period" validate:"required,min=1,max=24"`
		TeacherID string `json:"teacher_id" validate:"required"`
		SubjectID string `json:"subject_id" validate:"required"`
		StartTime string `json:"start_time" validate:"required,hhmm"`
		EndTime   string `json:"end_time" validate:"required,hhmm"`
		Room      string `json:"room" validate:"max=64"`
	}

	// ReplaceSchedule replaces the whole global timetable of a class with a new version.
	ReplaceSchedule struct {
		ClassID   string      `json:"-"`
		Name      string      `json:"name" validate:"max=255"`
		WeekStart string      `json:"week_start" validate:"omitempty,isodate"`
		Slots     []SlotInput `json:"slots" validate:"required,dive"`
		By        string      `json:"-"`
	}

	// SlotEdit changes one period of a weekly override.
	// Nil TeacherID and SubjectID remove the period from the week.
	SlotEdit struct {
		TeacherID *string `json:"teacher_id"`
		SubjectID *string `json:"subject_id"`
		StartTime string  `json:"start_time" validate:"omitempty,hhmm"`
		EndTime   string  `json:"end_time" validate:"omitempty,hhmm"`
		Room      *string `json:"room" validate:"omitempty,max=64"`
		Reason    string  `json:"reason" validate:"max=500"`
	}

	// NewSubstitution is a manually proposed substitution.
	NewSubstitution struct {
		ClassID             string `json:"class_id" validate:"required"`
		Date                string `json:"date" validate:"required,isodate"`
		Period              int    `json:"period" validate:"required,min=1"`
		SubstituteTeacherID string `json:"substitute_teacher_id" validate:"required"`
		Reason              string `json:"reason" validate:"max=500"`
		By                  string `json:"-"`
	}

	// ApproveSubstitution confirms a substitution, optionally picking another substitute.
	ApproveSubstitution struct {
		SubstituteTeacherID string `json:"substitute_teacher_id"`
		By                  string `json:"-"`
	}

	RejectSubstitution struct {
		Reason string `json:"reason" validate:"max=500"`
		By     string `json:"-"`
	}
)

func (r ReplaceSchedule) Validate(validate *validator.Validate) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	seen := make(map[SlotKey]int, len(r.Slots))
	var flds []core.FieldError
	for i, s := range r.Slots {
		key := SlotKey{Day: s.Day, Period: s.Period}
		if j, ok := seen[key]; ok {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("slots[%d]", i),
				Error: fmt.Sprintf("duplicates slots[%d] (%s period %d)", j, s.Day, s.Period),
			})
			continue
		}
		seen[key] = i
		if s.EndTime <= s.StartTime {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("slots[%d].end_time", i),
				Error: "end_time must be after start_time",
			})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errInvalidSchedule, flds...)
	}
	return nil
}

func (e SlotEdit) Validate(validate *validator.Validate) error {
	if err := validate.Struct(e); err != nil {
		return err
	}
	if e.TeacherID != nil && e.SubjectID == nil {
		return core.NewValidationError(errInvalidSlot, core.FieldError{
			Field: "subject_id", Error: "subject_id is required with teacher_id",
		})
	}
	if e.StartTime != "" && e.EndTime != "" && e.EndTime <= e.StartTime {
		return core.NewValidationError(errInvalidSlot, core.FieldError{
			Field: "end_time", Error: "end_time must be after start_time",
		})
	}
	return nil
}

func (n NewSubstitution) Validate(validate *validator.Validate) error {
	return validate.Struct(n)
}

func (r RejectSubstitution) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

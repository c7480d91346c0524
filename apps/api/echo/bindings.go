package echoapi

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

var (
	errInvalidParam = errors.New("invalid path parameter")
)

type (
	// CandidatesRequest is bound from the query string of GET /classes/:classID/candidates.
	CandidatesRequest struct {
		Day              string `query:"day" validate:"required,weekday"`
		Period           int    `query:"period" validate:"required,min=1"`
		WeekStart        string `query:"week_start" validate:"required,isodate"`
		SubjectID        string `query:"subject_id"`
		ExcludeTeacherID string `query:"exclude_teacher_id"`
	}

	AvailabilityRequest struct {
		Day    string `query:"day" validate:"required,weekday"`
		Period int    `query:"period" validate:"required,min=1"`
		Date   string `query:"date" validate:"required,isodate"`
	}

	AvailabilityResponse struct {
		TeacherID string        `json:"teacher_id"`
		Day       timetable.Day `json:"day"`
		Period    int           `json:"period"`
		Date      string        `json:"date"`
		Available bool          `json:"available"`
	}

	SubstitutionsRequest struct {
		Date   string `query:"date" validate:"omitempty,isodate"`
		Status string `query:"status" validate:"omitempty,oneof=pending confirmed auto_assigned rejected"`
	}

	ChangesRequest struct {
		Date string `query:"date" validate:"omitempty,isodate"`
	}

	PreviewResponse struct {
		Diff string `json:"diff"`
	}
)

func (r CandidatesRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r AvailabilityRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r SubstitutionsRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r ChangesRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func paramErr(name, msg string) error {
	return core.NewValidationError(errInvalidParam, core.FieldError{Field: name, Error: msg})
}

func weekStartParam(ctx echo.Context) (time.Time, error) {
	d, err := timetable.ParseDate(ctx.Param("weekStart"))
	if err != nil {
		return time.Time{}, paramErr("week_start", "invalid date")
	}
	return timetable.WeekStart(d), nil
}

func dayParam(ctx echo.Context) (timetable.Day, error) {
	day, ok := timetable.ParseDay(ctx.Param("day"))
	if !ok {
		return "", paramErr("day", "invalid day")
	}
	return day, nil
}

func periodParam(ctx echo.Context) (int, error) {
	period, err := strconv.Atoi(ctx.Param("period"))
	if err != nil || period < 1 {
		return 0, paramErr("period", "invalid period")
	}
	return period, nil
}

// optionalDate parses a YYYY-MM-DD value that was already validated; "" yields nil.
func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	d, err := timetable.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

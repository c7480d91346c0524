package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
)

var (
	statusTag  = "attendance_status"
	statusText = "{0} must be one of present, absent, leave or sick_leave"

	leaveRangeTag  = "leave_range"
	leaveRangeText = "leave range must have both ends, be ordered and contain the marked date"
)

// InitValidators registers the attendance validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	validate.RegisterStructValidation(markStructValidation, Mark{})
	core.RegisterCustomTranslation(validate, translator, leaveRangeTag, leaveRangeText)
}

// statusValidation checks that the status is a known attendance status
func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).IsValid()
}

// markStructValidation checks the optional leave range of a Mark.
// Dates are validated as YYYY-MM-DD beforehand, so they compare lexically.
func markStructValidation(sl validator.StructLevel) {
	m, ok := sl.Current().Interface().(Mark)
	if !ok || (m.LeaveFrom == "" && m.LeaveTo == "") {
		return
	}
	if m.LeaveFrom == "" || m.LeaveTo == "" ||
		m.LeaveFrom > m.LeaveTo || m.Date < m.LeaveFrom || m.Date > m.LeaveTo {
		sl.ReportError(m.LeaveTo, "leave_to", "LeaveTo", leaveRangeTag, "")
	}
}

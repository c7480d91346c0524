package timetable_test

import (
	"context"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/tests"
)

const admin = "admin-1"

var ctx = context.Background()

func replaceSchedule(t *testing.T, f *testutil.Fixture, cls school.Class, slots ...timetable.SlotInput) timetable.Version {
	t.Helper()
	v, err := f.Timetable.ReplaceGlobalSchedule(ctx, timetable.ReplaceSchedule{
		ClassID: cls.ID,
		Name:    "Term 1",
		Slots:   slots,
		By:      admin,
	})
	require.NoError(t, err)
	return v
}

func mark(t *testing.T, f *testutil.Fixture, teacherID, date string, status attendance.Status) attendance.Transition {
	t.Helper()
	_, tr, err := f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: teacherID,
		Date:      date,
		Status:    status,
		Reason:    "flu",
		MarkedBy:  admin,
	})
	require.NoError(t, err)
	return tr
}

// markAbsent marks the teacher absent and runs the absence repair.
func markAbsent(t *testing.T, f *testutil.Fixture, teacherID, date string) timetable.Report {
	t.Helper()
	tr := mark(t, f, teacherID, date, attendance.StatusAbsent)
	require.True(t, tr.IsAbsenceStart())
	report, err := f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	return report
}

func substitutionsOn(t *testing.T, f *testutil.Fixture, date string) []timetable.Substitution {
	t.Helper()
	d := testutil.Date(t, date)
	subs, err := f.Timetable.ListSubstitutions(ctx, timetable.SubstitutionQuery{SchoolID: testutil.SchoolID, Date: &d})
	require.NoError(t, err)
	return subs
}

func strPtr(s string) *string {
	return &s
}

func newValidator() *validator.Validate {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

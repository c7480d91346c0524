package attendance_test

import (
	"context"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/tests"
)

func TestService_Mark(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	tom := f.AddTeacher("Tom", "math")

	tests := []struct {
		name     string
		status   attendance.Status
		wantPrev attendance.Status
		start    bool
		ret      bool
	}{
		{name: "first mark", status: attendance.StatusPresent, wantPrev: attendance.StatusPresent},
		{name: "absence starts", status: attendance.StatusAbsent, wantPrev: attendance.StatusPresent, start: true},
		{name: "still away", status: attendance.StatusSickLeave, wantPrev: attendance.StatusAbsent},
		{name: "returns", status: attendance.StatusPresent, wantPrev: attendance.StatusSickLeave, ret: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, tr, err := f.Attendance.Mark(ctx, attendance.Mark{
				TeacherID: tom.ID,
				Date:      "2024-01-15",
				Status:    tt.status,
				Reason:    " flu ",
				MarkedBy:  "admin",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, "flu", rec.Reason)
			assert.Equal(t, tt.wantPrev, tr.Previous)
			assert.Equal(t, tt.status, tr.Current)
			assert.Equal(t, tt.start, tr.IsAbsenceStart())
			assert.Equal(t, tt.ret, tr.IsReturn())
		})
	}

	// one record per (teacher, date)
	rec, err := f.Attendance.Get(ctx, tom.ID, testutil.Date(t, "2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)

	_, err = f.Attendance.Get(ctx, tom.ID, testutil.Date(t, "2024-01-16"))
	assert.Equal(t, attendance.ErrNotFound, errors.Cause(err))

	_, _, err = f.Attendance.Mark(ctx, attendance.Mark{TeacherID: "lol", Date: "2024-01-15", Status: attendance.StatusAbsent})
	assert.Equal(t, school.ErrTeacherNotFound, errors.Cause(err))

	_, _, err = f.Attendance.Mark(ctx, attendance.Mark{TeacherID: tom.ID, Date: "15/01/2024", Status: attendance.StatusAbsent})
	assert.True(t, core.IsValidationError(err))
}

func TestService_StatusOn_leaveRange(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	tom := f.AddTeacher("Tom", "math")

	_, tr, err := f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: tom.ID,
		Date:      "2024-01-16",
		Status:    attendance.StatusLeave,
		LeaveFrom: "2024-01-15",
		LeaveTo:   "2024-01-17",
	})
	require.NoError(t, err)
	assert.True(t, tr.IsAbsenceStart())

	// a day-specific record wins over the covering leave
	_, tr, err = f.Attendance.Mark(ctx, attendance.Mark{TeacherID: tom.ID, Date: "2024-01-17", Status: attendance.StatusPresent})
	require.NoError(t, err)
	assert.True(t, tr.IsReturn())

	tests := []struct {
		date string
		want attendance.Status
	}{
		{date: "2024-01-14", want: attendance.StatusPresent},
		{date: "2024-01-15", want: attendance.StatusLeave},
		{date: "2024-01-16", want: attendance.StatusLeave},
		{date: "2024-01-17", want: attendance.StatusPresent},
		{date: "2024-01-18", want: attendance.StatusPresent},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, err := f.Attendance.StatusOn(ctx, tom.ID, testutil.Date(t, tt.date))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Mark_coveredDates(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFixture(t)
	tom := f.AddTeacher("Tom", "math")

	dates := func(tr attendance.Transition) map[string]attendance.DateStatus {
		got := make(map[string]attendance.DateStatus)
		for _, ds := range tr.Covered {
			got[ds.Date.Format("2006-01-02")] = ds
		}
		return got
	}

	// tuesday already has its own record, so the leave does not change it
	_, _, err := f.Attendance.Mark(ctx, attendance.Mark{TeacherID: tom.ID, Date: "2024-01-16", Status: attendance.StatusAbsent})
	require.NoError(t, err)

	_, tr, err := f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: tom.ID,
		Date:      "2024-01-15",
		Status:    attendance.StatusLeave,
		LeaveFrom: "2024-01-15",
		LeaveTo:   "2024-01-17",
	})
	require.NoError(t, err)
	assert.True(t, tr.IsAbsenceStart())
	covered := dates(tr)
	require.Len(t, covered, 1)
	assert.Equal(t, attendance.StatusPresent, covered["2024-01-17"].Previous)
	assert.Equal(t, attendance.StatusLeave, covered["2024-01-17"].Current)
	assert.True(t, covered["2024-01-17"].IsAbsenceStart())
	require.Len(t, tr.Dates(), 2)
	assert.Equal(t, testutil.Date(t, "2024-01-15"), tr.Dates()[0].Date)

	// moving the range ends it on wednesday and extends it to thursday
	_, tr, err = f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: tom.ID,
		Date:      "2024-01-15",
		Status:    attendance.StatusLeave,
		LeaveFrom: "2024-01-15",
		LeaveTo:   "2024-01-16",
	})
	require.NoError(t, err)
	assert.False(t, tr.IsAbsenceStart())
	covered = dates(tr)
	require.Len(t, covered, 1)
	assert.True(t, covered["2024-01-17"].IsReturn())

	// replacing the leave record drops the whole range
	_, tr, err = f.Attendance.Mark(ctx, attendance.Mark{TeacherID: tom.ID, Date: "2024-01-15", Status: attendance.StatusPresent})
	require.NoError(t, err)
	assert.True(t, tr.IsReturn())
	assert.Empty(t, tr.Covered) // tuesday keeps its own absent record

	_, _, err = f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: tom.ID,
		Date:      "2024-01-15",
		Status:    attendance.StatusLeave,
		LeaveFrom: "2024-01-15",
		LeaveTo:   "2025-03-15",
	})
	assert.True(t, core.IsValidationError(err))
}

func TestMark_Validate(t *testing.T) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	valid := attendance.Mark{TeacherID: "t1", Date: "2024-01-16", Status: attendance.StatusLeave}
	withRange := func(from, to string) attendance.Mark {
		m := valid
		m.LeaveFrom, m.LeaveTo = from, to
		return m
	}

	tests := []struct {
		name      string
		m         attendance.Mark
		wantField string
		wantMsg   string
	}{
		{name: "valid", m: valid},
		{name: "valid range", m: withRange("2024-01-15", "2024-01-19")},
		{name: "required", m: attendance.Mark{}, wantField: "teacher_id", wantMsg: "this field is required"},
		{
			name: "unknown status", m: attendance.Mark{TeacherID: "t1", Date: "2024-01-16", Status: "holiday"},
			wantField: "status", wantMsg: "status must be one of present, absent, leave or sick_leave",
		},
		{
			name: "bad date", m: attendance.Mark{TeacherID: "t1", Date: "16-01-2024", Status: attendance.StatusAbsent},
			wantField: "date", wantMsg: "date must be a date formatted as YYYY-MM-DD",
		},
		{name: "open range", m: withRange("2024-01-15", ""), wantField: "leave_to"},
		{name: "inverted range", m: withRange("2024-01-19", "2024-01-15"), wantField: "leave_to"},
		{name: "date outside range", m: withRange("2024-01-17", "2024-01-19"), wantField: "leave_to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "Validate() error = %v", err)
			msgs := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				msgs[fe.Field()] = fe.Translate(translator)
			}
			require.Contains(t, msgs, tt.wantField)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, msgs[tt.wantField])
			}
		})
	}
}

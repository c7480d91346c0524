package xlsx

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
	testutil "github.com/trezcool/ratiba/tests"
)

func newWorkbook(t *testing.T, sheets map[string][][]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

var header = []interface{}{"Day", "Period", "Start", "End", "Subject", "Teacher", "Room"}

func TestImporter_Parse(t *testing.T) {
	fx := testutil.NewFixture(t)
	alice := fx.AddTeacher("Alice", "math")
	bob := fx.AddTeacher("Bob", "physics")
	cls := fx.AddClass("7A")
	imp := NewImporter(fx.Directory, fx.Logger)

	wb := newWorkbook(t, map[string][][]interface{}{
		"7a": {
			header,
			{"Monday", 1, "8:00", "8:45", "math", "alice", "R1"},
			{},
			{"TUESDAY", 2, "09:00", "09:45", "physics", "Bob"},
		},
		"Staff room": {{"notes"}},
	})

	schedules, err := imp.Parse(context.Background(), wb, testutil.SchoolID, "admin")
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	rs := schedules[0]
	assert.Equal(t, cls.ID, rs.ClassID)
	assert.Equal(t, "admin", rs.By)
	assert.Equal(t, []timetable.SlotInput{
		{Day: timetable.Monday, Period: 1, TeacherID: alice.ID, SubjectID: "math", StartTime: "08:00", EndTime: "08:45", Room: "R1"},
		{Day: timetable.Tuesday, Period: 2, TeacherID: bob.ID, SubjectID: "physics", StartTime: "09:00", EndTime: "09:45"},
	}, rs.Slots)
}

func TestImporter_Parse_invalidRows(t *testing.T) {
	fx := testutil.NewFixture(t)
	fx.AddTeacher("Alice", "math")
	fx.AddClass("7A")
	imp := NewImporter(fx.Directory, fx.Logger)

	wb := newWorkbook(t, map[string][][]interface{}{
		"7A": {
			header,
			{"Someday", 1, "08:00", "08:45", "math", "Alice"},
			{"Monday", 2, "08:00", "08:45", "math", "Carol"},
			{"Monday", 3, "late", "08:45", "math", "Alice"},
		},
	})

	_, err := imp.Parse(context.Background(), wb, testutil.SchoolID, "admin")
	require.Error(t, err)
	require.True(t, core.IsValidationError(err))

	verr := err.(*core.ValidationError)
	assert.Equal(t, []core.FieldError{
		{Field: "7A!A2", Error: `invalid day "Someday"`},
		{Field: "7A!F3", Error: `unknown teacher "Carol"`},
		{Field: "7A!C4", Error: `invalid time "late"`},
	}, verr.Fields)
}

func TestImporter_Parse_missingColumns(t *testing.T) {
	fx := testutil.NewFixture(t)
	fx.AddClass("7A")
	imp := NewImporter(fx.Directory, fx.Logger)

	wb := newWorkbook(t, map[string][][]interface{}{
		"7A": {{"Day", "Period", "Start", "End", "Subject"}},
	})

	_, err := imp.Parse(context.Background(), wb, testutil.SchoolID, "admin")
	require.Error(t, err)
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, []core.FieldError{{Field: "7A", Error: `missing "teacher" column`}}, verr.Fields)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"8:00", "08:00", true},
		{"13:05", "13:05", true},
		{"25:00", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := parseClock(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

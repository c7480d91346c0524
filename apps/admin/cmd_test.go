package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/services/xlsx"
	"github.com/trezcool/ratiba/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Fixture, *bytes.Buffer) {
	f := testutil.NewFixture(t)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	out := new(bytes.Buffer)
	return &commandLine{
		logger:    f.Logger,
		validate:  validate,
		importer:  xlsx.NewImporter(f.Directory, f.Logger),
		timetable: f.Timetable,
		out:       out,
	}, f, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if errors.Cause(err) != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "substitution_notes", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

// writeWorkbook saves a one-sheet timetable workbook and returns its path.
func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()

	require.NoError(t, wb.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "timetable.xlsx")
	require.NoError(t, wb.SaveAs(path))
	return path
}

func Test_commandLine_importTimetable(t *testing.T) {
	cli, f, out := setup(t)
	cls := f.AddClass("7A")
	alice := f.AddTeacher("Alice", "math")
	f.AddTeacher("Bob", "physics")

	header := []interface{}{"Day", "Period", "Start", "End", "Subject", "Teacher", "Room"}
	valid := writeWorkbook(t, "7A", [][]interface{}{
		header,
		{"Monday", 1, "8:00", "8:45", "math", "Alice", "R1"},
		{"Tuesday", 2, "09:00", "09:45", "physics", "Bob"},
	})
	duplicate := writeWorkbook(t, "7A", [][]interface{}{
		header,
		{"Monday", 1, "8:00", "8:45", "math", "Alice"},
		{"Monday", 1, "9:00", "9:45", "math", "Alice"},
	})
	unknown := writeWorkbook(t, "7A", [][]interface{}{
		header,
		{"Monday", 1, "8:00", "8:45", "math", "Carol"},
	})

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"importtimetable"}, wantErr: errHelp},
		{name: "no school", args: []string{"importtimetable", "-file", valid}, wantErr: errHelp},
	})

	for _, path := range []string{unknown, duplicate, filepath.Join(t.TempDir(), "lol.xlsx")} {
		assert.Error(t, cli.run([]string{"admin", "importtimetable", "-file", path, "-school", testutil.SchoolID}))
	}
	// nothing was imported by the failed runs
	versions, err := f.Timetable.Versions(context.Background(), cls.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	err = cli.run([]string{"admin", "importtimetable", "-file", valid, "-school", testutil.SchoolID, "-week", "2024-01-24", "-by", "admin-1"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Imported 7A: version ")
	assert.Contains(t, out.String(), "2 slots from 2024-01-22")

	slots, err := f.Timetable.GlobalSchedule(context.Background(), cls.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, alice.ID, slots[0].TeacherID)
	assert.Equal(t, "R1", core.StringVal(slots[0].Room))

	versions, err = f.Timetable.Versions(context.Background(), cls.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "admin-1", versions[0].CreatedBy)
	assert.Equal(t, testutil.Date(t, "2024-01-22"), versions[0].WeekStart)
}

func Test_commandLine_promote(t *testing.T) {
	cli, f, out := setup(t)
	ctx := context.Background()
	cls := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	sam := f.AddTeacher("Sam", "math")
	_, err := f.Timetable.ReplaceGlobalSchedule(ctx, timetable.ReplaceSchedule{
		ClassID: cls.ID,
		Slots:   []timetable.SlotInput{testutil.Slot(timetable.Monday, 1, tom.ID, "math")},
	})
	require.NoError(t, err)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"promote"}, wantErr: errHelp},
		{name: "no week", args: []string{"promote", "-class", cls.ID}, wantErr: errHelp},
		{name: "unknown class", args: []string{"promote", "-class", "lol", "-week", "2024-01-15"}, wantErr: school.ErrClassNotFound},
		{name: "no override", args: []string{"promote", "-class", cls.ID, "-week", "2024-01-15"}, wantErr: timetable.ErrNotFound},
	})
	assert.True(t, core.IsValidationError(cli.run([]string{"admin", "promote", "-class", cls.ID, "-week", "lol"})))

	sub := sam.ID
	subject := "math"
	_, err = f.Timetable.EditSlot(ctx, timetable.EditSlotRequest{
		ClassID:   cls.ID,
		WeekStart: testutil.Date(t, "2024-01-15"),
		Day:       timetable.Monday,
		Period:    1,
		Edit:      timetable.SlotEdit{TeacherID: &sub, SubjectID: &subject},
		By:        "admin-1",
	})
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "promote", "-class", cls.ID, "-week", "2024-01-17", "-preview"}))
	assert.Contains(t, out.String(), "--- global\n+++ week of 2024-01-15\n")
	assert.Contains(t, out.String(), "teacher="+sam.ID)

	// previewing changes nothing
	slots, err := f.Timetable.GlobalSchedule(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, tom.ID, slots[0].TeacherID)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "promote", "-class", cls.ID, "-week", "2024-01-15", "-by", "admin-1"}))
	assert.Contains(t, out.String(), "Promoted from week of 2024-01-15: version ")

	slots, err = f.Timetable.GlobalSchedule(ctx, cls.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, sam.ID, slots[0].TeacherID)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "promote", "-class", cls.ID, "-week", "2024-01-15", "-preview"}))
	assert.Equal(t, "nothing to promote\n", out.String())
}

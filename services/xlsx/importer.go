// Package xlsx reads class timetables from Excel workbooks.
//
// Each sheet holds the timetable of the class it is named after, one slot per row,
// under a header row naming the columns: day, period, start, end, subject, teacher and (optionally) room.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
)

var (
	// errors
	ErrInvalidWorkbook = errors.New("invalid timetable workbook")
)

const (
	colDay     = "day"
	colPeriod  = "period"
	colStart   = "start"
	colEnd     = "end"
	colSubject = "subject"
	colTeacher = "teacher"
	colRoom    = "room"
)

var requiredColumns = []string{colDay, colPeriod, colStart, colEnd, colSubject, colTeacher}

type Importer struct {
	dir    school.Directory
	logger core.Logger
}

func NewImporter(dir school.Directory, logger core.Logger) *Importer {
	return &Importer{dir: dir, logger: logger}
}

// Parse reads one ReplaceSchedule per sheet named after a class of the school.
// Sheets matching no class are skipped; rows naming unknown teachers fail the whole workbook.
func (imp *Importer) Parse(ctx context.Context, r io.Reader, schoolID, by string) ([]timetable.ReplaceSchedule, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	classes, err := imp.dir.ListClasses(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}
	teachers, err := imp.dir.ListTeachers(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}

	var (
		schedules []timetable.ReplaceSchedule
		flds      []core.FieldError
	)
	for _, sheet := range f.GetSheetList() {
		cls, ok := school.FindClassByName(classes, sheet)
		if !ok {
			imp.logger.Warn(fmt.Sprintf("skipping sheet %q: no such class", sheet))
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrapf(err, "reading sheet %q", sheet)
		}

		slots, sheetFlds := parseSheet(sheet, rows, teachers)
		flds = append(flds, sheetFlds...)
		schedules = append(schedules, timetable.ReplaceSchedule{
			ClassID: cls.ID,
			Name:    fmt.Sprintf("Imported %s", cls.Name),
			Slots:   slots,
			By:      by,
		})
	}

	if len(flds) > 0 {
		return nil, core.NewValidationError(ErrInvalidWorkbook, flds...)
	}
	return schedules, nil
}

func parseSheet(sheet string, rows [][]string, teachers []school.Teacher) ([]timetable.SlotInput, []core.FieldError) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[core.CleanString(h, true)] = i
	}
	var flds []core.FieldError
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			flds = append(flds, core.FieldError{Field: sheet, Error: fmt.Sprintf("missing %q column", c)})
		}
	}
	if len(flds) > 0 {
		return nil, flds
	}

	slots := make([]timetable.SlotInput, 0, len(rows)-1)
	for i, row := range rows[1:] {
		cell := func(col string) string {
			idx, ok := cols[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if cell(colDay) == "" && cell(colPeriod) == "" {
			continue // blank row
		}

		ref := func(col string) string {
			name, _ := excelize.CoordinatesToCellName(cols[col]+1, i+2)
			return sheet + "!" + name
		}
		fail := func(col, msg string) {
			flds = append(flds, core.FieldError{Field: ref(col), Error: msg})
		}

		day, ok := timetable.ParseDay(cell(colDay))
		if !ok {
			fail(colDay, fmt.Sprintf("invalid day %q", cell(colDay)))
			continue
		}
		period, err := strconv.Atoi(cell(colPeriod))
		if err != nil || period < 1 {
			fail(colPeriod, fmt.Sprintf("invalid period %q", cell(colPeriod)))
			continue
		}
		start, ok := parseClock(cell(colStart))
		if !ok {
			fail(colStart, fmt.Sprintf("invalid time %q", cell(colStart)))
			continue
		}
		end, ok := parseClock(cell(colEnd))
		if !ok {
			fail(colEnd, fmt.Sprintf("invalid time %q", cell(colEnd)))
			continue
		}
		subject := cell(colSubject)
		if subject == "" {
			fail(colSubject, "subject is required")
			continue
		}
		t, ok := school.FindTeacherByName(teachers, cell(colTeacher))
		if !ok {
			fail(colTeacher, fmt.Sprintf("unknown teacher %q", cell(colTeacher)))
			continue
		}

		slots = append(slots, timetable.SlotInput{
			Day:       day,
			Period:    period,
			TeacherID: t.ID,
			SubjectID: subject,
			StartTime: start,
			EndTime:   end,
			Room:      cell(colRoom),
		})
	}
	return slots, flds
}

// parseClock normalizes "8:00" and "08:00" to "08:00".
func parseClock(s string) (string, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// importTimetable replaces the global timetable of every class found in the workbook.
// The workbook is checked as a whole before any class is touched.
func (cli *commandLine) importTimetable(ctx context.Context, path, schoolID, week, by string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	schedules, err := cli.importer.Parse(ctx, f, schoolID, by)
	if err != nil {
		return errors.Wrap(err, "parsing workbook")
	}
	for i := range schedules {
		schedules[i].WeekStart = week
		if err = schedules[i].Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "validating %q", schedules[i].Name)
		}
	}

	for _, rs := range schedules {
		v, err := cli.timetable.ReplaceGlobalSchedule(ctx, rs)
		if err != nil {
			return errors.Wrapf(err, "replacing schedule of class %s", rs.ClassID)
		}
		_, _ = fmt.Fprintf(cli.out, "%s: version %s, %d slots from %s\n",
			v.Name, v.ID, len(v.Slots), v.WeekStart.Format("2006-01-02"))
	}
	cli.logger.Info(fmt.Sprintf("imported %d class timetables from %s", len(schedules), path))
	return nil
}

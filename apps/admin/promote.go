package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

func (cli *commandLine) promote(ctx context.Context, classID, week, by string, preview bool) error {
	date, err := timetable.ParseDate(week)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "week", Error: "invalid date"})
	}

	if preview {
		diff, err := cli.timetable.PreviewPromotion(ctx, classID, date)
		if err != nil {
			return errors.Wrap(err, "previewing promotion")
		}
		if diff == "" {
			diff = "nothing to promote\n"
		}
		_, _ = fmt.Fprint(cli.out, diff)
		return nil
	}

	v, err := cli.timetable.Promote(ctx, classID, date, by)
	if err != nil {
		return errors.Wrap(err, "promoting weekly override")
	}
	_, _ = fmt.Fprintf(cli.out, "%s: version %s, %d slots\n", v.Name, v.ID, len(v.Slots))
	return nil
}

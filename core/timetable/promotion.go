package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/audit"
)

// Promote turns the class's weekly override into its new global timetable.
// Cancelled and unstaffed periods are dropped. The override is marked promoted.
func (svc *Service) Promote(ctx context.Context, classID string, weekStart time.Time, by string) (Version, error) {
	cls, err := svc.dir.GetClass(ctx, classID)
	if err != nil {
		return Version{}, errors.Wrap(err, "getting class")
	}
	weekStart = WeekStart(weekStart)

	var v Version
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		ov, err := svc.repo.LockWeeklyOverride(ctx, cls.ID, weekStart, exec)
		if err != nil {
			return errors.Wrap(err, "locking weekly override")
		}

		now := svc.now()
		v = Version{
			ID:        newID(),
			ClassID:   cls.ID,
			Name:      fmt.Sprintf("Promoted from week of %s", weekStart.Format(DateLayout)),
			WeekStart: ov.WeekStart,
			WeekEnd:   ov.WeekEnd,
			IsActive:  true,
			CreatedBy: by,
			CreatedAt: now,
		}
		for _, e := range ov.Entries {
			if !e.IsScheduled() {
				continue
			}
			v.Slots = append(v.Slots, Slot{
				ID:        newID(),
				ClassID:   cls.ID,
				VersionID: v.ID,
				Day:       e.Day,
				Period:    e.Period,
				TeacherID: *e.TeacherID,
				SubjectID: *e.SubjectID,
				StartTime: e.StartTime,
				EndTime:   e.EndTime,
				Room:      e.Room,
				IsActive:  true,
				CreatedAt: now,
			})
		}
		if err = svc.storeVersion(ctx, v, exec); err != nil {
			return err
		}

		ov.PromotedAt = &now
		ov.PromotedBy = core.StringPtr(by)
		ov.UpdatedAt = now
		return errors.Wrap(svc.repo.SaveWeeklyOverride(ctx, ov, exec), "saving weekly override")
	})
	if err != nil {
		return Version{}, err
	}

	svc.audit.Record(ctx, audit.Entry{
		SchoolID:   cls.SchoolID,
		UserID:     by,
		Action:     audit.ActionOverridePromote,
		EntityType: audit.EntityVersion,
		EntityID:   v.ID,
		Description: fmt.Sprintf("%s week of %s promoted to the global schedule (%d slots)",
			cls.Name, weekStart.Format(DateLayout), len(v.Slots)),
	})
	return v, nil
}

// PreviewPromotion returns a unified diff from the class's global timetable to its weekly override.
// An empty diff means promoting would change nothing.
func (svc *Service) PreviewPromotion(ctx context.Context, classID string, weekStart time.Time) (string, error) {
	if _, err := svc.dir.GetClass(ctx, classID); err != nil {
		return "", errors.Wrap(err, "getting class")
	}
	weekStart = WeekStart(weekStart)

	ov, err := svc.repo.GetWeeklyOverride(ctx, classID, weekStart)
	if err != nil {
		return "", errors.Wrap(err, "getting weekly override")
	}
	slots, err := svc.repo.QueryActiveSlots(ctx, classID)
	if err != nil {
		return "", errors.Wrap(err, "querying active slots")
	}

	global := make([]string, 0, len(slots))
	for _, s := range slots {
		global = append(global, formatEntry(entryFromSlot(s)))
	}
	week := make([]string, 0, len(ov.Entries))
	for _, e := range ov.Entries {
		if e.IsScheduled() {
			week = append(week, formatEntry(e))
		}
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        global,
		B:        week,
		FromFile: "global",
		ToFile:   "week of " + weekStart.Format(DateLayout),
		Context:  1,
	})
	return diff, errors.Wrap(err, "diffing schedules")
}

func formatEntry(e OverrideEntry) string {
	return fmt.Sprintf("%-9s P%-2d %s-%s teacher=%s subject=%s room=%s\n",
		e.Day, e.Period, e.StartTime, e.EndTime, orDash(e.TeacherID), orDash(e.SubjectID), orDash(e.Room))
}

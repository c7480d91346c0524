package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/audit"
	"github.com/trezcool/ratiba/core/school"
)

var errTeacherBusy = errors.New("teacher is already committed at this time")

// WeeklySchedule is the effective timetable of a class for one week.
type WeeklySchedule struct {
	ClassID           string          `json:"class_id"`
	WeekStart         time.Time       `json:"week_start"`
	WeekEnd           time.Time       `json:"week_end"`
	HasOverride       bool            `json:"has_override"`
	OverrideID        string          `json:"override_id,omitempty"`
	ModificationCount int             `json:"modification_count"`
	PromotedAt        *time.Time      `json:"promoted_at"`
	Entries           []OverrideEntry `json:"entries"`
	Substitutions     []Substitution  `json:"substitutions"`
}

func newWeeklyOverride(classID string, weekStart time.Time, slots []Slot, now time.Time) WeeklyOverride {
	ov := WeeklyOverride{
		ID:        newID(),
		ClassID:   classID,
		WeekStart: weekStart,
		WeekEnd:   WeekEnd(weekStart),
		Entries:   make([]OverrideEntry, 0, len(slots)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, s := range slots {
		ov.Entries = append(ov.Entries, entryFromSlot(s))
	}
	sortEntries(ov.Entries)
	return ov
}

// EnsureWeeklyOverride returns the class's override for the week containing `weekStart`,
// seeding it from the active global slots on first use.
func (svc *Service) EnsureWeeklyOverride(ctx context.Context, classID string, weekStart time.Time) (WeeklyOverride, error) {
	if _, err := svc.dir.GetClass(ctx, classID); err != nil {
		return WeeklyOverride{}, errors.Wrap(err, "getting class")
	}

	var ov WeeklyOverride
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		ov, err = svc.ensureWeeklyOverride(ctx, classID, WeekStart(weekStart), exec)
		return err
	})
	return ov, err
}

// ensureWeeklyOverride must run inside a transaction; the returned override stays locked until it ends.
func (svc *Service) ensureWeeklyOverride(
	ctx context.Context,
	classID string,
	weekStart time.Time,
	exec core.DBExecutor,
) (WeeklyOverride, error) {
	ov, err := svc.repo.LockWeeklyOverride(ctx, classID, weekStart, exec)
	if err == nil {
		return ov, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return WeeklyOverride{}, errors.Wrap(err, "locking weekly override")
	}

	slots, err := svc.repo.QueryActiveSlots(ctx, classID, exec)
	if err != nil {
		return WeeklyOverride{}, errors.Wrap(err, "querying active slots")
	}
	ov = newWeeklyOverride(classID, weekStart, slots, svc.now())
	created, err := svc.repo.InsertWeeklyOverrideIfAbsent(ctx, ov, exec)
	if err != nil {
		return WeeklyOverride{}, errors.Wrap(err, "inserting weekly override")
	}
	if created {
		return ov, nil
	}

	// a concurrent unit seeded it first
	ov, err = svc.repo.LockWeeklyOverride(ctx, classID, weekStart, exec)
	return ov, errors.Wrap(err, "locking weekly override")
}

// EffectiveSchedule returns the class's override for the week if there is one, its global timetable otherwise,
// along with the substitutions of the week. It never writes.
func (svc *Service) EffectiveSchedule(ctx context.Context, classID string, weekStart time.Time) (WeeklySchedule, error) {
	if _, err := svc.dir.GetClass(ctx, classID); err != nil {
		return WeeklySchedule{}, errors.Wrap(err, "getting class")
	}
	weekStart = WeekStart(weekStart)
	weekEnd := WeekEnd(weekStart)

	entries, ov, err := svc.effectiveEntries(ctx, classID, weekStart)
	if err != nil {
		return WeeklySchedule{}, err
	}
	subs, err := svc.repo.QuerySubstitutions(ctx, SubstitutionFilter{
		ClassIDs: []string{classID},
		DateFrom: &weekStart,
		DateTo:   &weekEnd,
	})
	if err != nil {
		return WeeklySchedule{}, errors.Wrap(err, "querying substitutions")
	}

	ws := WeeklySchedule{
		ClassID:       classID,
		WeekStart:     weekStart,
		WeekEnd:       weekEnd,
		Entries:       entries,
		Substitutions: subs,
	}
	if ov != nil {
		ws.HasOverride = true
		ws.OverrideID = ov.ID
		ws.ModificationCount = ov.ModificationCount
		ws.PromotedAt = ov.PromotedAt
	}
	return ws, nil
}

// EditSlotRequest locates the override period to change.
type EditSlotRequest struct {
	ClassID   string
	WeekStart time.Time
	Day       Day
	Period    int
	Edit      SlotEdit
	By        string
}

// EditSlot changes one period of the class's weekly override, seeding the override if needed.
// Assigning a teacher who is committed elsewhere at that time is refused.
func (svc *Service) EditSlot(ctx context.Context, req EditSlotRequest) (WeeklyOverride, error) {
	if !req.Day.IsValid() {
		return WeeklyOverride{}, core.NewValidationError(errInvalidSlot, core.FieldError{Field: "day", Error: "invalid day"})
	}
	if req.Period < 1 {
		return WeeklyOverride{}, core.NewValidationError(errInvalidSlot, core.FieldError{Field: "period", Error: "invalid period"})
	}
	cls, err := svc.dir.GetClass(ctx, req.ClassID)
	if err != nil {
		return WeeklyOverride{}, errors.Wrap(err, "getting class")
	}
	var newTeacher school.Teacher
	if req.Edit.TeacherID != nil {
		if newTeacher, err = svc.dir.GetTeacher(ctx, *req.Edit.TeacherID); err != nil {
			return WeeklyOverride{}, errors.Wrap(err, "getting teacher")
		}
		if newTeacher.SchoolID != cls.SchoolID {
			return WeeklyOverride{}, core.NewValidationError(errForeignTeacher, core.FieldError{
				Field: "teacher_id", Error: errForeignTeacher.Error(),
			})
		}
	}

	weekStart := WeekStart(req.WeekStart)
	date := DateOf(weekStart, req.Day)
	key := SlotKey{ClassID: cls.ID, Day: req.Day, Period: req.Period}

	var ov WeeklyOverride
	var change Change
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if ov, err = svc.ensureWeeklyOverride(ctx, cls.ID, weekStart, exec); err != nil {
			return errors.Wrap(err, "ensuring weekly override")
		}
		prev, had := ov.Entry(req.Day, req.Period)
		now := svc.now()

		if req.Edit.TeacherID == nil && req.Edit.SubjectID == nil {
			if !had {
				return errors.Wrapf(ErrNotFound, "no period %d on %s", req.Period, req.Day)
			}
			ov.removeEntry(req.Day, req.Period)
		} else {
			entry := prev
			entry.Day, entry.Period = req.Day, req.Period
			entry.TeacherID, entry.SubjectID = req.Edit.TeacherID, req.Edit.SubjectID
			if req.Edit.StartTime != "" {
				entry.StartTime = req.Edit.StartTime
			}
			if req.Edit.EndTime != "" {
				entry.EndTime = req.Edit.EndTime
			}
			if req.Edit.Room != nil {
				entry.Room = core.StringPtr(*req.Edit.Room)
			}
			entry.IsModified = true
			entry.ModificationReason = core.CleanString(req.Edit.Reason)
			if entry.StartTime == "" || entry.EndTime == "" {
				return core.NewValidationError(errInvalidSlot, core.FieldError{
					Field: "start_time", Error: "start_time and end_time are required for a new period",
				})
			}
			if entry.EndTime <= entry.StartTime {
				return core.NewValidationError(errInvalidSlot, core.FieldError{
					Field: "end_time", Error: "end_time must be after start_time",
				})
			}

			if req.Edit.TeacherID != nil && !(had && prev.taughtBy(newTeacher.ID)) {
				book, err := svc.buildWeekBook(ctx, cls.SchoolID, weekStart, exec)
				if err != nil {
					return errors.Wrap(err, "building week book")
				}
				if book.committedAt(newTeacher.ID, req.Day, req.Period, bookIgnore{slot: &key}) {
					return core.NewValidationError(errTeacherBusy, core.FieldError{
						Field: "teacher_id", Error: errTeacherBusy.Error(),
					})
				}
			}
			ov.setEntry(entry)
		}

		ov.ModificationCount++
		ov.LastModifiedBy = core.StringPtr(req.By)
		ov.UpdatedAt = now
		if err := svc.repo.SaveWeeklyOverride(ctx, ov, exec); err != nil {
			return errors.Wrap(err, "saving weekly override")
		}

		change = Change{
			ID:                newID(),
			ClassID:           cls.ID,
			Day:               req.Day,
			Period:            req.Period,
			SlotID:            prev.SourceSlotID,
			Type:              ChangeManual,
			Date:              date,
			OriginalTeacherID: prev.TeacherID,
			NewTeacherID:      req.Edit.TeacherID,
			OriginalRoom:      prev.Room,
			NewRoom:           prev.Room,
			Reason:            core.CleanString(req.Edit.Reason),
			Source:            SourceManual,
			ApprovedBy:        core.StringPtr(req.By),
			IsActive:          true,
			CreatedBy:         req.By,
			CreatedAt:         now,
		}
		if req.Edit.Room != nil {
			change.NewRoom = core.StringPtr(*req.Edit.Room)
		}
		if change, err = svc.repo.CreateChange(ctx, change, exec); err != nil {
			return errors.Wrap(err, "creating schedule change")
		}
		return nil
	})
	if err != nil {
		return WeeklyOverride{}, err
	}

	svc.audit.Record(ctx, audit.Entry{
		SchoolID:   cls.SchoolID,
		UserID:     req.By,
		Action:     audit.ActionOverrideEdit,
		EntityType: audit.EntityWeeklyOverride,
		EntityID:   ov.ID,
		Description: fmt.Sprintf(
			"%s week of %s: %s period %d changed (teacher %s -> %s)",
			cls.Name, weekStart.Format(DateLayout), req.Day, req.Period,
			orDash(change.OriginalTeacherID), orDash(change.NewTeacherID),
		),
	})
	return ov, nil
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

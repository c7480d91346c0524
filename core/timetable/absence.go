package timetable

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/audit"
	"github.com/trezcool/ratiba/core/school"
)

const (
	revertNote       = "Reverted: Teacher returned"
	manualAssignNote = "Manual assignment required: no available substitute"
)

type (
	ReportAction string
	ItemStatus   string
)

const (
	ActionNone   ReportAction = "none"
	ActionRepair ReportAction = "repair"
	ActionRevert ReportAction = "revert"

	ItemProposed       ItemStatus = "proposed"
	ItemManualRequired ItemStatus = "manual_assignment_required"
	ItemSkipped        ItemStatus = "skipped"
	ItemFailed         ItemStatus = "failed"
	ItemReverted       ItemStatus = "reverted"
)

type (
	// Report is the outcome of handling one attendance transition.
	Report struct {
		TeacherID string       `json:"teacher_id"`
		Date      time.Time    `json:"date"`
		Action    ReportAction `json:"action"`
		Items     []ReportItem `json:"items"`
	}

	// ReportItem is the outcome for one slot, or for a whole class when its override could not be ensured.
	ReportItem struct {
		Date                time.Time  `json:"date"`
		ClassID             string     `json:"class_id"`
		Day                 Day        `json:"day,omitempty"`
		Period              int        `json:"period,omitempty"`
		Status              ItemStatus `json:"status"`
		SubstitutionID      string     `json:"substitution_id,omitempty"`
		SubstituteTeacherID *string    `json:"substitute_teacher_id,omitempty"`
		Detail              string     `json:"detail,omitempty"`
	}
)

// Count returns the number of items with the given status.
func (r Report) Count(status ItemStatus) int {
	var n int
	for _, it := range r.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}

// HandleTransition repairs the teacher's week when they become absent and reverts
// the unapproved repairs when they return. Every date the mark changed is handled,
// so a leave range repairs (or reverts) each of its days. Other transitions are no-ops.
// Slot and class failures are reported in the Report and never abort the pass.
func (svc *Service) HandleTransition(ctx context.Context, tr attendance.Transition) (Report, error) {
	report := Report{TeacherID: tr.TeacherID, Date: Date(tr.Date), Action: ActionNone}

	var repairs, reverts []attendance.DateStatus
	for _, ds := range tr.Dates() {
		ds.Date = Date(ds.Date)
		switch {
		case ds.IsAbsenceStart():
			repairs = append(repairs, ds)
		case ds.IsReturn():
			reverts = append(reverts, ds)
		}
	}
	if len(repairs) == 0 && len(reverts) == 0 {
		return report, nil
	}

	teacher, err := svc.dir.GetTeacher(ctx, tr.TeacherID)
	if err != nil {
		return report, errors.Wrap(err, "getting teacher")
	}
	if len(repairs) > 0 {
		report.Action = ActionRepair
		items, err := svc.repairAbsence(ctx, tr, teacher, repairs)
		report.Items = append(report.Items, items...)
		if err != nil {
			return report, err
		}
	}
	if len(reverts) > 0 {
		if report.Action == ActionNone {
			report.Action = ActionRevert
		}
		items, err := svc.revertAbsence(ctx, tr, teacher, reverts)
		report.Items = append(report.Items, items...)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (svc *Service) repairAbsence(
	ctx context.Context,
	tr attendance.Transition,
	teacher school.Teacher,
	dates []attendance.DateStatus,
) ([]ReportItem, error) {
	classes, err := svc.dir.ListClasses(ctx, teacher.SchoolID)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}

	var items []ReportItem
	for _, ds := range dates {
		date := ds.Date
		weekStart, day := WeekStart(date), DayOf(date)
		var affected, proposed, manual int
		for _, cls := range classes {
			var ov WeeklyOverride
			err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
				var err error
				ov, err = svc.ensureWeeklyOverride(ctx, cls.ID, weekStart, exec)
				return err
			})
			if err != nil {
				svc.logger.Error("absence repair: ensuring weekly override", errors.Wrapf(err, "class %s", cls.ID))
				items = append(items, ReportItem{Date: date, ClassID: cls.ID, Status: ItemFailed, Detail: err.Error()})
				continue
			}

			for _, e := range ov.Entries {
				if e.Day != day || !e.taughtBy(teacher.ID) {
					continue
				}
				affected++
				item := svc.repairSlot(ctx, tr, ds.Current, teacher, cls, weekStart, date, e)
				switch item.Status {
				case ItemProposed:
					proposed++
				case ItemManualRequired:
					manual++
				}
				items = append(items, item)
			}
		}

		svc.audit.Record(ctx, audit.Entry{
			SchoolID:   teacher.SchoolID,
			UserID:     tr.MarkedBy,
			Action:     audit.ActionAbsenceRepair,
			EntityType: audit.EntityTeacher,
			EntityID:   teacher.ID,
			Description: fmt.Sprintf("%s marked %s on %s (%s): %d slot(s) affected, %d proposed, %d need manual assignment",
				teacher.Name, ds.Current, date.Format(DateLayout), reasonOr(tr.Reason, "no reason given"),
				affected, proposed, manual),
		})
	}
	return items, nil
}

// repairSlot proposes a substitute for one slot of the absent teacher in its own transaction.
func (svc *Service) repairSlot(
	ctx context.Context,
	tr attendance.Transition,
	status attendance.Status,
	teacher school.Teacher,
	cls school.Class,
	weekStart, date time.Time,
	e OverrideEntry,
) ReportItem {
	key := SlotKey{ClassID: cls.ID, Day: e.Day, Period: e.Period}
	item := ReportItem{Date: date, ClassID: cls.ID, Day: e.Day, Period: e.Period}

	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		live, err := svc.repo.QuerySubstitutions(ctx, SubstitutionFilter{
			Key:      &key,
			Date:     &date,
			Statuses: LiveStatuses,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "querying substitutions")
		}
		if len(live) > 0 {
			item.Status = ItemSkipped
			item.SubstitutionID = live[0].ID
			item.Detail = "a substitution already exists for this slot"
			return nil
		}
		changes, err := svc.repo.QueryChanges(ctx, ChangeFilter{
			Key:        &key,
			Date:       &date,
			Source:     SourceAutoAbsence,
			ActiveOnly: true,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "querying schedule changes")
		}
		if len(changes) > 0 {
			item.Status = ItemSkipped
			item.Detail = "an automatic change already exists for this slot"
			return nil
		}

		candidates, err := svc.findCandidates(ctx, CandidateQuery{
			ClassID:          cls.ID,
			SubjectID:        core.StringVal(e.SubjectID),
			ExcludeTeacherID: teacher.ID,
			Day:              e.Day,
			Period:           e.Period,
			WeekStart:        weekStart,
		}, nil, bookIgnore{}, exec)
		if err != nil {
			return errors.Wrap(err, "finding candidates")
		}

		now := svc.now()
		sub := Substitution{
			ID:                newID(),
			ClassID:           cls.ID,
			Day:               e.Day,
			Period:            e.Period,
			Date:              date,
			SubjectID:         core.StringVal(e.SubjectID),
			OriginalTeacherID: teacher.ID,
			Status:            StatusPending,
			IsAutoGenerated:   true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		reason := fmt.Sprintf("%s %s", teacher.Name, strings.ReplaceAll(string(status), "_", " "))
		if tr.Reason != "" {
			reason += ": " + tr.Reason
		}
		if len(candidates) > 0 {
			best := candidates[0]
			sub.SubstituteTeacherID = &best.TeacherID
			sub.Reason = reason
			item.Status = ItemProposed
			item.Detail = fmt.Sprintf("suggested %s (subject match: %t)", best.Name, best.SubjectCompatible)
		} else {
			sub.Reason = reason + ". " + manualAssignNote
			item.Status = ItemManualRequired
			item.Detail = manualAssignNote
		}

		if sub, err = svc.repo.CreateSubstitution(ctx, sub, exec); err != nil {
			if errors.Cause(err) == ErrConflict {
				item.Status = ItemSkipped
				item.Detail = "a substitution already exists for this slot"
				return nil
			}
			return errors.Wrap(err, "creating substitution")
		}
		item.SubstitutionID = sub.ID
		item.SubstituteTeacherID = sub.SubstituteTeacherID

		_, err = svc.repo.CreateChange(ctx, Change{
			ID:                newID(),
			ClassID:           cls.ID,
			Day:               e.Day,
			Period:            e.Period,
			SlotID:            e.SourceSlotID,
			Type:              ChangeAbsence,
			Date:              date,
			OriginalTeacherID: &teacher.ID,
			NewTeacherID:      sub.SubstituteTeacherID,
			OriginalRoom:      e.Room,
			NewRoom:           e.Room,
			Reason:            sub.Reason,
			Source:            SourceAutoAbsence,
			IsActive:          true,
			CreatedBy:         tr.MarkedBy,
			CreatedAt:         now,
		}, exec)
		return errors.Wrap(err, "creating schedule change")
	})
	if err != nil {
		svc.logger.Error("absence repair: repairing slot",
			errors.Wrapf(err, "class %s %s period %d", cls.ID, e.Day, e.Period))
		return ReportItem{Date: date, ClassID: cls.ID, Day: e.Day, Period: e.Period, Status: ItemFailed, Detail: err.Error()}
	}
	return item
}

func (svc *Service) revertAbsence(
	ctx context.Context,
	tr attendance.Transition,
	teacher school.Teacher,
	dates []attendance.DateStatus,
) ([]ReportItem, error) {
	var items []ReportItem
	for _, ds := range dates {
		date := ds.Date
		changes, err := svc.repo.QueryChanges(ctx, ChangeFilter{
			OriginalTeacherID: teacher.ID,
			Date:              &date,
			Source:            SourceAutoAbsence,
			ActiveOnly:        true,
		})
		if err != nil {
			return items, errors.Wrap(err, "querying schedule changes")
		}

		var reverted int
		for _, c := range changes {
			item := svc.revertChange(ctx, teacher, date, c)
			if item.Status == ItemReverted {
				reverted++
			}
			items = append(items, item)
		}

		svc.audit.Record(ctx, audit.Entry{
			SchoolID:   teacher.SchoolID,
			UserID:     tr.MarkedBy,
			Action:     audit.ActionAbsenceRevert,
			EntityType: audit.EntityTeacher,
			EntityID:   teacher.ID,
			Description: fmt.Sprintf("%s marked %s on %s: %d automatic change(s) reverted",
				teacher.Name, ds.Current, date.Format(DateLayout), reverted),
		})
	}
	return items, nil
}

// revertChange deactivates one automatic change and deletes the unapproved automatic
// substitutions of its slot, in one transaction.
func (svc *Service) revertChange(ctx context.Context, teacher school.Teacher, date time.Time, c Change) ReportItem {
	item := ReportItem{Date: date, ClassID: c.ClassID, Day: c.Day, Period: c.Period}
	if !c.IsRevertible() {
		item.Status = ItemSkipped
		item.Detail = "change already approved"
		return item
	}

	var deleted int
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		c.IsActive = false
		c.Reason = appendReason(c.Reason, revertNote)
		if err := svc.repo.UpdateChange(ctx, c, exec); err != nil {
			return errors.Wrap(err, "updating schedule change")
		}

		key := c.Key()
		subs, err := svc.repo.QuerySubstitutions(ctx, SubstitutionFilter{
			Key:               &key,
			Date:              &date,
			OriginalTeacherID: teacher.ID,
			Statuses:          []SubstitutionStatus{StatusPending, StatusAutoAssigned},
		}, exec)
		if err != nil {
			return errors.Wrap(err, "querying substitutions")
		}
		ids := make([]string, 0, len(subs))
		for _, s := range subs {
			if s.IsUnapprovedAuto() {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		deleted = len(ids)
		return errors.Wrap(svc.repo.DeleteSubstitutions(ctx, ids, exec), "deleting substitutions")
	})
	if err != nil {
		svc.logger.Error("absence revert: reverting change", errors.Wrapf(err, "change %s", c.ID))
		item.Status = ItemFailed
		item.Detail = err.Error()
		return item
	}
	item.Status = ItemReverted
	item.Detail = fmt.Sprintf("%d substitution(s) removed", deleted)
	return item
}

func appendReason(reason, note string) string {
	if reason == "" {
		return note
	}
	return reason + " | " + note
}

func reasonOr(reason, fallback string) string {
	if reason = core.CleanString(reason); reason == "" {
		return fallback
	}
	return reason
}

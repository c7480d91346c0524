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

var (
	errSubstituteUnavailable = errors.New("substitute teacher is not available at this time")
	errSlotNotScheduled      = errors.New("no teacher is scheduled for this period")
	errNotApprovable         = errors.New("only pending substitutions can be approved")
	errAlreadyRejected       = errors.New("substitution is already rejected")
	errConfirmedDelete       = errors.New("confirmed substitutions must be rejected, not deleted")
	errSubstituteRequired    = errors.New("a substitute teacher is required")
	errSameTeacher           = errors.New("substitute must differ from the scheduled teacher")
)

// SubstitutionQuery filters the substitutions of a school.
type SubstitutionQuery struct {
	SchoolID string
	Date     *time.Time
	Status   SubstitutionStatus
}

// Submit records a manual substitution proposal for one period of a class on a date.
func (svc *Service) Submit(ctx context.Context, ns NewSubstitution) (Substitution, error) {
	cls, err := svc.dir.GetClass(ctx, ns.ClassID)
	if err != nil {
		return Substitution{}, errors.Wrap(err, "getting class")
	}
	date, err := ParseDate(ns.Date)
	if err != nil {
		return Substitution{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: "invalid date"})
	}
	substitute, err := svc.dir.GetTeacher(ctx, ns.SubstituteTeacherID)
	if err != nil {
		if errors.Cause(err) == school.ErrTeacherNotFound {
			return Substitution{}, core.NewValidationError(err, core.FieldError{Field: "substitute_teacher_id", Error: err.Error()})
		}
		return Substitution{}, errors.Wrap(err, "getting substitute")
	}
	if substitute.SchoolID != cls.SchoolID {
		return Substitution{}, core.NewValidationError(errForeignTeacher, core.FieldError{
			Field: "substitute_teacher_id", Error: errForeignTeacher.Error(),
		})
	}

	weekStart, day := WeekStart(date), DayOf(date)
	key := SlotKey{ClassID: cls.ID, Day: day, Period: ns.Period}

	var sub Substitution
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		entries, _, err := svc.effectiveEntries(ctx, cls.ID, weekStart, exec)
		if err != nil {
			return err
		}
		var entry OverrideEntry
		var found bool
		for _, e := range entries {
			if e.Day == day && e.Period == ns.Period && e.TeacherID != nil {
				entry, found = e, true
				break
			}
		}
		if !found {
			return core.NewValidationError(errSlotNotScheduled, core.FieldError{Field: "period", Error: errSlotNotScheduled.Error()})
		}
		if *entry.TeacherID == substitute.ID {
			return core.NewValidationError(errSameTeacher, core.FieldError{Field: "substitute_teacher_id", Error: errSameTeacher.Error()})
		}

		ok, err := svc.isAvailable(ctx, substitute, day, ns.Period, date, nil, bookIgnore{slot: &key}, exec)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewValidationError(errSubstituteUnavailable, core.FieldError{
				Field: "substitute_teacher_id", Error: errSubstituteUnavailable.Error(),
			})
		}

		now := svc.now()
		sub, err = svc.repo.CreateSubstitution(ctx, Substitution{
			ID:                  newID(),
			ClassID:             cls.ID,
			Day:                 day,
			Period:              ns.Period,
			Date:                date,
			SubjectID:           core.StringVal(entry.SubjectID),
			OriginalTeacherID:   *entry.TeacherID,
			SubstituteTeacherID: &substitute.ID,
			Reason:              core.CleanString(ns.Reason),
			Status:              StatusPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		}, exec)
		return errors.Wrap(err, "creating substitution")
	})
	if err != nil {
		return Substitution{}, err
	}

	svc.audit.Record(ctx, audit.Entry{
		SchoolID:    cls.SchoolID,
		UserID:      ns.By,
		Action:      audit.ActionSubstitutionSubmit,
		EntityType:  audit.EntitySubstitution,
		EntityID:    sub.ID,
		Description: fmt.Sprintf("%s proposed for %s on %s period %d", substitute.Name, cls.Name, ns.Date, ns.Period),
	})
	return sub, nil
}

// Approve confirms a pending substitution and writes the substitute into the class's weekly override.
func (svc *Service) Approve(ctx context.Context, id string, req ApproveSubstitution) (Substitution, error) {
	var (
		sub        Substitution
		cls        school.Class
		substitute school.Teacher
		entry      OverrideEntry
	)
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if sub, err = svc.repo.GetSubstitution(ctx, id, exec); err != nil {
			return errors.Wrap(err, "getting substitution")
		}
		if !sub.IsApprovable() {
			return core.NewValidationError(errNotApprovable, core.FieldError{Field: "status", Error: errNotApprovable.Error()})
		}
		if req.SubstituteTeacherID != "" {
			sub.SubstituteTeacherID = &req.SubstituteTeacherID
		}
		if sub.SubstituteTeacherID == nil {
			return core.NewValidationError(errSubstituteRequired, core.FieldError{
				Field: "substitute_teacher_id", Error: errSubstituteRequired.Error(),
			})
		}
		if *sub.SubstituteTeacherID == sub.OriginalTeacherID {
			return core.NewValidationError(errSameTeacher, core.FieldError{Field: "substitute_teacher_id", Error: errSameTeacher.Error()})
		}
		if cls, err = svc.dir.GetClass(ctx, sub.ClassID, exec); err != nil {
			return errors.Wrap(err, "getting class")
		}
		if substitute, err = svc.dir.GetTeacher(ctx, *sub.SubstituteTeacherID, exec); err != nil {
			if errors.Cause(err) == school.ErrTeacherNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "substitute_teacher_id", Error: err.Error()})
			}
			return errors.Wrap(err, "getting substitute")
		}
		if substitute.SchoolID != cls.SchoolID {
			return core.NewValidationError(errForeignTeacher, core.FieldError{
				Field: "substitute_teacher_id", Error: errForeignTeacher.Error(),
			})
		}

		key := sub.Key()
		ok, err := svc.isAvailable(ctx, substitute, sub.Day, sub.Period, sub.Date, nil,
			bookIgnore{substitutionID: sub.ID, slot: &key}, exec)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewValidationError(errSubstituteUnavailable, core.FieldError{
				Field: "substitute_teacher_id", Error: errSubstituteUnavailable.Error(),
			})
		}

		// write back into the week
		ov, err := svc.ensureWeeklyOverride(ctx, sub.ClassID, WeekStart(sub.Date), exec)
		if err != nil {
			return errors.Wrap(err, "ensuring weekly override")
		}
		var found bool
		if entry, found = ov.Entry(sub.Day, sub.Period); !found || !entry.IsScheduled() {
			return core.NewValidationError(errSlotNotScheduled, core.FieldError{Field: "period", Error: errSlotNotScheduled.Error()})
		}
		now := svc.now()
		entry.TeacherID = &substitute.ID
		entry.IsModified = true
		entry.ModificationReason = reasonOr(sub.Reason, "Substitution")
		ov.setEntry(entry)
		ov.ModificationCount++
		ov.LastModifiedBy = core.StringPtr(req.By)
		ov.UpdatedAt = now
		if err = svc.repo.SaveWeeklyOverride(ctx, ov, exec); err != nil {
			return errors.Wrap(err, "saving weekly override")
		}

		sub.Status = StatusConfirmed
		sub.ApprovedBy = core.StringPtr(req.By)
		sub.ApprovedAt = &now
		sub.UpdatedAt = now
		if err = svc.repo.UpdateSubstitution(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "updating substitution")
		}

		return svc.recordApproval(ctx, sub, entry, req.By, now, exec)
	})
	if err != nil {
		return Substitution{}, err
	}

	svc.notifySubstitute(sub, cls, substitute, entry)
	svc.audit.Record(ctx, audit.Entry{
		SchoolID:   cls.SchoolID,
		UserID:     req.By,
		Action:     audit.ActionSubstitutionApprove,
		EntityType: audit.EntitySubstitution,
		EntityID:   sub.ID,
		Description: fmt.Sprintf("%s confirmed for %s on %s period %d",
			substitute.Name, cls.Name, sub.Date.Format(DateLayout), sub.Period),
	})
	return sub, nil
}

// recordApproval marks the automatic change of the slot approved, or records a manual one.
func (svc *Service) recordApproval(
	ctx context.Context,
	sub Substitution,
	entry OverrideEntry,
	by string,
	now time.Time,
	exec core.DBExecutor,
) error {
	key := sub.Key()
	changes, err := svc.repo.QueryChanges(ctx, ChangeFilter{
		Key:               &key,
		Date:              &sub.Date,
		OriginalTeacherID: sub.OriginalTeacherID,
		Source:            SourceAutoAbsence,
		ActiveOnly:        true,
	}, exec)
	if err != nil {
		return errors.Wrap(err, "querying schedule changes")
	}
	if len(changes) > 0 {
		c := changes[0]
		c.ApprovedBy = core.StringPtr(by)
		c.NewTeacherID = sub.SubstituteTeacherID
		return errors.Wrap(svc.repo.UpdateChange(ctx, c, exec), "updating schedule change")
	}

	_, err = svc.repo.CreateChange(ctx, Change{
		ID:                newID(),
		ClassID:           sub.ClassID,
		Day:               sub.Day,
		Period:            sub.Period,
		SlotID:            entry.SourceSlotID,
		Type:              ChangeManual,
		Date:              sub.Date,
		OriginalTeacherID: &sub.OriginalTeacherID,
		NewTeacherID:      sub.SubstituteTeacherID,
		OriginalRoom:      entry.Room,
		NewRoom:           entry.Room,
		Reason:            sub.Reason,
		Source:            SourceManual,
		ApprovedBy:        core.StringPtr(by),
		IsActive:          true,
		CreatedBy:         by,
		CreatedAt:         now,
	}, exec)
	return errors.Wrap(err, "creating schedule change")
}

// Reject closes a substitution. Rejecting a confirmed one gives the period back to the original teacher.
func (svc *Service) Reject(ctx context.Context, id string, req RejectSubstitution) (Substitution, error) {
	var sub Substitution
	var wasConfirmed bool
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if sub, err = svc.repo.GetSubstitution(ctx, id, exec); err != nil {
			return errors.Wrap(err, "getting substitution")
		}
		if sub.Status == StatusRejected {
			return core.NewValidationError(errAlreadyRejected, core.FieldError{Field: "status", Error: errAlreadyRejected.Error()})
		}
		wasConfirmed = sub.Status == StatusConfirmed

		now := svc.now()
		sub.Status = StatusRejected
		sub.Reason = appendReason(sub.Reason, "Rejected: "+reasonOr(req.Reason, "no reason given"))
		sub.UpdatedAt = now
		if err = svc.repo.UpdateSubstitution(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "updating substitution")
		}
		if !wasConfirmed {
			return svc.closeAutoChanges(ctx, sub, "Rejected: "+reasonOr(req.Reason, "no reason given"), exec)
		}
		return svc.restoreOriginalTeacher(ctx, sub, req.By, now, exec)
	})
	if err != nil {
		return Substitution{}, err
	}

	var schoolID string
	if cls, err := svc.dir.GetClass(ctx, sub.ClassID); err == nil {
		schoolID = cls.SchoolID
	}
	desc := fmt.Sprintf("Substitution on %s period %d rejected", sub.Date.Format(DateLayout), sub.Period)
	if wasConfirmed {
		desc += ", original teacher restored"
	}
	svc.audit.Record(ctx, audit.Entry{
		SchoolID:    schoolID,
		UserID:      req.By,
		Action:      audit.ActionSubstitutionReject,
		EntityType:  audit.EntitySubstitution,
		EntityID:    sub.ID,
		Description: desc,
	})
	return sub, nil
}

func (svc *Service) restoreOriginalTeacher(
	ctx context.Context,
	sub Substitution,
	by string,
	now time.Time,
	exec core.DBExecutor,
) error {
	ov, err := svc.repo.LockWeeklyOverride(ctx, sub.ClassID, WeekStart(sub.Date), exec)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "locking weekly override")
	}
	entry, ok := ov.Entry(sub.Day, sub.Period)
	if ok && sub.SubstituteTeacherID != nil && entry.taughtBy(*sub.SubstituteTeacherID) {
		original := sub.OriginalTeacherID
		entry.TeacherID = &original
		entry.IsModified = true
		entry.ModificationReason = "Substitution rejected"
		ov.setEntry(entry)
		ov.ModificationCount++
		ov.LastModifiedBy = core.StringPtr(by)
		ov.UpdatedAt = now
		if err = svc.repo.SaveWeeklyOverride(ctx, ov, exec); err != nil {
			return errors.Wrap(err, "saving weekly override")
		}
	}

	key := sub.Key()
	changes, err := svc.repo.QueryChanges(ctx, ChangeFilter{
		Key:        &key,
		Date:       &sub.Date,
		ActiveOnly: true,
	}, exec)
	if err != nil {
		return errors.Wrap(err, "querying schedule changes")
	}
	for _, c := range changes {
		if c.ApprovedBy == nil || c.NewTeacherID == nil || sub.SubstituteTeacherID == nil ||
			*c.NewTeacherID != *sub.SubstituteTeacherID {
			continue
		}
		c.IsActive = false
		c.Reason = appendReason(c.Reason, "Substitution rejected")
		if err = svc.repo.UpdateChange(ctx, c, exec); err != nil {
			return errors.Wrap(err, "updating schedule change")
		}
	}
	return nil
}

// closeAutoChanges deactivates the unapproved automatic changes behind an automatic substitution,
// so a later absence pass can propose the slot again.
func (svc *Service) closeAutoChanges(ctx context.Context, sub Substitution, note string, exec core.DBExecutor) error {
	if !sub.IsAutoGenerated {
		return nil
	}
	key := sub.Key()
	changes, err := svc.repo.QueryChanges(ctx, ChangeFilter{
		Key:               &key,
		Date:              &sub.Date,
		OriginalTeacherID: sub.OriginalTeacherID,
		Source:            SourceAutoAbsence,
		ActiveOnly:        true,
	}, exec)
	if err != nil {
		return errors.Wrap(err, "querying schedule changes")
	}
	for _, c := range changes {
		if !c.IsRevertible() {
			continue
		}
		c.IsActive = false
		c.Reason = appendReason(c.Reason, note)
		if err = svc.repo.UpdateChange(ctx, c, exec); err != nil {
			return errors.Wrap(err, "updating schedule change")
		}
	}
	return nil
}

// Delete removes a substitution that was never confirmed.
func (svc *Service) Delete(ctx context.Context, id, by string) error {
	var sub Substitution
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if sub, err = svc.repo.GetSubstitution(ctx, id, exec); err != nil {
			return errors.Wrap(err, "getting substitution")
		}
		if sub.Status == StatusConfirmed {
			return core.NewValidationError(errConfirmedDelete, core.FieldError{Field: "status", Error: errConfirmedDelete.Error()})
		}
		if err = svc.repo.DeleteSubstitutions(ctx, []string{sub.ID}, exec); err != nil {
			return errors.Wrap(err, "deleting substitution")
		}
		if sub.Status == StatusRejected {
			return nil
		}
		return svc.closeAutoChanges(ctx, sub, "Substitution deleted", exec)
	})
	if err != nil {
		return err
	}

	var schoolID string
	if cls, err := svc.dir.GetClass(ctx, sub.ClassID); err == nil {
		schoolID = cls.SchoolID
	}
	svc.audit.Record(ctx, audit.Entry{
		SchoolID:   schoolID,
		UserID:     by,
		Action:     audit.ActionSubstitutionDelete,
		EntityType: audit.EntitySubstitution,
		EntityID:   sub.ID,
		Description: fmt.Sprintf("%s substitution on %s period %d deleted",
			sub.Status, sub.Date.Format(DateLayout), sub.Period),
	})
	return nil
}

// GetSubstitution returns one substitution.
func (svc *Service) GetSubstitution(ctx context.Context, id string) (Substitution, error) {
	sub, err := svc.repo.GetSubstitution(ctx, id)
	return sub, errors.Wrap(err, "getting substitution")
}

// ListSubstitutions returns the substitutions of a school's classes, optionally for one date and status.
func (svc *Service) ListSubstitutions(ctx context.Context, q SubstitutionQuery) ([]Substitution, error) {
	classIDs, err := svc.schoolClassIDs(ctx, q.SchoolID)
	if err != nil || len(classIDs) == 0 {
		return []Substitution{}, err
	}
	filter := SubstitutionFilter{ClassIDs: classIDs}
	if q.Date != nil {
		d := Date(*q.Date)
		filter.Date = &d
	}
	if q.Status != "" {
		filter.Statuses = []SubstitutionStatus{q.Status}
	}
	subs, err := svc.repo.QuerySubstitutions(ctx, filter)
	return subs, errors.Wrap(err, "querying substitutions")
}

// ListChanges returns the schedule change history of a school's classes, optionally for one date.
func (svc *Service) ListChanges(ctx context.Context, schoolID string, date *time.Time) ([]Change, error) {
	classIDs, err := svc.schoolClassIDs(ctx, schoolID)
	if err != nil || len(classIDs) == 0 {
		return []Change{}, err
	}
	filter := ChangeFilter{ClassIDs: classIDs}
	if date != nil {
		d := Date(*date)
		filter.Date = &d
	}
	changes, err := svc.repo.QueryChanges(ctx, filter)
	return changes, errors.Wrap(err, "querying schedule changes")
}

func (svc *Service) schoolClassIDs(ctx context.Context, schoolID string) ([]string, error) {
	classes, err := svc.dir.ListClasses(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

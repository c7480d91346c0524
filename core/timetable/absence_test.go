package timetable_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/audit"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/tests"
)

func TestHandleTransition_oneSubstitutionPerPeriod(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	sam := f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1,
		testutil.Slot(timetable.Monday, 3, tom.ID, "math"),
		testutil.Slot(timetable.Monday, 5, tom.ID, "math"),
		testutil.Slot(timetable.Tuesday, 3, tom.ID, "math"),
	)

	report := markAbsent(t, f, tom.ID, "2024-01-15")
	assert.Equal(t, timetable.ActionRepair, report.Action)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 2, report.Count(timetable.ItemProposed))

	subs := substitutionsOn(t, f, "2024-01-15")
	require.Len(t, subs, 2)
	for i, period := range []int{3, 5} {
		sub := subs[i]
		assert.Equal(t, period, sub.Period)
		assert.Equal(t, timetable.Monday, sub.Day)
		assert.Equal(t, timetable.StatusPending, sub.Status)
		assert.True(t, sub.IsAutoGenerated)
		assert.Equal(t, tom.ID, sub.OriginalTeacherID)
		assert.Equal(t, "math", sub.SubjectID)
		assert.Equal(t, "Tom absent: flu", sub.Reason)
		if assert.NotNil(t, sub.SubstituteTeacherID) {
			assert.Equal(t, sam.ID, *sub.SubstituteTeacherID)
		}
	}

	changes, err := f.Timetable.ListChanges(ctx, testutil.SchoolID, nil)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, timetable.ChangeAbsence, c.Type)
		assert.Equal(t, timetable.SourceAutoAbsence, c.Source)
		assert.True(t, c.IsActive)
		assert.Nil(t, c.ApprovedBy)
		assert.True(t, c.IsRevertible())
	}

	entries := f.DB.AuditEntries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionAbsenceRepair, last.Action)
	assert.Equal(t, tom.ID, last.EntityID)
	assert.Contains(t, last.Description, "2 slot(s) affected, 2 proposed")
}

func TestHandleTransition_noCandidate(t *testing.T) {
	f := testutil.NewFixture(t)
	c1, c2 := f.AddClass("7A"), f.AddClass("7B")
	tom := f.AddTeacher("Tom", "math")
	bea := f.AddTeacher("Bea", "english")
	replaceSchedule(t, f, c1, testutil.Slot(timetable.Monday, 1, tom.ID, "math"))
	replaceSchedule(t, f, c2, testutil.Slot(timetable.Monday, 1, bea.ID, "english"))

	candidates, err := f.Timetable.FindCandidates(ctx, timetable.CandidateQuery{
		ClassID: c1.ID, SubjectID: "math", ExcludeTeacherID: tom.ID,
		Day: timetable.Monday, Period: 1, WeekStart: testutil.Date(t, "2024-01-15"),
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	report := markAbsent(t, f, tom.ID, "2024-01-15")
	require.Len(t, report.Items, 1)
	assert.Equal(t, timetable.ItemManualRequired, report.Items[0].Status)
	assert.Nil(t, report.Items[0].SubstituteTeacherID)

	subs := substitutionsOn(t, f, "2024-01-15")
	require.Len(t, subs, 1)
	assert.Nil(t, subs[0].SubstituteTeacherID)
	assert.Equal(t, timetable.StatusPending, subs[0].Status)
	assert.True(t, strings.HasSuffix(subs[0].Reason, "Manual assignment required: no available substitute"))
}

func TestHandleTransition_seedsOverrideWithoutModifyingIt(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1, testutil.Slot(timetable.Wednesday, 2, tom.ID, "math"))

	weekStart := testutil.Date(t, "2024-01-22")
	_, err := f.Repo.GetWeeklyOverride(ctx, c1.ID, weekStart)
	require.Equal(t, timetable.ErrNotFound, errors.Cause(err))

	report := markAbsent(t, f, tom.ID, "2024-01-24")
	assert.Equal(t, 1, report.Count(timetable.ItemProposed))

	ov, err := f.Repo.GetWeeklyOverride(ctx, c1.ID, weekStart)
	require.NoError(t, err)
	assert.Equal(t, 0, ov.ModificationCount)
	require.Len(t, ov.Entries, 1)
	e := ov.Entries[0]
	assert.Equal(t, tom.ID, core.StringVal(e.TeacherID))
	assert.False(t, e.IsModified)

	ws, err := f.Timetable.EffectiveSchedule(ctx, c1.ID, weekStart)
	require.NoError(t, err)
	assert.True(t, ws.HasOverride)
	require.Len(t, ws.Substitutions, 1)
	assert.Equal(t, timetable.Wednesday, ws.Substitutions[0].Day)
}

func TestHandleTransition_idempotent(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1,
		testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
		testutil.Slot(timetable.Monday, 2, tom.ID, "math"),
	)

	tr := mark(t, f, tom.ID, "2024-01-15", attendance.StatusSickLeave)
	first, err := f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Count(timetable.ItemProposed))

	second, err := f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count(timetable.ItemSkipped))
	assert.Equal(t, 0, second.Count(timetable.ItemProposed))

	assert.Len(t, substitutionsOn(t, f, "2024-01-15"), 2)
	changes, err := f.Timetable.ListChanges(ctx, testutil.SchoolID, nil)
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	// absent -> absent is not a transition worth handling
	again := mark(t, f, tom.ID, "2024-01-15", attendance.StatusAbsent)
	report, err := f.Timetable.HandleTransition(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, timetable.ActionNone, report.Action)
	assert.Empty(t, report.Items)
}

func TestHandleTransition_revert(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1,
		testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
		testutil.Slot(timetable.Monday, 2, tom.ID, "math"),
	)

	weekStart := testutil.Date(t, "2024-01-15")
	entries := func() map[int]timetable.OverrideEntry {
		ws, err := f.Timetable.EffectiveSchedule(ctx, c1.ID, weekStart)
		require.NoError(t, err)
		got := make(map[int]timetable.OverrideEntry, len(ws.Entries))
		for _, e := range ws.Entries {
			if e.Day == timetable.Monday {
				got[e.Period] = e
			}
		}
		return got
	}
	before := entries()
	require.Len(t, before, 2)

	markAbsent(t, f, tom.ID, "2024-01-15")
	subs := substitutionsOn(t, f, "2024-01-15")
	require.Len(t, subs, 2)

	// an approved repair survives the teacher's return
	approved, err := f.Timetable.Approve(ctx, subs[0].ID, timetable.ApproveSubstitution{By: admin})
	require.NoError(t, err)
	assert.Equal(t, timetable.StatusConfirmed, approved.Status)
	approvedPeriod := approved.Period

	tr := mark(t, f, tom.ID, "2024-01-15", attendance.StatusPresent)
	require.True(t, tr.IsReturn())
	report, err := f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, timetable.ActionRevert, report.Action)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 1, report.Count(timetable.ItemReverted))
	assert.Equal(t, 1, report.Count(timetable.ItemSkipped))
	for _, it := range report.Items {
		switch it.Status {
		case timetable.ItemReverted:
			assert.Equal(t, 2, it.Period)
			assert.Equal(t, "1 substitution(s) removed", it.Detail)
		case timetable.ItemSkipped:
			assert.Equal(t, 1, it.Period)
			assert.Equal(t, "change already approved", it.Detail)
		}
	}

	left := substitutionsOn(t, f, "2024-01-15")
	require.Len(t, left, 1)
	assert.Equal(t, approved.ID, left[0].ID)

	// the week reads as before the absence, except for the approved period
	after := entries()
	require.Len(t, after, 2)
	for period, want := range before {
		got := after[period]
		if period == approvedPeriod {
			require.NotNil(t, got.TeacherID)
			assert.Equal(t, approved.SubstituteTeacherID, got.TeacherID)
			assert.True(t, got.IsModified)
			continue
		}
		assert.Equal(t, want, got, "period %d", period)
	}

	changes, err := f.Timetable.ListChanges(ctx, testutil.SchoolID, nil)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		if c.Period == 2 {
			assert.False(t, c.IsActive)
			assert.True(t, strings.HasSuffix(c.Reason, " | Reverted: Teacher returned"))
		} else {
			assert.True(t, c.IsActive)
			assert.NotNil(t, c.ApprovedBy)
		}
	}

	// reverting twice finds nothing left to revert
	report, err = f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	assert.Len(t, report.Items, 1)
	assert.Equal(t, timetable.ItemSkipped, report.Items[0].Status)
}

func TestHandleTransition_revertRemovesManualAssignments(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	replaceSchedule(t, f, c1, testutil.Slot(timetable.Friday, 4, tom.ID, "math"))

	report := markAbsent(t, f, tom.ID, "2024-01-19")
	require.Equal(t, 1, report.Count(timetable.ItemManualRequired))

	tr := mark(t, f, tom.ID, "2024-01-19", attendance.StatusPresent)
	report, err := f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(timetable.ItemReverted))
	assert.Empty(t, substitutionsOn(t, f, "2024-01-19"))
}

func TestHandleTransition_leaveRange(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	sam := f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1,
		testutil.Slot(timetable.Tuesday, 1, tom.ID, "math"),
		testutil.Slot(timetable.Tuesday, 2, sam.ID, "math"),
	)

	_, _, err := f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: sam.ID,
		Date:      "2024-01-15",
		Status:    attendance.StatusLeave,
		LeaveFrom: "2024-01-15",
		LeaveTo:   "2024-01-19",
		MarkedBy:  admin,
	})
	require.NoError(t, err)

	// sam is on leave the whole week, so nobody can cover tom on tuesday
	report := markAbsent(t, f, tom.ID, "2024-01-16")
	require.Len(t, report.Items, 1)
	assert.Equal(t, timetable.ItemManualRequired, report.Items[0].Status)
}

type flakyRepo struct {
	timetable.Repository
	failClassID string
}

func (r flakyRepo) LockWeeklyOverride(
	ctx context.Context,
	classID string,
	weekStart time.Time,
	exec ...core.DBExecutor,
) (timetable.WeeklyOverride, error) {
	if classID == r.failClassID {
		return timetable.WeeklyOverride{}, errors.New("connection reset by peer")
	}
	return r.Repository.LockWeeklyOverride(ctx, classID, weekStart, exec...)
}

func TestHandleTransition_classFailureIsIsolated(t *testing.T) {
	f := testutil.NewFixture(t)
	c1, c2 := f.AddClass("7A"), f.AddClass("7B")
	tom := f.AddTeacher("Tom", "math")
	f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1, testutil.Slot(timetable.Monday, 1, tom.ID, "math"))
	replaceSchedule(t, f, c2, testutil.Slot(timetable.Monday, 2, tom.ID, "math"))

	svc := timetable.NewService(timetable.Deps{
		Conf:       f.Conf,
		Logger:     f.Logger,
		Tx:         f.DB,
		Repo:       flakyRepo{Repository: f.Repo, failClassID: c1.ID},
		Directory:  f.Directory,
		Attendance: f.Attendance,
		Mailer:     f.Mailer,
		Now:        f.Clock.Now,
	})

	tr := mark(t, f, tom.ID, "2024-01-15", attendance.StatusAbsent)
	report, err := svc.HandleTransition(ctx, tr)
	require.NoError(t, err)
	require.Len(t, report.Items, 2)

	byClass := make(map[string]timetable.ReportItem)
	for _, it := range report.Items {
		byClass[it.ClassID] = it
	}
	assert.Equal(t, timetable.ItemFailed, byClass[c1.ID].Status)
	assert.Contains(t, byClass[c1.ID].Detail, "connection reset by peer")
	assert.Equal(t, timetable.ItemProposed, byClass[c2.ID].Status)
	assert.Equal(t, 2, byClass[c2.ID].Period)
	assert.NotEmpty(t, f.Logger.Errors())

	subs := substitutionsOn(t, f, "2024-01-15")
	require.Len(t, subs, 1)
	assert.Equal(t, c2.ID, subs[0].ClassID)
}

func TestHandleTransition_leaveRangeRepairsEveryDay(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	sam := f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1,
		testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
		testutil.Slot(timetable.Tuesday, 1, tom.ID, "math"),
		testutil.Slot(timetable.Thursday, 1, tom.ID, "math"),
	)

	_, tr, err := f.Attendance.Mark(ctx, attendance.Mark{
		TeacherID: tom.ID,
		Date:      "2024-01-15",
		Status:    attendance.StatusLeave,
		LeaveFrom: "2024-01-15",
		LeaveTo:   "2024-01-17",
		Reason:    "conference",
		MarkedBy:  admin,
	})
	require.NoError(t, err)
	report, err := f.Timetable.HandleTransition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, timetable.ActionRepair, report.Action)
	require.Len(t, report.Items, 2)
	assert.Equal(t, 2, report.Count(timetable.ItemProposed))
	assert.Equal(t, testutil.Date(t, "2024-01-16"), report.Items[1].Date)
	assert.Equal(t, timetable.Tuesday, report.Items[1].Day)

	for _, date := range []string{"2024-01-15", "2024-01-16"} {
		subs := substitutionsOn(t, f, date)
		require.Len(t, subs, 1, date)
		assert.Equal(t, sam.ID, core.StringVal(subs[0].SubstituteTeacherID))
		assert.Equal(t, "Tom leave: conference", subs[0].Reason)
	}
	assert.Empty(t, substitutionsOn(t, f, "2024-01-18")) // thursday is outside the leave

	// marking a covered day absent afterwards changes nothing and repairs nothing twice
	again := mark(t, f, tom.ID, "2024-01-16", attendance.StatusAbsent)
	report, err = f.Timetable.HandleTransition(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, timetable.ActionNone, report.Action)
	assert.Len(t, substitutionsOn(t, f, "2024-01-16"), 1)

	// replacing the leave record with a present mark reverts monday; tuesday keeps its own absent record
	back := mark(t, f, tom.ID, "2024-01-15", attendance.StatusPresent)
	report, err = f.Timetable.HandleTransition(ctx, back)
	require.NoError(t, err)
	assert.Equal(t, timetable.ActionRevert, report.Action)
	assert.Equal(t, 1, report.Count(timetable.ItemReverted))
	assert.Empty(t, substitutionsOn(t, f, "2024-01-15"))
	assert.Len(t, substitutionsOn(t, f, "2024-01-16"), 1)
}

func TestHandleTransition_leaveRangeShortened(t *testing.T) {
	f := testutil.NewFixture(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	f.AddTeacher("Sam", "math")
	replaceSchedule(t, f, c1,
		testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
		testutil.Slot(timetable.Wednesday, 1, tom.ID, "math"),
	)

	leave := func(to string) timetable.Report {
		_, tr, err := f.Attendance.Mark(ctx, attendance.Mark{
			TeacherID: tom.ID,
			Date:      "2024-01-15",
			Status:    attendance.StatusLeave,
			LeaveFrom: "2024-01-15",
			LeaveTo:   to,
			MarkedBy:  admin,
		})
		require.NoError(t, err)
		report, err := f.Timetable.HandleTransition(ctx, tr)
		require.NoError(t, err)
		return report
	}

	report := leave("2024-01-17")
	assert.Equal(t, 2, report.Count(timetable.ItemProposed))
	require.Len(t, substitutionsOn(t, f, "2024-01-17"), 1)

	report = leave("2024-01-16")
	assert.Equal(t, timetable.ActionRevert, report.Action)
	require.Len(t, report.Items, 1)
	assert.Equal(t, timetable.ItemReverted, report.Items[0].Status)
	assert.Equal(t, testutil.Date(t, "2024-01-17"), report.Items[0].Date)
	assert.Empty(t, substitutionsOn(t, f, "2024-01-17"))
	assert.Len(t, substitutionsOn(t, f, "2024-01-15"), 1)
}

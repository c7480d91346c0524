package timetable

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
)

type (
	// commitment is a teacher's obligation at one (day, period) of a week.
	commitment struct {
		classID        string
		substitutionID string // empty for timetable entries
	}

	// weekBook holds the commitments of every teacher of a school for one week.
	// It is built once per operation and shared by every availability check of that operation.
	weekBook struct {
		weekStart time.Time
		busy      map[string]map[Day]map[int][]commitment // teacherID -> day -> period
	}

	// bookIgnore excludes commitments from a check, typically those being replaced.
	bookIgnore struct {
		substitutionID string
		slot           *SlotKey
	}
)

func (b *weekBook) add(teacherID string, day Day, period int, c commitment) {
	days, ok := b.busy[teacherID]
	if !ok {
		days = make(map[Day]map[int][]commitment)
		b.busy[teacherID] = days
	}
	periods, ok := days[day]
	if !ok {
		periods = make(map[int][]commitment)
		days[day] = periods
	}
	periods[period] = append(periods[period], c)
}

func (ign bookIgnore) skips(c commitment, day Day, period int) bool {
	if ign.substitutionID != "" && c.substitutionID == ign.substitutionID {
		return true
	}
	if ign.slot != nil && ign.slot.ClassID == c.classID && ign.slot.Day == day && ign.slot.Period == period {
		return true
	}
	return false
}

func (b *weekBook) committedAt(teacherID string, day Day, period int, ign bookIgnore) bool {
	for _, c := range b.busy[teacherID][day][period] {
		if !ign.skips(c, day, period) {
			return true
		}
	}
	return false
}

// dailyPeriods counts the distinct periods the teacher is committed to on `day`.
func (b *weekBook) dailyPeriods(teacherID string, day Day, ign bookIgnore) int {
	var n int
	for period := range b.busy[teacherID][day] {
		if b.committedAt(teacherID, day, period, ign) {
			n++
		}
	}
	return n
}

// isFree reports whether the teacher has no commitment at (day, period) and is under their daily cap.
func (b *weekBook) isFree(t school.Teacher, day Day, period int, dailyCap int, ign bookIgnore) bool {
	if b.committedAt(t.ID, day, period, ign) {
		return false
	}
	if dailyCap > 0 && b.dailyPeriods(t.ID, day, ign) >= dailyCap {
		return false
	}
	return true
}

func (svc *Service) dailyCap(t school.Teacher) int {
	if t.MaxPeriodsPerDay > 0 {
		return t.MaxPeriodsPerDay
	}
	if svc.conf != nil {
		return svc.conf.Timetable.DefaultDailyPeriodCap
	}
	return 0
}

// effectiveEntries returns the override entries of the class for the week,
// or its active global slots as unmodified entries when the week has no override.
func (svc *Service) effectiveEntries(
	ctx context.Context,
	classID string,
	weekStart time.Time,
	exec ...core.DBExecutor,
) ([]OverrideEntry, *WeeklyOverride, error) {
	ov, err := svc.repo.GetWeeklyOverride(ctx, classID, weekStart, exec...)
	if err == nil {
		return ov.Entries, &ov, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return nil, nil, errors.Wrap(err, "getting weekly override")
	}

	slots, err := svc.repo.QueryActiveSlots(ctx, classID, exec...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying active slots")
	}
	entries := make([]OverrideEntry, 0, len(slots))
	for _, s := range slots {
		entries = append(entries, entryFromSlot(s))
	}
	return entries, nil, nil
}

// buildWeekBook loads the effective timetables of all classes of the school
// and the live substitutions of the week.
func (svc *Service) buildWeekBook(
	ctx context.Context,
	schoolID string,
	weekStart time.Time,
	exec ...core.DBExecutor,
) (*weekBook, error) {
	weekStart = WeekStart(weekStart)
	book := &weekBook{
		weekStart: weekStart,
		busy:      make(map[string]map[Day]map[int][]commitment),
	}

	classes, err := svc.dir.ListClasses(ctx, schoolID, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}
	classIDs := make([]string, 0, len(classes))
	for _, cls := range classes {
		classIDs = append(classIDs, cls.ID)
		entries, _, err := svc.effectiveEntries(ctx, cls.ID, weekStart, exec...)
		if err != nil {
			return nil, errors.Wrapf(err, "loading schedule of class %s", cls.ID)
		}
		for _, e := range entries {
			if e.TeacherID != nil {
				book.add(*e.TeacherID, e.Day, e.Period, commitment{classID: cls.ID})
			}
		}
	}
	if len(classIDs) == 0 {
		return book, nil
	}

	weekEnd := WeekEnd(weekStart)
	subs, err := svc.repo.QuerySubstitutions(ctx, SubstitutionFilter{
		ClassIDs: classIDs,
		DateFrom: &weekStart,
		DateTo:   &weekEnd,
		Statuses: LiveStatuses,
	}, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying substitutions")
	}
	for _, s := range subs {
		if s.SubstituteTeacherID != nil {
			book.add(*s.SubstituteTeacherID, s.Day, s.Period, commitment{classID: s.ClassID, substitutionID: s.ID})
		}
	}
	return book, nil
}

func (svc *Service) isAbsent(ctx context.Context, teacherID string, date time.Time) (bool, error) {
	status, err := svc.att.StatusOn(ctx, teacherID, date)
	if err != nil {
		return false, errors.Wrap(err, "getting attendance status")
	}
	return status.IsAbsent(), nil
}

// IsAvailable reports whether the teacher can take (day, period) of the week containing `date`:
// they are not absent on `date`, have no other commitment at that time in any class of their school,
// and are under their daily period cap.
func (svc *Service) IsAvailable(ctx context.Context, teacherID string, day Day, period int, date time.Time) (bool, error) {
	t, err := svc.dir.GetTeacher(ctx, teacherID)
	if err != nil {
		return false, errors.Wrap(err, "getting teacher")
	}
	return svc.isAvailable(ctx, t, day, period, Date(date), nil, bookIgnore{})
}

// isAvailable reuses `book` when given.
func (svc *Service) isAvailable(
	ctx context.Context,
	t school.Teacher,
	day Day,
	period int,
	date time.Time,
	book *weekBook,
	ign bookIgnore,
	exec ...core.DBExecutor,
) (bool, error) {
	if !t.IsActive {
		return false, nil
	}
	absent, err := svc.isAbsent(ctx, t.ID, date)
	if err != nil || absent {
		return false, err
	}
	if book == nil {
		if book, err = svc.buildWeekBook(ctx, t.SchoolID, WeekStart(date), exec...); err != nil {
			return false, errors.Wrap(err, "building week book")
		}
	}
	return book.isFree(t, day, period, svc.dailyCap(t), ign), nil
}

package timetable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/audit"
	"github.com/trezcool/ratiba/core/school"
)

type (
	// AttendanceReader tells whether a teacher is present on a date.
	AttendanceReader interface {
		StatusOn(ctx context.Context, teacherID string, date time.Time) (attendance.Status, error)
	}

	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Tx         core.Transactor
		Repo       Repository
		Directory  school.Directory
		Attendance AttendanceReader
		Audit      audit.Sink
		Mailer     core.EmailService
		// Now defaults to time.Now in UTC.
		Now func() time.Time
	}

	Service struct {
		conf   *core.Config
		logger core.Logger
		tx     core.Transactor
		repo   Repository
		dir    school.Directory
		att    AttendanceReader
		audit  *audit.Recorder
		mailer core.EmailService
		now    func() time.Time
	}
)

func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		conf:   deps.Conf,
		logger: deps.Logger,
		tx:     deps.Tx,
		repo:   deps.Repo,
		dir:    deps.Directory,
		att:    deps.Attendance,
		audit:  audit.NewRecorder(deps.Audit, deps.Logger),
		mailer: deps.Mailer,
		now:    now,
	}
}

func newID() string {
	return uuid.New().String()
}

// GlobalSchedule returns the active global slots of a class.
func (svc *Service) GlobalSchedule(ctx context.Context, classID string) ([]Slot, error) {
	if _, err := svc.dir.GetClass(ctx, classID); err != nil {
		return nil, errors.Wrap(err, "getting class")
	}
	slots, err := svc.repo.QueryActiveSlots(ctx, classID)
	return slots, errors.Wrap(err, "querying active slots")
}

// ReplaceGlobalSchedule stores `rs.Slots` as a new active version of the class's timetable.
// All previously active slots of the class are deactivated.
func (svc *Service) ReplaceGlobalSchedule(ctx context.Context, rs ReplaceSchedule) (Version, error) {
	cls, err := svc.dir.GetClass(ctx, rs.ClassID)
	if err != nil {
		return Version{}, errors.Wrap(err, "getting class")
	}

	// slot teachers must belong to the class's school
	var flds []core.FieldError
	for i, s := range rs.Slots {
		t, err := svc.dir.GetTeacher(ctx, s.TeacherID)
		switch {
		case errors.Cause(err) == school.ErrTeacherNotFound:
			flds = append(flds, core.FieldError{Field: fmt.Sprintf("slots[%d].teacher_id", i), Error: err.Error()})
		case err != nil:
			return Version{}, errors.Wrap(err, "getting teacher")
		case t.SchoolID != cls.SchoolID:
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("slots[%d].teacher_id", i), Error: errForeignTeacher.Error(),
			})
		}
	}
	if len(flds) > 0 {
		return Version{}, core.NewValidationError(errInvalidSchedule, flds...)
	}

	now := svc.now()
	weekStart := WeekStart(now)
	if rs.WeekStart != "" {
		ws, err := ParseDate(rs.WeekStart)
		if err != nil {
			return Version{}, core.NewValidationError(err, core.FieldError{Field: "week_start", Error: "invalid date"})
		}
		weekStart = WeekStart(ws)
	}
	name := core.CleanString(rs.Name)
	if name == "" {
		name = fmt.Sprintf("Schedule of %s", now.Format(time.RFC3339))
	}

	v := Version{
		ID:        newID(),
		ClassID:   cls.ID,
		Name:      name,
		WeekStart: weekStart,
		WeekEnd:   WeekEnd(weekStart),
		IsActive:  true,
		CreatedBy: rs.By,
		CreatedAt: now,
	}
	for _, s := range rs.Slots {
		v.Slots = append(v.Slots, Slot{
			ID:        newID(),
			ClassID:   cls.ID,
			VersionID: v.ID,
			Day:       s.Day,
			Period:    s.Period,
			TeacherID: s.TeacherID,
			SubjectID: s.SubjectID,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Room:      core.StringPtr(s.Room),
			IsActive:  true,
			CreatedAt: now,
		})
	}
	sortSlots(v.Slots)

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		return svc.storeVersion(ctx, v, exec)
	})
	if err != nil {
		return Version{}, errors.Wrap(err, "storing schedule version")
	}

	svc.audit.Record(ctx, audit.Entry{
		SchoolID:    cls.SchoolID,
		UserID:      rs.By,
		Action:      audit.ActionScheduleReplace,
		EntityType:  audit.EntityVersion,
		EntityID:    v.ID,
		Description: fmt.Sprintf("Global schedule of %s replaced by %q (%d slots)", cls.Name, v.Name, len(v.Slots)),
	})
	return v, nil
}

// storeVersion creates `v` as the active version of its class and makes its slots the active ones.
func (svc *Service) storeVersion(ctx context.Context, v Version, exec core.DBExecutor) error {
	active := v.IsActive
	v.IsActive = false
	created, err := svc.repo.CreateVersion(ctx, v, exec)
	if err != nil {
		return errors.Wrap(err, "creating version")
	}
	if active {
		if err = svc.repo.ActivateVersion(ctx, created, exec); err != nil {
			return errors.Wrap(err, "activating version")
		}
	}
	if err = svc.repo.DeactivateSlots(ctx, v.ClassID, exec); err != nil {
		return errors.Wrap(err, "deactivating slots")
	}
	if err = svc.repo.InsertSlots(ctx, v.Slots, exec); err != nil {
		return errors.Wrap(err, "inserting slots")
	}
	return nil
}

// Versions returns the version history of a class, newest first.
func (svc *Service) Versions(ctx context.Context, classID string) ([]Version, error) {
	if _, err := svc.dir.GetClass(ctx, classID); err != nil {
		return nil, errors.Wrap(err, "getting class")
	}
	versions, err := svc.repo.QueryVersions(ctx, classID)
	return versions, errors.Wrap(err, "querying versions")
}

// ActivateVersion rolls the class's global timetable back (or forward) to a stored version.
func (svc *Service) ActivateVersion(ctx context.Context, versionID, by string) (Version, error) {
	var v Version
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if v, err = svc.repo.GetVersion(ctx, versionID, exec); err != nil {
			return errors.Wrap(err, "getting version")
		}
		if err = svc.repo.ActivateVersion(ctx, v, exec); err != nil {
			return errors.Wrap(err, "activating version")
		}
		if err = svc.repo.ActivateVersionSlots(ctx, v, exec); err != nil {
			return errors.Wrap(err, "activating version slots")
		}
		v.IsActive = true
		v.Slots, err = svc.repo.QueryVersionSlots(ctx, v.ID, exec)
		return errors.Wrap(err, "querying version slots")
	})
	if err != nil {
		return Version{}, err
	}

	var schoolID string
	if cls, err := svc.dir.GetClass(ctx, v.ClassID); err == nil {
		schoolID = cls.SchoolID
	}
	svc.audit.Record(ctx, audit.Entry{
		SchoolID:    schoolID,
		UserID:      by,
		Action:      audit.ActionVersionActivate,
		EntityType:  audit.EntityVersion,
		EntityID:    v.ID,
		Description: fmt.Sprintf("Schedule version %q activated", v.Name),
	})
	return v, nil
}

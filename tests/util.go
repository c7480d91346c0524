// Package testutil wires in-memory services and fixtures for tests.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
	emailsvc "github.com/trezcool/ratiba/services/email"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
)

const SchoolID = "school-1"

// Logger keeps the messages logged at error level and above.
type Logger struct {
	mu     sync.Mutex
	errors []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}
func (l *Logger) Warn(string, ...interface{})  {}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(append([]interface{}{msg, " "}, args...)...))
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.Error(msg, args...)
}

func (l *Logger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

func NewConfig() *core.Config {
	conf := &core.Config{
		AppName:         "Ratiba",
		Env:             "TEST",
		TestMode:        true,
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://localhost:8080",
	}
	conf.SetDefaultFromEmail("noreply@ratiba.test")
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 30 * time.Minute
	conf.Timetable.DefaultDailyPeriodCap = 6
	conf.Timetable.NotifySubstitutes = true
	return conf
}

// Fixture is a fully wired in-memory engine.
type Fixture struct {
	Conf       *core.Config
	Logger     *Logger
	Clock      *Clock
	DB         *inmemdb.DB
	Mailer     *emailsvc.ConsoleServiceMock
	Directory  school.Directory
	Repo       timetable.Repository
	Attendance *attendance.Service
	Timetable  *timetable.Service
}

// NewFixture wires the services on an empty in-memory database. The clock starts on Monday 2024-01-15.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	conf := NewConfig()
	logger := new(Logger)
	core.ParseEmailTemplates(logger, true)

	db := inmemdb.NewDB()
	dir := inmemdb.NewDirectory(db)
	repo := inmemdb.NewTimetableRepository(db)
	attSvc := attendance.NewService(inmemdb.NewAttendanceRepository(db), dir)
	mailer := emailsvc.NewConsoleServiceMock(conf, logger)
	clock := NewClock(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC))

	return &Fixture{
		Conf:       conf,
		Logger:     logger,
		Clock:      clock,
		DB:         db,
		Mailer:     mailer,
		Directory:  dir,
		Repo:       repo,
		Attendance: attSvc,
		Timetable: timetable.NewService(timetable.Deps{
			Conf:       conf,
			Logger:     logger,
			Tx:         db,
			Repo:       repo,
			Directory:  dir,
			Attendance: attSvc,
			Audit:      inmemdb.NewAuditSink(db),
			Mailer:     mailer,
			Now:        clock.Now,
		}),
	}
}

func (f *Fixture) AddTeacher(name string, subjects ...string) school.Teacher {
	return f.DB.AddTeacher(school.Teacher{
		ID:       uuid.New().String(),
		SchoolID: SchoolID,
		Name:     name,
		Email:    fmt.Sprintf("%s@ratiba.test", name),
		Subjects: subjects,
		IsActive: true,
	})
}

func (f *Fixture) AddClass(name string) school.Class {
	return f.DB.AddClass(school.Class{ID: uuid.New().String(), SchoolID: SchoolID, Name: name})
}

// Slot builds a slot input; period p runs from (7+p):00 to (7+p):45.
func Slot(day timetable.Day, period int, teacherID, subjectID string) timetable.SlotInput {
	return timetable.SlotInput{
		Day:       day,
		Period:    period,
		TeacherID: teacherID,
		SubjectID: subjectID,
		StartTime: fmt.Sprintf("%02d:00", 7+period),
		EndTime:   fmt.Sprintf("%02d:45", 7+period),
	}
}

// Date parses a YYYY-MM-DD date or fails the test.
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := timetable.ParseDate(s)
	if err != nil {
		t.Fatalf("Date(%q) failed: %v", s, err)
	}
	return d
}

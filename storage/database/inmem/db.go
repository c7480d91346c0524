// Package inmemdb implements the repositories in memory, for tests and local tooling.
package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/audit"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
)

type tables struct {
	teachers   map[string]school.Teacher
	classes    map[string]school.Class
	attendance map[string]attendance.Record // {teacherID|date: Record}
	audit      []audit.Entry
	slots      map[string]timetable.Slot
	versions   map[string]timetable.Version
	overrides  map[string]timetable.WeeklyOverride // {classID|weekStart: WeeklyOverride}
	changes    map[string]timetable.Change
	subs       map[string]timetable.Substitution
}

// DB is an in-memory database.
// InTx serializes units of work and restores a snapshot when one fails.
type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	t    tables
}

var _ core.Transactor = (*DB)(nil)

func NewDB() *DB {
	return &DB{t: tables{
		teachers:   make(map[string]school.Teacher),
		classes:    make(map[string]school.Class),
		attendance: make(map[string]attendance.Record),
		slots:      make(map[string]timetable.Slot),
		versions:   make(map[string]timetable.Version),
		overrides:  make(map[string]timetable.WeeklyOverride),
		changes:    make(map[string]timetable.Change),
		subs:       make(map[string]timetable.Substitution),
	}}
}

func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.t = snap
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *DB) snapshot() tables {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := tables{
		teachers:   make(map[string]school.Teacher, len(db.t.teachers)),
		classes:    make(map[string]school.Class, len(db.t.classes)),
		attendance: make(map[string]attendance.Record, len(db.t.attendance)),
		audit:      append([]audit.Entry(nil), db.t.audit...),
		slots:      make(map[string]timetable.Slot, len(db.t.slots)),
		versions:   make(map[string]timetable.Version, len(db.t.versions)),
		overrides:  make(map[string]timetable.WeeklyOverride, len(db.t.overrides)),
		changes:    make(map[string]timetable.Change, len(db.t.changes)),
		subs:       make(map[string]timetable.Substitution, len(db.t.subs)),
	}
	for k, v := range db.t.teachers {
		snap.teachers[k] = v
	}
	for k, v := range db.t.classes {
		snap.classes[k] = v
	}
	for k, v := range db.t.attendance {
		snap.attendance[k] = v
	}
	for k, v := range db.t.slots {
		snap.slots[k] = v
	}
	for k, v := range db.t.versions {
		snap.versions[k] = v
	}
	for k, v := range db.t.overrides {
		snap.overrides[k] = copyOverride(v)
	}
	for k, v := range db.t.changes {
		snap.changes[k] = v
	}
	for k, v := range db.t.subs {
		snap.subs[k] = v
	}
	return snap
}

func copyOverride(o timetable.WeeklyOverride) timetable.WeeklyOverride {
	o.Entries = append([]timetable.OverrideEntry(nil), o.Entries...)
	return o
}

func dateKey(id string, t time.Time) string {
	return id + "|" + timetable.Date(t).Format(timetable.DateLayout)
}

func sameDate(a, b time.Time) bool {
	return timetable.Date(a).Equal(timetable.Date(b))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

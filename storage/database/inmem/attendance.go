package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/audit"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) GetRecord(_ context.Context, teacherID string, date time.Time, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.t.attendance[dateKey(teacherID, date)]; ok {
		return rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) FindCovering(_ context.Context, teacherID string, date time.Time, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.t.attendance[dateKey(teacherID, date)]; ok {
		return rec, nil
	}
	// latest marked leave covering the date wins
	var found *attendance.Record
	for _, rec := range repo.db.t.attendance {
		rec := rec
		if rec.TeacherID != teacherID || rec.LeaveFrom == nil || !rec.Covers(date) {
			continue
		}
		if found == nil || rec.Date.After(found.Date) {
			found = &rec
		}
	}
	if found == nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return *found, nil
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := dateKey(rec.TeacherID, rec.Date)
	if prev, ok := repo.db.t.attendance[key]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	}
	repo.db.t.attendance[key] = rec
	return rec, nil
}

type auditSink struct {
	db *DB
}

var _ audit.Sink = (*auditSink)(nil)

func NewAuditSink(db *DB) *auditSink {
	return &auditSink{db: db}
}

func (sink *auditSink) Append(_ context.Context, entry audit.Entry, _ ...core.DBExecutor) error {
	sink.db.mu.Lock()
	defer sink.db.mu.Unlock()

	entry.ID = int64(len(sink.db.t.audit) + 1)
	sink.db.t.audit = append(sink.db.t.audit, entry)
	return nil
}

// AuditEntries returns the appended audit entries, oldest first.
func (db *DB) AuditEntries() []audit.Entry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]audit.Entry(nil), db.t.audit...)
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/audit"
	"github.com/trezcool/ratiba/core/timetable"
)

const attendanceColumns = `id, teacher_id, date, status, leave_from, leave_to, reason, marked_by, created_at, updated_at`

type attendanceRow struct {
	ID        string       `db:"id"`
	TeacherID string       `db:"teacher_id"`
	Date      time.Time    `db:"date"`
	Status    string       `db:"status"`
	LeaveFrom sql.NullTime `db:"leave_from"`
	LeaveTo   sql.NullTime `db:"leave_to"`
	Reason    string       `db:"reason"`
	MarkedBy  string       `db:"marked_by"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: timetable.Date(*t), Valid: true}
}

func datePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	d := timetable.Date(t.Time)
	return &d
}

func (r attendanceRow) toRecord() attendance.Record {
	return attendance.Record{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		Date:      timetable.Date(r.Date),
		Status:    attendance.Status(r.Status),
		LeaveFrom: datePtr(r.LeaveFrom),
		LeaveTo:   datePtr(r.LeaveTo),
		Reason:    r.Reason,
		MarkedBy:  r.MarkedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type attendanceRepository struct {
	base
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{base{exec: exec}}
}

func (repo attendanceRepository) GetRecord(ctx context.Context, teacherID string, date time.Time, exec ...core.DBExecutor) (attendance.Record, error) {
	var rows []attendanceRow
	q := `SELECT ` + attendanceColumns + ` FROM teacher_attendance WHERE teacher_id = $1 AND date = $2`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, teacherID, timetable.Date(date)); err != nil {
		return attendance.Record{}, errors.Wrap(err, "finding attendance record")
	}
	if len(rows) == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rows[0].toRecord(), nil
}

func (repo attendanceRepository) FindCovering(ctx context.Context, teacherID string, date time.Time, exec ...core.DBExecutor) (attendance.Record, error) {
	var rows []attendanceRow
	// the record marked for the date first, then the latest leave covering it
	q := `SELECT ` + attendanceColumns + ` FROM teacher_attendance
		WHERE teacher_id = $1 AND (date = $2 OR (leave_from <= $2 AND leave_to >= $2))
		ORDER BY (date = $2) DESC, date DESC
		LIMIT 1`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, teacherID, timetable.Date(date)); err != nil {
		return attendance.Record{}, errors.Wrap(err, "finding covering attendance record")
	}
	if len(rows) == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rows[0].toRecord(), nil
}

func (repo attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	row := attendanceRow{
		ID:        rec.ID,
		TeacherID: rec.TeacherID,
		Date:      timetable.Date(rec.Date),
		Status:    string(rec.Status),
		LeaveFrom: nullDate(rec.LeaveFrom),
		LeaveTo:   nullDate(rec.LeaveTo),
		Reason:    rec.Reason,
		MarkedBy:  rec.MarkedBy,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}

	q := `INSERT INTO teacher_attendance (` + attendanceColumns + `)
		VALUES (:id, :teacher_id, :date, :status, :leave_from, :leave_to, :reason, :marked_by, :created_at, :updated_at)
		ON CONFLICT (teacher_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			leave_from = EXCLUDED.leave_from,
			leave_to = EXCLUDED.leave_to,
			reason = EXCLUDED.reason,
			marked_by = EXCLUDED.marked_by,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + attendanceColumns
	rows, err := execNamed(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	defer func() { _ = rows.Close() }()

	var saved []attendanceRow
	if err = sqlx.StructScan(rows, &saved); err != nil {
		return attendance.Record{}, errors.Wrap(err, "scanning attendance record")
	}
	if len(saved) == 0 {
		return attendance.Record{}, errors.New("upserting attendance record: no row returned")
	}
	return saved[0].toRecord(), nil
}

type auditSink struct {
	base
}

var _ audit.Sink = (*auditSink)(nil) // interface compliance check

func NewAuditSink(exec core.DBExecutor) *auditSink {
	return &auditSink{base{exec: exec}}
}

func (sink auditSink) Append(ctx context.Context, entry audit.Entry, exec ...core.DBExecutor) error {
	row := struct {
		SchoolID    string    `db:"school_id"`
		UserID      string    `db:"user_id"`
		Action      string    `db:"action"`
		EntityType  string    `db:"entity_type"`
		EntityID    string    `db:"entity_id"`
		Description string    `db:"description"`
		CreatedAt   time.Time `db:"created_at"`
	}{entry.SchoolID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.Description, entry.CreatedAt.UTC()}

	q := `INSERT INTO audit_logs (school_id, user_id, action, entity_type, entity_id, description, created_at)
		VALUES (:school_id, :user_id, :action, :entity_type, :entity_id, :description, :created_at)`
	rows, err := execNamed(ctx, sink.getExec(exec), q, row)
	if err != nil {
		return errors.Wrap(err, "inserting audit entry")
	}
	return rows.Close()
}

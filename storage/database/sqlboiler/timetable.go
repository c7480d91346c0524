package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

const (
	slotColumns         = `id, class_id, version_id, day, period, teacher_id, subject_id, start_time, end_time, room, is_active, created_at`
	versionColumns      = `id, class_id, name, week_start, week_end, is_active, created_by, created_at`
	overrideColumns     = `id, class_id, week_start, week_end, modification_count, last_modified_by, promoted_at, promoted_by, created_at, updated_at`
	entryColumns        = `day, period, teacher_id, subject_id, start_time, end_time, room, is_modified, modification_reason, source_slot_id`
	changeColumns       = `id, class_id, day, period, slot_id, change_type, date, original_teacher_id, new_teacher_id, original_room, new_room, reason, source, approved_by, is_active, created_by, created_at`
	substitutionColumns = `id, class_id, day, period, date, subject_id, original_teacher_id, substitute_teacher_id, reason, status, is_auto_generated, approved_by, approved_at, created_at, updated_at`

	dayOrder = `array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday','sunday']::varchar[], day)`
)

type timetableRepository struct {
	exec core.DBExecutor
}

var _ timetable.Repository = (*timetableRepository)(nil) // interface compliance check

func NewTimetableRepository(exec core.DBExecutor) *timetableRepository {
	return &timetableRepository{exec: exec}
}

func (repo timetableRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to timetable.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return timetable.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps psql unique violations to timetable.ErrConflict
func trapUniqueErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23505" {
		return timetable.ErrConflict
	}
	return errors.Wrap(err, msg)
}

func checkAffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return timetable.ErrNotFound
	}
	return nil
}

// Slots

func (repo timetableRepository) QueryActiveSlots(ctx context.Context, classID string, exec ...core.DBExecutor) ([]timetable.Slot, error) {
	var rows []slotRow
	q := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE class_id = $1 AND is_active ORDER BY ` + dayOrder + `, period`
	if err := queries.Raw(q, classID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying active slots")
	}
	return unboilSlots(rows), nil
}

func unboilSlots(rows []slotRow) []timetable.Slot {
	slots := make([]timetable.Slot, 0, len(rows))
	for _, r := range rows {
		slots = append(slots, r.unboil())
	}
	return slots
}

func (repo timetableRepository) DeactivateSlots(ctx context.Context, classID string, exec ...core.DBExecutor) error {
	q := `UPDATE schedule_slots SET is_active = FALSE WHERE class_id = $1 AND is_active`
	if _, err := queries.Raw(q, classID).ExecContext(ctx, repo.getExec(exec)); err != nil {
		return errors.Wrap(err, "deactivating slots")
	}
	return nil
}

func (repo timetableRepository) InsertSlots(ctx context.Context, slots []timetable.Slot, exec ...core.DBExecutor) error {
	q := `INSERT INTO schedule_slots (` + slotColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	exe := repo.getExec(exec)
	for _, s := range slots {
		_, err := queries.Raw(q,
			s.ID, s.ClassID, null.NewString(s.VersionID, s.VersionID != ""), string(s.Day), s.Period,
			s.TeacherID, s.SubjectID, s.StartTime, s.EndTime, null.StringFromPtr(s.Room), s.IsActive, s.CreatedAt.UTC(),
		).ExecContext(ctx, exe)
		if err != nil {
			return trapUniqueErr(err, "inserting slot")
		}
	}
	return nil
}

// Versions

func (repo timetableRepository) CreateVersion(ctx context.Context, v timetable.Version, exec ...core.DBExecutor) (timetable.Version, error) {
	q := `INSERT INTO schedule_versions (` + versionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := queries.Raw(q,
		v.ID, v.ClassID, v.Name, dateOnly(v.WeekStart), dateOnly(v.WeekEnd), v.IsActive, v.CreatedBy, v.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return timetable.Version{}, trapUniqueErr(err, "inserting version")
	}
	return v, nil
}

func (repo timetableRepository) GetVersion(ctx context.Context, id string, exec ...core.DBExecutor) (timetable.Version, error) {
	var row versionRow
	q := `SELECT ` + versionColumns + ` FROM schedule_versions WHERE id = $1`
	if err := queries.Raw(q, id).Bind(ctx, repo.getExec(exec), &row); err != nil {
		return timetable.Version{}, trapNoRowsErr(err, "finding version")
	}
	return row.unboil(), nil
}

func (repo timetableRepository) QueryVersions(ctx context.Context, classID string, exec ...core.DBExecutor) ([]timetable.Version, error) {
	var rows []versionRow
	q := `SELECT ` + versionColumns + ` FROM schedule_versions WHERE class_id = $1 ORDER BY created_at DESC, id DESC`
	if err := queries.Raw(q, classID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying versions")
	}
	versions := make([]timetable.Version, 0, len(rows))
	for _, r := range rows {
		versions = append(versions, r.unboil())
	}
	return versions, nil
}

func (repo timetableRepository) QueryVersionSlots(ctx context.Context, versionID string, exec ...core.DBExecutor) ([]timetable.Slot, error) {
	var rows []slotRow
	q := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE version_id = $1 ORDER BY ` + dayOrder + `, period`
	if err := queries.Raw(q, versionID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying version slots")
	}
	return unboilSlots(rows), nil
}

func (repo timetableRepository) ActivateVersion(ctx context.Context, v timetable.Version, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	// deactivate first: one active version per class, whatever its week range
	q := `UPDATE schedule_versions SET is_active = FALSE
		WHERE class_id = $1 AND id <> $2 AND is_active`
	if _, err := queries.Raw(q, v.ClassID, v.ID).ExecContext(ctx, exe); err != nil {
		return errors.Wrap(err, "deactivating versions")
	}

	res, err := queries.Raw(`UPDATE schedule_versions SET is_active = TRUE WHERE id = $1`, v.ID).ExecContext(ctx, exe)
	if err != nil {
		return trapUniqueErr(err, "activating version")
	}
	return checkAffected(res, "activating version")
}

func (repo timetableRepository) ActivateVersionSlots(ctx context.Context, v timetable.Version, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if err := repo.DeactivateSlots(ctx, v.ClassID, exe); err != nil {
		return err
	}
	q := `UPDATE schedule_slots SET is_active = TRUE WHERE class_id = $1 AND version_id = $2`
	if _, err := queries.Raw(q, v.ClassID, v.ID).ExecContext(ctx, exe); err != nil {
		return trapUniqueErr(err, "activating version slots")
	}
	return nil
}

// Weekly overrides

func (repo timetableRepository) getWeeklyOverride(ctx context.Context, classID string, weekStart time.Time, lock bool, exe core.DBExecutor) (timetable.WeeklyOverride, error) {
	var row overrideRow
	q := `SELECT ` + overrideColumns + ` FROM weekly_overrides WHERE class_id = $1 AND week_start = $2`
	if lock {
		q += ` FOR UPDATE`
	}
	if err := queries.Raw(q, classID, dateOnly(weekStart)).Bind(ctx, exe, &row); err != nil {
		return timetable.WeeklyOverride{}, trapNoRowsErr(err, "finding weekly override")
	}

	var entries []entryRow
	q = `SELECT ` + entryColumns + ` FROM weekly_override_entries WHERE override_id = $1 ORDER BY ` + dayOrder + `, period`
	if err := queries.Raw(q, row.ID).Bind(ctx, exe, &entries); err != nil {
		return timetable.WeeklyOverride{}, errors.Wrap(err, "querying weekly override entries")
	}
	return row.unboil(entries), nil
}

func (repo timetableRepository) GetWeeklyOverride(ctx context.Context, classID string, weekStart time.Time, exec ...core.DBExecutor) (timetable.WeeklyOverride, error) {
	return repo.getWeeklyOverride(ctx, classID, weekStart, false, repo.getExec(exec))
}

func (repo timetableRepository) LockWeeklyOverride(ctx context.Context, classID string, weekStart time.Time, exec ...core.DBExecutor) (timetable.WeeklyOverride, error) {
	return repo.getWeeklyOverride(ctx, classID, weekStart, true, repo.getExec(exec))
}

func (repo timetableRepository) InsertWeeklyOverrideIfAbsent(ctx context.Context, o timetable.WeeklyOverride, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)

	var inserted []struct {
		ID string `boil:"id"`
	}
	q := `INSERT INTO weekly_overrides (` + overrideColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (class_id, week_start) DO NOTHING RETURNING id`
	err := queries.Raw(q,
		o.ID, o.ClassID, dateOnly(o.WeekStart), dateOnly(o.WeekEnd), o.ModificationCount,
		null.StringFromPtr(o.LastModifiedBy), null.TimeFromPtr(o.PromotedAt), null.StringFromPtr(o.PromotedBy),
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	).Bind(ctx, exe, &inserted)
	if err != nil {
		return false, errors.Wrap(err, "inserting weekly override")
	}
	if len(inserted) == 0 {
		return false, nil
	}
	if err = repo.insertEntries(ctx, o, exe); err != nil {
		return false, err
	}
	return true, nil
}

func (repo timetableRepository) insertEntries(ctx context.Context, o timetable.WeeklyOverride, exe core.DBExecutor) error {
	q := `INSERT INTO weekly_override_entries (override_id, ` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, e := range o.Entries {
		_, err := queries.Raw(q,
			o.ID, string(e.Day), e.Period, null.StringFromPtr(e.TeacherID), null.StringFromPtr(e.SubjectID),
			e.StartTime, e.EndTime, null.StringFromPtr(e.Room), e.IsModified, e.ModificationReason, null.StringFromPtr(e.SourceSlotID),
		).ExecContext(ctx, exe)
		if err != nil {
			return trapUniqueErr(err, "inserting weekly override entry")
		}
	}
	return nil
}

func (repo timetableRepository) SaveWeeklyOverride(ctx context.Context, o timetable.WeeklyOverride, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	q := `UPDATE weekly_overrides
		SET modification_count = $2, last_modified_by = $3, promoted_at = $4, promoted_by = $5, updated_at = $6
		WHERE id = $1`
	res, err := queries.Raw(q,
		o.ID, o.ModificationCount, null.StringFromPtr(o.LastModifiedBy),
		null.TimeFromPtr(o.PromotedAt), null.StringFromPtr(o.PromotedBy), o.UpdatedAt.UTC(),
	).ExecContext(ctx, exe)
	if err != nil {
		return errors.Wrap(err, "updating weekly override")
	}
	if err = checkAffected(res, "updating weekly override"); err != nil {
		return err
	}

	if _, err = queries.Raw(`DELETE FROM weekly_override_entries WHERE override_id = $1`, o.ID).ExecContext(ctx, exe); err != nil {
		return errors.Wrap(err, "deleting weekly override entries")
	}
	return repo.insertEntries(ctx, o, exe)
}

// Changes

func (repo timetableRepository) CreateChange(ctx context.Context, c timetable.Change, exec ...core.DBExecutor) (timetable.Change, error) {
	q := `INSERT INTO schedule_changes (` + changeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := queries.Raw(q,
		c.ID, c.ClassID, string(c.Day), c.Period, null.StringFromPtr(c.SlotID), string(c.Type), dateOnly(c.Date),
		null.StringFromPtr(c.OriginalTeacherID), null.StringFromPtr(c.NewTeacherID),
		null.StringFromPtr(c.OriginalRoom), null.StringFromPtr(c.NewRoom),
		c.Reason, string(c.Source), null.StringFromPtr(c.ApprovedBy), c.IsActive, c.CreatedBy, c.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return timetable.Change{}, trapUniqueErr(err, "inserting change")
	}
	return c, nil
}

func (repo timetableRepository) QueryChanges(ctx context.Context, f timetable.ChangeFilter, exec ...core.DBExecutor) ([]timetable.Change, error) {
	var w where
	if len(f.ClassIDs) > 0 {
		w.add("class_id = ANY(?)", pq.Array(f.ClassIDs))
	}
	if f.Key != nil {
		w.add("class_id = ? AND day = ? AND period = ?", f.Key.ClassID, string(f.Key.Day), f.Key.Period)
	}
	if f.Date != nil {
		w.add("date = ?", dateOnly(*f.Date))
	}
	if f.OriginalTeacherID != "" {
		w.add("original_teacher_id = ?", f.OriginalTeacherID)
	}
	if f.Source != "" {
		w.add("source = ?", string(f.Source))
	}
	if f.ActiveOnly {
		w.add("is_active")
	}

	var rows []changeRow
	q := `SELECT ` + changeColumns + ` FROM schedule_changes` + w.String() + ` ORDER BY date, created_at, id`
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying changes")
	}
	changes := make([]timetable.Change, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, r.unboil())
	}
	return changes, nil
}

func (repo timetableRepository) UpdateChange(ctx context.Context, c timetable.Change, exec ...core.DBExecutor) error {
	q := `UPDATE schedule_changes
		SET new_teacher_id = $2, new_room = $3, reason = $4, approved_by = $5, is_active = $6
		WHERE id = $1`
	res, err := queries.Raw(q,
		c.ID, null.StringFromPtr(c.NewTeacherID), null.StringFromPtr(c.NewRoom), c.Reason, null.StringFromPtr(c.ApprovedBy), c.IsActive,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "updating change")
	}
	return checkAffected(res, "updating change")
}

// Substitutions

func (repo timetableRepository) CreateSubstitution(ctx context.Context, s timetable.Substitution, exec ...core.DBExecutor) (timetable.Substitution, error) {
	q := `INSERT INTO substitutions (` + substitutionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := queries.Raw(q,
		s.ID, s.ClassID, string(s.Day), s.Period, dateOnly(s.Date), s.SubjectID, s.OriginalTeacherID,
		null.StringFromPtr(s.SubstituteTeacherID), s.Reason, string(s.Status), s.IsAutoGenerated,
		null.StringFromPtr(s.ApprovedBy), null.TimeFromPtr(s.ApprovedAt), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return timetable.Substitution{}, trapUniqueErr(err, "inserting substitution")
	}
	return s, nil
}

func (repo timetableRepository) GetSubstitution(ctx context.Context, id string, exec ...core.DBExecutor) (timetable.Substitution, error) {
	var row substitutionRow
	q := `SELECT ` + substitutionColumns + ` FROM substitutions WHERE id = $1`
	if err := queries.Raw(q, id).Bind(ctx, repo.getExec(exec), &row); err != nil {
		return timetable.Substitution{}, trapNoRowsErr(err, "finding substitution")
	}
	return row.unboil(), nil
}

func (repo timetableRepository) QuerySubstitutions(ctx context.Context, f timetable.SubstitutionFilter, exec ...core.DBExecutor) ([]timetable.Substitution, error) {
	var w where
	if len(f.ClassIDs) > 0 {
		w.add("class_id = ANY(?)", pq.Array(f.ClassIDs))
	}
	if f.Key != nil {
		w.add("class_id = ? AND day = ? AND period = ?", f.Key.ClassID, string(f.Key.Day), f.Key.Period)
	}
	if f.Date != nil {
		w.add("date = ?", dateOnly(*f.Date))
	}
	if f.DateFrom != nil {
		w.add("date >= ?", dateOnly(*f.DateFrom))
	}
	if f.DateTo != nil {
		w.add("date <= ?", dateOnly(*f.DateTo))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if f.OriginalTeacherID != "" {
		w.add("original_teacher_id = ?", f.OriginalTeacherID)
	}
	if f.SubstituteTeacherID != "" {
		w.add("substitute_teacher_id = ?", f.SubstituteTeacherID)
	}

	var rows []substitutionRow
	q := `SELECT ` + substitutionColumns + ` FROM substitutions` + w.String() + ` ORDER BY date, class_id, period, id`
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying substitutions")
	}
	subs := make([]timetable.Substitution, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.unboil())
	}
	return subs, nil
}

func (repo timetableRepository) UpdateSubstitution(ctx context.Context, s timetable.Substitution, exec ...core.DBExecutor) error {
	q := `UPDATE substitutions
		SET substitute_teacher_id = $2, reason = $3, status = $4, approved_by = $5, approved_at = $6, updated_at = $7
		WHERE id = $1`
	res, err := queries.Raw(q,
		s.ID, null.StringFromPtr(s.SubstituteTeacherID), s.Reason, string(s.Status),
		null.StringFromPtr(s.ApprovedBy), null.TimeFromPtr(s.ApprovedAt), s.UpdatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return trapUniqueErr(err, "updating substitution")
	}
	return checkAffected(res, "updating substitution")
}

func (repo timetableRepository) DeleteSubstitutions(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	q := `DELETE FROM substitutions WHERE id = ANY($1)`
	if _, err := queries.Raw(q, pq.Array(ids)).ExecContext(ctx, repo.getExec(exec)); err != nil {
		return errors.Wrap(err, "deleting substitutions")
	}
	return nil
}

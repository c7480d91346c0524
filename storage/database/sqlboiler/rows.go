package boiledrepos

import (
	"fmt"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/timetable"
)

type (
	slotRow struct {
		ID        string      `boil:"id"`
		ClassID   string      `boil:"class_id"`
		VersionID null.String `boil:"version_id"`
		Day       string      `boil:"day"`
		Period    int         `boil:"period"`
		TeacherID string      `boil:"teacher_id"`
		SubjectID string      `boil:"subject_id"`
		StartTime string      `boil:"start_time"`
		EndTime   string      `boil:"end_time"`
		Room      null.String `boil:"room"`
		IsActive  bool        `boil:"is_active"`
		CreatedAt time.Time   `boil:"created_at"`
	}

	versionRow struct {
		ID        string    `boil:"id"`
		ClassID   string    `boil:"class_id"`
		Name      string    `boil:"name"`
		WeekStart time.Time `boil:"week_start"`
		WeekEnd   time.Time `boil:"week_end"`
		IsActive  bool      `boil:"is_active"`
		CreatedBy string    `boil:"created_by"`
		CreatedAt time.Time `boil:"created_at"`
	}

	overrideRow struct {
		ID                string      `boil:"id"`
		ClassID           string      `boil:"class_id"`
		WeekStart         time.Time   `boil:"week_start"`
		WeekEnd           time.Time   `boil:"week_end"`
		ModificationCount int         `boil:"modification_count"`
		LastModifiedBy    null.String `boil:"last_modified_by"`
		PromotedAt        null.Time   `boil:"promoted_at"`
		PromotedBy        null.String `boil:"promoted_by"`
		CreatedAt         time.Time   `boil:"created_at"`
		UpdatedAt         time.Time   `boil:"updated_at"`
	}

	entryRow struct {
		Day                string      `boil:"day"`
		Period             int         `boil:"period"`
		TeacherID          null.String `boil:"teacher_id"`
		SubjectID          null.String `boil:"subject_id"`
		StartTime          string      `boil:"start_time"`
		EndTime            string      `boil:"end_time"`
		Room               null.String `boil:"room"`
		IsModified         bool        `boil:"is_modified"`
		ModificationReason string      `boil:"modification_reason"`
		SourceSlotID       null.String `boil:"source_slot_id"`
	}

	changeRow struct {
		ID                string      `boil:"id"`
		ClassID           string      `boil:"class_id"`
		Day               string      `boil:"day"`
		Period            int         `boil:"period"`
		SlotID            null.String `boil:"slot_id"`
		ChangeType        string      `boil:"change_type"`
		Date              time.Time   `boil:"date"`
		OriginalTeacherID null.String `boil:"original_teacher_id"`
		NewTeacherID      null.String `boil:"new_teacher_id"`
		OriginalRoom      null.String `boil:"original_room"`
		NewRoom           null.String `boil:"new_room"`
		Reason            string      `boil:"reason"`
		Source            string      `boil:"source"`
		ApprovedBy        null.String `boil:"approved_by"`
		IsActive          bool        `boil:"is_active"`
		CreatedBy         string      `boil:"created_by"`
		CreatedAt         time.Time   `boil:"created_at"`
	}

	substitutionRow struct {
		ID                  string      `boil:"id"`
		ClassID             string      `boil:"class_id"`
		Day                 string      `boil:"day"`
		Period              int         `boil:"period"`
		Date                time.Time   `boil:"date"`
		SubjectID           string      `boil:"subject_id"`
		OriginalTeacherID   string      `boil:"original_teacher_id"`
		SubstituteTeacherID null.String `boil:"substitute_teacher_id"`
		Reason              string      `boil:"reason"`
		Status              string      `boil:"status"`
		IsAutoGenerated     bool        `boil:"is_auto_generated"`
		ApprovedBy          null.String `boil:"approved_by"`
		ApprovedAt          null.Time   `boil:"approved_at"`
		CreatedAt           time.Time   `boil:"created_at"`
		UpdatedAt           time.Time   `boil:"updated_at"`
	}
)

func dateOnly(t time.Time) time.Time {
	return timetable.Date(t)
}

func (r slotRow) unboil() timetable.Slot {
	return timetable.Slot{
		ID:        r.ID,
		ClassID:   r.ClassID,
		VersionID: r.VersionID.String,
		Day:       timetable.Day(r.Day),
		Period:    r.Period,
		TeacherID: r.TeacherID,
		SubjectID: r.SubjectID,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Room:      r.Room.Ptr(),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
}

func (r versionRow) unboil() timetable.Version {
	return timetable.Version{
		ID:        r.ID,
		ClassID:   r.ClassID,
		Name:      r.Name,
		WeekStart: dateOnly(r.WeekStart),
		WeekEnd:   dateOnly(r.WeekEnd),
		IsActive:  r.IsActive,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

func (r overrideRow) unboil(entries []entryRow) timetable.WeeklyOverride {
	o := timetable.WeeklyOverride{
		ID:                r.ID,
		ClassID:           r.ClassID,
		WeekStart:         dateOnly(r.WeekStart),
		WeekEnd:           dateOnly(r.WeekEnd),
		Entries:           make([]timetable.OverrideEntry, 0, len(entries)),
		ModificationCount: r.ModificationCount,
		LastModifiedBy:    r.LastModifiedBy.Ptr(),
		PromotedAt:        r.PromotedAt.Ptr(),
		PromotedBy:        r.PromotedBy.Ptr(),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	for _, e := range entries {
		o.Entries = append(o.Entries, timetable.OverrideEntry{
			Day:                timetable.Day(e.Day),
			Period:             e.Period,
			TeacherID:          e.TeacherID.Ptr(),
			SubjectID:          e.SubjectID.Ptr(),
			StartTime:          e.StartTime,
			EndTime:            e.EndTime,
			Room:               e.Room.Ptr(),
			IsModified:         e.IsModified,
			ModificationReason: e.ModificationReason,
			SourceSlotID:       e.SourceSlotID.Ptr(),
		})
	}
	return o
}

func (r changeRow) unboil() timetable.Change {
	return timetable.Change{
		ID:                r.ID,
		ClassID:           r.ClassID,
		Day:               timetable.Day(r.Day),
		Period:            r.Period,
		SlotID:            r.SlotID.Ptr(),
		Type:              timetable.ChangeType(r.ChangeType),
		Date:              dateOnly(r.Date),
		OriginalTeacherID: r.OriginalTeacherID.Ptr(),
		NewTeacherID:      r.NewTeacherID.Ptr(),
		OriginalRoom:      r.OriginalRoom.Ptr(),
		NewRoom:           r.NewRoom.Ptr(),
		Reason:            r.Reason,
		Source:            timetable.ChangeSource(r.Source),
		ApprovedBy:        r.ApprovedBy.Ptr(),
		IsActive:          r.IsActive,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
	}
}

func (r substitutionRow) unboil() timetable.Substitution {
	return timetable.Substitution{
		ID:                  r.ID,
		ClassID:             r.ClassID,
		Day:                 timetable.Day(r.Day),
		Period:              r.Period,
		Date:                dateOnly(r.Date),
		SubjectID:           r.SubjectID,
		OriginalTeacherID:   r.OriginalTeacherID,
		SubstituteTeacherID: r.SubstituteTeacherID.Ptr(),
		Reason:              r.Reason,
		Status:              timetable.SubstitutionStatus(r.Status),
		IsAutoGenerated:     r.IsAutoGenerated,
		ApprovedBy:          r.ApprovedBy.Ptr(),
		ApprovedAt:          r.ApprovedAt.Ptr(),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// where accumulates AND-ed conditions with positional ($n) arguments.
type where struct {
	conds []string
	args  []interface{}
}

// add appends `cond`, where each `?` is replaced by the next positional placeholder.
func (w *where) add(cond string, args ...interface{}) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

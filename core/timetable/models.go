package timetable

import (
	"errors"
	"sort"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("timetable record not found")
	ErrConflict = errors.New("conflicting timetable record")
)

// SlotKey identifies a teaching period of a class within a week.
type SlotKey struct {
	ClassID string `json:"class_id"`
	Day     Day    `json:"day"`
	Period  int    `json:"period"`
}

type (
	// Slot is one period of a class's global (week-independent) timetable.
	Slot struct {
		ID        string    `json:"id"`
		ClassID   string    `json:"class_id"`
		VersionID string    `json:"version_id,omitempty"`
		Day       Day       `json:"day"`
		Period    int       `json:"period"`
		TeacherID string    `json:"teacher_id"`
		SubjectID string    `json:"subject_id"`
		StartTime string    `json:"start_time"`
		EndTime   string    `json:"end_time"`
		Room      *string   `json:"room"`
		IsActive  bool      `json:"is_active"`
		CreatedAt time.Time `json:"created_at"`
	}

	Version struct {
		ID        string    `json:"id"`
		ClassID   string    `json:"class_id"`
		Name      string    `json:"name"`
		WeekStart time.Time `json:"week_start"`
		WeekEnd   time.Time `json:"week_end"`
		// IsActive is set on the one version of the class whose slots are the live global slots.
		IsActive  bool      `json:"is_active"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"`
		Slots     []Slot    `json:"slots,omitempty"`
	}

	// OverrideEntry is one period of a weekly override.
	// Both TeacherID and SubjectID nil means the period is cancelled.
	OverrideEntry struct {
		Day                Day     `json:"day"`
		Period             int     `json:"period"`
		TeacherID          *string `json:"teacher_id"`
		SubjectID          *string `json:"subject_id"`
		StartTime          string  `json:"start_time"`
		EndTime            string  `json:"end_time"`
		Room               *string `json:"room"`
		IsModified         bool    `json:"is_modified"`
		ModificationReason string  `json:"modification_reason,omitempty"`
		SourceSlotID       *string `json:"source_slot_id,omitempty"`
	}

	// WeeklyOverride is a class's timetable for one concrete week.
	WeeklyOverride struct {
		ID                string          `json:"id"`
		ClassID           string          `json:"class_id"`
		WeekStart         time.Time       `json:"week_start"`
		WeekEnd           time.Time       `json:"week_end"`
		Entries           []OverrideEntry `json:"entries"`
		ModificationCount int             `json:"modification_count"`
		LastModifiedBy    *string         `json:"last_modified_by"`
		PromotedAt        *time.Time      `json:"promoted_at"`
		PromotedBy        *string         `json:"promoted_by"`
		CreatedAt         time.Time       `json:"created_at"`
		UpdatedAt         time.Time       `json:"updated_at"`
	}
)

func (s Slot) Key() SlotKey {
	return SlotKey{ClassID: s.ClassID, Day: s.Day, Period: s.Period}
}

// entryFromSlot clones a global slot into an unmodified override entry.
func entryFromSlot(s Slot) OverrideEntry {
	teacherID, subjectID, slotID := s.TeacherID, s.SubjectID, s.ID
	e := OverrideEntry{
		Day:          s.Day,
		Period:       s.Period,
		TeacherID:    &teacherID,
		SubjectID:    &subjectID,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		SourceSlotID: &slotID,
	}
	if s.Room != nil {
		room := *s.Room
		e.Room = &room
	}
	return e
}

func (e OverrideEntry) IsCancelled() bool {
	return e.TeacherID == nil && e.SubjectID == nil
}

// IsScheduled reports whether the entry can be taught: it has both a teacher and a subject.
func (e OverrideEntry) IsScheduled() bool {
	return e.TeacherID != nil && e.SubjectID != nil
}

func (e OverrideEntry) taughtBy(teacherID string) bool {
	return e.TeacherID != nil && *e.TeacherID == teacherID
}

func (o WeeklyOverride) IsPromoted() bool {
	return o.PromotedAt != nil
}

// Entry returns the entry at (day, period).
func (o WeeklyOverride) Entry(day Day, period int) (OverrideEntry, bool) {
	for _, e := range o.Entries {
		if e.Day == day && e.Period == period {
			return e, true
		}
	}
	return OverrideEntry{}, false
}

// setEntry inserts or replaces the entry at (e.Day, e.Period).
func (o *WeeklyOverride) setEntry(e OverrideEntry) {
	for i := range o.Entries {
		if o.Entries[i].Day == e.Day && o.Entries[i].Period == e.Period {
			o.Entries[i] = e
			return
		}
	}
	o.Entries = append(o.Entries, e)
	sortEntries(o.Entries)
}

func (o *WeeklyOverride) removeEntry(day Day, period int) bool {
	for i := range o.Entries {
		if o.Entries[i].Day == day && o.Entries[i].Period == period {
			o.Entries = append(o.Entries[:i], o.Entries[i+1:]...)
			return true
		}
	}
	return false
}

func sortEntries(entries []OverrideEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Day != entries[j].Day {
			return entries[i].Day.Index() < entries[j].Day.Index()
		}
		return entries[i].Period < entries[j].Period
	})
}

func sortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Day != slots[j].Day {
			return slots[i].Day.Index() < slots[j].Day.Index()
		}
		return slots[i].Period < slots[j].Period
	})
}

type (
	ChangeType   string
	ChangeSource string
)

const (
	ChangeAbsence ChangeType = "absence"
	ChangeManual  ChangeType = "manual"

	SourceAutoAbsence ChangeSource = "auto_absence"
	SourceManual      ChangeSource = "manual"
)

// Change records one slot-level schedule mutation. Changes are deactivated, never deleted.
type Change struct {
	ID                string       `json:"id"`
	ClassID           string       `json:"class_id"`
	Day               Day          `json:"day"`
	Period            int          `json:"period"`
	SlotID            *string      `json:"slot_id"`
	Type              ChangeType   `json:"change_type"`
	Date              time.Time    `json:"date"`
	OriginalTeacherID *string      `json:"original_teacher_id"`
	NewTeacherID      *string      `json:"new_teacher_id"`
	OriginalRoom      *string      `json:"original_room"`
	NewRoom           *string      `json:"new_room"`
	Reason            string       `json:"reason"`
	Source            ChangeSource `json:"source"`
	ApprovedBy        *string      `json:"approved_by"`
	IsActive          bool         `json:"is_active"`
	CreatedBy         string       `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
}

func (c Change) Key() SlotKey {
	return SlotKey{ClassID: c.ClassID, Day: c.Day, Period: c.Period}
}

// IsRevertible reports whether the change is an automatic one nobody approved yet.
func (c Change) IsRevertible() bool {
	return c.IsActive && c.Source == SourceAutoAbsence && c.ApprovedBy == nil
}

type SubstitutionStatus string

const (
	StatusPending   SubstitutionStatus = "pending"
	StatusConfirmed SubstitutionStatus = "confirmed"
	// StatusAutoAssigned is never produced; older records may still carry it.
	StatusAutoAssigned SubstitutionStatus = "auto_assigned"
	StatusRejected     SubstitutionStatus = "rejected"
)

// LiveStatuses are the statuses of substitutions that hold their slot.
var LiveStatuses = []SubstitutionStatus{StatusPending, StatusConfirmed, StatusAutoAssigned}

type Substitution struct {
	ID                  string             `json:"id"`
	ClassID             string             `json:"class_id"`
	Day                 Day                `json:"day"`
	Period              int                `json:"period"`
	Date                time.Time          `json:"date"`
	SubjectID           string             `json:"subject_id"`
	OriginalTeacherID   string             `json:"original_teacher_id"`
	SubstituteTeacherID *string            `json:"substitute_teacher_id"`
	Reason              string             `json:"reason"`
	Status              SubstitutionStatus `json:"status"`
	IsAutoGenerated     bool               `json:"is_auto_generated"`
	ApprovedBy          *string            `json:"approved_by"`
	ApprovedAt          *time.Time         `json:"approved_at"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func (s Substitution) Key() SlotKey {
	return SlotKey{ClassID: s.ClassID, Day: s.Day, Period: s.Period}
}

func (s Substitution) IsLive() bool {
	return s.Status != StatusRejected
}

// IsUnapprovedAuto reports whether the substitution was proposed automatically and nobody approved it.
func (s Substitution) IsUnapprovedAuto() bool {
	return (s.Status == StatusPending && s.IsAutoGenerated) || s.Status == StatusAutoAssigned
}

// IsApprovable reports whether the substitution can still be confirmed.
func (s Substitution) IsApprovable() bool {
	return s.Status == StatusPending || s.Status == StatusAutoAssigned
}

package timetable

import (
	"context"
	"time"

	"github.com/trezcool/ratiba/core"
)

type (
	// ChangeFilter ANDs its non-zero fields.
	ChangeFilter struct {
		ClassIDs          []string
		Key               *SlotKey
		Date              *time.Time
		OriginalTeacherID string
		Source            ChangeSource
		ActiveOnly        bool
	}

	// SubstitutionFilter ANDs its non-zero fields. DateFrom and DateTo are inclusive.
	SubstitutionFilter struct {
		ClassIDs            []string
		Key                 *SlotKey
		Date                *time.Time
		DateFrom            *time.Time
		DateTo              *time.Time
		Statuses            []SubstitutionStatus
		OriginalTeacherID   string
		SubstituteTeacherID string
	}

	Repository interface {
		// QueryActiveSlots returns the active global slots of a class ordered by (day, period).
		QueryActiveSlots(ctx context.Context, classID string, exec ...core.DBExecutor) ([]Slot, error)
		DeactivateSlots(ctx context.Context, classID string, exec ...core.DBExecutor) error
		InsertSlots(ctx context.Context, slots []Slot, exec ...core.DBExecutor) error

		CreateVersion(ctx context.Context, v Version, exec ...core.DBExecutor) (Version, error)
		GetVersion(ctx context.Context, id string, exec ...core.DBExecutor) (Version, error)
		// QueryVersions returns the versions of a class, newest first.
		QueryVersions(ctx context.Context, classID string, exec ...core.DBExecutor) ([]Version, error)
		QueryVersionSlots(ctx context.Context, versionID string, exec ...core.DBExecutor) ([]Slot, error)
		// ActivateVersion activates `v` and deactivates every other version of its class.
		ActivateVersion(ctx context.Context, v Version, exec ...core.DBExecutor) error
		// ActivateVersionSlots makes the slots of `v` the active global slots of its class.
		ActivateVersionSlots(ctx context.Context, v Version, exec ...core.DBExecutor) error

		GetWeeklyOverride(ctx context.Context, classID string, weekStart time.Time, exec ...core.DBExecutor) (WeeklyOverride, error)
		// LockWeeklyOverride is GetWeeklyOverride holding a row lock until the transaction ends.
		LockWeeklyOverride(ctx context.Context, classID string, weekStart time.Time, exec ...core.DBExecutor) (WeeklyOverride, error)
		// InsertWeeklyOverrideIfAbsent reports false, and writes nothing,
		// when an override already exists for (o.ClassID, o.WeekStart).
		InsertWeeklyOverrideIfAbsent(ctx context.Context, o WeeklyOverride, exec ...core.DBExecutor) (bool, error)
		// SaveWeeklyOverride updates the override header and replaces all its entries.
		SaveWeeklyOverride(ctx context.Context, o WeeklyOverride, exec ...core.DBExecutor) error

		CreateChange(ctx context.Context, c Change, exec ...core.DBExecutor) (Change, error)
		QueryChanges(ctx context.Context, filter ChangeFilter, exec ...core.DBExecutor) ([]Change, error)
		UpdateChange(ctx context.Context, c Change, exec ...core.DBExecutor) error

		// CreateSubstitution fails with ErrConflict when a live substitution holds the same (slot, date).
		CreateSubstitution(ctx context.Context, s Substitution, exec ...core.DBExecutor) (Substitution, error)
		GetSubstitution(ctx context.Context, id string, exec ...core.DBExecutor) (Substitution, error)
		QuerySubstitutions(ctx context.Context, filter SubstitutionFilter, exec ...core.DBExecutor) ([]Substitution, error)
		UpdateSubstitution(ctx context.Context, s Substitution, exec ...core.DBExecutor) error
		DeleteSubstitutions(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}
)

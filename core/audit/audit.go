package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// Actions
const (
	ActionScheduleReplace     = "schedule_replace"
	ActionVersionActivate     = "version_activate"
	ActionOverrideEdit        = "override_edit"
	ActionOverridePromote     = "override_promote"
	ActionAbsenceRepair       = "absence_repair"
	ActionAbsenceRevert       = "absence_revert"
	ActionSubstitutionSubmit  = "substitution_submit"
	ActionSubstitutionApprove = "substitution_approve"
	ActionSubstitutionReject  = "substitution_reject"
	ActionSubstitutionDelete  = "substitution_delete"
)

// Entity types
const (
	EntityTeacher        = "teacher"
	EntityClass          = "class"
	EntityVersion        = "schedule_version"
	EntityWeeklyOverride = "weekly_override"
	EntitySubstitution   = "substitution"
)

type (
	Entry struct {
		ID          int64     `json:"id"`
		SchoolID    string    `json:"school_id"`
		UserID      string    `json:"user_id"`
		Action      string    `json:"action"`
		EntityType  string    `json:"entity_type"`
		EntityID    string    `json:"entity_id"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Sink interface {
		Append(ctx context.Context, entry Entry, exec ...core.DBExecutor) error
	}

	// Recorder appends entries to a Sink without failing the caller:
	// append errors are only logged.
	Recorder struct {
		sink   Sink
		logger core.Logger
		now    func() time.Time
	}
)

func NewRecorder(sink Sink, logger core.Logger) *Recorder {
	return &Recorder{
		sink:   sink,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Error("recording audit entry", errors.Wrapf(err, "appending %s entry", entry.Action))
	}
}

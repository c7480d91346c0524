package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
)

type sinkStub struct {
	entries []Entry
	err     error
}

func (s *sinkStub) Append(_ context.Context, entry Entry, _ ...core.DBExecutor) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type loggerStub struct {
	errors []string
}

func (l *loggerStub) Debug(string, ...interface{}) {}
func (l *loggerStub) Info(string, ...interface{})  {}
func (l *loggerStub) Warn(string, ...interface{})  {}
func (l *loggerStub) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}
func (l *loggerStub) Fatal(string, ...interface{}) {}

func TestRecorder_Record(t *testing.T) {
	sink := new(sinkStub)
	logger := new(loggerStub)
	rec := NewRecorder(sink, logger)

	rec.Record(context.Background(), Entry{Action: ActionOverrideEdit, EntityType: EntityWeeklyOverride, EntityID: "o1"})
	require.Len(t, sink.entries, 1)
	assert.Equal(t, ActionOverrideEdit, sink.entries[0].Action)
	assert.False(t, sink.entries[0].CreatedAt.IsZero())
	assert.Empty(t, logger.errors)
}

func TestRecorder_Record_sinkFailure(t *testing.T) {
	sink := &sinkStub{err: errors.New("boom")}
	logger := new(loggerStub)
	rec := NewRecorder(sink, logger)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Entry{Action: ActionAbsenceRepair})
	})
	assert.Len(t, logger.errors, 1)

	var nilRec *Recorder
	assert.NotPanics(t, func() { nilRec.Record(context.Background(), Entry{}) })
}

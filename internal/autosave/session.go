// Package autosave keeps the in-memory progress record and commits it periodically.
package autosave

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/verte-zerg/lexivault/internal/logger"
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/vault"
)

// Saver commits a record through the save gate.
type Saver interface {
	Save(ctx context.Context, candidate model.Record, lastSeenRevision int64) vault.Outcome
}

// Session is the application's working copy of the progress record.
type Session struct {
	saver Saver
	log   *logger.Logger

	// flushMu serializes flushes so each one sends the revision the previous one
	// committed.
	flushMu sync.Mutex

	mu       sync.Mutex
	record   model.Record
	lastSeen int64
	dirty    bool

	scheduler *gocron.Scheduler
}

// NewSession starts a session from a boot result.
func NewSession(saver Saver, boot vault.BootResult, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		saver:    saver,
		log:      log,
		record:   boot.Record.Clone(),
		lastSeen: boot.Revision,
	}
}

// Snapshot returns a copy of the working record.
func (s *Session) Snapshot() model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Revision returns the last revision this session observed.
func (s *Session) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Dirty reports whether the working record has uncommitted changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Update applies fn to the working record and marks it for the next flush.
func (s *Session) Update(fn func(*model.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.record)
	s.dirty = true
}

// Flush commits the working record when it has changes. A clean session reports
// success without writing. Concurrent calls run one after another.
func (s *Session) Flush(ctx context.Context) vault.Outcome {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		lastSeen := s.lastSeen
		s.mu.Unlock()
		return vault.Outcome{Success: true, Revision: lastSeen}
	}
	candidate := s.record.Clone()
	lastSeen := s.lastSeen
	s.mu.Unlock()

	out := s.saver.Save(ctx, candidate, lastSeen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !out.Success {
		s.log.Warn("autosave rejected", "reason", out.Reason.String(), "last_seen", lastSeen, "error", out.Cause)
		return out
	}
	s.lastSeen = out.Revision
	s.record.Revision = out.Revision
	// Updates made while the save was in flight stay pending.
	s.dirty = !recordsEqual(candidate, s.record)
	return out
}

// Start flushes every interval until Stop is called.
func (s *Session) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("autosave interval must be > 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return fmt.Errorf("autosave already started")
	}
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	if _, err := sched.Every(interval).WaitForSchedule().Do(func() {
		s.Flush(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule autosave: %w", err)
	}
	sched.StartAsync()
	s.scheduler = sched
	return nil
}

// Stop halts periodic flushing. It does not flush pending changes.
func (s *Session) Stop() {
	s.mu.Lock()
	sched := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()
	if sched != nil {
		sched.Stop()
	}
}

func recordsEqual(a, b model.Record) bool {
	a.Revision, b.Revision = 0, 0
	return reflect.DeepEqual(a, b)
}

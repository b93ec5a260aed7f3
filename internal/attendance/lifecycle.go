package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

// Rotation interval bounds, in seconds.
const (
	MinRotationInterval     = 15
	MaxRotationInterval     = 30
	DefaultRotationInterval = 20
)

// Manager starts, rotates and ends attendance sessions and owns the rotation
// schedule of every Active session it knows about.
type Manager struct {
	store   Store
	classes ClassLookup
	users   UserLookup
	opts    options
	rotator *rotator
}

// NewManager creates a Manager. Call Resume once at startup to schedule
// rotation for sessions that were Active before a restart, and Stop on
// shutdown.
func NewManager(store Store, classes ClassLookup, users UserLookup, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		classes: classes,
		users:   users,
		opts:    buildOptions(opts),
	}
	m.rotator = newRotator(m.scheduledRotate, m.opts.logger)
	return m
}

// ValidateInterval applies the default to 0 and checks the [15, 30] bounds.
func ValidateInterval(interval int) (int, error) {
	if interval == 0 {
		return DefaultRotationInterval, nil
	}
	if interval < MinRotationInterval || interval > MaxRotationInterval {
		return 0, fmt.Errorf("%w: rotation interval %d must be between %d and %d seconds",
			ErrConstraintViolation, interval, MinRotationInterval, MaxRotationInterval)
	}
	return interval, nil
}

// Start opens a new Active session for a class with a fresh token and
// schedules its rotation. interval is in seconds; 0 selects the default.
func (m *Manager) Start(ctx context.Context, classID, instructorID int64, interval int) (*model.AttendanceSession, error) {
	interval, err := ValidateInterval(interval)
	if err != nil {
		return nil, err
	}

	class, err := m.classes.GetByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	if class == nil {
		return nil, fmt.Errorf("%w: class %d", ErrNotFound, classID)
	}

	instructor, err := m.users.GetByID(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("get instructor: %w", err)
	}
	if instructor == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, instructorID)
	}
	if !instructor.IsInstructor() {
		return nil, fmt.Errorf("%w: user %d is not an instructor", ErrConstraintViolation, instructorID)
	}

	token, err := m.opts.tokens.Generate()
	if err != nil {
		return nil, err
	}

	now := m.opts.clock()
	externalID, err := NewExternalID(now)
	if err != nil {
		return nil, fmt.Errorf("new session id: %w", err)
	}

	sess := &model.AttendanceSession{
		ExternalID:       externalID,
		ClassID:          classID,
		InstructorID:     instructorID,
		StartedAt:        now,
		Active:           true,
		CurrentToken:     &token,
		TokenIssuedAt:    &now,
		RotationInterval: interval,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	m.rotator.schedule(sess.ID, sess.Interval())
	m.opts.logger.Info("session started",
		"session", sess.ExternalID, "class_id", classID, "interval", interval)
	m.opts.emit(Event{Kind: EventSessionStarted, Session: sess})
	return sess, nil
}

// Rotate replaces the session's token on demand and restarts its schedule so
// the next automatic rotation is a full interval away.
func (m *Manager) Rotate(ctx context.Context, id int64) (*model.AttendanceSession, error) {
	sess, err := m.rotate(ctx, id, TriggerManual)
	if err != nil {
		return nil, err
	}
	m.rotator.reschedule(sess.ID, sess.Interval())
	return sess, nil
}

// SetInterval changes the rotation interval of an Active session and
// restarts its schedule at the new pace. interval 0 selects the default.
func (m *Manager) SetInterval(ctx context.Context, id int64, interval int) (*model.AttendanceSession, error) {
	interval, err := ValidateInterval(interval)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.SetRotationInterval(ctx, id, interval)
	if err != nil {
		return nil, err
	}

	m.rotator.reschedule(sess.ID, sess.Interval())
	m.opts.logger.Info("rotation interval changed", "session", sess.ExternalID, "interval", interval)
	m.opts.emit(Event{Kind: EventIntervalChanged, Session: sess})
	return sess, nil
}

func (m *Manager) scheduledRotate(ctx context.Context, id int64) error {
	_, err := m.rotate(ctx, id, TriggerScheduled)
	return err
}

func (m *Manager) rotate(ctx context.Context, id int64, trigger string) (*model.AttendanceSession, error) {
	token, err := m.opts.tokens.Generate()
	if err != nil {
		return nil, err
	}

	sess, err := m.store.RotateToken(ctx, id, token, m.opts.clock())
	if err != nil {
		return nil, err
	}

	m.opts.logger.Debug("token rotated",
		"session", sess.ExternalID, "trigger", trigger, "rotation", sess.RotationCount)
	m.opts.emit(Event{Kind: EventTokenRotated, Session: sess, Trigger: trigger})
	return sess, nil
}

// End closes an Active session and cancels its rotation. Ending a session
// twice returns ErrAlreadyEnded.
func (m *Manager) End(ctx context.Context, id int64) (*model.AttendanceSession, error) {
	sess, err := m.store.EndSession(ctx, id, m.opts.clock())
	if errors.Is(err, ErrAlreadyEnded) {
		// Make sure no stray schedule outlives the session.
		m.rotator.cancel(id)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	m.rotator.cancel(id)
	m.opts.logger.Info("session ended", "session", sess.ExternalID)
	m.opts.emit(Event{Kind: EventSessionEnded, Session: sess})
	return sess, nil
}

// Delete removes a session and its marks, whatever its state.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}

	m.rotator.cancel(id)
	m.opts.logger.Info("session deleted", "session", sess.ExternalID)
	m.opts.emit(Event{Kind: EventSessionDeleted, Session: sess})
	return nil
}

// Resume schedules rotation for every Active session in the store.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	active := true
	sessions, err := m.store.ListSessions(ctx, model.AttendanceSessionFilter{Active: &active})
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	for i := range sessions {
		m.rotator.schedule(sessions[i].ID, sessions[i].Interval())
	}
	if len(sessions) > 0 {
		m.opts.logger.Info("rotation resumed", "sessions", len(sessions))
	}
	return len(sessions), nil
}

// Scheduled reports whether a rotation task is running for the session.
func (m *Manager) Scheduled(id int64) bool {
	return m.rotator.scheduled(id)
}

// ScheduledInterval reports the interval the session's rotation task runs at.
func (m *Manager) ScheduledInterval(id int64) (time.Duration, bool) {
	return m.rotator.interval(id)
}

// Stop cancels every rotation task and waits for them to exit.
func (m *Manager) Stop() {
	m.rotator.stop()
}

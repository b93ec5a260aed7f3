package attendance

import (
	"log/slog"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

type EventKind string

const (
	EventSessionStarted  EventKind = "started"
	EventTokenRotated    EventKind = "rotated"
	EventIntervalChanged EventKind = "interval_changed"
	EventSessionEnded    EventKind = "ended"
	EventSessionDeleted  EventKind = "deleted"
	EventMarkRecorded    EventKind = "marked"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Event describes a committed state change. Events are delivered after the
// write succeeds and never for failed operations.
type Event struct {
	Kind    EventKind
	Session *model.AttendanceSession
	Mark    *model.AttendanceMark
	Trigger string
}

type options struct {
	now    func() time.Time
	tokens TokenGenerator
	notify func(Event)
	logger *slog.Logger
}

// Option configures a Manager, Recorder or Reporter.
type Option func(*options)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTokens overrides the token generator.
func WithTokens(g TokenGenerator) Option {
	return func(o *options) { o.tokens = g }
}

// WithNotifier registers a callback for committed state changes. The callback
// runs synchronously on the caller's goroutine and must not block.
func WithNotifier(fn func(Event)) Option {
	return func(o *options) { o.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		tokens: RandomTokens{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) clock() time.Time {
	return o.now().UTC()
}

func (o options) emit(ev Event) {
	if o.notify != nil {
		o.notify(ev)
	}
}

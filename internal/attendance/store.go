package attendance

import (
	"context"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

// Store persists sessions and marks.
//
// Implementations must make RotateToken and EndSession single atomic writes
// conditional on the session being Active, and must run InsertMark's read of
// the session and its insert of the mark under one write lock. The
// (session, student) uniqueness of marks must be a storage constraint; a
// violation is reported as ErrDuplicateSubmission.
type Store interface {
	// CreateSession inserts an Active session and sets its ID.
	CreateSession(ctx context.Context, sess *model.AttendanceSession) error

	// GetSession loads a session by internal ID. Missing rows yield ErrNotFound.
	GetSession(ctx context.Context, id int64) (*model.AttendanceSession, error)

	// GetSessionByExternalID loads a session by its public identifier.
	GetSessionByExternalID(ctx context.Context, externalID string) (*model.AttendanceSession, error)

	// ListSessions returns sessions matching f, newest first.
	ListSessions(ctx context.Context, f model.AttendanceSessionFilter) ([]model.AttendanceSession, error)

	// RotateToken replaces the current token of an Active session.
	// Ended sessions yield ErrSessionInactive.
	RotateToken(ctx context.Context, id int64, token string, now time.Time) (*model.AttendanceSession, error)

	// SetRotationInterval changes the rotation interval of an Active session.
	// Ended sessions yield ErrSessionInactive.
	SetRotationInterval(ctx context.Context, id int64, interval int) (*model.AttendanceSession, error)

	// EndSession deactivates a session, sets ended_at and clears the token.
	// A session that already ended yields ErrAlreadyEnded.
	EndSession(ctx context.Context, id int64, now time.Time) (*model.AttendanceSession, error)

	// DeleteSession removes a session and, by cascade, its marks.
	DeleteSession(ctx context.Context, id int64) error

	// InsertMark records a mark if the session is Active and token equals its
	// current token. Failures: ErrNotFound, ErrSessionInactive,
	// ErrInvalidToken, ErrDuplicateSubmission.
	InsertMark(ctx context.Context, sessionID, studentID int64, token string, now time.Time) (*model.AttendanceMark, error)

	// CountMarks returns the number of marks for a session.
	CountMarks(ctx context.Context, sessionID int64) (int, error)

	// ListMarks returns marks matching f, newest first.
	ListMarks(ctx context.Context, f model.AttendanceMarkFilter) ([]model.AttendanceMark, error)
}

// ClassLookup resolves classes. A missing class is (nil, nil).
type ClassLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Class, error)
}

// UserLookup resolves users. A missing user is (nil, nil).
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

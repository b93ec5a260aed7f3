package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

// Recorder validates presented tokens and commits attendance marks.
type Recorder struct {
	store Store
	opts  options
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	return &Recorder{store: store, opts: buildOptions(opts)}
}

// Record marks studentID present for the session if token is the session's
// current token. It is the authoritative check: the session state, token
// comparison and insert are committed together by the store, and a second
// submission for the same student fails with ErrDuplicateSubmission.
func (r *Recorder) Record(ctx context.Context, sessionID, studentID int64, token string) (*model.AttendanceMark, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	mark, err := r.store.InsertMark(ctx, sessionID, studentID, token, r.opts.clock())
	if err != nil {
		return nil, err
	}

	r.opts.logger.Debug("attendance marked", "session_id", sessionID, "student_id", studentID)
	r.opts.emit(Event{Kind: EventMarkRecorded, Mark: mark})
	return mark, nil
}

// RecordByExternalID resolves the session's public identifier, then records.
func (r *Recorder) RecordByExternalID(ctx context.Context, externalID string, studentID int64, token string) (*model.AttendanceMark, error) {
	sess, err := r.store.GetSessionByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return r.Record(ctx, sess.ID, studentID, token)
}

// Validation is the outcome of a successful pre-flight check.
type Validation struct {
	Session    *model.AttendanceSession
	AgeSeconds int64
}

// Validate checks a scanned token without recording anything. On top of the
// Record checks it rejects tokens whose presentedAt is more than one rotation
// interval in the past, even if they are still current. presentedAt is
// supplied by the client, so the result is advisory only.
func (r *Recorder) Validate(ctx context.Context, externalID, token string, presentedAt time.Time) (*Validation, error) {
	sess, err := r.store.GetSessionByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrSessionInactive
	}
	if token == "" || token != sess.Token() {
		return nil, ErrInvalidToken
	}

	age := r.opts.clock().Unix() - presentedAt.Unix()
	if age > int64(sess.RotationInterval) {
		return nil, fmt.Errorf("%w: age %ds exceeds %ds", ErrTokenExpired, age, sess.RotationInterval)
	}

	return &Validation{Session: sess, AgeSeconds: age}, nil
}

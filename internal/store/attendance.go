package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// AttendanceStore persists attendance sessions and marks in SQLite.
//
// Transactions on the database are opened BEGIN IMMEDIATE (see
// database.Open), so every write below holds the database write lock from its
// first statement. RotateToken and EndSession are single conditional UPDATEs;
// InsertMark reads the session and inserts the mark under the same lock.
type AttendanceStore struct {
	db *sql.DB
}

var _ attendance.Store = (*AttendanceStore)(nil)

func NewAttendanceStore(db *sql.DB) *AttendanceStore {
	return &AttendanceStore{db: db}
}

const attendanceSessionCols = `id, external_id, class_id, instructor_id, started_at, ended_at, is_active,
	current_token, token_issued_at, rotation_interval, rotation_count`

func scanAttendanceSession(s scanner) (*model.AttendanceSession, error) {
	var (
		sess          model.AttendanceSession
		endedAt       sql.NullTime
		active        int
		currentToken  sql.NullString
		tokenIssuedAt sql.NullTime
	)
	err := s.Scan(
		&sess.ID, &sess.ExternalID, &sess.ClassID, &sess.InstructorID, &sess.StartedAt, &endedAt, &active,
		&currentToken, &tokenIssuedAt, &sess.RotationInterval, &sess.RotationCount,
	)
	if err != nil {
		return nil, err
	}

	sess.Active = active != 0
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	if currentToken.Valid {
		sess.CurrentToken = &currentToken.String
	}
	if tokenIssuedAt.Valid {
		sess.TokenIssuedAt = &tokenIssuedAt.Time
	}
	return &sess, nil
}

func (s *AttendanceStore) CreateSession(ctx context.Context, sess *model.AttendanceSession) error {
	if !sess.Active || sess.CurrentToken == nil {
		return fmt.Errorf("%w: new session must be active with a token", attendance.ErrConstraintViolation)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_sessions
			(external_id, class_id, instructor_id, started_at, is_active, current_token, token_issued_at, rotation_interval)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		sess.ExternalID, sess.ClassID, sess.InstructorID, sess.StartedAt,
		*sess.CurrentToken, sess.TokenIssuedAt, sess.RotationInterval,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: class or instructor", attendance.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert attendance session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sess.ID = id
	return nil
}

func (s *AttendanceStore) GetSession(ctx context.Context, id int64) (*model.AttendanceSession, error) {
	return getAttendanceSession(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAttendanceSession(ctx context.Context, q queryRower, id int64) (*model.AttendanceSession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+attendanceSessionCols+` FROM attendance_sessions WHERE id = ?`, id)
	sess, err := scanAttendanceSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: attendance session %d", attendance.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance session: %w", err)
	}
	return sess, nil
}

func (s *AttendanceStore) GetSessionByExternalID(ctx context.Context, externalID string) (*model.AttendanceSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attendanceSessionCols+` FROM attendance_sessions WHERE external_id = ?`, externalID)
	sess, err := scanAttendanceSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: attendance session %q", attendance.ErrNotFound, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance session by external id: %w", err)
	}
	return sess, nil
}

func (s *AttendanceStore) ListSessions(ctx context.Context, f model.AttendanceSessionFilter) ([]model.AttendanceSession, error) {
	var (
		where []string
		args  []any
	)
	if f.ClassID != 0 {
		where = append(where, "class_id = ?")
		args = append(args, f.ClassID)
	}
	if f.InstructorID != 0 {
		where = append(where, "instructor_id = ?")
		args = append(args, f.InstructorID)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*f.Active))
	}

	query := `SELECT ` + attendanceSessionCols + ` FROM attendance_sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.AttendanceSession
	for rows.Next() {
		sess, err := scanAttendanceSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *AttendanceStore) RotateToken(ctx context.Context, id int64, token string, now time.Time) (*model.AttendanceSession, error) {
	return s.updateActive(ctx, id, attendance.ErrSessionInactive,
		`UPDATE attendance_sessions
		SET current_token = ?, token_issued_at = ?, rotation_count = rotation_count + 1
		WHERE id = ? AND is_active = 1`,
		token, now, id,
	)
}

func (s *AttendanceStore) SetRotationInterval(ctx context.Context, id int64, interval int) (*model.AttendanceSession, error) {
	return s.updateActive(ctx, id, attendance.ErrSessionInactive,
		`UPDATE attendance_sessions SET rotation_interval = ? WHERE id = ? AND is_active = 1`,
		interval, id,
	)
}

func (s *AttendanceStore) EndSession(ctx context.Context, id int64, now time.Time) (*model.AttendanceSession, error) {
	return s.updateActive(ctx, id, attendance.ErrAlreadyEnded,
		`UPDATE attendance_sessions
		SET is_active = 0, ended_at = ?, current_token = NULL
		WHERE id = ? AND is_active = 1`,
		now, id,
	)
}

// updateActive runs a single UPDATE guarded by is_active = 1 and reads the
// row back in the same transaction. When nothing matched, the session is
// either missing (ErrNotFound) or ended (ended).
func (s *AttendanceStore) updateActive(ctx context.Context, id int64, ended error, query string, args ...any) (*model.AttendanceSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update attendance session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	sess, err := getAttendanceSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ended
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance session: %w", err)
	}
	return sess, nil
}

func (s *AttendanceStore) DeleteSession(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attendance_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete attendance session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: attendance session %d", attendance.ErrNotFound, id)
	}
	return nil
}

const attendanceMarkCols = `id, session_id, student_id, marked_at, token_used`

func scanAttendanceMark(s scanner) (*model.AttendanceMark, error) {
	var m model.AttendanceMark
	if err := s.Scan(&m.ID, &m.SessionID, &m.StudentID, &m.MarkedAt, &m.TokenUsed); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *AttendanceStore) InsertMark(ctx context.Context, sessionID, studentID int64, token string, now time.Time) (*model.AttendanceMark, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		active  int
		current sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT is_active, current_token FROM attendance_sessions WHERE id = ?`, sessionID,
	).Scan(&active, &current)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: attendance session %d", attendance.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read attendance session: %w", err)
	}
	if active == 0 {
		return nil, attendance.ErrSessionInactive
	}
	if !current.Valid || current.String != token {
		return nil, attendance.ErrInvalidToken
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO attendance_marks (session_id, student_id, marked_at, token_used) VALUES (?, ?, ?, ?)`,
		sessionID, studentID, now, token,
	)
	switch {
	case isUniqueViolation(err):
		return nil, attendance.ErrDuplicateSubmission
	case isForeignKeyViolation(err):
		return nil, fmt.Errorf("%w: student %d", attendance.ErrNotFound, studentID)
	case err != nil:
		return nil, fmt.Errorf("insert attendance mark: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+attendanceMarkCols+` FROM attendance_marks WHERE id = ?`, id)
	mark, err := scanAttendanceMark(row)
	if err != nil {
		return nil, fmt.Errorf("read attendance mark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance mark: %w", err)
	}
	return mark, nil
}

func (s *AttendanceStore) CountMarks(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_marks WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attendance marks: %w", err)
	}
	return n, nil
}

func (s *AttendanceStore) ListMarks(ctx context.Context, f model.AttendanceMarkFilter) ([]model.AttendanceMark, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != 0 {
		where = append(where, "m.session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.StudentID != 0 {
		where = append(where, "m.student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.InstructorID != 0 {
		where = append(where, "s.instructor_id = ?")
		args = append(args, f.InstructorID)
	}
	if !f.From.IsZero() {
		where = append(where, "m.marked_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "m.marked_at < ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT m.id, m.session_id, m.student_id, m.marked_at, m.token_used, u.name, c.id, c.name
		FROM attendance_marks m
		JOIN users u ON u.id = m.student_id
		JOIN attendance_sessions s ON s.id = m.session_id
		JOIN classes c ON c.id = s.class_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY m.marked_at DESC, m.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance marks: %w", err)
	}
	defer rows.Close()

	var marks []model.AttendanceMark
	for rows.Next() {
		var m model.AttendanceMark
		if err := rows.Scan(&m.ID, &m.SessionID, &m.StudentID, &m.MarkedAt, &m.TokenUsed,
			&m.StudentName, &m.ClassID, &m.ClassName); err != nil {
			return nil, fmt.Errorf("scan attendance mark: %w", err)
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

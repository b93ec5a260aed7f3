package model

import "time"

// AttendanceSession is a window during which students can mark themselves
// present for one meeting of a class.
//
// EndedAt is set iff Active is false; CurrentToken is set iff Active is true.
type AttendanceSession struct {
	ID               int64      `json:"id"`
	ExternalID       string     `json:"session_id"`
	ClassID          int64      `json:"class_id"`
	InstructorID     int64      `json:"instructor_id"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	Active           bool       `json:"is_active"`
	CurrentToken     *string    `json:"-"`
	TokenIssuedAt    *time.Time `json:"token_issued_at,omitempty"`
	RotationInterval int        `json:"rotation_interval"`
	RotationCount    int        `json:"rotation_count"`
}

// Interval returns the token rotation interval as a duration.
func (s *AttendanceSession) Interval() time.Duration {
	return time.Duration(s.RotationInterval) * time.Second
}

// Token returns the current token, or "" when the session has ended.
func (s *AttendanceSession) Token() string {
	if s.CurrentToken == nil {
		return ""
	}
	return *s.CurrentToken
}

// AttendanceMark records that one student was present for one session.
type AttendanceMark struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	StudentID int64     `json:"student_id"`
	MarkedAt  time.Time `json:"marked_at"`
	TokenUsed string    `json:"token_used"`

	// Populated by listing queries only.
	StudentName string `json:"student_name,omitempty"`
	ClassID     int64  `json:"class_id,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
}

// AttendanceSessionFilter narrows session listings. Zero values are ignored.
type AttendanceSessionFilter struct {
	ClassID      int64
	InstructorID int64
	Active       *bool
}

// AttendanceMarkFilter narrows mark listings. Zero values are ignored.
type AttendanceMarkFilter struct {
	SessionID    int64
	StudentID    int64
	InstructorID int64
	From         time.Time
	To           time.Time
}

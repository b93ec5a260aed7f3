package model

import "time"

// LoginSession is an authenticated browser or API session. It is unrelated to
// AttendanceSession.
type LoginSession struct {
	ID        int64     `json:"id"`
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

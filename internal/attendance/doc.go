// Package attendance implements the attendance-session lifecycle and the
// token-validation state machine.
//
// A session is Active from Start until End; End is terminal. While Active the
// session carries exactly one current token, replaced by Rotate on a
// server-owned schedule or on demand. Students present the token to Record,
// which commits at most one mark per (session, student).
//
// Per-session serialization is delegated to the Store: rotation and end are
// single conditional writes and recording reads the token and inserts the
// mark inside one write transaction. Duplicate marks are rejected by a
// storage uniqueness constraint.
package attendance

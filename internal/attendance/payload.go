package attendance

import (
	"encoding/json"

	"github.com/dukerupert/rollcall/internal/model"
)

// Payload is what the display encodes into the scannable code.
type Payload struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
	ClassID   int64  `json:"classId"`
	ClassName string `json:"className"`
}

// Submission is what a scanner sends back for validation or recording.
type Submission struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
}

// NewPayload builds the display payload for an Active session. Timestamp is
// the server time the current token was issued.
func NewPayload(sess *model.AttendanceSession, class *model.Class) (Payload, error) {
	if !sess.Active || sess.CurrentToken == nil {
		return Payload{}, ErrSessionInactive
	}

	p := Payload{
		SessionID: sess.ExternalID,
		Token:     *sess.CurrentToken,
		ClassID:   sess.ClassID,
	}
	if sess.TokenIssuedAt != nil {
		p.Timestamp = sess.TokenIssuedAt.Unix()
	}
	if class != nil {
		p.ClassName = class.Name
	}
	return p, nil
}

// Encode returns the JSON string placed in the code.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

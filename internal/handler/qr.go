package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/model"
)

type qrResponse struct {
	Payload          attendance.Payload `json:"payload"`
	QRData           string             `json:"qr_data"`
	RotationInterval int                `json:"rotation_interval"`
	NextRotationAt   *time.Time         `json:"next_rotation_at,omitempty"`
}

func newQRResponse(sess *model.AttendanceSession, class *model.Class) (*qrResponse, error) {
	p, err := attendance.NewPayload(sess, class)
	if err != nil {
		return nil, err
	}
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}

	resp := &qrResponse{
		Payload:          p,
		QRData:           data,
		RotationInterval: sess.RotationInterval,
	}
	if sess.TokenIssuedAt != nil {
		next := sess.TokenIssuedAt.Add(sess.Interval())
		resp.NextRotationAt = &next
	}
	return resp, nil
}

// QRData returns the current display payload of an Active session.
func (h *AttendanceHandler) QRData(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	h.writeQR(w, r, sess)
}

// RefreshQR rotates the token immediately.
func (h *AttendanceHandler) RefreshQR(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	rotated, err := h.manager.Rotate(r.Context(), sess.ID)
	if err != nil {
		writeAttendanceError(w, h.logger, "refresh token", err)
		return
	}
	h.writeQR(w, r, rotated)
}

func (h *AttendanceHandler) writeQR(w http.ResponseWriter, r *http.Request, sess *model.AttendanceSession) {
	class, err := h.classStore.GetByID(r.Context(), sess.ClassID)
	if err != nil {
		writeAttendanceError(w, h.logger, "get class", err)
		return
	}
	resp, err := newQRResponse(sess, class)
	if err != nil {
		writeAttendanceError(w, h.logger, "build qr payload", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// QRSettings reports rotation settings and the current token.
func (h *AttendanceHandler) QRSettings(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":        sess.ExternalID,
		"rotation_interval": sess.RotationInterval,
		"is_active":         sess.Active,
		"current_token":     sess.CurrentToken,
		"token_issued_at":   sess.TokenIssuedAt,
		"rotation_count":    sess.RotationCount,
	})
}

// ValidateQR checks a scanned payload without recording attendance.
func (h *AttendanceHandler) ValidateQR(w http.ResponseWriter, r *http.Request) {
	var req attendance.Submission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionID == "" || req.Token == "" || req.Timestamp == 0 {
		writeError(w, http.StatusBadRequest, "sessionId, token and timestamp are required")
		return
	}

	v, err := h.recorder.Validate(r.Context(), req.SessionID, req.Token, time.Unix(req.Timestamp, 0))
	if err != nil {
		writeAttendanceError(w, h.logger, "validate token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"session_id":  v.Session.ExternalID,
		"class_id":    v.Session.ClassID,
		"age_seconds": v.AgeSeconds,
	})
}

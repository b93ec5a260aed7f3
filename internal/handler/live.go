package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/auth"
	ws "github.com/dukerupert/rollcall/internal/websocket"
)

// Live streams token rotations, new marks and the end of a session to the
// session's instructor display. The first message carries the current
// payload, read after the display is subscribed.
func (h *AttendanceHandler) Live(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("session")
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}

	sess, err := h.sessions.GetSessionByExternalID(r.Context(), externalID)
	if err != nil {
		writeAttendanceError(w, h.logger, "get session", err)
		return
	}
	if sess.InstructorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "not your session")
		return
	}

	ws.Serve(w, r, h.hub, ws.SessionTopic(sess.ID), h.liveSnapshot(sess.ID, externalID), h.originPatterns)
}

// liveSnapshot re-reads the session once the display is registered, so a
// rotation or end committed during the upgrade is not missed.
func (h *AttendanceHandler) liveSnapshot(id int64, externalID string) ws.Snapshot {
	return func(ctx context.Context) (ws.Message, bool) {
		sess, err := h.sessions.GetSession(ctx, id)
		if errors.Is(err, attendance.ErrNotFound) {
			return ws.NewMessage(ws.TypeSessionDeleted, externalID, nil), true
		}
		if err != nil {
			h.logger.Error("load live snapshot", "session", externalID, "error", err)
			return ws.NewMessage(ws.TypeError, externalID, map[string]string{"error": "internal error"}), true
		}
		if !sess.Active {
			return ws.NewMessage(ws.TypeSessionEnded, externalID, sess), true
		}

		class, err := h.classStore.GetByID(ctx, sess.ClassID)
		if err != nil {
			h.logger.Warn("load class for display", "session", externalID, "error", err)
		}
		payload, err := attendance.NewPayload(sess, class)
		if err != nil {
			return ws.NewMessage(ws.TypeSessionEnded, externalID, sess), true
		}
		return ws.NewMessage(ws.TypeTokenRotated, externalID, payload), false
	}
}

package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/auth"
	"github.com/dukerupert/rollcall/internal/model"
)

// Record marks the calling student present. The submission's timestamp is
// accepted for compatibility with scanners but not used: the session's
// current token is the only freshness check.
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req attendance.Submission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "sessionId and token are required")
		return
	}

	studentID := auth.UserID(r.Context())
	mark, err := h.recorder.RecordByExternalID(r.Context(), req.SessionID, studentID, req.Token)
	h.metrics.ObserveMark(err)
	if err != nil {
		writeAttendanceError(w, h.logger, "record attendance", err)
		return
	}

	h.logger.Info("attendance recorded", "session", req.SessionID, "student_id", studentID)
	writeJSON(w, http.StatusCreated, mark)
}

// ListMarks supports session_id, student_id, from and to filters. Students
// only ever see their own marks and instructors only marks in their sessions.
func (h *AttendanceHandler) ListMarks(w http.ResponseWriter, r *http.Request) {
	var (
		f   model.AttendanceMarkFilter
		err error
	)
	if f.SessionID, err = parseQueryID(r, "session_id"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	if f.StudentID, err = parseQueryID(r, "student_id"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid student_id")
		return
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if f.From, err = parseFlexibleTime(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if f.To, err = parseFlexibleTime(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to")
			return
		}
	}

	ac, _ := auth.FromContext(r.Context())
	if ac.IsInstructor() {
		f.InstructorID = ac.UserID
	} else {
		f.StudentID = ac.UserID
	}
	h.writeMarks(w, r, f)
}

// MyAttendance lists the caller's own marks, newest first.
func (h *AttendanceHandler) MyAttendance(w http.ResponseWriter, r *http.Request) {
	h.writeMarks(w, r, model.AttendanceMarkFilter{StudentID: auth.UserID(r.Context())})
}

func (h *AttendanceHandler) writeMarks(w http.ResponseWriter, r *http.Request, f model.AttendanceMarkFilter) {
	marks, err := h.sessions.ListMarks(r.Context(), f)
	if err != nil {
		writeAttendanceError(w, h.logger, "list marks", err)
		return
	}
	if marks == nil {
		marks = []model.AttendanceMark{}
	}
	writeJSON(w, http.StatusOK, marks)
}

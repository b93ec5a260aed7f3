package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/auth"
	"github.com/dukerupert/rollcall/internal/metrics"
	"github.com/dukerupert/rollcall/internal/model"
	"github.com/dukerupert/rollcall/internal/store"
	ws "github.com/dukerupert/rollcall/internal/websocket"
)

// AttendanceHandler serves attendance sessions, their scannable codes and
// attendance marks.
type AttendanceHandler struct {
	sessions       attendance.Store
	classStore     *store.ClassStore
	userStore      *store.UserStore
	manager        *attendance.Manager
	recorder       *attendance.Recorder
	reporter       *attendance.Reporter
	hub            *ws.Hub
	metrics        *metrics.Metrics
	originPatterns []string
	logger         *slog.Logger
}

type AttendanceDeps struct {
	Sessions attendance.Store
	Classes  *store.ClassStore
	Users    *store.UserStore
	Manager  *attendance.Manager
	Recorder *attendance.Recorder
	Reporter *attendance.Reporter
	Hub      *ws.Hub
	Metrics  *metrics.Metrics

	// OriginPatterns lists extra origins allowed to open the live feed.
	OriginPatterns []string
}

func NewAttendanceHandler(d AttendanceDeps, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		sessions:       d.Sessions,
		classStore:     d.Classes,
		userStore:      d.Users,
		manager:        d.Manager,
		recorder:       d.Recorder,
		reporter:       d.Reporter,
		hub:            d.Hub,
		metrics:        d.Metrics,
		originPatterns: d.OriginPatterns,
		logger:         logger,
	}
}

type sessionDetail struct {
	Session    *model.AttendanceSession `json:"session"`
	Class      *model.Class             `json:"class"`
	Instructor *model.User              `json:"instructor"`
	Marks      []model.AttendanceMark   `json:"marks"`
	Stats      *attendance.Stats        `json:"stats"`
}

// ListSessions supports class_id, instructor_id and active filters.
func (h *AttendanceHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	var (
		f   model.AttendanceSessionFilter
		err error
	)
	if f.ClassID, err = parseQueryID(r, "class_id"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid class_id")
		return
	}
	if f.InstructorID, err = parseQueryID(r, "instructor_id"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid instructor_id")
		return
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active")
			return
		}
		f.Active = &active
	}

	sessions, err := h.sessions.ListSessions(r.Context(), f)
	if err != nil {
		writeAttendanceError(w, h.logger, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []model.AttendanceSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// CreateSession starts an attendance session for one of the caller's classes.
func (h *AttendanceHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassID          int64 `json:"class_id"`
		RotationInterval int   `json:"rotation_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ClassID == 0 {
		writeError(w, http.StatusBadRequest, "class_id is required")
		return
	}

	class, err := h.classStore.GetByID(r.Context(), req.ClassID)
	if err != nil {
		writeAttendanceError(w, h.logger, "get class", err)
		return
	}
	if class == nil {
		writeError(w, http.StatusNotFound, "class not found")
		return
	}
	if class.InstructorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "not your class")
		return
	}

	sess, err := h.manager.Start(r.Context(), class.ID, class.InstructorID, req.RotationInterval)
	if err != nil {
		writeAttendanceError(w, h.logger, "start session", err)
		return
	}

	resp, err := newQRResponse(sess, class)
	if err != nil {
		writeAttendanceError(w, h.logger, "build qr payload", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": sess,
		"qr":      resp,
	})
}

// GetSession returns a session with its class, instructor, marks and stats.
func (h *AttendanceHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	class, err := h.classStore.GetByID(r.Context(), sess.ClassID)
	if err != nil {
		writeAttendanceError(w, h.logger, "get class", err)
		return
	}
	instructor, err := h.userStore.GetByID(r.Context(), sess.InstructorID)
	if err != nil {
		writeAttendanceError(w, h.logger, "get instructor", err)
		return
	}
	marks, err := h.sessions.ListMarks(r.Context(), model.AttendanceMarkFilter{SessionID: sess.ID})
	if err != nil {
		writeAttendanceError(w, h.logger, "list marks", err)
		return
	}
	if marks == nil {
		marks = []model.AttendanceMark{}
	}
	stats, err := h.reporter.Stats(r.Context(), sess.ID)
	if err != nil {
		writeAttendanceError(w, h.logger, "session stats", err)
		return
	}

	writeJSON(w, http.StatusOK, sessionDetail{
		Session:    sess,
		Class:      class,
		Instructor: instructor,
		Marks:      marks,
		Stats:      stats,
	})
}

// UpdateSession changes the rotation interval of an Active session.
func (h *AttendanceHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	var req struct {
		RotationInterval *int `json:"rotation_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RotationInterval == nil {
		writeError(w, http.StatusBadRequest, "rotation_interval is required")
		return
	}
	if *req.RotationInterval == 0 {
		writeError(w, http.StatusUnprocessableEntity, "rotation_interval must be between 15 and 30 seconds")
		return
	}

	updated, err := h.manager.SetInterval(r.Context(), sess.ID, *req.RotationInterval)
	if err != nil {
		writeAttendanceError(w, h.logger, "update session", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AttendanceHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	if err := h.manager.Delete(r.Context(), sess.ID); err != nil {
		writeAttendanceError(w, h.logger, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttendanceHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	ended, err := h.manager.End(r.Context(), sess.ID)
	if err != nil {
		writeAttendanceError(w, h.logger, "end session", err)
		return
	}
	writeJSON(w, http.StatusOK, ended)
}

func (h *AttendanceHandler) SessionStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	stats, err := h.reporter.Stats(r.Context(), sess.ID)
	if err != nil {
		writeAttendanceError(w, h.logger, "session stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ownedSession loads the session named by the {id} path value and checks
// that the caller is its instructor.
func (h *AttendanceHandler) ownedSession(w http.ResponseWriter, r *http.Request) (*model.AttendanceSession, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	sess, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeAttendanceError(w, h.logger, "get session", err)
		return nil, false
	}
	if sess.InstructorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "not your session")
		return nil, false
	}
	return sess, true
}

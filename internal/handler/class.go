package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/auth"
	"github.com/dukerupert/rollcall/internal/model"
	"github.com/dukerupert/rollcall/internal/store"
)

type ClassHandler struct {
	classStore *store.ClassStore
	sessions   attendance.Store
	manager    *attendance.Manager
	logger     *slog.Logger
}

func NewClassHandler(cs *store.ClassStore, sessions attendance.Store, manager *attendance.Manager, logger *slog.Logger) *ClassHandler {
	return &ClassHandler{classStore: cs, sessions: sessions, manager: manager, logger: logger}
}

type classRequest struct {
	Name          string `json:"name"`
	Subject       string `json:"subject"`
	TotalStudents int    `json:"total_students"`
}

func (req *classRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Name == "" {
		return "name is required"
	}
	if req.TotalStudents < 0 {
		return "total_students must not be negative"
	}
	return ""
}

// List returns the caller's classes for instructors and every class for
// students.
func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var instructorID int64
	if ac.IsInstructor() {
		instructorID = ac.UserID
	}

	classes, err := h.classStore.List(r.Context(), instructorID)
	if err != nil {
		h.logger.Error("list classes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list classes")
		return
	}
	if classes == nil {
		classes = []model.Class{}
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req classRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	class, err := h.classStore.Create(r.Context(), req.Name, req.Subject, req.TotalStudents, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create class", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create class")
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (h *ClassHandler) Get(w http.ResponseWriter, r *http.Request) {
	class, ok := h.loadClass(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, class)
}

func (h *ClassHandler) Update(w http.ResponseWriter, r *http.Request) {
	class, ok := h.ownedClass(w, r)
	if !ok {
		return
	}

	var req classRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.classStore.Update(r.Context(), class.ID, req.Name, req.Subject, req.TotalStudents)
	if err != nil {
		h.logger.Error("update class", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update class")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a class. Its sessions go first through the lifecycle
// manager so their rotation stops and displays are told.
func (h *ClassHandler) Delete(w http.ResponseWriter, r *http.Request) {
	class, ok := h.ownedClass(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListSessions(r.Context(), model.AttendanceSessionFilter{ClassID: class.ID})
	if err != nil {
		h.logger.Error("list class sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete class")
		return
	}
	for _, sess := range sessions {
		if err := h.manager.Delete(r.Context(), sess.ID); err != nil && !errors.Is(err, attendance.ErrNotFound) {
			h.logger.Error("delete class session", "session", sess.ExternalID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete class")
			return
		}
	}

	if err := h.classStore.Delete(r.Context(), class.ID); err != nil {
		h.logger.Error("delete class", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete class")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClassHandler) loadClass(w http.ResponseWriter, r *http.Request) (*model.Class, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	class, err := h.classStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get class", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get class")
		return nil, false
	}
	if class == nil {
		writeError(w, http.StatusNotFound, "class not found")
		return nil, false
	}
	return class, true
}

func (h *ClassHandler) ownedClass(w http.ResponseWriter, r *http.Request) (*model.Class, bool) {
	class, ok := h.loadClass(w, r)
	if !ok {
		return nil, false
	}
	if class.InstructorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "not your class")
		return nil, false
	}
	return class, true
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/rollcall/internal/attendance"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

// parseQueryID reads an optional numeric query parameter; absent means 0.
func parseQueryID(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// attendanceStatus maps attendance errors to HTTP status codes.
func attendanceStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrSessionInactive),
		errors.Is(err, attendance.ErrAlreadyEnded),
		errors.Is(err, attendance.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrInvalidToken),
		errors.Is(err, attendance.ErrTokenExpired):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrConstraintViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeAttendanceError renders err. Business errors are shown to the caller
// and logged at debug; anything else is logged as an error and hidden.
func writeAttendanceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := attendanceStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err)
		writeError(w, status, "internal error")
		return
	}
	logger.Debug(op, "status", status, "error", err)
	writeError(w, status, err.Error())
}

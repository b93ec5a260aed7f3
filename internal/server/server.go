package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rollcall/internal/attendance"
	"github.com/dukerupert/rollcall/internal/cleanup"
	"github.com/dukerupert/rollcall/internal/config"
	"github.com/dukerupert/rollcall/internal/handler"
	"github.com/dukerupert/rollcall/internal/metrics"
	"github.com/dukerupert/rollcall/internal/middleware"
	"github.com/dukerupert/rollcall/internal/model"
	"github.com/dukerupert/rollcall/internal/store"
	ws "github.com/dukerupert/rollcall/internal/websocket"
)

const (
	loginRateLimit   = 10
	cleanupInterval  = 10 * time.Minute
	rateLimitWindows = time.Minute
)

type Server struct {
	db                *sql.DB
	hub               *ws.Hub
	metrics           *metrics.Metrics
	manager           *attendance.Manager
	authH             *handler.AuthHandler
	classH            *handler.ClassHandler
	attendanceH       *handler.AttendanceHandler
	userStore         *store.UserStore
	loginSessionStore *store.LoginSessionStore
	classStore        *store.ClassStore
	attendanceStore   *store.AttendanceStore
	rateLimiter       *middleware.RateLimiter
	cleanup           *cleanup.Scheduler
	submitLimit       int
	logger            *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	s := &Server{
		db:                db,
		hub:               ws.NewHub(logger.With("component", "websocket")),
		metrics:           metrics.New(),
		userStore:         store.NewUserStore(db),
		loginSessionStore: store.NewLoginSessionStore(db, cfg.SessionTTL),
		classStore:        store.NewClassStore(db),
		attendanceStore:   store.NewAttendanceStore(db),
		rateLimiter:       middleware.NewRateLimiter(),
		submitLimit:       cfg.SubmitRateLimit,
		logger:            logger,
	}

	attendanceLogger := logger.With("component", "attendance")
	opts := []attendance.Option{
		attendance.WithLogger(attendanceLogger),
		attendance.WithNotifier(s.notify),
	}
	s.manager = attendance.NewManager(s.attendanceStore, s.classStore, s.userStore, opts...)
	recorder := attendance.NewRecorder(s.attendanceStore, opts...)
	reporter := attendance.NewReporter(s.attendanceStore, s.classStore, opts...)

	s.authH = handler.NewAuthHandler(s.userStore, s.loginSessionStore, logger.With("component", "auth"))
	s.classH = handler.NewClassHandler(s.classStore, s.attendanceStore, s.manager, logger.With("component", "class"))
	s.attendanceH = handler.NewAttendanceHandler(handler.AttendanceDeps{
		Sessions: s.attendanceStore,
		Classes:  s.classStore,
		Users:    s.userStore,
		Manager:  s.manager,
		Recorder: recorder,
		Reporter: reporter,
		Hub:      s.hub,
		Metrics:  s.metrics,
	}, logger.With("component", "attendance_handler"))

	s.cleanup = cleanup.NewScheduler(cleanupInterval, logger.With("component", "cleanup"),
		cleanup.Task{Name: "login_sessions", Run: s.loginSessionStore.DeleteExpired},
		cleanup.Task{Name: "rate_limits", Run: func(context.Context) (int64, error) {
			return int64(s.rateLimiter.Cleanup()), nil
		}},
	)
	return s
}

// Start resumes token rotation for sessions left Active by a previous run
// and starts background cleanup.
func (s *Server) Start(ctx context.Context) error {
	n, err := s.manager.Resume(ctx)
	if err != nil {
		return err
	}
	s.metrics.ActiveSessions.Set(float64(n))
	s.cleanup.Start(ctx)
	return nil
}

// Stop halts rotation and cleanup. Call it after the HTTP server has shut
// down.
func (s *Server) Stop() {
	s.cleanup.Stop()
	s.manager.Stop()
}

// Manager returns the attendance lifecycle manager.
func (s *Server) Manager() *attendance.Manager {
	return s.manager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("POST /api/auth/register", s.limitByIP(s.authH.Register))
	mux.Handle("POST /api/auth/login", s.limitByIP(s.authH.Login))

	// Authenticated routes
	mux.Handle("POST /api/auth/logout", s.authed(s.authH.Logout))
	mux.Handle("GET /api/auth/me", s.authed(s.authH.Me))

	mux.Handle("GET /api/classes", s.authed(s.classH.List))
	mux.Handle("POST /api/classes", s.instructor(s.classH.Create))
	mux.Handle("GET /api/classes/{id}", s.authed(s.classH.Get))
	mux.Handle("PUT /api/classes/{id}", s.instructor(s.classH.Update))
	mux.Handle("DELETE /api/classes/{id}", s.instructor(s.classH.Delete))

	mux.Handle("GET /api/sessions", s.authed(s.attendanceH.ListSessions))
	mux.Handle("POST /api/sessions", s.instructor(s.attendanceH.CreateSession))
	mux.Handle("GET /api/sessions/{id}", s.instructor(s.attendanceH.GetSession))
	mux.Handle("PUT /api/sessions/{id}", s.instructor(s.attendanceH.UpdateSession))
	mux.Handle("DELETE /api/sessions/{id}", s.instructor(s.attendanceH.DeleteSession))
	mux.Handle("POST /api/sessions/{id}/end", s.instructor(s.attendanceH.EndSession))
	mux.Handle("GET /api/sessions/{id}/stats", s.instructor(s.attendanceH.SessionStats))
	mux.Handle("GET /api/sessions/{id}/qr", s.instructor(s.attendanceH.QRData))
	mux.Handle("POST /api/sessions/{id}/qr/refresh", s.instructor(s.attendanceH.RefreshQR))
	mux.Handle("GET /api/sessions/{id}/qr/settings", s.instructor(s.attendanceH.QRSettings))

	mux.Handle("POST /api/qr/validate", s.authed(s.attendanceH.ValidateQR))
	mux.Handle("POST /api/attendance", s.student(s.limitByUser(s.attendanceH.Record).ServeHTTP))
	mux.Handle("GET /api/attendance", s.authed(s.attendanceH.ListMarks))
	mux.Handle("GET /api/attendance/me", s.student(s.attendanceH.MyAttendance))

	mux.Handle("GET /ws", s.instructor(s.attendanceH.Live))

	// Instrument wraps the mux directly so it can read the matched pattern.
	return middleware.RequestLogger(s.logger.With("component", "http"))(s.metrics.Instrument(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		writeStatus(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.loginSessionStore, s.userStore)(h)
}

func (s *Server) instructor(h http.HandlerFunc) http.Handler {
	return s.authed(middleware.RequireRole(model.RoleInstructor)(h).ServeHTTP)
}

func (s *Server) student(h http.HandlerFunc) http.Handler {
	return s.authed(middleware.RequireRole(model.RoleStudent)(h).ServeHTTP)
}

func (s *Server) limitByIP(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByIP, loginRateLimit, rateLimitWindows)(h)
}

func (s *Server) limitByUser(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByUser, s.submitLimit, rateLimitWindows)(h)
}

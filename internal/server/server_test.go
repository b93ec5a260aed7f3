package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/rollcall/internal/config"
	"github.com/dukerupert/rollcall/internal/database"
	"github.com/dukerupert/rollcall/internal/model"
)

func setupServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{SessionTTL: time.Hour, SubmitRateLimit: 10}
	srv := New(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (c *client) expect(method, path string, body any, want int, out any) {
	c.t.Helper()
	status, data := c.do(method, path, body)
	if status != want {
		c.t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, status, want, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
}

func register(t *testing.T, base, email string, role model.Role) *client {
	t.Helper()
	c := &client{t: t, base: base}
	var resp struct {
		Token string `json:"token"`
	}
	c.expect("POST", "/api/auth/register", map[string]any{
		"email":    email,
		"name":     strings.Split(email, "@")[0],
		"password": "correct-horse",
		"role":     role,
	}, http.StatusCreated, &resp)
	c.token = resp.Token
	return c
}

type sessionResponse struct {
	Session model.AttendanceSession `json:"session"`
	QR      struct {
		Payload struct {
			SessionID string `json:"sessionId"`
			Token     string `json:"token"`
			Timestamp int64  `json:"timestamp"`
		} `json:"payload"`
	} `json:"qr"`
}

func startSession(t *testing.T, prof *client) sessionResponse {
	t.Helper()
	var class model.Class
	prof.expect("POST", "/api/classes", map[string]any{"name": "Networks", "total_students": 30}, http.StatusCreated, &class)

	var created sessionResponse
	prof.expect("POST", "/api/sessions", map[string]any{"class_id": class.ID, "rotation_interval": 30}, http.StatusCreated, &created)
	return created
}

func TestHealth(t *testing.T) {
	_, ts := setupServer(t)
	c := &client{t: t, base: ts.URL}

	var body map[string]string
	c.expect("GET", "/health", nil, http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	_, ts := setupServer(t)
	anon := &client{t: t, base: ts.URL}

	for _, path := range []string{"/api/auth/me", "/api/classes", "/api/sessions", "/api/attendance/me"} {
		if status, _ := anon.do("GET", path, nil); status != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, status)
		}
	}

	stu := register(t, ts.URL, "stu@example.com", model.RoleStudent)
	if status, _ := stu.do("POST", "/api/classes", map[string]any{"name": "x"}); status != http.StatusForbidden {
		t.Errorf("student create class status = %d, want 403", status)
	}

	var me model.User
	stu.expect("GET", "/api/auth/me", nil, http.StatusOK, &me)
	if me.Email != "stu@example.com" || me.Role != model.RoleStudent {
		t.Errorf("me = %+v", me)
	}

	stu.expect("POST", "/api/auth/logout", nil, http.StatusNoContent, nil)
	if status, _ := stu.do("GET", "/api/auth/me", nil); status != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", status)
	}
}

func TestAttendanceFlow(t *testing.T) {
	_, ts := setupServer(t)
	prof := register(t, ts.URL, "prof@example.com", model.RoleInstructor)
	stu := register(t, ts.URL, "stu@example.com", model.RoleStudent)

	created := startSession(t, prof)
	sess := created.Session
	if !sess.Active || created.QR.Payload.SessionID != sess.ExternalID {
		t.Fatalf("created = %+v", created)
	}

	var refreshed sessionResponse
	prof.expect("POST", fmt.Sprintf("/api/sessions/%d/qr/refresh", sess.ID), nil, http.StatusOK, &refreshed.QR)
	if refreshed.QR.Payload.Token == created.QR.Payload.Token {
		t.Fatal("refresh did not change the token")
	}

	submission := map[string]any{
		"sessionId": sess.ExternalID,
		"token":     created.QR.Payload.Token,
		"timestamp": time.Now().Unix(),
	}
	if status, _ := stu.do("POST", "/api/attendance", submission); status != http.StatusBadRequest {
		t.Errorf("stale token status = %d, want 400", status)
	}
	if status, _ := prof.do("POST", "/api/attendance", submission); status != http.StatusForbidden {
		t.Errorf("instructor submission status = %d, want 403", status)
	}

	submission["token"] = refreshed.QR.Payload.Token
	var mark model.AttendanceMark
	stu.expect("POST", "/api/attendance", submission, http.StatusCreated, &mark)
	if mark.SessionID != sess.ID {
		t.Errorf("mark session = %d, want %d", mark.SessionID, sess.ID)
	}
	if status, _ := stu.do("POST", "/api/attendance", submission); status != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", status)
	}

	var stats struct {
		PresentCount   int     `json:"present_count"`
		AbsentCount    int     `json:"absent_count"`
		AttendanceRate float64 `json:"attendance_rate"`
	}
	prof.expect("GET", fmt.Sprintf("/api/sessions/%d/stats", sess.ID), nil, http.StatusOK, &stats)
	if stats.PresentCount != 1 || stats.AbsentCount != 29 || stats.AttendanceRate != 3.33 {
		t.Errorf("stats = %+v", stats)
	}

	var mine []model.AttendanceMark
	stu.expect("GET", "/api/attendance/me", nil, http.StatusOK, &mine)
	if len(mine) != 1 {
		t.Errorf("my attendance = %d marks, want 1", len(mine))
	}

	prof.expect("POST", fmt.Sprintf("/api/sessions/%d/end", sess.ID), nil, http.StatusOK, nil)
	if status, _ := prof.do("POST", fmt.Sprintf("/api/sessions/%d/end", sess.ID), nil); status != http.StatusConflict {
		t.Errorf("second end status = %d, want 409", status)
	}

	other := register(t, ts.URL, "late@example.com", model.RoleStudent)
	if status, _ := other.do("POST", "/api/attendance", submission); status != http.StatusConflict {
		t.Errorf("submission after end status = %d, want 409", status)
	}

	_, body := prof.do("GET", "/metrics", nil)
	for _, want := range []string{
		`rollcall_marks_total{outcome="recorded"} 1`,
		`rollcall_marks_total{outcome="duplicate"} 1`,
		`rollcall_token_rotations_total{trigger="manual"} 1`,
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSubmitRateLimit(t *testing.T) {
	_, ts := setupServer(t)
	stu := register(t, ts.URL, "stu@example.com", model.RoleStudent)

	submission := map[string]any{"sessionId": "session_missing", "token": "x"}
	for i := 0; i < 10; i++ {
		if status, _ := stu.do("POST", "/api/attendance", submission); status != http.StatusNotFound {
			t.Fatalf("submission %d status = %d, want 404", i, status)
		}
	}
	if status, _ := stu.do("POST", "/api/attendance", submission); status != http.StatusTooManyRequests {
		t.Errorf("11th submission status = %d, want 429", status)
	}
}

type liveMessage struct {
	Type    string          `json:"type"`
	Session string          `json:"session"`
	Data    json.RawMessage `json:"data"`
}

func readLive(t *testing.T, ctx context.Context, conn *ws.Conn) liveMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read live message: %v", err)
	}
	var msg liveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode live message: %v", err)
	}
	return msg
}

func TestLiveDisplay(t *testing.T) {
	_, ts := setupServer(t)
	prof := register(t, ts.URL, "prof@example.com", model.RoleInstructor)
	stu := register(t, ts.URL, "stu@example.com", model.RoleStudent)
	sess := startSession(t, prof).Session

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + sess.ExternalID
	if _, resp, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + stu.token}},
	}); err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student dial: err %v, resp %v", err, resp)
	}

	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + prof.token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	msg := readLive(t, ctx, conn)
	if msg.Type != "token_rotated" || msg.Session != sess.ExternalID {
		t.Fatalf("initial message = %+v", msg)
	}

	var qr struct {
		Payload struct {
			Token string `json:"token"`
		} `json:"payload"`
	}
	prof.expect("POST", fmt.Sprintf("/api/sessions/%d/qr/refresh", sess.ID), nil, http.StatusOK, &qr)

	msg = readLive(t, ctx, conn)
	var payload struct {
		Token string `json:"token"`
	}
	json.Unmarshal(msg.Data, &payload)
	if msg.Type != "token_rotated" || payload.Token != qr.Payload.Token {
		t.Fatalf("rotation message = %+v", msg)
	}

	prof.expect("PUT", fmt.Sprintf("/api/sessions/%d", sess.ID), map[string]any{"rotation_interval": 15}, http.StatusOK, nil)
	if msg = readLive(t, ctx, conn); msg.Type != "interval_changed" {
		t.Fatalf("interval message = %+v", msg)
	}

	stu.expect("POST", "/api/attendance", map[string]any{
		"sessionId": sess.ExternalID,
		"token":     qr.Payload.Token,
	}, http.StatusCreated, nil)
	if msg = readLive(t, ctx, conn); msg.Type != "mark_recorded" {
		t.Fatalf("mark message = %+v", msg)
	}

	prof.expect("POST", fmt.Sprintf("/api/sessions/%d/end", sess.ID), nil, http.StatusOK, nil)
	if msg = readLive(t, ctx, conn); msg.Type != "session_ended" {
		t.Fatalf("end message = %+v", msg)
	}
	if _, _, err := conn.Read(ctx); ws.CloseStatus(err) != ws.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", ws.CloseStatus(err))
	}
}

func TestLiveDisplayEndedSession(t *testing.T) {
	_, ts := setupServer(t)
	prof := register(t, ts.URL, "prof@example.com", model.RoleInstructor)
	sess := startSession(t, prof).Session
	prof.expect("POST", fmt.Sprintf("/api/sessions/%d/end", sess.ID), nil, http.StatusOK, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + sess.ExternalID
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + prof.token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if msg := readLive(t, ctx, conn); msg.Type != "session_ended" {
		t.Fatalf("first message = %+v, want session_ended", msg)
	}
	if _, _, err := conn.Read(ctx); ws.CloseStatus(err) != ws.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", ws.CloseStatus(err))
	}
}

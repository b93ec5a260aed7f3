package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dukerupert/rollcall/internal/model"
)

// CookieName is the cookie carrying the login session token.
const CookieName = "rollcall_session"

type contextKey struct{}

type AuthContext struct {
	UserID    int64
	Role      model.Role
	SessionID int64
}

func (ac AuthContext) IsInstructor() bool { return ac.Role == model.RoleInstructor }

func (ac AuthContext) IsStudent() bool { return ac.Role == model.RoleStudent }

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsInstructor(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.IsInstructor()
}

// SessionToken returns the login token from the session cookie or, failing
// that, an "Authorization: Bearer" header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

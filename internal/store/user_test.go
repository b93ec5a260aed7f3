package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/rollcall/internal/database"
	"github.com/dukerupert/rollcall/internal/model"
)

func setupUserTestDB(t *testing.T) *UserStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db)
}

func TestUserCreate(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	u, err := us.Create(ctx, "alice@example.com", "Alice", model.RoleInstructor, "", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.Role != model.RoleInstructor {
		t.Errorf("role = %q, want %q", u.Role, model.RoleInstructor)
	}
	if !u.IsInstructor() {
		t.Error("expected IsInstructor to be true")
	}
	if u.PasswordHash != "hash" {
		t.Errorf("password hash = %q, want %q", u.PasswordHash, "hash")
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	if _, err := us.Create(ctx, "alice@example.com", "Alice", model.RoleStudent, "S1", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := us.Create(ctx, "alice@example.com", "Alice2", model.RoleStudent, "S2", "hash")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestUserCreateInvalidRole(t *testing.T) {
	us := setupUserTestDB(t)

	if _, err := us.Create(context.Background(), "bob@example.com", "Bob", model.Role("admin"), "", "hash"); err == nil {
		t.Fatal("expected error for invalid role, got nil")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	us := setupUserTestDB(t)

	u, err := us.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
}

func TestUserGetByEmail(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	created, err := us.Create(ctx, "carol@example.com", "Carol", model.RoleStudent, "REG-7", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	u, err := us.GetByEmail(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("got %+v, want user %d", u, created.ID)
	}
	if u.RegistrationNumber != "REG-7" {
		t.Errorf("registration number = %q, want %q", u.RegistrationNumber, "REG-7")
	}

	missing, err := us.GetByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

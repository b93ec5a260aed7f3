package store

import (
	"context"
	"testing"

	"github.com/dukerupert/rollcall/internal/database"
	"github.com/dukerupert/rollcall/internal/model"
)

func setupClassTestDB(t *testing.T) (*ClassStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewClassStore(db), NewUserStore(db)
}

func TestClassCRUD(t *testing.T) {
	cs, us := setupClassTestDB(t)
	ctx := context.Background()

	inst, err := us.Create(ctx, "prof@example.com", "Prof", model.RoleInstructor, "", "hash")
	if err != nil {
		t.Fatalf("create instructor: %v", err)
	}

	// Create
	c, err := cs.Create(ctx, "Networks", "CS", 30, inst.ID)
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	if c.Name != "Networks" || c.Subject != "CS" || c.TotalStudents != 30 {
		t.Errorf("class = %+v", c)
	}
	if c.InstructorID != inst.ID {
		t.Errorf("instructor_id = %d, want %d", c.InstructorID, inst.ID)
	}

	// Update
	updated, err := cs.Update(ctx, c.ID, "Computer Networks", "CS", 32)
	if err != nil {
		t.Fatalf("update class: %v", err)
	}
	if updated.Name != "Computer Networks" || updated.TotalStudents != 32 {
		t.Errorf("updated = %+v", updated)
	}

	// Delete
	if err := cs.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete class: %v", err)
	}
	got, err := cs.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get class: %v", err)
	}
	if got != nil {
		t.Error("expected class to be deleted")
	}
}

func TestClassList(t *testing.T) {
	cs, us := setupClassTestDB(t)
	ctx := context.Background()

	a, err := us.Create(ctx, "a@example.com", "A", model.RoleInstructor, "", "hash")
	if err != nil {
		t.Fatalf("create instructor: %v", err)
	}
	b, err := us.Create(ctx, "b@example.com", "B", model.RoleInstructor, "", "hash")
	if err != nil {
		t.Fatalf("create instructor: %v", err)
	}

	for _, name := range []string{"Physics", "Algebra"} {
		if _, err := cs.Create(ctx, name, "", 10, a.ID); err != nil {
			t.Fatalf("create class: %v", err)
		}
	}
	if _, err := cs.Create(ctx, "Biology", "", 10, b.ID); err != nil {
		t.Fatalf("create class: %v", err)
	}

	mine, err := cs.List(ctx, a.ID)
	if err != nil {
		t.Fatalf("list classes: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("got %d classes, want 2", len(mine))
	}
	if mine[0].Name != "Algebra" || mine[1].Name != "Physics" {
		t.Errorf("order = %q, %q; want Algebra, Physics", mine[0].Name, mine[1].Name)
	}

	all, err := cs.List(ctx, 0)
	if err != nil {
		t.Fatalf("list classes: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d classes, want 3", len(all))
	}
}

func TestClassNegativeEnrollmentRejected(t *testing.T) {
	cs, us := setupClassTestDB(t)
	ctx := context.Background()

	inst, err := us.Create(ctx, "prof@example.com", "Prof", model.RoleInstructor, "", "hash")
	if err != nil {
		t.Fatalf("create instructor: %v", err)
	}
	if _, err := cs.Create(ctx, "Chem", "", -1, inst.ID); err == nil {
		t.Fatal("expected error for negative enrollment")
	}
}

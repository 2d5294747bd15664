package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/closeshop/internal/model"
)

func TestUserCreate(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)

	u, err := us.Create("alice@example.com", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(u.ID) != 36 {
		t.Errorf("id = %q, want uuid", u.ID)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.PasswordHash != "hash" {
		t.Errorf("password hash = %q, want %q", u.PasswordHash, "hash")
	}

	p, err := NewProfileStore(db).Get(u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p == nil {
		t.Fatal("expected profile row created with user")
	}
	if p.Role != model.RoleUser {
		t.Errorf("role = %q, want %q", p.Role, model.RoleUser)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)

	if _, err := us.Create("alice@example.com", "hash", model.RoleUser); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := us.Create("ALICE@example.com", "hash", model.RoleUser)
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("err = %v, want ErrEmailTaken", err)
	}
}

func TestUserGetByEmail(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	created := createTestUser(t, db, "bob@example.com")

	u, err := us.GetByEmail("bob@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("got %+v, want id %s", u, created.ID)
	}

	missing, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserUpdatePassword(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	u := createTestUser(t, db, "carol@example.com")

	if err := us.UpdatePassword(u.ID, "newhash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, _ := us.GetByID(u.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("password hash = %q, want %q", got.PasswordHash, "newhash")
	}
}

func TestUserDeleteCascadesProfile(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	u := createTestUser(t, db, "dave@example.com")

	if err := us.Delete(u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p, err := NewProfileStore(db).Get(u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p != nil {
		t.Error("expected profile removed with user")
	}
}

func TestProfileUpdateAndRole(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProfileStore(db)
	u := createTestUser(t, db, "erin@example.com")

	p, err := ps.Update(u.ID, "Erin", "fcm-token")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.FullName != "Erin" || p.FCMToken != "fcm-token" {
		t.Errorf("profile = %+v", p)
	}

	p, err = ps.SetRole(u.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if !p.IsAdmin() {
		t.Errorf("role = %q, want admin", p.Role)
	}

	if _, err := ps.SetRole(u.ID, "superuser"); err == nil {
		t.Error("expected check constraint to reject unknown role")
	}
}

func TestProfileClearFCMToken(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProfileStore(db)
	u := createTestUser(t, db, "frank@example.com")

	if _, err := ps.Update(u.ID, "Frank", "tok-new"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := ps.ClearFCMToken(u.ID, "tok-old"); err != nil {
		t.Fatalf("clear stale: %v", err)
	}
	p, _ := ps.Get(u.ID)
	if p.FCMToken != "tok-new" {
		t.Errorf("token = %q, want tok-new kept", p.FCMToken)
	}

	if err := ps.ClearFCMToken(u.ID, "tok-new"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	p, _ = ps.Get(u.ID)
	if p.FCMToken != "" {
		t.Errorf("token = %q, want empty", p.FCMToken)
	}
}

func TestProfileCountByRole(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProfileStore(db)
	createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")
	createTestUser(t, db, "c@example.com")
	ps.SetRole(b.ID, model.RoleAdmin)

	counts, err := ps.CountByRole()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[model.RoleUser] != 2 || counts[model.RoleAdmin] != 1 {
		t.Errorf("counts = %v", counts)
	}

	list, err := ps.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("list len = %d, want 3", len(list))
	}
}

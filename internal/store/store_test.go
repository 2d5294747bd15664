package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/closeshop/internal/database"
	"github.com/dukerupert/closeshop/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(email, "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

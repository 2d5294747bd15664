package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/closeshop/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	err := scanner.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.FCMToken, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const profileCols = `id, email, full_name, role, fcm_token, created_at, updated_at`

// Get returns the profile for a user id, or nil if none exists.
func (s *ProfileStore) Get(id string) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) List() ([]model.Profile, error) {
	rows, err := s.db.Query(`SELECT ` + profileCols + ` FROM profiles ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// Update sets the user-editable profile fields.
func (s *ProfileStore) Update(id, fullName, fcmToken string) (*model.Profile, error) {
	_, err := s.db.Exec(
		`UPDATE profiles SET full_name = ?, fcm_token = ? WHERE id = ?`,
		fullName, fcmToken, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.Get(id)
}

// ClearFCMToken removes token from the profile. A token replaced in the
// meantime is left alone.
func (s *ProfileStore) ClearFCMToken(id, token string) error {
	_, err := s.db.Exec(
		`UPDATE profiles SET fcm_token = '' WHERE id = ? AND fcm_token = ?`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("clear fcm token: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetRole(id, role string) (*model.Profile, error) {
	_, err := s.db.Exec(`UPDATE profiles SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return nil, fmt.Errorf("set profile role: %w", err)
	}
	return s.Get(id)
}

// CountByRole returns the number of profiles per role.
func (s *ProfileStore) CountByRole() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT role, COUNT(*) FROM profiles GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan profile count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/dukerupert/closeshop/internal/model"
)

// RecoveryCodeTTL bounds how long a password recovery code can be redeemed.
const RecoveryCodeTTL = 15 * time.Minute

type RecoveryStore struct {
	db *sql.DB
}

func NewRecoveryStore(db *sql.DB) *RecoveryStore {
	return &RecoveryStore{db: db}
}

func scanRecoveryCode(scanner interface{ Scan(...any) error }) (*model.RecoveryCode, error) {
	var rc model.RecoveryCode
	var usedAt sql.NullTime

	err := scanner.Scan(&rc.ID, &rc.Code, &rc.Email, &rc.ExpiresAt, &usedAt, &rc.Attempts, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		rc.UsedAt = &usedAt.Time
	}
	return &rc, nil
}

const recoveryCols = `id, code, email, expires_at, used_at, attempts, created_at`

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a fresh code for email. Pending codes for the same email are invalidated first.
func (s *RecoveryStore) Create(email string) (*model.RecoveryCode, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE recovery_codes SET used_at = ? WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
		now, email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO recovery_codes (code, email, expires_at) VALUES (?, ?, ?)`,
		code, email, now.Add(RecoveryCodeTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert recovery code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+recoveryCols+` FROM recovery_codes WHERE id = ?`, id)
	return scanRecoveryCode(row)
}

// GetLatestByEmail returns the most recent unexpired, unused code for an email.
func (s *RecoveryStore) GetLatestByEmail(email string) (*model.RecoveryCode, error) {
	row := s.db.QueryRow(
		`SELECT `+recoveryCols+` FROM recovery_codes
		 WHERE email = ? AND expires_at > ? AND used_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		email, time.Now().UTC(),
	)
	rc, err := scanRecoveryCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest recovery code: %w", err)
	}
	return rc, nil
}

// IncrementAttempts increments the attempt count and returns the new value.
func (s *RecoveryStore) IncrementAttempts(id int64) (int, error) {
	if _, err := s.db.Exec(`UPDATE recovery_codes SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}

	var attempts int
	if err := s.db.QueryRow(`SELECT attempts FROM recovery_codes WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, nil
}

func (s *RecoveryStore) MarkUsed(id int64) error {
	_, err := s.db.Exec(`UPDATE recovery_codes SET used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark recovery code used: %w", err)
	}
	return nil
}

func (s *RecoveryStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM recovery_codes WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired recovery codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
)

// LoginCodeTTL is how long an emailed sign-in code stays valid.
const LoginCodeTTL = 15 * time.Minute

type LoginCodeStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewLoginCodeStore(db *sql.DB) *LoginCodeStore {
	return &LoginCodeStore{db: db, now: time.Now}
}

const loginCodeCols = `id, identifier, code, expires_at, used_at, attempts, created_at`

func scanLoginCode(scanner interface{ Scan(...any) error }) (*model.LoginCode, error) {
	var lc model.LoginCode
	var expires, created int64
	var used sql.NullInt64
	err := scanner.Scan(&lc.ID, &lc.Identifier, &lc.Code, &expires, &used, &lc.Attempts, &created)
	if err != nil {
		return nil, err
	}
	lc.ExpiresAt = fromMillis(expires)
	lc.CreatedAt = fromMillis(created)
	if used.Valid {
		t := fromMillis(used.Int64)
		lc.UsedAt = &t
	}
	return &lc, nil
}

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a new code for identifier. Pending codes for the same
// identifier are invalidated first.
func (s *LoginCodeStore) Create(ctx context.Context, identifier string) (*model.LoginCode, error) {
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE login_codes SET used_at = ? WHERE identifier = ? AND used_at IS NULL AND expires_at > ?`,
		now, identifier, now,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	expires := now + LoginCodeTTL.Milliseconds()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO login_codes (identifier, code, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		identifier, code, expires, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert login code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+loginCodeCols+` FROM login_codes WHERE id = ?`, id)
	return scanLoginCode(row)
}

// Latest returns the newest unexpired, unused code for identifier, or
// ErrNotFound.
func (s *LoginCodeStore) Latest(ctx context.Context, identifier string) (*model.LoginCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+loginCodeCols+` FROM login_codes
		 WHERE identifier = ? AND expires_at > ? AND used_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		identifier, toMillis(s.now()),
	)
	lc, err := scanLoginCode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest login code: %w", err)
	}
	return lc, nil
}

// IncrementAttempts increments the attempt count and returns the new value.
func (s *LoginCodeStore) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx,
		`UPDATE login_codes SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`, id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

func (s *LoginCodeStore) MarkUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE login_codes SET used_at = ? WHERE id = ?`, toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark login code used: %w", err)
	}
	return nil
}

func (s *LoginCodeStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM login_codes WHERE expires_at <= ?`, toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired login codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

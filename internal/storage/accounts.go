package storage

import (
	"context"
	"time"

	"github.com/example/wb-supply-bot/internal/db"
)

// AddAccount stores a new credential set. The API key is encrypted before it
// reaches the database.
func (s *Store) AddAccount(ctx context.Context, userID int64, apiKey, name string) (Account, error) {
	enc, err := s.aead.EncryptToString(apiKey)
	if err != nil {
		return Account{}, err
	}
	var a Account
	err = s.db.QueryRow(ctx, `
INSERT INTO wb_accounts(user_id, api_key, name)
VALUES ($1,$2,$3)
RETURNING id, user_id, name, is_active, created_at, last_check`,
		userID, enc, name,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Active, &a.CreatedAt, &a.LastCheck)
	if err != nil {
		return Account{}, db.WrapNotFound(err)
	}
	a.APIKey = apiKey
	return a, nil
}

// Accounts lists a user's accounts in creation order, keys decrypted.
func (s *Store) Accounts(ctx context.Context, userID int64) ([]Account, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, api_key, name, is_active, created_at, last_check
FROM wb_accounts
WHERE user_id=$1
ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var enc string
		if err := rows.Scan(&a.ID, &a.UserID, &enc, &a.Name, &a.Active, &a.CreatedAt, &a.LastCheck); err != nil {
			return nil, err
		}
		key, err := s.aead.DecryptString(enc)
		if err != nil {
			return nil, err
		}
		a.APIKey = key
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAccounts(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM wb_accounts WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

func (s *Store) DeleteAccount(ctx context.Context, accountID, userID int64) error {
	return s.db.Exec(ctx, `DELETE FROM wb_accounts WHERE id=$1 AND user_id=$2`, accountID, userID)
}

// SetAccountActive soft-disables an account; error states disable rather
// than delete.
func (s *Store) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	return s.db.Exec(ctx, `UPDATE wb_accounts SET is_active=$2 WHERE id=$1`, accountID, active)
}

func (s *Store) TouchAccountCheck(ctx context.Context, accountID int64, t time.Time) error {
	return s.db.Exec(ctx, `UPDATE wb_accounts SET last_check=$2 WHERE id=$1`, accountID, t)
}

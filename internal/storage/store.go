package storage

import (
	"context"

	"github.com/example/wb-supply-bot/internal/crypto"
	"github.com/example/wb-supply-bot/internal/db"
)

var ErrNotFound = db.ErrNotFound

type Store struct {
	db   *db.DB
	aead *crypto.AEAD
}

func New(d *db.DB, aead *crypto.AEAD) *Store {
	return &Store{db: d, aead: aead}
}

// CreateUser inserts the user and their default filter row. Re-registering
// an existing telegram ID just returns the stored user.
func (s *Store) CreateUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
INSERT INTO users(telegram_id, username, first_name, last_name)
VALUES ($1,$2,$3,$4)
ON CONFLICT (telegram_id) DO UPDATE SET username=EXCLUDED.username, updated_at=now()
RETURNING id, telegram_id, username, first_name, last_name, is_active, created_at`,
		telegramID, username, firstName, lastName,
	).Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Active, &u.CreatedAt)
	if err != nil {
		return User{}, db.WrapNotFound(err)
	}
	if err := s.db.Exec(ctx, `
INSERT INTO user_filters(user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	return s.scanUser(s.db.QueryRow(ctx, `
SELECT id, telegram_id, username, first_name, last_name, is_active, created_at
FROM users WHERE id=$1`, id))
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (User, error) {
	return s.scanUser(s.db.QueryRow(ctx, `
SELECT id, telegram_id, username, first_name, last_name, is_active, created_at
FROM users WHERE telegram_id=$1`, telegramID))
}

// ActiveUsers returns active users that have at least one active account.
func (s *Store) ActiveUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.is_active, u.created_at
FROM users u
JOIN wb_accounts a ON a.user_id = u.id AND a.is_active
WHERE u.is_active
ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	return s.db.Exec(ctx, `UPDATE users SET is_active=$2, updated_at=now() WHERE id=$1`, id, active)
}

func (s *Store) scanUser(row db.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Active, &u.CreatedAt); err != nil {
		return User{}, db.WrapNotFound(err)
	}
	return u, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

type UserRecord struct {
	ID         int64
	TelegramID int64
	Username   string
	CreatedAt  time.Time
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// EnsureUser upserts the user by telegram id and returns the internal id.
// An existing row only gets its username refreshed when the caller supplies
// a non-empty one.
func (r *UserRepo) EnsureUser(ctx context.Context, telegramID int64, username string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if telegramID <= 0 {
		return 0, fmt.Errorf("invalid telegram_id")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO users (telegram_id, username, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (telegram_id) DO UPDATE SET
	username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username)
RETURNING id
`, telegramID, strings.TrimSpace(username)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure user by telegram_id: %w", err)
	}

	return id, nil
}

func (r *UserRepo) FindByTelegramID(ctx context.Context, telegramID int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if telegramID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid telegram_id")
	}

	var user UserRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, telegram_id, username, created_at
FROM users
WHERE telegram_id = $1
`, telegramID).Scan(&user.ID, &user.TelegramID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("find user by telegram_id: %w", err)
	}

	return user, nil
}

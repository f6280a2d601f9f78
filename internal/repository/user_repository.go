package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marketvision/cardgenbot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `
SELECT id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), balance, preferred_image_count, seen_count_prompt, created_at, last_active
FROM users WHERE telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var u models.User
	var seen int
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.Balance, &u.PreferredImageCount, &seen, &u.CreatedAt, &u.LastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.SeenCountPrompt = seen != 0
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, username, first_name, balance, preferred_image_count)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	res, err := r.db.ExecContext(ctx, query, user.TelegramID, user.Username, user.FirstName, user.Balance, user.PreferredImageCount)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, firstName string) error {
	const query = `
UPDATE users SET username = COALESCE(NULLIF(?, ''), username), first_name = COALESCE(NULLIF(?, ''), first_name), last_active = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, firstName, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Ensure is the idempotent upsert behind get_or_create_account: display fields
// and last_active are refreshed on every interaction, new users start with the
// default balance.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, firstName string, defaultBalance int) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if err := r.UpdateProfile(ctx, user.ID, username, firstName); err != nil {
			return nil, false, err
		}
		if username != "" {
			user.Username = username
		}
		if firstName != "" {
			user.FirstName = firstName
		}
		return user, false, nil
	}
	newUser := &models.User{
		TelegramID:          telegramID,
		Username:            username,
		FirstName:           firstName,
		Balance:             defaultBalance,
		PreferredImageCount: 1,
	}
	created, err := r.Create(ctx, newUser)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// AdjustBalance atomically adds delta to the balance and returns the new value.
// Callers are expected to go through the ledger service so the balance never
// goes negative.
func (r *UserRepository) AdjustBalance(ctx context.Context, userID int64, delta int) (int, error) {
	const update = `UPDATE users SET balance = balance + ?, last_active = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, update, delta, userID); err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	const query = `SELECT balance FROM users WHERE id = ?`
	var balance int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

func (r *UserRepository) Balance(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT balance FROM users WHERE id = ?`
	var balance int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

func (r *UserRepository) SetPreferredImageCount(ctx context.Context, userID int64, count int) error {
	const query = `UPDATE users SET preferred_image_count = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, count, userID); err != nil {
		return fmt.Errorf("set preferred image count: %w", err)
	}
	return nil
}

func (r *UserRepository) MarkCountPromptSeen(ctx context.Context, userID int64) error {
	const query = `UPDATE users SET seen_count_prompt = 1 WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark count prompt seen: %w", err)
	}
	return nil
}

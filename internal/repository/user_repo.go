package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/models"
)

const userColumns = `id, name, email, password_hash, role, status, referral_code, referred_by,
	deposit_balance, earning_balance, total_earnings, completed_jobs, active_jobs, is_premium,
	created_at, updated_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.ReferralCode, &u.ReferredBy,
		&u.DepositBalance, &u.EarningBalance, &u.TotalEarnings, &u.CompletedJobs, &u.ActiveJobs, &u.IsPremium,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. Duplicate email or referral code map to
// models.ErrEmailTaken and models.ErrCodeTaken.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, status, referral_code, referred_by,
			deposit_balance, earning_balance, total_earnings, is_premium)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Status, u.ReferralCode, u.ReferredBy,
		u.DepositBalance, u.EarningBalance, u.TotalEarnings, u.IsPremium).Scan(&u.CreatedAt, &u.UpdatedAt)
	switch {
	case isUniqueViolation(err, "users_email_key"):
		return models.ErrEmailTaken
	case isUniqueViolation(err, "users_referral_code_key"):
		return models.ErrCodeTaken
	}
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, noRows(err, "user")
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	return u, noRows(err, "user")
}

func (r *UserRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
	return u, noRows(err, "referral code")
}

// GetByIDForUpdate locks the user row. Call within a transaction.
func (r *UserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	return u, noRows(err, "user")
}

func balanceColumn(b models.Balance) (string, error) {
	switch b {
	case models.BalanceDeposit:
		return "deposit_balance", nil
	case models.BalanceEarning:
		return "earning_balance", nil
	}
	return "", fmt.Errorf("unknown balance %q", b)
}

// AdjustBalance adds delta (which may be negative) to the named balance and
// returns the new value. The update only applies when the result stays
// non-negative; otherwise models.ErrInsufficientBalance is returned and
// nothing is written.
func (r *UserRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, b models.Balance, delta decimal.Decimal) (decimal.Decimal, error) {
	col, err := balanceColumn(b)
	if err != nil {
		return decimal.Zero, err
	}
	var newBalance decimal.Decimal
	err = tx.QueryRow(ctx, `
		UPDATE users SET `+col+` = `+col+` + $1, updated_at = now()
		WHERE id = $2 AND `+col+` + $1 >= 0
		RETURNING `+col, delta, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		missErr := casMiss(ctx, tx, "users", id)
		if errors.Is(missErr, models.ErrConflict) {
			return decimal.Zero, fmt.Errorf("%s balance: %w", b, models.ErrInsufficientBalance)
		}
		return decimal.Zero, missErr
	}
	return newBalance, err
}

// ApplyStats bumps the work counters. active_jobs is floored at zero.
func (r *UserRepo) ApplyStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, d models.StatsDelta) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users SET total_earnings = total_earnings + $2,
			completed_jobs = completed_jobs + $3,
			active_jobs = GREATEST(active_jobs + $4, 0),
			updated_at = now()
		WHERE id = $1
	`, id, d.Earned, d.CompletedJobs, d.ActiveJobs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// SetReferredBy links a user to a referrer once. A user that already has a
// referrer yields models.ErrAlreadyProcessed.
func (r *UserRepo) SetReferredBy(ctx context.Context, tx pgx.Tx, id, referrerID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users SET referred_by = $2, updated_at = now() WHERE id = $1 AND referred_by IS NULL
	`, id, referrerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if missErr := casMiss(ctx, tx, "users", id); !errors.Is(missErr, models.ErrConflict) {
			return missErr
		}
		return fmt.Errorf("user %s already referred: %w", id, models.ErrAlreadyProcessed)
	}
	return nil
}

func (r *UserRepo) SetPremium(ctx context.Context, tx pgx.Tx, id uuid.UUID, premium bool) error {
	_, err := tx.Exec(ctx, `UPDATE users SET is_premium = $2, updated_at = now() WHERE id = $1`, id, premium)
	return err
}

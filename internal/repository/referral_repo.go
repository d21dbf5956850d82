package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/models"
)

const referralColumns = `id, referrer_id, referred_id, referral_code, status, deposit_earnings, task_earnings,
	total_earnings, first_deposit_at, first_task_at, created_at`

type ReferralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

func scanReferral(row pgx.Row) (*models.Referral, error) {
	var r models.Referral
	err := row.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.ReferralCode, &r.Status, &r.Earnings.DepositEarnings,
		&r.Earnings.TaskEarnings, &r.Earnings.TotalEarnings, &r.FirstDepositAt, &r.FirstTaskAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateTx links a referred user. A user can only be referred once.
func (r *ReferralRepo) CreateTx(ctx context.Context, tx pgx.Tx, ref *models.Referral) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, referral_code, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, ref.ID, ref.ReferrerID, ref.ReferredID, ref.ReferralCode, ref.Status).Scan(&ref.CreatedAt)
	if isUniqueViolation(err, "referrals_referred_id_key") {
		return fmt.Errorf("user %s already referred: %w", ref.ReferredID, models.ErrAlreadyProcessed)
	}
	return err
}

// GetByReferredForUpdate locks the referral of a referred user.
func (r *ReferralRepo) GetByReferredForUpdate(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (*models.Referral, error) {
	ref, err := scanReferral(tx.QueryRow(ctx, `SELECT `+referralColumns+` FROM referrals WHERE referred_id = $1 FOR UPDATE`, referredID))
	return ref, noRows(err, "referral")
}

// AddEarnings accumulates a commission on the tally and stamps the first
// occurrence of its source.
func (r *ReferralRepo) AddEarnings(ctx context.Context, tx pgx.Tx, id uuid.UUID, source models.CommissionSource, amount decimal.Decimal, at time.Time) error {
	var q string
	switch source {
	case models.SourceDeposit:
		q = `UPDATE referrals SET deposit_earnings = deposit_earnings + $2, total_earnings = total_earnings + $2,
			first_deposit_at = COALESCE(first_deposit_at, $3) WHERE id = $1`
	case models.SourceTask:
		q = `UPDATE referrals SET task_earnings = task_earnings + $2, total_earnings = total_earnings + $2,
			first_task_at = COALESCE(first_task_at, $3) WHERE id = $1`
	default:
		return fmt.Errorf("unknown commission source %q", source)
	}
	tag, err := tx.Exec(ctx, q, id, amount, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referral %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *ReferralRepo) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*models.Referral, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+referralColumns+` FROM referrals WHERE referrer_id = $1 ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ref)
	}
	return list, rows.Err()
}

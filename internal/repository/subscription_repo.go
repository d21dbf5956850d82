package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earnhub/backend/internal/models"
)

const subscriptionColumns = `id, user_id, plan, status, price, start_date, end_date, payment_transaction_id, created_at, updated_at`

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Plan, &s.Status, &s.Price, &s.StartDate, &s.EndDate, &s.PaymentTransactionID,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertTx stores the user's single subscription, replacing any previous plan.
func (r *SubscriptionRepo) UpsertTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) error {
	return tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, status, price, start_date, end_date, payment_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET plan = EXCLUDED.plan, status = EXCLUDED.status, price = EXCLUDED.price,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			payment_transaction_id = EXCLUDED.payment_transaction_id, updated_at = now()
		RETURNING id, created_at, updated_at
	`, s.ID, s.UserID, s.Plan, s.Status, s.Price, s.StartDate, s.EndDate, s.PaymentTransactionID).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *SubscriptionRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	return s, noRows(err, "subscription")
}

// CancelTx marks the user's active subscription cancelled.
func (r *SubscriptionRepo) CancelTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Subscription, error) {
	s, err := scanSubscription(tx.QueryRow(ctx, `
		UPDATE subscriptions SET status = 'cancelled', updated_at = now()
		WHERE user_id = $1 AND status = 'active'
		RETURNING `+subscriptionColumns, userID))
	return s, noRows(err, "active subscription")
}

package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
)

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetReferredBy(ctx context.Context, tx pgx.Tx, id, referrerID uuid.UUID) error
	ApplyStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, d models.StatsDelta) error
}

// ReferralStore is satisfied by *repository.ReferralRepo.
type ReferralStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, ref *models.Referral) error
	GetByReferredForUpdate(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (*models.Referral, error)
	AddEarnings(ctx context.Context, tx pgx.Tx, id uuid.UUID, source models.CommissionSource, amount decimal.Decimal, at time.Time) error
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*models.Referral, error)
}

type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
}

package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
)

// Ledger is the subset of *ledger.Service the wallet drives.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
	Debit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
	RequestCredit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
	Convert(ctx context.Context, tx pgx.Tx, c ledger.Conversion) (*models.Transaction, error)
	Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, to models.TransactionStatus, review *models.Review) (*models.Transaction, error)
	Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, b models.Balance, value decimal.Decimal, adminID uuid.UUID) (*models.Transaction, error)
}

type TransactionStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetPremium(ctx context.Context, tx pgx.Tx, id uuid.UUID, premium bool) error
}

type SubscriptionStore interface {
	UpsertTx(ctx context.Context, tx pgx.Tx, s *models.Subscription) error
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	CancelTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Subscription, error)
}

type CommissionQueue interface {
	EnqueueCommissionTx(ctx context.Context, tx pgx.Tx, args execution.CommissionArgs) error
}

type StatsTrigger interface {
	TriggerStats(ctx context.Context)
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
	Record(ctx context.Context, a *models.Activity)
}

// Package ledger is the only writer of user balances. Every mutation pairs a
// conditional balance update with one append-only transaction row, inside
// the caller's pgx transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/dbtx"
	"github.com/earnhub/backend/internal/events"
	"github.com/earnhub/backend/internal/metrics"
	"github.com/earnhub/backend/internal/models"
)

// BalanceStore applies balance deltas.
type BalanceStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, b models.Balance, delta decimal.Decimal) (decimal.Decimal, error)
}

// TransactionStore persists ledger rows.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to models.TransactionStatus, review *models.Review) (*models.Transaction, error)
}

// Outbox schedules publication of a ledger row in the same transaction.
type Outbox interface {
	EnqueueLedgerEventTx(ctx context.Context, tx pgx.Tx, ev events.LedgerEvent) error
}

// Entry describes one balance movement.
type Entry struct {
	UserID        uuid.UUID
	Balance       models.Balance
	Amount        decimal.Decimal
	Type          models.TransactionType
	Status        models.TransactionStatus // empty means completed
	Description   string
	PaymentMethod string
	Reference     string // empty means a fresh ULID
	JobID         *uuid.UUID
	WorkID        *uuid.UUID
	Metadata      models.Metadata
}

// Conversion moves value between a user's two balances for a fee.
type Conversion struct {
	UserID      uuid.UUID
	From        models.Balance
	To          models.Balance
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Description string
}

type Service struct {
	Balances     BalanceStore
	Transactions TransactionStore
	Outbox       Outbox // optional
	Logger       *slog.Logger

	now func() time.Time
}

func NewService(balances BalanceStore, transactions TransactionStore, outbox Outbox) *Service {
	return &Service{Balances: balances, Transactions: transactions, Outbox: outbox, Logger: slog.Default(), now: time.Now}
}

// Credit increases a balance and records a completed row.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if e.Status != "" && e.Status != models.TxCompleted {
		return nil, fmt.Errorf("credit with status %q: %w", e.Status, models.ErrInvalidState)
	}
	return s.apply(ctx, tx, e, models.Credit)
}

// Debit decreases a balance and records the row. A debit that would take
// the balance below zero fails with models.ErrInsufficientBalance and
// writes nothing. Status may be pending for movements awaiting review
// (withdrawals); the funds leave the balance immediately either way.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if e.Status != "" && e.Status != models.TxCompleted && e.Status != models.TxPending {
		return nil, fmt.Errorf("debit with status %q: %w", e.Status, models.ErrInvalidState)
	}
	return s.apply(ctx, tx, e, models.Debit)
}

// RequestCredit records a pending credit without touching the balance. The
// credit is applied when Resolve completes it.
func (s *Service) RequestCredit(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if err := validate(e.Balance, e.Amount); err != nil {
		return nil, err
	}
	u, err := s.Balances.GetByIDForUpdate(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}
	e.Status = models.TxPending
	return s.record(ctx, tx, e, models.Credit, u.BalanceOf(e.Balance))
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, e Entry, dir models.Direction) (*models.Transaction, error) {
	if err := validate(e.Balance, e.Amount); err != nil {
		return nil, err
	}
	delta := e.Amount
	if dir == models.Debit {
		delta = delta.Neg()
	}
	after, err := s.Balances.AdjustBalance(ctx, tx, e.UserID, e.Balance, delta)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) {
			metrics.LedgerRejections.WithLabelValues("insufficient_balance").Inc()
		}
		return nil, err
	}
	if e.Status == "" {
		e.Status = models.TxCompleted
	}
	return s.record(ctx, tx, e, dir, after)
}

func (s *Service) record(ctx context.Context, tx pgx.Tx, e Entry, dir models.Direction, after decimal.Decimal) (*models.Transaction, error) {
	ref := e.Reference
	if ref == "" {
		ref = ulid.Make().String()
	}
	t := &models.Transaction{
		ID:            uuid.New(),
		Reference:     ref,
		UserID:        e.UserID,
		Type:          e.Type,
		Balance:       e.Balance,
		Direction:     dir,
		Amount:        e.Amount,
		BalanceAfter:  after,
		Status:        e.Status,
		Description:   e.Description,
		PaymentMethod: e.PaymentMethod,
		JobID:         e.JobID,
		WorkID:        e.WorkID,
		Metadata:      e.Metadata,
	}
	if err := s.Transactions.CreateTx(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, tx, t); err != nil {
		return nil, err
	}
	metrics.RecordEntry(t)
	return t, nil
}

// Convert debits c.Amount from one balance and credits the amount net of
// the fee to the other, recorded as a single conversion row.
func (s *Service) Convert(ctx context.Context, tx pgx.Tx, c Conversion) (*models.Transaction, error) {
	if err := validate(c.From, c.Amount); err != nil {
		return nil, err
	}
	if !c.To.Valid() || c.To == c.From {
		return nil, fmt.Errorf("convert %s to %s: %w", c.From, c.To, models.ErrInvalidState)
	}
	if c.Fee.IsNegative() || !models.FitsScale(c.Fee) {
		return nil, fmt.Errorf("negative fee: %w", models.ErrInvalidAmount)
	}
	net := c.Amount.Sub(c.Fee)
	if !net.IsPositive() {
		return nil, fmt.Errorf("fee consumes conversion: %w", models.ErrInvalidAmount)
	}
	after, err := s.Balances.AdjustBalance(ctx, tx, c.UserID, c.From, c.Amount.Neg())
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) {
			metrics.LedgerRejections.WithLabelValues("insufficient_balance").Inc()
		}
		return nil, err
	}
	if _, err := s.Balances.AdjustBalance(ctx, tx, c.UserID, c.To, net); err != nil {
		return nil, err
	}
	return s.record(ctx, tx, Entry{
		UserID:      c.UserID,
		Balance:     c.From,
		Amount:      c.Amount,
		Type:        models.TxConversion,
		Status:      models.TxCompleted,
		Description: c.Description,
		Metadata: models.Metadata{Conversion: &models.ConversionDetail{
			From: c.From, To: c.To, Fee: c.Fee, NetAmount: net,
		}},
	}, models.Debit, after)
}

// Resolve settles a pending row. Completing a pending credit applies it;
// failing or cancelling a pending debit returns the funds. Any other
// transition changes status only. A row that is no longer pending yields
// models.ErrAlreadyProcessed.
func (s *Service) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, to models.TransactionStatus, review *models.Review) (*models.Transaction, error) {
	if to == models.TxPending || to == "" {
		return nil, fmt.Errorf("resolve to %q: %w", to, models.ErrInvalidState)
	}
	t, err := s.Transactions.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TxPending {
		metrics.SettlementConflicts.WithLabelValues("resolve").Inc()
		return nil, fmt.Errorf("transaction %s is %s: %w", id, t.Status, models.ErrAlreadyProcessed)
	}

	switch {
	case t.Direction == models.Credit && to == models.TxCompleted:
		if _, err := s.Balances.AdjustBalance(ctx, tx, t.UserID, t.Balance, t.Amount); err != nil {
			return nil, err
		}
	case t.Direction == models.Debit && (to == models.TxFailed || to == models.TxCancelled):
		if _, err := s.Balances.AdjustBalance(ctx, tx, t.UserID, t.Balance, t.Amount); err != nil {
			return nil, err
		}
	}

	if review != nil {
		review.Status = to
		if review.ReviewedAt.IsZero() {
			review.ReviewedAt = s.now()
		}
	}
	updated, err := s.Transactions.Transition(ctx, tx, id, models.TxPending, to, review)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, tx, updated); err != nil {
		return nil, err
	}
	metrics.RecordEntry(updated)
	return updated, nil
}

// Adjust overwrites a balance with an administrator-chosen value. The
// difference is recorded as a bonus row carrying the old and new values.
// An unchanged balance writes nothing and returns nil.
func (s *Service) Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, b models.Balance, value decimal.Decimal, adminID uuid.UUID) (*models.Transaction, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("unknown balance %q: %w", b, models.ErrInvalidAmount)
	}
	if value.IsNegative() || !models.FitsScale(value) {
		return nil, fmt.Errorf("balance %s: %w", value, models.ErrInvalidAmount)
	}
	u, err := s.Balances.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	prev := u.BalanceOf(b)
	delta := value.Sub(prev)
	if delta.IsZero() {
		return nil, nil
	}
	e := Entry{
		UserID:      userID,
		Balance:     b,
		Amount:      delta.Abs(),
		Type:        models.TxBonus,
		Description: fmt.Sprintf("Admin balance adjustment (%s)", b),
		Metadata: models.Metadata{Adjustment: &models.AdjustmentDetail{
			Previous: prev, New: value, AdminID: adminID,
		}},
	}
	if delta.IsNegative() {
		return s.Debit(ctx, tx, e)
	}
	return s.Credit(ctx, tx, e)
}

// publish schedules the event in a savepoint. A queue failure loses the
// event, never the movement: only a broken outer transaction is returned.
func (s *Service) publish(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	if s.Outbox == nil {
		return nil
	}
	skipped, err := dbtx.BestEffort(ctx, tx, func(sp pgx.Tx) error {
		return s.Outbox.EnqueueLedgerEventTx(ctx, sp, events.FromTransaction(t, s.now()))
	})
	if err != nil {
		return fmt.Errorf("enqueue ledger event: %w", err)
	}
	if skipped != nil {
		s.Logger.WarnContext(ctx, "ledger event not enqueued", "reference", t.Reference, "user_id", t.UserID, "error", skipped)
	}
	return nil
}

func validate(b models.Balance, amount decimal.Decimal) error {
	if !b.Valid() {
		return fmt.Errorf("unknown balance %q: %w", b, models.ErrInvalidAmount)
	}
	if !amount.IsPositive() || !models.FitsScale(amount) {
		return fmt.Errorf("amount %s: %w", amount, models.ErrInvalidAmount)
	}
	return nil
}

// Package wallet covers the money movements a user starts directly:
// withdrawals, deposits, balance conversion and subscriptions, plus the
// admin review of pending movements.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/dbtx"
	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
)

// Wallet is a user's balance sheet.
type Wallet struct {
	DepositBalance decimal.Decimal      `json:"deposit_balance"`
	EarningBalance decimal.Decimal      `json:"earning_balance"`
	TotalEarnings  decimal.Decimal      `json:"total_earnings"`
	IsPremium      bool                 `json:"is_premium"`
	Subscription   *models.Subscription `json:"subscription,omitempty"`
}

type WithdrawalInput struct {
	Amount         decimal.Decimal
	Method         string
	AccountDetails string
}

type DepositInput struct {
	Amount      decimal.Decimal
	Method      string
	ReferenceID string
}

type Service interface {
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*models.Transaction, error)
	ApproveWithdrawal(ctx context.Context, admin models.Actor, txnID uuid.UUID) (*models.Transaction, error)
	RejectWithdrawal(ctx context.Context, admin models.Actor, txnID uuid.UUID, reason string) (*models.Transaction, error)
	RequestDeposit(ctx context.Context, userID uuid.UUID, in DepositInput) (*models.Transaction, error)
	ApproveDeposit(ctx context.Context, admin models.Actor, txnID uuid.UUID) (*models.Transaction, error)
	RejectDeposit(ctx context.Context, admin models.Actor, txnID uuid.UUID, reason string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, admin models.Actor, txnID uuid.UUID, to models.TransactionStatus, reason string) (*models.Transaction, error)
	Convert(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	Subscribe(ctx context.Context, userID uuid.UUID, plan string) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	AdminSetBalances(ctx context.Context, admin models.Actor, userID uuid.UUID, deposit, earning *decimal.Decimal) ([]*models.Transaction, error)
	AddBalance(ctx context.Context, userID uuid.UUID, b models.Balance, amount decimal.Decimal, description string) (*models.Transaction, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, error)
	ListWithdrawals(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, error)
}

type Deps struct {
	DB            dbtx.TxBeginner
	Ledger        Ledger
	Transactions  TransactionStore
	Users         UserStore
	Subscriptions SubscriptionStore
	Commissions   CommissionQueue
	Stats         StatsTrigger
	Notifier      Notifier
	Rules         config.Ledger
	Logger        *slog.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) *service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d, now: time.Now}
}

var _ Service = (*service)(nil)

// ---------------------------------------------------------------------------
// Withdrawals
// ---------------------------------------------------------------------------

// RequestWithdrawal takes the amount out of the earning balance at once and
// leaves a pending row for an admin to settle.
func (s *service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*models.Transaction, error) {
	if !in.Amount.IsPositive() || !models.FitsScale(in.Amount) {
		return nil, fmt.Errorf("withdrawal %s: %w", in.Amount, models.ErrInvalidAmount)
	}
	var txn *models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		txn, err = s.Ledger.Debit(ctx, tx, ledger.Entry{
			UserID:        userID,
			Balance:       models.BalanceEarning,
			Amount:        in.Amount,
			Type:          models.TxWithdrawal,
			Status:        models.TxPending,
			Description:   "Withdrawal via " + in.Method,
			PaymentMethod: in.Method,
			Metadata: models.Metadata{Withdrawal: &models.WithdrawalDetail{
				Method: in.Method, AccountDetails: in.AccountDetails,
			}},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("withdrawal requested", "txn_id", txn.ID, "user_id", userID, "amount", in.Amount.String())
	s.Stats.TriggerStats(ctx)
	return txn, nil
}

func (s *service) ApproveWithdrawal(ctx context.Context, admin models.Actor, txnID uuid.UUID) (*models.Transaction, error) {
	return s.resolve(ctx, admin, txnID, models.TxWithdrawal, models.TxCompleted, "")
}

// RejectWithdrawal fails the pending row, which returns the amount to the
// earning balance.
func (s *service) RejectWithdrawal(ctx context.Context, admin models.Actor, txnID uuid.UUID, reason string) (*models.Transaction, error) {
	return s.resolve(ctx, admin, txnID, models.TxWithdrawal, models.TxFailed, reason)
}

// ---------------------------------------------------------------------------
// Deposits
// ---------------------------------------------------------------------------

// RequestDeposit records a deposit awaiting confirmation. The balance is
// credited only when an admin approves it.
func (s *service) RequestDeposit(ctx context.Context, userID uuid.UUID, in DepositInput) (*models.Transaction, error) {
	if !in.Amount.IsPositive() || !models.FitsScale(in.Amount) {
		return nil, fmt.Errorf("deposit %s: %w", in.Amount, models.ErrInvalidAmount)
	}
	var txn *models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		txn, err = s.Ledger.RequestCredit(ctx, tx, ledger.Entry{
			UserID:        userID,
			Balance:       models.BalanceDeposit,
			Amount:        in.Amount,
			Type:          models.TxDeposit,
			Description:   "Deposit via " + in.Method,
			PaymentMethod: in.Method,
			Metadata: models.Metadata{Deposit: &models.DepositDetail{
				Method: in.Method, ReferenceID: in.ReferenceID,
			}},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) ApproveDeposit(ctx context.Context, admin models.Actor, txnID uuid.UUID) (*models.Transaction, error) {
	return s.resolve(ctx, admin, txnID, models.TxDeposit, models.TxCompleted, "")
}

func (s *service) RejectDeposit(ctx context.Context, admin models.Actor, txnID uuid.UUID, reason string) (*models.Transaction, error) {
	return s.resolve(ctx, admin, txnID, models.TxDeposit, models.TxFailed, reason)
}

// UpdateTransactionStatus settles any pending row with the same balance
// effects as the typed approve and reject operations.
func (s *service) UpdateTransactionStatus(ctx context.Context, admin models.Actor, txnID uuid.UUID, to models.TransactionStatus, reason string) (*models.Transaction, error) {
	return s.resolve(ctx, admin, txnID, "", to, reason)
}

// resolve settles a pending row of the given type ("" for any). A completed
// deposit queues its referral commission in the same transaction.
func (s *service) resolve(ctx context.Context, admin models.Actor, txnID uuid.UUID, want models.TransactionType, to models.TransactionStatus, reason string) (*models.Transaction, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	var txn *models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		current, err := s.Transactions.GetByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if want != "" && current.Type != want {
			return fmt.Errorf("transaction %s is a %s, not a %s: %w", txnID, current.Type, want, models.ErrNotFound)
		}
		txn, err = s.Ledger.Resolve(ctx, tx, txnID, to, &models.Review{Reason: reason, ReviewedBy: admin.ID})
		if err != nil {
			return err
		}
		if txn.Type == models.TxDeposit && to == models.TxCompleted {
			skipped, err := dbtx.BestEffort(ctx, tx, func(sp pgx.Tx) error {
				return s.Commissions.EnqueueCommissionTx(ctx, sp, execution.CommissionArgs{
					UserID:    txn.UserID,
					Source:    models.SourceDeposit,
					Amount:    txn.Amount,
					SourceRef: "txn:" + txn.ID.String(),
				})
			})
			if skipped != nil {
				s.Logger.WarnContext(ctx, "commission not enqueued", "transaction_id", txn.ID, "error", skipped)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("transaction resolved", "txn_id", txn.ID, "type", txn.Type, "status", txn.Status, "admin_id", admin.ID)
	s.notifyResolved(ctx, txn, reason)
	if txn.Type == models.TxWithdrawal {
		s.Stats.TriggerStats(ctx)
	}
	return txn, nil
}

func (s *service) notifyResolved(ctx context.Context, t *models.Transaction, reason string) {
	kind := "Transaction"
	switch t.Type {
	case models.TxWithdrawal:
		kind = "Withdrawal"
	case models.TxDeposit:
		kind = "Deposit"
	}
	verdict := "Approved"
	if t.Status != models.TxCompleted {
		verdict = "Rejected"
	}
	msg := fmt.Sprintf("Your %s of $%s was %s", strings.ToLower(kind), t.Amount.StringFixed(2), strings.ToLower(verdict))
	if reason != "" {
		msg += ". Reason: " + reason
	}
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: t.UserID, Type: models.NotifyPayment, Title: kind + " " + verdict,
		Message: msg, Link: "/wallet",
	})
	if t.Status == models.TxCompleted {
		amount := t.Amount
		s.Notifier.Record(ctx, &models.Activity{
			UserID: t.UserID, Type: models.ActivityPaymentReceived, Amount: &amount,
			Message: kind + " completed",
		})
	}
}

// ---------------------------------------------------------------------------
// Conversion and subscriptions
// ---------------------------------------------------------------------------

// Convert moves amount from the earning balance to the deposit balance,
// keeping the conversion fee.
func (s *service) Convert(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	if !models.FitsScale(amount) {
		return nil, fmt.Errorf("conversion %s: %w", amount, models.ErrInvalidAmount)
	}
	if amount.LessThan(s.Rules.MinConversion) {
		return nil, fmt.Errorf("conversion %s below minimum %s: %w", amount, s.Rules.MinConversion, models.ErrInvalidAmount)
	}
	fee := amount.Mul(s.Rules.ConversionFeeRate).Truncate(models.AmountScale)
	var txn *models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		txn, err = s.Ledger.Convert(ctx, tx, ledger.Conversion{
			UserID:      userID,
			From:        models.BalanceEarning,
			To:          models.BalanceDeposit,
			Amount:      amount,
			Fee:         fee,
			Description: "Converted earning balance to deposit balance",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Subscribe charges the plan price to the deposit balance and starts or
// renews the user's subscription.
func (s *service) Subscribe(ctx context.Context, userID uuid.UUID, plan string) (*models.Subscription, error) {
	price, ok := s.Rules.PlanPrices[plan]
	if !ok {
		return nil, fmt.Errorf("plan %q: %w", plan, models.ErrNotFound)
	}
	now := s.now()
	sub := &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		Plan:      plan,
		Status:    models.SubscriptionActive,
		Price:     price,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, s.Rules.SubscriptionDays),
	}
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		if price.IsPositive() {
			txn, err := s.Ledger.Debit(ctx, tx, ledger.Entry{
				UserID:      userID,
				Balance:     models.BalanceDeposit,
				Amount:      price,
				Type:        models.TxPayment,
				Description: "Subscription: " + plan,
			})
			if err != nil {
				return err
			}
			sub.PaymentTransactionID = &txn.ID
		}
		if err := s.Subscriptions.UpsertTx(ctx, tx, sub); err != nil {
			return err
		}
		return s.Users.SetPremium(ctx, tx, userID, plan != models.PlanBasic)
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: userID, Type: models.NotifySystem, Title: "Subscription Active",
		Message: "You are now on the " + plan + " plan", Link: "/wallet",
	})
	return sub, nil
}

// CancelSubscription ends the active subscription. Nothing is refunded.
func (s *service) CancelSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub *models.Subscription
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if sub, err = s.Subscriptions.CancelTx(ctx, tx, userID); err != nil {
			return err
		}
		return s.Users.SetPremium(ctx, tx, userID, false)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ---------------------------------------------------------------------------
// Administration
// ---------------------------------------------------------------------------

// AdminSetBalances overwrites the given balances. Each change is recorded
// as an adjustment row; unchanged balances write nothing.
func (s *service) AdminSetBalances(ctx context.Context, admin models.Actor, userID uuid.UUID, deposit, earning *decimal.Decimal) ([]*models.Transaction, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	var out []*models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		out = out[:0]
		for _, set := range []struct {
			b models.Balance
			v *decimal.Decimal
		}{{models.BalanceDeposit, deposit}, {models.BalanceEarning, earning}} {
			if set.v == nil {
				continue
			}
			txn, err := s.Ledger.Adjust(ctx, tx, userID, set.b, *set.v, admin.ID)
			if err != nil {
				return err
			}
			if txn != nil {
				out = append(out, txn)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("balances set", "user_id", userID, "admin_id", admin.ID, "changes", len(out))
	return out, nil
}

// AddBalance credits a balance outside any user flow, as a bonus row. It
// backs the operator CLI.
func (s *service) AddBalance(ctx context.Context, userID uuid.UUID, b models.Balance, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if description == "" {
		description = "Balance top-up"
	}
	var txn *models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		txn, err = s.Ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      userID,
			Balance:     b,
			Amount:      amount,
			Type:        models.TxBonus,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *service) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	w := &Wallet{
		DepositBalance: u.DepositBalance,
		EarningBalance: u.EarningBalance,
		TotalEarnings:  u.TotalEarnings,
		IsPremium:      u.IsPremium,
	}
	sub, err := s.Subscriptions.GetByUser(ctx, userID)
	switch {
	case err == nil:
		w.Subscription = sub
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}
	return w, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, error) {
	f.UserID = &userID
	return s.Transactions.List(ctx, f)
}

func (s *service) ListWithdrawals(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, error) {
	f.Type = models.TxWithdrawal
	return s.Transactions.List(ctx, f)
}

// Package referral links users to the referrer whose code they used and
// pays that referrer a commission on the user's deposits and task earnings.
package referral

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

	"github.com/earnhub/backend/internal/dbtx"
	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/metrics"
	"github.com/earnhub/backend/internal/models"
)

type Service interface {
	ApplyCode(ctx context.Context, userID uuid.UUID, code string) (*models.Referral, error)
	Process(ctx context.Context, userID uuid.UUID, source models.CommissionSource, amount decimal.Decimal, sourceRef string) (*models.Transaction, error)
	Summary(ctx context.Context, referrerID uuid.UUID) (*models.ReferralSummary, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*models.Referral, error)
	MyCode(ctx context.Context, userID uuid.UUID) (string, error)
}

type Deps struct {
	DB        dbtx.TxBeginner
	Users     UserStore
	Referrals ReferralStore
	Ledger    Ledger
	Notifier  Notifier
	// Rate is the commission share of each qualifying amount.
	Rate   decimal.Decimal
	Logger *slog.Logger
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

var (
	_ Service                       = (*service)(nil)
	_ execution.CommissionProcessor = (*service)(nil)
)

// ApplyCode records that userID joined through code. A user can be
// referred once and never by themselves.
func (s *service) ApplyCode(ctx context.Context, userID uuid.UUID, code string) (*models.Referral, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty referral code: %w", models.ErrNotFound)
	}
	referrer, err := s.Users.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer.ID == userID {
		return nil, fmt.Errorf("cannot use own referral code: %w", models.ErrInvalidState)
	}
	ref := &models.Referral{
		ID:           uuid.New(),
		ReferrerID:   referrer.ID,
		ReferredID:   userID,
		ReferralCode: code,
		Status:       models.ReferralActive,
	}
	err = dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		if err := s.Users.SetReferredBy(ctx, tx, userID, referrer.ID); err != nil {
			return err
		}
		return s.Referrals.CreateTx(ctx, tx, ref)
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, &models.Notification{
		UserID: referrer.ID, Type: models.NotifyReferral, Title: "New Referral",
		Message: "Someone joined using your referral code", Link: "/referrals",
	})
	return ref, nil
}

// Process pays the referrer of userID their commission on amount. The
// ledger reference is derived from source and sourceRef, so a repeated
// delivery fails with models.ErrAlreadyProcessed instead of paying twice.
// A user without an active referral yields nil, nil.
func (s *service) Process(ctx context.Context, userID uuid.UUID, source models.CommissionSource, amount decimal.Decimal, sourceRef string) (*models.Transaction, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("commission source %q: %w", source, models.ErrInvalidState)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("commission base %s: %w", amount, models.ErrInvalidAmount)
	}
	commission := amount.Mul(s.Rate).Truncate(models.AmountScale)
	if !commission.IsPositive() {
		return nil, nil
	}

	var txn *models.Transaction
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		ref, err := s.Referrals.GetByReferredForUpdate(ctx, tx, userID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if ref.Status != models.ReferralActive {
			return nil
		}
		txn, err = s.Ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      ref.ReferrerID,
			Balance:     models.BalanceEarning,
			Amount:      commission,
			Type:        models.TxReferral,
			Description: fmt.Sprintf("Referral commission from %s", source),
			Reference:   Reference(source, sourceRef),
			Metadata: models.Metadata{Referral: &models.ReferralDetail{
				ReferredUserID: userID, OriginalAmount: amount, Source: source,
			}},
		})
		if err != nil {
			return err
		}
		if err := s.Referrals.AddEarnings(ctx, tx, ref.ID, source, commission, s.now()); err != nil {
			return err
		}
		return s.Users.ApplyStats(ctx, tx, ref.ReferrerID, models.StatsDelta{Earned: commission})
	})
	if err != nil || txn == nil {
		return nil, err
	}

	metrics.CommissionsPaid.Inc()
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: txn.UserID, Type: models.NotifyReferral, Title: "Referral Commission",
		Message: fmt.Sprintf("You earned $%s commission from a referral %s", commission.String(), source),
		Link:    "/referrals",
	})
	return txn, nil
}

// Reference is the idempotency key of the commission paid for one source
// event.
func Reference(source models.CommissionSource, sourceRef string) string {
	return "referral:" + string(source) + ":" + sourceRef
}

// Summary totals a referrer's network and earnings.
func (s *service) Summary(ctx context.Context, referrerID uuid.UUID) (*models.ReferralSummary, error) {
	u, err := s.Users.GetByID(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	refs, err := s.Referrals.ListByReferrer(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	sum := &models.ReferralSummary{
		ReferralCode:   u.ReferralCode,
		TotalReferrals: len(refs),
		Referrals:      refs,
	}
	if sum.Referrals == nil {
		sum.Referrals = []*models.Referral{}
	}
	for _, r := range refs {
		if r.Status == models.ReferralActive {
			sum.ActiveReferrals++
		}
		sum.DepositEarnings = sum.DepositEarnings.Add(r.Earnings.DepositEarnings)
		sum.TaskEarnings = sum.TaskEarnings.Add(r.Earnings.TaskEarnings)
		sum.TotalEarnings = sum.TotalEarnings.Add(r.Earnings.TotalEarnings)
	}
	return sum, nil
}

func (s *service) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*models.Referral, error) {
	return s.Referrals.ListByReferrer(ctx, referrerID)
}

func (s *service) MyCode(ctx context.Context, userID uuid.UUID) (string, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.ReferralCode, nil
}

package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/storetest"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(st *storetest.Store) *service {
	return NewService(Deps{
		DB:        st,
		Users:     st.Users,
		Referrals: st.Referrals,
		Ledger:    ledger.NewService(st.Users, st.Transactions, st.Queue),
		Notifier:  st.Notifier(),
		Rate:      d("0.05"),
	})
}

// referred seeds a referrer and a user who joined with their code.
func referred(t *testing.T, st *storetest.Store, svc *service) (referrer, user models.User) {
	t.Helper()
	referrer = st.AddUser(models.User{Email: "ref@example.com"})
	user = st.AddUser(models.User{Email: "new@example.com"})
	if _, err := svc.ApplyCode(context.Background(), user.ID, referrer.ReferralCode); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	return referrer, user
}

// ---------------------------------------------------------------------------
// ApplyCode
// ---------------------------------------------------------------------------

func TestApplyCodeLinksReferrer(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	referrer, user := referred(t, st, svc)

	if got := st.User(user.ID).ReferredBy; got == nil || *got != referrer.ID {
		t.Errorf("referred_by = %v, want %s", got, referrer.ID)
	}
	ref, ok := st.Referral(user.ID)
	if !ok || ref.ReferrerID != referrer.ID || ref.Status != models.ReferralActive {
		t.Errorf("referral = %+v", ref)
	}
	if n := st.Notifications(referrer.ID); len(n) != 1 || n[0].Type != models.NotifyReferral {
		t.Errorf("referrer notifications = %+v", n)
	}
}

func TestApplyCodeRejections(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	referrer, user := referred(t, st, svc)
	other := st.AddUser(models.User{Email: "other@example.com"})

	cases := []struct {
		name string
		user uuid.UUID
		code string
		want error
	}{
		{"unknown code", other.ID, "NOPE", models.ErrNotFound},
		{"own code", referrer.ID, referrer.ReferralCode, models.ErrInvalidState},
		{"already referred", user.ID, other.ReferralCode, models.ErrAlreadyProcessed},
		{"blank code", other.ID, "  ", models.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ApplyCode(context.Background(), tc.user, tc.code); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if got := st.User(user.ID).ReferredBy; *got != referrer.ID {
		t.Error("failed apply overwrote referred_by")
	}
}

// ---------------------------------------------------------------------------
// Process
// ---------------------------------------------------------------------------

func TestProcessPaysFivePercent(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	referrer, user := referred(t, st, svc)

	txn, err := svc.Process(context.Background(), user.ID, models.SourceTask, d("0.05"), "work:1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if txn.Type != models.TxReferral || !txn.Amount.Equal(d("0.0025")) || txn.Reference != "referral:task:work:1" {
		t.Errorf("txn = %+v", txn)
	}
	if txn.Metadata.Referral == nil || txn.Metadata.Referral.ReferredUserID != user.ID {
		t.Errorf("metadata = %+v", txn.Metadata)
	}
	r := st.User(referrer.ID)
	if !r.EarningBalance.Equal(d("0.0025")) || !r.TotalEarnings.Equal(d("0.0025")) {
		t.Errorf("referrer earning = %s total = %s", r.EarningBalance, r.TotalEarnings)
	}
	ref, _ := st.Referral(user.ID)
	if !ref.Earnings.TaskEarnings.Equal(d("0.0025")) || !ref.Earnings.TotalEarnings.Equal(d("0.0025")) || ref.FirstTaskAt == nil {
		t.Errorf("referral earnings = %+v", ref.Earnings)
	}
	if msg := st.CheckPairing(referrer.ID); msg != "" {
		t.Error(msg)
	}
}

func TestProcessDepositSource(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	_, user := referred(t, st, svc)

	if _, err := svc.Process(context.Background(), user.ID, models.SourceDeposit, d("100"), "txn:abc"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	ref, _ := st.Referral(user.ID)
	if !ref.Earnings.DepositEarnings.Equal(d("5")) || ref.FirstDepositAt == nil || !ref.Earnings.TaskEarnings.IsZero() {
		t.Errorf("referral earnings = %+v", ref.Earnings)
	}
}

func TestProcessRedeliveryPaysOnce(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	referrer, user := referred(t, st, svc)

	if _, err := svc.Process(context.Background(), user.ID, models.SourceTask, d("1"), "work:x"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Process(context.Background(), user.ID, models.SourceTask, d("1"), "work:x")
	if !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Fatalf("second delivery err = %v", err)
	}
	if got := st.User(referrer.ID).EarningBalance; !got.Equal(d("0.05")) {
		t.Errorf("referrer balance = %s, want 0.05", got)
	}
	ref, _ := st.Referral(user.ID)
	if !ref.Earnings.TotalEarnings.Equal(d("0.05")) {
		t.Errorf("earnings tally = %s, want 0.05", ref.Earnings.TotalEarnings)
	}
}

func TestProcessWithoutReferrerIsNoop(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	loner := st.AddUser(models.User{})

	txn, err := svc.Process(context.Background(), loner.ID, models.SourceTask, d("1"), "work:y")
	if err != nil || txn != nil {
		t.Fatalf("Process = %v, %v; want nil, nil", txn, err)
	}
}

func TestProcessInvalidInput(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	_, user := referred(t, st, svc)

	if _, err := svc.Process(context.Background(), user.ID, models.SourceTask, d("0"), "a"); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("zero amount err = %v", err)
	}
	if _, err := svc.Process(context.Background(), user.ID, "bonus", d("1"), "b"); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("bad source err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestSummary(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	referrer, user := referred(t, st, svc)
	second := st.AddUser(models.User{Email: "second@example.com"})
	if _, err := svc.ApplyCode(context.Background(), second.ID, referrer.ReferralCode); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Process(context.Background(), user.ID, models.SourceTask, d("2"), "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Process(context.Background(), second.ID, models.SourceDeposit, d("10"), "t1"); err != nil {
		t.Fatal(err)
	}

	sum, err := svc.Summary(context.Background(), referrer.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalReferrals != 2 || sum.ActiveReferrals != 2 || sum.ReferralCode != referrer.ReferralCode {
		t.Errorf("summary = %+v", sum)
	}
	if !sum.TaskEarnings.Equal(d("0.1")) || !sum.DepositEarnings.Equal(d("0.5")) || !sum.TotalEarnings.Equal(d("0.6")) {
		t.Errorf("earnings = %s / %s / %s", sum.TaskEarnings, sum.DepositEarnings, sum.TotalEarnings)
	}
	code, err := svc.MyCode(context.Background(), referrer.ID)
	if err != nil || code != referrer.ReferralCode {
		t.Errorf("MyCode = %q, %v", code, err)
	}
}

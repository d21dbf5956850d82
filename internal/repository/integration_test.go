package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/dbtx"
	"github.com/earnhub/backend/internal/models"
)

// These tests run the SQL against a real PostgreSQL. They are skipped unless
// DATABASE_URL points at a database the test may migrate and write to.

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := database.Migrate(url, true, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func inTx(t *testing.T, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	t.Helper()
	return dbtx.Run(context.Background(), pool, fn)
}

func newUser(t *testing.T, pool *pgxpool.Pool, deposit string) *models.User {
	t.Helper()
	id := uuid.New()
	u := &models.User{
		ID:             id,
		Name:           "it",
		Email:          id.String() + "@example.test",
		PasswordHash:   "x",
		Role:           models.RoleEmployer,
		Status:         "active",
		ReferralCode:   id.String()[:12],
		DepositBalance: d(deposit),
	}
	if err := NewUserRepo(pool).Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func newJob(t *testing.T, pool *pgxpool.Pool, employer uuid.UUID, need int, earn string) *models.Job {
	t.Helper()
	j := &models.Job{
		ID:          uuid.New(),
		EmployerID:  employer,
		Title:       "it job",
		WorkerNeed:  need,
		WorkerEarn:  d(earn),
		Budget:      d(earn).Mul(decimal.NewFromInt(int64(need))),
		Status:      models.JobOpen,
		AdminStatus: models.AdminApproved,
	}
	if err := inTx(t, pool, func(tx pgx.Tx) error { return NewJobRepo(pool).CreateTx(context.Background(), tx, j) }); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func pendingRow(userID uuid.UUID, amount string) *models.Transaction {
	return &models.Transaction{
		ID:           uuid.New(),
		Reference:    uuid.NewString(),
		UserID:       userID,
		Type:         models.TxWithdrawal,
		Balance:      models.BalanceEarning,
		Direction:    models.Debit,
		Amount:       d(amount),
		BalanceAfter: decimal.Zero,
		Status:       models.TxPending,
	}
}

// ---------------------------------------------------------------------------
// Conditional balance update
// ---------------------------------------------------------------------------

func TestAdjustBalanceNeverGoesNegative(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	u := newUser(t, pool, "5")
	users := NewUserRepo(pool)

	err := inTx(t, pool, func(tx pgx.Tx) error {
		_, err := users.AdjustBalance(ctx, tx, u.ID, models.BalanceDeposit, d("-5.000001"))
		return err
	})
	if !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v, want ErrInsufficientBalance", err)
	}

	var after decimal.Decimal
	err = inTx(t, pool, func(tx pgx.Tx) error {
		after, err = users.AdjustBalance(ctx, tx, u.ID, models.BalanceDeposit, d("-5"))
		return err
	})
	if err != nil || !after.IsZero() {
		t.Fatalf("exact debit = %s, %v", after, err)
	}

	err = inTx(t, pool, func(tx pgx.Tx) error {
		_, err := users.AdjustBalance(ctx, tx, uuid.New(), models.BalanceDeposit, d("1"))
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
}

func TestMoneyColumnsKeepSixDecimals(t *testing.T) {
	pool := testPool(t)
	u := newUser(t, pool, "0.123456")

	got, err := NewUserRepo(pool).GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.DepositBalance.Equal(d("0.123456")) {
		t.Errorf("deposit = %s, want 0.123456", got.DepositBalance)
	}
}

// ---------------------------------------------------------------------------
// Job slots
// ---------------------------------------------------------------------------

func TestIncrementParticipantsStopsAtWorkerNeed(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	employer := newUser(t, pool, "0")
	job := newJob(t, pool, employer.ID, 2, "0.5")
	jobs := NewJobRepo(pool)

	for i := 1; i <= 2; i++ {
		var got *models.Job
		err := inTx(t, pool, func(tx pgx.Tx) error {
			var err error
			got, err = jobs.IncrementParticipants(ctx, tx, job.ID)
			return err
		})
		if err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
		if got.CurrentParticipants != i {
			t.Errorf("slot %d: participants = %d", i, got.CurrentParticipants)
		}
	}
	final, _ := jobs.GetByID(ctx, job.ID)
	if final.Status != models.JobCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}

	err := inTx(t, pool, func(tx pgx.Tx) error {
		_, err := jobs.IncrementParticipants(ctx, tx, job.ID)
		return err
	})
	if !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("full job err = %v, want ErrInvalidState", err)
	}
}

func TestSetAdminDecisionOnlyOnce(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	employer := newUser(t, pool, "0")
	job := &models.Job{ID: uuid.New(), EmployerID: employer.ID, Title: "moderated", WorkerNeed: 1,
		WorkerEarn: d("1"), Budget: d("1"), Status: models.JobPendingApproval, AdminStatus: models.AdminPending}
	jobs := NewJobRepo(pool)
	if err := inTx(t, pool, func(tx pgx.Tx) error { return jobs.CreateTx(ctx, tx, job) }); err != nil {
		t.Fatal(err)
	}

	decide := func() error {
		return inTx(t, pool, func(tx pgx.Tx) error {
			_, err := jobs.SetAdminDecision(ctx, tx, job.ID, models.AdminRejected, models.JobCancelled, "spam")
			return err
		})
	}
	if err := decide(); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	if err := decide(); !errors.Is(err, models.ErrConflict) {
		t.Errorf("second decision err = %v, want ErrConflict", err)
	}
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

func TestTransactionTransitionIsCompareAndSet(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	u := newUser(t, pool, "0")
	txns := NewTransactionRepo(pool)
	row := pendingRow(u.ID, "2")
	if err := inTx(t, pool, func(tx pgx.Tx) error { return txns.CreateTx(ctx, tx, row) }); err != nil {
		t.Fatal(err)
	}

	admin := uuid.New()
	var got *models.Transaction
	err := inTx(t, pool, func(tx pgx.Tx) error {
		var err error
		got, err = txns.Transition(ctx, tx, row.ID, models.TxPending, models.TxFailed,
			&models.Review{Status: models.TxFailed, Reason: "bad account", ReviewedBy: admin})
		return err
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != models.TxFailed || got.Metadata.Review == nil || got.Metadata.Review.ReviewedBy != admin {
		t.Errorf("row = %s review %+v", got.Status, got.Metadata.Review)
	}

	err = inTx(t, pool, func(tx pgx.Tx) error {
		_, err := txns.Transition(ctx, tx, row.ID, models.TxPending, models.TxCompleted, nil)
		return err
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("second transition err = %v, want ErrConflict", err)
	}
	err = inTx(t, pool, func(tx pgx.Tx) error {
		_, err := txns.Transition(ctx, tx, uuid.New(), models.TxPending, models.TxCompleted, nil)
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown row err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateReferenceIsAlreadyProcessed(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	u := newUser(t, pool, "0")
	txns := NewTransactionRepo(pool)
	first := pendingRow(u.ID, "1")
	if err := inTx(t, pool, func(tx pgx.Tx) error { return txns.CreateTx(ctx, tx, first) }); err != nil {
		t.Fatal(err)
	}

	dup := pendingRow(u.ID, "1")
	dup.Reference = first.Reference
	err := inTx(t, pool, func(tx pgx.Tx) error { return txns.CreateTx(ctx, tx, dup) })
	if !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Errorf("err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestWorkTransitionIsCompareAndSet(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	employer := newUser(t, pool, "0")
	worker := newUser(t, pool, "0")
	job := newJob(t, pool, employer.ID, 1, "1")
	works := NewWorkRepo(pool)
	w := &models.Work{ID: uuid.New(), JobID: job.ID, WorkerID: worker.ID, EmployerID: employer.ID,
		Origin: models.OriginAssigned, Status: models.WorkPending, PaymentAmount: d("1"), PaymentStatus: "pending"}
	if err := inTx(t, pool, func(tx pgx.Tx) error { return works.CreateTx(ctx, tx, w) }); err != nil {
		t.Fatal(err)
	}

	proof := "https://example.test/proof"
	submit := func() error {
		return inTx(t, pool, func(tx pgx.Tx) error {
			_, err := works.Transition(ctx, tx, w.ID, models.WorkPending, models.WorkSubmitted, models.WorkUpdate{SubmissionProof: &proof})
			return err
		})
	}
	if err := submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := submit(); !errors.Is(err, models.ErrConflict) {
		t.Errorf("resubmit err = %v, want ErrConflict", err)
	}
	got, err := works.GetByID(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubmissionProof != proof || got.Status != models.WorkSubmitted {
		t.Errorf("work = %s proof %q", got.Status, got.SubmissionProof)
	}
}

// ---------------------------------------------------------------------------
// Savepoints
// ---------------------------------------------------------------------------

func TestFailedSavepointKeepsOuterWrites(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	u := newUser(t, pool, "5")
	users := NewUserRepo(pool)
	txns := NewTransactionRepo(pool)
	existing := pendingRow(u.ID, "1")
	if err := inTx(t, pool, func(tx pgx.Tx) error { return txns.CreateTx(ctx, tx, existing) }); err != nil {
		t.Fatal(err)
	}

	var skipped error
	err := inTx(t, pool, func(tx pgx.Tx) error {
		if _, err := users.AdjustBalance(ctx, tx, u.ID, models.BalanceDeposit, d("-2")); err != nil {
			return err
		}
		var err error
		skipped, err = dbtx.BestEffort(ctx, tx, func(sp pgx.Tx) error {
			dup := pendingRow(u.ID, "1")
			dup.Reference = existing.Reference
			return txns.CreateTx(ctx, sp, dup)
		})
		return err
	})
	if err != nil {
		t.Fatalf("outer tx: %v", err)
	}
	if !errors.Is(skipped, models.ErrAlreadyProcessed) {
		t.Errorf("skipped = %v, want ErrAlreadyProcessed", skipped)
	}
	got, _ := users.GetByID(ctx, u.ID)
	if !got.DepositBalance.Equal(d("3")) {
		t.Errorf("deposit = %s, want 3", got.DepositBalance)
	}
}

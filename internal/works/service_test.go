package works

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/referral"
	"github.com/earnhub/backend/internal/storetest"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	st       *storetest.Store
	svc      *service
	employer models.User
	job      models.Job
}

// newFixture seeds an approved open job whose budget is already escrowed.
func newFixture(t *testing.T, need int, earn string) *fixture {
	t.Helper()
	st := storetest.New()
	emp := st.AddUser(models.User{Role: models.RoleEmployer})
	job := st.AddJob(models.Job{
		EmployerID:  emp.ID,
		Title:       "Like video",
		WorkerNeed:  need,
		WorkerEarn:  d(earn),
		Budget:      d(earn).Mul(decimal.NewFromInt(int64(need))),
		Status:      models.JobOpen,
		AdminStatus: models.AdminApproved,
	})
	svc := NewService(Deps{
		DB:          st,
		Works:       st.Works,
		Jobs:        st.Jobs,
		Users:       st.Users,
		Ledger:      ledger.NewService(st.Users, st.Transactions, st.Queue),
		Commissions: st.Queue,
		Notifier:    st.Notifier(),
	})
	return &fixture{st: st, svc: svc, employer: emp, job: job}
}

func (f *fixture) boss() models.Actor {
	return models.Actor{ID: f.employer.ID, Role: models.RoleEmployer}
}

func (f *fixture) submit(t *testing.T) (models.User, *models.Work) {
	t.Helper()
	worker := f.st.AddUser(models.User{})
	w, err := f.svc.SubmitDirect(context.Background(), worker.ID, f.job.ID, SubmitInput{Proof: "screenshot.png"})
	if err != nil {
		t.Fatalf("SubmitDirect: %v", err)
	}
	return worker, w
}

func (f *fixture) earnings(workerID uuid.UUID) []models.Transaction {
	var out []models.Transaction
	for _, tx := range f.st.Ledger(workerID) {
		if tx.Type == models.TxEarning {
			out = append(out, tx)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]models.WorkStatus]bool{
		{models.WorkPending, models.WorkSubmitted}:  true,
		{models.WorkSubmitted, models.WorkApproved}: true,
		{models.WorkSubmitted, models.WorkRejected}: true,
	}
	all := []models.WorkStatus{models.WorkPending, models.WorkSubmitted, models.WorkApproved, models.WorkRejected}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != allowed[[2]models.WorkStatus{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Submission
// ---------------------------------------------------------------------------

func TestSubmitDirect(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)

	if w.Status != models.WorkSubmitted || w.Origin != models.OriginDirect || !w.PaymentAmount.Equal(d("0.05")) || w.SubmittedAt == nil {
		t.Errorf("work = %+v", w)
	}
	if n := f.st.Notifications(f.employer.ID); len(n) != 1 || n[0].Type != models.NotifyWorkSubmitted {
		t.Errorf("employer notifications = %+v", n)
	}
	if _, err := f.svc.SubmitDirect(context.Background(), worker.ID, f.job.ID, SubmitInput{Proof: "again"}); !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Errorf("duplicate submission err = %v", err)
	}
}

func TestSubmitDirectRejectsClosedJobs(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	pending := f.st.AddJob(models.Job{EmployerID: f.employer.ID, WorkerNeed: 1, WorkerEarn: d("1"), Status: models.JobPendingApproval, AdminStatus: models.AdminPending})
	worker := f.st.AddUser(models.User{})

	if _, err := f.svc.SubmitDirect(context.Background(), worker.ID, pending.ID, SubmitInput{Proof: "x"}); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("unapproved job err = %v", err)
	}
	if _, err := f.svc.SubmitDirect(context.Background(), f.employer.ID, f.job.ID, SubmitInput{Proof: "x"}); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("own job err = %v", err)
	}
}

func TestSubmitAssignedWork(t *testing.T) {
	f := newFixture(t, 1, "1")
	worker := f.st.AddUser(models.User{ActiveJobs: 1})
	w := f.st.AddWork(models.Work{JobID: f.job.ID, WorkerID: worker.ID, EmployerID: f.employer.ID,
		Origin: models.OriginAssigned, Status: models.WorkPending, PaymentAmount: d("1")})

	if _, err := f.svc.Submit(context.Background(), models.Actor{ID: uuid.New()}, w.ID, SubmitInput{Proof: "p"}); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("stranger submit err = %v", err)
	}
	got, err := f.svc.Submit(context.Background(), models.Actor{ID: worker.ID}, w.ID, SubmitInput{Proof: "p", Message: "done"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != models.WorkSubmitted || got.SubmissionProof != "p" || got.SubmittedAt == nil {
		t.Errorf("work = %+v", got)
	}
	if _, err := f.svc.Submit(context.Background(), models.Actor{ID: worker.ID}, w.ID, SubmitInput{Proof: "p"}); !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Errorf("second submit err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Approval
// ---------------------------------------------------------------------------

// Worker submits for a job paying 0.05; the employer approves with rating 5.
func TestApprovePaysWorker(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)
	rating := 5

	got, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{Rating: &rating, Feedback: "great"})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != models.WorkApproved || got.PaymentStatus != models.PaymentPaid || got.PaidAt == nil || *got.Rating != 5 {
		t.Errorf("work = %+v", got)
	}
	u := f.st.User(worker.ID)
	if !u.EarningBalance.Equal(d("0.05")) || !u.TotalEarnings.Equal(d("0.05")) || u.CompletedJobs != 1 {
		t.Errorf("worker = earning %s total %s completed %d", u.EarningBalance, u.TotalEarnings, u.CompletedJobs)
	}
	rows := f.earnings(worker.ID)
	if len(rows) != 1 || !rows[0].Amount.Equal(d("0.05")) || rows[0].Description != "Earned from job: Like video" {
		t.Errorf("earning rows = %+v", rows)
	}
	job, _ := f.st.Job(f.job.ID)
	if job.CurrentParticipants != 1 {
		t.Errorf("participants = %d", job.CurrentParticipants)
	}
	comm := f.st.Commissions()
	if len(comm) != 1 || comm[0].UserID != worker.ID || comm[0].Source != models.SourceTask || comm[0].SourceRef != "work:"+w.ID.String() {
		t.Errorf("commissions = %+v", comm)
	}
	if msg := f.st.CheckPairing(worker.ID); msg != "" {
		t.Error(msg)
	}
}

func TestApproveDefaultsRating(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	_, w := f.submit(t)
	got, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating == nil || *got.Rating != DefaultRating {
		t.Errorf("rating = %v", got.Rating)
	}
}

func TestApproveTwicePaysOnce(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)

	if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Fatalf("second approve err = %v", err)
	}
	if rows := f.earnings(worker.ID); len(rows) != 1 {
		t.Errorf("earning rows = %d, want 1", len(rows))
	}
}

func TestConcurrentApprovalsPayOnce(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("successful approvals = %d, want 1", succeeded)
	}
	if !f.st.User(worker.ID).EarningBalance.Equal(d("0.05")) {
		t.Errorf("worker balance = %s", f.st.User(worker.ID).EarningBalance)
	}
}

func TestApproveNeverExceedsWorkerNeed(t *testing.T) {
	f := newFixture(t, 1, "1")
	_, first := f.submit(t)
	second, late := f.submit(t)

	if _, err := f.svc.Approve(context.Background(), f.boss(), first.ID, ReviewInput{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Approve(context.Background(), f.boss(), late.ID, ReviewInput{}); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("approve beyond worker_need err = %v", err)
	}
	if w, _ := f.st.Work(late.ID); w.Status != models.WorkSubmitted {
		t.Errorf("late work rolled forward to %s", w.Status)
	}
	if !f.st.User(second.ID).EarningBalance.IsZero() {
		t.Error("second worker paid")
	}
	job, _ := f.st.Job(f.job.ID)
	if job.Status != models.JobCompleted || job.CurrentParticipants != 1 {
		t.Errorf("job = %s with %d participants", job.Status, job.CurrentParticipants)
	}
}

// Payouts plus reserved budget always equal the escrowed budget.
func TestEscrowConservation(t *testing.T) {
	f := newFixture(t, 3, "0.5")
	var paid decimal.Decimal
	for i := 0; i < 3; i++ {
		worker, w := f.submit(t)
		if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); err != nil {
			t.Fatal(err)
		}
		paid = paid.Add(f.st.User(worker.ID).EarningBalance)
		job, _ := f.st.Job(f.job.ID)
		if total := paid.Add(job.Reserved()); !total.Equal(job.Budget) {
			t.Fatalf("after %d payouts: paid %s + reserved %s != budget %s", i+1, paid, job.Reserved(), job.Budget)
		}
	}
}

func TestApproveAuthorization(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	_, w := f.submit(t)

	if _, err := f.svc.Approve(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleEmployer}, w.ID, ReviewInput{}); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("stranger err = %v", err)
	}
	if _, err := f.svc.Approve(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleAdmin}, w.ID, ReviewInput{}); err != nil {
		t.Errorf("admin approve: %v", err)
	}
}

func TestApprovePaysWhenEnqueueFails(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)
	f.st.Queue.Err = errors.New("queue down")

	if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got, _ := f.st.Work(w.ID); got.Status != models.WorkApproved {
		t.Errorf("work = %s, want approved", got.Status)
	}
	if got := f.st.User(worker.ID).EarningBalance; !got.Equal(d("0.05")) {
		t.Errorf("earning = %s, want 0.05", got)
	}
	if n := len(f.st.Ledger(worker.ID)); n != 1 {
		t.Errorf("worker rows = %d, want 1", n)
	}
	if n := len(f.st.Commissions()); n != 0 {
		t.Errorf("commissions = %d, want 0", n)
	}
	if n := len(f.st.LedgerEvents()); n != 0 {
		t.Errorf("ledger events = %d, want 0", n)
	}
}

func TestApproveAssignedReopensJob(t *testing.T) {
	f := newFixture(t, 2, "1")
	worker := f.st.AddUser(models.User{ActiveJobs: 1})
	job := f.job
	job.Status, job.AssignedTo = models.JobInProgress, &worker.ID
	f.st.AddJob(job)
	w := f.st.AddWork(models.Work{JobID: job.ID, WorkerID: worker.ID, EmployerID: f.employer.ID,
		Origin: models.OriginAssigned, Status: models.WorkSubmitted, PaymentAmount: d("1")})

	if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.st.Job(job.ID)
	if got.Status != models.JobOpen || got.AssignedTo != nil {
		t.Errorf("job = %s assigned %v", got.Status, got.AssignedTo)
	}
	if u := f.st.User(worker.ID); u.ActiveJobs != 0 || u.CompletedJobs != 1 {
		t.Errorf("worker active %d completed %d", u.ActiveJobs, u.CompletedJobs)
	}
}

// Approval followed by the queued commission pays the referrer 5%.
func TestApprovalCascadesToReferrer(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	ref := referral.NewService(referral.Deps{
		DB: f.st, Users: f.st.Users, Referrals: f.st.Referrals,
		Ledger:   ledger.NewService(f.st.Users, f.st.Transactions, f.st.Queue),
		Notifier: f.st.Notifier(), Rate: d("0.05"),
	})
	referrer := f.st.AddUser(models.User{Email: "r@example.com"})
	worker, w := f.submit(t)
	if _, err := ref.ApplyCode(context.Background(), worker.ID, referrer.ReferralCode); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); err != nil {
		t.Fatal(err)
	}
	for _, c := range f.st.Commissions() {
		if _, err := ref.Process(context.Background(), c.UserID, c.Source, c.Amount, c.SourceRef); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	rows := f.st.Ledger(referrer.ID)
	if len(rows) != 1 || rows[0].Type != models.TxReferral || !rows[0].Amount.Equal(d("0.0025")) {
		t.Errorf("referrer ledger = %+v", rows)
	}
	if !f.st.User(referrer.ID).EarningBalance.Equal(d("0.0025")) {
		t.Errorf("referrer balance = %s", f.st.User(referrer.ID).EarningBalance)
	}
}

// ---------------------------------------------------------------------------
// Rejection
// ---------------------------------------------------------------------------

func TestRejectSubmission(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)

	if _, err := f.svc.Reject(context.Background(), models.Actor{ID: uuid.New(), Role: models.RoleAdmin}, w.ID, "no"); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("admin reject err = %v", err)
	}
	got, err := f.svc.Reject(context.Background(), f.boss(), w.ID, "blurry proof")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.Status != models.WorkRejected || got.EmployerFeedback != "blurry proof" {
		t.Errorf("work = %+v", got)
	}
	if len(f.st.Ledger(worker.ID)) != 0 {
		t.Error("rejection moved money")
	}
	if _, err := f.svc.Reject(context.Background(), f.boss(), w.ID, ""); !errors.Is(err, models.ErrAlreadyProcessed) {
		t.Errorf("second reject err = %v", err)
	}
	if _, err := f.svc.Approve(context.Background(), f.boss(), w.ID, ReviewInput{}); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("approve after reject err = %v", err)
	}
}

func TestRejectPendingWorkIsInvalid(t *testing.T) {
	f := newFixture(t, 1, "1")
	worker := f.st.AddUser(models.User{})
	w := f.st.AddWork(models.Work{JobID: f.job.ID, WorkerID: worker.ID, EmployerID: f.employer.ID,
		Origin: models.OriginAssigned, Status: models.WorkPending, PaymentAmount: d("1")})
	if _, err := f.svc.Reject(context.Background(), f.boss(), w.ID, ""); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestRejectAssignedReopensJob(t *testing.T) {
	f := newFixture(t, 1, "1")
	worker := f.st.AddUser(models.User{ActiveJobs: 1})
	job := f.job
	job.Status, job.AssignedTo = models.JobInProgress, &worker.ID
	f.st.AddJob(job)
	w := f.st.AddWork(models.Work{JobID: job.ID, WorkerID: worker.ID, EmployerID: f.employer.ID,
		Origin: models.OriginAssigned, Status: models.WorkSubmitted, PaymentAmount: d("1")})

	if _, err := f.svc.Reject(context.Background(), f.boss(), w.ID, "redo"); err != nil {
		t.Fatal(err)
	}
	got, _ := f.st.Job(job.ID)
	if got.Status != models.JobOpen || got.AssignedTo != nil {
		t.Errorf("job = %s assigned %v", got.Status, got.AssignedTo)
	}
	if f.st.User(worker.ID).ActiveJobs != 0 {
		t.Error("active jobs not decremented")
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestGetWorkVisibility(t *testing.T) {
	f := newFixture(t, 20, "0.05")
	worker, w := f.submit(t)

	for _, a := range []models.Actor{{ID: worker.ID}, f.boss(), {ID: uuid.New(), Role: models.RoleAdmin}} {
		if _, err := f.svc.GetWork(context.Background(), a, w.ID); err != nil {
			t.Errorf("GetWork as %+v: %v", a, err)
		}
	}
	if _, err := f.svc.GetWork(context.Background(), models.Actor{ID: uuid.New()}, w.ID); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("stranger err = %v", err)
	}
	if list, _ := f.svc.ListByEmployer(context.Background(), f.employer.ID); len(list) != 1 {
		t.Errorf("employer list = %d", len(list))
	}
	if _, err := f.svc.ListByJob(context.Background(), models.Actor{ID: worker.ID}, f.job.ID); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("worker ListByJob err = %v", err)
	}
}

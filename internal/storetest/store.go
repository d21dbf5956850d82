// Package storetest provides an in-memory implementation of the repository
// layer for service tests. Transactions are serialized: Begin takes a lock
// held until Commit or Rollback, and a rollback restores the state seen at
// Begin. Tx.Begin opens a savepoint the same way. Uniqueness and
// non-negative balance constraints mirror the schema.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/events"
	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/models"
)

type state struct {
	users         map[uuid.UUID]models.User
	jobs          map[uuid.UUID]models.Job
	works         map[uuid.UUID]models.Work
	txns          map[uuid.UUID]models.Transaction
	txnOrder      []uuid.UUID
	referrals     map[uuid.UUID]models.Referral
	notifications []models.Notification
	activities    []models.Activity
	subs          map[uuid.UUID]models.Subscription
	commissions   []execution.CommissionArgs
	ledgerEvents  []events.LedgerEvent
}

func newState() state {
	return state{
		users:     map[uuid.UUID]models.User{},
		jobs:      map[uuid.UUID]models.Job{},
		works:     map[uuid.UUID]models.Work{},
		txns:      map[uuid.UUID]models.Transaction{},
		referrals: map[uuid.UUID]models.Referral{},
		subs:      map[uuid.UUID]models.Subscription{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.works {
		c.works[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	for k, v := range s.referrals {
		c.referrals[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	c.txnOrder = append([]uuid.UUID(nil), s.txnOrder...)
	c.notifications = append([]models.Notification(nil), s.notifications...)
	c.activities = append([]models.Activity(nil), s.activities...)
	c.commissions = append([]execution.CommissionArgs(nil), s.commissions...)
	c.ledgerEvents = append([]events.LedgerEvent(nil), s.ledgerEvents...)
	return c
}

// Store holds every table in memory. Its repo fields satisfy the consumer
// interfaces of the service packages.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   state
	now  func() time.Time

	// FailBegin makes Begin fail, simulating a lost connection.
	FailBegin error

	Users         *UserRepo
	Jobs          *JobRepo
	Works         *WorkRepo
	Transactions  *TransactionRepo
	Referrals     *ReferralRepo
	Feed          *FeedRepo
	Subscriptions *SubscriptionRepo
	Stats         *StatsRepo
	Queue         *Queue
}

func New() *Store {
	s := &Store{st: newState(), now: time.Now}
	s.Users = &UserRepo{s}
	s.Jobs = &JobRepo{s}
	s.Works = &WorkRepo{s}
	s.Transactions = &TransactionRepo{s}
	s.Referrals = &ReferralRepo{s}
	s.Feed = &FeedRepo{s}
	s.Subscriptions = &SubscriptionRepo{s}
	s.Stats = &StatsRepo{s}
	s.Queue = &Queue{s: s}
	return s
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// Begin starts a serialized transaction.
func (s *Store) Begin(context.Context) (pgx.Tx, error) {
	if s.FailBegin != nil {
		return nil, s.FailBegin
	}
	s.txMu.Lock()
	defer s.lock()()
	return &Tx{store: s, snapshot: s.st.clone()}, nil
}

// Tx satisfies pgx.Tx. Only Commit and Rollback do anything; the repos
// ignore the SQL surface.
// A Tx returned by Tx.Begin is a savepoint: rolling it back restores the
// state at the savepoint and leaves the outer transaction open.
type Tx struct {
	store    *Store
	snapshot state
	done     bool
	nested   bool
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if !t.nested {
		t.store.txMu.Unlock()
	}
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.st = t.snapshot
	t.store.mu.Unlock()
	if !t.nested {
		t.store.txMu.Unlock()
	}
	return nil
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	defer t.store.lock()()
	return &Tx{store: t.store, snapshot: t.store.st.clone(), nested: true}, nil
}
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

// AddUser inserts u, filling ID, role, status and referral code if empty.
func (s *Store) AddUser(u models.User) models.User {
	defer s.lock()()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	if u.ReferralCode == "" {
		u.ReferralCode = "REF" + u.ID.String()[:8]
	}
	u.CreatedAt = s.now()
	s.st.users[u.ID] = u
	return u
}

// AddJob inserts j as-is.
func (s *Store) AddJob(j models.Job) models.Job {
	defer s.lock()()
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	s.st.jobs[j.ID] = j
	return j
}

// AddWork inserts w as-is.
func (s *Store) AddWork(w models.Work) models.Work {
	defer s.lock()()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.st.works[w.ID] = w
	return w
}

func (s *Store) User(id uuid.UUID) models.User {
	defer s.lock()()
	return s.st.users[id]
}

func (s *Store) Job(id uuid.UUID) (models.Job, bool) {
	defer s.lock()()
	j, ok := s.st.jobs[id]
	return j, ok
}

func (s *Store) Work(id uuid.UUID) (models.Work, bool) {
	defer s.lock()()
	w, ok := s.st.works[id]
	return w, ok
}

// Ledger returns the user's transactions in insertion order.
func (s *Store) Ledger(userID uuid.UUID) []models.Transaction {
	defer s.lock()()
	var out []models.Transaction
	for _, id := range s.st.txnOrder {
		if t := s.st.txns[id]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// Referral returns the referral of a referred user.
func (s *Store) Referral(referredID uuid.UUID) (models.Referral, bool) {
	defer s.lock()()
	for _, r := range s.st.referrals {
		if r.ReferredID == referredID {
			return r, true
		}
	}
	return models.Referral{}, false
}

func (s *Store) Notifications(userID uuid.UUID) []models.Notification {
	defer s.lock()()
	var out []models.Notification
	for _, n := range s.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) Activities() []models.Activity {
	defer s.lock()()
	return append([]models.Activity(nil), s.st.activities...)
}

// CheckPairing verifies that the user's completed rows and pending debits
// explain both balances exactly. It returns a description of the first
// mismatch, or "".
func (s *Store) CheckPairing(userID uuid.UUID) string {
	u := s.User(userID)
	sums := map[models.Balance]decimal.Decimal{}
	for _, t := range s.Ledger(userID) {
		counts := t.Status == models.TxCompleted || (t.Status == models.TxPending && t.Direction == models.Debit)
		if !counts {
			continue
		}
		sums[t.Balance] = sums[t.Balance].Add(t.Signed())
		if c := t.Metadata.Conversion; c != nil && t.Status == models.TxCompleted {
			sums[c.To] = sums[c.To].Add(c.NetAmount)
		}
	}
	for _, b := range []models.Balance{models.BalanceDeposit, models.BalanceEarning} {
		if !sums[b].Equal(u.BalanceOf(b)) {
			return fmt.Sprintf("%s balance %s but ledger sums to %s", b, u.BalanceOf(b), sums[b])
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type UserRepo struct{ s *Store }

func (r *UserRepo) Create(_ context.Context, u *models.User) error {
	defer r.s.lock()()
	for _, o := range r.s.st.users {
		if o.Email == u.Email {
			return models.ErrEmailTaken
		}
		if o.ReferralCode == u.ReferralCode {
			return models.ErrCodeTaken
		}
	}
	u.CreatedAt, u.UpdatedAt = r.s.now(), r.s.now()
	r.s.st.users[u.ID] = *u
	return nil
}

func (r *UserRepo) get(id uuid.UUID) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) { return r.get(id) }

func (r *UserRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.User, error) {
	return r.get(id)
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", models.ErrNotFound)
}

func (r *UserRepo) GetByReferralCode(_ context.Context, code string) (*models.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.st.users {
		if u.ReferralCode == code {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("referral code %q: %w", code, models.ErrNotFound)
}

func (r *UserRepo) AdjustBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, b models.Balance, delta decimal.Decimal) (decimal.Decimal, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	next := u.BalanceOf(b).Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s balance: %w", b, models.ErrInsufficientBalance)
	}
	u.SetBalance(b, next)
	r.s.st.users[id] = u
	return next, nil
}

func (r *UserRepo) ApplyStats(_ context.Context, _ pgx.Tx, id uuid.UUID, d models.StatsDelta) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	u.TotalEarnings = u.TotalEarnings.Add(d.Earned)
	u.CompletedJobs += d.CompletedJobs
	u.ActiveJobs = max(u.ActiveJobs+d.ActiveJobs, 0)
	r.s.st.users[id] = u
	return nil
}

func (r *UserRepo) SetReferredBy(_ context.Context, _ pgx.Tx, id, referrerID uuid.UUID) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if u.ReferredBy != nil {
		return fmt.Errorf("user %s already referred: %w", id, models.ErrAlreadyProcessed)
	}
	u.ReferredBy = &referrerID
	r.s.st.users[id] = u
	return nil
}

func (r *UserRepo) SetPremium(_ context.Context, _ pgx.Tx, id uuid.UUID, premium bool) error {
	defer r.s.lock()()
	u := r.s.st.users[id]
	u.IsPremium = premium
	r.s.st.users[id] = u
	return nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

type JobRepo struct{ s *Store }

func (r *JobRepo) CreateTx(_ context.Context, _ pgx.Tx, j *models.Job) error {
	defer r.s.lock()()
	j.CreatedAt, j.UpdatedAt = r.s.now(), r.s.now()
	r.s.st.jobs[j.ID] = *j
	return nil
}

func (r *JobRepo) get(id uuid.UUID) (*models.Job, error) {
	defer r.s.lock()()
	j, ok := r.s.st.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return &j, nil
}

func (r *JobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) { return r.get(id) }

func (r *JobRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return r.get(id)
}

func (r *JobRepo) SetAdminDecision(_ context.Context, _ pgx.Tx, id uuid.UUID, decision models.AdminStatus, status models.JobStatus, remark string) (*models.Job, error) {
	defer r.s.lock()()
	j, ok := r.s.st.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if j.AdminStatus != models.AdminPending {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrConflict)
	}
	j.AdminStatus, j.Status, j.AdminRemark = decision, status, remark
	r.s.st.jobs[id] = j
	return &j, nil
}

func (r *JobRepo) IncrementParticipants(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	defer r.s.lock()()
	j, ok := r.s.st.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if j.CurrentParticipants >= j.WorkerNeed {
		return nil, fmt.Errorf("job %s has no open slots: %w", id, models.ErrInvalidState)
	}
	j.CurrentParticipants++
	if j.CurrentParticipants >= j.WorkerNeed {
		j.Status = models.JobCompleted
	}
	r.s.st.jobs[id] = j
	return &j, nil
}

func (r *JobRepo) SetAssignment(_ context.Context, _ pgx.Tx, id uuid.UUID, status models.JobStatus, assignedTo *uuid.UUID) error {
	defer r.s.lock()()
	j, ok := r.s.st.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	j.Status, j.AssignedTo = status, assignedTo
	r.s.st.jobs[id] = j
	return nil
}

func (r *JobRepo) SetDeleteRequested(_ context.Context, id uuid.UUID, requested bool) error {
	defer r.s.lock()()
	j, ok := r.s.st.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	j.DeleteRequested = requested
	r.s.st.jobs[id] = j
	return nil
}

// DeleteTx removes the job and cascades to its works.
func (r *JobRepo) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	defer r.s.lock()()
	if _, ok := r.s.st.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	delete(r.s.st.jobs, id)
	for wid, w := range r.s.st.works {
		if w.JobID == id {
			delete(r.s.st.works, wid)
		}
	}
	return nil
}

func (r *JobRepo) List(_ context.Context, f models.JobFilter) ([]*models.Job, error) {
	defer r.s.lock()()
	var out []*models.Job
	for _, j := range r.s.st.jobs {
		switch {
		case f.EmployerID != nil && j.EmployerID != *f.EmployerID,
			f.Status != "" && j.Status != f.Status,
			f.AdminStatus != "" && j.AdminStatus != f.AdminStatus,
			f.Category != "" && j.Category != f.Category,
			f.DeleteRequested != nil && j.DeleteRequested != *f.DeleteRequested:
			continue
		}
		j := j
		out = append(out, &j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Works
// ---------------------------------------------------------------------------

type WorkRepo struct{ s *Store }

func (r *WorkRepo) CreateTx(_ context.Context, _ pgx.Tx, w *models.Work) error {
	defer r.s.lock()()
	for _, o := range r.s.st.works {
		if o.JobID == w.JobID && o.WorkerID == w.WorkerID {
			return fmt.Errorf("work for job %s: %w", w.JobID, models.ErrAlreadyProcessed)
		}
	}
	w.CreatedAt, w.UpdatedAt = r.s.now(), r.s.now()
	r.s.st.works[w.ID] = *w
	return nil
}

func (r *WorkRepo) get(id uuid.UUID) (*models.Work, error) {
	defer r.s.lock()()
	w, ok := r.s.st.works[id]
	if !ok {
		return nil, fmt.Errorf("work %s: %w", id, models.ErrNotFound)
	}
	return &w, nil
}

func (r *WorkRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Work, error) { return r.get(id) }

func (r *WorkRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Work, error) {
	return r.get(id)
}

func (r *WorkRepo) Transition(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to models.WorkStatus, upd models.WorkUpdate) (*models.Work, error) {
	defer r.s.lock()()
	w, ok := r.s.st.works[id]
	if !ok {
		return nil, fmt.Errorf("work %s: %w", id, models.ErrNotFound)
	}
	if w.Status != from {
		return nil, fmt.Errorf("work %s: %w", id, models.ErrConflict)
	}
	w.Status = to
	upd.Apply(&w)
	r.s.st.works[id] = w
	return &w, nil
}

func (r *WorkRepo) list(match func(models.Work) bool) []*models.Work {
	defer r.s.lock()()
	var out []*models.Work
	for _, w := range r.s.st.works {
		if match(w) {
			w := w
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (r *WorkRepo) ListByWorker(_ context.Context, workerID uuid.UUID) ([]*models.Work, error) {
	return r.list(func(w models.Work) bool { return w.WorkerID == workerID }), nil
}

func (r *WorkRepo) ListByEmployer(_ context.Context, employerID uuid.UUID) ([]*models.Work, error) {
	return r.list(func(w models.Work) bool { return w.EmployerID == employerID }), nil
}

func (r *WorkRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]*models.Work, error) {
	return r.list(func(w models.Work) bool { return w.JobID == jobID }), nil
}

// ---------------------------------------------------------------------------
// Ledger transactions
// ---------------------------------------------------------------------------

type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	defer r.s.lock()()
	for _, o := range r.s.st.txns {
		if o.Reference == t.Reference {
			return fmt.Errorf("transaction reference %q: %w", t.Reference, models.ErrAlreadyProcessed)
		}
	}
	t.CreatedAt, t.UpdatedAt = r.s.now(), r.s.now()
	r.s.st.txns[t.ID] = *t
	r.s.st.txnOrder = append(r.s.st.txnOrder, t.ID)
	return nil
}

func (r *TransactionRepo) get(id uuid.UUID) (*models.Transaction, error) {
	defer r.s.lock()()
	t, ok := r.s.st.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	return &t, nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.get(id)
}

func (r *TransactionRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	return r.get(id)
}

func (r *TransactionRepo) Transition(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to models.TransactionStatus, review *models.Review) (*models.Transaction, error) {
	defer r.s.lock()()
	t, ok := r.s.st.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	if t.Status != from {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrConflict)
	}
	t.Status = to
	if review != nil {
		rv := *review
		t.Metadata.Review = &rv
	}
	t.UpdatedAt = r.s.now()
	r.s.st.txns[id] = t
	return &t, nil
}

// List returns matching transactions newest first.
func (r *TransactionRepo) List(_ context.Context, f models.TransactionFilter) ([]*models.Transaction, error) {
	defer r.s.lock()()
	var out []*models.Transaction
	for i := len(r.s.st.txnOrder) - 1; i >= 0; i-- {
		t := r.s.st.txns[r.s.st.txnOrder[i]]
		switch {
		case f.UserID != nil && t.UserID != *f.UserID,
			f.Type != "" && t.Type != f.Type,
			f.Status != "" && t.Status != f.Status:
			continue
		}
		out = append(out, &t)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Referrals
// ---------------------------------------------------------------------------

type ReferralRepo struct{ s *Store }

func (r *ReferralRepo) CreateTx(_ context.Context, _ pgx.Tx, ref *models.Referral) error {
	defer r.s.lock()()
	for _, o := range r.s.st.referrals {
		if o.ReferredID == ref.ReferredID {
			return fmt.Errorf("user %s already referred: %w", ref.ReferredID, models.ErrAlreadyProcessed)
		}
	}
	ref.CreatedAt = r.s.now()
	r.s.st.referrals[ref.ID] = *ref
	return nil
}

func (r *ReferralRepo) GetByReferredForUpdate(_ context.Context, _ pgx.Tx, referredID uuid.UUID) (*models.Referral, error) {
	defer r.s.lock()()
	for _, ref := range r.s.st.referrals {
		if ref.ReferredID == referredID {
			return &ref, nil
		}
	}
	return nil, fmt.Errorf("referral: %w", models.ErrNotFound)
}

func (r *ReferralRepo) AddEarnings(_ context.Context, _ pgx.Tx, id uuid.UUID, source models.CommissionSource, amount decimal.Decimal, at time.Time) error {
	defer r.s.lock()()
	ref, ok := r.s.st.referrals[id]
	if !ok {
		return fmt.Errorf("referral %s: %w", id, models.ErrNotFound)
	}
	ref.Earnings.Add(source, amount)
	switch {
	case source == models.SourceDeposit && ref.FirstDepositAt == nil:
		ref.FirstDepositAt = &at
	case source == models.SourceTask && ref.FirstTaskAt == nil:
		ref.FirstTaskAt = &at
	}
	r.s.st.referrals[id] = ref
	return nil
}

func (r *ReferralRepo) ListByReferrer(_ context.Context, referrerID uuid.UUID) ([]*models.Referral, error) {
	defer r.s.lock()()
	var out []*models.Referral
	for _, ref := range r.s.st.referrals {
		if ref.ReferrerID == referrerID {
			ref := ref
			out = append(out, &ref)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Notifications and activities
// ---------------------------------------------------------------------------

type FeedRepo struct{ s *Store }

func (r *FeedRepo) CreateNotification(_ context.Context, n *models.Notification) error {
	defer r.s.lock()()
	n.CreatedAt = r.s.now()
	r.s.st.notifications = append(r.s.st.notifications, *n)
	return nil
}

func (r *FeedRepo) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	defer r.s.lock()()
	var out []*models.Notification
	for i := len(r.s.st.notifications) - 1; i >= 0; i-- {
		n := r.s.st.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, &n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *FeedRepo) MarkNotificationRead(_ context.Context, userID uuid.UUID, id *uuid.UUID) error {
	defer r.s.lock()()
	found := id == nil
	for i, n := range r.s.st.notifications {
		if n.UserID != userID || (id != nil && n.ID != *id) {
			continue
		}
		r.s.st.notifications[i].IsRead = true
		found = true
	}
	if !found {
		return fmt.Errorf("notification: %w", models.ErrNotFound)
	}
	return nil
}

func (r *FeedRepo) CreateActivity(_ context.Context, a *models.Activity) error {
	defer r.s.lock()()
	a.CreatedAt = r.s.now()
	r.s.st.activities = append(r.s.st.activities, *a)
	return nil
}

func (r *FeedRepo) ListActivities(_ context.Context, userID *uuid.UUID, limit int) ([]*models.Activity, error) {
	defer r.s.lock()()
	var out []*models.Activity
	for i := len(r.s.st.activities) - 1; i >= 0; i-- {
		a := r.s.st.activities[i]
		if (userID == nil && !a.IsPublic) || (userID != nil && a.UserID != *userID) {
			continue
		}
		out = append(out, &a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Subscriptions and stats
// ---------------------------------------------------------------------------

type SubscriptionRepo struct{ s *Store }

func (r *SubscriptionRepo) UpsertTx(_ context.Context, _ pgx.Tx, sub *models.Subscription) error {
	defer r.s.lock()()
	if old, ok := r.s.st.subs[sub.UserID]; ok {
		sub.ID, sub.CreatedAt = old.ID, old.CreatedAt
	} else {
		sub.CreatedAt = r.s.now()
	}
	sub.UpdatedAt = r.s.now()
	r.s.st.subs[sub.UserID] = *sub
	return nil
}

func (r *SubscriptionRepo) GetByUser(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	defer r.s.lock()()
	sub, ok := r.s.st.subs[userID]
	if !ok {
		return nil, fmt.Errorf("subscription: %w", models.ErrNotFound)
	}
	return &sub, nil
}

func (r *SubscriptionRepo) CancelTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Subscription, error) {
	defer r.s.lock()()
	sub, ok := r.s.st.subs[userID]
	if !ok || sub.Status != models.SubscriptionActive {
		return nil, fmt.Errorf("active subscription: %w", models.ErrNotFound)
	}
	sub.Status = models.SubscriptionCancelled
	r.s.st.subs[userID] = sub
	return &sub, nil
}

type StatsRepo struct{ s *Store }

func (r *StatsRepo) AdminStats(_ context.Context, _ int) (*models.AdminStats, error) {
	defer r.s.lock()()
	st := &models.AdminStats{TotalUsers: len(r.s.st.users)}
	for _, j := range r.s.st.jobs {
		switch {
		case j.AdminStatus == models.AdminPending:
			st.PendingJobs++
		case j.Status == models.JobOpen || j.Status == models.JobInProgress:
			st.ActiveJobs++
		}
	}
	for _, w := range r.s.st.works {
		if w.Status == models.WorkSubmitted {
			st.PendingWorks++
		}
	}
	for _, t := range r.s.st.txns {
		if t.Type == models.TxWithdrawal && t.Status == models.TxPending {
			st.PendingPayouts++
		}
		if t.Status == models.TxCompleted {
			st.CompletedVolume = st.CompletedVolume.Add(t.Amount)
		}
	}
	return st, nil
}

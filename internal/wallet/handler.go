package wallet

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/models"
)

type WithdrawRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	AccountDetails string          `json:"account_details"`
}

type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	ReferenceID string          `json:"reference_id"`
}

type ConvertRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type SubscribeRequest struct {
	Plan string `json:"plan"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type StatusRequest struct {
	Status models.TransactionStatus `json:"status"`
	Reason string                   `json:"reason"`
}

// SetBalancesRequest leaves a balance untouched when its field is absent.
type SetBalancesRequest struct {
	DepositBalance *decimal.Decimal `json:"deposit_balance"`
	EarningBalance *decimal.Decimal `json:"earning_balance"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	wallet, err := h.svc.GetWallet(r.Context(), actor.ID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, wallet)
}

// Transactions lists the caller's ledger rows, filtered by the type and
// status query parameters.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	list, err := h.svc.ListTransactions(r.Context(), actor.ID, filterFrom(r))
	h.writeList(w, list, err)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	var req WithdrawRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	txn, err := h.svc.RequestWithdrawal(r.Context(), actor.ID, WithdrawalInput(req))
	h.writeTxn(w, http.StatusCreated, txn, err)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	var req DepositRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	txn, err := h.svc.RequestDeposit(r.Context(), actor.ID, DepositInput(req))
	h.writeTxn(w, http.StatusCreated, txn, err)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	var req ConvertRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	txn, err := h.svc.Convert(r.Context(), actor.ID, req.Amount)
	h.writeTxn(w, http.StatusCreated, txn, err)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	var req SubscribeRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	sub, err := h.svc.Subscribe(r.Context(), actor.ID, req.Plan)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, sub)
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	sub, err := h.svc.CancelSubscription(r.Context(), actor.ID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, sub)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

// Withdrawals lists withdrawal rows for review, by default the pending ones.
func (h *Handler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	f := filterFrom(r)
	if f.Status == "" {
		f.Status = models.TxPending
	}
	list, err := h.svc.ListWithdrawals(r.Context(), f)
	h.writeList(w, list, err)
}

func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.svc.ApproveWithdrawal)
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.reject(w, r, h.svc.RejectWithdrawal)
}

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.approve(w, r, h.svc.ApproveDeposit)
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.reject(w, r, h.svc.RejectDeposit)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req StatusRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	txn, err := h.svc.UpdateTransactionStatus(r.Context(), actor, id, req.Status, req.Reason)
	h.writeTxn(w, http.StatusOK, txn, err)
}

func (h *Handler) SetBalances(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req SetBalancesRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	list, err := h.svc.AdminSetBalances(r.Context(), actor, id, req.DepositBalance, req.EarningBalance)
	h.writeList(w, list, err)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Actor, uuid.UUID) (*models.Transaction, error)) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	txn, err := fn(r.Context(), actor, id)
	h.writeTxn(w, http.StatusOK, txn, err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Actor, uuid.UUID, string) (*models.Transaction, error)) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req ReasonRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	txn, err := fn(r.Context(), actor, id, req.Reason)
	h.writeTxn(w, http.StatusOK, txn, err)
}

func filterFrom(r *http.Request) models.TransactionFilter {
	limit, offset := handlers.Page(r)
	q := r.URL.Query()
	return models.TransactionFilter{
		Type:   models.TransactionType(q.Get("type")),
		Status: models.TransactionStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
}

func (h *Handler) writeTxn(w http.ResponseWriter, status int, txn *models.Transaction, err error) {
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, status, txn)
}

func (h *Handler) writeList(w http.ResponseWriter, list []*models.Transaction, err error) {
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

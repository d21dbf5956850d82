package jobs

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/models"
)

// Request structs use snake_case JSON. Bodies are schema-checked by the
// router before they reach the handler.

type CreateJobRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	WorkerNeed  int             `json:"worker_need"`
	WorkerEarn  decimal.Decimal `json:"worker_earn"`
}

type RejectJobRequest struct {
	Reason string `json:"reason"`
}

type DeleteJobResponse struct {
	Deleted bool            `json:"deleted"`
	Refund  decimal.Decimal `json:"refund"`
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

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	var req CreateJobRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.CreateJob(r.Context(), actor.ID, CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		WorkerNeed:  req.WorkerNeed,
		WorkerEarn:  req.WorkerEarn,
	})
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, job)
}

// ListJobs lists jobs open to workers, optionally by category.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := handlers.Page(r)
	h.list(w, r, models.JobFilter{
		Status:      models.JobOpen,
		AdminStatus: models.AdminApproved,
		Category:    r.URL.Query().Get("category"),
		Limit:       limit,
		Offset:      offset,
	})
}

// MyJobs lists the caller's postings in every state.
func (h *Handler) MyJobs(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	limit, offset := handlers.Page(r)
	h.list(w, r, models.JobFilter{
		EmployerID: &actor.ID,
		Status:     models.JobStatus(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	})
}

// PendingJobs lists jobs awaiting moderation.
func (h *Handler) PendingJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := handlers.Page(r)
	h.list(w, r, models.JobFilter{AdminStatus: models.AdminPending, Limit: limit, Offset: offset})
}

func (h *Handler) DeleteRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListDeleteRequests(r.Context())
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f models.JobFilter) {
	list, err := h.svc.ListJobs(r.Context(), f)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) ApproveJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.ApproveJob(r.Context(), actor, id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) RejectJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req RejectJobRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.RejectJob(r.Context(), actor, id, req.Reason)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	refund, err := h.svc.DeleteJob(r.Context(), actor, id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, DeleteJobResponse{Deleted: true, Refund: refund})
}

func (h *Handler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.RequestDeletion(r.Context(), actor, id); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusAccepted, map[string]bool{"delete_requested": true})
}

func (h *Handler) AssignJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	workerID, err := handlers.PathID(r, "userID")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	work, err := h.svc.AssignJob(r.Context(), actor, id, workerID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, work)
}

func nonNil(list []*models.Job) []*models.Job {
	if list == nil {
		return []*models.Job{}
	}
	return list
}

package works

import (
	"log/slog"
	"net/http"

	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/models"
)

type SubmitRequest struct {
	Proof   string   `json:"proof"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

type ReviewRequest struct {
	Rating   *int   `json:"rating"`
	Feedback string `json:"feedback"`
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

// SubmitToJob handles a worker submitting proof straight to an open job.
// The "id" path parameter names the job.
func (h *Handler) SubmitToJob(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	jobID, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req SubmitRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	work, err := h.svc.SubmitDirect(r.Context(), actor.ID, jobID, SubmitInput(req))
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, work)
}

// Submit attaches proof to an assigned work.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req SubmitRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	work, err := h.svc.Submit(r.Context(), actor, id, SubmitInput(req))
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, work)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req ReviewRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	work, err := h.svc.Approve(r.Context(), actor, id, ReviewInput(req))
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, work)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	var req ReviewRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	work, err := h.svc.Reject(r.Context(), actor, id, req.Feedback)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, work)
}

func (h *Handler) GetWork(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	work, err := h.svc.GetWork(r.Context(), actor, id)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, work)
}

func (h *Handler) MyWorks(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	list, err := h.svc.ListByWorker(r.Context(), actor.ID)
	h.writeList(w, list, err)
}

func (h *Handler) EmployerWorks(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	list, err := h.svc.ListByEmployer(r.Context(), actor.ID)
	h.writeList(w, list, err)
}

func (h *Handler) JobWorks(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	jobID, err := handlers.PathID(r, "jobID")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	list, err := h.svc.ListByJob(r.Context(), actor, jobID)
	h.writeList(w, list, err)
}

func (h *Handler) writeList(w http.ResponseWriter, list []*models.Work, err error) {
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Work{}
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

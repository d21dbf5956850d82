package referral

import (
	"log/slog"
	"net/http"

	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/models"
)

type ApplyCodeRequest struct {
	Code string `json:"code"`
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

func (h *Handler) MyCode(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	code, err := h.svc.MyCode(r.Context(), actor.ID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]string{"referral_code": code})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	refs, err := h.svc.ListByReferrer(r.Context(), actor.ID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if refs == nil {
		refs = []*models.Referral{}
	}
	handlers.WriteJSON(w, http.StatusOK, refs)
}

func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	sum, err := h.svc.Summary(r.Context(), actor.ID)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) ApplyCode(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	var req ApplyCodeRequest
	if err := handlers.Decode(r, &req); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	ref, err := h.svc.ApplyCode(r.Context(), actor.ID, req.Code)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusCreated, ref)
}

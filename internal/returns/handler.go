// Package returns exposes the staff approval of return requests.
package returns

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

type Approver interface {
	Approve(ctx context.Context, id string) (*domain.Return, error)
}

type Handler struct {
	approver Approver
	logger   *slog.Logger
}

func NewHandler(approver Approver, logger *slog.Logger) *Handler {
	return &Handler{
		approver: approver,
		logger:   logger,
	}
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing return id")
		return
	}

	ret, err := h.approver.Approve(r.Context(), id)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "failed to approve return", "error", err, "return_id", id)
		} else {
			h.logger.WarnContext(r.Context(), "return approval refused", "error", err, "return_id", id)
		}
		h.writeError(w, status, apperr.PublicMessage(err))
		return
	}

	h.writeJSON(w, http.StatusOK, ret)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

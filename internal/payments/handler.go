package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
)

// SignatureHeader carries the hex HMAC of the raw callback body.
const SignatureHeader = "X-Callback-Signature"

const maxCallbackBody = 1 << 20

type CallbackReconciler interface {
	Reconcile(ctx context.Context, body []byte, sig string) (*Outcome, error)
}

type TransactionCreator interface {
	Create(ctx context.Context, submissionID, method string) (*TransactionResult, error)
}

type Handler struct {
	reconciler   CallbackReconciler
	transactions TransactionCreator
	logger       *slog.Logger
}

func NewHandler(reconciler CallbackReconciler, transactions TransactionCreator, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler:   reconciler,
		transactions: transactions,
		logger:       logger,
	}
}

// HandleCallback reads the body exactly once so the signature is checked
// against the bytes the gateway signed.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	outcome, err := h.reconciler.Reconcile(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		h.writeAppError(r.Context(), w, err, "callback failed")
		return
	}

	h.logger.InfoContext(r.Context(), "callback acknowledged",
		"submission_id", outcome.SubmissionID, "order_id", outcome.OrderID, "status", outcome.Status)
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) HandleCallbackHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type createTransactionRequest struct {
	SubmissionID string `json:"submission_id"`
	Method       string `json:"method"`
}

func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SubmissionID == "" {
		h.writeError(w, http.StatusBadRequest, "submission_id is required")
		return
	}
	if req.Method == "" {
		h.writeError(w, http.StatusBadRequest, "method is required")
		return
	}

	result, err := h.transactions.Create(r.Context(), req.SubmissionID, req.Method)
	if err != nil {
		h.writeAppError(r.Context(), w, err, "failed to create transaction")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeAppError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "error", err)
	}
	h.writeError(w, status, apperr.PublicMessage(err))
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

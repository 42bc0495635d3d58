package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
)

type fakeReconciler struct {
	gotBody []byte
	gotSig  string
	outcome *Outcome
	err     error
}

func (f *fakeReconciler) Reconcile(_ context.Context, body []byte, sig string) (*Outcome, error) {
	f.gotBody = body
	f.gotSig = sig
	return f.outcome, f.err
}

type fakeTransactions struct {
	result *TransactionResult
	err    error
}

func (f *fakeTransactions) Create(_ context.Context, submissionID, _ string) (*TransactionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.SubmissionID = submissionID
	return &r, nil
}

func newTestHandler(rec CallbackReconciler, tx TransactionCreator) *Handler {
	return NewHandler(rec, tx, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_HandleCallback(t *testing.T) {
	t.Run("acknowledges callback", func(t *testing.T) {
		rec := &fakeReconciler{outcome: &Outcome{SubmissionID: "S1", OrderID: "order-1"}}
		h := newTestHandler(rec, &fakeTransactions{})

		body := `{"reference":"REF1","status":"PAID"}`
		req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
		req.Header.Set("x-callback-signature", "abc123")
		w := httptest.NewRecorder()
		h.HandleCallback(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp map[string]bool
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !resp["success"] {
			t.Errorf("expected success true, got %v", resp)
		}
		if string(rec.gotBody) != body {
			t.Errorf("expected raw body to be passed through, got %s", rec.gotBody)
		}
		if rec.gotSig != "abc123" {
			t.Errorf("expected signature abc123, got %s", rec.gotSig)
		}
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"invalid signature", apperr.New(apperr.KindAuthentication, "invalid signature"), http.StatusUnauthorized, "invalid signature"},
		{"missing secret", apperr.New(apperr.KindConfiguration, "callback signing secret is not configured"), http.StatusInternalServerError, "internal server error"},
		{"bad payload", apperr.New(apperr.KindBadRequest, "missing reference or merchant_ref"), http.StatusBadRequest, "missing reference or merchant_ref"},
		{"unknown submission", apperr.New(apperr.KindNotFound, "checkout submission not found"), http.StatusNotFound, "checkout submission not found"},
		{"store failure", apperr.Wrap(apperr.KindPersistence, "create order", io.ErrUnexpectedEOF), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeReconciler{err: tt.err}, &fakeTransactions{})

			w := httptest.NewRecorder()
			h.HandleCallback(w, httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(`{}`)))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, resp["error"])
			}
		})
	}
}

func TestHandler_HandleCallbackHealth(t *testing.T) {
	h := newTestHandler(&fakeReconciler{}, &fakeTransactions{})

	w := httptest.NewRecorder()
	h.HandleCallbackHealth(w, httptest.NewRequest(http.MethodGet, "/payments/callback", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Errorf("expected ok body, got %s", w.Body.String())
	}
}

func TestHandler_HandleCreateTransaction(t *testing.T) {
	t.Run("creates transaction", func(t *testing.T) {
		h := newTestHandler(&fakeReconciler{}, &fakeTransactions{result: &TransactionResult{Reference: "REF1", CheckoutURL: "https://pay.example/REF1"}})

		w := httptest.NewRecorder()
		h.HandleCreateTransaction(w, httptest.NewRequest(http.MethodPost, "/payments/transactions",
			strings.NewReader(`{"submission_id":"S1","method":"QRIS"}`)))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp TransactionResult
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.SubmissionID != "S1" || resp.Reference != "REF1" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("requires method", func(t *testing.T) {
		h := newTestHandler(&fakeReconciler{}, &fakeTransactions{})

		w := httptest.NewRecorder()
		h.HandleCreateTransaction(w, httptest.NewRequest(http.MethodPost, "/payments/transactions",
			strings.NewReader(`{"submission_id":"S1"}`)))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("gateway failure is a bad gateway", func(t *testing.T) {
		h := newTestHandler(&fakeReconciler{}, &fakeTransactions{err: apperr.New(apperr.KindExternalService, "create gateway transaction")})

		w := httptest.NewRecorder()
		h.HandleCreateTransaction(w, httptest.NewRequest(http.MethodPost, "/payments/transactions",
			strings.NewReader(`{"submission_id":"S1","method":"QRIS"}`)))

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", w.Code)
		}
	})
}

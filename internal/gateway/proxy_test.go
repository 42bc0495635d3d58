package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServiceProxy_ForwardRequest(t *testing.T) {
	t.Run("forwards query string", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/shipping/tracking/JX1" {
				t.Errorf("expected /shipping/tracking/JX1, got %s", r.URL.Path)
			}
			if r.URL.Query().Get("courier") != "jne" {
				t.Errorf("expected courier=jne, got %s", r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodGet, "/shipping/tracking/JX1?courier=jne", nil)
		resp, err := proxy.ForwardRequest(context.Background(), req, "/shipping/tracking/JX1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("forwards raw body and callback signature", func(t *testing.T) {
		body := `{"reference":"REF1", "status":"PAID"}`
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Callback-Signature") != "abc" {
				t.Errorf("expected signature header, got %q", r.Header.Get("X-Callback-Signature"))
			}
			if r.Header.Get("Authorization") != "" {
				t.Errorf("expected authorization to stay at the edge")
			}
			got, _ := io.ReadAll(r.Body)
			if string(got) != body {
				t.Errorf("expected body unchanged, got %s", got)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Callback-Signature", "abc")
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := proxy.ForwardRequest(context.Background(), req, "/payments/callback")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		proxy := NewServiceProxy(server.URL, server.Client())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		_, err := proxy.ForwardRequest(ctx, req, "/orders")
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

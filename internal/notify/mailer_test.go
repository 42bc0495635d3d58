package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMailer_Send(t *testing.T) {
	t.Run("posts email with bearer key", func(t *testing.T) {
		var got Email
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/emails" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"mail-1"}`))
		}))
		defer server.Close()

		m := NewMailer(server.URL, "re_key", "Toko <toko@example.com>", server.Client())
		err := m.Send(context.Background(), Email{To: []string{"budi@example.com"}, Subject: "Invoice", HTML: "<p>hi</p>"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if auth != "Bearer re_key" {
			t.Errorf("expected bearer auth, got %q", auth)
		}
		if got.From != "Toko <toko@example.com>" {
			t.Errorf("expected default sender, got %q", got.From)
		}
		if len(got.To) != 1 || got.To[0] != "budi@example.com" {
			t.Errorf("unexpected recipients: %v", got.To)
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		m := NewMailer(server.URL, "re_key", "toko@example.com", server.Client())
		if err := m.Send(context.Background(), Email{To: []string{"x@example.com"}}); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

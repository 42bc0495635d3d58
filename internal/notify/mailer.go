package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Mailer sends email through a Resend-style HTTP API.
type Mailer struct {
	http *resty.Client
	from string
}

func NewMailer(baseURL, apiKey, from string, httpClient *http.Client) *Mailer {
	c := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &Mailer{http: c, from: from}
}

func (m *Mailer) Send(ctx context.Context, email Email) error {
	if email.From == "" {
		email.From = m.from
	}

	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(email).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

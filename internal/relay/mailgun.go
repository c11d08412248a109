package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Mailer hands a message to the transactional email provider.
type Mailer interface {
	Deliver(ctx context.Context, from, to, subject, text string) error
}

// Mailgun delivers through the Mailgun messages API.
type Mailgun struct {
	baseURL string
	domain  string
	apiKey  string
	http    *http.Client
}

// NewMailgun returns a Mailer for domain. baseURL is normally
// https://api.mailgun.net.
func NewMailgun(baseURL, domain, apiKey string, timeout time.Duration) *Mailgun {
	return &Mailgun{
		baseURL: strings.TrimRight(baseURL, "/"),
		domain:  domain,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ProviderError is a non-2xx reply from Mailgun. Text is the raw body.
type ProviderError struct {
	Status int
	Text   string
}

func (e *ProviderError) Error() string { return e.Text }

// Deliver posts a form-encoded message to /v3/<domain>/messages.
func (m *Mailgun) Deliver(ctx context.Context, from, to, subject, text string) error {
	form := url.Values{
		"from":    {from},
		"to":      {to},
		"subject": {subject},
		"text":    {text},
	}
	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, url.PathEscape(m.domain))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &ProviderError{Status: resp.StatusCode, Text: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

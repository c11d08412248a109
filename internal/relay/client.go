// Package relay carries outbound email. Client posts messages to the relay
// endpoint; Service is that endpoint, forwarding to the mail provider.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is the relay request body.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Error is a failure reported by the relay itself. Its text is the relay's
// own error message so it can be shown to the submitter.
type Error struct {
	Status int
	Text   string
}

func (e *Error) Error() string { return e.Text }

// response is the relay's JSON reply.
type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Client posts messages to a relay endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the relay at url.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Send posts m to the relay. A non-2xx reply or success:false yields an
// *Error carrying the relay's text, or "Unknown error" when it sent none.
func (c *Client) Send(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read relay response: %w", err)
	}

	var result response
	_ = json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !result.Success {
		text := result.Error
		if text == "" {
			text = "Unknown error"
		}
		return &Error{Status: resp.StatusCode, Text: text}
	}
	return nil
}

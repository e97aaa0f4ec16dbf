package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookRequest is the JSON body posted to the webhook.
type webhookRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// WebhookProvider delivers emails by POSTing them to an HTTP endpoint, for
// example a transactional email API relay. The URL is injected from config
// so tests can point to a local server.
type WebhookProvider struct {
	url        string
	from       string
	httpClient *http.Client
}

func NewWebhookProvider(url, from string, timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{
		url:  url,
		from: from,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *WebhookProvider) Name() string { return "webhook" }

// Send posts the message and accepts any 2xx response.
func (p *WebhookProvider) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookRequest{
		From:    p.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected provider status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that WebhookProvider implements Provider
var _ Provider = (*WebhookProvider)(nil)

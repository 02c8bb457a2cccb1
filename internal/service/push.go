package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vixogram/internal/config"
)

// httpPushSender posts notifications to the configured push relay, which
// fans them out to the device platforms.
type httpPushSender struct {
	url    string
	token  string
	client *http.Client
}

type pushRequest struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// NewHTTPPushSender builds the push relay client from configuration, or
// returns nil when no relay is configured.
func NewHTTPPushSender(cfg *config.Config) PushSender {
	if cfg.PushProviderURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.PushTimeout) * time.Second
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &httpPushSender{
		url:    cfg.PushProviderURL,
		token:  cfg.PushProviderToken,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *httpPushSender) Send(ctx context.Context, token, title, body, url string) error {
	payload, err := json.Marshal(pushRequest{Token: token, Title: title, Body: body, URL: url})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push relay returned %d", resp.StatusCode)
	}
	return nil
}

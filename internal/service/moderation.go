// Package service contains the business logic between the HTTP/WS edge and
// the repositories: the message pipeline, call signalling, code-room
// admission, notifications, and retention.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vixogram/internal/config"
	"vixogram/internal/models"
)

// Verdict is the moderation outcome for one message.
type Verdict struct {
	Action     models.ModerationAction `json:"action"`
	Categories string                  `json:"categories"`
	Severity   int                     `json:"severity"`
	Confidence float64                 `json:"confidence"`
	Reason     string                  `json:"reason"`
	// MuteSeconds is a suggested mute; it only ever extends the current one.
	MuteSeconds int `json:"mute_seconds"`
}

// Moderator evaluates a message with recent context. Implementations must
// treat failures as "allow": moderation is advisory, not load-bearing.
type Moderator interface {
	Review(ctx context.Context, req ModerationRequest) (*Verdict, error)
}

// ModerationRequest is the material handed to the moderator.
type ModerationRequest struct {
	UserID          uint     `json:"user_id"`
	Room            string   `json:"room"`
	Body            string   `json:"body"`
	RecentUserMsgs  []string `json:"recent_user_messages"`
	RecentRoomMsgs  []string `json:"recent_room_messages"`
	SuspiciousSpeed bool     `json:"suspicious_speed"`
}

// llmModerator calls the external moderation endpoint.
type llmModerator struct {
	url     string
	client  *http.Client
	minConf float64
}

// NewLLMModerator builds the HTTP moderation client from configuration,
// or returns nil when moderation is disabled.
func NewLLMModerator(cfg *config.Config) Moderator {
	if !cfg.ModerationEnabled || cfg.ModerationURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.ModerationTimeout) * time.Second
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &llmModerator{
		url:     cfg.ModerationURL,
		client:  &http.Client{Timeout: timeout},
		minConf: cfg.AIMinConfidence,
	}
}

func (m *llmModerator) Review(ctx context.Context, req ModerationRequest) (*Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation endpoint returned %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, err
	}
	// Low-confidence verdicts are downgraded to allow.
	if verdict.Confidence < m.minConf {
		verdict.Action = models.ModerationAllow
	}
	return &verdict, nil
}

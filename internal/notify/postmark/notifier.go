// Package postmark sends notification emails through the Postmark API.
package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Send must never hold up a saga; the whole HTTP exchange is bounded.
const defaultTimeout = 10 * time.Second

// Config captures the parameters required to send via Postmark.
type Config struct {
	APIBase     string
	ServerToken string
	// Sender is the verified from-address for archive notifications.
	Sender  string
	Timeout time.Duration
}

// Notifier implements archive.Notifier over the Postmark email API.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

type emailMessage struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"htmlBody"`
}

// New constructs a Notifier.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("postmark api base is required")
	}
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Send delivers one HTML email to the recipient.
func (n *Notifier) Send(ctx context.Context, to string, subject string, body string) error {
	message := emailMessage{
		From:     n.cfg.Sender,
		To:       to,
		Subject:  subject,
		HTMLBody: body,
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, n.cfg.APIBase+"/email", bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", n.cfg.ServerToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			n.logger.Warn("close email response body failed", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("postmark returned status %d", resp.StatusCode)
	}
	return nil
}

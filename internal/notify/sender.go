package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"

	"payment-service/internal/config"
	"payment-service/internal/message"
)

const (
	defaultTimeoutMs = 10_000
)

var (
	senderSuccessCounter = metrics.GetOrCreateCounter(`notification_sender_total{result="success"}`)
	senderFailedCounter  = metrics.GetOrCreateCounter(`notification_sender_total{result="failed"}`)
)

type Sender struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewSender(cfg config.NotifySender, logger *slog.Logger) *Sender {
	timeout := time.Duration(orDefault(cfg.TimeoutMs, defaultTimeoutMs)) * time.Millisecond
	return &Sender{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts the notification as JSON. Any status of 400 or above is an
// error.
func (s *Sender) Send(ctx context.Context, notification message.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		senderFailedCounter.Inc()
		return errors.Wrap(err, "send notification")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		senderFailedCounter.Inc()
		s.logger.WarnContext(ctx, "Notification endpoint returned an error", "status", resp.Status, "body", string(respBody))
		return errors.Errorf("error response: %s", resp.Status)
	}

	senderSuccessCounter.Inc()
	s.logger.InfoContext(ctx, "Notification sent", "url", s.url, "status", resp.Status)
	return nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/jobs"
	applog "github.com/noah-isme/campus-hub-api/pkg/logger"
)

// NotificationSender delivers a single notification.
type NotificationSender interface {
	Send(ctx context.Context, n models.Notification) error
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

// Notifier is the fire-and-forget collaborator used by the engines.
type Notifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, recipient string, payload map[string]interface{})
}

// NotificationService buffers notifications on a job queue. Notify never
// fails the caller; delivery errors are retried by the queue and logged.
type NotificationService struct {
	queue   notificationQueue
	sender  NotificationSender
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
	now     func() time.Time
}

// NewNotificationService constructs a notification service. The queue may be
// attached later with AttachQueue because the queue handler is Deliver.
func NewNotificationService(sender NotificationSender, metrics *MetricsService, logger *zap.Logger, enabled bool) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{sender: sender, metrics: metrics, logger: logger, enabled: enabled, now: time.Now}
}

// AttachQueue sets the queue notifications are buffered on.
func (s *NotificationService) AttachQueue(queue notificationQueue) {
	s.queue = queue
}

// Notify enqueues a notification without blocking.
func (s *NotificationService) Notify(ctx context.Context, kind models.NotificationKind, recipient string, payload map[string]interface{}) {
	if s == nil || !s.enabled || recipient == "" {
		return
	}
	n := models.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if s.queue == nil {
		s.metrics.RecordNotification(string(kind), "dropped")
		s.logger.Warn("notification queue not attached", zap.String("kind", string(kind)))
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: string(kind), Payload: n}); err != nil {
		s.metrics.RecordNotification(string(kind), "dropped")
		applog.WithContext(ctx, s.logger).Warn("notification dropped",
			zap.String("kind", string(kind)),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordNotification(string(kind), "queued")
}

// Deliver is the queue handler that hands a buffered notification to the sender.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.sender.Send(ctx, n); err != nil {
		s.metrics.RecordNotification(string(n.Kind), "failed")
		return err
	}
	s.metrics.RecordNotification(string(n.Kind), "sent")
	return nil
}

// WebhookSender posts notifications as JSON to an HTTP endpoint such as a
// serverless email function.
type WebhookSender struct {
	httpClient *http.Client
	url        string
}

// NewWebhookSender builds a sender with a bounded per-request timeout.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{httpClient: &http.Client{Timeout: timeout}, url: url}
}

// Send implements NotificationSender.
func (w *WebhookSender) Send(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// LogSender writes notifications to the application log.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements NotificationSender.
func (l *LogSender) Send(ctx context.Context, n models.Notification) error {
	l.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("recipient", n.Recipient),
		zap.Any("payload", n.Payload),
	)
	return nil
}

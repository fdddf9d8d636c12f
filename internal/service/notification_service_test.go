package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/jobs"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, kind models.NotificationKind, recipient string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, models.Notification{Kind: kind, Recipient: recipient, Payload: payload})
}

func (r *recordingNotifier) kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type stubQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *stubQueue) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type stubSender struct {
	err  error
	sent []models.Notification
}

func (s *stubSender) Send(ctx context.Context, n models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func TestNotificationServiceNotifyEnqueues(t *testing.T) {
	queue := &stubQueue{}
	svc := NewNotificationService(&stubSender{}, NewMetricsService(), nil, true)
	svc.AttachQueue(queue)

	svc.Notify(context.Background(), models.NotifyEventApproved, "org-1", map[string]interface{}{"event_id": "e1"})
	svc.Notify(context.Background(), models.NotifyEventApproved, "", nil)

	require.Len(t, queue.jobs, 1)
	n, ok := queue.jobs[0].Payload.(models.Notification)
	require.True(t, ok)
	assert.Equal(t, "org-1", n.Recipient)
	assert.NotEmpty(t, n.ID)
}

func TestNotificationServiceDisabledOrFull(t *testing.T) {
	queue := &stubQueue{}
	disabled := NewNotificationService(&stubSender{}, nil, nil, false)
	disabled.AttachQueue(queue)
	disabled.Notify(context.Background(), models.NotifyOrderPlaced, "s1", nil)
	assert.Empty(t, queue.jobs)

	metrics := NewMetricsService()
	full := NewNotificationService(&stubSender{}, metrics, nil, true)
	full.AttachQueue(&stubQueue{err: jobs.ErrQueueFull})
	assert.NotPanics(t, func() { full.Notify(context.Background(), models.NotifyOrderPlaced, "s1", nil) })
	assert.Equal(t, uint64(1), metrics.Snapshot().NotificationsDropped)
}

func TestNotificationServiceDeliver(t *testing.T) {
	sender := &stubSender{}
	svc := NewNotificationService(sender, nil, nil, true)

	n := models.Notification{ID: "n1", Kind: models.NotifyOrderStatusChanged, Recipient: "s1"}
	require.NoError(t, svc.Deliver(context.Background(), jobs.Job{ID: "n1", Payload: n}))
	require.Len(t, sender.sent, 1)

	require.NoError(t, svc.Deliver(context.Background(), jobs.Job{ID: "bad", Payload: "nope"}))

	sender.err = errors.New("smtp down")
	assert.Error(t, svc.Deliver(context.Background(), jobs.Job{ID: "n1", Payload: n}))
}

func TestWebhookSender(t *testing.T) {
	var got models.Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Recipient == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, time.Second)
	require.NoError(t, sender.Send(context.Background(), models.Notification{ID: "n1", Kind: models.NotifyEventRejected, Recipient: "org-1"}))
	assert.Equal(t, models.NotifyEventRejected, got.Kind)

	err := sender.Send(context.Background(), models.Notification{ID: "n2", Recipient: "fail"})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(nil).Send(context.Background(), models.Notification{ID: "n1"}))
}

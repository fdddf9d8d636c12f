package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/response"
)

type changeSubscriber interface {
	Subscribe(ctx context.Context, table string) (<-chan models.ChangeEvent, error)
}

// StreamHandler relays row changes to browsers as server-sent events.
type StreamHandler struct {
	feed      changeSubscriber
	keepAlive time.Duration
}

// NewStreamHandler constructs the handler. keepAlive <= 0 uses 25s.
func NewStreamHandler(feed changeSubscriber, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &StreamHandler{feed: feed, keepAlive: keepAlive}
}

// Stream godoc
// @Summary Subscribe to row changes
// @Description Server-sent events for the events or canteen_orders table. Students only receive their own order changes. Event changes reach approvers in full; other users see their own events and events entering or leaving approved.
// @Tags Realtime
// @Produce text/event-stream
// @Param table path string true "events or canteen_orders"
// @Success 200
// @Failure 503 {object} response.Envelope
// @Router /stream/{table} [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	table := c.Param("table")
	changes, err := h.feed.Subscribe(ctx, table)
	if err != nil {
		response.Error(c, err)
		return
	}
	visible := changeFilter(table, actor.UserID, actor.Roles)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Status(http.StatusOK)
	c.Writer.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
		case change, open := <-changes:
			if !open {
				return
			}
			if !visible(change) {
				continue
			}
			c.SSEvent(string(change.Type), change)
		}
		c.Writer.Flush()
	}
}

func changeFilter(table, userID string, roles []models.UserRole) func(models.ChangeEvent) bool {
	own := func(change models.ChangeEvent) bool { return change.UserID == userID }
	switch table {
	case models.FeedCanteenOrders:
		if models.HasAnyRole(roles, models.RoleCanteenAdmin, models.RoleAdmin) {
			return func(models.ChangeEvent) bool { return true }
		}
		return own
	case models.FeedEvents:
		if models.HasAnyRole(roles, models.RoleFaculty, models.RoleHOD, models.RoleAdmin) {
			return func(models.ChangeEvent) bool { return true }
		}
		approved := string(models.LevelApproved)
		return func(change models.ChangeEvent) bool {
			return own(change) || change.NewStatus == approved || change.OldStatus == approved
		}
	default:
		return own
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/models"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
)

// ChangeBus is the pub/sub transport behind the change feed.
type ChangeBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// ChangeFeed publishes row-change notices for realtime subscribers. It is
// optional: a disabled or nil feed accepts publishes and drops them.
type ChangeFeed struct {
	bus     ChangeBus
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
	enabled bool
	now     func() time.Time
}

// NewChangeFeed constructs a change feed.
func NewChangeFeed(bus ChangeBus, prefix string, logger *zap.Logger, enabled bool) *ChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "campus"
	}
	return &ChangeFeed{
		bus:     bus,
		prefix:  prefix,
		timeout: 2 * time.Second,
		logger:  logger,
		enabled: enabled && bus != nil,
		now:     time.Now,
	}
}

// Enabled reports whether changes are actually published.
func (f *ChangeFeed) Enabled() bool {
	return f != nil && f.enabled
}

// Channel returns the Redis channel for table.
func (f *ChangeFeed) Channel(table string) string {
	return f.prefix + ":" + table
}

// Publish sends change on its table channel. Failures are logged only.
func (f *ChangeFeed) Publish(ctx context.Context, change models.ChangeEvent) {
	if !f.Enabled() {
		return
	}
	if change.At.IsZero() {
		change.At = f.now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		f.logger.Warn("encode change event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	if err := f.bus.Publish(ctx, f.Channel(change.Table), payload); err != nil {
		f.logger.Warn("publish change event failed",
			zap.String("table", change.Table),
			zap.String("id", change.ID),
			zap.Error(err),
		)
	}
}

// Subscribe decodes change events for table until ctx ends.
func (f *ChangeFeed) Subscribe(ctx context.Context, table string) (<-chan models.ChangeEvent, error) {
	if !f.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "realtime feed is disabled")
	}
	if table != models.FeedEvents && table != models.FeedCanteenOrders {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown feed %q", table))
	}
	raw, err := f.bus.Subscribe(ctx, f.Channel(table))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to subscribe to feed")
	}
	out := make(chan models.ChangeEvent)
	go func() {
		defer close(out)
		for payload := range raw {
			var change models.ChangeEvent
			if err := json.Unmarshal(payload, &change); err != nil {
				f.logger.Debug("skip malformed change event", zap.Error(err))
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/repository"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	applog "github.com/noah-isme/campus-hub-api/pkg/logger"
)

const (
	orderNumberAttempts    = 3
	canteenAnalyticsPrefix = "canteen:analytics:"
)

type orderRepository interface {
	Create(ctx context.Context, order *models.CanteenOrder) error
	GetByID(ctx context.Context, id string) (*models.CanteenOrder, error)
	GetByNumber(ctx context.Context, number string) (*models.CanteenOrder, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.CanteenOrder, error)
	Count(ctx context.Context, filter models.OrderFilter) (int, error)
	UpdateStatus(ctx context.Context, change models.OrderStatusChange) error
	Logs(ctx context.Context, orderID string) ([]models.OrderLog, error)
}

type orderMenuReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.MenuItem, error)
}

type orderSlotReader interface {
	GetByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

type canteenAnalyticsReader interface {
	StatusCounts(ctx context.Context, from, to time.Time) ([]models.StatusCount, error)
	ItemDemand(ctx context.Context, from, to time.Time) ([]models.ItemDemand, error)
	SlotOccupancy(ctx context.Context, day time.Time) ([]models.SlotDistribution, error)
}

// OrderingServiceConfig holds tunables and optional collaborators.
type OrderingServiceConfig struct {
	OrderNumberPrefix string
	AnalyticsTTL      time.Duration
	Location          *time.Location
	Roles             RoleResolver
	Cache             *CacheService
	Exporter          *ExportService
	Notifier          Notifier
	Feed              *ChangeFeed
	Metrics           *MetricsService
	Logger            *zap.Logger
}

// OrderingService is the canteen ordering engine. Slot capacity is enforced
// by the store's conditional increment; the pre-check only fails fast.
type OrderingService struct {
	orders    orderRepository
	menu      orderMenuReader
	slots     orderSlotReader
	analytics canteenAnalyticsReader
	roles     RoleResolver
	cache     *CacheService
	exporter  *ExportService
	notifier  Notifier
	feed      *ChangeFeed
	metrics   *MetricsService
	logger    *zap.Logger

	prefix       string
	analyticsTTL time.Duration
	location     *time.Location
	clock        func() time.Time
	numbers      func(at time.Time) (string, error)
}

// NewOrderingService constructs the ordering engine.
func NewOrderingService(orders orderRepository, menu orderMenuReader, slots orderSlotReader, analytics canteenAnalyticsReader, cfg OrderingServiceConfig) *OrderingService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AnalyticsTTL <= 0 {
		cfg.AnalyticsTTL = 30 * time.Second
	}
	if cfg.Exporter == nil {
		cfg.Exporter = NewExportService(nil, cfg.Location, cfg.Logger)
	}
	prefix := strings.ToUpper(strings.TrimSpace(cfg.OrderNumberPrefix))
	if prefix == "" {
		prefix = "ORD"
	}
	s := &OrderingService{
		orders:       orders,
		menu:         menu,
		slots:        slots,
		analytics:    analytics,
		roles:        cfg.Roles,
		cache:        cfg.Cache,
		exporter:     cfg.Exporter,
		notifier:     cfg.Notifier,
		feed:         cfg.Feed,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		prefix:       prefix,
		analyticsTTL: cfg.AnalyticsTTL,
		location:     cfg.Location,
		clock:        time.Now,
	}
	s.numbers = s.generateOrderNumber
	return s
}

// PlaceOrder turns the cart into a confirmed order for the slot. On success
// the cart is cleared; on failure nothing is persisted and the cart is kept.
func (s *OrderingService) PlaceOrder(ctx context.Context, studentID string, cart *models.Cart, timeSlotID, notes string) (*models.CanteenOrder, error) {
	if cart.IsEmpty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cart is empty")
	}
	lines := cart.Lines()
	for _, line := range lines {
		if line.Quantity > models.MaxLineQuantity {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d of one item per order", models.MaxLineQuantity))
		}
	}
	if strings.TrimSpace(timeSlotID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time slot is required")
	}

	slot, err := s.slots.GetByID(ctx, timeSlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	if !slot.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time slot is not accepting orders")
	}
	if slot.IsFull() {
		s.metrics.RecordSlotFull()
		return nil, appErrors.Clone(appErrors.ErrSlotFull, "time slot is full")
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.MenuItemID)
	}
	menuItems, err := s.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load menu items")
	}
	byID := make(map[string]models.MenuItem, len(menuItems))
	for _, item := range menuItems {
		byID[item.ID] = item
	}

	prices := make(map[string]float64, len(lines))
	items := make([]models.OrderItem, 0, len(lines))
	ticketItems := make([]models.OrderTicketItem, 0, len(lines))
	for _, line := range lines {
		item, ok := byID[line.MenuItemID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "menu item "+line.MenuItemID+" does not exist")
		}
		if !item.IsAvailable {
			return nil, appErrors.Clone(appErrors.ErrValidation, item.Name+" is not available")
		}
		prices[item.ID] = item.Price
		items = append(items, models.OrderItem{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   line.Quantity,
			UnitPrice:  item.Price,
		})
		ticketItems = append(ticketItems, models.OrderTicketItem{Name: item.Name, Qty: line.Quantity})
	}
	total := math.Round(cart.Total(prices)*100) / 100

	var order *models.CanteenOrder
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		placedAt := s.clock().UTC()
		number, err := s.numbers(placedAt)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate order number")
		}
		qr, err := json.Marshal(models.OrderTicket{
			OrderNumber: number,
			StudentID:   studentID,
			TotalPrice:  total,
			TimeSlotID:  slot.ID,
			Items:       ticketItems,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode order code")
		}

		candidate := &models.CanteenOrder{
			OrderNumber: number,
			StudentID:   studentID,
			TimeSlotID:  slot.ID,
			TotalPrice:  total,
			Status:      models.OrderStatusConfirmed,
			QRCode:      string(qr),
			Notes:       optionalText(notes),
			CreatedAt:   placedAt,
			Items:       append([]models.OrderItem(nil), items...),
			SlotTime:    slot.SlotTime,
		}
		err = s.orders.Create(ctx, candidate)
		if err == nil {
			order = candidate
			break
		}
		switch {
		case errors.Is(err, repository.ErrSlotUnavailable):
			s.metrics.RecordSlotFull()
			return nil, appErrors.Clone(appErrors.ErrSlotFull, "time slot is full")
		case errors.Is(err, repository.ErrDuplicateOrderNumber):
			applog.WithContext(ctx, s.logger).Warn("order number collision, retrying", zap.String("order_number", number), zap.Int("attempt", attempt))
			continue
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place order")
		}
	}
	if order == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique order number")
	}

	cart.Clear()
	s.metrics.RecordOrderStatus(order.Status)
	s.cache.Invalidate(ctx, canteenAnalyticsPrefix+"*")
	s.feed.Publish(ctx, models.ChangeEvent{
		Table:     models.FeedCanteenOrders,
		Type:      models.ChangeInsert,
		ID:        order.ID,
		NewStatus: string(order.Status),
		UserID:    order.StudentID,
	})
	s.notify(ctx, models.NotifyOrderPlaced, order.StudentID, map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"slot_time":    order.SlotTime,
		"total":        order.TotalPrice,
	})
	return order, nil
}

// AdvanceStatus moves an order exactly one step, or to cancelled.
func (s *OrderingService) AdvanceStatus(ctx context.Context, orderID string, target models.OrderStatus, staff Actor) (*models.CanteenOrder, error) {
	if err := s.requireStaff(ctx, staff); err != nil {
		return nil, err
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	return s.transition(ctx, order, target, staff.UserID)
}

// OrderLog returns an order's status changes, oldest first. Staff see any
// order; students only their own.
func (s *OrderingService) OrderLog(ctx context.Context, orderID string, actor Actor) ([]models.OrderLog, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	if order.StudentID != actor.UserID {
		if err := s.requireStaff(ctx, actor); err != nil {
			return nil, err
		}
	}
	logs, err := s.orders.Logs(ctx, order.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order log")
	}
	if logs == nil {
		logs = []models.OrderLog{}
	}
	return logs, nil
}

// Collect hands over a ready order identified by order number, id or the
// JSON carried in its QR code.
func (s *OrderingService) Collect(ctx context.Context, code string, staff Actor) (*models.CanteenOrder, error) {
	if err := s.requireStaff(ctx, staff); err != nil {
		return nil, err
	}
	order, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case models.OrderStatusCollected:
		return nil, appErrors.Clone(appErrors.ErrAlreadyCollected, "order "+order.OrderNumber+" was already collected")
	case models.OrderStatusReady:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotReady, "order "+order.OrderNumber+" is "+string(order.Status))
	}
	return s.transition(ctx, order, models.OrderStatusCollected, staff.UserID)
}

// transition is the single path through which order status changes.
func (s *OrderingService) transition(ctx context.Context, order *models.CanteenOrder, target models.OrderStatus, staffID string) (*models.CanteenOrder, error) {
	from := order.Status
	if !models.CanTransition(from, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, target))
	}
	changedAt := s.clock().UTC()
	change := models.OrderStatusChange{OrderID: order.ID, From: from, To: target, ChangedBy: staffID, ChangedAt: changedAt}
	if target == models.OrderStatusCollected {
		change.CollectedAt = &changedAt
	}
	if err := s.orders.UpdateStatus(ctx, change); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "order status changed, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update order status")
	}

	updated := *order
	updated.Status = target
	updated.UpdatedAt = changedAt
	if change.CollectedAt != nil {
		updated.CollectedAt = change.CollectedAt
	}

	s.metrics.RecordOrderStatus(target)
	s.cache.Invalidate(ctx, canteenAnalyticsPrefix+"*")
	s.feed.Publish(ctx, models.ChangeEvent{
		Table:     models.FeedCanteenOrders,
		Type:      models.ChangeUpdate,
		ID:        updated.ID,
		OldStatus: string(from),
		NewStatus: string(target),
		UserID:    updated.StudentID,
	})
	s.notify(ctx, models.NotifyOrderStatusChanged, updated.StudentID, map[string]interface{}{
		"order_id":     updated.ID,
		"order_number": updated.OrderNumber,
		"from":         from,
		"to":           target,
	})
	s.logger.Info("order status changed",
		zap.String("order_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("staff", staffID),
	)
	return &updated, nil
}

func (s *OrderingService) lookup(ctx context.Context, code string) (*models.CanteenOrder, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "order code is required")
	}
	if strings.HasPrefix(code, "{") {
		var t models.OrderTicket
		if err := json.Unmarshal([]byte(code), &t); err != nil || t.OrderNumber == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unreadable order code")
		}
		code = t.OrderNumber
	}

	order, err := s.orders.GetByNumber(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		order, err = s.orders.GetByID(ctx, code)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	return order, nil
}

// ListMine returns a student's recent orders.
func (s *OrderingService) ListMine(ctx context.Context, studentID string) ([]models.CanteenOrder, error) {
	orders, err := s.orders.List(ctx, models.OrderFilter{StudentID: studentID, Limit: 50})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}
	return nonNilOrders(orders), nil
}

// ListForDay returns the staff view of a day's orders.
func (s *OrderingService) ListForDay(ctx context.Context, query dto.OrderListQuery) ([]models.CanteenOrder, *models.Pagination, error) {
	day, err := s.ParseDay(query.Date)
	if err != nil {
		return nil, nil, err
	}
	from, to := s.dayBounds(day)
	filter := models.OrderFilter{TimeSlotID: query.SlotID, From: &from, To: &to}
	if query.Status != "" {
		status, ok := models.ParseOrderStatus(query.Status)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown order status "+query.Status)
		}
		filter.Statuses = []models.OrderStatus{status}
	}
	page, size := normalizePage(query.Page, query.PageSize, 100, 500)
	filter.Limit, filter.Offset = size, (page-1)*size

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}
	total, err := s.orders.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count orders")
	}
	return nonNilOrders(orders), &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ExportDay renders every order of a day.
func (s *OrderingService) ExportDay(ctx context.Context, rawDay, format string) (*ExportFile, error) {
	day, err := s.ParseDay(rawDay)
	if err != nil {
		return nil, err
	}
	from, to := s.dayBounds(day)
	orders, err := s.orders.List(ctx, models.OrderFilter{From: &from, To: &to, Limit: 500})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}
	return s.exporter.Orders(day, orders, format)
}

// OrderStats counts the day's orders per status. hit reports a cache hit.
func (s *OrderingService) OrderStats(ctx context.Context, rawDay string) (models.OrderStats, bool, error) {
	day, err := s.ParseDay(rawDay)
	if err != nil {
		return models.OrderStats{}, false, err
	}
	key := canteenAnalyticsPrefix + "stats:" + day.Format("2006-01-02")
	return GetOrLoad(ctx, s.cache, key, s.analyticsTTL, func(ctx context.Context) (models.OrderStats, error) {
		from, to := s.dayBounds(day)
		rows, err := s.analytics.StatusCounts(ctx, from, to)
		if err != nil {
			return models.OrderStats{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order stats")
		}
		stats := models.OrderStats{Date: day.Format("2006-01-02"), ByStatus: make(map[models.OrderStatus]int, len(models.OrderStatuses))}
		for _, status := range models.OrderStatuses {
			stats.ByStatus[status] = 0
		}
		for _, row := range rows {
			stats.ByStatus[row.Status] += row.Count
			stats.Total += row.Count
			if row.Status != models.OrderStatusCancelled {
				stats.Revenue += row.Revenue
			}
		}
		stats.Revenue = math.Round(stats.Revenue*100) / 100
		return stats, nil
	})
}

// ItemDemand totals ordered quantities per item for the day, highest first.
func (s *OrderingService) ItemDemand(ctx context.Context, rawDay string) ([]models.ItemDemand, bool, error) {
	day, err := s.ParseDay(rawDay)
	if err != nil {
		return nil, false, err
	}
	key := canteenAnalyticsPrefix + "demand:" + day.Format("2006-01-02")
	return GetOrLoad(ctx, s.cache, key, s.analyticsTTL, func(ctx context.Context) ([]models.ItemDemand, error) {
		from, to := s.dayBounds(day)
		rows, err := s.analytics.ItemDemand(ctx, from, to)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item demand")
		}
		if rows == nil {
			rows = []models.ItemDemand{}
		}
		return rows, nil
	})
}

// SlotDistribution reports occupancy per slot for the day.
func (s *OrderingService) SlotDistribution(ctx context.Context, rawDay string) ([]models.SlotDistribution, bool, error) {
	day, err := s.ParseDay(rawDay)
	if err != nil {
		return nil, false, err
	}
	key := canteenAnalyticsPrefix + "slots:" + day.Format("2006-01-02")
	return GetOrLoad(ctx, s.cache, key, s.analyticsTTL, func(ctx context.Context) ([]models.SlotDistribution, error) {
		rows, err := s.analytics.SlotOccupancy(ctx, day)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot distribution")
		}
		if rows == nil {
			rows = []models.SlotDistribution{}
		}
		for i := range rows {
			if rows[i].Capacity > 0 {
				rows[i].Percentage = int(math.Round(float64(rows[i].Orders) * 100 / float64(rows[i].Capacity)))
			}
		}
		return rows, nil
	})
}

// Dashboard bundles the day's analytics for the staff overview.
func (s *OrderingService) Dashboard(ctx context.Context, rawDay string) (*dto.CanteenDashboard, bool, error) {
	stats, statsHit, err := s.OrderStats(ctx, rawDay)
	if err != nil {
		return nil, false, err
	}
	demand, demandHit, err := s.ItemDemand(ctx, rawDay)
	if err != nil {
		return nil, false, err
	}
	slots, slotsHit, err := s.SlotDistribution(ctx, rawDay)
	if err != nil {
		return nil, false, err
	}
	return &dto.CanteenDashboard{Stats: stats, Demand: demand, Distribution: slots}, statsHit && demandHit && slotsHit, nil
}

// ParseDay reads YYYY-MM-DD in the canteen time zone; empty means today.
func (s *OrderingService) ParseDay(raw string) (time.Time, error) {
	return parseDay(raw, s.location, s.clock)
}

func (s *OrderingService) dayBounds(day time.Time) (time.Time, time.Time) {
	d := now.With(day.In(s.location))
	return d.BeginningOfDay(), d.EndOfDay()
}

func (s *OrderingService) requireStaff(ctx context.Context, staff Actor) error {
	roles, err := verifyRoles(ctx, s.roles, staff)
	if err != nil {
		return err
	}
	if !models.HasAnyRole(roles, models.RoleCanteenAdmin, models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "only canteen staff may update orders")
	}
	return nil
}

func (s *OrderingService) notify(ctx context.Context, kind models.NotificationKind, recipient string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, kind, recipient, payload)
}

// generateOrderNumber builds PREFIX-<base36 millis>-<4 random base36>.
func (s *OrderingService) generateOrderNumber(at time.Time) (string, error) {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		suffix[i] = alphabet[n.Int64()]
	}
	stamp := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	return s.prefix + "-" + stamp + "-" + string(suffix), nil
}

func parseDay(raw string, loc *time.Location, clock func() time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.With(clock().In(loc)).BeginningOfDay(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	return day, nil
}

func nonNilOrders(orders []models.CanteenOrder) []models.CanteenOrder {
	if orders == nil {
		return []models.CanteenOrder{}
	}
	return orders
}

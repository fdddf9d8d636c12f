package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/repository"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
)

// memoryCanteen mimics the transactional store: Create reserves a seat and
// inserts the order under one lock, or changes nothing.
type memoryCanteen struct {
	mu       sync.Mutex
	seq      int
	slots    map[string]*models.TimeSlot
	menu     map[string]models.MenuItem
	orders   map[string]*models.CanteenOrder
	logs     []models.OrderLog
	numbers  map[string]string
	createFn func(order *models.CanteenOrder) error
}

func newMemoryCanteen() *memoryCanteen {
	return &memoryCanteen{
		slots:   map[string]*models.TimeSlot{},
		menu:    map[string]models.MenuItem{},
		orders:  map[string]*models.CanteenOrder{},
		numbers: map[string]string{},
	}
}

func (m *memoryCanteen) addSlot(id string, capacity int) {
	m.slots[id] = &models.TimeSlot{ID: id, SlotTime: "12:30", Capacity: capacity, IsActive: true}
}

func (m *memoryCanteen) addItem(id, name string, price float64, available bool) {
	m.menu[id] = models.MenuItem{ID: id, Name: name, Price: price, IsAvailable: available}
}

func (m *memoryCanteen) Create(ctx context.Context, order *models.CanteenOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		if err := m.createFn(order); err != nil {
			return err
		}
	}
	slot, ok := m.slots[order.TimeSlotID]
	if !ok || !slot.IsActive || slot.CurrentOrders >= slot.Capacity {
		return repository.ErrSlotUnavailable
	}
	if _, taken := m.numbers[strings.ToUpper(order.OrderNumber)]; taken {
		return repository.ErrDuplicateOrderNumber
	}
	slot.CurrentOrders++
	m.seq++
	order.ID = fmt.Sprintf("ord-%d", m.seq)
	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &stored
	m.numbers[strings.ToUpper(order.OrderNumber)] = order.ID
	return nil
}

func (m *memoryCanteen) GetByID(ctx context.Context, id string) (*models.CanteenOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *o
	return &out, nil
}

func (m *memoryCanteen) GetByNumber(ctx context.Context, number string) (*models.CanteenOrder, error) {
	m.mu.Lock()
	id, ok := m.numbers[strings.ToUpper(strings.TrimSpace(number))]
	m.mu.Unlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *memoryCanteen) List(ctx context.Context, filter models.OrderFilter) ([]models.CanteenOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CanteenOrder
	for i := 1; i <= m.seq; i++ {
		o, ok := m.orders[fmt.Sprintf("ord-%d", i)]
		if !ok || !orderMatches(filter, o) {
			continue
		}
		out = append(out, *o)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryCanteen) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, o := range m.orders {
		if orderMatches(filter, o) {
			total++
		}
	}
	return total, nil
}

func orderMatches(filter models.OrderFilter, o *models.CanteenOrder) bool {
	if filter.StudentID != "" && o.StudentID != filter.StudentID {
		return false
	}
	if len(filter.Statuses) > 0 {
		for _, s := range filter.Statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

func (m *memoryCanteen) UpdateStatus(ctx context.Context, change models.OrderStatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[change.OrderID]
	if !ok || o.Status != change.From {
		return repository.ErrStaleState
	}
	o.Status = change.To
	if change.CollectedAt != nil {
		o.CollectedAt = change.CollectedAt
	}
	m.logs = append(m.logs, models.OrderLog{
		ID:         fmt.Sprintf("log-%d", len(m.logs)+1),
		OrderID:    change.OrderID,
		FromStatus: change.From,
		ToStatus:   change.To,
		ChangedBy:  change.ChangedBy,
		CreatedAt:  change.ChangedAt,
	})
	return nil
}

func (m *memoryCanteen) Logs(ctx context.Context, orderID string) ([]models.OrderLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderLog
	for _, l := range m.logs {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryCanteen) GetByIDs(ctx context.Context, ids []string) ([]models.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MenuItem
	for _, id := range ids {
		if item, ok := m.menu[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

type slotReader struct{ m *memoryCanteen }

func (r slotReader) GetByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	slot, ok := r.m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *slot
	return &out, nil
}

func (m *memoryCanteen) slot(id string) models.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.slots[id]
}

func (m *memoryCanteen) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type stubAnalytics struct {
	calls  int
	counts []models.StatusCount
	demand []models.ItemDemand
	slots  []models.SlotDistribution
}

func (s *stubAnalytics) StatusCounts(ctx context.Context, from, to time.Time) ([]models.StatusCount, error) {
	s.calls++
	return s.counts, nil
}

func (s *stubAnalytics) ItemDemand(ctx context.Context, from, to time.Time) ([]models.ItemDemand, error) {
	s.calls++
	return s.demand, nil
}

func (s *stubAnalytics) SlotOccupancy(ctx context.Context, day time.Time) ([]models.SlotDistribution, error) {
	s.calls++
	return s.slots, nil
}

var (
	staff   = Actor{UserID: "staff-1", Roles: []models.UserRole{models.RoleCanteenAdmin}}
	eater   = Actor{UserID: "stu-9", Roles: []models.UserRole{models.RoleStudent}}
	canteen = stubRoles{staff.UserID: staff.Roles, eater.UserID: eater.Roles}
)

type orderingFixture struct {
	svc      *OrderingService
	store    *memoryCanteen
	stats    *stubAnalytics
	notifier *recordingNotifier
	bus      *fakeBus
}

func newOrderingFixture(t *testing.T) orderingFixture {
	t.Helper()
	store := newMemoryCanteen()
	store.addSlot("slot-1", 2)
	store.addItem("dosa", "Masala Dosa", 60, true)
	store.addItem("chai", "Chai", 15, true)
	store.addItem("thali", "Thali", 120, false)
	stats := &stubAnalytics{}
	notifier := &recordingNotifier{}
	bus := newFakeBus()
	svc := NewOrderingService(store, store, slotReader{store}, stats, OrderingServiceConfig{
		OrderNumberPrefix: "ord",
		Roles:             canteen,
		Notifier:          notifier,
		Feed:              NewChangeFeed(bus, "campus", nil, true),
		Metrics:           NewMetricsService(),
	})
	return orderingFixture{svc: svc, store: store, stats: stats, notifier: notifier, bus: bus}
}

func cartOf(lines ...models.CartLine) *models.Cart {
	return models.CartFromLines(lines)
}

func TestPlaceOrderSnapshotsPrices(t *testing.T) {
	f := newOrderingFixture(t)
	cart := cartOf(models.CartLine{MenuItemID: "dosa", Quantity: 2}, models.CartLine{MenuItemID: "chai", Quantity: 1})

	order, err := f.svc.PlaceOrder(context.Background(), eater.UserID, cart, "slot-1", " extra chutney ")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.InDelta(t, 135.0, order.TotalPrice, 0.001)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
	require.NotNil(t, order.Notes)
	assert.Equal(t, "extra chutney", *order.Notes)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 1, f.store.slot("slot-1").CurrentOrders)

	require.Len(t, order.Items, 2)
	assert.Equal(t, 15.0, order.Items[0].UnitPrice)
	assert.Equal(t, 60.0, order.Items[1].UnitPrice)

	var qr models.OrderTicket
	require.NoError(t, json.Unmarshal([]byte(order.QRCode), &qr))
	assert.Equal(t, order.OrderNumber, qr.OrderNumber)
	assert.Len(t, qr.Items, 2)

	f.store.addItem("dosa", "Masala Dosa", 80, true)
	stored, err := f.store.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, stored.Items[1].UnitPrice)

	assert.Equal(t, 1, f.bus.count("campus:canteen_orders"))
	assert.Equal(t, []models.NotificationKind{models.NotifyOrderPlaced}, f.notifier.kinds())
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newOrderingFixture(t)
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, eater.UserID, models.NewCart(), "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, err = f.svc.PlaceOrder(ctx, eater.UserID, nil, "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.PlaceOrder(ctx, eater.UserID, cartOf(models.CartLine{MenuItemID: "dosa", Quantity: 1}), "nope", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	unavailable := cartOf(models.CartLine{MenuItemID: "thali", Quantity: 1})
	_, err = f.svc.PlaceOrder(ctx, eater.UserID, unavailable, "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.False(t, unavailable.IsEmpty())

	_, err = f.svc.PlaceOrder(ctx, eater.UserID, cartOf(models.CartLine{MenuItemID: "ghost", Quantity: 1}), "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.PlaceOrder(ctx, eater.UserID, cartOf(models.CartLine{MenuItemID: "chai", Quantity: models.MaxLineQuantity + 1}), "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	f.store.slots["slot-1"].IsActive = false
	_, err = f.svc.PlaceOrder(ctx, eater.UserID, cartOf(models.CartLine{MenuItemID: "chai", Quantity: 1}), "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 0, f.store.slot("slot-1").CurrentOrders)
}

func TestPlaceOrderConcurrentSlotCapacity(t *testing.T) {
	f := newOrderingFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cart := cartOf(models.CartLine{MenuItemID: "chai", Quantity: 1})
			_, err := f.svc.PlaceOrder(context.Background(), fmt.Sprintf("stu-%d", n), cart, "slot-1", "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, full int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, appErrors.Is(err, appErrors.ErrSlotFull), err.Error())
		full++
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, full)
	assert.Equal(t, 2, f.store.slot("slot-1").CurrentOrders)
	assert.Equal(t, 2, f.store.orderCount())
	for _, o := range f.store.orders {
		assert.Equal(t, models.OrderStatusConfirmed, o.Status)
	}
}

func TestPlaceOrderSlotFullPreCheck(t *testing.T) {
	f := newOrderingFixture(t)
	f.store.slots["slot-1"].CurrentOrders = 2
	cart := cartOf(models.CartLine{MenuItemID: "chai", Quantity: 1})

	_, err := f.svc.PlaceOrder(context.Background(), eater.UserID, cart, "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotFull))
	assert.False(t, cart.IsEmpty())
}

func TestPlaceOrderRetriesNumberCollision(t *testing.T) {
	f := newOrderingFixture(t)
	f.store.numbers["ORD-FIXED"] = "ord-existing"
	calls := 0
	f.svc.numbers = func(time.Time) (string, error) {
		calls++
		if calls < 3 {
			return "ORD-FIXED", nil
		}
		return "ORD-FRESH", nil
	}

	order, err := f.svc.PlaceOrder(context.Background(), eater.UserID, cartOf(models.CartLine{MenuItemID: "chai", Quantity: 1}), "slot-1", "")
	require.NoError(t, err)
	assert.Equal(t, "ORD-FRESH", order.OrderNumber)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, f.store.slot("slot-1").CurrentOrders)

	f.svc.numbers = func(time.Time) (string, error) { return "ORD-FRESH", nil }
	_, err = f.svc.PlaceOrder(context.Background(), eater.UserID, cartOf(models.CartLine{MenuItemID: "chai", Quantity: 1}), "slot-1", "")
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, 1, f.store.slot("slot-1").CurrentOrders)
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	f := newOrderingFixture(t)
	number, err := f.svc.generateOrderNumber(time.UnixMilli(1700000000000))
	require.NoError(t, err)
	parts := strings.Split(number, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "ORD", parts[0])
	assert.Equal(t, "LOYW3V28", parts[1])
	assert.Len(t, parts[2], 4)
}

func placeTestOrder(t *testing.T, f orderingFixture) *models.CanteenOrder {
	t.Helper()
	order, err := f.svc.PlaceOrder(context.Background(), eater.UserID, cartOf(models.CartLine{MenuItemID: "dosa", Quantity: 1}), "slot-1", "")
	require.NoError(t, err)
	return order
}

func TestAdvanceStatusFollowsGraph(t *testing.T) {
	f := newOrderingFixture(t)
	ctx := context.Background()
	order := placeTestOrder(t, f)

	_, err := f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusReady, staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	stored, _ := f.store.GetByID(ctx, order.ID)
	assert.Equal(t, models.OrderStatusConfirmed, stored.Status)

	_, err = f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusPreparing, eater)
	assert.True(t, appErrors.Is(err, appErrors.ErrPermissionDenied))

	got, err := f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusPreparing, staff)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, got.Status)

	_, err = f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusConfirmed, staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))

	got, err = f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusReady, staff)
	require.NoError(t, err)
	assert.Nil(t, got.CollectedAt)

	got, err = f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusCollected, staff)
	require.NoError(t, err)
	require.NotNil(t, got.CollectedAt)

	_, err = f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusCancelled, staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.svc.AdvanceStatus(ctx, "missing", models.OrderStatusPreparing, staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestCancelKeepsSlotCounter(t *testing.T) {
	f := newOrderingFixture(t)
	order := placeTestOrder(t, f)

	got, err := f.svc.AdvanceStatus(context.Background(), order.ID, models.OrderStatusCancelled, staff)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.Equal(t, 1, f.store.slot("slot-1").CurrentOrders)
}

func TestCollect(t *testing.T) {
	f := newOrderingFixture(t)
	ctx := context.Background()
	order := placeTestOrder(t, f)

	_, err := f.svc.Collect(ctx, "ORD-UNKNOWN", staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Collect(ctx, order.OrderNumber, staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotReady))

	for _, s := range []models.OrderStatus{models.OrderStatusPreparing, models.OrderStatusReady} {
		_, err = f.svc.AdvanceStatus(ctx, order.ID, s, staff)
		require.NoError(t, err)
	}

	got, err := f.svc.Collect(ctx, order.QRCode, staff)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCollected, got.Status)
	assert.NotNil(t, got.CollectedAt)

	_, err = f.svc.Collect(ctx, strings.ToLower(order.OrderNumber), staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyCollected))
	_, err = f.svc.Collect(ctx, order.ID, staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyCollected))

	_, err = f.svc.Collect(ctx, "{not json", staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTransitionLosesRace(t *testing.T) {
	f := newOrderingFixture(t)
	ctx := context.Background()
	order := placeTestOrder(t, f)

	stale := *order
	_, err := f.svc.AdvanceStatus(ctx, order.ID, models.OrderStatusPreparing, staff)
	require.NoError(t, err)

	_, err = f.svc.transition(ctx, &stale, models.OrderStatusPreparing, staff.UserID)
	assert.True(t, appErrors.Is(err, appErrors.ErrConcurrentModification))
}

func TestOrderLogRecordsEachTransition(t *testing.T) {
	f := newOrderingFixture(t)
	ctx := context.Background()
	order := placeTestOrder(t, f)

	for _, target := range []models.OrderStatus{models.OrderStatusPreparing, models.OrderStatusReady} {
		_, err := f.svc.AdvanceStatus(ctx, order.ID, target, staff)
		require.NoError(t, err)
	}
	_, err := f.svc.Collect(ctx, order.OrderNumber, staff)
	require.NoError(t, err)

	logs, err := f.svc.OrderLog(ctx, order.ID, eater)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.OrderStatusConfirmed, logs[0].FromStatus)
	assert.Equal(t, models.OrderStatusCollected, logs[2].ToStatus)
	for _, l := range logs {
		assert.Equal(t, staff.UserID, l.ChangedBy)
	}

	staffView, err := f.svc.OrderLog(ctx, order.ID, staff)
	require.NoError(t, err)
	assert.Len(t, staffView, 3)

	stranger := Actor{UserID: "stu-2", Roles: []models.UserRole{models.RoleStudent}}
	_, err = f.svc.OrderLog(ctx, order.ID, stranger)
	assert.True(t, appErrors.Is(err, appErrors.ErrPermissionDenied))

	_, err = f.svc.OrderLog(ctx, "missing", staff)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestListMineAndForDay(t *testing.T) {
	f := newOrderingFixture(t)
	placeTestOrder(t, f)

	mine, err := f.svc.ListMine(context.Background(), eater.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, _, err = f.svc.ListForDay(context.Background(), dto.OrderListQuery{Status: "lost"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, _, err = f.svc.ListForDay(context.Background(), dto.OrderListQuery{Date: "01-03-2026"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	all, page, err := f.svc.ListForDay(context.Background(), dto.OrderListQuery{Status: "confirmed"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 100, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)

	file, err := f.svc.ExportDay(context.Background(), "2026-03-01", "csv")
	require.NoError(t, err)
	assert.Equal(t, "orders-2026-03-01.csv", file.Filename)
}

func TestCanteenAnalytics(t *testing.T) {
	f := newOrderingFixture(t)
	f.svc.cache = NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	f.stats.counts = []models.StatusCount{
		{Status: models.OrderStatusConfirmed, Count: 3, Revenue: 300},
		{Status: models.OrderStatusCancelled, Count: 1, Revenue: 50},
	}
	f.stats.demand = []models.ItemDemand{{Name: "Masala Dosa", Quantity: 5}, {Name: "Unknown", Quantity: 1}}
	f.stats.slots = []models.SlotDistribution{
		{SlotID: "slot-1", Slot: "12:30", Orders: 2, Capacity: 3},
		{SlotID: "slot-2", Slot: "13:00", Orders: 0, Capacity: 0},
	}
	ctx := context.Background()

	stats, hit, err := f.svc.OrderStats(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 300.0, stats.Revenue)
	assert.Equal(t, 3, stats.ByStatus[models.OrderStatusConfirmed])
	assert.Equal(t, 0, stats.ByStatus[models.OrderStatusReady])

	slots, _, err := f.svc.SlotDistribution(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 67, slots[0].Percentage)
	assert.Equal(t, 0, slots[1].Percentage)

	dash, hit, err := f.svc.Dashboard(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Masala Dosa", dash.Demand[0].Name)
	calls := f.stats.calls

	_, hit, err = f.svc.Dashboard(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, calls, f.stats.calls)

	placeTestOrder(t, f)
	_, hit, err = f.svc.OrderStats(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.False(t, hit)
}

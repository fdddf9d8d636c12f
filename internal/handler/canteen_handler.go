package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/service"
	"github.com/noah-isme/campus-hub-api/pkg/response"
)

type orderingService interface {
	PlaceOrder(ctx context.Context, studentID string, cart *models.Cart, timeSlotID, notes string) (*models.CanteenOrder, error)
	AdvanceStatus(ctx context.Context, orderID string, target models.OrderStatus, staff service.Actor) (*models.CanteenOrder, error)
	Collect(ctx context.Context, code string, staff service.Actor) (*models.CanteenOrder, error)
	ListMine(ctx context.Context, studentID string) ([]models.CanteenOrder, error)
	OrderLog(ctx context.Context, orderID string, actor service.Actor) ([]models.OrderLog, error)
	ListForDay(ctx context.Context, query dto.OrderListQuery) ([]models.CanteenOrder, *models.Pagination, error)
	ExportDay(ctx context.Context, rawDay, format string) (*service.ExportFile, error)
	OrderStats(ctx context.Context, rawDay string) (models.OrderStats, bool, error)
	ItemDemand(ctx context.Context, rawDay string) ([]models.ItemDemand, bool, error)
	SlotDistribution(ctx context.Context, rawDay string) ([]models.SlotDistribution, bool, error)
	Dashboard(ctx context.Context, rawDay string) (*dto.CanteenDashboard, bool, error)
}

type menuService interface {
	ListMenu(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error)
	CreateItem(ctx context.Context, req dto.MenuItemRequest) (*models.MenuItem, error)
	UpdateItem(ctx context.Context, id string, req dto.MenuItemRequest) (*models.MenuItem, error)
	SetAvailability(ctx context.Context, id string, available bool) error
	DeleteItem(ctx context.Context, id string) error
	ListSlots(ctx context.Context, rawDay string, activeOnly bool) ([]models.TimeSlot, error)
	CreateSlot(ctx context.Context, req dto.TimeSlotRequest) (*models.TimeSlot, error)
	SetSlotActive(ctx context.Context, id string, active bool) error
}

// CanteenHandler serves the student-facing canteen endpoints.
type CanteenHandler struct {
	orders orderingService
	menu   menuService
}

// NewCanteenHandler constructs the handler.
func NewCanteenHandler(orders orderingService, menu menuService) *CanteenHandler {
	return &CanteenHandler{orders: orders, menu: menu}
}

// Menu godoc
// @Summary Available menu items
// @Tags Canteen
// @Produce json
// @Param category query string false "Category"
// @Param q query string false "Search"
// @Success 200 {object} response.Envelope
// @Router /canteen/menu [get]
func (h *CanteenHandler) Menu(c *gin.Context) {
	items, err := h.menu.ListMenu(c.Request.Context(), models.MenuFilter{
		Category:      strings.TrimSpace(c.Query("category")),
		Search:        c.Query("q"),
		AvailableOnly: true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Slots godoc
// @Summary Active pickup slots for a day
// @Tags Canteen
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Router /canteen/slots [get]
func (h *CanteenHandler) Slots(c *gin.Context) {
	slots, err := h.menu.ListSlots(c.Request.Context(), c.Query("date"), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// PlaceOrder godoc
// @Summary Place the cart as an order for a pickup slot
// @Tags Canteen
// @Accept json
// @Produce json
// @Param payload body dto.PlaceOrderRequest true "Cart"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /canteen/orders [post]
func (h *CanteenHandler) PlaceOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.PlaceOrderRequest
	if !bindJSON(c, &req, "invalid order payload") {
		return
	}
	cart := models.CartFromLines(req.Items)
	order, err := h.orders.PlaceOrder(c.Request.Context(), actor.UserID, cart, req.TimeSlotID, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// OrderLog godoc
// @Summary Status changes of an order, oldest first
// @Tags Canteen
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /canteen/orders/{id}/log [get]
func (h *CanteenHandler) OrderLog(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	logs, err := h.orders.OrderLog(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// MyOrders godoc
// @Summary The caller's recent orders
// @Tags Canteen
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /canteen/orders/mine [get]
func (h *CanteenHandler) MyOrders(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	orders, err := h.orders.ListMine(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, nil)
}

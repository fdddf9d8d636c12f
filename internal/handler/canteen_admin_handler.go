package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	"github.com/noah-isme/campus-hub-api/pkg/response"
)

// CanteenAdminHandler serves the canteen staff console.
type CanteenAdminHandler struct {
	orders orderingService
	menu   menuService
}

// NewCanteenAdminHandler constructs the handler.
func NewCanteenAdminHandler(orders orderingService, menu menuService) *CanteenAdminHandler {
	return &CanteenAdminHandler{orders: orders, menu: menu}
}

// Orders godoc
// @Summary Orders for a day
// @Tags Canteen Admin
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Param status query string false "Order status"
// @Param slot_id query string false "Time slot"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/orders [get]
func (h *CanteenAdminHandler) Orders(c *gin.Context) {
	var query dto.OrderListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	orders, page, err := h.orders.ListForDay(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, page)
}

// ExportOrders godoc
// @Summary Download a day's orders
// @Tags Canteen Admin
// @Produce octet-stream
// @Param date query string false "YYYY-MM-DD"
// @Param format query string false "csv, xlsx or pdf"
// @Success 200 {file} file
// @Router /canteen/admin/orders/export [get]
func (h *CanteenAdminHandler) ExportOrders(c *gin.Context) {
	file, err := h.orders.ExportDay(c.Request.Context(), c.Query("date"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// UpdateStatus godoc
// @Summary Move an order one step or cancel it
// @Tags Canteen Admin
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.UpdateOrderStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /canteen/admin/orders/{id}/status [post]
func (h *CanteenAdminHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateOrderStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	target, valid := models.ParseOrderStatus(req.Status)
	if !valid {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown order status "+req.Status))
		return
	}
	order, err := h.orders.AdvanceStatus(c.Request.Context(), c.Param("id"), target, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// Collect godoc
// @Summary Hand over a ready order
// @Tags Canteen Admin
// @Accept json
// @Produce json
// @Param payload body dto.CollectOrderRequest true "Order number or scanned QR"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /canteen/admin/collect [post]
func (h *CanteenAdminHandler) Collect(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CollectOrderRequest
	if !bindJSON(c, &req, "invalid collect payload") {
		return
	}
	order, err := h.orders.Collect(c.Request.Context(), req.Code, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// Stats godoc
// @Summary Order counts per status and revenue for a day
// @Tags Canteen Admin
// @Produce json
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/stats [get]
func (h *CanteenAdminHandler) Stats(c *gin.Context) {
	stats, hit, err := h.orders.OrderStats(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, withCacheMeta(c, hit))
}

// Demand godoc
// @Summary Quantity ordered per item for a day
// @Tags Canteen Admin
// @Produce json
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/demand [get]
func (h *CanteenAdminHandler) Demand(c *gin.Context) {
	demand, hit, err := h.orders.ItemDemand(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, demand, nil, withCacheMeta(c, hit))
}

// Distribution godoc
// @Summary Slot occupancy for a day
// @Tags Canteen Admin
// @Produce json
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/distribution [get]
func (h *CanteenAdminHandler) Distribution(c *gin.Context) {
	slots, hit, err := h.orders.SlotDistribution(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil, withCacheMeta(c, hit))
}

// Dashboard godoc
// @Summary Stats, demand and occupancy in one payload
// @Tags Canteen Admin
// @Produce json
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/dashboard [get]
func (h *CanteenAdminHandler) Dashboard(c *gin.Context) {
	dash, hit, err := h.orders.Dashboard(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dash, nil, withCacheMeta(c, hit))
}

// Menu godoc
// @Summary Full menu including unavailable items
// @Tags Canteen Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/menu [get]
func (h *CanteenAdminHandler) Menu(c *gin.Context) {
	items, err := h.menu.ListMenu(c.Request.Context(), models.MenuFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Search:   c.Query("q"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateItem godoc
// @Summary Add a menu item
// @Tags Canteen Admin
// @Accept json
// @Produce json
// @Param payload body dto.MenuItemRequest true "Menu item"
// @Success 201 {object} response.Envelope
// @Router /canteen/admin/menu [post]
func (h *CanteenAdminHandler) CreateItem(c *gin.Context) {
	var req dto.MenuItemRequest
	if !bindJSON(c, &req, "invalid menu item payload") {
		return
	}
	item, err := h.menu.CreateItem(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateItem godoc
// @Summary Replace a menu item
// @Tags Canteen Admin
// @Accept json
// @Produce json
// @Param id path string true "Menu item ID"
// @Param payload body dto.MenuItemRequest true "Menu item"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/menu/{id} [put]
func (h *CanteenAdminHandler) UpdateItem(c *gin.Context) {
	var req dto.MenuItemRequest
	if !bindJSON(c, &req, "invalid menu item payload") {
		return
	}
	item, err := h.menu.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// SetAvailability godoc
// @Summary Toggle a menu item
// @Tags Canteen Admin
// @Accept json
// @Param id path string true "Menu item ID"
// @Param payload body dto.AvailabilityRequest true "Availability"
// @Success 204
// @Router /canteen/admin/menu/{id}/availability [post]
func (h *CanteenAdminHandler) SetAvailability(c *gin.Context) {
	var req dto.AvailabilityRequest
	if !bindJSON(c, &req, "invalid availability payload") {
		return
	}
	if err := h.menu.SetAvailability(c.Request.Context(), c.Param("id"), req.IsAvailable); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteItem godoc
// @Summary Delete an unreferenced menu item
// @Tags Canteen Admin
// @Param id path string true "Menu item ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /canteen/admin/menu/{id} [delete]
func (h *CanteenAdminHandler) DeleteItem(c *gin.Context) {
	if err := h.menu.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Slots godoc
// @Summary All pickup slots for a day
// @Tags Canteen Admin
// @Produce json
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /canteen/admin/slots [get]
func (h *CanteenAdminHandler) Slots(c *gin.Context) {
	slots, err := h.menu.ListSlots(c.Request.Context(), c.Query("date"), false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// CreateSlot godoc
// @Summary Add a pickup slot
// @Tags Canteen Admin
// @Accept json
// @Produce json
// @Param payload body dto.TimeSlotRequest true "Slot"
// @Success 201 {object} response.Envelope
// @Router /canteen/admin/slots [post]
func (h *CanteenAdminHandler) CreateSlot(c *gin.Context) {
	var req dto.TimeSlotRequest
	if !bindJSON(c, &req, "invalid time slot payload") {
		return
	}
	slot, err := h.menu.CreateSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// ToggleSlot godoc
// @Summary Open or close a slot for new orders
// @Tags Canteen Admin
// @Param id path string true "Slot ID"
// @Param active query bool true "Active"
// @Success 204
// @Router /canteen/admin/slots/{id}/toggle [post]
func (h *CanteenAdminHandler) ToggleSlot(c *gin.Context) {
	raw := strings.ToLower(strings.TrimSpace(c.Query("active")))
	if raw != "true" && raw != "false" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
		return
	}
	if err := h.menu.SetSlotActive(c.Request.Context(), c.Param("id"), raw == "true"); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

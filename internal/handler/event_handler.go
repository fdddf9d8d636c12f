package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/service"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	"github.com/noah-isme/campus-hub-api/pkg/response"
)

type approvalService interface {
	SubmitEvent(ctx context.Context, req dto.SubmitEventRequest, actor service.Actor) (*models.Event, error)
	Approve(ctx context.Context, eventID string, actor service.Actor, comments string) (*models.Event, error)
	Reject(ctx context.Context, eventID string, actor service.Actor, reason string) (*models.Event, error)
	ListPending(ctx context.Context, actor service.Actor) ([]models.Event, error)
	History(ctx context.Context, eventID string) ([]models.ApprovalHistoryEntry, error)
	Get(ctx context.Context, eventID string) (*models.Event, error)
	ListApproved(ctx context.Context, query dto.EventListQuery) ([]models.Event, *models.Pagination, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error)
	Cancel(ctx context.Context, eventID string, actor service.Actor) (*models.Event, error)
	CloseRegistration(ctx context.Context, eventID string, actor service.Actor) (*models.Event, error)
}

// EventHandler exposes event submission, browsing and the approval chain.
type EventHandler struct {
	service approvalService
}

// NewEventHandler constructs the handler.
func NewEventHandler(svc approvalService) *EventHandler {
	return &EventHandler{service: svc}
}

// Submit godoc
// @Summary Submit an event for approval
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.SubmitEventRequest true "Event"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitEventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.service.SubmitEvent(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// List godoc
// @Summary Browse approved events
// @Tags Events
// @Produce json
// @Param department query string false "Department"
// @Param category query string false "Category"
// @Param q query string false "Search title or description"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var query dto.EventListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	events, page, err := h.service.ListApproved(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, page)
}

// Mine godoc
// @Summary List the caller's own events
// @Tags Events
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /events/mine [get]
func (h *EventHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	events, err := h.service.ListByOrganizer(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Pending godoc
// @Summary Events awaiting the caller's decision
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /events/pending [get]
func (h *EventHandler) Pending(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	events, err := h.service.ListPending(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Get godoc
// @Summary Event detail with approval history
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	event, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	history, err := h.service.History(ctx, event.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.EventDetail{Event: *event, History: history}, nil)
}

// History godoc
// @Summary Approval history, oldest first
// @Tags Approvals
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/history [get]
func (h *EventHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Approve godoc
// @Summary Approve the event at its current level
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.ApproveEventRequest false "Comments"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/approve [post]
func (h *EventHandler) Approve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ApproveEventRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid approval payload") {
		return
	}
	event, err := h.service.Approve(c.Request.Context(), c.Param("id"), actor, req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Reject godoc
// @Summary Reject the event
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.RejectEventRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/reject [post]
func (h *EventHandler) Reject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RejectEventRequest
	if !bindJSON(c, &req, "invalid rejection payload") {
		return
	}
	event, err := h.service.Reject(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Cancel godoc
// @Summary Cancel a pending or approved event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/cancel [post]
func (h *EventHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	event, err := h.service.Cancel(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// CloseRegistration godoc
// @Summary Stop accepting registrations
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/close-registration [post]
func (h *EventHandler) CloseRegistration(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	event, err := h.service.CloseRegistration(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

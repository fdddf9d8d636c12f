package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/service"
	"github.com/noah-isme/campus-hub-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, eventID, userID string) (*dto.RegistrationResponse, error)
	VerifyTicket(ctx context.Context, token string) (*models.RegistrationDetail, error)
	CheckIn(ctx context.Context, token string, scanner service.Actor) (*models.RegistrationDetail, error)
	ListMine(ctx context.Context, userID string) ([]models.RegistrationDetail, error)
	ListForEvent(ctx context.Context, eventID string, actor service.Actor) (*models.Event, []models.RegistrationDetail, error)
	ExportForEvent(ctx context.Context, eventID string, actor service.Actor, format string) (*service.ExportFile, error)
}

// RegistrationHandler serves event registration and ticket endpoints.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Register godoc
// @Summary Register for an approved event
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	res, err := h.service.Register(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ListForEvent godoc
// @Summary Attendee list for an event
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/registrations [get]
func (h *RegistrationHandler) ListForEvent(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	_, list, err := h.service.ListForEvent(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Export godoc
// @Summary Download the attendee list
// @Tags Registrations
// @Produce octet-stream
// @Param id path string true "Event ID"
// @Param format query string false "csv, xlsx or pdf"
// @Success 200 {file} file
// @Router /events/{id}/registrations/export [get]
func (h *RegistrationHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	file, err := h.service.ExportForEvent(c.Request.Context(), c.Param("id"), actor, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Mine godoc
// @Summary The caller's registrations
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrations/mine [get]
func (h *RegistrationHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	list, err := h.service.ListMine(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Verify godoc
// @Summary Check a scanned registration ticket
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.VerifyTicketRequest true "Ticket token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/verify [post]
func (h *RegistrationHandler) Verify(c *gin.Context) {
	var req dto.VerifyTicketRequest
	if !bindJSON(c, &req, "token is required") {
		return
	}
	detail, err := h.service.VerifyTicket(c.Request.Context(), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// CheckIn godoc
// @Summary Record attendance for a scanned ticket
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.VerifyTicketRequest true "Ticket token"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Already checked in"
// @Router /registrations/check-in [post]
func (h *RegistrationHandler) CheckIn(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.VerifyTicketRequest
	if !bindJSON(c, &req, "token is required") {
		return
	}
	detail, err := h.service.CheckIn(c.Request.Context(), req.Token, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/repository"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	"github.com/noah-isme/campus-hub-api/pkg/ticket"
)

const registrationTicketKind = "registration"

type registrationRepository interface {
	Create(ctx context.Context, reg *models.Registration, capacity int) error
	GetByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	FindByEventAndUser(ctx context.Context, eventID, userID string) (*models.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]models.RegistrationDetail, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.RegistrationDetail, error)
	CheckIn(ctx context.Context, a *models.Attendance) error
}

type registrationEventReader interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

type ticketSigner interface {
	Sign(kind, subject string, payload interface{}) (string, time.Time, error)
	Verify(token string) (*ticket.Claims, error)
}

// RegistrationService registers attendees for approved events and issues
// signed QR tickets.
type RegistrationService struct {
	registrations registrationRepository
	events        registrationEventReader
	profiles      ProfileLookup
	roles         RoleResolver
	signer        ticketSigner
	exporter      *ExportService
	notifier      Notifier
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// RegistrationServiceConfig holds optional collaborators.
type RegistrationServiceConfig struct {
	Profiles ProfileLookup
	Roles    RoleResolver
	Exporter *ExportService
	Notifier Notifier
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(registrations registrationRepository, events registrationEventReader, signer ticketSigner, cfg RegistrationServiceConfig) *RegistrationService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Exporter == nil {
		cfg.Exporter = NewExportService(nil, nil, cfg.Logger)
	}
	return &RegistrationService{
		registrations: registrations,
		events:        events,
		profiles:      cfg.Profiles,
		roles:         cfg.Roles,
		signer:        signer,
		exporter:      cfg.Exporter,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Register creates the user's single registration for an approved, open event.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*dto.RegistrationResponse, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusApproved {
		s.metrics.RecordRegistration("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "event is not open for registration")
	}
	if !event.RegistrationOpen {
		s.metrics.RecordRegistration("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "registration is closed")
	}

	attendee := models.TicketAttendee{ID: userID}
	if s.profiles != nil {
		profiles, err := s.profiles.FindProfiles(ctx, []string{userID})
		if err != nil {
			s.logger.Warn("attendee profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		} else if p, ok := profiles[userID]; ok {
			attendee.Name, attendee.Email = p.FullName, p.Email
		}
	}

	now := s.now().UTC()
	reg := &models.Registration{
		ID:           uuid.NewString(),
		EventID:      event.ID,
		UserID:       userID,
		RegisteredAt: now,
	}
	tkt := models.RegistrationTicket{
		RegistrationID: reg.ID,
		Event: models.TicketEvent{
			ID:    event.ID,
			Title: event.Title,
			Date:  event.EventDate,
			Time:  event.EventTime,
			Venue: event.Venue,
		},
		Attendee:     attendee,
		RegisteredAt: now,
	}
	qr, err := json.Marshal(tkt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode ticket")
	}
	reg.QRCode = string(qr)
	if s.signer != nil {
		token, _, err := s.signer.Sign(registrationTicketKind, reg.ID, tkt)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign ticket")
		}
		reg.TicketToken = token
	}

	if err := s.registrations.Create(ctx, reg, event.MaxParticipants); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRegistration):
			s.metrics.RecordRegistration("duplicate")
			return nil, appErrors.Clone(appErrors.ErrAlreadyRegistered, "you are already registered for this event")
		case errors.Is(err, repository.ErrEventFull):
			s.metrics.RecordRegistration("full")
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "event is full")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register")
		}
	}
	s.metrics.RecordRegistration("created")

	if s.notifier != nil {
		s.notifier.Notify(ctx, models.NotifyRegistrationConfirmed, userID, map[string]interface{}{
			"event_id":        event.ID,
			"title":           event.Title,
			"registration_id": reg.ID,
			"email":           attendee.Email,
		})
	}
	return &dto.RegistrationResponse{Registration: *reg, Ticket: tkt}, nil
}

// IsRegistered reports whether the user holds a registration for the event.
func (s *RegistrationService) IsRegistered(ctx context.Context, eventID, userID string) (bool, error) {
	reg, err := s.registrations.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	return reg != nil, nil
}

// VerifyTicket resolves a scanned ticket token to its registration.
func (s *RegistrationService) VerifyTicket(ctx context.Context, token string) (*models.RegistrationDetail, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "ticket verification is not configured")
	}
	claims, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, ticket.ErrExpired) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "ticket has expired")
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "ticket is invalid")
	}
	if claims.Kind != registrationTicketKind {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ticket is invalid")
	}
	detail, err := s.registrations.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return detail, nil
}

// CheckIn verifies a scanned ticket and records attendance. The scanner must
// organize the event or hold the faculty or admin role. Each ticket checks
// in once.
func (s *RegistrationService) CheckIn(ctx context.Context, token string, scanner Actor) (*models.RegistrationDetail, error) {
	detail, err := s.VerifyTicket(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, detail.EventID)
	if err != nil {
		return nil, err
	}
	roles, err := verifyRoles(ctx, s.roles, scanner)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != scanner.UserID && !models.HasAnyRole(roles, models.RoleFaculty, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only the organizer may check in attendees")
	}
	if event.Status != models.EventStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "event is "+string(event.Status))
	}
	if detail.CheckedInAt != nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyCheckedIn, "ticket was checked in at "+detail.CheckedInAt.Format(time.RFC3339))
	}

	attendance := &models.Attendance{
		RegistrationID: detail.ID,
		EventID:        detail.EventID,
		UserID:         detail.UserID,
		CheckedInBy:    scanner.UserID,
		CheckedInAt:    s.now().UTC(),
	}
	if err := s.registrations.CheckIn(ctx, attendance); err != nil {
		if errors.Is(err, repository.ErrAlreadyCheckedIn) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyCheckedIn, "ticket was already checked in")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	detail.CheckedInAt = &attendance.CheckedInAt
	s.logger.Info("attendee checked in",
		zap.String("registration_id", detail.ID),
		zap.String("event_id", detail.EventID),
		zap.String("scanner", scanner.UserID),
	)
	return detail, nil
}

// ListMine returns the user's registrations.
func (s *RegistrationService) ListMine(ctx context.Context, userID string) ([]models.RegistrationDetail, error) {
	list, err := s.registrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	if list == nil {
		list = []models.RegistrationDetail{}
	}
	return list, nil
}

// ListForEvent returns the attendee list to the organizer or an admin.
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID string, actor Actor) (*models.Event, []models.RegistrationDetail, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	roles, err := verifyRoles(ctx, s.roles, actor)
	if err != nil {
		return nil, nil, err
	}
	if event.OrganizerID != actor.UserID && !models.HasAnyRole(roles, models.RoleAdmin) {
		return nil, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only the organizer may view attendees")
	}
	list, err := s.registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendees")
	}
	if list == nil {
		list = []models.RegistrationDetail{}
	}
	return event, list, nil
}

// ExportForEvent renders the attendee list in the requested format.
func (s *RegistrationService) ExportForEvent(ctx context.Context, eventID string, actor Actor, format string) (*ExportFile, error) {
	event, list, err := s.ListForEvent(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}
	return s.exporter.Registrations(event, list, format)
}

func (s *RegistrationService) loadEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

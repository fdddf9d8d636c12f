package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-hub-api/internal/dto"
	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/repository"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	applog "github.com/noah-isme/campus-hub-api/pkg/logger"
)

type approvalEventRepository interface {
	CreateWithHistory(ctx context.Context, event *models.Event, entry *models.ApprovalHistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	Count(ctx context.Context, filter models.EventFilter) (int, error)
	ApplyTransition(ctx context.Context, t models.EventTransition) error
	UpdateStatus(ctx context.Context, id string, from []models.EventStatus, to models.EventStatus) error
	SetRegistrationOpen(ctx context.Context, id string, open bool) error
	History(ctx context.Context, eventID string) ([]models.ApprovalHistoryEntry, error)
}

// RoleResolver returns the role set a user currently holds.
type RoleResolver interface {
	RolesFor(ctx context.Context, userID string) ([]models.UserRole, error)
}

// ProfileLookup resolves display profiles for user ids.
type ProfileLookup interface {
	FindProfiles(ctx context.Context, ids []string) (map[string]models.UserProfile, error)
}

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID string
	Roles  []models.UserRole
}

// ActorFromClaims builds an Actor from access token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Roles: claims.Roles}
}

// ApprovalService is the event approval engine. Every approval advances
// exactly one level; rejection is final from any pending level.
type ApprovalService struct {
	events    approvalEventRepository
	roles     RoleResolver
	profiles  ProfileLookup
	notifier  Notifier
	feed      *ChangeFeed
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ApprovalServiceConfig holds the collaborators of ApprovalService.
type ApprovalServiceConfig struct {
	Roles     RoleResolver
	Profiles  ProfileLookup
	Notifier  Notifier
	Feed      *ChangeFeed
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewApprovalService constructs the approval engine.
func NewApprovalService(events approvalEventRepository, cfg ApprovalServiceConfig) *ApprovalService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	return &ApprovalService{
		events:    events,
		roles:     cfg.Roles,
		profiles:  cfg.Profiles,
		notifier:  cfg.Notifier,
		feed:      cfg.Feed,
		metrics:   cfg.Metrics,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// SubmitEvent creates an event at pending_faculty and logs the submission.
func (s *ApprovalService) SubmitEvent(ctx context.Context, req dto.SubmitEventRequest, actor Actor) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	date, err := time.Parse("2006-01-02", req.EventDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "event_date must be YYYY-MM-DD")
	}
	roles, err := s.verifiedRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !models.HasAnyRole(roles, models.RoleOrganizer, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only organizers may submit events")
	}

	now := s.now().UTC()
	event := &models.Event{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		EventDate:       date,
		EventTime:       req.EventTime,
		Venue:           req.Venue,
		Department:      req.Department,
		Category:        req.Category,
		MaxParticipants: req.MaxParticipants,
		OrganizerID:     actor.UserID,
		Status:          models.EventStatusPending,
		ApprovalLevel:   models.LevelPendingFaculty,
		CreatedAt:       now,
	}
	entry := &models.ApprovalHistoryEntry{
		Action:      models.HistorySubmitted,
		ToLevel:     models.LevelPendingFaculty,
		PerformedBy: actor.UserID,
		CreatedAt:   now,
	}
	if err := s.events.CreateWithHistory(ctx, event, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit event")
	}

	s.metrics.RecordApprovalTransition(models.HistorySubmitted, "", models.LevelPendingFaculty)
	s.feed.Publish(ctx, models.ChangeEvent{
		Table:     models.FeedEvents,
		Type:      models.ChangeInsert,
		ID:        event.ID,
		NewStatus: string(event.ApprovalLevel),
		UserID:    event.OrganizerID,
	})
	return event, nil
}

// Approve advances the event one level. The actor must hold a role whose
// capability set contains the current level.
func (s *ApprovalService) Approve(ctx context.Context, eventID string, actor Actor, comments string) (*models.Event, error) {
	event, err := s.loadActionable(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	from := event.ApprovalLevel
	next, _ := from.Next()
	now := s.now().UTC()

	updated := *event
	updated.StampApproval(from, actor.UserID, now)
	updated.ApprovalLevel = next
	if next == models.LevelApproved {
		updated.Status = models.EventStatusApproved
		updated.RegistrationOpen = true
	}

	entry := &models.ApprovalHistoryEntry{
		EventID:     event.ID,
		Action:      models.HistoryApproved,
		FromLevel:   &from,
		ToLevel:     next,
		PerformedBy: actor.UserID,
		Comments:    optionalText(comments),
		CreatedAt:   now,
	}
	if err := s.apply(ctx, &updated, from, entry); err != nil {
		return nil, err
	}

	kind := models.NotifyEventForwarded
	if next == models.LevelApproved {
		kind = models.NotifyEventApproved
	}
	s.afterTransition(ctx, &updated, from, entry, kind)
	return &updated, nil
}

// Reject terminates the approval chain with a reason.
func (s *ApprovalService) Reject(ctx context.Context, eventID string, actor Actor, reason string) (*models.Event, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	event, err := s.loadActionable(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	from := event.ApprovalLevel
	now := s.now().UTC()

	updated := *event
	updated.ApprovalLevel = models.LevelRejected
	updated.Status = models.EventStatusRejected
	updated.RegistrationOpen = false
	updated.RejectionReason = &reason

	entry := &models.ApprovalHistoryEntry{
		EventID:     event.ID,
		Action:      models.HistoryRejected,
		FromLevel:   &from,
		ToLevel:     models.LevelRejected,
		PerformedBy: actor.UserID,
		Comments:    &reason,
		CreatedAt:   now,
	}
	if err := s.apply(ctx, &updated, from, entry); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, &updated, from, entry, models.NotifyEventRejected)
	return &updated, nil
}

// ListPending returns events the actor may act on, newest submission first.
func (s *ApprovalService) ListPending(ctx context.Context, actor Actor) ([]models.Event, error) {
	roles, err := s.verifiedRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	levels := models.ActionableLevels(roles...)
	if len(levels) == 0 {
		return []models.Event{}, nil
	}
	events, err := s.events.List(ctx, models.EventFilter{
		Levels:   levels,
		Statuses: []models.EventStatus{models.EventStatusPending},
		Limit:    200,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending events")
	}
	return nonNilEvents(events), nil
}

// History returns the approval log oldest first, annotated with performer
// names. A failed profile lookup leaves names empty.
func (s *ApprovalService) History(ctx context.Context, eventID string) ([]models.ApprovalHistoryEntry, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	entries, err := s.events.History(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval history")
	}
	if entries == nil {
		entries = []models.ApprovalHistoryEntry{}
	}
	if s.profiles == nil || len(entries) == 0 {
		return entries, nil
	}

	ids := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.PerformedBy]; ok {
			continue
		}
		seen[e.PerformedBy] = struct{}{}
		ids = append(ids, e.PerformedBy)
	}
	profiles, err := s.profiles.FindProfiles(ctx, ids)
	if err != nil {
		applog.WithContext(ctx, s.logger).Warn("history profile lookup failed", zap.String("event_id", eventID), zap.Error(err))
		return entries, nil
	}
	for i := range entries {
		entries[i].PerformedByName = profiles[entries[i].PerformedBy].FullName
	}
	return entries, nil
}

// Get returns a single event.
func (s *ApprovalService) Get(ctx context.Context, eventID string) (*models.Event, error) {
	return s.getEvent(ctx, eventID)
}

// ListApproved returns approved events for browsing.
func (s *ApprovalService) ListApproved(ctx context.Context, query dto.EventListQuery) ([]models.Event, *models.Pagination, error) {
	page, size := normalizePage(query.Page, query.PageSize, 20, 100)
	filter := models.EventFilter{
		Statuses:   []models.EventStatus{models.EventStatusApproved},
		Department: query.Department,
		Category:   query.Category,
		Search:     strings.TrimSpace(query.Search),
		Limit:      size,
		Offset:     (page - 1) * size,
	}
	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	total, err := s.events.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count events")
	}
	return nonNilEvents(events), &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListByOrganizer returns the organizer's own events in every state.
func (s *ApprovalService) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	events, err := s.events.List(ctx, models.EventFilter{OrganizerID: organizerID, Limit: 200})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organizer events")
	}
	return nonNilEvents(events), nil
}

// Cancel marks a pending or approved event cancelled. approval_level is left
// as recorded.
func (s *ApprovalService) Cancel(ctx context.Context, eventID string, actor Actor) (*models.Event, error) {
	event, err := s.ownedEvent(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPending && event.Status != models.EventStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "event can no longer be cancelled")
	}
	from := event.Status
	err = s.events.UpdateStatus(ctx, event.ID, []models.EventStatus{models.EventStatusPending, models.EventStatusApproved}, models.EventStatusCancelled)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "event changed while cancelling")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel event")
	}
	event.Status = models.EventStatusCancelled
	event.RegistrationOpen = false

	s.feed.Publish(ctx, models.ChangeEvent{
		Table:     models.FeedEvents,
		Type:      models.ChangeUpdate,
		ID:        event.ID,
		OldStatus: string(from),
		NewStatus: string(event.Status),
		UserID:    event.OrganizerID,
	})
	s.notify(ctx, models.NotifyEventCancelled, event.OrganizerID, map[string]interface{}{
		"event_id": event.ID,
		"title":    event.Title,
	})
	return event, nil
}

// CloseRegistration stops new registrations for an approved event.
func (s *ApprovalService) CloseRegistration(ctx context.Context, eventID string, actor Actor) (*models.Event, error) {
	event, err := s.ownedEvent(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved events take registrations")
	}
	if err := s.events.SetRegistrationOpen(ctx, event.ID, false); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "event changed while closing registration")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close registration")
	}
	event.RegistrationOpen = false
	return event, nil
}

// loadActionable applies the shared approve/reject checks in order:
// NotFound, InvalidState, PermissionDenied.
func (s *ApprovalService) loadActionable(ctx context.Context, eventID string, actor Actor) (*models.Event, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.ApprovalLevel.IsTerminal() || !event.ApprovalLevel.IsPending() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "event is already "+string(event.ApprovalLevel))
	}
	// Cancelling keeps the recorded level, so status is checked separately.
	if event.Status != models.EventStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "event is "+string(event.Status))
	}
	roles, err := s.verifiedRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !models.CanActOn(event.ApprovalLevel, roles...) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "role cannot act on "+string(event.ApprovalLevel))
	}
	return event, nil
}

func (s *ApprovalService) apply(ctx context.Context, updated *models.Event, expected models.ApprovalLevel, entry *models.ApprovalHistoryEntry) error {
	err := s.events.ApplyTransition(ctx, models.EventTransition{
		EventID:       updated.ID,
		ExpectedLevel: expected,
		Event:         updated,
		History:       entry,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStaleState) {
		return appErrors.Clone(appErrors.ErrConcurrentModification, "event approval level changed, reload and retry")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval decision")
}

func (s *ApprovalService) afterTransition(ctx context.Context, event *models.Event, from models.ApprovalLevel, entry *models.ApprovalHistoryEntry, kind models.NotificationKind) {
	s.metrics.RecordApprovalTransition(entry.Action, from, entry.ToLevel)
	s.feed.Publish(ctx, models.ChangeEvent{
		Table:     models.FeedEvents,
		Type:      models.ChangeUpdate,
		ID:        event.ID,
		OldStatus: string(from),
		NewStatus: string(entry.ToLevel),
		UserID:    event.OrganizerID,
	})
	payload := map[string]interface{}{
		"event_id":   event.ID,
		"title":      event.Title,
		"from_level": from,
		"to_level":   entry.ToLevel,
	}
	if event.RejectionReason != nil {
		payload["reason"] = *event.RejectionReason
	}
	s.notify(ctx, kind, event.OrganizerID, payload)
	s.logger.Info("event approval transition",
		zap.String("event_id", event.ID),
		zap.String("action", string(entry.Action)),
		zap.String("from", string(from)),
		zap.String("to", string(entry.ToLevel)),
		zap.String("actor", entry.PerformedBy),
	)
}

func (s *ApprovalService) notify(ctx context.Context, kind models.NotificationKind, recipient string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, kind, recipient, payload)
}

func (s *ApprovalService) getEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event id is required")
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

func (s *ApprovalService) ownedEvent(ctx context.Context, eventID string, actor Actor) (*models.Event, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	roles, err := s.verifiedRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != actor.UserID && !models.HasAnyRole(roles, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only the organizer may manage this event")
	}
	return event, nil
}

// verifiedRoles returns the claimed roles after checking each one against
// the identity collaborator.
func (s *ApprovalService) verifiedRoles(ctx context.Context, actor Actor) ([]models.UserRole, error) {
	return verifyRoles(ctx, s.roles, actor)
}

func verifyRoles(ctx context.Context, resolver RoleResolver, actor Actor) ([]models.UserRole, error) {
	if actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	claimed := models.NormalizeRoles(actor.Roles)
	if resolver == nil {
		return claimed, nil
	}
	held, err := resolver.RolesFor(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roles")
	}
	if len(claimed) == 0 {
		return models.NormalizeRoles(held), nil
	}
	for _, role := range claimed {
		if !models.HasAnyRole(held, role) {
			return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "role "+string(role)+" is not held by user")
		}
	}
	return claimed, nil
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func nonNilEvents(events []models.Event) []models.Event {
	if events == nil {
		return []models.Event{}
	}
	return events
}

func normalizePage(page, size, def, max int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}

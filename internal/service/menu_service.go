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
)

type menuRepository interface {
	List(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error)
	GetByID(ctx context.Context, id string) (*models.MenuItem, error)
	Create(ctx context.Context, item *models.MenuItem) error
	Update(ctx context.Context, item *models.MenuItem) error
	SetAvailability(ctx context.Context, id string, available bool) error
	Delete(ctx context.Context, id string) error
}

type timeSlotRepository interface {
	ListForDay(ctx context.Context, day time.Time, activeOnly bool) ([]models.TimeSlot, error)
	Create(ctx context.Context, slot *models.TimeSlot) error
	SetActive(ctx context.Context, id string, active bool) error
}

// MenuService manages the canteen menu and pickup slots.
type MenuService struct {
	menu      menuRepository
	slots     timeSlotRepository
	validator *validator.Validate
	location  *time.Location
	logger    *zap.Logger
	clock     func() time.Time
}

// NewMenuService constructs a MenuService.
func NewMenuService(menu menuRepository, slots timeSlotRepository, validate *validator.Validate, location *time.Location, logger *zap.Logger) *MenuService {
	if validate == nil {
		validate = validator.New()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MenuService{menu: menu, slots: slots, validator: validate, location: location, logger: logger, clock: time.Now}
}

// ListMenu returns menu items. Students only see available items.
func (s *MenuService) ListMenu(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	items, err := s.menu.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list menu")
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	return items, nil
}

// CreateItem adds a menu item.
func (s *MenuService) CreateItem(ctx context.Context, req dto.MenuItemRequest) (*models.MenuItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid menu item payload")
	}
	item := &models.MenuItem{IsAvailable: true}
	applyMenuRequest(item, req)
	if err := s.menu.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create menu item")
	}
	return item, nil
}

// UpdateItem replaces a menu item. Past orders keep their price snapshot.
func (s *MenuService) UpdateItem(ctx context.Context, id string, req dto.MenuItemRequest) (*models.MenuItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid menu item payload")
	}
	item, err := s.menu.GetByID(ctx, id)
	if err != nil {
		return nil, menuLookupError(err)
	}
	applyMenuRequest(item, req)
	if err := s.menu.Update(ctx, item); err != nil {
		return nil, menuLookupError(err)
	}
	return item, nil
}

// SetAvailability toggles an item on or off the menu.
func (s *MenuService) SetAvailability(ctx context.Context, id string, available bool) error {
	if err := s.menu.SetAvailability(ctx, id, available); err != nil {
		return menuLookupError(err)
	}
	return nil
}

// DeleteItem removes an item that no order references.
func (s *MenuService) DeleteItem(ctx context.Context, id string) error {
	if err := s.menu.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrInUse) {
			return appErrors.Clone(appErrors.ErrConflict, "menu item is referenced by orders; mark it unavailable instead")
		}
		return menuLookupError(err)
	}
	return nil
}

// ListSlots returns pickup slots for a day, today when raw is empty.
func (s *MenuService) ListSlots(ctx context.Context, rawDay string, activeOnly bool) ([]models.TimeSlot, error) {
	day, err := parseDay(rawDay, s.location, s.clock)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListForDay(ctx, day, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	return slots, nil
}

// CreateSlot adds an active pickup slot with no reservations.
func (s *MenuService) CreateSlot(ctx context.Context, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	day, err := parseDay(req.SlotDate, s.location, s.clock)
	if err != nil {
		return nil, err
	}
	slot := &models.TimeSlot{SlotDate: day, SlotTime: req.SlotTime, Capacity: req.Capacity, IsActive: true}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time slot")
	}
	return slot, nil
}

// SetSlotActive opens or closes a slot for new orders.
func (s *MenuService) SetSlotActive(ctx context.Context, id string, active bool) error {
	if err := s.slots.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update time slot")
	}
	return nil
}

func applyMenuRequest(item *models.MenuItem, req dto.MenuItemRequest) {
	item.Name = strings.TrimSpace(req.Name)
	item.Description = req.Description
	item.Price = req.Price
	item.Category = strings.TrimSpace(req.Category)
	item.PrepTime = req.PrepTime
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
}

func menuLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "menu item not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "menu operation failed")
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/database"
)

const menuColumns = `id, name, description, price, category, is_available, prep_time, created_at, updated_at`

// MenuRepository persists canteen menu items.
type MenuRepository struct {
	db *sqlx.DB
}

// NewMenuRepository constructs the repository.
func NewMenuRepository(db *sqlx.DB) *MenuRepository {
	return &MenuRepository{db: db}
}

// List returns menu items ordered by category then name.
func (r *MenuRepository) List(ctx context.Context, filter models.MenuFilter) ([]models.MenuItem, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + menuColumns + ` FROM menu_items`)
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 3)
	if filter.AvailableOnly {
		conditions = append(conditions, "is_available = TRUE")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY category ASC, name ASC")

	var items []models.MenuItem
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	return items, nil
}

// GetByID fetches a single menu item.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.GetContext(ctx, &item, `SELECT `+menuColumns+` FROM menu_items WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetByIDs fetches the menu items named in ids; missing ids are simply absent.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []string) ([]models.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.MenuItem
	if err := r.db.SelectContext(ctx, &items, `SELECT `+menuColumns+` FROM menu_items WHERE id = ANY($1)`, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	return items, nil
}

// Create inserts a menu item.
func (r *MenuRepository) Create(ctx context.Context, item *models.MenuItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	const query = `INSERT INTO menu_items (` + menuColumns + `)
	VALUES (:id, :name, :description, :price, :category, :is_available, :prep_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create menu item: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of a menu item. Existing order
// items keep their own unit_price snapshot.
func (r *MenuRepository) Update(ctx context.Context, item *models.MenuItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE menu_items SET name = :name, description = :description, price = :price, category = :category,
	is_available = :is_available, prep_time = :prep_time, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	return checkAffected(res, errNotFound)
}

// SetAvailability toggles whether the item can be ordered.
func (r *MenuRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE menu_items SET is_available = $2, updated_at = $3 WHERE id = $1`, id, available, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set menu availability: %w", err)
	}
	return checkAffected(res, errNotFound)
}

// Delete removes a menu item that no order references.
func (r *MenuRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("delete menu item: %w", err)
	}
	return checkAffected(res, errNotFound)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// ErrInUse is returned when a catalogue row is still referenced.
var ErrInUse = errors.New("record is still referenced")

// CatalogRepository manages the branch, skill and language lookup tables.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func catalogTable(kind models.CatalogKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown catalog %q", kind)
	}
	return string(kind), nil
}

// List returns all items of kind ordered by name.
func (r *CatalogRepository) List(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	items := []models.CatalogItem{}
	query := fmt.Sprintf(`SELECT id, name, created_at, updated_at FROM %s ORDER BY name ASC`, table)
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return items, nil
}

// FindByID loads an item of kind.
func (r *CatalogRepository) FindByID(ctx context.Context, kind models.CatalogKind, id string) (*models.CatalogItem, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	var item models.CatalogItem
	query := fmt.Sprintf(`SELECT id, name, created_at, updated_at FROM %s WHERE id = $1`, table)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a new item of kind.
func (r *CatalogRepository) Create(ctx context.Context, kind models.CatalogKind, item *models.CatalogItem) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.Name = strings.TrimSpace(item.Name)
	item.CreatedAt, item.UpdatedAt = now, now

	query := fmt.Sprintf(`INSERT INTO %s (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`, table)
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// Upsert returns the id of the item named name, creating it when missing.
func (r *CatalogRepository) Upsert(ctx context.Context, kind models.CatalogKind, name string) (string, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)
ON CONFLICT (name) DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id`, table)
	var id string
	if err := r.db.GetContext(ctx, &id, query, uuid.NewString(), strings.TrimSpace(name), time.Now().UTC()); err != nil {
		return "", fmt.Errorf("upsert %s: %w", table, err)
	}
	return id, nil
}

// Rename changes the name of an item.
func (r *CatalogRepository) Rename(ctx context.Context, kind models.CatalogKind, id, name string) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET name = $2, updated_at = $3 WHERE id = $1`, table)
	result, err := r.db.ExecContext(ctx, query, id, strings.TrimSpace(name), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("rename %s: %w", table, err)
	}
	return requireAffected(result, "rename "+table)
}

// Delete removes an item. Branches referenced by postings cannot be removed.
func (r *CatalogRepository) Delete(ctx context.Context, kind models.CatalogKind, id string) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return requireAffected(result, "delete "+table)
}

// CountExisting returns how many of ids exist in kind.
func (r *CatalogRepository) CountExisting(ctx context.Context, kind models.CatalogKind, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	table, err := catalogTable(kind)
	if err != nil {
		return 0, err
	}
	var total int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ANY($1)`, table)
	if err := r.db.GetContext(ctx, &total, query, pq.Array(ids)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return total, nil
}

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"gorm.io/gorm"
)

// ItemFilter narrows item listings. Zero values mean "no constraint".
type ItemFilter struct {
	Statuses   []models.ItemStatus
	Type       models.ItemType
	Category   models.Category
	Search     string
	ReporterID *uuid.UUID
}

// ListOptions controls paging and ordering of item listings.
type ListOptions struct {
	Offset      int
	Limit       int
	OldestFirst bool
	WithPeople  bool // preload reporter and moderator
}

// StatusCount is one row of the per-status aggregate.
type StatusCount struct {
	Status models.ItemStatus
	Count  int64
}

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// GetByID returns nil, nil when the item does not exist.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return r.get(ctx, r.db.WithContext(ctx), id)
}

// GetDetail loads the item with reporter, claimant and moderator expanded.
func (r *ItemRepository) GetDetail(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	q := r.db.WithContext(ctx).
		Preload("Reporter").
		Preload("Claimant").
		Preload("Moderator")
	return r.get(ctx, q, id)
}

func (r *ItemRepository) get(_ context.Context, q *gorm.DB, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := q.Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// UpdatePending overwrites the selected columns of a pending item owned by reporterID,
// forcing status back to pending. Returns the number of rows changed.
func (r *ItemRepository) UpdatePending(ctx context.Context, id, reporterID uuid.UUID, changes *models.Item, columns []string) (int64, error) {
	changes.Status = models.StatusPending
	changes.UpdatedAt = time.Now()
	columns = append(columns, "status", "updated_at")

	result := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND reporter_id = ? AND status = ?", id, reporterID, string(models.StatusPending)).
		Select(columns).
		Updates(changes)
	return result.RowsAffected, result.Error
}

// DeletePending removes a pending item owned by reporterID.
func (r *ItemRepository) DeletePending(ctx context.Context, id, reporterID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND reporter_id = ? AND status = ?", id, reporterID, string(models.StatusPending)).
		Delete(&models.Item{})
	return result.RowsAffected, result.Error
}

// Approve moves a pending item to approved in a single guarded statement.
func (r *ItemRepository) Approve(ctx context.Context, id, moderatorID uuid.UUID, at time.Time) (int64, error) {
	return r.moderate(ctx, id, map[string]interface{}{
		"status":           string(models.StatusApproved),
		"moderator_id":     moderatorID,
		"moderated_at":     at,
		"rejection_reason": "",
	})
}

// Reject moves a pending item to rejected in a single guarded statement.
func (r *ItemRepository) Reject(ctx context.Context, id, moderatorID uuid.UUID, reason string, at time.Time) (int64, error) {
	return r.moderate(ctx, id, map[string]interface{}{
		"status":           string(models.StatusRejected),
		"moderator_id":     moderatorID,
		"moderated_at":     at,
		"rejection_reason": reason,
	})
}

func (r *ItemRepository) moderate(ctx context.Context, id uuid.UUID, changes map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND status = ?", id, string(models.StatusPending)).
		Updates(changes)
	return result.RowsAffected, result.Error
}

// Claim records claimantID on an approved, unclaimed found item not reported by claimantID.
// The preconditions live in the WHERE clause so two concurrent claims cannot both succeed.
func (r *ItemRepository) Claim(ctx context.Context, id, claimantID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND type = ? AND status = ? AND claimant_id IS NULL AND reporter_id <> ?",
			id, string(models.TypeFound), string(models.StatusApproved), claimantID).
		Updates(map[string]interface{}{
			"status":      string(models.StatusClaimed),
			"claimant_id": claimantID,
			"claimed_at":  at,
		})
	return result.RowsAffected, result.Error
}

// List returns one page of items matching filter plus the total match count.
func (r *ItemRepository) List(ctx context.Context, filter ItemFilter, opts ListOptions) ([]models.Item, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Model(&models.Item{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	if opts.OldestFirst {
		order = "created_at ASC"
	}

	q := r.filtered(ctx, filter).Order(order)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if opts.WithPeople {
		q = q.Preload("Reporter").Preload("Moderator")
	}

	var items []models.Item
	if err := q.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByReporter returns every item reported by reporterID, newest first.
func (r *ItemRepository) ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]models.Item, error) {
	var items []models.Item
	err := r.db.WithContext(ctx).
		Where("reporter_id = ?", reporterID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// CountByStatus aggregates item counts grouped by status.
func (r *ItemRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// RecentlyModerated returns approved/rejected items with a moderator, latest decision first.
func (r *ItemRepository) RecentlyModerated(ctx context.Context, limit int) ([]models.Item, error) {
	var items []models.Item
	err := r.db.WithContext(ctx).
		Where("status IN ? AND moderator_id IS NOT NULL",
			[]string{string(models.StatusApproved), string(models.StatusRejected)}).
		Order("moderated_at DESC").
		Limit(limit).
		Preload("Reporter").
		Preload("Moderator").
		Find(&items).Error
	return items, err
}

func (r *ItemRepository) filtered(ctx context.Context, f ItemFilter) *gorm.DB {
	q := r.db.WithContext(ctx)

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.Category != "" {
		q = q.Where("category = ?", string(f.Category))
	}
	if f.ReporterID != nil {
		q = q.Where("reporter_id = ?", *f.ReporterID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		q = r.search(q, term)
	}
	return q
}

// search uses the Postgres text index when available and a LIKE scan elsewhere.
func (r *ItemRepository) search(q *gorm.DB, term string) *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return q.Where(
			"to_tsvector('english', title || ' ' || description || ' ' || location) @@ plainto_tsquery('english', ?)",
			term,
		)
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return q.Where(
		`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(location) LIKE ? ESCAPE '\')`,
		pattern, pattern, pattern,
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

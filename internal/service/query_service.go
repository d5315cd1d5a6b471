package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultPageLimit     = 10
	MaxPageLimit         = 100
	DefaultActivityLimit = 20
)

// ListQuery filters the public listing. Status is always approved.
type ListQuery struct {
	Type     string
	Category string
	Search   string
	Page     int
	Limit    int
}

// SearchQuery filters the moderator search over every status.
type SearchQuery struct {
	Status   string
	Type     string
	Category string
	Search   string
	Page     int
	Limit    int
}

type ItemPage struct {
	Items       []models.Item
	Total       int64
	TotalPages  int
	CurrentPage int
}

type Stats struct {
	Total    int64
	ByStatus map[models.ItemStatus]int64
}

type QueryService struct {
	itemRepo *repository.ItemRepository
}

func NewQueryService(itemRepo *repository.ItemRepository) *QueryService {
	return &QueryService{itemRepo: itemRepo}
}

// ListPublic returns approved items only, newest first.
func (s *QueryService) ListPublic(ctx context.Context, q ListQuery) (*ItemPage, error) {
	filter, err := buildFilter("", q.Type, q.Category, q.Search)
	if err != nil {
		return nil, err
	}
	filter.Statuses = []models.ItemStatus{models.StatusApproved}

	return s.page(ctx, filter, q.Page, q.Limit, false)
}

// MyItems returns every item reported by userID regardless of status.
func (s *QueryService) MyItems(ctx context.Context, userID uuid.UUID) ([]models.Item, error) {
	items, err := s.itemRepo.ListByReporter(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to list own items", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	return items, nil
}

// GetItem returns an item with its people expanded. Items that are not
// publicly visible can only be read by their reporter or by staff; viewer
// is nil for anonymous callers.
func (s *QueryService) GetItem(ctx context.Context, viewer *models.User, itemID uuid.UUID) (*models.Item, error) {
	item, err := s.itemRepo.GetDetail(ctx, itemID)
	if err != nil {
		logger.Log.Error("Failed to load item detail", zap.String("item_id", itemID.String()), zap.Error(err))
		return nil, err
	}
	if item == nil {
		return nil, newWorkflowError(ErrItemNotFound, "Item not found")
	}

	if item.Status.PubliclyVisible() {
		return item, nil
	}
	if viewer != nil && (item.ReportedBy(viewer.ID) || viewer.Role.CanModerate()) {
		return item, nil
	}

	logger.Log.Warn("Item detail access denied",
		zap.String("item_id", itemID.String()),
		zap.String("status", string(item.Status)),
		zap.Bool("anonymous", viewer == nil),
	)
	return nil, newWorkflowError(ErrForbidden, "Access denied")
}

// PendingQueue returns pending items oldest first.
func (s *QueryService) PendingQueue(ctx context.Context, page, limit int) (*ItemPage, error) {
	filter := repository.ItemFilter{Statuses: []models.ItemStatus{models.StatusPending}}
	return s.page(ctx, filter, page, limit, true)
}

func (s *QueryService) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.itemRepo.CountByStatus(ctx)
	if err != nil {
		logger.Log.Error("Failed to aggregate item counts", zap.Error(err))
		return nil, err
	}

	stats := &Stats{ByStatus: map[models.ItemStatus]int64{
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusRejected: 0,
		models.StatusClaimed:  0,
	}}
	for _, row := range rows {
		stats.ByStatus[row.Status] += row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

// RecentActivity returns the latest moderator decisions.
func (s *QueryService) RecentActivity(ctx context.Context, limit int) ([]models.Item, error) {
	if limit < 1 {
		limit = DefaultActivityLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	items, err := s.itemRepo.RecentlyModerated(ctx, limit)
	if err != nil {
		logger.Log.Error("Failed to load recent activity", zap.Error(err))
		return nil, err
	}
	return items, nil
}

// Search lets staff filter across every status, newest first.
func (s *QueryService) Search(ctx context.Context, q SearchQuery) (*ItemPage, error) {
	filter, err := buildFilter(q.Status, q.Type, q.Category, q.Search)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, filter, q.Page, q.Limit, false)
}

func (s *QueryService) page(ctx context.Context, filter repository.ItemFilter, page, limit int, oldestFirst bool) (*ItemPage, error) {
	page, limit = normalizePaging(page, limit)

	items, total, err := s.itemRepo.List(ctx, filter, repository.ListOptions{
		Offset:      (page - 1) * limit,
		Limit:       limit,
		OldestFirst: oldestFirst,
		WithPeople:  true,
	})
	if err != nil {
		logger.Log.Error("Failed to list items", zap.Int("page", page), zap.Error(err))
		return nil, err
	}

	return &ItemPage{
		Items:       items,
		Total:       total,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		CurrentPage: page,
	}, nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func buildFilter(status, itemType, category, search string) (repository.ItemFilter, error) {
	var filter repository.ItemFilter
	verr := &ValidationError{}

	if status = strings.TrimSpace(status); status != "" {
		st := models.ItemStatus(status)
		if !st.Valid() {
			verr.Fields = append(verr.Fields, FieldError{Field: "status", Message: "Must be one of: pending approved rejected claimed"})
		}
		filter.Statuses = []models.ItemStatus{st}
	}
	if itemType = strings.TrimSpace(itemType); itemType != "" {
		t := models.ItemType(itemType)
		if !t.Valid() {
			verr.Fields = append(verr.Fields, FieldError{Field: "type", Message: "Must be one of: lost found"})
		}
		filter.Type = t
	}
	if category = strings.TrimSpace(category); category != "" {
		c := models.Category(category)
		if !c.Valid() {
			verr.Fields = append(verr.Fields, FieldError{Field: "category", Message: "Must be one of: electronics clothing jewelry books documents other"})
		}
		filter.Category = c
	}
	filter.Search = strings.TrimSpace(search)

	if len(verr.Fields) > 0 {
		return repository.ItemFilter{}, verr
	}
	return filter, nil
}

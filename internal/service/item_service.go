package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/broker"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

type SubmitItemInput struct {
	Title       string   `json:"title" validate:"required,min=3,max=200"`
	Description string   `json:"description" validate:"required,min=10,max=5000"`
	Category    string   `json:"category" validate:"required,oneof=electronics clothing jewelry books documents other"`
	Type        string   `json:"type" validate:"required,oneof=lost found"`
	Location    string   `json:"location" validate:"required,max=255"`
	Date        string   `json:"date" validate:"required,isodate"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=50"`
	IsUrgent    bool     `json:"isUrgent"`
}

// UpdateItemInput holds the fields a reporter may change; nil means "leave as is".
type UpdateItemInput struct {
	Title       *string   `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string   `json:"description" validate:"omitempty,min=10,max=5000"`
	Category    *string   `json:"category" validate:"omitempty,oneof=electronics clothing jewelry books documents other"`
	Type        *string   `json:"type" validate:"omitempty,oneof=lost found"`
	Location    *string   `json:"location" validate:"omitempty,min=1,max=255"`
	Date        *string   `json:"date" validate:"omitempty,isodate"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	IsUrgent    *bool     `json:"isUrgent"`
}

const maxRejectionReasonLength = 1000

// ItemService owns every state change of an item. Each transition is a single
// conditional write guarded by the expected prior state; when that write
// matches nothing the item is re-read to report the precise reason.
type ItemService struct {
	itemRepo *repository.ItemRepository
	notifier broker.Notifier
	now      func() time.Time
}

func NewItemService(itemRepo *repository.ItemRepository, notifier broker.Notifier) *ItemService {
	return &ItemService{
		itemRepo: itemRepo,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a pending item reported by reporter, snapshotting their contact details.
func (s *ItemService) Submit(ctx context.Context, reporter *models.User, in SubmitItemInput) (*models.Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Tags = cleanTags(in.Tags)

	logger.Log.Debug("Processing item submission",
		zap.String("user_id", reporter.ID.String()),
		zap.String("type", in.Type),
		zap.String("title", in.Title),
	)

	if err := validateStruct(in); err != nil {
		logger.Log.Warn("Item submission validation failed",
			zap.String("user_id", reporter.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	date, _ := parseDate(in.Date)

	item := &models.Item{
		Title:       in.Title,
		Description: in.Description,
		Category:    models.Category(in.Category),
		Type:        models.ItemType(in.Type),
		Location:    in.Location,
		Date:        date,
		Status:      models.StatusPending,
		ReporterID:  reporter.ID,
		Contact: models.ContactInfo{
			Phone: reporter.Phone,
			Email: reporter.Email,
		},
		Tags:     in.Tags,
		IsUrgent: in.IsUrgent,
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		logger.Log.Error("Failed to create item",
			zap.String("user_id", reporter.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.notifier.Notify(broker.NewModeratorNotification(
		broker.NotificationItemSubmitted,
		item.ID,
		fmt.Sprintf("New %s item submitted: %s", item.Type, item.Title),
	))

	logger.Log.Info("Item submitted",
		zap.String("item_id", item.ID.String()),
		zap.String("user_id", reporter.ID.String()),
		zap.String("type", string(item.Type)),
	)

	return item, nil
}

// Edit overwrites the provided fields of a pending item owned by callerID and
// re-queues it for moderation.
func (s *ItemService) Edit(ctx context.Context, callerID, itemID uuid.UUID, in UpdateItemInput) (*models.Item, error) {
	trimPtr(in.Title)
	trimPtr(in.Description)
	trimPtr(in.Location)
	if in.Tags != nil {
		cleaned := cleanTags(*in.Tags)
		in.Tags = &cleaned
	}

	if err := validateStruct(in); err != nil {
		return nil, err
	}

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, s.storeError("Failed to load item", itemID, err)
	}
	if err := classifyOwnerChange(item, callerID, "update"); err != nil {
		logger.Log.Warn("Item edit refused",
			zap.String("item_id", itemID.String()),
			zap.String("user_id", callerID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	changes, columns := buildChanges(in)

	rows, err := s.itemRepo.UpdatePending(ctx, itemID, callerID, changes, columns)
	if err != nil {
		return nil, s.storeError("Failed to update item", itemID, err)
	}
	if rows == 0 {
		return nil, s.reclassify(ctx, itemID, func(i *models.Item) error {
			return classifyOwnerChange(i, callerID, "update")
		}, newWorkflowError(ErrInvalidState, "Can only update pending items"))
	}

	updated, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, s.storeError("Failed to reload item", itemID, err)
	}
	if updated == nil {
		return nil, newWorkflowError(ErrItemNotFound, "Item not found")
	}

	logger.Log.Info("Item updated and re-queued for moderation",
		zap.String("item_id", itemID.String()),
		zap.String("user_id", callerID.String()),
		zap.Strings("fields", columns),
	)
	return updated, nil
}

// Delete removes a pending item owned by callerID.
func (s *ItemService) Delete(ctx context.Context, callerID, itemID uuid.UUID) error {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return s.storeError("Failed to load item", itemID, err)
	}
	if err := classifyOwnerChange(item, callerID, "delete"); err != nil {
		logger.Log.Warn("Item delete refused",
			zap.String("item_id", itemID.String()),
			zap.String("user_id", callerID.String()),
			zap.Error(err),
		)
		return err
	}

	rows, err := s.itemRepo.DeletePending(ctx, itemID, callerID)
	if err != nil {
		return s.storeError("Failed to delete item", itemID, err)
	}
	if rows == 0 {
		return s.reclassify(ctx, itemID, func(i *models.Item) error {
			return classifyOwnerChange(i, callerID, "delete")
		}, newWorkflowError(ErrInvalidState, "Can only delete pending items"))
	}

	logger.Log.Info("Item deleted",
		zap.String("item_id", itemID.String()),
		zap.String("user_id", callerID.String()),
	)
	return nil
}

// Approve publishes a pending item.
func (s *ItemService) Approve(ctx context.Context, moderator *models.User, itemID uuid.UUID) (*models.Item, error) {
	if !moderator.Role.CanModerate() {
		return nil, ErrInsufficientRole
	}

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, s.storeError("Failed to load item", itemID, err)
	}
	if err := classifyModeration(item, "approve"); err != nil {
		return nil, err
	}

	rows, err := s.itemRepo.Approve(ctx, itemID, moderator.ID, s.now())
	if err != nil {
		return nil, s.storeError("Failed to approve item", itemID, err)
	}
	if rows == 0 {
		return nil, s.reclassify(ctx, itemID, func(i *models.Item) error {
			return classifyModeration(i, "approve")
		}, newWorkflowError(ErrInvalidState, "Can only approve pending items"))
	}

	approved, err := s.reload(ctx, itemID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(broker.NewUserNotification(
		broker.NotificationItemApproved,
		approved.ID,
		approved.ReporterID,
		fmt.Sprintf("Your %s item %q has been approved!", approved.Type, approved.Title),
	))

	logger.Log.Info("Item approved",
		zap.String("item_id", itemID.String()),
		zap.String("moderator_id", moderator.ID.String()),
	)
	return approved, nil
}

// Reject declines a pending item with a mandatory reason.
func (s *ItemService) Reject(ctx context.Context, moderator *models.User, itemID uuid.UUID, reason string) (*models.Item, error) {
	if !moderator.Role.CanModerate() {
		return nil, ErrInsufficientRole
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newValidationError("rejectionReason", "Rejection reason is required")
	}
	if len([]rune(reason)) > maxRejectionReasonLength {
		return nil, newValidationError("rejectionReason", fmt.Sprintf("Must be at most %d characters", maxRejectionReasonLength))
	}

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, s.storeError("Failed to load item", itemID, err)
	}
	if err := classifyModeration(item, "reject"); err != nil {
		return nil, err
	}

	rows, err := s.itemRepo.Reject(ctx, itemID, moderator.ID, reason, s.now())
	if err != nil {
		return nil, s.storeError("Failed to reject item", itemID, err)
	}
	if rows == 0 {
		return nil, s.reclassify(ctx, itemID, func(i *models.Item) error {
			return classifyModeration(i, "reject")
		}, newWorkflowError(ErrInvalidState, "Can only reject pending items"))
	}

	rejected, err := s.reload(ctx, itemID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(broker.NewUserNotification(
		broker.NotificationItemRejected,
		rejected.ID,
		rejected.ReporterID,
		fmt.Sprintf("Your %s item %q was rejected. Reason: %s", rejected.Type, rejected.Title, reason),
	))

	logger.Log.Info("Item rejected",
		zap.String("item_id", itemID.String()),
		zap.String("moderator_id", moderator.ID.String()),
	)
	return rejected, nil
}

// Claim records claimant as the owner of an approved found item.
func (s *ItemService) Claim(ctx context.Context, claimant *models.User, itemID uuid.UUID) (*models.Item, error) {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, s.storeError("Failed to load item", itemID, err)
	}
	if err := classifyClaim(item, claimant.ID); err != nil {
		logger.Log.Warn("Claim refused",
			zap.String("item_id", itemID.String()),
			zap.String("user_id", claimant.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	rows, err := s.itemRepo.Claim(ctx, itemID, claimant.ID, s.now())
	if err != nil {
		return nil, s.storeError("Failed to claim item", itemID, err)
	}
	if rows == 0 {
		// Lost the race to a concurrent claim (or a concurrent state change)
		return nil, s.reclassify(ctx, itemID, func(i *models.Item) error {
			return classifyClaim(i, claimant.ID)
		}, newWorkflowError(ErrAlreadyClaimed, "Item already claimed"))
	}

	claimed, err := s.reload(ctx, itemID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(broker.NewUserNotification(
		broker.NotificationItemClaimed,
		claimed.ID,
		claimed.ReporterID,
		fmt.Sprintf("Your found item %q has been claimed by %s", claimed.Title, claimant.Username),
	))

	logger.Log.Info("Item claimed",
		zap.String("item_id", itemID.String()),
		zap.String("claimant_id", claimant.ID.String()),
	)
	return claimed, nil
}

func (s *ItemService) reload(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, s.storeError("Failed to reload item", itemID, err)
	}
	if item == nil {
		return nil, newWorkflowError(ErrItemNotFound, "Item not found")
	}
	return item, nil
}

// reclassify explains why a guarded write matched no row.
func (s *ItemService) reclassify(ctx context.Context, itemID uuid.UUID, classify func(*models.Item) error, fallback error) error {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return s.storeError("Failed to reload item", itemID, err)
	}
	if err := classify(item); err != nil {
		return err
	}
	return fallback
}

func (s *ItemService) storeError(msg string, itemID uuid.UUID, err error) error {
	logger.Log.Error(msg, zap.String("item_id", itemID.String()), zap.Error(err))
	return err
}

func classifyOwnerChange(item *models.Item, callerID uuid.UUID, verb string) error {
	if item == nil {
		return newWorkflowError(ErrItemNotFound, "Item not found")
	}
	if !item.ReportedBy(callerID) {
		return newWorkflowError(ErrForbidden, fmt.Sprintf("You can only %s your own items", verb))
	}
	if item.Status != models.StatusPending {
		return newWorkflowError(ErrInvalidState, fmt.Sprintf("Can only %s pending items", verb))
	}
	return nil
}

func classifyModeration(item *models.Item, verb string) error {
	if item == nil {
		return newWorkflowError(ErrItemNotFound, "Item not found")
	}
	if item.Status != models.StatusPending {
		return newWorkflowError(ErrInvalidState, fmt.Sprintf("Can only %s pending items", verb))
	}
	return nil
}

// classifyClaim checks claim preconditions. A claimed item reports
// AlreadyClaimed rather than InvalidState so repeated claims are explicit.
func classifyClaim(item *models.Item, callerID uuid.UUID) error {
	if item == nil {
		return newWorkflowError(ErrItemNotFound, "Item not found")
	}
	if item.Type != models.TypeFound {
		return newWorkflowError(ErrInvalidItemType, "Can only claim found items")
	}
	if item.IsClaimed() {
		return newWorkflowError(ErrAlreadyClaimed, "Item already claimed")
	}
	if item.Status != models.StatusApproved {
		return newWorkflowError(ErrInvalidState, "Can only claim approved items")
	}
	if item.ReportedBy(callerID) {
		return newWorkflowError(ErrSelfClaim, "You cannot claim your own item")
	}
	return nil
}

func buildChanges(in UpdateItemInput) (*models.Item, []string) {
	changes := &models.Item{}
	var columns []string

	if in.Title != nil {
		changes.Title = *in.Title
		columns = append(columns, "title")
	}
	if in.Description != nil {
		changes.Description = *in.Description
		columns = append(columns, "description")
	}
	if in.Category != nil {
		changes.Category = models.Category(*in.Category)
		columns = append(columns, "category")
	}
	if in.Type != nil {
		changes.Type = models.ItemType(*in.Type)
		columns = append(columns, "type")
	}
	if in.Location != nil {
		changes.Location = *in.Location
		columns = append(columns, "location")
	}
	if in.Date != nil {
		changes.Date, _ = parseDate(*in.Date)
		columns = append(columns, "date")
	}
	if in.Tags != nil {
		changes.Tags = *in.Tags
		columns = append(columns, "tags")
	}
	if in.IsUrgent != nil {
		changes.IsUrgent = *in.IsUrgent
		columns = append(columns, "is_urgent")
	}
	return changes, columns
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

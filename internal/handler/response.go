package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/service"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

// PersonResponse is the public view of a user attached to an item.
type PersonResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
}

type ItemResponse struct {
	ID              uuid.UUID          `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Category        models.Category    `json:"category"`
	Type            models.ItemType    `json:"type"`
	Location        string             `json:"location"`
	Date            time.Time          `json:"date"`
	Status          models.ItemStatus  `json:"status"`
	Reporter        *PersonResponse    `json:"reporter,omitempty"`
	ReporterID      uuid.UUID          `json:"reporterId"`
	Claimant        *PersonResponse    `json:"claimant,omitempty"`
	ClaimantID      *uuid.UUID         `json:"claimantId,omitempty"`
	ClaimedAt       *time.Time         `json:"claimedAt,omitempty"`
	Moderator       *PersonResponse    `json:"moderator,omitempty"`
	ModeratorID     *uuid.UUID         `json:"moderatorId,omitempty"`
	ModeratedAt     *time.Time         `json:"moderatedAt,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	ContactInfo     models.ContactInfo `json:"contactInfo"`
	Tags            []string           `json:"tags"`
	IsUrgent        bool               `json:"isUrgent"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type PageResponse struct {
	Items       []ItemResponse `json:"items"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Total       int64          `json:"total"`
}

// person renders u; contact details are only included for staff-facing views.
func person(u *models.User, withContact bool) *PersonResponse {
	if u == nil {
		return nil
	}
	p := &PersonResponse{ID: u.ID, Username: u.Username}
	if withContact {
		p.Email = u.Email
		p.Phone = u.Phone
	}
	return p
}

func toItemResponse(item *models.Item, withContact bool) ItemResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return ItemResponse{
		ID:              item.ID,
		Title:           item.Title,
		Description:     item.Description,
		Category:        item.Category,
		Type:            item.Type,
		Location:        item.Location,
		Date:            item.Date,
		Status:          item.Status,
		Reporter:        person(item.Reporter, withContact),
		ReporterID:      item.ReporterID,
		Claimant:        person(item.Claimant, withContact),
		ClaimantID:      item.ClaimantID,
		ClaimedAt:       item.ClaimedAt,
		Moderator:       person(item.Moderator, false),
		ModeratorID:     item.ModeratorID,
		ModeratedAt:     item.ModeratedAt,
		RejectionReason: item.RejectionReason,
		ContactInfo:     item.Contact,
		Tags:            tags,
		IsUrgent:        item.IsUrgent,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

func toItemResponses(items []models.Item, withContact bool) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i := range items {
		out[i] = toItemResponse(&items[i], withContact)
	}
	return out
}

func toPageResponse(page *service.ItemPage, withContact bool) PageResponse {
	return PageResponse{
		Items:       toItemResponses(page.Items, withContact),
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
		Total:       page.Total,
	}
}

// respondError maps service errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a generic server error.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Validation failed",
			"errors": verr.Fields,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrInsufficientRole),
		errors.Is(err, service.ErrSelfModification):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrInvalidItemType),
		errors.Is(err, service.ErrSelfClaim), errors.Is(err, service.ErrAlreadyClaimed):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrEmailAlreadyExists), errors.Is(err, service.ErrUsernameAlreadyExists):
		status = http.StatusConflict
	case service.IsUnauthenticated(err):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		logger.Log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Server error"})
		return
	}

	c.JSON(status, gin.H{"error": errorMessage(err)})
}

func errorMessage(err error) string {
	var werr *service.WorkflowError
	if errors.As(err, &werr) {
		return werr.Message
	}
	switch {
	case errors.Is(err, service.ErrEmailAlreadyExists):
		return "Email already registered"
	case errors.Is(err, service.ErrUsernameAlreadyExists):
		return "Username already taken"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, service.ErrInactiveAccount):
		return "Account is deactivated"
	case errors.Is(err, service.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, service.ErrInsufficientRole):
		return "Insufficient permissions"
	case errors.Is(err, service.ErrSelfModification):
		return "Admins cannot demote or deactivate themselves"
	}
	return err.Error()
}

// itemIDParam parses :id, answering 404 for malformed identifiers.
func itemIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return uuid.Nil, false
	}
	return id, true
}

func badRequestBody(c *gin.Context, err error) {
	logger.Log.Warn("Request parsing failed",
		zap.String("path", c.FullPath()),
		zap.String("ip", c.ClientIP()),
		zap.Error(err),
	)
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}

// queryInt reads an integer query parameter, returning 0 when absent or malformed.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

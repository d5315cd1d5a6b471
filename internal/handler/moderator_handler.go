package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/internal/middleware"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/service"
)

type ModeratorHandler struct {
	itemService  *service.ItemService
	queryService *service.QueryService
}

func NewModeratorHandler(itemService *service.ItemService, queryService *service.QueryService) *ModeratorHandler {
	return &ModeratorHandler{
		itemService:  itemService,
		queryService: queryService,
	}
}

type RejectRequest struct {
	RejectionReason string `json:"rejectionReason"`
}

type StatsResponse struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Claimed  int64 `json:"claimed"`
}

// Pending returns the review queue, oldest first
// GET /api/moderators/pending?page=&limit=
func (h *ModeratorHandler) Pending(c *gin.Context) {
	page, err := h.queryService.PendingQueue(c.Request.Context(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPageResponse(page, true))
}

// Stats returns item counts per status
// GET /api/moderators/stats
func (h *ModeratorHandler) Stats(c *gin.Context) {
	stats, err := h.queryService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		Total:    stats.Total,
		Pending:  stats.ByStatus[models.StatusPending],
		Approved: stats.ByStatus[models.StatusApproved],
		Rejected: stats.ByStatus[models.StatusRejected],
		Claimed:  stats.ByStatus[models.StatusClaimed],
	})
}

// Approve publishes a pending item
// POST /api/moderators/:id/approve
func (h *ModeratorHandler) Approve(c *gin.Context) {
	id, ok := itemIDParam(c)
	if !ok {
		return
	}
	moderator, _ := middleware.CurrentUser(c)

	item, err := h.itemService.Approve(c.Request.Context(), moderator, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item approved successfully",
		"item":    toItemResponse(item, true),
	})
}

// Reject declines a pending item with a reason
// POST /api/moderators/:id/reject
func (h *ModeratorHandler) Reject(c *gin.Context) {
	id, ok := itemIDParam(c)
	if !ok {
		return
	}
	moderator, _ := middleware.CurrentUser(c)

	// An empty body is a missing reason, reported by the service as a field error
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequestBody(c, err)
		return
	}

	item, err := h.itemService.Reject(c.Request.Context(), moderator, id, req.RejectionReason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item rejected successfully",
		"item":    toItemResponse(item, true),
	})
}

// RecentActivity returns the latest moderation decisions
// GET /api/moderators/recent-activity?limit=
func (h *ModeratorHandler) RecentActivity(c *gin.Context) {
	items, err := h.queryService.RecentActivity(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toItemResponses(items, true))
}

// Search filters items of any status
// GET /api/moderators/search?q=&status=&type=&category=&page=&limit=
func (h *ModeratorHandler) Search(c *gin.Context) {
	page, err := h.queryService.Search(c.Request.Context(), service.SearchQuery{
		Status:   c.Query("status"),
		Type:     c.Query("type"),
		Category: c.Query("category"),
		Search:   c.Query("q"),
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPageResponse(page, true))
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/internal/middleware"
	"github.com/lostfound/backend/internal/service"
)

type ItemHandler struct {
	itemService  *service.ItemService
	queryService *service.QueryService
}

func NewItemHandler(itemService *service.ItemService, queryService *service.QueryService) *ItemHandler {
	return &ItemHandler{
		itemService:  itemService,
		queryService: queryService,
	}
}

// Submit reports a lost or found item for moderation
// POST /api/items
func (h *ItemHandler) Submit(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req service.SubmitItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, err)
		return
	}

	item, err := h.itemService.Submit(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Item submitted successfully and pending approval",
		"item":    toItemResponse(item, true),
	})
}

// List returns approved items
// GET /api/items?type=&category=&search=&page=&limit=
func (h *ItemHandler) List(c *gin.Context) {
	page, err := h.queryService.ListPublic(c.Request.Context(), service.ListQuery{
		Type:     c.Query("type"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPageResponse(page, false))
}

// MyItems returns every item the caller reported
// GET /api/items/my-items
func (h *ItemHandler) MyItems(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	items, err := h.queryService.MyItems(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toItemResponses(items, true))
}

// Get returns one item; non-public items need the reporter or staff
// GET /api/items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := itemIDParam(c)
	if !ok {
		return
	}

	viewer, _ := middleware.CurrentUser(c)
	item, err := h.queryService.GetItem(c.Request.Context(), viewer, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toItemResponse(item, true))
}

// Update edits a pending item owned by the caller
// PUT /api/items/:id
func (h *ItemHandler) Update(c *gin.Context) {
	id, ok := itemIDParam(c)
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)

	var req service.UpdateItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, err)
		return
	}

	item, err := h.itemService.Edit(c.Request.Context(), user.ID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item updated successfully and pending re-approval",
		"item":    toItemResponse(item, true),
	})
}

// Delete removes a pending item owned by the caller
// DELETE /api/items/:id
func (h *ItemHandler) Delete(c *gin.Context) {
	id, ok := itemIDParam(c)
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)

	if err := h.itemService.Delete(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item deleted successfully"})
}

// Claim marks an approved found item as claimed by the caller
// POST /api/items/:id/claim
func (h *ItemHandler) Claim(c *gin.Context) {
	id, ok := itemIDParam(c)
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)

	item, err := h.itemService.Claim(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item claimed successfully",
		"item":    toItemResponse(item, true),
	})
}

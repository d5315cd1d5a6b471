package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/middleware"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/service"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

type AdminHandler struct {
	authService *service.AuthService
}

func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{
		authService: authService,
	}
}

// Request types
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type SetStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// GetAllUsers returns all users (including deactivated ones)
// GET /api/admin/users
func (h *AdminHandler) GetAllUsers(c *gin.Context) {
	admin, _ := middleware.CurrentUser(c)
	logger.Log.Info("Admin fetching all users",
		zap.String("admin_id", admin.ID.String()),
	)

	users, err := h.authService.GetAllUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}

	c.JSON(http.StatusOK, gin.H{
		"users": out,
	})
}

// ChangeRole assigns a new role to a user
// PUT /api/admin/users/:id/role
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	targetID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, err)
		return
	}

	admin, _ := middleware.CurrentUser(c)
	user, err := h.authService.ChangeRole(c.Request.Context(), admin, targetID, models.Role(req.Role))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User role updated successfully",
		"user":    toUserResponse(user),
	})
}

// SetStatus activates or deactivates a user
// PUT /api/admin/users/:id/status
func (h *AdminHandler) SetStatus(c *gin.Context) {
	targetID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, err)
		return
	}

	admin, _ := middleware.CurrentUser(c)
	user, err := h.authService.SetActive(c.Request.Context(), admin, targetID, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User status updated successfully",
		"user":    toUserResponse(user),
	})
}

func userIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return uuid.Nil, false
	}
	return id, true
}

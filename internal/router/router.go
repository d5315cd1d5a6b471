package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/internal/broker"
	"github.com/lostfound/backend/internal/config"
	"github.com/lostfound/backend/internal/handler"
	"github.com/lostfound/backend/internal/middleware"
	"github.com/lostfound/backend/internal/service"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP surface is built from. Redis and
// Subscriber are optional; without them rate limiting and live
// notifications are disabled.
type Deps struct {
	Config       *config.Config
	DB           *gorm.DB
	AuthService  *service.AuthService
	ItemService  *service.ItemService
	QueryService *service.QueryService
	Redis        *redis.Client
	Subscriber   broker.Subscriber
}

// New builds the gin engine with every route mounted.
func New(d Deps) *gin.Engine {
	cfg := d.Config

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(),
		middleware.SecurityHeadersMiddleware(),
		middleware.HSTSMiddleware(cfg.IsProduction()),
		cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	authHandler := handler.NewAuthHandler(d.AuthService)
	adminHandler := handler.NewAdminHandler(d.AuthService)
	itemHandler := handler.NewItemHandler(d.ItemService, d.QueryService)
	moderatorHandler := handler.NewModeratorHandler(d.ItemService, d.QueryService)

	requireAuth := middleware.AuthMiddleware(d.AuthService)
	optionalAuth := middleware.OptionalAuth(d.AuthService)

	r.GET("/health", healthCheck(d.DB))

	api := r.Group("/api")

	// Public auth routes, rate limited when Redis is available
	auth := api.Group("/auth")
	if d.Redis != nil {
		limiter := middleware.NewRateLimiter(d.Redis, middleware.RateLimiterConfig{
			Scope:       "auth",
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		})
		auth.Use(limiter.Middleware())
	}
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", requireAuth, authHandler.Me)
		auth.PUT("/profile", requireAuth, authHandler.UpdateProfile)
	}

	items := api.Group("/items")
	{
		items.GET("", itemHandler.List)
		items.POST("", requireAuth, itemHandler.Submit)
		items.GET("/my-items", requireAuth, itemHandler.MyItems)
		items.GET("/:id", optionalAuth, itemHandler.Get)
		items.PUT("/:id", requireAuth, itemHandler.Update)
		items.DELETE("/:id", requireAuth, itemHandler.Delete)
		items.POST("/:id/claim", requireAuth, itemHandler.Claim)
	}

	moderators := api.Group("/moderators")
	moderators.Use(requireAuth, middleware.RequireModerator())
	{
		moderators.GET("/pending", moderatorHandler.Pending)
		moderators.GET("/stats", moderatorHandler.Stats)
		moderators.GET("/recent-activity", moderatorHandler.RecentActivity)
		moderators.GET("/search", moderatorHandler.Search)
		moderators.POST("/:id/approve", moderatorHandler.Approve)
		moderators.POST("/:id/reject", moderatorHandler.Reject)
	}

	admin := api.Group("/admin")
	admin.Use(requireAuth, middleware.RequireAdmin())
	{
		admin.GET("/users", adminHandler.GetAllUsers)
		admin.PUT("/users/:id/role", adminHandler.ChangeRole)
		admin.PUT("/users/:id/status", adminHandler.SetStatus)
	}

	if d.Subscriber != nil {
		notificationHandler := handler.NewNotificationHandler(d.Subscriber, cfg.AllowedOrigins)
		api.GET("/notifications/ws", requireAuth, notificationHandler.Stream)
	}

	return r
}

func healthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

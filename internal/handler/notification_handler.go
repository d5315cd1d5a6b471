package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lostfound/backend/internal/broker"
	"github.com/lostfound/backend/internal/middleware"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	maxSessionLifetime = 15 * time.Minute
	writeWait          = 10 * time.Second // Time allowed to write a message to the peer
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize     = 4 * 1024            // clients only send control frames
)

// WSFrame is every frame the server writes.
type WSFrame struct {
	Type         string               `json:"type"` // "notification", "session_expired"
	Notification *broker.Notification `json:"notification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// NotificationHandler streams a user's notifications over a websocket.
type NotificationHandler struct {
	subscriber broker.Subscriber
	upgrader   websocket.Upgrader
}

func NewNotificationHandler(subscriber broker.Subscriber, allowedOrigins []string) *NotificationHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &NotificationHandler{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // non-browser clients
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Stream upgrades the request and relays the caller's notifications; staff
// also receive the moderators channel.
// GET /api/notifications/ws
func (h *NotificationHandler) Stream(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	channels := []string{broker.UserChannel(user.ID)}
	if user.Role.CanModerate() {
		channels = append(channels, broker.ModeratorsChannel())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifications, unsubscribe, err := h.subscriber.Subscribe(ctx, channels...)
	if err != nil {
		logger.Log.Error("Failed to subscribe to notifications",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Notifications unavailable"})
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade connection",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	connectedAt := time.Now()
	logger.Log.Info("Notification stream opened",
		zap.String("user_id", user.ID.String()),
		zap.Strings("channels", channels),
	)

	// Reader: keeps pong deadlines fresh and notices the client going away
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Log.Debug("Notification stream read error",
						zap.String("user_id", user.ID.String()),
						zap.Error(err),
					)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sessionTimer := time.NewTimer(maxSessionLifetime)
	defer sessionTimer.Stop()

	// Writer: the only goroutine that writes to conn
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(WSFrame{Type: "notification", Notification: &n}); err != nil {
				logger.Log.Debug("Failed to write notification", zap.String("user_id", user.ID.String()), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sessionTimer.C:
			closeGracefully(conn, "session expired")
			return

		case <-ctx.Done():
			logger.Log.Info("Notification stream closed",
				zap.String("user_id", user.ID.String()),
				zap.Duration("duration", time.Since(connectedAt).Round(time.Second)),
			)
			return
		}
	}
}

func closeGracefully(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(WSFrame{Type: "session_expired", Error: reason})

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
	)
}

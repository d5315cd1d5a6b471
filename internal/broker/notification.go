package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationItemSubmitted NotificationType = "item_submitted"
	NotificationItemApproved  NotificationType = "item_approved"
	NotificationItemRejected  NotificationType = "item_rejected"
	NotificationItemClaimed   NotificationType = "item_claimed"
)

// Audience selects who a notification is addressed to.
type Audience string

const (
	AudienceUser       Audience = "user"
	AudienceModerators Audience = "moderators"
)

const (
	moderatorsChannel = "notifications:moderators"
	userChannelPrefix = "notifications:user:"
)

type Notification struct {
	ID          uuid.UUID        `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	ItemID      uuid.UUID        `json:"itemId"`
	RecipientID *uuid.UUID       `json:"recipientId,omitempty"`
	Audience    Audience         `json:"audience"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NewUserNotification addresses a notification to a single user.
func NewUserNotification(t NotificationType, itemID, recipientID uuid.UUID, message string) Notification {
	return Notification{
		ID:          uuid.New(),
		Type:        t,
		Message:     message,
		ItemID:      itemID,
		RecipientID: &recipientID,
		Audience:    AudienceUser,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewModeratorNotification addresses a notification to every moderator.
func NewModeratorNotification(t NotificationType, itemID uuid.UUID, message string) Notification {
	return Notification{
		ID:        uuid.New(),
		Type:      t,
		Message:   message,
		ItemID:    itemID,
		Audience:  AudienceModerators,
		CreatedAt: time.Now().UTC(),
	}
}

// Channel is the pub/sub channel the notification is published on.
func (n Notification) Channel() string {
	if n.Audience == AudienceModerators || n.RecipientID == nil {
		return moderatorsChannel
	}
	return UserChannel(*n.RecipientID)
}

// UserChannel is the pub/sub channel carrying one user's notifications.
func UserChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

// ModeratorsChannel is the pub/sub channel shared by moderators and admins.
func ModeratorsChannel() string {
	return moderatorsChannel
}

// Notifier accepts notifications without blocking the caller.
type Notifier interface {
	Notify(n Notification)
}

// Sink is one delivery target behind the Dispatcher.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Subscriber streams published notifications from the given channels.
// The returned cancel func releases the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan Notification, func(), error)
}

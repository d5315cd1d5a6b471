package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemStatus string

const (
	StatusPending  ItemStatus = "pending"
	StatusApproved ItemStatus = "approved"
	StatusRejected ItemStatus = "rejected"
	StatusClaimed  ItemStatus = "claimed"
)

// Valid reports whether s is one of the four lifecycle states.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusClaimed:
		return true
	}
	return false
}

// PubliclyVisible is true for states anyone may read.
func (s ItemStatus) PubliclyVisible() bool {
	return s == StatusApproved || s == StatusClaimed
}

// Moderated is true for states that carry a moderator decision.
func (s ItemStatus) Moderated() bool {
	return s == StatusApproved || s == StatusRejected
}

type ItemType string

const (
	TypeLost  ItemType = "lost"
	TypeFound ItemType = "found"
)

func (t ItemType) Valid() bool {
	return t == TypeLost || t == TypeFound
}

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryJewelry     Category = "jewelry"
	CategoryBooks       Category = "books"
	CategoryDocuments   Category = "documents"
	CategoryOther       Category = "other"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryJewelry,
	CategoryBooks,
	CategoryDocuments,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ContactInfo is a snapshot of the reporter's contact details taken at submission.
type ContactInfo struct {
	Phone string `gorm:"type:varchar(30)" json:"phone,omitempty"`
	Email string `gorm:"type:varchar(100)" json:"email,omitempty"`
}

type Item struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Category    Category   `gorm:"type:varchar(20);not null" json:"category"`
	Type        ItemType   `gorm:"type:varchar(10);not null;index:idx_items_status_type,priority:2" json:"type"`
	Location    string     `gorm:"type:varchar(255);not null" json:"location"`
	Date        time.Time  `gorm:"not null" json:"date"`
	Status      ItemStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_items_status_type,priority:1" json:"status"`

	ReporterID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"-"`
	ClaimantID  *uuid.UUID `gorm:"type:uuid;index" json:"-"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	ModeratorID *uuid.UUID `gorm:"type:uuid" json:"-"`
	ModeratedAt *time.Time `gorm:"index" json:"moderatedAt,omitempty"`

	RejectionReason string `gorm:"type:text" json:"rejectionReason,omitempty"`

	Contact  ContactInfo `gorm:"embedded;embeddedPrefix:contact_" json:"contactInfo"`
	Tags     []string    `gorm:"serializer:json" json:"tags"`
	IsUrgent bool        `gorm:"not null;default:false" json:"isUrgent"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Reporter  *User `gorm:"foreignKey:ReporterID;constraint:OnDelete:CASCADE" json:"-"`
	Claimant  *User `gorm:"foreignKey:ClaimantID" json:"-"`
	Moderator *User `gorm:"foreignKey:ModeratorID" json:"-"`
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	if i.Tags == nil {
		i.Tags = []string{}
	}
	return nil
}

// IsClaimed reports whether a claimant has been recorded.
func (i *Item) IsClaimed() bool {
	return i.ClaimantID != nil || i.Status == StatusClaimed
}

// ReportedBy reports whether userID is the item's reporter.
func (i *Item) ReportedBy(userID uuid.UUID) bool {
	return i.ReporterID == userID
}

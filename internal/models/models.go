package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PermissionRecord holds the stored half of a user's tier. One row per user,
// keyed by OwnerID; created on first access request, mutated only by an admin
// decision, never deleted in normal flow.
type PermissionRecord struct {
	Base
	OwnerID string        `gorm:"type:uuid;uniqueIndex;not null" json:"ownerId" validate:"required,uuid"`
	Owner   *User         `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Email   string        `gorm:"not null" json:"email" validate:"required,email"`
	Status  RequestStatus `gorm:"not null;default:'pending'" json:"status" validate:"required,request_status"`
}

// AccessRequest is the reviewable side of the workflow: who asked, why, and
// what the admin decided. Status is kept equal to the matching
// PermissionRecord by every admin action; the two writes are not atomic and
// the reconcile task repairs any gap.
type AccessRequest struct {
	Base
	OwnerID     string        `gorm:"type:uuid;index;not null" json:"ownerId" validate:"required,uuid"`
	Owner       *User         `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Email       string        `gorm:"not null" json:"email" validate:"required,email"`
	DisplayName string        `json:"displayName"`
	Reason      string        `gorm:"not null" json:"reason" validate:"required"`
	Status      RequestStatus `gorm:"not null;default:'pending'" json:"status" validate:"required,request_status"`
	RequestedAt time.Time     `json:"requestedAt"`
	ReviewedAt  *time.Time    `json:"reviewedAt,omitempty"`
	ReviewedBy  string        `json:"reviewedBy,omitempty"`
}

func (r *AccessRequest) BeforeCreate(tx *gorm.DB) error {
	if err := r.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	return nil
}

// Item is a shared to-do entry. Text and image are immutable after creation;
// only Completed is ever updated, and deletion is hard. CreatedAt comes from
// the server clock and orders the list, client clocks are untrusted.
type Item struct {
	Base
	Text           string `gorm:"not null" json:"text" validate:"required"`
	Completed      bool   `gorm:"not null;default:false" json:"completed"`
	ImagePath      string `json:"imagePath,omitempty"`
	ImageURL       string `gorm:"-" json:"imageUrl,omitempty"` // Virtual field
	CreatedByID    string `gorm:"type:uuid;not null" json:"createdById" validate:"required,uuid"`
	CreatedBy      *User  `gorm:"foreignKey:CreatedByID" json:"createdBy,omitempty"`
	CreatedByName  string `json:"createdByName"`
	CreatedByEmail string `json:"createdByEmail"`
}

func (i *Item) AfterFind(tx *gorm.DB) error {
	if i.ImagePath == "" {
		return nil
	}

	registryMu.RLock()
	generator := urlGenerator
	registryMu.RUnlock()

	if generator != nil {
		// Presign with 1-hour expiry
		url, err := generator.GetSignedURL(tx.Statement.Context, i.ImagePath, time.Hour)
		if err != nil {
			return fmt.Errorf("failed to generate signed URL: %w", err)
		}
		i.ImageURL = url
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate will set a UUID rather than numeric ID
func (base *Base) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	return nil
}

// RequestStatus is the shared lifecycle of an access request and its
// permission record. The two are written separately but always carry the
// same status after an admin decision.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// IsValidRequestStatus checks if a given status is valid
func IsValidRequestStatus(status RequestStatus) bool {
	switch status {
	case StatusPending, StatusApproved, StatusDenied:
		return true
	default:
		return false
	}
}

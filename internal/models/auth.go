package models

import (
	"gorm.io/datatypes"
)

// User is the identity record mirrored from the Google sign-in. It is owned
// by the auth flow; everything else treats it as read-only.
type User struct {
	Base
	Email        string         `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	DisplayName  string         `json:"displayName"`
	PictureURL   string         `json:"pictureUrl,omitempty"`
	Provider     string         `gorm:"default:'google'" json:"provider"`
	ProviderID   string         `gorm:"index" json:"providerId,omitempty"`
	ProviderData datatypes.JSON `gorm:"type:jsonb" json:"providerData,omitempty"`
}

// AuthTransaction records an issued token pair so sign-out can revoke it.
type AuthTransaction struct {
	Base
	UserID    string `gorm:"type:uuid;not null" json:"userId"`
	User      *User  `json:"user,omitempty"`
	Token     string `gorm:"not null" json:"token"`
	Refresh   string `gorm:"not null" json:"refresh"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}

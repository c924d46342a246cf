package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Email       string `gorm:"uniqueIndex;not null"`
	Institution string
	Role        string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

type ResourceModel struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"not null"`
	Description string    `gorm:"type:text"`
	Status      string    `gorm:"not null;index"`
	License     string    `gorm:"not null"`
	CreatedByID uint      `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

type ResourceVersionModel struct {
	ID            uint           `gorm:"primaryKey"`
	ResourceID    uint           `gorm:"not null;uniqueIndex:idx_resource_version_number"`
	VersionNumber int            `gorm:"not null;uniqueIndex:idx_resource_version_number"`
	Content       string         `gorm:"type:text;not null"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CreatedByID   uint
	CreatedAt     time.Time `gorm:"not null"`
}

type CollaborationInviteModel struct {
	ID                uint      `gorm:"primaryKey"`
	ResourceID        uint      `gorm:"not null;index"`
	CollaboratorEmail string    `gorm:"not null"`
	Message           string    `gorm:"type:text"`
	Status            string    `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;index"`
}

type ReviewModel struct {
	ID         uint      `gorm:"primaryKey"`
	ResourceID uint      `gorm:"not null;index"`
	ReviewerID uint      `gorm:"not null"`
	Decision   string    `gorm:"not null"`
	Comments   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
}

type LtiLinkModel struct {
	ID         uint   `gorm:"primaryKey"`
	ResourceID uint   `gorm:"uniqueIndex;not null"`
	URL        string `gorm:"not null"`
}

package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Document struct {
	BaseModel
	Title     string         `json:"title" gorm:"type:varchar(255);not null"`
	OwnerID   uuid.UUID      `json:"ownerID" gorm:"type:uuid;not null;index"`
	FolderID  *uuid.UUID     `json:"folderID,omitempty" gorm:"type:uuid;index"`
	Content   datatypes.JSON `json:"content" gorm:"type:jsonb"`
	Settings  datatypes.JSON `json:"settings,omitempty" gorm:"type:jsonb"`
	SortOrder int            `json:"sortOrder" gorm:"not null;default:0"`
	DeletedAt gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`

	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
}

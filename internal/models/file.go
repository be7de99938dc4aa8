package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type File struct {
	BaseModel
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	MimeType  string         `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size      int64          `json:"size" gorm:"not null;default:0"`
	Key       string         `json:"key" gorm:"type:text;uniqueIndex;not null"`
	OwnerID   uuid.UUID      `json:"ownerID" gorm:"type:uuid;not null;index"`
	FolderID  *uuid.UUID     `json:"folderID,omitempty" gorm:"type:uuid;index"`
	SortOrder int            `json:"sortOrder" gorm:"not null;default:0"`
	DeletedAt gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`

	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID"`

	// URL carries the presigned download location in listing responses.
	URL string `json:"url,omitempty" gorm:"-"`
}

package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Folder struct {
	BaseModel
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	OwnerID   uuid.UUID      `json:"ownerID" gorm:"type:uuid;not null;index"`
	ParentID  *uuid.UUID     `json:"parentID,omitempty" gorm:"type:uuid;index"`
	SortOrder int            `json:"sortOrder" gorm:"not null;default:0"`
	DeletedAt gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`

	Parent   *Folder  `json:"-" gorm:"foreignKey:ParentID"`
	Children []Folder `json:"-" gorm:"foreignKey:ParentID"`
}

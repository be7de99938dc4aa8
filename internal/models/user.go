package models

type User struct {
	BaseModel
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`
	IsAdmin      bool   `json:"isAdmin" gorm:"not null;default:false"`

	Folders   []Folder   `json:"-" gorm:"foreignKey:OwnerID"`
	Files     []File     `json:"-" gorm:"foreignKey:OwnerID"`
	Documents []Document `json:"-" gorm:"foreignKey:OwnerID"`
}

package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Email     string `gorm:"uniqueIndex;not null"`
	Name      *string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// PostModel rows are removed with their author (ON DELETE CASCADE).
type PostModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Title     string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null;default:''"`
	Published bool      `gorm:"not null;default:false"`
	AuthorID  string    `gorm:"size:36;not null;index"`
	Author    UserModel `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PostModel) TableName() string { return "posts" }

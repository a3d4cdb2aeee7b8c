package model

import "time"

type Tag struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"` // lower-cased and trimmed
	CreatedAt time.Time `json:"-"`
}

// FileTag links a file to a tag. The composite key keeps a pair linked at most once.
type FileTag struct {
	FileID    string    `gorm:"primaryKey;size:36"`
	TagID     string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

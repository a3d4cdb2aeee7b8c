package model

import "time"

// DownloadLog is written once per successful non-preview download and never
// updated afterwards
type DownloadLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FileID    string    `gorm:"index;not null;size:36" json:"file_id"`
	UserID    *string   `gorm:"index" json:"user_id,omitempty"`
	IP        *string   `json:"ip,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

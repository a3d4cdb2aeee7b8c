// Package model defines database models
package model

import (
	"time"

	"bitwise74/fileshare-api/internal/policy"
)

type FileRecord struct {
	ID     string  `gorm:"primaryKey;size:36" json:"id"`
	UserID *string `gorm:"index" json:"user_id,omitempty"` // nil for anonymous uploads

	Name       string  `gorm:"not null" json:"name"`
	StorageKey string  `gorm:"uniqueIndex;not null" json:"storage_key"`
	MimeType   string  `json:"mime_type"`
	Size       int64   `json:"size"`
	Category   *string `json:"category,omitempty"`

	// Points at the previous version. Lineages are connected through this column
	// in either direction, see package lineage.
	ParentID *string `gorm:"index;size:36" json:"parent_id,omitempty"`

	IsPrivate           bool       `json:"is_private"`
	Pin                 *string    `gorm:"size:4" json:"pin,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	MaxDownloads        *int       `json:"max_downloads,omitempty"`
	MaxDownloadsPerUser *int       `json:"max_downloads_per_user,omitempty"`

	DownloadCount int64     `gorm:"not null;default:0" json:"download_count"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

// OwnedBy reports whether userID is the owner of the record. Anonymous uploads
// have no owner.
func (f *FileRecord) OwnedBy(userID string) bool {
	return userID != "" && f.UserID != nil && *f.UserID == userID
}

// Policy projects the access policy fields of the record
func (f *FileRecord) Policy() policy.Policy {
	p := policy.Policy{
		IsPrivate:           f.IsPrivate,
		ExpiresAt:           f.ExpiresAt,
		MaxDownloads:        f.MaxDownloads,
		MaxDownloadsPerUser: f.MaxDownloadsPerUser,
		DownloadCount:       f.DownloadCount,
	}

	if f.UserID != nil {
		p.OwnerID = *f.UserID
	}

	if f.Pin != nil {
		p.Pin = *f.Pin
		p.HasPin = true
	}

	return p
}

// Sanitized returns a copy of the record without the PIN
func (f FileRecord) Sanitized() FileRecord {
	f.Pin = nil
	return f
}

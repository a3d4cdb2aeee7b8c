package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/validators"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const storageKeyLength = 21

// UploadTicket tells the client where to put the object
type UploadTicket struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SyncInput struct {
	StorageKey          string     `json:"key" binding:"required"`
	Name                string     `json:"name" binding:"required"`
	MimeType            string     `json:"mime_type"`
	Size                int64      `json:"size"`
	Category            *string    `json:"category"`
	ParentID            *string    `json:"parent_id"`
	IsPrivate           bool       `json:"is_private"`
	Pin                 *string    `json:"pin"`
	ExpiresAt           *time.Time `json:"expires_at"`
	MaxDownloads        *int       `json:"max_downloads"`
	MaxDownloadsPerUser *int       `json:"max_downloads_per_user"`
	Tags                []string   `json:"tags"`
}

// Patch changes an existing record. Nil fields are left alone, the Clear
// flags reset nullable columns.
type Patch struct {
	Name                *string    `json:"name"`
	Category            *string    `json:"category"`
	IsPrivate           *bool      `json:"is_private"`
	Pin                 *string    `json:"pin"`
	ExpiresAt           *time.Time `json:"expires_at"`
	MaxDownloads        *int       `json:"max_downloads"`
	MaxDownloadsPerUser *int       `json:"max_downloads_per_user"`
	Tags                []string   `json:"tags"`

	ClearCategory            bool `json:"clear_category"`
	ClearPin                 bool `json:"clear_pin"`
	ClearExpiry              bool `json:"clear_expiry"`
	ClearMaxDownloads        bool `json:"clear_max_downloads"`
	ClearMaxDownloadsPerUser bool `json:"clear_max_downloads_per_user"`
}

type FileServiceConfig struct {
	MaxUploadSize int64
	AllowedTypes  []string
	URLTTL        time.Duration
}

// FileService manages the files of their owners
type FileService struct {
	records  store.Records
	storage  ObjectStore
	tags     *TagManager
	notifier notify.Notifier
	cfg      FileServiceConfig
	now      func() time.Time
}

func NewFileService(records store.Records, storage ObjectStore, tags *TagManager, n notify.Notifier, cfg FileServiceConfig) *FileService {
	if n == nil {
		n = notify.Nop{}
	}

	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}

	return &FileService{
		records:  records,
		storage:  storage,
		tags:     tags,
		notifier: n,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RequestUpload validates an upload and returns a presigned URL the client
// uploads the object to before calling Sync
func (s *FileService) RequestUpload(ctx context.Context, name, contentType string, size int64) (*UploadTicket, error) {
	mime, err := validators.UploadValidator(name, contentType, size, s.cfg.MaxUploadSize, s.cfg.AllowedTypes)
	if err != nil {
		return nil, invalid(err)
	}

	id, err := gonanoid.New(storageKeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate storage key, %w", err)
	}

	key := id + mime.Extension()

	url, err := s.storage.IssueUploadURL(ctx, key, mime.String())
	if err != nil {
		return nil, fmt.Errorf("failed to issue upload url, %w", err)
	}

	return &UploadTicket{
		Key:       key,
		URL:       url,
		ExpiresAt: s.now().UTC().Add(s.cfg.URLTTL),
	}, nil
}

// Sync stores the metadata of an uploaded object. A parent makes the new
// record a version of the parent's lineage.
func (s *FileService) Sync(ctx context.Context, ownerID string, in SyncInput) (*model.FileRecord, error) {
	if err := s.validateSync(in); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.records.Find(ctx, *in.ParentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid(errors.New("parent file does not exist"))
			}

			return nil, err
		}

		if !parent.OwnedBy(ownerID) {
			return nil, ErrForbidden
		}
	}

	exists, err := s.storage.ObjectExists(ctx, in.StorageKey)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, ErrNotUploaded
	}

	f := &model.FileRecord{
		ID:                  uuid.NewString(),
		Name:                in.Name,
		StorageKey:          in.StorageKey,
		MimeType:            in.MimeType,
		Size:                in.Size,
		Category:            in.Category,
		ParentID:            in.ParentID,
		IsPrivate:           in.IsPrivate,
		Pin:                 in.Pin,
		ExpiresAt:           in.ExpiresAt,
		MaxDownloads:        in.MaxDownloads,
		MaxDownloadsPerUser: in.MaxDownloadsPerUser,
		CreatedAt:           s.now().UTC(),
	}

	if ownerID != "" {
		f.UserID = &ownerID
	}

	if err := s.records.Insert(ctx, f); err != nil {
		return nil, err
	}

	if len(in.Tags) > 0 {
		if _, err := s.tags.AttachTags(ctx, f.ID, in.Tags); err != nil {
			zap.L().Error("Failed to attach tags to new file", zap.String("fileID", f.ID), zap.Error(err))
		}
	}

	s.notifier.Publish(notify.FileCreated, lineageEvent(ctx, s.records, f))
	return f, nil
}

func (s *FileService) validateSync(in SyncInput) error {
	if in.StorageKey == "" {
		return invalid(errors.New("no storage key provided"))
	}

	if err := validators.FileNameValidator(in.Name); err != nil {
		return invalid(err)
	}

	if in.Size < 0 {
		return invalid(errors.New("size can't be negative"))
	}

	return validatePolicy(in.Pin, in.MaxDownloads, in.MaxDownloadsPerUser)
}

func validatePolicy(pin *string, maxDownloads, maxPerUser *int) error {
	if pin != nil {
		if err := validators.PinValidator(*pin); err != nil {
			return invalid(err)
		}
	}

	if maxDownloads != nil && *maxDownloads < 1 {
		return invalid(errors.New("max_downloads must be at least 1"))
	}

	if maxPerUser != nil && *maxPerUser < 1 {
		return invalid(errors.New("max_downloads_per_user must be at least 1"))
	}

	return nil
}

// Update applies p to a file owned by ownerID
func (s *FileService) Update(ctx context.Context, ownerID, id string, p Patch) (*model.FileRecord, error) {
	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		if err := validators.FileNameValidator(*p.Name); err != nil {
			return nil, invalid(err)
		}
	}

	if err := validatePolicy(p.Pin, p.MaxDownloads, p.MaxDownloadsPerUser); err != nil {
		return nil, err
	}

	patch := make(map[string]any)

	if p.Name != nil {
		patch["name"] = *p.Name
	}

	if p.IsPrivate != nil {
		patch["is_private"] = *p.IsPrivate
	}

	setNullable(patch, "category", p.Category, p.ClearCategory)
	setNullable(patch, "pin", p.Pin, p.ClearPin)
	setNullable(patch, "expires_at", p.ExpiresAt, p.ClearExpiry)
	setNullable(patch, "max_downloads", p.MaxDownloads, p.ClearMaxDownloads)
	setNullable(patch, "max_downloads_per_user", p.MaxDownloadsPerUser, p.ClearMaxDownloadsPerUser)

	updated, err := s.records.Update(ctx, f.ID, patch)
	if err != nil {
		return nil, err
	}

	if len(p.Tags) > 0 {
		if _, err := s.tags.AttachTags(ctx, f.ID, p.Tags); err != nil {
			return nil, err
		}
	}

	s.notifier.Publish(notify.FileUpdated, lineageEvent(ctx, s.records, updated))
	return updated, nil
}

func setNullable[T any](patch map[string]any, column string, v *T, clear bool) {
	switch {
	case clear:
		patch[column] = nil
	case v != nil:
		patch[column] = *v
	}
}

// Delete removes a file owned by ownerID. A failure to delete the object is
// logged and doesn't keep the metadata around.
func (s *FileService) Delete(ctx context.Context, ownerID, id string) error {
	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	// the head can change once f is gone
	event := lineageEvent(ctx, s.records, f)

	if err := s.storage.DeleteObject(ctx, f.StorageKey); err != nil {
		zap.L().Error("Failed to delete object from storage", zap.String("key", f.StorageKey), zap.Error(err))
	}

	if err := s.records.Delete(ctx, f.ID); err != nil {
		return err
	}

	s.notifier.Publish(notify.FileDeleted, event)
	return nil
}

func (s *FileService) DeleteBulk(ctx context.Context, ownerID string, ids []string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, bulkResult(id, s.Delete(ctx, ownerID, id)))
	}

	return results
}

// AttachTags tags a file owned by ownerID
func (s *FileService) AttachTags(ctx context.Context, ownerID, id string, names []string) ([]model.Tag, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}

	return s.tags.AttachTags(ctx, id, names)
}

func (s *FileService) AttachTagsBulk(ctx context.Context, ownerID string, ids, names []string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.AttachTags(ctx, ownerID, id, names)
		results = append(results, bulkResult(id, err))
	}

	return results
}

func (s *FileService) owned(ctx context.Context, ownerID, id string) (*model.FileRecord, error) {
	f, err := s.records.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if !f.OwnedBy(ownerID) {
		return nil, ErrForbidden
	}

	return f, nil
}

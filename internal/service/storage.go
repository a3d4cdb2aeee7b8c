package service

import (
	"context"

	"bitwise74/fileshare-api/internal/lineage"
	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/store"

	"go.uber.org/zap"
)

// ObjectStore is the object storage the services issue URLs for. It is
// implemented by aws.S3Client for both S3 and R2.
type ObjectStore interface {
	IssueUploadURL(ctx context.Context, key, contentType string) (string, error)
	IssueDownloadURL(ctx context.Context, key, filename string, inline bool) (string, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
	DeleteObject(ctx context.Context, key string) error
	DeleteObjects(ctx context.Context, keys []string) error
}

// fileEvent builds the event about f. The lineage head governs visibility, so
// a public version under a private head only reaches the owner. A nil head
// means it's unknown and the event stays with the owner.
func fileEvent(f, head *model.FileRecord) notify.FileEvent {
	e := notify.FileEvent{
		ID:            f.ID,
		Private:       head == nil || head.IsPrivate || f.IsPrivate,
		DownloadCount: f.DownloadCount,
	}

	if f.UserID != nil {
		e.OwnerID = *f.UserID
	}

	return e
}

// lineageEvent resolves the head of f and builds the event about f
func lineageEvent(ctx context.Context, records store.Records, f *model.FileRecord) notify.FileEvent {
	members, err := loadLineage(ctx, records, f)
	if err != nil {
		zap.L().Warn("Failed to resolve lineage for event", zap.String("fileID", f.ID), zap.Error(err))
		return fileEvent(f, nil)
	}

	head, ok := lineage.New(members).Head(f.ID)
	if !ok {
		return fileEvent(f, nil)
	}

	return fileEvent(f, &head)
}

package service

import (
	"context"
	"fmt"
	"time"

	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DownloadAccounting counts downloads. The counter is the source of truth for
// download limits, the log is an audit trail and may miss entries.
type DownloadAccounting struct {
	records  store.Records
	notifier notify.Notifier
}

func NewDownloadAccounting(records store.Records, n notify.Notifier) *DownloadAccounting {
	if n == nil {
		n = notify.Nop{}
	}

	return &DownloadAccounting{
		records:  records,
		notifier: n,
	}
}

// RecordDownload increments the counter of fileID, writes a log entry and
// returns the updated record. requesterID and ip may be empty.
func (a *DownloadAccounting) RecordDownload(ctx context.Context, fileID, requesterID, ip string) (*model.FileRecord, error) {
	return a.record(ctx, fileID, requesterID, ip, nil)
}

// record is RecordDownload for callers that already resolved the lineage head.
// A nil head is looked up before the event is published.
func (a *DownloadAccounting) record(ctx context.Context, fileID, requesterID, ip string, head *model.FileRecord) (*model.FileRecord, error) {
	if err := a.records.AtomicIncrement(ctx, fileID, "download_count"); err != nil {
		return nil, fmt.Errorf("failed to count download, %w", err)
	}

	l := &model.DownloadLog{
		ID:        uuid.NewString(),
		FileID:    fileID,
		CreatedAt: time.Now().UTC(),
	}

	if requesterID != "" {
		l.UserID = &requesterID
	}

	if ip != "" {
		l.IP = &ip
	}

	if err := a.records.CreateDownloadLog(ctx, l); err != nil {
		zap.L().Warn("Failed to write download log", zap.String("fileID", fileID), zap.Error(err))
	}

	f, err := a.records.Find(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload file, %w", err)
	}

	if head != nil {
		a.notifier.Publish(notify.FileDownloaded, fileEvent(f, head))
	} else {
		a.notifier.Publish(notify.FileDownloaded, lineageEvent(ctx, a.records, f))
	}
	return f, nil
}

// CountUserDownloads returns how many times userID downloaded any of fileIDs.
// Anonymous requesters have no history.
func (a *DownloadAccounting) CountUserDownloads(ctx context.Context, userID string, fileIDs []string) (int64, error) {
	if userID == "" {
		return 0, nil
	}

	return a.records.CountDownloads(ctx, userID, fileIDs)
}

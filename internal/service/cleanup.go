package service

import (
	"context"
	"fmt"
	"time"

	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiredCleanup deletes lineages whose head has expired. Expired records
// that are not the head of their lineage are kept, the head decides access.
type ExpiredCleanup struct {
	access   *AccessService
	records  store.Records
	storage  ObjectStore
	notifier notify.Notifier
	now      func() time.Time
}

func NewExpiredCleanup(access *AccessService, records store.Records, storage ObjectStore, n notify.Notifier) *ExpiredCleanup {
	if n == nil {
		n = notify.Nop{}
	}

	return &ExpiredCleanup{
		access:   access,
		records:  records,
		storage:  storage,
		notifier: n,
		now:      time.Now,
	}
}

// Run deletes every expired lineage and returns the number of deleted records
func (c *ExpiredCleanup) Run(ctx context.Context) (int, error) {
	now := c.now().UTC()

	expired, err := c.records.FindAll(ctx, store.Filter{ExpiredBefore: &now})
	if err != nil {
		return 0, fmt.Errorf("failed to query expired files, %w", err)
	}

	if len(expired) == 0 {
		return 0, nil
	}

	handled := make(map[string]struct{})
	heads := make(map[string]model.FileRecord)
	var doomed []model.FileRecord

	for _, f := range expired {
		if _, ok := handled[f.ID]; ok {
			continue
		}

		res, err := c.access.Resolve(ctx, f.ID)
		if err != nil {
			zap.L().Error("Failed to resolve expired file", zap.String("fileID", f.ID), zap.Error(err))
			continue
		}

		for _, m := range res.Members {
			handled[m.ID] = struct{}{}
		}

		if res.Head.ExpiresAt == nil || res.Head.ExpiresAt.After(now) {
			continue
		}

		for _, m := range res.Members {
			heads[m.ID] = res.Head
		}
		doomed = append(doomed, res.Members...)
	}

	if len(doomed) == 0 {
		return 0, nil
	}

	keys := make([]string, len(doomed))
	for i, f := range doomed {
		keys[i] = f.StorageKey
	}

	if err := c.storage.DeleteObjects(ctx, keys); err != nil {
		zap.L().Error("Failed to delete expired objects from storage", zap.Error(err))
	}

	var deleted int
	for _, f := range doomed {
		if err := c.records.Delete(ctx, f.ID); err != nil {
			zap.L().Error("Failed to delete expired file", zap.String("fileID", f.ID), zap.Error(err))
			continue
		}

		deleted++
		head := heads[f.ID]
		c.notifier.Publish(notify.FileDeleted, fileEvent(&f, &head))
	}

	return deleted, nil
}

// Schedule runs the cleanup on the cron spec until the returned cron is stopped
func (c *ExpiredCleanup) Schedule(spec string) (*cron.Cron, error) {
	cr := cron.New()

	_, err := cr.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		n, err := c.Run(ctx)
		if err != nil {
			zap.L().Error("Expired file cleanup failed", zap.Error(err))
			return
		}

		zap.L().Debug("Expired file cleanup finished", zap.Int("deleted", n))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule, %w", err)
	}

	cr.Start()
	zap.L().Debug("Expired file cleanup attached", zap.String("schedule", spec))

	return cr, nil
}

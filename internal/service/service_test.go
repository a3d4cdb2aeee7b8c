package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bitwise74/fileshare-api/db"
	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/store"

	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu         sync.Mutex
	objects    map[string]bool
	deleted    []string
	failDelete bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]bool)}
}

func (s *fakeStorage) put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = true
}

func (s *fakeStorage) IssueUploadURL(_ context.Context, key, contentType string) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?upload&type=%s", key, contentType), nil
}

func (s *fakeStorage) IssueDownloadURL(_ context.Context, key, filename string, inline bool) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?name=%s&inline=%t", key, filename, inline), nil
}

func (s *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.objects[key], nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDelete {
		return errors.New("storage unavailable")
	}

	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStorage) DeleteObjects(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.DeleteObject(ctx, k); err != nil {
			return err
		}
	}

	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(kind string, f notify.FileEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, notify.Event{Kind: kind, File: f})
}

func (r *recorder) last(t *testing.T) notify.Event {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}

	return out
}

type env struct {
	store      *store.GormStore
	storage    *fakeStorage
	events     *recorder
	tags       *TagManager
	accounting *DownloadAccounting
	access     *AccessService
	files      *FileService
	clock      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := db.New("sqlite", dsn)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	e := &env{
		store:   store.NewGormStore(gdb),
		storage: newFakeStorage(),
		events:  &recorder{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	e.tags = NewTagManager(e.store, e.store)
	e.accounting = NewDownloadAccounting(e.store, e.events)
	e.access = NewAccessService(e.store, e.storage, e.accounting, e.tags)
	e.files = NewFileService(e.store, e.storage, e.tags, e.events, FileServiceConfig{
		MaxUploadSize: 1 << 20,
	})
	e.files.now = func() time.Time {
		e.clock = e.clock.Add(time.Minute)
		return e.clock
	}

	return e
}

// upload puts an object into storage and syncs its metadata
func (e *env) upload(t *testing.T, owner string, in SyncInput) *model.FileRecord {
	t.Helper()

	if in.StorageKey == "" {
		in.StorageKey = fmt.Sprintf("key-%d", len(e.storage.objects)+len(e.storage.deleted))
	}

	if in.Name == "" {
		in.Name = in.StorageKey + ".txt"
	}

	e.storage.put(in.StorageKey)

	f, err := e.files.Sync(context.Background(), owner, in)
	require.NoError(t, err)

	return f
}

func ptr[T any](v T) *T {
	return &v
}

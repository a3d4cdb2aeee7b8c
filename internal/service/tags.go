package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/store"

	"github.com/google/uuid"
)

const maxTagLength = 64

var ErrTagTooLong = errors.New("tag is too long")

type TagManager struct {
	records store.Records
	tags    store.Tags
}

func NewTagManager(records store.Records, tags store.Tags) *TagManager {
	return &TagManager{
		records: records,
		tags:    tags,
	}
}

// NormalizeTags trims and lowercases names, drops empty ones and duplicates
// and returns the rest sorted
func NormalizeTags(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}

		out = append(out, n)
	}

	slices.Sort(out)
	return slices.Compact(out)
}

// AttachTags links names to fileID, creating missing tags. Attaching a tag
// that is already linked is a no-op. Returns every tag of the file.
func (m *TagManager) AttachTags(ctx context.Context, fileID string, names []string) ([]model.Tag, error) {
	if _, err := m.records.Find(ctx, fileID); err != nil {
		return nil, err
	}

	normalized := NormalizeTags(names)
	for _, n := range normalized {
		if len(n) > maxTagLength {
			return nil, invalid(ErrTagTooLong)
		}
	}

	for _, n := range normalized {
		tag, err := m.tags.FindOrCreateTag(ctx, &model.Tag{ID: uuid.NewString(), Name: n})
		if err != nil {
			return nil, err
		}

		if _, err := m.tags.LinkTag(ctx, fileID, tag.ID); err != nil {
			return nil, fmt.Errorf("failed to attach tag %q, %w", n, err)
		}
	}

	return m.tags.TagsOf(ctx, fileID)
}

// AttachTagsBulk attaches names to every file in fileIDs. One failing file
// doesn't stop the others.
func (m *TagManager) AttachTagsBulk(ctx context.Context, fileIDs, names []string) []BulkResult {
	results := make([]BulkResult, 0, len(fileIDs))
	for _, id := range fileIDs {
		_, err := m.AttachTags(ctx, id, names)
		results = append(results, bulkResult(id, err))
	}

	return results
}

func (m *TagManager) TagsOf(ctx context.Context, fileID string) ([]model.Tag, error) {
	return m.tags.TagsOf(ctx, fileID)
}

func (m *TagManager) ListTags(ctx context.Context) ([]model.Tag, error) {
	return m.tags.ListTags(ctx)
}

// TagNames flattens tags into their names
func TagNames(tags []model.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}

	return out
}

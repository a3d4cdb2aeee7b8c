// Package listing builds the file lists shown to users: one entry per lineage
// (its head), filtered by visibility and stripped of PINs the caller doesn't own.
package listing

import (
	"slices"

	"bitwise74/fileshare-api/internal/lineage"
	"bitwise74/fileshare-api/internal/model"
)

// ListVisible returns the heads of all lineages the requester may see in a
// list, newest first. An empty requesterID means an anonymous caller, who only
// sees public heads. Heads are resolved before filtering, so a lineage whose
// newest version went private vanishes from other people's lists.
func ListVisible(records []model.FileRecord, requesterID string) []model.FileRecord {
	heads := lineage.Heads(records)

	out := make([]model.FileRecord, 0, len(heads))
	for _, h := range heads {
		if h.IsPrivate && !h.OwnedBy(requesterID) {
			continue
		}

		out = append(out, Sanitize(h, requesterID))
	}

	sortNewestFirst(out)
	return out
}

// ListOwned returns the heads of the owner's lineages, newest first, including
// private ones and their PINs
func ListOwned(records []model.FileRecord, ownerID string) []model.FileRecord {
	if ownerID == "" {
		return []model.FileRecord{}
	}

	heads := lineage.Heads(records)

	out := make([]model.FileRecord, 0, len(heads))
	for _, h := range heads {
		if h.OwnedBy(ownerID) {
			out = append(out, h)
		}
	}

	sortNewestFirst(out)
	return out
}

// Sanitize strips the PIN unless requesterID owns the record
func Sanitize(f model.FileRecord, requesterID string) model.FileRecord {
	if f.OwnedBy(requesterID) {
		return f
	}

	return f.Sanitized()
}

// SanitizeAll applies Sanitize to every record
func SanitizeAll(records []model.FileRecord, requesterID string) []model.FileRecord {
	out := make([]model.FileRecord, len(records))
	for i, f := range records {
		out[i] = Sanitize(f, requesterID)
	}

	return out
}

func sortNewestFirst(records []model.FileRecord) {
	slices.SortStableFunc(records, func(a, b model.FileRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

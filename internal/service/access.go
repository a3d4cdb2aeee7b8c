package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitwise74/fileshare-api/internal/lineage"
	"bitwise74/fileshare-api/internal/listing"
	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/policy"
	"bitwise74/fileshare-api/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Lineages are loaded link by link. This bounds a single load.
const maxLineageSize = 10_000

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fileshare_access_decisions_total",
	Help: "Access policy decisions by outcome",
}, []string{"decision"})

// Resolution is a requested record together with its lineage
type Resolution struct {
	Record  model.FileRecord
	Head    model.FileRecord
	Members []model.FileRecord // oldest first
}

// MemberIDs returns the ids of every lineage member
func (r *Resolution) MemberIDs() []string {
	ids := make([]string, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ID
	}

	return ids
}

// Policy returns the head policy with the download counter of the whole lineage
func (r *Resolution) Policy() policy.Policy {
	p := r.Head.Policy()

	p.DownloadCount = 0
	for _, m := range r.Members {
		p.DownloadCount += m.DownloadCount
	}

	return p
}

// FileView is what a caller gets to see about a single file
type FileView struct {
	File     model.FileRecord `json:"file"`
	HeadID   string           `json:"head_id"`
	Versions int              `json:"versions"`
	Decision policy.Decision  `json:"decision"`
	Tags     []string         `json:"tags"`
}

// AccessService resolves lineages and applies the head policy to reads and
// downloads
type AccessService struct {
	records    store.Records
	storage    ObjectStore
	accounting *DownloadAccounting
	tags       *TagManager
	evaluator  *policy.Evaluator
}

func NewAccessService(records store.Records, storage ObjectStore, accounting *DownloadAccounting, tags *TagManager) *AccessService {
	return &AccessService{
		records:    records,
		storage:    storage,
		accounting: accounting,
		tags:       tags,
		evaluator:  policy.New(),
	}
}

// Resolve loads the record id and every record linked to it through parent
// links in either direction, then picks the lineage head
func (s *AccessService) Resolve(ctx context.Context, id string) (*Resolution, error) {
	rec, err := s.records.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	records, err := loadLineage(ctx, s.records, rec)
	if err != nil {
		return nil, err
	}

	r := lineage.New(records)
	head, _ := r.Head(rec.ID)

	return &Resolution{
		Record:  *rec,
		Head:    head,
		Members: r.Members(rec.ID),
	}, nil
}

func loadLineage(ctx context.Context, records store.Records, rec *model.FileRecord) ([]model.FileRecord, error) {
	seen := map[string]struct{}{rec.ID: {}}
	out := []model.FileRecord{*rec}
	frontier := []model.FileRecord{*rec}

	for len(frontier) > 0 && len(out) < maxLineageSize {
		ids := make([]string, 0, len(frontier))
		parents := make([]string, 0, len(frontier))

		for _, f := range frontier {
			ids = append(ids, f.ID)

			if f.ParentID != nil {
				if _, ok := seen[*f.ParentID]; !ok {
					parents = append(parents, *f.ParentID)
				}
			}
		}

		found, err := records.FindAll(ctx, store.Filter{ParentIDs: ids})
		if err != nil {
			return nil, fmt.Errorf("failed to load child versions, %w", err)
		}

		if len(parents) > 0 {
			p, err := records.FindAll(ctx, store.Filter{IDs: parents})
			if err != nil {
				return nil, fmt.Errorf("failed to load parent versions, %w", err)
			}

			found = append(found, p...)
		}

		frontier = frontier[:0]
		for _, f := range found {
			if _, ok := seen[f.ID]; ok {
				continue
			}

			seen[f.ID] = struct{}{}
			out = append(out, f)
			frontier = append(frontier, f)
		}
	}

	if len(out) >= maxLineageSize {
		zap.L().Warn("Lineage load truncated", zap.String("fileID", rec.ID), zap.Int("loaded", len(out)))
	}

	return out, nil
}

// Authorize evaluates the head policy of id for req. The requester's download
// history is looked up here, req.UserDownloads is ignored.
func (s *AccessService) Authorize(ctx context.Context, id string, req policy.Request) (policy.Decision, *Resolution, error) {
	res, err := s.Resolve(ctx, id)
	if err != nil {
		return 0, nil, err
	}

	p := res.Policy()

	req.UserDownloads = 0
	if req.Identity.IsUser() && p.MaxDownloadsPerUser != nil {
		n, err := s.accounting.CountUserDownloads(ctx, req.Identity.UserID, res.MemberIDs())
		if err != nil {
			return 0, nil, err
		}
		req.UserDownloads = n
	}

	d := s.evaluator.CanAccess(p, req)
	decisionsTotal.WithLabelValues(d.String()).Inc()

	return d, res, nil
}

// Inspect returns the metadata of id. Files hidden by privacy, PIN or
// expiration are reported through a DeniedError; exhausted download limits
// still show the metadata with the decision attached.
func (s *AccessService) Inspect(ctx context.Context, id string, req policy.Request) (*FileView, error) {
	req.Preview = false

	d, res, err := s.Authorize(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if hidesMetadata(d) {
		return nil, &DeniedError{Decision: d}
	}

	tags, err := s.tags.TagsOf(ctx, res.Record.ID)
	if err != nil {
		return nil, err
	}

	return &FileView{
		File:     listing.Sanitize(res.Record, req.Identity.UserID),
		HeadID:   res.Head.ID,
		Versions: len(res.Members),
		Decision: d,
		Tags:     TagNames(tags),
	}, nil
}

// DownloadResult is a granted download
type DownloadResult struct {
	URL  string           `json:"url"`
	File model.FileRecord `json:"file"`
}

// Download authorizes a download of id, counts it and returns a storage URL
// for the requested version
func (s *AccessService) Download(ctx context.Context, id string, req policy.Request, ip string) (*DownloadResult, error) {
	req.Preview = false

	d, res, err := s.Authorize(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if !d.Allowed() {
		return nil, &DeniedError{Decision: d}
	}

	url, err := s.storage.IssueDownloadURL(ctx, res.Record.StorageKey, res.Record.Name, false)
	if err != nil {
		return nil, fmt.Errorf("failed to issue download url, %w", err)
	}

	var requesterID string
	if req.Identity.IsUser() {
		requesterID = req.Identity.UserID
	}

	f, err := s.accounting.record(ctx, res.Record.ID, requesterID, ip, &res.Head)
	if err != nil {
		return nil, err
	}

	return &DownloadResult{
		URL:  url,
		File: listing.Sanitize(*f, requesterID),
	}, nil
}

// Preview returns an inline URL for id. Previews are never counted and are
// refused for private and PIN guarded lineages.
func (s *AccessService) Preview(ctx context.Context, id string, req policy.Request) (string, error) {
	req.Preview = true

	d, res, err := s.Authorize(ctx, id, req)
	if err != nil {
		return "", err
	}

	if !d.Allowed() {
		return "", &DeniedError{Decision: d}
	}

	url, err := s.storage.IssueDownloadURL(ctx, res.Record.StorageKey, res.Record.Name, true)
	if err != nil {
		return "", fmt.Errorf("failed to issue preview url, %w", err)
	}

	return url, nil
}

// Versions returns the lineage of id oldest first. The history is hidden
// whenever the head policy hides the metadata of id.
func (s *AccessService) Versions(ctx context.Context, id string, req policy.Request) ([]model.FileRecord, error) {
	req.Preview = false

	d, res, err := s.Authorize(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if hidesMetadata(d) {
		return nil, &DeniedError{Decision: d}
	}

	return listing.SanitizeAll(res.Members, req.Identity.UserID), nil
}

// hidesMetadata reports whether d keeps a caller from reading the metadata of
// a lineage. Exhausted download limits don't.
func hidesMetadata(d policy.Decision) bool {
	switch d {
	case policy.DeniedPrivate, policy.DeniedPin, policy.DeniedExpired:
		return true
	}

	return false
}

// ListVisible lists the heads requesterID may see. query filters heads by a
// case insensitive name match.
func (s *AccessService) ListVisible(ctx context.Context, requesterID, query string) ([]model.FileRecord, error) {
	records, err := s.records.FindAll(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}

	return filterByName(listing.ListVisible(records, requesterID), query), nil
}

// ListOwned lists the heads of the owner's lineages including private ones
func (s *AccessService) ListOwned(ctx context.Context, ownerID, query string) ([]model.FileRecord, error) {
	if ownerID == "" {
		return []model.FileRecord{}, nil
	}

	records, err := s.records.FindAll(ctx, store.Filter{UserID: ownerID})
	if err != nil {
		return nil, err
	}

	return filterByName(listing.ListOwned(records, ownerID), query), nil
}

func filterByName(records []model.FileRecord, query string) []model.FileRecord {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records
	}

	out := make([]model.FileRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Name), query) {
			out = append(out, r)
		}
	}

	return out
}

// IsDenied reports whether err is a policy denial and returns its decision
func IsDenied(err error) (policy.Decision, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Decision, true
	}

	return 0, false
}

// Package policy decides whether a caller may see or download a file. It is
// a pure function of the lineage head's policy fields and the request, and
// never performs I/O.
package policy

import (
	"crypto/subtle"
	"time"
)

type Decision int

const (
	Granted Decision = iota
	DeniedPrivate
	DeniedPin
	DeniedExpired
	DeniedDownloadLimit
	DeniedPerUserLimit
	DeniedAuthRequired
)

var decisionNames = map[Decision]string{
	Granted:             "granted",
	DeniedPrivate:       "denied_private",
	DeniedPin:           "denied_pin",
	DeniedExpired:       "denied_expired",
	DeniedDownloadLimit: "denied_download_limit",
	DeniedPerUserLimit:  "denied_per_user_limit",
	DeniedAuthRequired:  "denied_auth_required",
}

func (d Decision) String() string {
	if s, ok := decisionNames[d]; ok {
		return s
	}

	return "unknown"
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Decision) Allowed() bool {
	return d == Granted
}

// Identity is the per-request caller, supplied by the session layer
type Identity struct {
	UserID        string
	Authenticated bool
}

// IsUser reports whether the identity belongs to a signed in user
func (i Identity) IsUser() bool {
	return i.Authenticated && i.UserID != ""
}

// Policy holds the access contract of a lineage head. DownloadCount is the
// number of downloads counted against MaxDownloads.
type Policy struct {
	OwnerID             string
	IsPrivate           bool
	Pin                 string
	HasPin              bool
	ExpiresAt           *time.Time
	MaxDownloads        *int
	MaxDownloadsPerUser *int
	DownloadCount       int64
}

// Protected reports whether the file is private or PIN guarded. Protected
// files can never be previewed.
func (p Policy) Protected() bool {
	return p.IsPrivate || p.HasPin
}

type Request struct {
	Identity Identity
	Pin      string
	Preview  bool
	// Number of downloads the requester already made of this lineage
	UserDownloads int64
}

func (r Request) ownerOf(p Policy) bool {
	return r.Identity.IsUser() && p.OwnerID != "" && r.Identity.UserID == p.OwnerID
}

type rule struct {
	name           string
	skipForOwner   bool
	skipForPreview bool
	check          func(p Policy, r Request, now time.Time) Decision
}

// rules are evaluated top to bottom, the first one that doesn't grant wins.
// Ownership only lifts the privacy/PIN rule.
var rules = []rule{
	{
		name:  "preview_veto",
		check: checkPreview,
	},
	{
		name:         "privacy_pin",
		skipForOwner: true,
		check:        checkPrivacy,
	},
	{
		name:  "expiration",
		check: checkExpiration,
	},
	{
		name:           "download_limit",
		skipForPreview: true,
		check:          checkDownloadLimit,
	},
	{
		name:           "per_user_limit",
		skipForPreview: true,
		check:          checkPerUserLimit,
	},
}

type Evaluator struct {
	Now func() time.Time
}

func New() *Evaluator {
	return &Evaluator{Now: time.Now}
}

// CanAccess evaluates the head policy p against the request r
func (e *Evaluator) CanAccess(p Policy, r Request) Decision {
	now := e.now()
	owner := r.ownerOf(p)

	for _, rl := range rules {
		if rl.skipForOwner && owner {
			continue
		}

		if rl.skipForPreview && r.Preview {
			continue
		}

		if d := rl.check(p, r, now); d != Granted {
			return d
		}
	}

	return Granted
}

func (e *Evaluator) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}

	return e.Now()
}

// CanPreview reports whether inline rendering is allowed at all for p
func CanPreview(p Policy, isPreview bool) bool {
	return !(isPreview && p.Protected())
}

func checkPreview(p Policy, r Request, _ time.Time) Decision {
	if !CanPreview(p, r.Preview) {
		return DeniedPrivate
	}

	return Granted
}

func checkPrivacy(p Policy, r Request, _ time.Time) Decision {
	if p.IsPrivate && !p.HasPin {
		return DeniedPrivate
	}

	if p.HasPin && !PinMatches(p.Pin, r.Pin) {
		return DeniedPin
	}

	return Granted
}

func checkExpiration(p Policy, _ Request, now time.Time) Decision {
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return DeniedExpired
	}

	return Granted
}

func checkDownloadLimit(p Policy, _ Request, _ time.Time) Decision {
	if p.MaxDownloads != nil && p.DownloadCount >= int64(*p.MaxDownloads) {
		return DeniedDownloadLimit
	}

	return Granted
}

func checkPerUserLimit(p Policy, r Request, _ time.Time) Decision {
	if p.MaxDownloadsPerUser == nil {
		return Granted
	}

	if !r.Identity.IsUser() {
		return DeniedAuthRequired
	}

	if r.UserDownloads >= int64(*p.MaxDownloadsPerUser) {
		return DeniedPerUserLimit
	}

	return Granted
}

// PinMatches compares a supplied PIN with the configured one in constant time.
// Only the length check may return early.
func PinMatches(configured, supplied string) bool {
	if configured == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}

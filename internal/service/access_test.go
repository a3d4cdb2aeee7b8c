package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/policy"
	"bitwise74/fileshare-api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(id string) policy.Identity {
	return policy.Identity{UserID: id, Authenticated: true}
}

func TestPrivateChildHidesLineage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.upload(t, "owner", SyncInput{})
	child := e.upload(t, "owner", SyncInput{
		ParentID:  &root.ID,
		IsPrivate: true,
		Pin:       ptr("4321"),
	})

	anon, err := e.access.ListVisible(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, anon)

	owned, err := e.access.ListVisible(ctx, "owner", "")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, child.ID, owned[0].ID)

	res, err := e.access.Download(ctx, root.ID, policy.Request{Identity: user("someone"), Pin: "4321"}, "10.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, res.URL, root.StorageKey)
	assert.Nil(t, res.File.Pin)

	r, err := e.store.Find(ctx, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, r.DownloadCount)

	c, err := e.store.Find(ctx, child.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, c.DownloadCount)

	assert.Contains(t, e.events.kinds(), notify.FileDownloaded)
}

func TestDownloadWrongPin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	f := e.upload(t, "owner", SyncInput{Pin: ptr("1234")})

	_, err := e.access.Download(ctx, f.ID, policy.Request{Pin: "0000"}, "")
	d, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, policy.DeniedPin, d)
	assert.NotContains(t, err.Error(), "1234")

	// the owner doesn't need the PIN
	_, err = e.access.Download(ctx, f.ID, policy.Request{Identity: user("owner")}, "")
	assert.NoError(t, err)
}

func TestDownloadUnknownFile(t *testing.T) {
	e := newEnv(t)

	_, err := e.access.Download(context.Background(), "missing", policy.Request{}, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDownloadLimitCountsWholeLineage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.upload(t, "owner", SyncInput{})
	e.upload(t, "owner", SyncInput{ParentID: &root.ID, MaxDownloads: ptr(2)})

	for i := 0; i < 2; i++ {
		_, err := e.access.Download(ctx, root.ID, policy.Request{}, "")
		require.NoError(t, err)
	}

	_, err := e.access.Download(ctx, root.ID, policy.Request{}, "")
	d, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, policy.DeniedDownloadLimit, d)

	// owners are limited too
	_, err = e.access.Download(ctx, root.ID, policy.Request{Identity: user("owner")}, "")
	d, _ = IsDenied(err)
	assert.Equal(t, policy.DeniedDownloadLimit, d)
}

func TestPerUserLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	f := e.upload(t, "owner", SyncInput{MaxDownloadsPerUser: ptr(1)})

	_, err := e.access.Download(ctx, f.ID, policy.Request{Identity: user("u1")}, "")
	require.NoError(t, err)

	_, err = e.access.Download(ctx, f.ID, policy.Request{Identity: user("u1")}, "")
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedPerUserLimit, d)

	_, err = e.access.Download(ctx, f.ID, policy.Request{Identity: user("u2")}, "")
	assert.NoError(t, err)

	_, err = e.access.Download(ctx, f.ID, policy.Request{}, "")
	d, _ = IsDenied(err)
	assert.Equal(t, policy.DeniedAuthRequired, d)
}

func TestConcurrentDownloadsAreAllCounted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	f := e.upload(t, "owner", SyncInput{})

	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.access.Download(ctx, f.ID, policy.Request{}, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := e.store.Find(ctx, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, got.DownloadCount)
}

func TestPreview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	public := e.upload(t, "owner", SyncInput{})
	pinned := e.upload(t, "owner", SyncInput{Pin: ptr("1234")})

	url, err := e.access.Preview(ctx, public.ID, policy.Request{})
	require.NoError(t, err)
	assert.Contains(t, url, "inline=true")

	_, err = e.access.Preview(ctx, pinned.ID, policy.Request{Identity: user("owner"), Pin: "1234"})
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedPrivate, d)

	got, err := e.store.Find(ctx, public.ID)
	require.NoError(t, err)
	assert.Zero(t, got.DownloadCount)
}

func TestPreviewIgnoresDownloadLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	f := e.upload(t, "owner", SyncInput{MaxDownloads: ptr(1)})

	_, err := e.access.Download(ctx, f.ID, policy.Request{}, "")
	require.NoError(t, err)

	_, err = e.access.Preview(ctx, f.ID, policy.Request{})
	assert.NoError(t, err)
}

func TestExpiredHeadDeniesDownload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	f := e.upload(t, "owner", SyncInput{ExpiresAt: ptr(time.Now().UTC().Add(-time.Hour))})

	_, err := e.access.Download(ctx, f.ID, policy.Request{Identity: user("owner")}, "")
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedExpired, d)
}

func TestVersions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.upload(t, "owner", SyncInput{Pin: ptr("1111")})
	child := e.upload(t, "owner", SyncInput{ParentID: &root.ID})

	versions, err := e.access.Versions(ctx, child.ID, policy.Request{Identity: user("someone")})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, root.ID, versions[0].ID)
	assert.Nil(t, versions[0].Pin)

	versions, err = e.access.Versions(ctx, child.ID, policy.Request{Identity: user("owner")})
	require.NoError(t, err)
	require.NotNil(t, versions[0].Pin)

	e.upload(t, "owner", SyncInput{ParentID: &child.ID, IsPrivate: true})

	_, err = e.access.Versions(ctx, root.ID, policy.Request{Identity: user("someone")})
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedPrivate, d)

	versions, err = e.access.Versions(ctx, root.ID, policy.Request{Identity: user("owner")})
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestVersionsNeedPinOfHead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.upload(t, "owner", SyncInput{Name: "secret-plan.pdf"})
	e.upload(t, "owner", SyncInput{Name: "secret-plan-v2.pdf", ParentID: &root.ID, Pin: ptr("4321")})

	versions, err := e.access.Versions(ctx, root.ID, policy.Request{})
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedPin, d)
	assert.Empty(t, versions)

	_, err = e.access.Versions(ctx, root.ID, policy.Request{Pin: "0000"})
	d, _ = IsDenied(err)
	assert.Equal(t, policy.DeniedPin, d)

	versions, err = e.access.Versions(ctx, root.ID, policy.Request{Pin: "4321"})
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Nil(t, versions[1].Pin)
}

func TestVersionsOfExpiredHead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.upload(t, "owner", SyncInput{})
	e.upload(t, "owner", SyncInput{ParentID: &root.ID, ExpiresAt: ptr(time.Now().UTC().Add(-time.Hour))})

	_, err := e.access.Versions(ctx, root.ID, policy.Request{Identity: user("someone")})
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedExpired, d)
}

func TestDownloadEventFollowsHeadPrivacy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.upload(t, "owner", SyncInput{})
	e.upload(t, "owner", SyncInput{ParentID: &root.ID, IsPrivate: true, Pin: ptr("4321")})

	_, err := e.access.Download(ctx, root.ID, policy.Request{Identity: user("someone"), Pin: "4321"}, "")
	require.NoError(t, err)

	last := e.events.last(t)
	assert.Equal(t, notify.FileDownloaded, last.Kind)
	assert.Equal(t, root.ID, last.File.ID)
	assert.True(t, last.File.Private)
	assert.False(t, last.VisibleTo(""))
	assert.False(t, last.VisibleTo("someone"))
	assert.True(t, last.VisibleTo("owner"))
}

func TestResolveFollowsBothDirections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.upload(t, "owner", SyncInput{})
	b := e.upload(t, "owner", SyncInput{ParentID: &a.ID})
	c := e.upload(t, "owner", SyncInput{ParentID: &a.ID})
	d := e.upload(t, "owner", SyncInput{ParentID: &b.ID})

	res, err := e.access.Resolve(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, res.Head.ID)
	assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID, d.ID}, res.MemberIDs())
}

func TestInspect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	f := e.upload(t, "owner", SyncInput{Pin: ptr("1234"), MaxDownloads: ptr(1), Tags: []string{"Docs"}})

	_, err := e.access.Inspect(ctx, f.ID, policy.Request{Pin: "9999"})
	d, _ := IsDenied(err)
	assert.Equal(t, policy.DeniedPin, d)

	view, err := e.access.Inspect(ctx, f.ID, policy.Request{Pin: "1234"})
	require.NoError(t, err)
	assert.Equal(t, policy.Granted, view.Decision)
	assert.Equal(t, []string{"docs"}, view.Tags)
	assert.Nil(t, view.File.Pin)

	_, err = e.access.Download(ctx, f.ID, policy.Request{Pin: "1234"}, "")
	require.NoError(t, err)

	view, err = e.access.Inspect(ctx, f.ID, policy.Request{Pin: "1234"})
	require.NoError(t, err)
	assert.Equal(t, policy.DeniedDownloadLimit, view.Decision)
}

func TestListOwnedAndQuery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.upload(t, "owner", SyncInput{Name: "Report.pdf", StorageKey: "k1"})
	e.upload(t, "owner", SyncInput{Name: "cat.png", StorageKey: "k2", IsPrivate: true})
	e.upload(t, "other", SyncInput{Name: "report-2.pdf", StorageKey: "k3"})

	owned, err := e.access.ListOwned(ctx, "owner", "")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	found, err := e.access.ListVisible(ctx, "", "report")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	none, err := e.access.ListOwned(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

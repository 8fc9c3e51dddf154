package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/AudiusProject/audius-protocol-sub027/core/logging"
	"github.com/AudiusProject/audius-protocol-sub027/dbs"
	"github.com/AudiusProject/audius-protocol-sub027/dbs/sqlite"
	"github.com/AudiusProject/audius-protocol-sub027/ledger"
	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logging.Logger = zap.NewNop()
}

func newTestPool(t *testing.T) (*redis.Pool, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &redis.Pool{
		MaxIdle:   80,
		MaxActive: 1000, // max number of connections
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
	}
	return pool, mr
}

func newTestIndex(t *testing.T, opts ...Option) (*Index, *miniredis.Miniredis, dbs.Store) {
	t.Helper()
	store, err := sqlite.GetSqliteDb()
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, ledger.New(store).AutoMigrate())

	pool, mr := newTestPool(t)
	idx := New(store, pool, opts...)
	require.NoError(t, idx.AutoMigrate())
	require.NoError(t, idx.Init(context.Background()))
	return idx, mr, store
}

func seedTrack(t *testing.T, store dbs.Store, userID uint, clock int64, trackID int64, segments ...string) {
	t.Helper()
	md := `{"track_segments":[`
	for i, seg := range segments {
		if i > 0 {
			md += ","
		}
		md += `{"multihash":"` + seg + `","duration":6}`
	}
	md += `]}`
	require.NoError(t, store.Get().Create(&ledger.Track{
		UserID: userID, Clock: clock, TrackID: trackID, Metadata: md,
	}).Error)
}

func seedCopyFile(t *testing.T, store dbs.Store, userID uint, clock int64, trackID int64, multihash string) {
	t.Helper()
	require.NoError(t, store.Get().Create(&ledger.File{
		UserID: userID, Clock: clock, Multihash: multihash,
		FileType: ledger.FileTypeCopy320, TrackID: &trackID,
	}).Error)
}

func TestServableFreshCID(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	ok, err := idx.IsServable(context.Background(), "QmNeverBlocked", 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBlockedCIDJunkTrackIDs(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Item{CIDItem("QmBlocked")}))

	junk := []interface{}{nil, "abc", -1, 0.48, 1.48, []int{}, []int{1}}
	for _, tid := range junk {
		ok, err := idx.IsServable(ctx, "QmBlocked", tid)
		require.NoError(t, err)
		require.False(t, ok, "trackID %v must fall through to not-servable", tid)
	}
}

func TestExplicitTrackDenied(t *testing.T) {
	idx, _, store := newTestIndex(t)
	ctx := context.Background()
	seedTrack(t, store, 1, 1, 7, "QmSeg1", "QmSeg2")
	seedCopyFile(t, store, 1, 2, 7, "QmCopy")

	require.NoError(t, idx.Add(ctx, []Item{TrackItem(7)}))

	for _, cid := range []string{"QmSeg1", "QmSeg2", "QmCopy"} {
		ok, err := idx.IsServable(ctx, cid, 7)
		require.NoError(t, err)
		require.False(t, ok, "explicitly targeted track must not serve %s", cid)
	}

	blocked, err := idx.IsTrackBlocked(ctx, 7)
	require.NoError(t, err)
	require.True(t, blocked)

	tracks, err := idx.ExplicitTracksForCID(ctx, "QmSeg1")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, tracks)
}

func TestSharedCIDStillServable(t *testing.T) {
	idx, mr, store := newTestIndex(t)
	ctx := context.Background()
	// two unrelated tracks share identical content bytes
	seedTrack(t, store, 1, 1, 7, "QmShared")
	seedTrack(t, store, 2, 1, 8, "QmShared", "QmOwn")

	require.NoError(t, idx.Add(ctx, []Item{TrackItem(7)}))

	// track 8 was never targeted; it merely reuses a blocked hash
	ok, err := idx.IsServable(ctx, "QmShared", 8)
	require.NoError(t, err)
	require.True(t, ok)

	// the resolved set was cached with a TTL
	require.True(t, mr.Exists("track:8:cids"))
	require.Greater(t, mr.TTL("track:8:cids"), time.Duration(0))

	// the targeted track stays denied
	ok, err = idx.IsServable(ctx, "QmShared", 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlockedCIDUnrelatedTrackDenied(t *testing.T) {
	idx, mr, store := newTestIndex(t)
	ctx := context.Background()
	// the track exists but never carried the blocked hash
	seedTrack(t, store, 1, 1, 50, "QmOther")

	require.NoError(t, idx.Add(ctx, []Item{CIDItem("QmB")}))

	ok, err := idx.IsServable(ctx, "QmB", 50)
	require.NoError(t, err)
	require.False(t, ok, "a track not containing the blocked hash cannot vouch for it")

	// the track resolved from the store and its own set was cached,
	// yet membership still failed
	require.True(t, mr.Exists("track:50:cids"))
	isMember, err := mr.IsMember("track:50:cids", "QmB")
	require.NoError(t, err)
	require.False(t, isMember)

	// the track itself stays servable for its actual content
	ok, err = idx.IsServable(ctx, "QmOther", 50)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNegativeCacheShortCircuits(t *testing.T) {
	idx, mr, store := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Item{CIDItem("QmBlocked")}))

	ok, err := idx.IsServable(ctx, "QmBlocked", 99)
	require.NoError(t, err)
	require.False(t, ok)
	isMember, err := mr.IsMember(invalidTracksKey, "99")
	require.NoError(t, err)
	require.True(t, isMember)

	// the track appearing later does not matter: the negative cache
	// short-circuits before the store is consulted again
	seedTrack(t, store, 1, 1, 99, "QmBlocked")
	ok, err = idx.IsServable(ctx, "QmBlocked", 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUserExpansionIsImplicit(t *testing.T) {
	idx, _, store := newTestIndex(t)
	ctx := context.Background()
	seedTrack(t, store, 5, 1, 70, "QmU1")
	seedTrack(t, store, 5, 2, 71, "QmU2")

	require.NoError(t, idx.Add(ctx, []Item{UserItem(5)}))

	blocked, err := idx.IsUserBlocked(ctx, 5)
	require.NoError(t, err)
	require.True(t, blocked)

	for _, trackID := range []int64{70, 71} {
		blocked, err := idx.IsTrackBlocked(ctx, trackID)
		require.NoError(t, err)
		require.True(t, blocked)
	}
	for _, cid := range []string{"QmU1", "QmU2"} {
		blocked, err := idx.IsCIDBlocked(ctx, cid)
		require.NoError(t, err)
		require.True(t, blocked)

		// user-derived blocks never enter the explicit reverse map
		tracks, err := idx.ExplicitTracksForCID(ctx, cid)
		require.NoError(t, err)
		require.Empty(t, tracks)
	}
}

func TestInitEmptyStore(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	ctx := context.Background()

	users, err := idx.BlockedUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)
	tracks, err := idx.BlockedTracks(ctx)
	require.NoError(t, err)
	require.Empty(t, tracks)
	cids, err := idx.BlockedCIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, cids)
}

func TestInitRebuildsFromAuthoritativeStore(t *testing.T) {
	idx, mr, store := newTestIndex(t)
	ctx := context.Background()
	seedTrack(t, store, 1, 1, 7, "QmSeg")
	require.NoError(t, idx.Add(ctx, []Item{TrackItem(7), CIDItem("QmDirect")}))

	// the derived cache is disposable: wipe it and rebuild
	mr.FlushAll()
	require.NoError(t, idx.Init(ctx))

	for _, cid := range []string{"QmSeg", "QmDirect"} {
		blocked, err := idx.IsCIDBlocked(ctx, cid)
		require.NoError(t, err)
		require.True(t, blocked)
	}
	tracks, err := idx.ExplicitTracksForCID(ctx, "QmSeg")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, tracks)
}

func TestAllowlistAlwaysServable(t *testing.T) {
	idx, _, store := newTestIndex(t, WithAllowlist("QmPinned"))
	ctx := context.Background()
	seedTrack(t, store, 1, 1, 7, "QmPinned", "QmOther")

	require.NoError(t, idx.Add(ctx, []Item{TrackItem(7)}))

	ok, err := idx.IsServable(ctx, "QmPinned", nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = idx.IsServable(ctx, "QmOther", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveRestoresServability(t *testing.T) {
	idx, _, store := newTestIndex(t)
	ctx := context.Background()
	seedTrack(t, store, 1, 1, 7, "QmSeg")
	require.NoError(t, idx.Add(ctx, []Item{TrackItem(7), CIDItem("QmDirect")}))

	require.NoError(t, idx.Remove(ctx, []Item{TrackItem(7), CIDItem("QmDirect")}))

	for _, cid := range []string{"QmSeg", "QmDirect"} {
		ok, err := idx.IsServable(ctx, cid, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var count int64
	require.NoError(t, store.Get().Model(&BlacklistEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAddIsIdempotent(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Item{CIDItem("QmX")}))
	require.NoError(t, idx.Add(ctx, []Item{CIDItem("QmX")}))

	cids, err := idx.BlockedCIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"QmX"}, cids)
}

func TestAddCacheFailureKeepsAuthoritativeWrite(t *testing.T) {
	idx, mr, store := newTestIndex(t)
	ctx := context.Background()

	mr.Close()
	err := idx.Add(ctx, []Item{CIDItem("QmX")})
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrCacheWrite)

	// the authoritative write preceded the cache merge and sticks
	var count int64
	require.NoError(t, store.Get().Model(&BlacklistEntry{}).
		Where("type = ? AND value = ?", "CID", "QmX").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestIsServableFailsClosed(t *testing.T) {
	idx, mr, _ := newTestIndex(t)
	ctx := context.Background()

	mr.Close()
	ok, err := idx.IsServable(ctx, "QmAnything", 1)
	require.Error(t, err)
	require.False(t, ok, "an unreadable cache must never serve")
}

func TestIsServableBeforeInit(t *testing.T) {
	store, err := sqlite.GetSqliteDb()
	require.NoError(t, err)
	t.Cleanup(store.Close)
	pool, _ := newTestPool(t)
	idx := New(store, pool)

	ok, err := idx.IsServable(context.Background(), "QmX", 1)
	require.Error(t, err)
	require.False(t, ok)
}

func TestParseTrackID(t *testing.T) {
	cases := []struct {
		in interface{}
		id int64
		ok bool
	}{
		{1, 1, true},
		{int64(42), 42, true},
		{"17", 17, true},
		{float64(3), 3, true},
		{nil, 0, false},
		{-1, 0, false},
		{0, 0, false},
		{0.48, 0, false},
		{1.48, 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{[]int{}, 0, false},
		{[]int{1}, 0, false},
	}
	for _, c := range cases {
		id, ok := parseTrackID(c.in)
		require.Equal(t, c.ok, ok, "input %v", c.in)
		require.Equal(t, c.id, id, "input %v", c.in)
	}
}

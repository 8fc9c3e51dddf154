// Package blacklist maintains the derived moderation index consumed by
// the content-serving hot path. The relational store holds the
// authoritative facts; everything in redis is a rebuildable projection
// of them and is never the store of record.
package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/AudiusProject/audius-protocol-sub027/core/logging"
	"github.com/AudiusProject/audius-protocol-sub027/dbs"
	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultTrackCIDsTTL bounds the lazily-populated track→CIDs cache.
const DefaultTrackCIDsTTL = 14 * 24 * time.Hour

type Index struct {
	store     dbs.Store
	pool      *redis.Pool
	allowlist map[string]struct{}
	trackTTL  time.Duration

	// mu serializes Init/Add/Remove against each other; reads stay
	// lock-free
	mu          sync.Mutex
	initialized atomic.Bool
}

type Option func(*Index)

// WithAllowlist pins CIDs that must always remain servable, whatever
// the blacklist says.
func WithAllowlist(cids ...string) Option {
	return func(idx *Index) {
		for _, cid := range cids {
			idx.allowlist[cid] = struct{}{}
		}
	}
}

func WithTrackCIDsTTL(d time.Duration) Option {
	return func(idx *Index) {
		idx.trackTTL = d
	}
}

func New(store dbs.Store, pool *redis.Pool, opts ...Option) *Index {
	idx := &Index{
		store:     store,
		pool:      pool,
		allowlist: make(map[string]struct{}),
		trackTTL:  DefaultTrackCIDsTTL,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Index) Close() {
	idx.initialized.Store(false)
	if idx.pool != nil {
		idx.pool.Close() //nolint:errcheck
	}
}

// closure is the expansion of a set of blacklist items into the derived
// structures: which users and tracks are blocked, which CIDs those
// tracks resolve to, and which of the tracks were explicitly targeted.
type closure struct {
	users          []int64
	tracks         []int64
	explicitTracks map[int64][]string
	cids           []string
}

func (idx *Index) expand(ctx context.Context, explicitTracks, users []int64, directCIDs []string) (*closure, error) {
	implicit, err := idx.tracksOwnedBy(ctx, users)
	if err != nil {
		return nil, err
	}

	allTracks := make([]int64, 0, len(explicitTracks)+len(implicit))
	seen := make(map[int64]struct{})
	for _, id := range append(append([]int64{}, explicitTracks...), implicit...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		allTracks = append(allTracks, id)
	}

	trackCIDs, err := idx.cidsForTracks(ctx, allTracks)
	if err != nil {
		return nil, err
	}

	cids := append([]string{}, directCIDs...)
	for _, set := range trackCIDs {
		cids = append(cids, set...)
	}
	cids = dedupe(cids)

	// the static allow-list always wins
	kept := cids[:0]
	for _, cid := range cids {
		if _, ok := idx.allowlist[cid]; ok {
			continue
		}
		kept = append(kept, cid)
	}

	explicit := make(map[int64][]string, len(explicitTracks))
	for _, id := range explicitTracks {
		if set, ok := trackCIDs[id]; ok {
			explicit[id] = set
		}
	}

	return &closure{
		users:          users,
		tracks:         allTracks,
		explicitTracks: explicit,
		cids:           kept,
	}, nil
}

func splitItems(items []Item) (trackIDs, userIDs []int64, cids []string) {
	for _, it := range items {
		switch it.Kind() {
		case KindTrack:
			trackIDs = append(trackIDs, it.ID())
		case KindUser:
			userIDs = append(userIDs, it.ID())
		case KindCID:
			cids = append(cids, it.CID())
		}
	}
	return
}

// Init wipes every derived key and rebuilds the index from the
// authoritative store. Single-flight: a second Init or a concurrent
// Add/Remove waits. An unreachable store is fatal - the node cannot
// safely decide servability without a rebuilt index.
func (idx *Index) Init(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	conn, err := idx.pool.GetContext(ctx)
	if err != nil {
		return errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	defer conn.Close()

	if err := idx.wipe(conn); err != nil {
		return err
	}

	entries, err := idx.loadEntries(ctx)
	if err != nil {
		return err
	}

	var trackValues, userValues, cids []string
	for _, e := range entries {
		switch e.Type {
		case KindTrack.String():
			trackValues = append(trackValues, e.Value)
		case KindUser.String():
			userValues = append(userValues, e.Value)
		case KindCID.String():
			cids = append(cids, e.Value)
		}
	}

	cl, err := idx.expand(ctx, parseIDs(trackValues), parseIDs(userValues), cids)
	if err != nil {
		return err
	}

	if err := idx.merge(conn, cl); err != nil {
		return err
	}

	idx.initialized.Store(true)
	logging.Logger.Info("blacklist index rebuilt",
		zap.Int("users", len(cl.users)),
		zap.Int("tracks", len(cl.tracks)),
		zap.Int("cids", len(cl.cids)))
	return nil
}

func (idx *Index) wipe(conn redis.Conn) error {
	keys := []interface{}{trackBlockKey, userBlockKey, cidBlockKey, invalidTracksKey}
	for _, pattern := range []string{"blacklist:cid:*", "track:*:cids"} {
		matched, err := redis.Strings(conn.Do("KEYS", pattern))
		if err != nil {
			return errors.Wrap(common.ErrStoreUnavailable, err.Error())
		}
		for _, k := range matched {
			keys = append(keys, k)
		}
	}
	if _, err := conn.Do("DEL", keys...); err != nil {
		return errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	return nil
}

// merge pushes a closure into the derived sets. All-or-nothing: used by
// Init, where a partial index is worse than no index.
func (idx *Index) merge(conn redis.Conn, cl *closure) error {
	w := &cacheWriter{conn: conn}
	w.sadd(userBlockKey, int64Args(cl.users)...)
	w.sadd(trackBlockKey, int64Args(cl.tracks)...)
	w.sadd(cidBlockKey, stringArgs(cl.cids)...)
	for trackID, cids := range cl.explicitTracks {
		for _, cid := range cids {
			if _, ok := idx.allowlist[cid]; ok {
				continue
			}
			w.sadd(cidTracksKey(cid), trackID)
		}
	}
	if len(w.errs) > 0 {
		return errors.Wrap(common.ErrStoreUnavailable, w.errs[0].Error())
	}
	return nil
}

// Add writes the moderation facts to the authoritative store first; only
// on success is the closure recomputed for the changed ids and merged
// into the derived sets. A failed cache sub-write is logged and
// collected but does not roll back sibling cache writes.
func (idx *Index) Add(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.insertEntries(ctx, items); err != nil {
		return err
	}

	trackIDs, userIDs, cids := splitItems(items)
	cl, err := idx.expand(ctx, trackIDs, userIDs, cids)
	if err != nil {
		return err
	}

	conn, err := idx.pool.GetContext(ctx)
	if err != nil {
		return errors.Wrap(common.ErrCacheWrite, err.Error())
	}
	defer conn.Close()

	w := &cacheWriter{conn: conn}
	w.sadd(userBlockKey, int64Args(cl.users)...)
	w.sadd(trackBlockKey, int64Args(cl.tracks)...)
	w.sadd(cidBlockKey, stringArgs(cl.cids)...)
	for trackID, tcids := range cl.explicitTracks {
		for _, cid := range tcids {
			if _, ok := idx.allowlist[cid]; ok {
				continue
			}
			w.sadd(cidTracksKey(cid), trackID)
		}
	}
	return w.result()
}

// Remove deletes the facts from the authoritative store, then subtracts
// the recomputed closure from the derived sets. The subtraction is
// best-effort: a CID shared with a track that is still blacklisted comes
// back on the next Init, and the reverse map tolerates bounded staleness
// rather than paying a full rebuild per call. Admin tooling runs Init
// after bulk removals.
func (idx *Index) Remove(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	trackIDs, userIDs, cids := splitItems(items)
	// expand before the delete so user→track resolution still sees the
	// rows; the authoritative delete is by (type, value) and does not
	// depend on the expansion
	cl, err := idx.expand(ctx, trackIDs, userIDs, cids)
	if err != nil {
		return err
	}

	if err := idx.deleteEntries(ctx, items); err != nil {
		return err
	}

	conn, err := idx.pool.GetContext(ctx)
	if err != nil {
		return errors.Wrap(common.ErrCacheWrite, err.Error())
	}
	defer conn.Close()

	w := &cacheWriter{conn: conn}
	w.srem(userBlockKey, int64Args(cl.users)...)
	w.srem(trackBlockKey, int64Args(cl.tracks)...)
	w.srem(cidBlockKey, stringArgs(cl.cids)...)
	for trackID, tcids := range cl.explicitTracks {
		for _, cid := range tcids {
			w.srem(cidTracksKey(cid), trackID)
		}
	}
	return w.result()
}

// cacheWriter applies derived-set mutations, isolating individual
// failures so one bad sub-write does not abort its siblings.
type cacheWriter struct {
	conn redis.Conn
	errs []error
}

func (w *cacheWriter) sadd(key string, members ...interface{}) {
	w.do("SADD", key, members...)
}

func (w *cacheWriter) srem(key string, members ...interface{}) {
	w.do("SREM", key, members...)
}

func (w *cacheWriter) do(cmd, key string, members ...interface{}) {
	if len(members) == 0 {
		return
	}
	args := redis.Args{}.Add(key).Add(members...)
	if _, err := w.conn.Do(cmd, args...); err != nil {
		logging.Logger.Error("blacklist cache write failed",
			zap.String("cmd", cmd),
			zap.String("key", key),
			zap.Error(err))
		w.errs = append(w.errs, err)
	}
}

func (w *cacheWriter) result() error {
	if len(w.errs) == 0 {
		return nil
	}
	return errors.Wrapf(common.ErrCacheWrite, "%d cache writes failed, first: %v", len(w.errs), w.errs[0])
}

func int64Args(ids []int64) []interface{} {
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}

func stringArgs(ss []string) []interface{} {
	out := make([]interface{}, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

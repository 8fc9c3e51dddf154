package blacklist

import (
	"context"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/AudiusProject/audius-protocol-sub027/core/logging"
	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// IsServable is the hot-path decision called before any content bytes
// leave the node. Identical bytes (and thus identical CIDs) can
// legitimately be shared by unrelated tracks, so a blocked CID alone is
// not the last word: a track that was never targeted may still serve a
// hash that is blocked elsewhere. Every failure biases to not-servable.
func (idx *Index) IsServable(ctx context.Context, cid string, trackID interface{}) (bool, error) {
	if !idx.initialized.Load() {
		return false, common.NewError("index_not_initialized", "blacklist index has not been built")
	}

	conn, err := idx.pool.GetContext(ctx)
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	defer conn.Close()

	blocked, err := redis.Bool(conn.Do("SISMEMBER", cidBlockKey, cid))
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	if !blocked {
		return true, nil
	}

	id, ok := parseTrackID(trackID)
	if !ok {
		return false, nil
	}

	explicit, err := redis.Bool(conn.Do("SISMEMBER", cidTracksKey(cid), id))
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	if explicit {
		// this exact track was targeted
		return false, nil
	}

	invalid, err := redis.Bool(conn.Do("SISMEMBER", invalidTracksKey, id))
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	if invalid {
		return false, nil
	}

	cids, err := redis.Strings(conn.Do("SMEMBERS", trackCIDsKey(id)))
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	if len(cids) == 0 {
		cids, err = idx.loadTrackCIDs(ctx, id)
		if errors.Is(err, errTrackNotFound) {
			if _, aerr := conn.Do("SADD", invalidTracksKey, id); aerr != nil {
				logging.Logger.Error("blacklist cache write failed",
					zap.String("key", invalidTracksKey), zap.Error(aerr))
			}
			return false, nil
		}
		if err != nil {
			return false, err
		}
		idx.cacheTrackCIDs(conn, id, cids)
	}

	for _, c := range cids {
		if c == cid {
			// the track merely reuses a hash blocked elsewhere
			return true, nil
		}
	}
	return false, nil
}

// cacheTrackCIDs populates track:<id>:cids with a TTL. Failures are
// logged only - the decision already holds the resolved set.
func (idx *Index) cacheTrackCIDs(conn redis.Conn, trackID int64, cids []string) {
	if len(cids) == 0 {
		return
	}
	args := redis.Args{}.Add(trackCIDsKey(trackID)).AddFlat(cids)
	if _, err := conn.Do("SADD", args...); err != nil {
		logging.Logger.Error("blacklist cache write failed",
			zap.String("key", trackCIDsKey(trackID)), zap.Error(err))
		return
	}
	if _, err := conn.Do("EXPIRE", trackCIDsKey(trackID), int64(idx.trackTTL.Seconds())); err != nil {
		logging.Logger.Error("blacklist cache expire failed",
			zap.String("key", trackCIDsKey(trackID)), zap.Error(err))
	}
}

// Membership tests and diagnostics exposed to collaborators.

func (idx *Index) IsUserBlocked(ctx context.Context, userID int64) (bool, error) {
	return idx.isMember(ctx, userBlockKey, userID)
}

func (idx *Index) IsTrackBlocked(ctx context.Context, trackID int64) (bool, error) {
	return idx.isMember(ctx, trackBlockKey, trackID)
}

func (idx *Index) IsCIDBlocked(ctx context.Context, cid string) (bool, error) {
	return idx.isMember(ctx, cidBlockKey, cid)
}

// ExplicitTracksForCID is the reverse lookup: which explicitly
// blacklisted tracks reference this CID.
func (idx *Index) ExplicitTracksForCID(ctx context.Context, cid string) ([]int64, error) {
	values, err := idx.members(ctx, cidTracksKey(cid))
	if err != nil {
		return nil, err
	}
	return parseIDs(values), nil
}

func (idx *Index) BlockedUsers(ctx context.Context) ([]int64, error) {
	values, err := idx.members(ctx, userBlockKey)
	if err != nil {
		return nil, err
	}
	return parseIDs(values), nil
}

func (idx *Index) BlockedTracks(ctx context.Context) ([]int64, error) {
	values, err := idx.members(ctx, trackBlockKey)
	if err != nil {
		return nil, err
	}
	return parseIDs(values), nil
}

func (idx *Index) BlockedCIDs(ctx context.Context) ([]string, error) {
	return idx.members(ctx, cidBlockKey)
}

func (idx *Index) isMember(ctx context.Context, key string, member interface{}) (bool, error) {
	conn, err := idx.pool.GetContext(ctx)
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	defer conn.Close()
	ok, err := redis.Bool(conn.Do("SISMEMBER", key, member))
	if err != nil {
		return false, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	return ok, nil
}

func (idx *Index) members(ctx context.Context, key string) ([]string, error) {
	conn, err := idx.pool.GetContext(ctx)
	if err != nil {
		return nil, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	defer conn.Close()
	values, err := redis.Strings(conn.Do("SMEMBERS", key))
	if err != nil {
		return nil, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	return values, nil
}

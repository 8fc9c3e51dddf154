package blacklist

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/AudiusProject/audius-protocol-sub027/ledger"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlacklistEntry is an admin-managed moderation fact in the
// authoritative store. The derived cache is rebuilt from these rows.
type BlacklistEntry struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Type      string    `json:"type" gorm:"index:idx_blacklist_type_value,unique;not null"`
	Value     string    `json:"value" gorm:"index:idx_blacklist_type_value,unique;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (idx *Index) AutoMigrate() error {
	return idx.store.Get().AutoMigrate(&BlacklistEntry{})
}

func toEntries(items []Item) []BlacklistEntry {
	entries := make([]BlacklistEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, BlacklistEntry{Type: it.Kind().String(), Value: it.Value()})
	}
	return entries
}

// insertEntries writes moderation facts idempotently; duplicates are
// ignored so re-adding an already blocked id succeeds.
func (idx *Index) insertEntries(ctx context.Context, items []Item) error {
	entries := toEntries(items)
	err := idx.store.Get().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entries).Error
	if err != nil {
		return errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	return nil
}

func (idx *Index) deleteEntries(ctx context.Context, items []Item) error {
	tx := idx.store.Get().WithContext(ctx)
	for _, it := range items {
		err := tx.Where("type = ? AND value = ?", it.Kind().String(), it.Value()).
			Delete(&BlacklistEntry{}).Error
		if err != nil {
			return errors.Wrap(common.ErrStoreUnavailable, err.Error())
		}
	}
	return nil
}

func (idx *Index) loadEntries(ctx context.Context) ([]BlacklistEntry, error) {
	var entries []BlacklistEntry
	if err := idx.store.Get().WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	return entries, nil
}

// tracksOwnedBy resolves every track id owned by the given users. These
// become implicitly blacklisted: blocked, but never entered into the
// CID→explicit-track map.
func (idx *Index) tracksOwnedBy(ctx context.Context, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var trackIDs []int64
	err := idx.store.Get().WithContext(ctx).
		Model(&ledger.Track{}).
		Where("user_id IN ?", userIDs).
		Pluck("track_id", &trackIDs).Error
	if err != nil {
		return nil, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}
	return trackIDs, nil
}

var errTrackNotFound = common.NewError("track_not_found", "track is absent from the authoritative store")

// trackMetadata is the slice of the metadata blob the index cares about.
type trackMetadata struct {
	TrackSegments []struct {
		Multihash string `json:"multihash"`
	} `json:"track_segments"`
}

func segmentCIDs(metadata string) []string {
	if metadata == "" {
		return nil
	}
	var md trackMetadata
	if err := json.Unmarshal([]byte(metadata), &md); err != nil {
		return nil
	}
	cids := make([]string, 0, len(md.TrackSegments))
	for _, seg := range md.TrackSegments {
		if seg.Multihash != "" {
			cids = append(cids, seg.Multihash)
		}
	}
	return cids
}

// loadTrackCIDs unions a track's segment CIDs from its metadata with the
// multihashes of its segment and transcoded-copy file rows.
func (idx *Index) loadTrackCIDs(ctx context.Context, trackID int64) ([]string, error) {
	var trk ledger.Track
	err := idx.store.Get().WithContext(ctx).
		Where("track_id = ?", trackID).
		First(&trk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errTrackNotFound
	}
	if err != nil {
		return nil, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}

	cids := segmentCIDs(trk.Metadata)

	var fileCIDs []string
	err = idx.store.Get().WithContext(ctx).
		Model(&ledger.File{}).
		Where("track_id = ? AND file_type IN ?", trackID, []string{ledger.FileTypeTrack, ledger.FileTypeCopy320}).
		Pluck("multihash", &fileCIDs).Error
	if err != nil {
		return nil, errors.Wrap(common.ErrStoreUnavailable, err.Error())
	}

	return dedupe(append(cids, fileCIDs...)), nil
}

// cidsForTracks resolves the CID set of each given track, skipping
// tracks absent from the store.
func (idx *Index) cidsForTracks(ctx context.Context, trackIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(trackIDs))
	for _, id := range trackIDs {
		cids, err := idx.loadTrackCIDs(ctx, id)
		if errors.Is(err, errTrackNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = cids
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func parseIDs(values []string) []int64 {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

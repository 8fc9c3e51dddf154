package ledger

import (
	"time"
)

// SourceTable enumerates the logical record tables whose writes consume
// ledger clocks.
type SourceTable string

const (
	SourceFiles     SourceTable = "files"
	SourceTracks    SourceTable = "tracks"
	SourceUsers     SourceTable = "audius_users"
	SourcePlaylists SourceTable = "playlists"
)

func (st SourceTable) Valid() bool {
	switch st {
	case SourceFiles, SourceTracks, SourceUsers, SourcePlaylists:
		return true
	}
	return false
}

// Account is the per-node user row. Clock is the highest sequence number
// issued to the user so far; a fresh account sits at 0.
type Account struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Wallet    string    `json:"wallet" gorm:"uniqueIndex;not null"`
	Clock     int64     `json:"clock" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry marks that sequence number Clock was consumed by a write
// into SourceTable. The composite primary key makes allocation
// exactly-once: a raced reservation dies on insert, not on read.
type LedgerEntry struct {
	UserID      uint        `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Clock       int64       `json:"clock" gorm:"primaryKey;autoIncrement:false"`
	SourceTable SourceTable `json:"source_table" gorm:"not null"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Record is any content row whose write consumes a ledger clock. A
// record and its ledger entry are created in the same transaction and
// are immutable afterwards.
type Record interface {
	Source() SourceTable
	// StampLedger sets the composite ledger reference on the row.
	StampLedger(userID uint, clock int64)
	// LedgerClock returns the pre-assigned clock, or 0 when the ledger
	// allocates one. Import paths replaying a peer export pre-stamp rows.
	LedgerClock() int64
}

// File is a content-addressed row: an uploaded segment, transcoded copy,
// metadata blob or image. Multihash is the record's CID and the input to
// the range hash.
type File struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	UserID    uint      `json:"user_id" gorm:"index:idx_files_user_clock,unique"`
	Clock     int64     `json:"clock" gorm:"index:idx_files_user_clock,unique"`
	Multihash string    `json:"multihash" gorm:"not null;index"`
	FileType  string    `json:"file_type" gorm:"not null"`
	TrackID   *int64    `json:"track_id" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// File types. Segment rows carry type "track"; full transcodes "copy320".
const (
	FileTypeTrack    = "track"
	FileTypeCopy320  = "copy320"
	FileTypeMetadata = "metadata"
	FileTypeImage    = "image"
)

func (f *File) Source() SourceTable { return SourceFiles }
func (f *File) StampLedger(userID uint, clock int64) {
	f.UserID = userID
	f.Clock = clock
}
func (f *File) LedgerClock() int64 { return f.Clock }

// Track is the parent entity row of a media track. Metadata is the raw
// JSON blob holding track_segments.
type Track struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	UserID    uint      `json:"user_id" gorm:"index:idx_tracks_user_clock,unique"`
	Clock     int64     `json:"clock" gorm:"index:idx_tracks_user_clock,unique"`
	TrackID   int64     `json:"track_id" gorm:"uniqueIndex;not null"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Track) Source() SourceTable { return SourceTracks }
func (t *Track) StampLedger(userID uint, clock int64) {
	t.UserID = userID
	t.Clock = clock
}
func (t *Track) LedgerClock() int64 { return t.Clock }

// AudiusUser is the user-profile entity row.
type AudiusUser struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	UserID    uint      `json:"user_id" gorm:"index:idx_audius_users_user_clock,unique"`
	Clock     int64     `json:"clock" gorm:"index:idx_audius_users_user_clock,unique"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *AudiusUser) Source() SourceTable { return SourceUsers }
func (u *AudiusUser) StampLedger(userID uint, clock int64) {
	u.UserID = userID
	u.Clock = clock
}
func (u *AudiusUser) LedgerClock() int64 { return u.Clock }

// Playlist is the playlist entity row.
type Playlist struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	UserID     uint      `json:"user_id" gorm:"index:idx_playlists_user_clock,unique"`
	Clock      int64     `json:"clock" gorm:"index:idx_playlists_user_clock,unique"`
	PlaylistID int64     `json:"playlist_id" gorm:"index"`
	Metadata   string    `json:"metadata"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p *Playlist) Source() SourceTable { return SourcePlaylists }
func (p *Playlist) StampLedger(userID uint, clock int64) {
	p.UserID = userID
	p.Clock = clock
}
func (p *Playlist) LedgerClock() int64 { return p.Clock }

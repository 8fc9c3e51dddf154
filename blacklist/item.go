package blacklist

import (
	"math"
	"strconv"
)

// Kind discriminates blacklist values.
type Kind int

const (
	KindTrack Kind = iota
	KindUser
	KindCID
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "TRACK"
	case KindUser:
		return "USER"
	case KindCID:
		return "CID"
	}
	return "unknown kind"
}

// Item is a tagged union over the three blacklistable value shapes:
// a track id, a user id or an exact content hash. The tag removes the
// runtime parsing ambiguity of storing everything as loose strings.
type Item struct {
	kind Kind
	id   int64
	cid  string
}

func TrackItem(id int64) Item { return Item{kind: KindTrack, id: id} }
func UserItem(id int64) Item  { return Item{kind: KindUser, id: id} }
func CIDItem(cid string) Item { return Item{kind: KindCID, cid: cid} }

func (it Item) Kind() Kind { return it.kind }

// Value is the authoritative-store encoding of the item.
func (it Item) Value() string {
	if it.kind == KindCID {
		return it.cid
	}
	return strconv.FormatInt(it.id, 10)
}

func (it Item) ID() int64   { return it.id }
func (it Item) CID() string { return it.cid }

// parseTrackID accepts the untrusted track id a collaborator pulled off
// a request. Only a positive integer identifies a track; anything else
// (absent, negative, fractional, non-numeric, a list) means "no valid
// track" and the caller falls through to not-servable.
func parseTrackID(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return checkPositive(int64(t))
	case int8:
		return checkPositive(int64(t))
	case int16:
		return checkPositive(int64(t))
	case int32:
		return checkPositive(int64(t))
	case int64:
		return checkPositive(t)
	case uint:
		return checkPositive(int64(t))
	case uint8:
		return checkPositive(int64(t))
	case uint16:
		return checkPositive(int64(t))
	case uint32:
		return checkPositive(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return checkPositive(int64(t))
	case float32:
		return parseFloatID(float64(t))
	case float64:
		return parseFloatID(t)
	case string:
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return checkPositive(id)
	}
	return 0, false
}

func parseFloatID(f float64) (int64, bool) {
	if f != math.Trunc(f) {
		return 0, false
	}
	return checkPositive(int64(f))
}

func checkPositive(id int64) (int64, bool) {
	if id <= 0 {
		return 0, false
	}
	return id, true
}

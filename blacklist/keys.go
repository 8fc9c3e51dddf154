package blacklist

import "fmt"

// Derived-cache key namespace. Everything under these keys is
// rebuildable from the authoritative store at any time.
const (
	trackBlockKey    = "blacklist:track"
	userBlockKey     = "blacklist:user"
	cidBlockKey      = "blacklist:cid"
	invalidTracksKey = "blacklist:invalidTracks"
)

// cidTracksKey - set of explicitly blacklisted track ids referencing cid
func cidTracksKey(cid string) string {
	return "blacklist:cid:" + cid
}

// trackCIDsKey - TTL'd set of the CIDs belonging to a track
func trackCIDsKey(trackID int64) string {
	return fmt.Sprintf("track:%d:cids", trackID)
}

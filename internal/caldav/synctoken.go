package caldav

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirilledition/televent/internal/ids"
)

const syncTokenURNPrefix = "urn:x-televent:"

// encodeSyncToken builds the opaque wire form §4.3/§9 require:
// urn:x-televent:<user_id>:<sync_token>.
func encodeSyncToken(userID ids.UserID, token int64) string {
	return fmt.Sprintf("%s%s:%d", syncTokenURNPrefix, userID.String(), token)
}

// parseSyncToken extracts the integer suffix from an opaque sync-token,
// per §4.5's "parse its integer suffix (absent => 0)" rule. Any token that
// doesn't parse is treated as absent rather than rejected, since a client
// starting fresh sync is always safe.
func parseSyncToken(raw string) int64 {
	if raw == "" {
		return 0
	}
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

package caldav

import (
	"strconv"
	"strings"

	"github.com/kirilledition/televent/internal/ids"
)

const internalEmailSuffix = "@televent.internal"
const internalEmailPrefix = "tg_"

// internalAttendeeTelegramID parses the reserved tg_<telegram_id>@televent.internal
// form (§6) and returns the telegram id it encodes. External-looking
// addresses are left alone.
func internalAttendeeTelegramID(email string) (ids.UserID, bool) {
	if !strings.HasSuffix(email, internalEmailSuffix) {
		return 0, false
	}
	local := strings.TrimSuffix(email, internalEmailSuffix)
	if !strings.HasPrefix(local, internalEmailPrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(local, internalEmailPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return ids.UserID(n), true
}

// internalEmailFor builds the reserved address form for a Telegram user id,
// the inverse of internalAttendeeTelegramID.
func internalEmailFor(userID ids.UserID) string {
	return internalEmailPrefix + userID.String() + internalEmailSuffix
}

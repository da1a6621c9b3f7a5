package caldav

import (
	"path/filepath"
	"strings"

	"github.com/kirilledition/televent/internal/ids"
)

// splitPath decomposes a request path under basePath into its collection
// and resource segments, per §4.5's layout:
//
//	/caldav/                    -> discovery root
//	/caldav/<user_id>/          -> collection
//	/caldav/<user_id>/<uid>.ics -> resource
//
// uid is returned with the ".ics" suffix already stripped.
func splitPath(urlPath, basePath string) (userIDStr, uid string, isResource bool) {
	p := strings.TrimPrefix(urlPath, basePath)
	p = strings.Trim(p, "/")
	if p == "" {
		return "", "", false
	}
	parts := strings.Split(p, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", false
	case 2:
		filename := parts[1]
		return parts[0], strings.TrimSuffix(filename, filepath.Ext(filename)), true
	default:
		return "", "", false
	}
}

func collectionHref(basePath string, userID ids.UserID) string {
	return joinURL(basePath, userID.String()) + "/"
}

func resourceHref(basePath string, userID ids.UserID, uid string) string {
	return joinURL(basePath, userID.String(), uid+".ics")
}

func joinURL(parts ...string) string {
	s := strings.Join(parts, "/")
	s = strings.ReplaceAll(s, "//", "/")
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

package caldav

import (
	"encoding/xml"
	"io"
	"net/http"

	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
)

// knownProps is the full set of properties this engine can answer, across
// both PROPFIND depths. A client asking for anything outside this set gets
// a 404 propstat block for it (§4.5).
var knownProps = map[string]bool{
	"displayname":                      true,
	"resourcetype":                     true,
	"getctag":                          true,
	"sync-token":                       true,
	"supported-calendar-component-set": true,
	"getlastmodified":                  true,
	"calendar-color":                   true,
	"current-user-principal":           true,
	"calendar-home-set":                true,
	"getetag":                          true,
	"getcontenttype":                   true,
}

func (e *Engine) handlePropfind(w http.ResponseWriter, r *http.Request, userID ids.UserID, isResource bool, uid string) {
	if isResource {
		http.Error(w, "PROPFIND on an individual resource is not supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var unknown []string
	if len(body) > 0 {
		var req PropfindRequest
		if err := xml.Unmarshal(body, &req); err == nil && req.Prop != nil {
			for _, name := range req.Prop.Items {
				if !knownProps[name.Local] {
					unknown = append(unknown, name.Local)
				}
			}
		}
	}

	user, err := e.store.GetUserByID(r.Context(), userID)
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	depth := r.Header.Get("Depth")
	collectionResp := e.buildCollectionResponse(user, unknown)

	if depth != "1" {
		_ = writeMultiStatus(w, MultiStatus{Resp: []Response{collectionResp}})
		return
	}

	events, err := e.store.ListEventsInRange(r.Context(), userID, nil, nil)
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	resps := []Response{collectionResp}
	for _, ev := range events {
		resps = append(resps, e.buildResourceResponse(ev, unknown))
	}
	_ = writeMultiStatus(w, MultiStatus{Resp: resps})
}

func (e *Engine) buildCollectionResponse(user *store.User, unknown []string) Response {
	ctag := user.CTag()
	syncToken := encodeSyncToken(user.TelegramID, user.SyncToken)
	displayName := user.CalendarName
	color := user.CalendarColor
	lastModified := user.UpdatedAt.UTC().Format(http.TimeFormat)
	home := joinURL(e.basePath, user.TelegramID.String()) + "/"
	currentUserPrincipal := Href{Value: home}
	calendarHomeSet := Href{Value: home}

	prop := Prop{
		ResourceType:                  &ResourceType{Collection: &struct{}{}, Calendar: &struct{}{}},
		DisplayName:                   &displayName,
		GetCTag:                       &ctag,
		SyncToken:                     &syncToken,
		SupportedCalendarComponentSet: &SupportedCompSet{Comp: []Comp{{Name: "VEVENT"}}},
		GetLastModified:               lastModified,
		CalendarColor:                 &color,
		CurrentUserPrincipal:          &currentUserPrincipal,
		CalendarHomeSet:               &calendarHomeSet,
	}

	resp := Response{
		Href: home,
		Props: []PropStat{
			{Prop: prop, Status: statusLine(http.StatusOK)},
		},
	}
	if len(unknown) > 0 {
		resp.Props = append(resp.Props, unknownPropStat())
	}
	return resp
}

func (e *Engine) buildResourceResponse(ev store.Event, unknown []string) Response {
	contentType := contentTypeEvent
	prop := Prop{
		GetETag:         `"` + ev.ETag + `"`,
		GetContentType:  &contentType,
		GetLastModified: ev.UpdatedAt.UTC().Format(http.TimeFormat),
	}
	resp := Response{
		Href:  resourceHref(e.basePath, ev.UserID, ev.UID),
		Props: []PropStat{{Prop: prop, Status: statusLine(http.StatusOK)}},
	}
	if len(unknown) > 0 {
		resp.Props = append(resp.Props, unknownPropStat())
	}
	return resp
}

// unknownPropStat is the 404 propstat block §4.5 asks for when a PROPFIND
// requests a property outside knownProps. It carries an empty prop body —
// the status line itself is the signal, not a named property.
func unknownPropStat() PropStat {
	return PropStat{Prop: Prop{}, Status: statusLine(http.StatusNotFound)}
}

package caldav

import (
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
	"github.com/kirilledition/televent/pkg/ical"
)

// reportBodyLimit bounds REPORT XML bodies. Unlike PUT's configurable
// maxICSBytes (§4.5's body-size limit is an iCalendar-payload concept),
// REPORT filters are small XML documents; 1 MiB is generous headroom.
const reportBodyLimit = 1 << 20

func (e *Engine) handleReport(w http.ResponseWriter, r *http.Request, userID ids.UserID) {
	body, err := io.ReadAll(io.LimitReader(r.Body, reportBodyLimit))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(body, &probe); err != nil {
		http.Error(w, "malformed REPORT body", http.StatusBadRequest)
		return
	}

	switch probe.XMLName.Local {
	case "calendar-query":
		e.reportCalendarQuery(w, r, userID, body)
	case "sync-collection":
		e.reportSyncCollection(w, r, userID, body)
	case "calendar-multiget", "free-busy-query":
		// Out of scope (§1 Non-goals: no sharing, no scheduling transport)
		http.Error(w, "unsupported REPORT type", http.StatusBadRequest)
	default:
		http.Error(w, "unsupported REPORT type", http.StatusBadRequest)
	}
}

// reportCalendarQuery implements REPORT: calendar-query (§4.5). Filtering
// is done in-engine rather than pushed entirely into Store.ListEventsInRange's
// SQL, because that query only tests the stored base occurrence's own
// window: a weekly-recurring event whose first instance predates the query
// window would otherwise be missed. CalDAVEngine re-checks every
// RRULE-bearing event with OccursInRange (rrule-go, capped at
// ical.MaxRecurrenceInstances) to decide inclusion, per the calendar-query
// entry in the recurrence-handling column of the domain stack.
func (e *Engine) reportCalendarQuery(w http.ResponseWriter, r *http.Request, userID ids.UserID, body []byte) {
	var q CalendarQuery
	start, end := (*time.Time)(nil), (*time.Time)(nil)
	if err := xml.Unmarshal(body, &q); err == nil {
		if tr := findTimeRange(q.Filter.CompFilter); tr != nil {
			if tr.Start != "" {
				if t, err := parseICalTime(tr.Start); err == nil {
					start = &t
				}
			}
			if tr.End != "" {
				if t, err := parseICalTime(tr.End); err == nil {
					end = &t
				}
			}
		}
	}

	events, err := e.store.ListEventsInRange(r.Context(), userID, nil, nil)
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	var resps []Response
	for _, ev := range events {
		if start != nil && end != nil && !e.eventInRange(ev, *start, *end) {
			continue
		}
		resps = append(resps, e.buildCalendarDataResponse(ev))
	}
	_ = writeMultiStatus(w, MultiStatus{Resp: resps})
}

func (e *Engine) eventInRange(ev store.Event, start, end time.Time) bool {
	if ev.RRule != "" {
		anchor := ev.Start
		if anchor == nil {
			anchor = ev.StartDate
		}
		if anchor == nil {
			return false
		}
		ok, err := ical.OccursInRange(ev.RRule, *anchor, start, end)
		if err != nil {
			e.logger.Warn().Err(err).Str("uid", ev.UID).Msg("invalid stored RRULE during calendar-query")
			return false
		}
		if ok {
			return true
		}
	}
	switch {
	case ev.Start != nil && ev.End != nil:
		return ev.End.After(start) && ev.Start.Before(end)
	case ev.StartDate != nil && ev.EndDate != nil:
		return ev.EndDate.After(start) && ev.StartDate.Before(end)
	default:
		return false
	}
}

func (e *Engine) buildCalendarDataResponse(ev store.Event) Response {
	data := string(ical.Serialize(toEventData(&ev), e.prodID))
	prop := Prop{
		GetETag:      `"` + ev.ETag + `"`,
		CalendarData: data,
	}
	return Response{
		Href:  resourceHref(e.basePath, ev.UserID, ev.UID),
		Props: []PropStat{{Prop: prop, Status: statusLine(http.StatusOK)}},
	}
}

func findTimeRange(cf CompFilter) *TimeRange {
	if cf.Name == "VEVENT" && cf.TimeRange != nil {
		return cf.TimeRange
	}
	if cf.CompFilter != nil {
		return findTimeRange(*cf.CompFilter)
	}
	return cf.TimeRange
}

// parseICalTime parses the basic iCalendar DATE-TIME form RFC 4791's
// time-range attributes use (YYYYMMDDTHHMMSSZ).
func parseICalTime(s string) (time.Time, error) {
	return time.Parse("20060102T150405Z", s)
}

// reportSyncCollection implements REPORT: sync-collection (§4.5, RFC 6578).
func (e *Engine) reportSyncCollection(w http.ResponseWriter, r *http.Request, userID ids.UserID, body []byte) {
	var sc SyncCollectionRequest
	_ = xml.Unmarshal(body, &sc)
	sinceToken := parseSyncToken(sc.SyncToken)

	changes, currentToken, err := e.store.ListChangesSince(r.Context(), userID, sinceToken)
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	var resps []Response
	for _, ch := range changes {
		href := resourceHref(e.basePath, userID, ch.UID)
		if ch.Deleted {
			resps = append(resps, Response{
				Href:  href,
				Props: []PropStat{{Prop: Prop{}, Status: statusLine(http.StatusNotFound)}},
			})
			continue
		}
		resps = append(resps, e.buildCalendarDataResponse(*ch.Event))
	}

	_ = writeMultiStatus(w, MultiStatus{
		Resp:      resps,
		SyncToken: encodeSyncToken(userID, currentToken),
	})
}

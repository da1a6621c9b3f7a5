// Package caldav is CalDAVEngine (spec §4.5): the HTTP surface that maps
// WebDAV/CalDAV verbs onto Store and ICalCodec. It is grounded on the
// teacher's internal/dav/caldav package for the overall multistatus/
// propstat shapes and its REPORT-method XML-root dispatch, generalized
// from the teacher's multi-calendar, ACL-checked, CardDAV-adjacent engine
// down to Televent's one-calendar-per-user, no-sharing model (§4.5's
// collection layout has no MKCALENDAR, no ACL, no calendar-multiget).
package caldav

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
)

const (
	nsDAV    = "DAV:"
	nsCalDAV = "urn:ietf:params:xml:ns:caldav"
)

// MultiStatus is the 207 response body shape, trimmed from the teacher's
// common.MultiStatus to the properties §4.5 actually names (no ACL, no
// quota, no principal-collection-set).
type MultiStatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	XmlnsD    string     `xml:"xmlns:D,attr,omitempty"`
	XmlnsC    string     `xml:"xmlns:C,attr,omitempty"`
	XmlnsCS   string     `xml:"xmlns:CS,attr,omitempty"`
	Resp      []Response `xml:"response"`
	SyncToken string     `xml:"DAV: sync-token,omitempty"`
}

type Response struct {
	Href  string     `xml:"href"`
	Props []PropStat `xml:"propstat"`
}

type PropStat struct {
	Prop   Prop   `xml:"prop"`
	Status string `xml:"status"`
}

// Prop is the union of every property §4.5 mentions across PROPFIND and
// REPORT responses.
type Prop struct {
	ResourceType                  *ResourceType     `xml:"DAV: resourcetype,omitempty"`
	DisplayName                   *string           `xml:"DAV: displayname,omitempty"`
	CurrentUserPrincipal          *Href             `xml:"DAV: current-user-principal>href,omitempty"`
	CalendarHomeSet               *Href             `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set>href,omitempty"`
	SupportedCalendarComponentSet *SupportedCompSet `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set,omitempty"`
	GetCTag                       *string           `xml:"http://calendarserver.org/ns/ getctag,omitempty"`
	SyncToken                     *string           `xml:"DAV: sync-token,omitempty"`
	CalendarColor                 *string           `xml:"http://apple.com/ns/ical/ calendar-color,omitempty"`
	GetContentType                *string           `xml:"DAV: getcontenttype,omitempty"`
	GetETag                       string            `xml:"DAV: getetag,omitempty"`
	GetLastModified                string           `xml:"DAV: getlastmodified,omitempty"`
	CalendarData                  string            `xml:"urn:ietf:params:xml:ns:caldav calendar-data,omitempty"`
}

type ResourceType struct {
	Collection *struct{} `xml:"DAV: collection,omitempty"`
	Calendar   *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar,omitempty"`
}

type Href struct {
	Value string `xml:",chardata"`
}

type SupportedCompSet struct {
	Comp []Comp `xml:"urn:ietf:params:xml:ns:caldav comp"`
}
type Comp struct {
	Name string `xml:"name,attr"`
}

// PropfindRequest captures just the requested property names, so
// PROPFIND can answer "404 Not Found" for anything outside the known set
// (§4.5: "requested-but-unknown properties appear under a 404 propstat
// block").
type PropfindRequest struct {
	XMLName xml.Name  `xml:"propfind"`
	Prop    *rawProp  `xml:"prop"`
	AllProp *struct{} `xml:"allprop"`
}

type rawProp struct {
	Items []xml.Name `xml:",any"`
}

// UnmarshalXML captures child element names without caring about their
// (empty) content — the standard "any element, ignore body" trick.
func (p *rawProp) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.Items = append(p.Items, t.Name)
			if err := d.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// CalendarQuery is the REPORT: calendar-query request body (§4.5): only
// the time-range filter is meaningful here, since calendar-query always
// answers with full calendar-data + getetag regardless of what <prop> asks
// for.
type CalendarQuery struct {
	XMLName xml.Name       `xml:"urn:ietf:params:xml:ns:caldav calendar-query"`
	Filter  CalendarFilter `xml:"urn:ietf:params:xml:ns:caldav filter"`
}

type CalendarFilter struct {
	CompFilter CompFilter `xml:"urn:ietf:params:xml:ns:caldav comp-filter"`
}

type CompFilter struct {
	Name       string      `xml:"name,attr"`
	CompFilter *CompFilter `xml:"urn:ietf:params:xml:ns:caldav comp-filter,omitempty"`
	TimeRange  *TimeRange  `xml:"urn:ietf:params:xml:ns:caldav time-range,omitempty"`
}

type TimeRange struct {
	Start string `xml:"start,attr,omitempty"`
	End   string `xml:"end,attr,omitempty"`
}

// SyncCollectionRequest is the REPORT: sync-collection request body
// (RFC 6578).
type SyncCollectionRequest struct {
	XMLName   xml.Name `xml:"DAV: sync-collection"`
	SyncToken string   `xml:"DAV: sync-token"`
}

func writeMultiStatus(w http.ResponseWriter, ms MultiStatus) error {
	ms.XmlnsD = "DAV:"
	ms.XmlnsC = nsCalDAV
	ms.XmlnsCS = "http://calendarserver.org/ns/"

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(ms); err != nil {
		return fmt.Errorf("caldav: encode multistatus: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, err := w.Write(buf.Bytes())
	return err
}

func statusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

package caldav

import (
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirilledition/televent/internal/auth"
	"github.com/kirilledition/televent/internal/config"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
)

const testUserID = ids.UserID(42)

func newTestEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	fs := newFakeStore(testUserID)
	encoded, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	fs.devicePasswords = []store.DevicePassword{
		{ID: "dp-1", UserID: testUserID, DeviceName: "test", PasswordHash: encoded},
	}

	gate := auth.NewGate(fs, 5, zerolog.Nop())
	cfg := &config.Config{
		HTTP: config.HTTPConfig{BasePath: "/caldav", MaxICSBytes: 1 << 20},
		ICS:  config.ICSConfig{CompanyName: "Televent", ProductName: "CalDAV", Version: "1.0.0", Language: "EN"},
	}
	return NewEngine(fs, gate, cfg, zerolog.Nop()), fs
}

func authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("42:s3cret"))
}

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", authHeader())
	return req
}

const vevent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev-1@televent\r\n" +
	"DTSTAMP:20260101T120000Z\r\n" +
	"DTSTART:20260615T090000Z\r\n" +
	"DTEND:20260615T100000Z\r\n" +
	"SUMMARY:Design review\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestHandlePutCreatesEvent(t *testing.T) {
	engine, fs := newTestEngine(t)
	req := newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.Contains(t, fs.events, "ev-1@televent")
}

func TestHandlePutThenGetRoundTrips(t *testing.T) {
	engine, _ := newTestEngine(t)
	putReq := newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent)
	engine.ServeHTTP(httptest.NewRecorder(), putReq)

	getReq := newRequest(http.MethodGet, "/caldav/42/ev-1@televent.ics", "")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, getReq)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Design review")
}

func TestHandlePutRejectsRRuleMissingFreq(t *testing.T) {
	engine, fs := newTestEngine(t)
	bad := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:recurring-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART:20260615T090000Z\r\n" +
		"DTEND:20260615T100000Z\r\n" +
		"SUMMARY:Garbage recurrence\r\n" +
		"RRULE:COUNT=5\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	req := newRequest(http.MethodPut, "/caldav/42/recurring-1@televent.ics", bad)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, fs.events, "recurring-1@televent")
}

func TestHandlePutRejectsUIDMismatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := newRequest(http.MethodPut, "/caldav/42/different-uid.ics", vevent)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlePutHonorsIfMatchPrecondition(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.ServeHTTP(httptest.NewRecorder(), newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent))

	req := newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent)
	req.Header.Set("If-Match", `"stale-etag"`)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestHandleDeleteRemovesEvent(t *testing.T) {
	engine, fs := newTestEngine(t)
	engine.ServeHTTP(httptest.NewRecorder(), newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, newRequest(http.MethodDelete, "/caldav/42/ev-1@televent.ics", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, fs.events, "ev-1@televent")
}

func TestServeHTTPRejectsCrossUserAccess(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := newRequest(http.MethodGet, "/caldav/999/ev-1@televent.ics", "")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTPRejectsDepthInfinity(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := newRequest("PROPFIND", "/caldav/42/", "")
	req.Header.Set("Depth", "infinity")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServeHTTPRejectsMissingAuth(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/caldav/42/ev-1@televent.ics", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestHandleOptionsIsPublic(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/caldav/42/", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("DAV"))
}

func TestPropfindCollectionReturnsCTagAndSyncToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := newRequest("PROPFIND", "/caldav/42/", "")
	req.Header.Set("Depth", "0")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, 207, rec.Code)
	var ms MultiStatus
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &ms))
	require.Len(t, ms.Resp, 1)
	require.NotNil(t, ms.Resp[0].Props[0].Prop.GetCTag)
	assert.NotEmpty(t, *ms.Resp[0].Props[0].Prop.GetCTag)
}

func TestReportCalendarQueryFiltersByTimeRange(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.ServeHTTP(httptest.NewRecorder(), newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent))

	body := `<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="20270101T000000Z" end="20270102T000000Z"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`
	req := newRequest("REPORT", "/caldav/42/", body)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, 207, rec.Code)
	var ms MultiStatus
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &ms))
	assert.Len(t, ms.Resp, 0, "event in June 2026 should not match a 2027 time-range filter")
}

func TestReportSyncCollectionReturnsChangesAndToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.ServeHTTP(httptest.NewRecorder(), newRequest(http.MethodPut, "/caldav/42/ev-1@televent.ics", vevent))

	body := `<D:sync-collection xmlns:D="DAV:"><D:sync-token></D:sync-token></D:sync-collection>`
	req := newRequest("REPORT", "/caldav/42/", body)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, 207, rec.Code)
	var ms MultiStatus
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &ms))
	require.Len(t, ms.Resp, 1)
	assert.NotEmpty(t, ms.SyncToken)
}

package provider

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-connect/backend/internal/storage/models"
)

func TestParseCalendarData(t *testing.T) {
	a := NewApple()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	data := icsText(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:caldav-1",
		"SUMMARY:Prayer meeting",
		"DTSTART:20260903T180000Z",
		"DTEND:20260903T190000Z",
		"STATUS:CONFIRMED",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:caldav-2",
		"SUMMARY:Retreat",
		"DTSTART;VALUE=DATE:20260912",
		"DTEND;VALUE=DATE:20260914",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	events, err := a.parseCalendarData(data, start, end)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byID := map[string]RemoteEvent{}
	for _, ev := range events {
		byID[ev.ExternalID] = ev
	}

	timed := byID["caldav-1"]
	assert.Equal(t, "Prayer meeting", timed.Title)
	assert.Equal(t, time.Date(2026, 9, 3, 18, 0, 0, 0, time.UTC), timed.StartTime)
	assert.False(t, timed.AllDay)
	assert.Equal(t, models.EventStatusConfirmed, timed.Status)

	allDay := byID["caldav-2"]
	assert.True(t, allDay.AllDay)
	assert.Equal(t, time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC), allDay.StartTime)
	assert.Equal(t, time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), allDay.EndTime)
}

func TestParseCalendarDataRecurringExpansion(t *testing.T) {
	a := NewApple()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)

	data := icsText(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:standup",
		"SUMMARY:Staff standup",
		"DTSTART:20260902T090000Z",
		"DTEND:20260902T093000Z",
		"RRULE:FREQ=WEEKLY;COUNT=10",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	events, err := a.parseCalendarData(data, start, end)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "standup/20260902T090000Z", events[0].ExternalID)
	assert.Equal(t, "standup/20260909T090000Z", events[1].ExternalID)
}

func TestParseCalendarDataInvalid(t *testing.T) {
	a := NewApple()
	_, err := a.parseCalendarData("not a calendar", time.Now(), time.Now().Add(time.Hour))
	assert.Error(t, err)
}

// caldavServer fakes the iCloud discovery and query endpoints.
func caldavServer(t *testing.T, calendarData string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "pastor@example.com" || pass != "app-password" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)

		switch {
		case r.Method == "PROPFIND" && r.URL.Path == "/":
			fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/</d:href>
    <d:propstat>
      <d:prop><d:current-user-principal><d:href>/principals/42/</d:href></d:current-user-principal></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
		case r.Method == "PROPFIND" && r.URL.Path == "/principals/42/":
			fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/principals/42/</d:href>
    <d:propstat>
      <d:prop><c:calendar-home-set><d:href>/calendars/42/</d:href></c:calendar-home-set></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
		case r.Method == "PROPFIND" && r.URL.Path == "/calendars/42/":
			fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/calendars/42/</d:href>
    <d:propstat>
      <d:prop><d:resourcetype/><d:displayname>Home</d:displayname></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/42/work/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <d:displayname>Work</d:displayname>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/42/church/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <d:displayname></d:displayname>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
		case r.Method == "REPORT" && r.URL.Path == "/calendars/42/work/":
			var escaped bytes.Buffer
			_ = xml.EscapeText(&escaped, []byte(calendarData))
			fmt.Fprintf(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/calendars/42/work/event-1.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"etag-1"</d:getetag>
        <c:calendar-data>%s</c:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`, escaped.String())
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAppleAuthenticate(t *testing.T) {
	srv := caldavServer(t, "")
	defer srv.Close()

	a := NewApple()
	a.SetBaseURL(srv.URL)

	calendars, err := a.Authenticate(context.Background(), "pastor@example.com", "app-password")
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, "/calendars/42/work/", calendars[0].Path)
	assert.Equal(t, "Work", calendars[0].Name)
	// Unnamed collections fall back to their path.
	assert.Equal(t, "calendars/42/church", calendars[1].Name)
}

func TestAppleAuthenticateBadPassword(t *testing.T) {
	srv := caldavServer(t, "")
	defer srv.Close()

	a := NewApple()
	a.SetBaseURL(srv.URL)

	_, err := a.Authenticate(context.Background(), "pastor@example.com", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestAppleListEvents(t *testing.T) {
	data := icsText(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:caldav-listed",
		"SUMMARY:Choir practice",
		"DTSTART:20260910T190000Z",
		"DTEND:20260910T210000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	srv := caldavServer(t, data)
	defer srv.Close()

	a := NewApple()
	a.SetBaseURL(srv.URL)

	conn := &models.SyncConnection{
		CalDAVURL:      "/calendars/42/work/",
		CalDAVUsername: "pastor@example.com",
		AccessToken:    "app-password",
	}

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	events, err := a.ListEvents(context.Background(), conn, start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "caldav-listed", events[0].ExternalID)
	assert.Equal(t, "Choir practice", events[0].Title)
}

func TestAppleListEventsNoCalendarPath(t *testing.T) {
	a := NewApple()
	_, err := a.ListEvents(context.Background(), &models.SyncConnection{}, time.Now(), time.Now().Add(time.Hour))
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

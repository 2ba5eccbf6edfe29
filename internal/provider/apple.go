package provider

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/church-connect/backend/internal/storage/models"
)

const appleCalDAVBaseURL = "https://caldav.icloud.com"

// AppleProvider fetches events over CalDAV. Apple has no OAuth flow: the
// connection carries an app-specific password (stored in the access token
// column) plus the discovered calendar collection URL.
type AppleProvider struct {
	client  *http.Client
	baseURL string
}

// NewApple creates the Apple/CalDAV adapter.
func NewApple() *AppleProvider {
	return &AppleProvider{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: appleCalDAVBaseURL,
	}
}

// Name returns the provider identifier.
func (a *AppleProvider) Name() string { return models.ProviderApple }

// SetBaseURL overrides the CalDAV server root. Tests point this at a local
// server.
func (a *AppleProvider) SetBaseURL(u string) { a.baseURL = u }

// CalDAVCalendar is a calendar collection discovered on the server.
type CalDAVCalendar struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// multistatus is the WebDAV 207 response envelope, reduced to the
// properties the discovery and query flows consult.
type multistatus struct {
	XMLName   xml.Name `xml:"multistatus"`
	Responses []struct {
		Href     string `xml:"href"`
		Propstat []struct {
			Prop struct {
				DisplayName          string   `xml:"displayname"`
				ResourceType         resource `xml:"resourcetype"`
				CurrentUserPrincipal struct {
					Href string `xml:"href"`
				} `xml:"current-user-principal"`
				CalendarHomeSet struct {
					Href string `xml:"href"`
				} `xml:"calendar-home-set"`
				CalendarData string `xml:"calendar-data"`
				ETag         string `xml:"getetag"`
			} `xml:"prop"`
			Status string `xml:"status"`
		} `xml:"propstat"`
	} `xml:"response"`
}

type resource struct {
	Calendar *struct{} `xml:"calendar"`
}

// Authenticate verifies an app-specific password by walking CalDAV
// discovery: principal, calendar home, then the calendar collections under
// it. Discovering zero calendars is treated as an authentication failure
// even when every request succeeded on the wire.
func (a *AppleProvider) Authenticate(ctx context.Context, username, password string) ([]CalDAVCalendar, error) {
	principal, err := a.propfindHref(ctx, username, password, a.baseURL+"/",
		`<d:propfind xmlns:d="DAV:"><d:prop><d:current-user-principal/></d:prop></d:propfind>`,
		"0", func(ms *multistatus) string {
			for _, r := range ms.Responses {
				for _, ps := range r.Propstat {
					if ps.Prop.CurrentUserPrincipal.Href != "" {
						return ps.Prop.CurrentUserPrincipal.Href
					}
				}
			}
			return ""
		})
	if err != nil {
		return nil, err
	}
	if principal == "" {
		return nil, &AuthError{Provider: a.Name(), Err: fmt.Errorf("no principal for %s", username)}
	}

	home, err := a.propfindHref(ctx, username, password, a.absolute(principal),
		`<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav"><d:prop><c:calendar-home-set/></d:prop></d:propfind>`,
		"0", func(ms *multistatus) string {
			for _, r := range ms.Responses {
				for _, ps := range r.Propstat {
					if ps.Prop.CalendarHomeSet.Href != "" {
						return ps.Prop.CalendarHomeSet.Href
					}
				}
			}
			return ""
		})
	if err != nil {
		return nil, err
	}
	if home == "" {
		return nil, &AuthError{Provider: a.Name(), Err: fmt.Errorf("no calendar home for %s", username)}
	}

	ms, err := a.propfind(ctx, username, password, a.absolute(home),
		`<d:propfind xmlns:d="DAV:"><d:prop><d:resourcetype/><d:displayname/></d:prop></d:propfind>`, "1")
	if err != nil {
		return nil, err
	}

	var calendars []CalDAVCalendar
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			if ps.Prop.ResourceType.Calendar == nil {
				continue
			}
			name := ps.Prop.DisplayName
			if name == "" {
				name = strings.Trim(r.Href, "/")
			}
			calendars = append(calendars, CalDAVCalendar{Path: r.Href, Name: name})
		}
	}

	if len(calendars) == 0 {
		return nil, &AuthError{Provider: a.Name(), Err: fmt.Errorf("no calendars discovered for %s", username)}
	}
	return calendars, nil
}

// ListEvents issues a calendar-query REPORT over the window and parses the
// returned VCALENDAR payloads. Recurring events are expanded locally.
func (a *AppleProvider) ListEvents(ctx context.Context, conn *models.SyncConnection, start, end time.Time) ([]RemoteEvent, error) {
	calPath := conn.CalDAVURL
	if calPath == "" {
		return nil, &AuthError{Provider: a.Name(), Err: fmt.Errorf("connection has no calendar path")}
	}

	const timeFormat = "20060102T150405Z"
	body := fmt.Sprintf(`<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><d:getetag/><c:calendar-data/></d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="%s" end="%s"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`, start.UTC().Format(timeFormat), end.UTC().Format(timeFormat))

	ms, err := a.davRequest(ctx, "REPORT", conn.CalDAVUsername, conn.AccessToken, a.absolute(calPath), body, "1")
	if err != nil {
		return nil, err
	}

	var events []RemoteEvent
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			if ps.Prop.CalendarData == "" {
				continue
			}
			parsed, err := a.parseCalendarData(ps.Prop.CalendarData, start, end)
			if err != nil {
				continue
			}
			events = append(events, parsed...)
		}
	}
	return events, nil
}

// parseCalendarData parses one VCALENDAR payload and expands its events
// into the window.
func (a *AppleProvider) parseCalendarData(data string, start, end time.Time) ([]RemoteEvent, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar data: %w", err)
	}

	var events []RemoteEvent
	for _, ve := range cal.Events() {
		parsed, err := parseVEvent(ve)
		if err != nil {
			continue
		}
		events = append(events, expandOccurrences(parsed, start, end)...)
	}
	return events, nil
}

func (a *AppleProvider) propfind(ctx context.Context, username, password, target, body, depth string) (*multistatus, error) {
	return a.davRequest(ctx, "PROPFIND", username, password, target, body, depth)
}

func (a *AppleProvider) propfindHref(ctx context.Context, username, password, target, body, depth string, pick func(*multistatus) string) (string, error) {
	ms, err := a.propfind(ctx, username, password, target, body, depth)
	if err != nil {
		return "", err
	}
	return pick(ms), nil
}

func (a *AppleProvider) davRequest(ctx context.Context, method, username, password, target, body, depth string) (*multistatus, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewBufferString(body))
	if err != nil {
		return nil, &ProviderError{Provider: a.Name(), Err: err}
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", depth)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: a.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Provider: a.Name(), Err: fmt.Errorf("%s returned status %d", method, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(a.Name(), resp.StatusCode,
			fmt.Errorf("%s returned status %d", method, resp.StatusCode))
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, &ProviderError{Provider: a.Name(), Err: fmt.Errorf("decoding multistatus: %w", err)}
	}
	return &ms, nil
}

// absolute resolves a server-relative href against the base URL.
func (a *AppleProvider) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(a.baseURL)
	if err != nil {
		return a.baseURL + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return a.baseURL + href
	}
	return base.ResolveReference(ref).String()
}

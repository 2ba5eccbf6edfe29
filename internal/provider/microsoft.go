package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/church-connect/backend/internal/storage/models"
)

const (
	msGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	outlookTimeFormat = "2006-01-02T15:04:05"
)

// MicrosoftProvider lists events through the Microsoft Graph API using the
// OAuth tokens stored on the connection.
type MicrosoftProvider struct {
	conf    *oauth2.Config
	tokens  TokenStore
	baseURL string
}

// NewMicrosoft creates the Microsoft adapter.
func NewMicrosoft(clientID, clientSecret, redirectURL string, tokens TokenStore) *MicrosoftProvider {
	return &MicrosoftProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			RedirectURL:  redirectURL,
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/Calendars.Read",
			},
		},
		tokens:  tokens,
		baseURL: msGraphBaseURL,
	}
}

// Name returns the provider identifier.
func (m *MicrosoftProvider) Name() string { return models.ProviderMicrosoft }

// OAuthConfig exposes the oauth2 configuration for the consent-screen
// redirect and the callback code exchange.
func (m *MicrosoftProvider) OAuthConfig() *oauth2.Config { return m.conf }

// SetBaseURL overrides the Graph endpoint. Tests point this at a local
// server.
func (m *MicrosoftProvider) SetBaseURL(u string) { m.baseURL = u }

// outlookEvent is the subset of the Graph event resource we consume.
type outlookEvent struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    struct {
		Content string `json:"content"`
	} `json:"body"`
	BodyPreview string `json:"bodyPreview"`
	Start       struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	IsAllDay bool `json:"isAllDay"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Attendees []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"attendees"`
	Recurrence  json.RawMessage `json:"recurrence"`
	IsCancelled bool            `json:"isCancelled"`
	ShowAs      string          `json:"showAs"`
}

// ListEvents fetches events in [start, end), following @odata.nextLink
// pagination. The Prefer header pins returned times to UTC.
func (m *MicrosoftProvider) ListEvents(ctx context.Context, conn *models.SyncConnection, start, end time.Time) ([]RemoteEvent, error) {
	ts := m.conf.TokenSource(ctx, tokenFromConnection(conn))
	tok, err := ts.Token()
	if err != nil {
		return nil, &AuthError{Provider: m.Name(), Err: err}
	}
	if err := persistIfRefreshed(ctx, m.tokens, conn, tok); err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, ts)

	endpoint := m.baseURL + "/me/calendar/events"
	if conn.ProviderCalendarID != "" && conn.ProviderCalendarID != "primary" {
		endpoint = m.baseURL + "/me/calendars/" + url.PathEscape(conn.ProviderCalendarID) + "/events"
	}

	params := url.Values{}
	params.Set("$orderby", "start/dateTime")
	params.Set("$top", "100")
	params.Set("$filter", fmt.Sprintf("start/dateTime lt '%s' and end/dateTime gt '%s'",
		end.UTC().Format(outlookTimeFormat), start.UTC().Format(outlookTimeFormat)))
	next := endpoint + "?" + params.Encode()

	var events []RemoteEvent
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, &ProviderError{Provider: m.Name(), Err: err}
		}
		req.Header.Set("Prefer", `outlook.timezone="UTC"`)

		resp, err := client.Do(req)
		if err != nil {
			return nil, &ProviderError{Provider: m.Name(), Err: err}
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, classifyStatus(m.Name(), resp.StatusCode,
				fmt.Errorf("list events returned status %d", resp.StatusCode))
		}

		var page struct {
			Value    []outlookEvent `json:"value"`
			NextLink string         `json:"@odata.nextLink"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, &ProviderError{Provider: m.Name(), Err: fmt.Errorf("decoding response: %w", err)}
		}

		for _, item := range page.Value {
			ev, err := m.normalizeEvent(item)
			if err != nil {
				continue
			}
			events = append(events, ev)
		}
		next = page.NextLink
	}

	return events, nil
}

// normalizeEvent maps a Graph event into the common shape. Graph reports
// times as zone-qualified local strings; with the UTC Prefer header they
// parse directly as UTC.
func (m *MicrosoftProvider) normalizeEvent(item outlookEvent) (RemoteEvent, error) {
	ev := RemoteEvent{
		ExternalID:  item.ID,
		Title:       item.Subject,
		Description: item.BodyPreview,
		Location:    item.Location.DisplayName,
		Status:      models.EventStatusConfirmed,
	}
	if item.IsCancelled {
		ev.Status = models.EventStatusCancelled
	} else if item.ShowAs == "tentative" {
		ev.Status = models.EventStatusTentative
	}

	for _, a := range item.Attendees {
		if a.EmailAddress.Address != "" {
			ev.Attendees = append(ev.Attendees, a.EmailAddress.Address)
		}
	}
	if len(item.Recurrence) > 0 && string(item.Recurrence) != "null" {
		rule := string(item.Recurrence)
		ev.RecurrenceRule = rule
	}

	startTime, err := parseGraphTime(item.Start.DateTime)
	if err != nil {
		return ev, fmt.Errorf("parsing start: %w", err)
	}
	endTime, err := parseGraphTime(item.End.DateTime)
	if err != nil {
		return ev, fmt.Errorf("parsing end: %w", err)
	}

	if item.IsAllDay {
		ev.AllDay = true
		ev.StartTime, ev.EndTime = allDayFromDates(startTime, endTime)
		return ev, nil
	}

	ev.StartTime = canonicalUTC(startTime)
	ev.EndTime = canonicalUTC(endTime)
	return ev, nil
}

// parseGraphTime parses Graph's fractional-seconds local time format,
// anchored in UTC per the Prefer header.
func parseGraphTime(s string) (time.Time, error) {
	for _, format := range []string{
		"2006-01-02T15:04:05.0000000",
		outlookTimeFormat,
		time.RFC3339,
	} {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

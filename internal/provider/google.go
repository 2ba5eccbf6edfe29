package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/church-connect/backend/internal/storage/models"
)

// GoogleProvider lists events through the Google Calendar API using the
// OAuth tokens stored on the connection.
type GoogleProvider struct {
	conf   *oauth2.Config
	tokens TokenStore
}

// NewGoogle creates the Google adapter.
func NewGoogle(clientID, clientSecret, redirectURL string, tokens TokenStore) *GoogleProvider {
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes: []string{
				calendar.CalendarReadonlyScope,
			},
		},
		tokens: tokens,
	}
}

// Name returns the provider identifier.
func (g *GoogleProvider) Name() string { return models.ProviderGoogle }

// OAuthConfig exposes the oauth2 configuration for the consent-screen
// redirect and the callback code exchange.
func (g *GoogleProvider) OAuthConfig() *oauth2.Config { return g.conf }

// ListEvents fetches single (recurrence-expanded) events in [start, end).
func (g *GoogleProvider) ListEvents(ctx context.Context, conn *models.SyncConnection, start, end time.Time) ([]RemoteEvent, error) {
	ts := g.conf.TokenSource(ctx, tokenFromConnection(conn))
	tok, err := ts.Token()
	if err != nil {
		return nil, &AuthError{Provider: g.Name(), Err: err}
	}
	if err := persistIfRefreshed(ctx, g.tokens, conn, tok); err != nil {
		return nil, err
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, &ProviderError{Provider: g.Name(), Err: err}
	}

	calendarID := conn.ProviderCalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	var events []RemoteEvent
	pageToken := ""
	for {
		call := svc.Events.List(calendarID).
			TimeMin(start.UTC().Format(time.RFC3339)).
			TimeMax(end.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(250).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				return nil, classifyStatus(g.Name(), apiErr.Code, err)
			}
			return nil, &ProviderError{Provider: g.Name(), Err: err}
		}

		for _, item := range resp.Items {
			ev, err := g.normalizeEvent(item)
			if err != nil {
				continue
			}
			events = append(events, ev)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return events, nil
}

// normalizeEvent maps a Google Calendar event into the common shape.
// All-day events arrive as bare dates; timed events as RFC 3339.
func (g *GoogleProvider) normalizeEvent(item *calendar.Event) (RemoteEvent, error) {
	ev := RemoteEvent{
		ExternalID:  item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      normalizeGoogleStatus(item.Status),
	}

	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	if len(item.Recurrence) > 0 {
		ev.RecurrenceRule = item.Recurrence[0]
	}

	if item.Start == nil || item.End == nil {
		return ev, fmt.Errorf("event %s has no start/end", item.Id)
	}

	if item.Start.Date != "" {
		startDate, err := time.ParseInLocation("2006-01-02", item.Start.Date, time.UTC)
		if err != nil {
			return ev, fmt.Errorf("parsing all-day start: %w", err)
		}
		endDate := startDate
		if item.End.Date != "" {
			if d, err := time.ParseInLocation("2006-01-02", item.End.Date, time.UTC); err == nil {
				endDate = d
			}
		}
		ev.AllDay = true
		ev.StartTime, ev.EndTime = allDayFromDates(startDate, endDate)
		return ev, nil
	}

	startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return ev, fmt.Errorf("parsing start: %w", err)
	}
	endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return ev, fmt.Errorf("parsing end: %w", err)
	}

	ev.StartTime = canonicalUTC(startTime)
	ev.EndTime = canonicalUTC(endTime)
	return ev, nil
}

func normalizeGoogleStatus(status string) string {
	switch status {
	case "cancelled":
		return models.EventStatusCancelled
	case "tentative":
		return models.EventStatusTentative
	default:
		return models.EventStatusConfirmed
	}
}

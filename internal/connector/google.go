package connector

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"taskhub/internal/model"
)

// GoogleCalendar pulls upcoming events from a user's Google Calendar.
type GoogleCalendar struct {
	calendarID string
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// NewGoogleCalendar builds the connector. endpoint overrides the Calendar
// API root and httpClient the base transport; both may be empty.
func NewGoogleCalendar(endpoint string, httpClient *http.Client) *GoogleCalendar {
	return &GoogleCalendar{
		calendarID: "primary",
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (g *GoogleCalendar) Source() model.Source {
	return model.SourceGoogleCalendar
}

func (g *GoogleCalendar) service(ctx context.Context, cred model.Credential) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"})
	clientCtx := ctx
	if g.httpClient != nil {
		clientCtx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(clientCtx, ts))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

// Fetch lists single events in the next 30 days ordered by start time,
// following page tokens. A failure on a later page keeps the events read so
// far.
func (g *GoogleCalendar) Fetch(ctx context.Context, cred model.Credential) ([]RawItem, error) {
	srv, err := g.service(ctx, cred)
	if err != nil {
		return nil, unavailable(model.SourceGoogleCalendar, fmt.Errorf("calendar service: %w", err))
	}

	now := g.now().UTC()
	call := srv.Events.List(g.calendarID).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.Add(CalendarWindow).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	var items []RawItem
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			items = append(items, ev)
		}
		return nil
	})
	if err != nil {
		if len(items) == 0 {
			return nil, unavailable(model.SourceGoogleCalendar, fmt.Errorf("list events: %w", err))
		}
		log.Printf("[warn] google calendar: stop event pagination: %v", err)
	}
	return items, nil
}

func (g *GoogleCalendar) Normalize(item RawItem, now time.Time) (model.Record, error) {
	ev, ok := item.(*calendar.Event)
	if !ok || ev == nil {
		return model.Record{}, unexpectedItem(model.SourceGoogleCalendar, item)
	}
	var location, organizer, hangout any
	if ev.Location != "" {
		location = ev.Location
	}
	if ev.Organizer != nil && ev.Organizer.Email != "" {
		organizer = ev.Organizer.Email
	}
	if ev.HangoutLink != "" {
		hangout = ev.HangoutLink
	}
	return normalizeCalendarEvent(model.SourceGoogleCalendar, calendarEvent{
		ID:           ev.Id,
		Title:        ev.Summary,
		DefaultTitle: "Untitled Event",
		Description:  ev.Description,
		Start:        googleTime(ev.Start),
		End:          googleTime(ev.End),
		Metadata: map[string]any{
			"location":     location,
			"organizer":    organizer,
			"hangout_link": hangout,
		},
	}, now)
}

// googleTime prefers the timed value and falls back to the all-day date.
func googleTime(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}

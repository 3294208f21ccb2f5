package connector

import (
	"strings"
	"time"

	"taskhub/internal/model"
)

// CalendarWindow is how far ahead calendar connectors look for events.
const CalendarWindow = 30 * 24 * time.Hour

// calendarEvent is the provider-neutral shape shared by the Outlook and
// Google calendar connectors.
type calendarEvent struct {
	ID           string
	Title        string
	DefaultTitle string
	Description  string
	Start        string
	End          string
	Metadata     map[string]any
}

// normalizeCalendarEvent builds a meeting record. The event end becomes the
// record's due date and the start drives its priority.
func normalizeCalendarEvent(source model.Source, ev calendarEvent, now time.Time) (model.Record, error) {
	if strings.TrimSpace(ev.ID) == "" {
		return model.Record{}, malformed(source, "event without id")
	}
	start, err := parseTimestamp(ev.Start)
	if err != nil {
		return model.Record{}, malformed(source, "event %s start: %v", ev.ID, err)
	}
	end, err := parseTimestamp(ev.End)
	if err != nil {
		return model.Record{}, malformed(source, "event %s end: %v", ev.ID, err)
	}

	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = ev.DefaultTitle
	}

	return model.Record{
		Source:      source,
		ExternalID:  model.StringPtr(ev.ID),
		Title:       title,
		Description: model.StringPtr(ev.Description),
		Kind:        model.KindMeeting,
		DueAt:       end,
		StartAt:     start,
		Priority:    MeetingPriority(start, now),
		Status:      model.StatusPending,
		Metadata:    metadataJSON(ev.Metadata),
	}, nil
}

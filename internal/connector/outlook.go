package connector

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"taskhub/internal/model"
)

// DefaultGraphBaseURL is the Microsoft Graph v1.0 root.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// GraphEvent is an Outlook calendar event.
type GraphEvent struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	BodyPreview string         `json:"bodyPreview"`
	Start       *graphDateTime `json:"start"`
	End         *graphDateTime `json:"end"`
	Location    *struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Organizer *struct {
		EmailAddress graphEmailAddress `json:"emailAddress"`
	} `json:"organizer"`
	Attendees []json.RawMessage `json:"attendees"`
}

// GraphMessage is an Outlook mail message.
type GraphMessage struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"`
	HasAttachments   bool   `json:"hasAttachments"`
	Body             struct {
		Content string `json:"content"`
	} `json:"body"`
	From *struct {
		EmailAddress graphEmailAddress `json:"emailAddress"`
	} `json:"from"`
}

type graphEventPage struct {
	Value    []GraphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphMessagePage struct {
	Value []GraphMessage `json:"value"`
}

// IsOpportunityMail reports whether the subject or body mentions one of the
// opportunity keywords.
func IsOpportunityMail(msg GraphMessage) bool {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body.Content)
	for _, kw := range opportunityKeywords {
		if strings.Contains(subject, kw) || strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// Outlook pulls calendar events and opportunity emails from Microsoft Graph.
type Outlook struct {
	baseURL string
	client  *jsonClient
	now     func() time.Time
}

func NewOutlook(baseURL string, opts ClientOptions) *Outlook {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &Outlook{baseURL: baseURL, client: newJSONClient(opts), now: time.Now}
}

func (o *Outlook) Source() model.Source {
	return model.SourceOutlook
}

// Fetch reads the next 30 days of timed events and up to 50 unread
// high-importance messages. Either call may fail on its own; the source is
// only unavailable when both fail.
func (o *Outlook) Fetch(ctx context.Context, cred model.Credential) ([]RawItem, error) {
	headers := map[string]string{"Prefer": `outlook.timezone="UTC"`}

	events, eventsErr := o.fetchEvents(ctx, cred.AccessToken, headers)
	if eventsErr != nil {
		log.Printf("[warn] outlook: events: %v", eventsErr)
	}
	messages, mailErr := o.fetchMessages(ctx, cred.AccessToken, headers)
	if mailErr != nil {
		log.Printf("[warn] outlook: messages: %v", mailErr)
	}
	if eventsErr != nil && mailErr != nil {
		return nil, unavailable(model.SourceOutlook, errors.Join(eventsErr, mailErr))
	}

	items := make([]RawItem, 0, len(events)+len(messages))
	for _, ev := range events {
		items = append(items, ev)
	}
	for _, msg := range messages {
		if IsOpportunityMail(msg) {
			items = append(items, msg)
		}
	}
	return items, nil
}

func (o *Outlook) fetchEvents(ctx context.Context, token string, headers map[string]string) ([]GraphEvent, error) {
	now := o.now().UTC()
	q := url.Values{}
	q.Set("startDateTime", now.Format(time.RFC3339))
	q.Set("endDateTime", now.Add(CalendarWindow).Format(time.RFC3339))
	q.Set("$filter", "isAllDay eq false")
	q.Set("$orderby", "start/dateTime")

	var out []GraphEvent
	next := o.baseURL + "/me/calendarView?" + q.Encode()
	for next != "" {
		var page graphEventPage
		if _, err := o.client.getJSON(ctx, token, next, headers, &page); err != nil {
			if len(out) == 0 {
				return nil, err
			}
			log.Printf("[warn] outlook: stop event pagination: %v", err)
			break
		}
		out = append(out, page.Value...)
		next = page.NextLink
	}
	return out, nil
}

func (o *Outlook) fetchMessages(ctx context.Context, token string, headers map[string]string) ([]GraphMessage, error) {
	q := url.Values{}
	q.Set("$filter", "isRead eq false and importance eq 'high'")
	q.Set("$top", "50")
	q.Set("$orderby", "receivedDateTime desc")

	var page graphMessagePage
	if _, err := o.client.getJSON(ctx, token, o.baseURL+"/me/messages?"+q.Encode(), headers, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

func (o *Outlook) Normalize(item RawItem, now time.Time) (model.Record, error) {
	switch v := item.(type) {
	case GraphEvent:
		return normalizeGraphEvent(v, now)
	case GraphMessage:
		return normalizeGraphMessage(v)
	default:
		return model.Record{}, unexpectedItem(model.SourceOutlook, item)
	}
}

func normalizeGraphEvent(ev GraphEvent, now time.Time) (model.Record, error) {
	var location, organizer any
	if ev.Location != nil && ev.Location.DisplayName != "" {
		location = ev.Location.DisplayName
	}
	if ev.Organizer != nil && ev.Organizer.EmailAddress.Name != "" {
		organizer = ev.Organizer.EmailAddress.Name
	}
	return normalizeCalendarEvent(model.SourceOutlook, calendarEvent{
		ID:           ev.ID,
		Title:        ev.Subject,
		DefaultTitle: "Untitled Meeting",
		Description:  ev.BodyPreview,
		Start:        graphTime(ev.Start),
		End:          graphTime(ev.End),
		Metadata: map[string]any{
			"location":        location,
			"organizer":       organizer,
			"attendees_count": len(ev.Attendees),
		},
	}, now)
}

func graphTime(dt *graphDateTime) string {
	if dt == nil {
		return ""
	}
	return dt.DateTime
}

func normalizeGraphMessage(msg GraphMessage) (model.Record, error) {
	if strings.TrimSpace(msg.ID) == "" {
		return model.Record{}, malformed(model.SourceOutlook, "message without id")
	}
	received, err := parseTimestamp(msg.ReceivedDateTime)
	if err != nil {
		return model.Record{}, malformed(model.SourceOutlook, "message %s: %v", msg.ID, err)
	}
	title := strings.TrimSpace(msg.Subject)
	if title == "" {
		title = "Untitled Email"
	}
	var sender, senderName any
	if msg.From != nil {
		if msg.From.EmailAddress.Address != "" {
			sender = msg.From.EmailAddress.Address
		}
		if msg.From.EmailAddress.Name != "" {
			senderName = msg.From.EmailAddress.Name
		}
	}
	return model.Record{
		Source:      model.SourceOutlook,
		ExternalID:  model.StringPtr(msg.ID),
		Title:       title,
		Description: model.StringPtr(msg.BodyPreview),
		Kind:        model.KindEmail,
		DueAt:       received,
		Priority:    EmailPriority,
		Status:      model.StatusPending,
		Metadata: metadataJSON(map[string]any{
			"sender":          sender,
			"sender_name":     senderName,
			"has_attachments": msg.HasAttachments,
		}),
	}, nil
}

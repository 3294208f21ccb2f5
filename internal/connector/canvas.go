package connector

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"taskhub/internal/model"
)

// DefaultCanvasBaseURL is used when no institution URL is configured.
const DefaultCanvasBaseURL = "https://canvas.instructure.com"

// CanvasAssignment is a Canvas assignment annotated with its course.
type CanvasAssignment struct {
	ID              flexibleID `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	DueAt           string     `json:"due_at"`
	PointsPossible  *float64   `json:"points_possible"`
	SubmissionTypes []string   `json:"submission_types"`
	CourseID        string     `json:"-"`
	CourseName      string     `json:"-"`
}

type canvasCourse struct {
	ID   flexibleID `json:"id"`
	Name string     `json:"name"`
}

// Canvas pulls upcoming assignments from every active course of a student.
type Canvas struct {
	baseURL string
	client  *jsonClient
}

func NewCanvas(baseURL string, opts ClientOptions) *Canvas {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultCanvasBaseURL
	}
	return &Canvas{baseURL: baseURL, client: newJSONClient(opts)}
}

func (c *Canvas) Source() model.Source {
	return model.SourceCanvas
}

// Fetch lists active courses and their upcoming assignments. A course whose
// assignments cannot be read is skipped; failing to list courses makes the
// whole source unavailable.
func (c *Canvas) Fetch(ctx context.Context, cred model.Credential) ([]RawItem, error) {
	q := url.Values{}
	q.Set("enrollment_type", "student")
	q.Set("enrollment_state", "active")
	q.Set("per_page", "50")

	var courses []canvasCourse
	next := c.baseURL + "/api/v1/courses?" + q.Encode()
	for next != "" {
		var page []canvasCourse
		header, err := c.client.getJSON(ctx, cred.AccessToken, next, nil, &page)
		if err != nil {
			if len(courses) == 0 {
				return nil, unavailable(model.SourceCanvas, fmt.Errorf("list courses: %w", err))
			}
			log.Printf("[warn] canvas: stop course pagination: %v", err)
			break
		}
		courses = append(courses, page...)
		next = nextLink(header)
	}

	var items []RawItem
	for _, course := range courses {
		assignments, err := c.courseAssignments(ctx, cred.AccessToken, course)
		if err != nil {
			log.Printf("[warn] canvas: skip course %s: %v", course.ID, err)
			continue
		}
		for _, a := range assignments {
			if strings.TrimSpace(a.DueAt) == "" {
				continue
			}
			items = append(items, a)
		}
	}
	return items, nil
}

func (c *Canvas) courseAssignments(ctx context.Context, token string, course canvasCourse) ([]CanvasAssignment, error) {
	q := url.Values{}
	q.Set("bucket", "upcoming")
	q.Set("per_page", "50")

	var out []CanvasAssignment
	next := fmt.Sprintf("%s/api/v1/courses/%s/assignments?%s", c.baseURL, url.PathEscape(string(course.ID)), q.Encode())
	for next != "" {
		var page []CanvasAssignment
		header, err := c.client.getJSON(ctx, token, next, nil, &page)
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			log.Printf("[warn] canvas: partial assignments for course %s: %v", course.ID, err)
			break
		}
		for i := range page {
			page[i].CourseID = string(course.ID)
			page[i].CourseName = course.Name
			if page[i].CourseName == "" {
				page[i].CourseName = "Unknown Course"
			}
		}
		out = append(out, page...)
		next = nextLink(header)
	}
	return out, nil
}

func (c *Canvas) Normalize(item RawItem, now time.Time) (model.Record, error) {
	a, ok := item.(CanvasAssignment)
	if !ok {
		return model.Record{}, unexpectedItem(model.SourceCanvas, item)
	}
	if a.ID == "" {
		return model.Record{}, malformed(model.SourceCanvas, "assignment without id")
	}
	due, err := parseTimestamp(a.DueAt)
	if err != nil {
		return model.Record{}, malformed(model.SourceCanvas, "assignment %s: %v", a.ID, err)
	}

	title := strings.TrimSpace(a.Name)
	if title == "" {
		title = "Untitled Assignment"
	}
	submissionTypes := a.SubmissionTypes
	if submissionTypes == nil {
		submissionTypes = []string{}
	}

	return model.Record{
		Source:      model.SourceCanvas,
		ExternalID:  model.StringPtr(string(a.ID)),
		Title:       title,
		Description: model.StringPtr(a.Description),
		Kind:        model.KindAssignment,
		DueAt:       due,
		Priority:    AssignmentPriority(due, now),
		Status:      model.StatusPending,
		Metadata: metadataJSON(map[string]any{
			"course_name":      a.CourseName,
			"course_id":        a.CourseID,
			"points_possible":  a.PointsPossible,
			"submission_types": submissionTypes,
		}),
	}, nil
}

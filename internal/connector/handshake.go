package connector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"taskhub/internal/model"
)

// DefaultHandshakeBaseURL is the Handshake API root.
const DefaultHandshakeBaseURL = "https://api.joinhandshake.com"

// HandshakeJob is a job posting.
type HandshakeJob struct {
	ID                  flexibleID `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	ApplicationDeadline string     `json:"application_deadline"`
	JobType             *string    `json:"job_type"`
	Employer            *struct {
		Name string `json:"name"`
	} `json:"employer"`
	Location *struct {
		Name string `json:"name"`
	} `json:"location"`
}

type handshakeJobPage struct {
	Data []HandshakeJob `json:"data"`
}

// Handshake pulls job postings visible to the student.
type Handshake struct {
	baseURL string
	client  *jsonClient
}

func NewHandshake(baseURL string, opts ClientOptions) *Handshake {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultHandshakeBaseURL
	}
	return &Handshake{baseURL: baseURL, client: newJSONClient(opts)}
}

func (h *Handshake) Source() model.Source {
	return model.SourceHandshake
}

func (h *Handshake) Fetch(ctx context.Context, cred model.Credential) ([]RawItem, error) {
	q := url.Values{}
	q.Set("per_page", "50")

	var page handshakeJobPage
	if _, err := h.client.getJSON(ctx, cred.AccessToken, h.baseURL+"/v1/jobs?"+q.Encode(), nil, &page); err != nil {
		return nil, unavailable(model.SourceHandshake, fmt.Errorf("list jobs: %w", err))
	}
	items := make([]RawItem, 0, len(page.Data))
	for _, job := range page.Data {
		items = append(items, job)
	}
	return items, nil
}

func (h *Handshake) Normalize(item RawItem, now time.Time) (model.Record, error) {
	job, ok := item.(HandshakeJob)
	if !ok {
		return model.Record{}, unexpectedItem(model.SourceHandshake, item)
	}
	if job.ID == "" {
		return model.Record{}, malformed(model.SourceHandshake, "job without id")
	}
	deadline, err := parseTimestamp(job.ApplicationDeadline)
	if err != nil {
		return model.Record{}, malformed(model.SourceHandshake, "job %s: %v", job.ID, err)
	}

	title := strings.TrimSpace(job.Title)
	if title == "" {
		title = "Untitled Job Posting"
	}
	var employer, location, jobType any
	if job.Employer != nil {
		employer = job.Employer.Name
	}
	if job.Location != nil {
		location = job.Location.Name
	}
	if job.JobType != nil {
		jobType = *job.JobType
	}

	return model.Record{
		Source:      model.SourceHandshake,
		ExternalID:  model.StringPtr(string(job.ID)),
		Title:       title,
		Description: model.StringPtr(job.Description),
		Kind:        model.KindInternship,
		DueAt:       deadline,
		Priority:    JobPriority(deadline, now),
		Status:      model.StatusPending,
		Metadata: metadataJSON(map[string]any{
			"employer": employer,
			"job_type": jobType,
			"location": location,
		}),
	}, nil
}

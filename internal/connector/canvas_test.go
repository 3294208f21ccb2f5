package connector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"taskhub/internal/model"
)

func testClientOptions(server *httptest.Server) ClientOptions {
	return ClientOptions{HTTPClient: server.Client(), MaxRetries: -1}
}

func TestCanvasFetchSkipsFailingCourse(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer canvas-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/courses":
			if r.URL.Query().Get("enrollment_type") != "student" {
				t.Errorf("expected enrollment_type=student, got %q", r.URL.RawQuery)
			}
			if r.URL.Query().Get("page") == "2" {
				_, _ = w.Write([]byte(`[{"id": 2, "name": "Physics"}]`))
				return
			}
			w.Header().Set("Link", `<`+server.URL+`/api/v1/courses?enrollment_type=student&enrollment_state=active&page=2&per_page=50>; rel="next"`)
			_, _ = w.Write([]byte(`[{"id": 1, "name": "Biology"}]`))
		case "/api/v1/courses/1/assignments":
			if r.URL.Query().Get("bucket") != "upcoming" {
				t.Errorf("expected bucket=upcoming, got %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`[
				{"id": 11, "name": "Lab 1", "due_at": "2024-03-02T10:00:00Z", "points_possible": 10, "submission_types": ["online_upload"]},
				{"id": 12, "name": "Reading", "due_at": null}
			]`))
		case "/api/v1/courses/2/assignments":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	canvas := NewCanvas(server.URL, testClientOptions(server))
	items, err := canvas.Fetch(context.Background(), model.Credential{AccessToken: "canvas-token"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 assignment with a due date, got %d", len(items))
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := canvas.Normalize(items[0], now)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if rec.ExternalID == nil || *rec.ExternalID != "11" {
		t.Fatalf("expected external id 11, got %v", rec.ExternalID)
	}
	if rec.Kind != model.KindAssignment || rec.Source != model.SourceCanvas {
		t.Errorf("unexpected kind/source: %s/%s", rec.Kind, rec.Source)
	}
	if rec.Priority != 3 {
		t.Errorf("expected priority 3 for assignment due in 22h, got %d", rec.Priority)
	}
	var meta map[string]any
	if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
		t.Fatalf("metadata is not json: %v", err)
	}
	if meta["course_name"] != "Biology" || meta["course_id"] != "1" {
		t.Errorf("expected course metadata, got %v", meta)
	}
}

func TestCanvasFetchUnavailableWhenCoursesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	canvas := NewCanvas(server.URL, testClientOptions(server))
	_, err := canvas.Fetch(context.Background(), model.Credential{AccessToken: "bad"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	var unavailableErr *SourceUnavailableError
	if !errors.As(err, &unavailableErr) || unavailableErr.Source != model.SourceCanvas {
		t.Fatalf("expected canvas SourceUnavailableError, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected wrapped 401, got %v", err)
	}
}

func TestCanvasNormalizeIsDeterministic(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	item := CanvasAssignment{ID: "42", Name: "Essay", DueAt: "2024-03-02T20:00:00", CourseID: "7", CourseName: "English"}
	canvas := NewCanvas("", ClientOptions{})

	first, err := canvas.Normalize(item, now)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	second, err := canvas.Normalize(item, now)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical records, got %+v and %+v", first, second)
	}
	if first.Priority != 2 {
		t.Errorf("expected priority 2 for naive due in 32h, got %d", first.Priority)
	}
	if first.DueAt.Location() != time.UTC {
		t.Errorf("expected UTC due date, got %v", first.DueAt.Location())
	}
}

func TestCanvasNormalizeRejectsMalformed(t *testing.T) {
	canvas := NewCanvas("", ClientOptions{})
	now := time.Now()
	if _, err := canvas.Normalize(CanvasAssignment{Name: "No id"}, now); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord for missing id, got %v", err)
	}
	if _, err := canvas.Normalize(CanvasAssignment{ID: "1", DueAt: "someday"}, now); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord for bad due date, got %v", err)
	}
	if _, err := canvas.Normalize(HandshakeJob{ID: "1"}, now); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord for foreign item, got %v", err)
	}
}

func TestFlexibleIDAcceptsNumbersAndStrings(t *testing.T) {
	var payload []struct {
		ID flexibleID `json:"id"`
	}
	if err := json.Unmarshal([]byte(`[{"id": 12345678901}, {"id": "abc"}, {"id": null}]`), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload[0].ID != "12345678901" || payload[1].ID != "abc" || payload[2].ID != "" {
		t.Fatalf("unexpected ids: %+v", payload)
	}
}

package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// HighPriorityWindow is how far ahead a pending record counts as urgent.
const HighPriorityWindow = 48 * time.Hour

// Summary is the prioritized view of a user's open records.
type Summary struct {
	Total        int
	Pending      int
	Overdue      int
	HighPriority int
	BySource     map[model.Source]int
	// Records holds pending and overdue records in display order.
	Records []model.Record
}

// Weekly groups pending records by how soon they are due.
type Weekly struct {
	ThisWeek []model.Record
	NextWeek []model.Record
	Later    []model.Record
}

// SummaryService computes summaries on read. It is the only place that
// moves records from pending to overdue.
type SummaryService struct {
	records repository.RecordStore
}

func NewSummaryService(records repository.RecordStore) *SummaryService {
	return &SummaryService{records: records}
}

// ExpireOverdue moves every pending record due before now to overdue and
// returns how many moved.
func (s *SummaryService) ExpireOverdue(ctx context.Context, userID uint, now time.Time) (int, error) {
	candidates, err := s.records.ListOverdueCandidates(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, rec := range candidates {
		ok, err := s.records.UpdateStatus(ctx, rec.ID, model.StatusPending, model.StatusOverdue)
		if err != nil {
			return moved, err
		}
		if ok {
			moved++
		}
	}
	if moved > 0 {
		log.Printf("[info] user %d: %d record(s) became overdue", userID, moved)
	}
	return moved, nil
}

// Summarize applies overdue transitions and aggregates the user's records.
func (s *SummaryService) Summarize(ctx context.Context, userID uint, now time.Time) (Summary, error) {
	if _, err := s.ExpireOverdue(ctx, userID, now); err != nil {
		return Summary{}, fmt.Errorf("expire overdue: %w", err)
	}
	all, err := s.records.List(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return buildSummary(all, now), nil
}

func buildSummary(all []model.Record, now time.Time) Summary {
	sum := Summary{Total: len(all), BySource: make(map[model.Source]int)}
	horizon := now.Add(HighPriorityWindow)
	for _, rec := range all {
		switch rec.Status {
		case model.StatusPending:
			sum.Pending++
			if rec.DueAt != nil && !rec.DueAt.Before(now) && !rec.DueAt.After(horizon) {
				sum.HighPriority++
			}
		case model.StatusOverdue:
			sum.Overdue++
		default:
			continue
		}
		sum.BySource[rec.Source]++
		sum.Records = append(sum.Records, rec)
	}
	SortRecords(sum.Records)
	return sum
}

// SortRecords orders records overdue first, then by due date with undated
// records last, then by priority descending, then by id.
func SortRecords(records []model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return recordLess(records[i], records[j])
	})
}

func recordLess(a, b model.Record) bool {
	aOver, bOver := a.Status == model.StatusOverdue, b.Status == model.StatusOverdue
	if aOver != bOver {
		return aOver
	}
	switch {
	case a.DueAt == nil && b.DueAt != nil:
		return false
	case a.DueAt != nil && b.DueAt == nil:
		return true
	case a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
		return a.DueAt.Before(*b.DueAt)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// PlainSummary renders the summary as one short paragraph.
func (s *SummaryService) PlainSummary(ctx context.Context, userID uint, now time.Time) (string, error) {
	sum, err := s.Summarize(ctx, userID, now)
	if err != nil {
		return "", err
	}
	return PlainText(sum), nil
}

// PlainText renders a Summary as sentences, skipping zero counts.
func PlainText(sum Summary) string {
	var parts []string
	if sum.Overdue > 0 {
		parts = append(parts, fmt.Sprintf("%d overdue %s", sum.Overdue, plural("task", sum.Overdue)))
	}
	if sum.HighPriority > 0 {
		parts = append(parts, fmt.Sprintf("%d %s due within 48 hours", sum.HighPriority, plural("task", sum.HighPriority)))
	}
	if sum.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending %s total", sum.Pending, plural("task", sum.Pending)))
	}

	var bySource []string
	for _, source := range model.AllSources {
		if n := sum.BySource[source]; n > 0 {
			bySource = append(bySource, fmt.Sprintf("%d from %s", n, SourceDisplayName(source)))
		}
	}
	if len(bySource) > 0 {
		parts = append(parts, "Tasks: "+strings.Join(bySource, ", "))
	}

	if len(parts) == 0 {
		return "No pending tasks. You're all caught up!"
	}
	return strings.Join(parts, ". ") + "."
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// SourceDisplayName turns "google_calendar" into "Google Calendar".
func SourceDisplayName(source model.Source) string {
	words := strings.Split(string(source), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// WeeklySummary buckets pending records by whole days until due.
func (s *SummaryService) WeeklySummary(ctx context.Context, userID uint, now time.Time) (Weekly, error) {
	pending, err := s.records.List(ctx, userID, model.StatusPending)
	if err != nil {
		return Weekly{}, err
	}
	return bucketByWeek(pending, now), nil
}

func bucketByWeek(records []model.Record, now time.Time) Weekly {
	var w Weekly
	for _, rec := range records {
		if rec.DueAt == nil || rec.DueAt.IsZero() {
			w.Later = append(w.Later, rec)
			continue
		}
		days := int(math.Floor(rec.DueAt.Sub(now).Hours() / 24))
		switch {
		case days < 7:
			w.ThisWeek = append(w.ThisWeek, rec)
		case days < 14:
			w.NextWeek = append(w.NextWeek, rec)
		default:
			w.Later = append(w.Later, rec)
		}
	}
	return w
}

// CategorizeByKind groups records by kind, keeping their order.
func CategorizeByKind(records []model.Record) map[model.Kind][]model.Record {
	out := make(map[model.Kind][]model.Record)
	for _, rec := range records {
		out[rec.Kind] = append(out[rec.Kind], rec)
	}
	return out
}

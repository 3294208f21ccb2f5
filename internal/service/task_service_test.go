package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskhub/internal/model"
)

func TestCreateManualTask(t *testing.T) {
	store := newMemRecordStore()
	svc := NewTaskService(store)
	user := &model.User{ID: 1}
	due := time.Date(2024, 3, 5, 18, 0, 0, 0, time.FixedZone("EST", -5*3600))

	rec, err := svc.CreateManual(context.Background(), user, TaskInput{Title: "  Pay rent ", DueAt: &due})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.Source != model.SourceManual || rec.Kind != model.KindManual || rec.ExternalID != nil {
		t.Errorf("unexpected manual record %+v", rec)
	}
	if rec.Title != "Pay rent" || rec.Status != model.StatusPending {
		t.Errorf("unexpected title or status %+v", rec)
	}
	if rec.DueAt.Location() != time.UTC || !rec.DueAt.Equal(due) {
		t.Errorf("expected due stored as UTC instant, got %v", rec.DueAt)
	}

	if _, err := svc.CreateManual(context.Background(), user, TaskInput{Title: " "}); err == nil {
		t.Errorf("expected error for empty title")
	}
	if _, err := svc.CreateManual(context.Background(), user, TaskInput{Title: "x", Kind: "chore"}); err == nil {
		t.Errorf("expected error for unknown kind")
	}
}

func TestCompleteTask(t *testing.T) {
	ctx := context.Background()
	store := newMemRecordStore()
	svc := NewTaskService(store)
	overdue := seedRecord(t, store, model.Record{Source: model.SourceCanvas, Title: "Late", Status: model.StatusOverdue})

	got, err := svc.Complete(ctx, 1, overdue.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if got.Status != model.StatusComplete {
		t.Errorf("expected complete, got %s", got.Status)
	}
	if _, err := svc.Complete(ctx, 1, overdue.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for completed record, got %v", err)
	}
	if _, err := svc.Complete(ctx, 2, overdue.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound for another user, got %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	store := newMemRecordStore()
	svc := NewTaskService(store)
	rec := seedRecord(t, store, model.Record{Source: model.SourceManual, Title: "Temp", Kind: model.KindManual})

	if err := svc.Delete(ctx, 1, rec.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(store.all()) != 0 {
		t.Errorf("expected record to be removed")
	}
	if err := svc.Delete(ctx, 1, rec.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestGetTask(t *testing.T) {
	ctx := context.Background()
	store := newMemRecordStore()
	svc := NewTaskService(store)
	rec := seedRecord(t, store, model.Record{Source: model.SourceManual, Title: "Read chapter 4", Kind: model.KindManual})

	got, err := svc.Get(ctx, 1, rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "Read chapter 4" {
		t.Errorf("unexpected record %+v", got)
	}
	if _, err := svc.Get(ctx, 2, rec.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound for another user, got %v", err)
	}
}

func TestEditTask(t *testing.T) {
	ctx := context.Background()
	store := newMemRecordStore()
	svc := NewTaskService(store)
	rec := seedRecord(t, store, model.Record{
		Source: model.SourceCanvas, ExternalID: model.StringPtr("77"), Title: "Essay",
		Description: model.StringPtr("draft"), Priority: 1, Status: model.StatusOverdue,
	})

	title, priority := "  Final essay ", 3
	got, err := svc.Edit(ctx, 1, rec.ID, TaskEdit{Title: &title, Priority: &priority})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if got.Title != "Final essay" || got.Priority != 3 || got.DescriptionText() != "draft" {
		t.Errorf("unexpected edited record %+v", got)
	}
	stored := store.all()[0]
	if stored.Title != "Final essay" || stored.Priority != 3 {
		t.Errorf("expected edit to be stored, got %+v", stored)
	}
	if stored.Status != model.StatusOverdue {
		t.Errorf("expected status untouched, got %s", stored.Status)
	}

	empty := ""
	if _, err := svc.Edit(ctx, 1, rec.ID, TaskEdit{Description: &empty}); err != nil {
		t.Fatalf("clearing description failed: %v", err)
	}
	if store.all()[0].Description != nil {
		t.Errorf("expected description cleared")
	}

	blank, negative := " ", -1
	if _, err := svc.Edit(ctx, 1, rec.ID, TaskEdit{Title: &blank}); err == nil {
		t.Errorf("expected error for blank title")
	}
	if _, err := svc.Edit(ctx, 1, rec.ID, TaskEdit{Priority: &negative}); err == nil {
		t.Errorf("expected error for negative priority")
	}
	if _, err := svc.Edit(ctx, 1, rec.ID, TaskEdit{}); err == nil {
		t.Errorf("expected error for an empty edit")
	}
	if _, err := svc.Edit(ctx, 2, rec.ID, TaskEdit{Title: &title}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound for another user, got %v", err)
	}
}

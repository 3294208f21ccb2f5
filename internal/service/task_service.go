package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskhub/internal/model"
)

var (
	// ErrTaskNotFound is returned when the user owns no record with the id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TaskStore is the slice of record persistence the task service needs.
type TaskStore interface {
	Insert(ctx context.Context, record *model.Record) error
	FindByID(ctx context.Context, userID, recordID uint) (*model.Record, error)
	Update(ctx context.Context, record *model.Record) error
	UpdateStatus(ctx context.Context, id uint, from, to model.Status) (bool, error)
	Delete(ctx context.Context, userID, recordID uint) error
}

// TaskInput represents data required to create a manual task.
type TaskInput struct {
	Title       string
	Description string
	Kind        model.Kind
	DueAt       *time.Time
	Priority    int
}

// TaskEdit carries the fields a user may change on an existing record. Nil
// fields are left as they are.
type TaskEdit struct {
	Title       *string
	Description *string
	Priority    *int
}

// Empty reports whether the edit changes nothing.
func (e TaskEdit) Empty() bool {
	return e.Title == nil && e.Description == nil && e.Priority == nil
}

// TaskService wraps user-driven record changes.
type TaskService struct {
	records TaskStore
}

func NewTaskService(records TaskStore) *TaskService {
	return &TaskService{records: records}
}

// CreateManual stores a task the user entered by hand. Manual tasks carry
// no external id and are never deduplicated.
func (s *TaskService) CreateManual(ctx context.Context, user *model.User, input TaskInput) (*model.Record, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	kind := input.Kind
	if kind == "" {
		kind = model.KindManual
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q", input.Kind)
	}

	record := model.Record{
		UserID:      user.ID,
		Source:      model.SourceManual,
		Title:       title,
		Description: model.StringPtr(strings.TrimSpace(input.Description)),
		Kind:        kind,
		Priority:    input.Priority,
		Status:      model.StatusPending,
	}
	if input.DueAt != nil {
		record.DueAt = model.TimePtr(*input.DueAt)
	}

	if err := s.records.Insert(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Complete marks a pending or overdue record as complete.
func (s *TaskService) Complete(ctx context.Context, userID, recordID uint) (*model.Record, error) {
	record, err := s.records.FindByID(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrTaskNotFound
	}
	if !record.Status.CanTransition(model.StatusComplete) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, model.StatusComplete)
	}

	ok, err := s.records.UpdateStatus(ctx, record.ID, record.Status, model.StatusComplete)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The record changed underneath us, most likely pending -> overdue.
		current, err := s.records.FindByID(ctx, userID, recordID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrTaskNotFound
		}
		if !current.Status.CanTransition(model.StatusComplete) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, model.StatusComplete)
		}
		if ok, err = s.records.UpdateStatus(ctx, current.ID, current.Status, model.StatusComplete); err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("complete task %d: concurrent update", recordID)
		}
		record = current
	}
	record.Status = model.StatusComplete
	return record, nil
}

// Delete removes a record owned by the user.
func (s *TaskService) Delete(ctx context.Context, userID, recordID uint) error {
	record, err := s.records.FindByID(ctx, userID, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrTaskNotFound
	}
	return s.records.Delete(ctx, userID, recordID)
}

// Get returns one record owned by the user.
func (s *TaskService) Get(ctx context.Context, userID, recordID uint) (*model.Record, error) {
	record, err := s.records.FindByID(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrTaskNotFound
	}
	return record, nil
}

// Edit changes title, description or priority of a record owned by the
// user. Status is only changed through Complete. Edits to a synced record
// last until its source reports it again.
func (s *TaskService) Edit(ctx context.Context, userID, recordID uint, edit TaskEdit) (*model.Record, error) {
	if edit.Empty() {
		return nil, fmt.Errorf("nothing to change")
	}
	record, err := s.Get(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		if title == "" {
			return nil, fmt.Errorf("title is required")
		}
		record.Title = title
	}
	if edit.Description != nil {
		record.Description = model.StringPtr(strings.TrimSpace(*edit.Description))
	}
	if edit.Priority != nil {
		if *edit.Priority < 0 {
			return nil, fmt.Errorf("priority must not be negative")
		}
		record.Priority = *edit.Priority
	}
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

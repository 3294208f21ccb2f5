package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskhub/internal/model"
)

// RecordStore is the contract for record persistence.
type RecordStore interface {
	// FindByIdentity returns nil when no record carries the identity key.
	FindByIdentity(ctx context.Context, userID uint, source model.Source, externalID string) (*model.Record, error)
	Insert(ctx context.Context, record *model.Record) error
	// Update overwrites the mutable fields of an existing record. Status and
	// identity columns are never written.
	Update(ctx context.Context, record *model.Record) error
	// UpdateStatus moves a record from one status to another and reports
	// whether the record was still in the expected status.
	UpdateStatus(ctx context.Context, id uint, from, to model.Status) (bool, error)
	List(ctx context.Context, userID uint, statuses ...model.Status) ([]model.Record, error)
	ListOverdueCandidates(ctx context.Context, userID uint, now time.Time) ([]model.Record, error)
	// InTx runs fn against a store bound to one transaction.
	InTx(ctx context.Context, fn func(tx RecordStore) error) error
}

// mutableColumns are overwritten when a synced record is seen again.
var mutableColumns = []string{"title", "description", "kind", "due_at", "start_at", "priority", "metadata", "updated_at"}

// RecordRepository is the gorm-backed RecordStore.
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) FindByIdentity(ctx context.Context, userID uint, source model.Source, externalID string) (*model.Record, error) {
	var record model.Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND external_id = ?", userID, source, externalID).
		First(&record).Error
	switch {
	case err == nil:
		return &record, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find record by identity: %w", err)
	}
}

func (r *RecordRepository) Insert(ctx context.Context, record *model.Record) error {
	if record.Status == "" {
		record.Status = model.StatusPending
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *RecordRepository) Update(ctx context.Context, record *model.Record) error {
	if record.ID == 0 {
		return fmt.Errorf("update record: missing id")
	}
	record.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.Record{ID: record.ID}).
		Select(mutableColumns).
		Updates(map[string]interface{}{
			"title":       record.Title,
			"description": record.Description,
			"kind":        record.Kind,
			"due_at":      record.DueAt,
			"start_at":    record.StartAt,
			"priority":    record.Priority,
			"metadata":    record.Metadata,
			"updated_at":  record.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update record: %w", res.Error)
	}
	return nil
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, id uint, from, to model.Status) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Record{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("update record status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *RecordRepository) List(ctx context.Context, userID uint, statuses ...model.Status) ([]model.Record, error) {
	var records []model.Record
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// ListOverdueCandidates returns pending records whose due date is before now.
// The time comparison happens in Go so SQLite's textual timestamps cannot
// skew it.
func (r *RecordRepository) ListOverdueCandidates(ctx context.Context, userID uint, now time.Time) ([]model.Record, error) {
	var pending []model.Record
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND due_at IS NOT NULL", userID, model.StatusPending).
		Order("id ASC").
		Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	out := pending[:0]
	for _, rec := range pending {
		if rec.DueAt != nil && rec.DueAt.Before(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RecordRepository) InTx(ctx context.Context, fn func(tx RecordStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RecordRepository{db: tx})
	})
}

// FindByID returns a record owned by userID, or nil when there is none.
func (r *RecordRepository) FindByID(ctx context.Context, userID, recordID uint) (*model.Record, error) {
	var record model.Record
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, recordID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return &record, nil
}

// Delete removes a record owned by userID.
func (r *RecordRepository) Delete(ctx context.Context, userID, recordID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, recordID).
		Delete(&model.Record{}).Error; err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

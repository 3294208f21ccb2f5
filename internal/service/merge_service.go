package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskhub/internal/model"
	"taskhub/internal/repository"
)

var (
	// ErrMalformedRecord marks a normalized record the merge engine refuses
	// to store.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrRolledBack marks an item whose write was undone because a later
	// item of the same batch failed.
	ErrRolledBack = errors.New("rolled back")
)

// Outcome is what reconciliation did with one incoming record.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// ItemResult is the per-record entry of a ReconcileReport.
type ItemResult struct {
	Index      int
	ExternalID string
	RecordID   uint
	Outcome    Outcome
	Err        error
}

// ReconcileReport lists what happened to every record of one batch.
type ReconcileReport struct {
	UserID uint
	Source model.Source
	Items  []ItemResult
}

// Applied returns the size of the reconciled batch. Updates that changed
// nothing still count.
func (r ReconcileReport) Applied() int {
	return len(r.Items)
}

// Count returns how many items ended with the given outcome.
func (r ReconcileReport) Count(outcome Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// MergeService reconciles freshly normalized records against stored ones.
type MergeService struct {
	records repository.RecordStore
}

func NewMergeService(records repository.RecordStore) *MergeService {
	return &MergeService{records: records}
}

// Reconcile merges one (user, source) batch inside a single transaction.
// Records with an external id update the stored record carrying the same
// identity or are inserted as pending; records without one are always
// inserted. Stored status is never touched. Malformed records are skipped
// and reported; a store failure aborts and rolls back the batch, and every
// written item is then reported as failed.
func (s *MergeService) Reconcile(ctx context.Context, userID uint, source model.Source, records []model.Record) (ReconcileReport, error) {
	report := ReconcileReport{UserID: userID, Source: source, Items: make([]ItemResult, 0, len(records))}
	if len(records) == 0 {
		return report, nil
	}

	err := s.records.InTx(ctx, func(tx repository.RecordStore) error {
		report.Items = report.Items[:0]
		for i := range records {
			incoming := records[i]
			item := ItemResult{Index: i}
			if incoming.ExternalID != nil {
				item.ExternalID = *incoming.ExternalID
			}

			if err := validateIncoming(&incoming, userID, source); err != nil {
				item.Outcome = OutcomeSkipped
				item.Err = err
				report.Items = append(report.Items, item)
				continue
			}

			id, outcome, err := s.apply(ctx, tx, &incoming)
			item.RecordID = id
			item.Outcome = outcome
			if err != nil {
				item.Outcome = OutcomeFailed
				item.Err = err
				report.Items = append(report.Items, item)
				return err
			}
			report.Items = append(report.Items, item)
		}
		return nil
	})
	if err != nil {
		report.markRolledBack()
		return report, fmt.Errorf("reconcile %s for user %d: %w", source, userID, err)
	}
	return report, nil
}

// markRolledBack turns every write of an aborted batch into a failure so the
// report matches what the store kept.
func (r *ReconcileReport) markRolledBack() {
	for i := range r.Items {
		switch r.Items[i].Outcome {
		case OutcomeInserted:
			r.Items[i].RecordID = 0
			fallthrough
		case OutcomeUpdated:
			r.Items[i].Outcome = OutcomeFailed
			r.Items[i].Err = ErrRolledBack
		}
	}
}

func (s *MergeService) apply(ctx context.Context, tx repository.RecordStore, incoming *model.Record) (uint, Outcome, error) {
	if !incoming.HasIdentity() {
		incoming.ExternalID = nil
		incoming.Status = model.StatusPending
		if err := tx.Insert(ctx, incoming); err != nil {
			return 0, OutcomeFailed, err
		}
		return incoming.ID, OutcomeInserted, nil
	}

	existing, err := tx.FindByIdentity(ctx, incoming.UserID, incoming.Source, *incoming.ExternalID)
	if err != nil {
		return 0, OutcomeFailed, err
	}
	if existing == nil {
		incoming.Status = model.StatusPending
		if err := tx.Insert(ctx, incoming); err != nil {
			return 0, OutcomeFailed, err
		}
		return incoming.ID, OutcomeInserted, nil
	}

	existing.Title = incoming.Title
	existing.Description = incoming.Description
	existing.Kind = incoming.Kind
	existing.DueAt = incoming.DueAt
	existing.StartAt = incoming.StartAt
	existing.Priority = incoming.Priority
	existing.Metadata = incoming.Metadata
	if err := tx.Update(ctx, existing); err != nil {
		return existing.ID, OutcomeFailed, err
	}
	return existing.ID, OutcomeUpdated, nil
}

// validateIncoming fills in the batch owner and rejects records that belong
// to another user or source or cannot be displayed.
func validateIncoming(rec *model.Record, userID uint, source model.Source) error {
	if rec.UserID == 0 {
		rec.UserID = userID
	}
	if rec.Source == "" {
		rec.Source = source
	}
	switch {
	case rec.UserID != userID:
		return fmt.Errorf("%w: record for user %d in batch of user %d", ErrMalformedRecord, rec.UserID, userID)
	case rec.Source != source:
		return fmt.Errorf("%w: %s record in %s batch", ErrMalformedRecord, rec.Source, source)
	case strings.TrimSpace(rec.Title) == "":
		return fmt.Errorf("%w: empty title", ErrMalformedRecord)
	case !rec.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedRecord, rec.Kind)
	}
	rec.ID = 0
	return nil
}

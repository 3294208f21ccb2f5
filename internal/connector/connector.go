// Package connector turns third-party sources into canonical records.
//
// Each Connector fetches provider-specific raw items with a user's
// credential and normalizes them, one at a time, into model.Record values.
// Normalization performs no I/O, so the same raw item and clock always
// yield the same record.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhub/internal/model"
)

var (
	// ErrSourceUnavailable marks a source that could not be reached or
	// refused the credential as a whole.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord marks a raw item that cannot become a record.
	ErrMalformedRecord = errors.New("malformed record")
)

// RawItem is one provider-specific item as returned by Fetch. Its concrete
// type is private to the connector that produced it.
type RawItem any

// Connector is implemented once per source.
type Connector interface {
	Source() model.Source
	Fetch(ctx context.Context, cred model.Credential) ([]RawItem, error)
	Normalize(item RawItem, now time.Time) (model.Record, error)
}

// SourceUnavailableError wraps the transport or auth failure that made a
// whole source unreachable.
type SourceUnavailableError struct {
	Source model.Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: source unavailable", e.Source)
	}
	return fmt.Sprintf("%s: source unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

func unavailable(source model.Source, err error) error {
	return &SourceUnavailableError{Source: source, Err: err}
}

func malformed(source model.Source, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", source, ErrMalformedRecord, fmt.Sprintf(format, args...))
}

func unexpectedItem(source model.Source, item RawItem) error {
	return malformed(source, "unexpected item type %T", item)
}

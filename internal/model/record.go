package model

import (
	"time"

	"gorm.io/datatypes"
)

// Kind classifies what sort of obligation a record describes.
type Kind string

const (
	KindAssignment Kind = "assignment"
	KindMeeting    Kind = "meeting"
	KindInternship Kind = "internship"
	KindManual     Kind = "manual"
	KindEmail      Kind = "email"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAssignment, KindMeeting, KindInternship, KindManual, KindEmail:
		return true
	default:
		return false
	}
}

// Source identifies the provider a record came from.
type Source string

const (
	SourceCanvas         Source = "canvas"
	SourceOutlook        Source = "outlook"
	SourceGoogleCalendar Source = "google_calendar"
	SourceHandshake      Source = "handshake"
	SourceManual         Source = "manual"
)

// SyncSources lists the sources pulled by a full sync, in sync order.
var SyncSources = []Source{SourceCanvas, SourceOutlook, SourceGoogleCalendar, SourceHandshake}

// AllSources lists every source in display order.
var AllSources = []Source{SourceCanvas, SourceOutlook, SourceGoogleCalendar, SourceHandshake, SourceManual}

// Syncable reports whether records of this source are produced by a connector.
func (s Source) Syncable() bool {
	switch s {
	case SourceCanvas, SourceOutlook, SourceGoogleCalendar, SourceHandshake:
		return true
	default:
		return false
	}
}

// ParseSource maps user input (including provider aliases) to a Source.
func ParseSource(raw string) (Source, bool) {
	switch raw {
	case "canvas":
		return SourceCanvas, true
	case "outlook", "microsoft":
		return SourceOutlook, true
	case "google_calendar", "google":
		return SourceGoogleCalendar, true
	case "handshake":
		return SourceHandshake, true
	case "manual":
		return SourceManual, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusOverdue  Status = "overdue"
)

// CanTransition reports whether a record may move from s to next.
// Automated transitions only ever go pending -> overdue; complete is
// reached by user action and is final.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusOverdue || next == StatusComplete
	case StatusOverdue:
		return next == StatusComplete
	default:
		return false
	}
}

// Record is the canonical, source-agnostic obligation.
type Record struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index;uniqueIndex:idx_record_identity" json:"user_id"`
	Source      Source         `gorm:"type:varchar(32);not null;uniqueIndex:idx_record_identity" json:"source"`
	ExternalID  *string        `gorm:"type:varchar(255);uniqueIndex:idx_record_identity" json:"external_id,omitempty"`
	Title       string         `gorm:"not null" json:"title"`
	Description *string        `json:"description,omitempty"`
	Kind        Kind           `gorm:"type:varchar(32);not null" json:"kind"`
	DueAt       *time.Time     `gorm:"index" json:"due_at,omitempty"`
	StartAt     *time.Time     `json:"start_at,omitempty"`
	Priority    int            `gorm:"default:0" json:"priority"`
	Status      Status         `gorm:"type:varchar(16);default:pending;index" json:"status"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasIdentity reports whether the record carries a source-local identifier
// and therefore takes part in deduplication.
func (r Record) HasIdentity() bool {
	return r.ExternalID != nil && *r.ExternalID != ""
}

// DescriptionText returns the description or "" when absent.
func (r Record) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns a UTC copy of t, or nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

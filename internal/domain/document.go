package domain

import (
	"errors"
	"fmt"
	"time"
)

// Document is the normalized unit produced by scanners and persisted by the repository.
type Document struct {
	ID        int64          `json:"id,omitempty"`
	Source    string         `json:"source,omitempty"`
	Title     string         `json:"title"`
	Abstract  string         `json:"abstract,omitempty"`
	Text      string         `json:"text,omitempty"`
	Link      string         `json:"link"`
	Other     map[string]any `json:"other,omitempty"`
	Published time.Time      `json:"published"`
	Loaded    time.Time      `json:"loaded,omitzero"`
}

// ErrAlreadyStored is returned by repositories that lose an insert race to a
// document with the same link.
var ErrAlreadyStored = errors.New("document already stored")

// Naive drops the zone of t while keeping its wall clock, so that timestamps
// coming from feeds with different offsets compare as they read.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Restrictions limit which documents a site run accepts.
type Restrictions struct {
	MaximumMaterials int
	ToLastMaterial   string
	FromDate         *time.Time
	ToDate           *time.Time
}

// RestrictionKind tags the reason a document was rejected.
type RestrictionKind string

const (
	RestrictionFromDate         RestrictionKind = "from_date"
	RestrictionToLastMaterial   RestrictionKind = "to_last_material"
	RestrictionMaximumMaterials RestrictionKind = "maximum_materials"
)

// RestrictionError is returned by the acceptance gate when a restriction is reached.
type RestrictionError struct {
	Kind RestrictionKind
	Link string
}

func (e *RestrictionError) Error() string {
	return fmt.Sprintf("restriction %s reached at %s", e.Kind, e.Link)
}

// IsRestriction reports whether err carries a restriction of one of the given kinds.
func IsRestriction(err error, kinds ...RestrictionKind) bool {
	var rerr *RestrictionError
	if !errors.As(err, &rerr) {
		return false
	}
	for _, kind := range kinds {
		if rerr.Kind == kind {
			return true
		}
	}
	return false
}

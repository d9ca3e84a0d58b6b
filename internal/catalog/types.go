// Package catalog defines the item and interaction records consumed by the
// index builder, and the snapshot sources that supply them. Snapshots are
// read-only, enumerable, and carry a stable ref so that rebuilds from the
// same data are idempotent.
package catalog

import (
	"context"
	"time"
)

// Item is a single catalog entry. Items are immutable between builds;
// Metadata is pass-through and never scored.
type Item struct {
	ID          string            `json:"item_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Text returns the tokenization source for the item, combining title and
// description the same way at build and query time.
func (it Item) Text() string {
	if it.Description == "" {
		return it.Title
	}
	return it.Title + " " + it.Description
}

// Interaction is one user-item rating or implicit-weight event.
type Interaction struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemSource enumerates one immutable catalog snapshot.
type ItemSource interface {
	// Ref identifies the snapshot; identical refs mean identical data.
	Ref() string
	Items(ctx context.Context) ([]Item, error)
}

// RatingSource enumerates one immutable ratings snapshot.
type RatingSource interface {
	Ref() string
	Interactions(ctx context.Context) ([]Interaction, error)
}

// StaticItems is an in-memory ItemSource, used by tests and by callers that
// already hold the catalog.
type StaticItems struct {
	SnapshotRef string
	Records     []Item
}

func (s StaticItems) Ref() string { return s.SnapshotRef }

func (s StaticItems) Items(_ context.Context) ([]Item, error) {
	return s.Records, nil
}

// StaticRatings is an in-memory RatingSource.
type StaticRatings struct {
	SnapshotRef string
	Records     []Interaction
}

func (s StaticRatings) Ref() string { return s.SnapshotRef }

func (s StaticRatings) Interactions(_ context.Context) ([]Interaction, error) {
	return s.Records, nil
}

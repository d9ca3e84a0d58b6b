// Package feedback implements the append-only log of user actions and its
// two read patterns: a windowed, recency-decayed scan that produces the
// online ranking boost, and a full scan that feeds the next CF build.
package feedback

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
)

// Action is the kind of a feedback event.
type Action string

const (
	ActionClick   Action = "click"
	ActionView    Action = "view"
	ActionLike    Action = "like"
	ActionDismiss Action = "dismiss"
)

// actionWeights maps each action to its raw signal strength. Dismiss is the
// only negative signal.
var actionWeights = map[Action]float64{
	ActionClick:   0.5,
	ActionView:    0.2,
	ActionLike:    1.0,
	ActionDismiss: -1.0,
}

// Valid reports whether a is a known action kind.
func (a Action) Valid() bool {
	_, ok := actionWeights[a]
	return ok
}

// Event is one recorded user action. Events are never mutated after append.
type Event struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query,omitempty"`
}

// BoostParams controls the online boost computed from recent events.
// Events older than Window are ignored; within the window each event's
// weight halves every HalfLife; the summed boost is clamped to
// [-MaxBoost, MaxBoost].
type BoostParams struct {
	Window   time.Duration
	HalfLife time.Duration
	MaxBoost float64
}

// Store is the append-only feedback log. Appends from many goroutines are
// serialized; reads never block writers beyond that append lock.
type Store struct {
	mu     sync.RWMutex
	events []Event
	byKey  map[[2]string][]int // (user, item) -> event offsets
	now    func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byKey: make(map[[2]string][]int),
		now:   time.Now,
	}
}

// Append records one event. Events arriving with a zero timestamp are
// stamped with the current time.
func (s *Store) Append(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{ev.UserID, ev.ItemID}
	s.byKey[key] = append(s.byKey[key], len(s.events))
	s.events = append(s.events, ev)
}

// Len returns the number of recorded events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Boost computes the bounded, recency-decayed boost for a (user, item)
// pair. The result is additive on fused scores of already-retrieved
// candidates only; it never introduces new candidates.
func (s *Store) Boost(userID, itemID string, p BoostParams) float64 {
	if p.MaxBoost <= 0 || p.HalfLife <= 0 {
		return 0
	}
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw float64
	for _, idx := range s.byKey[[2]string{userID, itemID}] {
		ev := s.events[idx]
		age := now.Sub(ev.Timestamp)
		if age < 0 || (p.Window > 0 && age > p.Window) {
			continue
		}
		decay := math.Pow(0.5, age.Seconds()/p.HalfLife.Seconds())
		raw += actionWeights[ev.Action] * decay
	}
	boost := p.MaxBoost * raw
	if boost > p.MaxBoost {
		return p.MaxBoost
	}
	if boost < -p.MaxBoost {
		return -p.MaxBoost
	}
	return boost
}

// Scan returns a copy of all events in append order, the full-scan read
// used for offline retraining.
func (s *Store) Scan() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Interactions converts the full log into implicit-weight interaction
// records for the next CF build. Dismissals yield zero-weight records so
// last-write-wins can cancel an earlier positive signal.
func (s *Store) Interactions() []catalog.Interaction {
	events := s.Scan()
	out := make([]catalog.Interaction, 0, len(events))
	for _, ev := range events {
		weight := actionWeights[ev.Action]
		if weight < 0 {
			weight = 0
		}
		out = append(out, catalog.Interaction{
			UserID:    ev.UserID,
			ItemID:    ev.ItemID,
			Rating:    weight * 5, // scale implicit signals onto the rating range
			Timestamp: ev.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

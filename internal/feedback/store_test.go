package feedback

import (
	"math"
	"testing"
	"time"
)

var testBoostParams = BoostParams{
	Window:   7 * 24 * time.Hour,
	HalfLife: 24 * time.Hour,
	MaxBoost: 0.25,
}

func fixedStore(now time.Time) *Store {
	s := NewStore()
	s.now = func() time.Time { return now }
	return s
}

func TestActionValid(t *testing.T) {
	for _, a := range []Action{ActionClick, ActionView, ActionLike, ActionDismiss} {
		if !a.Valid() {
			t.Fatalf("action %q should be valid", a)
		}
	}
	if Action("purchase").Valid() {
		t.Fatal("unknown action reported valid")
	}
}

func TestAppendStampsZeroTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionClick})
	events := s.Scan()
	if len(events) != 1 {
		t.Fatalf("Len = %d, want 1", len(events))
	}
	if !events[0].Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", events[0].Timestamp, now)
	}
}

func TestBoostFreshLikeHitsMaxBoost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now})

	got := s.Boost("u1", "i1", testBoostParams)
	if math.Abs(got-testBoostParams.MaxBoost) > 1e-9 {
		t.Fatalf("Boost = %v, want %v", got, testBoostParams.MaxBoost)
	}
}

func TestBoostHalfLifeDecay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now.Add(-testBoostParams.HalfLife)})

	got := s.Boost("u1", "i1", testBoostParams)
	want := testBoostParams.MaxBoost * 0.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Boost after one half-life = %v, want %v", got, want)
	}
}

func TestBoostIgnoresEventsOutsideWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now.Add(-testBoostParams.Window - time.Hour)})
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now.Add(time.Hour)}) // future

	if got := s.Boost("u1", "i1", testBoostParams); got != 0 {
		t.Fatalf("Boost = %v, want 0 for events outside the window", got)
	}
}

func TestBoostDismissIsNegative(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionDismiss, Timestamp: now})

	got := s.Boost("u1", "i1", testBoostParams)
	if math.Abs(got-(-testBoostParams.MaxBoost)) > 1e-9 {
		t.Fatalf("Boost = %v, want %v", got, -testBoostParams.MaxBoost)
	}
}

func TestBoostClampedToMaxBoost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	for i := 0; i < 10; i++ {
		s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now})
	}
	if got := s.Boost("u1", "i1", testBoostParams); got != testBoostParams.MaxBoost {
		t.Fatalf("Boost = %v, want clamp at %v", got, testBoostParams.MaxBoost)
	}
}

func TestBoostScopedToUserAndItem(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now})

	if got := s.Boost("u2", "i1", testBoostParams); got != 0 {
		t.Fatalf("Boost leaked across users: %v", got)
	}
	if got := s.Boost("u1", "i2", testBoostParams); got != 0 {
		t.Fatalf("Boost leaked across items: %v", got)
	}
}

func TestBoostDisabledParams(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now})

	if got := s.Boost("u1", "i1", BoostParams{}); got != 0 {
		t.Fatalf("Boost with zero params = %v, want 0", got)
	}
}

func TestInteractionsConversion(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionLike, Timestamp: now.Add(time.Minute)})
	s.Append(Event{UserID: "u1", ItemID: "i2", Action: ActionView, Timestamp: now})
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionDismiss, Timestamp: now.Add(2 * time.Minute)})

	got := s.Interactions()
	if len(got) != 3 {
		t.Fatalf("got %d interactions, want 3", len(got))
	}
	// Sorted by timestamp ascending.
	if got[0].ItemID != "i2" {
		t.Fatalf("first interaction = %s, want the earliest event i2", got[0].ItemID)
	}
	if math.Abs(got[0].Rating-1.0) > 1e-9 {
		t.Fatalf("view rating = %v, want 1.0", got[0].Rating)
	}
	if math.Abs(got[1].Rating-5.0) > 1e-9 {
		t.Fatalf("like rating = %v, want 5.0", got[1].Rating)
	}
	// Dismiss converts to a zero-weight record, not a negative one.
	if got[2].Rating != 0 {
		t.Fatalf("dismiss rating = %v, want 0", got[2].Rating)
	}
}

func TestScanReturnsCopy(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := fixedStore(now)
	s.Append(Event{UserID: "u1", ItemID: "i1", Action: ActionClick, Timestamp: now})

	events := s.Scan()
	events[0].ItemID = "mutated"
	if s.Scan()[0].ItemID != "i1" {
		t.Fatal("Scan exposed internal storage")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

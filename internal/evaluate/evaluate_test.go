package evaluate

import (
	"math"
	"testing"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
)

func ts(offset int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Minute)
}

func evalInteractions() []catalog.Interaction {
	return []catalog.Interaction{
		{UserID: "u1", ItemID: "a", Rating: 5, Timestamp: ts(0)},
		{UserID: "u1", ItemID: "b", Rating: 5, Timestamp: ts(1)},
		{UserID: "u1", ItemID: "c", Rating: 4, Timestamp: ts(5)}, // latest for u1
		{UserID: "u2", ItemID: "a", Rating: 5, Timestamp: ts(2)},
		{UserID: "u2", ItemID: "c", Rating: 5, Timestamp: ts(3)}, // latest for u2
		{UserID: "u3", ItemID: "b", Rating: 3, Timestamp: ts(4)}, // single interaction, skipped
	}
}

func TestChooseHoldoutLatestPerUser(t *testing.T) {
	held := chooseHoldout(evalInteractions())
	if len(held) != 2 {
		t.Fatalf("got %d holdouts, want 2 (u3 has a single interaction)", len(held))
	}
	// Users iterate in sorted order.
	if held[0].userID != "u1" || held[0].itemID != "c" {
		t.Fatalf("u1 holdout = %+v, want item c", held[0])
	}
	if held[1].userID != "u2" || held[1].itemID != "c" {
		t.Fatalf("u2 holdout = %+v, want item c", held[1])
	}
}

func TestTrainingSplitRemovesHeldPairs(t *testing.T) {
	interactions := evalInteractions()
	held := chooseHoldout(interactions)
	train := trainingSplit(interactions, held)
	if len(train) != len(interactions)-len(held) {
		t.Fatalf("training set has %d rows, want %d", len(train), len(interactions)-len(held))
	}
	for _, in := range train {
		for _, h := range held {
			if in.UserID == h.userID && in.ItemID == h.itemID {
				t.Fatalf("held pair (%s, %s) still in training set", h.userID, h.itemID)
			}
		}
	}
}

func TestRunPerfectRecommender(t *testing.T) {
	perfect := func(userID string, k int) []string {
		return []string{"c"} // both holdouts are item c
	}
	m, err := Run(perfect, evalInteractions(), Options{K: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.UsersEvaluated != 2 {
		t.Fatalf("UsersEvaluated = %d, want 2", m.UsersEvaluated)
	}
	if m.HitRate != 1 || m.RecallAtK != 1 {
		t.Fatalf("hit rate = %v recall = %v, want 1", m.HitRate, m.RecallAtK)
	}
	if math.Abs(m.PrecisionAtK-0.2) > 1e-9 {
		t.Fatalf("precision@5 = %v, want 0.2", m.PrecisionAtK)
	}
	// Hit at rank one is both the actual and the ideal ranking.
	if m.MAPAtK != 1 || m.NDCGAtK != 1 {
		t.Fatalf("map = %v ndcg = %v, want 1", m.MAPAtK, m.NDCGAtK)
	}
	if m.ItemCoverage != 1 {
		t.Fatalf("coverage = %d, want 1", m.ItemCoverage)
	}
}

func TestRunUselessRecommender(t *testing.T) {
	useless := func(userID string, k int) []string {
		return []string{"x", "y", "z"}
	}
	m, err := Run(useless, evalInteractions(), Options{K: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.HitRate != 0 || m.MAPAtK != 0 || m.NDCGAtK != 0 {
		t.Fatalf("metrics for useless recommender = %+v, want zeros", m)
	}
	if m.ItemCoverage != 3 {
		t.Fatalf("coverage = %d, want 3", m.ItemCoverage)
	}
}

func TestRunSecondRankNDCG(t *testing.T) {
	second := func(userID string, k int) []string {
		return []string{"filler", "c"}
	}
	m, err := Run(second, evalInteractions(), Options{K: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(m.MAPAtK-0.5) > 1e-9 {
		t.Fatalf("map = %v, want 0.5 for a rank-two hit", m.MAPAtK)
	}
	want := math.Round(1/math.Log2(3)*10000) / 10000
	if math.Abs(m.NDCGAtK-want) > 1e-9 {
		t.Fatalf("ndcg = %v, want %v", m.NDCGAtK, want)
	}
}

func TestRunNoEligibleUsers(t *testing.T) {
	interactions := []catalog.Interaction{
		{UserID: "u1", ItemID: "a", Rating: 5, Timestamp: ts(0)},
	}
	if _, err := Run(func(string, int) []string { return nil }, interactions, Options{}); err == nil {
		t.Fatal("expected error when no user has two interactions")
	}
}

func TestRunUsersLimitDeterministic(t *testing.T) {
	recommend := func(userID string, k int) []string { return []string{"c"} }
	first, err := Run(recommend, evalInteractions(), Options{K: 5, UsersLimit: 1, Seed: 7})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.UsersEvaluated != 1 {
		t.Fatalf("UsersEvaluated = %d, want 1", first.UsersEvaluated)
	}
	second, err := Run(recommend, evalInteractions(), Options{K: 5, UsersLimit: 1, Seed: 7})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.HitRate != second.HitRate || first.NDCGAtK != second.NDCGAtK {
		t.Fatal("same seed produced different samples")
	}
}

func TestRunCFRecoversHeldOutItem(t *testing.T) {
	// Each user's held-out item stays in training through the other two
	// users, and the user's remaining history overlaps its neighbors, so
	// CF should recover every holdout.
	interactions := []catalog.Interaction{
		{UserID: "u1", ItemID: "a", Rating: 5, Timestamp: ts(0)},
		{UserID: "u1", ItemID: "b", Rating: 5, Timestamp: ts(1)},
		{UserID: "u1", ItemID: "c", Rating: 5, Timestamp: ts(9)}, // holdout
		{UserID: "u2", ItemID: "a", Rating: 5, Timestamp: ts(2)},
		{UserID: "u2", ItemID: "c", Rating: 5, Timestamp: ts(3)},
		{UserID: "u2", ItemID: "b", Rating: 5, Timestamp: ts(10)}, // holdout
		{UserID: "u3", ItemID: "b", Rating: 5, Timestamp: ts(4)},
		{UserID: "u3", ItemID: "c", Rating: 5, Timestamp: ts(5)},
		{UserID: "u3", ItemID: "a", Rating: 5, Timestamp: ts(11)}, // holdout
	}
	m, err := RunCF(interactions, 10, Options{K: 3})
	if err != nil {
		t.Fatalf("RunCF: %v", err)
	}
	if m.UsersEvaluated != 3 {
		t.Fatalf("UsersEvaluated = %d, want 3", m.UsersEvaluated)
	}
	if m.HitRate != 1 {
		t.Fatalf("hit rate = %v, want 1 on a fully co-rated fixture", m.HitRate)
	}
}

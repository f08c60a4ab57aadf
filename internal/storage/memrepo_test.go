package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

var testSubject = domain.Subject{UserID: "hikaru", Platform: "chesscom"}

func sampleResult(ref string, analyzedAt time.Time) *domain.GameAnalysisResult {
	return &domain.GameAnalysisResult{
		Subject:    testSubject,
		GameRef:    ref,
		Variant:    "default",
		MoveCount:  32,
		Accuracy:   91.5,
		Labels:     domain.LabelCounts{Best: 20, Good: 10, Mistake: 2},
		Traits:     domain.NeutralProfile(),
		AnalyzedAt: analyzedAt,
	}
}

func TestInsertGameResultConflict(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	id, err := repo.InsertGameResult(ctx, sampleResult("g1", time.Now()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero id")
	}

	// Same (subject, game, variant) again: benign conflict, original stands.
	if _, err := repo.InsertGameResult(ctx, sampleResult("g1", time.Now())); !errors.Is(err, ErrAlreadyAnalyzed) {
		t.Fatalf("expected ErrAlreadyAnalyzed, got %v", err)
	}

	stored, err := repo.GetGameResult(ctx, testSubject, "g1", "default")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored == nil || stored.Accuracy != 91.5 {
		t.Fatalf("stored result mangled: %+v", stored)
	}

	// A different variant of the same game is a distinct row.
	other := sampleResult("g1", time.Now())
	other.Variant = "deep"
	if _, err := repo.InsertGameResult(ctx, other); err != nil {
		t.Fatalf("insert other variant: %v", err)
	}
}

func TestGetRecentResultsOrdering(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	now := time.Now()
	for i, ref := range []string{"old", "mid", "new"} {
		res := sampleResult(ref, now.Add(time.Duration(i)*time.Hour))
		if _, err := repo.InsertGameResult(ctx, res); err != nil {
			t.Fatalf("insert %s: %v", ref, err)
		}
	}

	recent, err := repo.GetRecentResults(ctx, testSubject, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].GameRef != "new" || recent[1].GameRef != "mid" {
		t.Fatalf("wrong ordering: %+v", recent)
	}
}

func TestGetGameResultMissing(t *testing.T) {
	repo := NewMemoryRepository()
	res, err := repo.GetGameResult(context.Background(), testSubject, "nope", "default")
	if err != nil || res != nil {
		t.Fatalf("missing result: res=%v err=%v", res, err)
	}
}

func TestTraitProfileUpsert(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, games, err := repo.GetTraitProfile(ctx, testSubject); err != nil || games != 0 {
		t.Fatalf("empty profile read: games=%d err=%v", games, err)
	}

	first := domain.TraitProfile{Tactical: 60, Positional: 55, Aggressive: 70, Patient: 30, Novelty: 65, Staleness: 35}
	if err := repo.UpsertTraitProfile(ctx, testSubject, first, 10); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := first
	second.Tactical = 72
	if err := repo.UpsertTraitProfile(ctx, testSubject, second, 25); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, games, err := repo.GetTraitProfile(ctx, testSubject)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Tactical != 72 || games != 25 {
		t.Fatalf("upsert did not replace: %+v games=%d", got, games)
	}
}

package gamesource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

var testSubject = domain.Subject{UserID: "anna", Platform: "lichess"}

func TestMemorySourceOrderingAndLimit(t *testing.T) {
	src := NewMemorySource()
	now := time.Now()
	src.Put(testSubject, []domain.GameRecord{
		{Ref: "old", PlayedAt: now.Add(-2 * time.Hour)},
		{Ref: "new", PlayedAt: now},
		{Ref: "mid", PlayedAt: now.Add(-time.Hour)},
	})

	games, err := src.FetchGames(context.Background(), testSubject, 2)
	if err != nil {
		t.Fatalf("FetchGames: %v", err)
	}
	if len(games) != 2 || games[0].Ref != "new" || games[1].Ref != "mid" {
		t.Fatalf("wrong ordering: %+v", games)
	}
}

func TestMemorySourceNoGames(t *testing.T) {
	src := NewMemorySource()
	if _, err := src.FetchGames(context.Background(), testSubject, 5); !errors.Is(err, ErrNoGames) {
		t.Fatalf("expected ErrNoGames, got %v", err)
	}
}

func TestConvertLichessGame(t *testing.T) {
	lg := lichessGame{
		ID:        "abcd1234",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Speed:     "blitz",
		Moves:     "e4 e5 Nf3 Nc6 Bc4",
	}
	lg.Players.White.User.Name = "Anna"
	lg.Players.Black.User.Name = "other"
	lg.Opening.ECO = "C50"

	rec, err := convertLichessGame("anna", lg)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if rec.SubjectColor != domain.White {
		t.Fatalf("subject color: %s", rec.SubjectColor)
	}
	if rec.OpeningECO != "C50" || rec.TimeControl != "blitz" {
		t.Fatalf("metadata lost: %+v", rec)
	}
	if len(rec.Moves) != 5 {
		t.Fatalf("expected 5 plies, got %d", len(rec.Moves))
	}
	wantUCI := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4"}
	for i, m := range rec.Moves {
		if m.UCI != wantUCI[i] {
			t.Fatalf("ply %d UCI = %s, want %s", i, m.UCI, wantUCI[i])
		}
		if m.FENAfter == "" {
			t.Fatalf("ply %d missing FEN", i)
		}
		wantSide := domain.White
		if i%2 == 1 {
			wantSide = domain.Black
		}
		if m.Side != wantSide {
			t.Fatalf("ply %d side = %s", i, m.Side)
		}
	}
}

func TestConvertLichessGameBlackSubject(t *testing.T) {
	lg := lichessGame{ID: "x", Moves: "d4 d5"}
	lg.Players.White.User.Name = "other"
	lg.Players.Black.User.Name = "Anna"

	rec, err := convertLichessGame("anna", lg)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if rec.SubjectColor != domain.Black {
		t.Fatalf("subject color: %s", rec.SubjectColor)
	}
}

func TestConvertLichessGameBadMoves(t *testing.T) {
	lg := lichessGame{ID: "bad", Moves: "e4 zz9"}
	lg.Players.White.User.Name = "anna"
	if _, err := convertLichessGame("anna", lg); err == nil {
		t.Fatal("expected decode error for junk SAN")
	}

	empty := lichessGame{ID: "empty"}
	empty.Players.White.User.Name = "anna"
	if _, err := convertLichessGame("anna", empty); err == nil {
		t.Fatal("expected error for moveless game")
	}
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine"
)

// fakeEvaluator returns canned scores and scripted errors by call order.
type fakeEvaluator struct {
	scoreCP int
	err     error
	// errAfter fails every call once calls reaches it (0 disables).
	errAfter int
	calls    int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, fen string) (domain.MoveEvaluation, error) {
	f.calls++
	if f.err != nil && (f.errAfter == 0 || f.calls > f.errAfter) {
		return domain.MoveEvaluation{}, f.err
	}
	return domain.MoveEvaluation{ScoreCP: f.scoreCP, BestMove: "e2e4"}, nil
}

func (f *fakeEvaluator) Close() error { return nil }

var testSubject = domain.Subject{UserID: "magnus", Platform: "lichess"}

// Italian game development, 12 legal plies.
var testUCIMoves = []string{
	"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "f8c5",
	"b2b4", "c5b4", "c2c3", "b4a5", "d2d4", "e5d4",
}

func testGame(ref string) domain.GameRecord {
	g := domain.GameRecord{Ref: ref, SubjectColor: domain.White}
	for i, uci := range testUCIMoves {
		g.Moves = append(g.Moves, domain.GameMoveRecord{Ply: i, UCI: uci})
	}
	return g
}

func TestAnalyzeGameClassifiesSubjectMovesOnly(t *testing.T) {
	w := NewWorker(&fakeEvaluator{scoreCP: 0}, nil, WorkerConfig{KeepMoves: true})

	res, err := w.AnalyzeGame(context.Background(), testSubject, testGame("g1"))
	if err != nil {
		t.Fatalf("AnalyzeGame: %v", err)
	}
	if res.MoveCount != 6 {
		t.Fatalf("expected 6 white moves, got %d", res.MoveCount)
	}
	for _, m := range res.Moves {
		if m.Side != domain.White {
			t.Fatalf("classified an opponent move: %+v", m)
		}
		if m.Label != domain.LabelBest {
			t.Fatalf("zero-loss move labeled %s", m.Label)
		}
	}
	if res.Accuracy != 100 {
		t.Fatalf("zero-loss game should have accuracy 100, got %f", res.Accuracy)
	}
	if res.Variant != "default" {
		t.Fatalf("unexpected variant %q", res.Variant)
	}
}

func TestAnalyzeGameLossFloor(t *testing.T) {
	// A negative sum (the engine liked the played move better) must floor to 0.
	w := NewWorker(&fakeEvaluator{scoreCP: -40}, nil, WorkerConfig{KeepMoves: true})

	res, err := w.AnalyzeGame(context.Background(), testSubject, testGame("g2"))
	if err != nil {
		t.Fatalf("AnalyzeGame: %v", err)
	}
	for _, m := range res.Moves {
		if m.CentipawnLoss != 0 {
			t.Fatalf("expected floored loss 0, got %d", m.CentipawnLoss)
		}
	}
}

func TestAnalyzeGameBookLabels(t *testing.T) {
	w := NewWorker(&fakeEvaluator{scoreCP: 0}, nil, WorkerConfig{BookPlyLimit: 6, KeepMoves: true})

	res, err := w.AnalyzeGame(context.Background(), testSubject, testGame("g3"))
	if err != nil {
		t.Fatalf("AnalyzeGame: %v", err)
	}
	for _, m := range res.Moves {
		if m.Ply < 6 && m.Label != domain.LabelBook {
			t.Fatalf("ply %d should be book, got %s", m.Ply, m.Label)
		}
		if m.Ply >= 6 && m.Label == domain.LabelBook {
			t.Fatalf("ply %d past the book window labeled book", m.Ply)
		}
	}
	if res.Labels.Book != 3 {
		t.Fatalf("expected 3 book moves, got %d", res.Labels.Book)
	}
}

func TestAnalyzeGameMalformed(t *testing.T) {
	w := NewWorker(&fakeEvaluator{}, nil, WorkerConfig{})
	ctx := context.Background()

	if _, err := w.AnalyzeGame(ctx, testSubject, domain.GameRecord{Ref: "empty", SubjectColor: domain.White}); !errors.Is(err, ErrMalformedGame) {
		t.Fatalf("empty game: expected ErrMalformedGame, got %v", err)
	}

	if _, err := w.AnalyzeGame(ctx, testSubject, domain.GameRecord{
		Ref:   "nocolor",
		Moves: []domain.GameMoveRecord{{UCI: "e2e4"}},
	}); !errors.Is(err, ErrMalformedGame) {
		t.Fatalf("missing color: expected ErrMalformedGame, got %v", err)
	}

	bad := testGame("illegal")
	bad.Moves[3].UCI = "e1e8"
	if _, err := w.AnalyzeGame(ctx, testSubject, bad); !errors.Is(err, ErrMalformedGame) {
		t.Fatalf("illegal move: expected ErrMalformedGame, got %v", err)
	}
}

func TestAnalyzeGameDegradedFallback(t *testing.T) {
	// The evaluator dies after the first two calls with a generic error; the
	// remaining moves must classify heuristically instead of failing the game.
	fe := &fakeEvaluator{scoreCP: 0, err: fmt.Errorf("engine crashed"), errAfter: 2}
	w := NewWorker(fe, nil, WorkerConfig{KeepMoves: true})

	res, err := w.AnalyzeGame(context.Background(), testSubject, testGame("g4"))
	if err != nil {
		t.Fatalf("AnalyzeGame: %v", err)
	}
	if res.DegradedMoves == 0 {
		t.Fatal("expected degraded moves")
	}
	degraded := 0
	for _, m := range res.Moves {
		if m.Degraded {
			degraded++
			if m.CentipawnLoss <= 0 {
				t.Fatalf("degraded move should carry a heuristic loss: %+v", m)
			}
		}
	}
	if degraded != res.DegradedMoves {
		t.Fatalf("degraded count mismatch: %d vs %d", degraded, res.DegradedMoves)
	}
}

func TestAnalyzeGameEngineUnavailable(t *testing.T) {
	fe := &fakeEvaluator{err: fmt.Errorf("spawn: %w", engine.ErrEngineUnavailable)}
	w := NewWorker(fe, nil, WorkerConfig{})

	_, err := w.AnalyzeGame(context.Background(), testSubject, testGame("g5"))
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestAnalyzeGameEvalMemoReusesPositions(t *testing.T) {
	fe := &fakeEvaluator{scoreCP: 10}
	w := NewWorker(fe, nil, WorkerConfig{})

	if _, err := w.AnalyzeGame(context.Background(), testSubject, testGame("g6")); err != nil {
		t.Fatalf("AnalyzeGame: %v", err)
	}
	// 12 plies yield 13 positions; adjacent moves share them, so the engine
	// must never be asked twice for the same index.
	if fe.calls > len(testUCIMoves)+1 {
		t.Fatalf("expected at most %d evaluations, got %d", len(testUCIMoves)+1, fe.calls)
	}
}

func TestAnalyzeGameRepeatable(t *testing.T) {
	ctx := context.Background()
	game := testGame("g8")

	first, err := NewWorker(&fakeEvaluator{scoreCP: 20}, nil, WorkerConfig{BookPlyLimit: 4, KeepMoves: true}).
		AnalyzeGame(ctx, testSubject, game)
	if err != nil {
		t.Fatalf("first AnalyzeGame: %v", err)
	}
	second, err := NewWorker(&fakeEvaluator{scoreCP: 20}, nil, WorkerConfig{BookPlyLimit: 4, KeepMoves: true}).
		AnalyzeGame(ctx, testSubject, game)
	if err != nil {
		t.Fatalf("second AnalyzeGame: %v", err)
	}

	first.AnalyzedAt, second.AnalyzedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-analysis diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestMaterialDeltaSpansOpponentReply(t *testing.T) {
	w := NewWorker(&fakeEvaluator{}, nil, WorkerConfig{})

	// White gives up a knight on ply 2, black captures on ply 3, white wins a
	// pawn back on ply 4. The swing measured for ply 2 must stop at black's
	// reply, before the recapture.
	plies := []plyInfo{
		{record: domain.GameMoveRecord{Ply: 0, Side: domain.White}, materialBalance: 0},
		{record: domain.GameMoveRecord{Ply: 1, Side: domain.Black}, materialBalance: 0},
		{record: domain.GameMoveRecord{Ply: 2, Side: domain.White}, materialBalance: 0},
		{record: domain.GameMoveRecord{Ply: 3, Side: domain.Black}, materialBalance: -3},
		{record: domain.GameMoveRecord{Ply: 4, Side: domain.White}, materialBalance: -2},
	}

	if got := w.materialDelta(plies, 2); got != -3 {
		t.Fatalf("white's swing after the reply = %d, want -3", got)
	}
	if !w.sacrifices(plies, 2) {
		t.Fatal("a three-pawn deficit after the reply should count as a sacrifice")
	}
	// Black's ply 3 nets material from black's perspective.
	if got := w.materialDelta(plies, 3); got != 2 {
		t.Fatalf("black's swing = %d, want 2", got)
	}
	// The final ply has no reply to confirm against.
	if w.sacrifices(plies, 4) {
		t.Fatal("the last ply cannot be confirmed as a sacrifice")
	}
}

func TestAnalyzeGameBlackSubject(t *testing.T) {
	g := testGame("g7")
	g.SubjectColor = domain.Black
	w := NewWorker(&fakeEvaluator{scoreCP: 0}, nil, WorkerConfig{KeepMoves: true})

	res, err := w.AnalyzeGame(context.Background(), testSubject, g)
	if err != nil {
		t.Fatalf("AnalyzeGame: %v", err)
	}
	if res.MoveCount != 6 {
		t.Fatalf("expected 6 black moves, got %d", res.MoveCount)
	}
	for _, m := range res.Moves {
		if m.Side != domain.Black {
			t.Fatalf("classified a white move for a black subject: %+v", m)
		}
	}
}

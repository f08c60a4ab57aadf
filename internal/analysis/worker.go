package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/obslog"
)

// ErrMalformedGame marks a game whose move list is empty or cannot be
// replayed. The orchestrator skips such games without failing the batch.
var ErrMalformedGame = errors.New("malformed game")

// kingZoneRadius is the Chebyshev distance around the enemy king within which
// a move counts as applying king pressure.
const kingZoneRadius = 2

// sacrificeThreshold is the material swing (pawn units, two plies later) below
// which a zero-loss move counts as a sacrifice.
const sacrificeThreshold = -2

// endgameMaterialMax is the combined non-pawn material (pawn units, both
// sides) at or below which a position counts as an endgame.
const endgameMaterialMax = 12

// openingPlyMax bounds the opening phase by ply count.
const openingPlyMax = 16

type WorkerConfig struct {
	// Variant names the analysis flavor persisted with each result, e.g.
	// "stockfish-balanced". Part of the persistence key.
	Variant string
	// BookPlyLimit is the last ply (exclusive) that may be labeled Book.
	BookPlyLimit int
	// KeepMoves retains per-move detail on the result.
	KeepMoves bool
}

// Worker analyzes one game at a time: replay, evaluate, classify, aggregate.
type Worker struct {
	evaluator engine.Evaluator
	scorer    *TraitScorer
	cfg       WorkerConfig
}

func NewWorker(evaluator engine.Evaluator, scorer *TraitScorer, cfg WorkerConfig) *Worker {
	if cfg.Variant == "" {
		cfg.Variant = "default"
	}
	if cfg.BookPlyLimit < 0 {
		cfg.BookPlyLimit = 0
	}
	if scorer == nil {
		scorer = NewTraitScorer(TraitConfig{})
	}
	return &Worker{evaluator: evaluator, scorer: scorer, cfg: cfg}
}

// plyInfo is the replay-derived context for one ply, before evaluation.
type plyInfo struct {
	record       domain.GameMoveRecord
	fenBefore    string
	capture      bool
	check        bool
	kingPressure bool
	onlyMove     bool
	// materialBalance is white-minus-black material in pawn units after the
	// move was played.
	materialBalance int
}

// AnalyzeGame replays game, drives the evaluator over each of the subject's
// plies and returns the immutable per-game aggregate. Evaluator failures for
// individual positions degrade to heuristic classification; only a wholly
// unavailable engine aborts the game.
func (w *Worker) AnalyzeGame(ctx context.Context, subject domain.Subject, game domain.GameRecord) (*domain.GameAnalysisResult, error) {
	if len(game.Moves) == 0 {
		return nil, fmt.Errorf("%w: empty move list (game %s)", ErrMalformedGame, game.Ref)
	}
	if game.SubjectColor != domain.White && game.SubjectColor != domain.Black {
		return nil, fmt.Errorf("%w: unknown subject color %q (game %s)", ErrMalformedGame, game.SubjectColor, game.Ref)
	}

	plies, finalFEN, err := w.replay(game)
	if err != nil {
		return nil, err
	}

	evals := newEvalMemo(w.evaluator, plies, finalFEN)

	classified := make([]domain.ClassifiedMove, 0, len(plies))
	var (
		forcingStreak int
		quietStreak   int
		degradedCount int
	)

	for i := range plies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &plies[i]
		if p.record.Side != game.SubjectColor {
			continue
		}

		cm := domain.ClassifiedMove{
			GameMoveRecord:    p.record,
			IsCapture:         p.capture,
			IsCheck:           p.check,
			GivesKingPressure: p.kingPressure,
		}

		before, errBefore := evals.at(ctx, i)
		after, errAfter := evals.at(ctx, i+1)
		switch {
		case errors.Is(errBefore, engine.ErrEngineUnavailable) || errors.Is(errAfter, engine.ErrEngineUnavailable):
			if errBefore != nil {
				return nil, errBefore
			}
			return nil, errAfter
		case errBefore != nil || errAfter != nil:
			// Degraded path: the engine timed out or crashed for this
			// position only. Estimate and continue.
			delta := w.materialDelta(plies, i)
			cm.CentipawnLoss = HeuristicLoss(p.capture, p.check, delta)
			cm.Degraded = true
			degradedCount++
		default:
			// before is from the mover's perspective, after from the
			// opponent's; the mover's achieved eval is -after.
			loss := before.ScoreCP + after.ScoreCP
			if loss < 0 {
				loss = 0
			}
			cm.CentipawnLoss = loss
			cm.IsBrilliant = IsBrilliant(loss, w.sacrifices(plies, i), before.ScoreCP, p.onlyMove)
		}

		cm.Label = Classify(cm.CentipawnLoss)
		if p.record.Ply < w.cfg.BookPlyLimit && cm.CentipawnLoss <= GoodLossMax {
			cm.Label = domain.LabelBook
		}

		cm.IsForcing = IsForcing(cm.IsCapture, cm.IsCheck, cm.GivesKingPressure)
		cm.IsQuiet = !cm.IsForcing
		if cm.IsForcing {
			forcingStreak++
			quietStreak = 0
		} else {
			quietStreak++
			forcingStreak = 0
		}
		cm.ForcingStreak = forcingStreak
		cm.QuietStreak = quietStreak

		classified = append(classified, cm)
	}

	result := w.aggregate(subject, game, classified, degradedCount)
	obslog.L().Debug("game_analyzed",
		zap.String("subject", subject.Key()),
		zap.String("game_ref", game.Ref),
		zap.Int("moves", result.MoveCount),
		zap.Float64("accuracy", result.Accuracy),
		zap.Int("degraded", degradedCount),
	)
	return result, nil
}

// replay walks the move list on a fresh board, deriving per-ply features and
// the FEN timeline.
func (w *Worker) replay(game domain.GameRecord) ([]plyInfo, string, error) {
	g := nchess.NewGame()
	plies := make([]plyInfo, 0, len(game.Moves))

	for i, rec := range game.Moves {
		pos := g.Position()
		fenBefore := g.FEN()

		mv, err := nchess.UCINotation{}.Decode(pos, rec.UCI)
		if err != nil {
			return nil, "", fmt.Errorf("%w: ply %d move %q: %v", ErrMalformedGame, i, rec.UCI, err)
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		onlyMove := len(pos.ValidMoves()) <= 1

		if err := g.Move(mv, nil); err != nil {
			return nil, "", fmt.Errorf("%w: ply %d move %q: %v", ErrMalformedGame, i, rec.UCI, err)
		}

		posAfter := g.Position()
		side := rec.Side
		if side == "" {
			side = sideForPly(i)
		}

		info := plyInfo{
			fenBefore:       fenBefore,
			capture:         mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant),
			check:           mv.HasTag(nchess.Check),
			onlyMove:        onlyMove,
			materialBalance: materialBalance(posAfter),
		}
		info.kingPressure = info.check || nearEnemyKing(posAfter, mv.S2(), side)

		info.record = domain.GameMoveRecord{
			Ply:       i,
			Side:      side,
			UCI:       rec.UCI,
			SAN:       san,
			FENAfter:  g.FEN(),
			Phase:     phaseOf(i, posAfter),
			TimeSpent: rec.TimeSpent,
		}
		plies = append(plies, info)
	}

	return plies, g.FEN(), nil
}

func (w *Worker) aggregate(subject domain.Subject, game domain.GameRecord, moves []domain.ClassifiedMove, degraded int) *domain.GameAnalysisResult {
	res := &domain.GameAnalysisResult{
		Subject:       subject,
		GameRef:       game.Ref,
		Variant:       w.cfg.Variant,
		MoveCount:     len(moves),
		DegradedMoves: degraded,
		AnalyzedAt:    time.Now().UTC(),
	}

	var (
		sum      float64
		phaseSum = map[domain.Phase]float64{}
		phaseN   = map[domain.Phase]int{}
	)
	for _, m := range moves {
		res.Labels.Add(m.Label)
		acc := MoveAccuracy(m.CentipawnLoss)
		sum += acc
		phaseSum[m.Phase] += acc
		phaseN[m.Phase]++
	}
	if len(moves) > 0 {
		res.Accuracy = sum / float64(len(moves))
	}
	res.ByPhase = domain.PhaseAccuracy{
		Opening:    phaseAvg(phaseSum, phaseN, domain.PhaseOpening),
		Middlegame: phaseAvg(phaseSum, phaseN, domain.PhaseMiddlegame),
		Endgame:    phaseAvg(phaseSum, phaseN, domain.PhaseEndgame),
	}

	res.Traits = w.scorer.ScoreGame(moves)
	if w.cfg.KeepMoves {
		res.Moves = moves
	}
	return res
}

// sacrifices reports whether the mover at ply index i is still down material
// after the opponent's actual reply. The final ply has no reply to confirm
// against and never counts.
func (w *Worker) sacrifices(plies []plyInfo, i int) bool {
	if i+1 >= len(plies) {
		return false
	}
	return w.materialDelta(plies, i) <= sacrificeThreshold
}

// materialDelta is the mover's material swing, in pawn units, from before the
// move to after the opponent's reply (or to the end of the game). The start
// position is balanced.
func (w *Worker) materialDelta(plies []plyInfo, i int) int {
	baseline := 0
	if i > 0 {
		baseline = plies[i-1].materialBalance
	}
	j := i + 1
	if j >= len(plies) {
		j = len(plies) - 1
	}
	delta := plies[j].materialBalance - baseline
	if plies[i].record.Side == domain.Black {
		delta = -delta
	}
	return delta
}

func phaseAvg(sum map[domain.Phase]float64, n map[domain.Phase]int, p domain.Phase) float64 {
	if n[p] == 0 {
		return 0
	}
	return sum[p] / float64(n[p])
}

func sideForPly(i int) domain.Color {
	if i%2 == 0 {
		return domain.White
	}
	return domain.Black
}

// evalMemo caches one engine verdict per position index. Index i is the
// position before ply i; index len(plies) is the final position.
type evalMemo struct {
	evaluator engine.Evaluator
	fens      []string
	cache     map[int]domain.MoveEvaluation
	failed    map[int]error
}

func newEvalMemo(evaluator engine.Evaluator, plies []plyInfo, finalFEN string) *evalMemo {
	fens := make([]string, 0, len(plies)+1)
	for i := range plies {
		fens = append(fens, plies[i].fenBefore)
	}
	fens = append(fens, finalFEN)
	return &evalMemo{
		evaluator: evaluator,
		fens:      fens,
		cache:     make(map[int]domain.MoveEvaluation),
		failed:    make(map[int]error),
	}
}

func (m *evalMemo) at(ctx context.Context, i int) (domain.MoveEvaluation, error) {
	if i < 0 || i >= len(m.fens) {
		return domain.MoveEvaluation{}, fmt.Errorf("position index %d out of range", i)
	}
	if ev, ok := m.cache[i]; ok {
		return ev, nil
	}
	if err, ok := m.failed[i]; ok {
		return domain.MoveEvaluation{}, err
	}
	ev, err := m.evaluator.Evaluate(ctx, m.fens[i])
	if err != nil {
		m.failed[i] = err
		return domain.MoveEvaluation{}, err
	}
	m.cache[i] = ev
	return ev, nil
}

// materialBalance is white-minus-black material in pawn units.
func materialBalance(pos *nchess.Position) int {
	balance := 0
	for _, piece := range pos.Board().SquareMap() {
		v := pieceValue(piece.Type())
		if piece.Color() == nchess.White {
			balance += v
		} else {
			balance -= v
		}
	}
	return balance
}

// nonPawnMaterial totals both sides' piece material excluding pawns and kings.
func nonPawnMaterial(pos *nchess.Position) int {
	total := 0
	for _, piece := range pos.Board().SquareMap() {
		if piece.Type() == nchess.Pawn || piece.Type() == nchess.King {
			continue
		}
		total += pieceValue(piece.Type())
	}
	return total
}

func pieceValue(t nchess.PieceType) int {
	switch t {
	case nchess.Pawn:
		return 1
	case nchess.Knight, nchess.Bishop:
		return 3
	case nchess.Rook:
		return 5
	case nchess.Queen:
		return 9
	default:
		return 0
	}
}

// phaseOf derives the phase marker for the ply ending in pos.
func phaseOf(ply int, pos *nchess.Position) domain.Phase {
	if nonPawnMaterial(pos) <= endgameMaterialMax {
		return domain.PhaseEndgame
	}
	if ply < openingPlyMax {
		return domain.PhaseOpening
	}
	return domain.PhaseMiddlegame
}

// nearEnemyKing reports whether dest lies inside the enemy king's zone.
func nearEnemyKing(pos *nchess.Position, dest nchess.Square, mover domain.Color) bool {
	enemy := nchess.Black
	if mover == domain.Black {
		enemy = nchess.White
	}
	for sq, piece := range pos.Board().SquareMap() {
		if piece.Type() != nchess.King || piece.Color() != enemy {
			continue
		}
		df := int(sq.File()) - int(dest.File())
		dr := int(sq.Rank()) - int(dest.Rank())
		if df < 0 {
			df = -df
		}
		if dr < 0 {
			dr = -dr
		}
		return df <= kingZoneRadius && dr <= kingZoneRadius
	}
	return false
}

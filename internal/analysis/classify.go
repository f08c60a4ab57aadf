package analysis

import (
	"math"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

// Centipawn-loss boundaries for move quality labels. These match the
// conventions of the major analysis sites and are pinned by regression tests;
// do not adjust without updating the external contract.
const (
	GreatLossMax      = 15
	ExcellentLossMax  = 25
	GoodLossMax       = 50
	InaccuracyLossMax = 100
	MistakeLossMax    = 200
)

// decisiveCP is the evaluation beyond which a position counts as already
// decided; brilliancies are not awarded in won positions.
const decisiveCP = 300

// accuracyHalfLife shapes the per-move accuracy decay: a move losing this many
// centipawns scores ~37 accuracy points.
const accuracyHalfLife = 120.0

// Classify maps a non-negative centipawn loss to its quality label. The
// mapping is total and deterministic: exactly one label per loss value,
// monotone in loss. Negative input is treated as zero loss.
func Classify(centipawnLoss int) domain.MoveLabel {
	switch {
	case centipawnLoss <= 0:
		return domain.LabelBest
	case centipawnLoss <= GreatLossMax:
		return domain.LabelGreat
	case centipawnLoss <= ExcellentLossMax:
		return domain.LabelExcellent
	case centipawnLoss <= GoodLossMax:
		return domain.LabelGood
	case centipawnLoss <= InaccuracyLossMax:
		return domain.LabelInaccuracy
	case centipawnLoss <= MistakeLossMax:
		return domain.LabelMistake
	default:
		return domain.LabelBlunder
	}
}

// MoveAccuracy converts a centipawn loss into a per-move accuracy in [0,100].
// Strictly decreasing in loss, 100 at zero loss.
func MoveAccuracy(centipawnLoss int) float64 {
	if centipawnLoss <= 0 {
		return 100
	}
	return 100 * math.Exp(-float64(centipawnLoss)/accuracyHalfLife)
}

// IsForcing reports whether a move is forcing: a capture, a check, or a direct
// threat against the enemy king.
func IsForcing(isCapture, isCheck, givesKingPressure bool) bool {
	return isCapture || isCheck || givesKingPressure
}

// IsBrilliant is the compound brilliancy predicate: the move must be the best
// available, sacrifice material, have alternatives (not a forced recapture or
// only move), and be played in a position that is not already decisively won.
func IsBrilliant(centipawnLoss int, sacrificesMaterial bool, evalBeforeCP int, onlyMove bool) bool {
	if centipawnLoss > 0 {
		return false
	}
	if !sacrificesMaterial {
		return false
	}
	if onlyMove {
		return false
	}
	return evalBeforeCP < decisiveCP
}

// HeuristicLoss estimates the centipawn loss of a move when the evaluator is
// unreachable. materialDelta is the net material swing for the mover in pawn
// units over the ply (captured value minus value hung, negative when material
// was given up without compensation we can see).
func HeuristicLoss(isCapture, isCheck bool, materialDelta int) int {
	switch {
	case materialDelta < -2:
		// Gave up a piece or more with nothing visible in return.
		return MistakeLossMax + 50
	case materialDelta < 0:
		return InaccuracyLossMax + 20
	case isCapture || isCheck:
		// Forcing moves that hold material are usually reasonable.
		return GreatLossMax
	default:
		return ExcellentLossMax
	}
}

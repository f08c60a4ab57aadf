package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine"
)

// enginecheck verifies the configured UCI binary spawns, answers the
// handshake, and evaluates one position within the budget. Exit code is
// non-zero on any failure so it can gate container startup.
func main() {
	binary := os.Getenv("STOCKFISH_PATH")
	if binary == "" {
		log.Fatal("STOCKFISH_PATH is required")
	}
	tierName := os.Getenv("ANALYSIS_TIER")
	if tierName == "" {
		tierName = "fast"
	}

	tier, err := engine.GetTier(tierName)
	if err != nil {
		log.Fatalf("tier error: %v", err)
	}

	evaluator, err := engine.NewUCIEvaluator(engine.EvaluatorConfig{
		BinaryPath: binary,
		Tier:       tier,
		Budget:     10 * time.Second,
	})
	if err != nil {
		log.Fatalf("evaluator init error: %v", err)
	}
	defer evaluator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	start := time.Now()
	eval, err := evaluator.Evaluate(ctx, startFEN)
	if err != nil {
		log.Fatalf("evaluate error: %v", err)
	}

	log.Printf("engine ok: tier=%s score_cp=%d best=%s elapsed=%s",
		tierName, eval.ScoreCP, eval.BestMove, time.Since(start).Round(time.Millisecond))
}

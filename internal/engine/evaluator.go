package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine/uci"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/obslog"
)

// ErrEngineUnavailable means the engine process cannot be reached at all.
// Jobs hitting it fail fast; it is never a per-move condition.
var ErrEngineUnavailable = errors.New("engine unavailable")

// Evaluator is the move-evaluation contract the analysis core depends on. The
// returned score is signed from the perspective of the side to move in fen.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string) (domain.MoveEvaluation, error)
	Close() error
}

// UCIEvaluator drives a pooled UCI engine. Every call carries the configured
// time budget so one unresponsive search cannot stall a worker indefinitely.
type UCIEvaluator struct {
	pool   *uci.Pool
	tier   AnalysisTier
	budget time.Duration
}

type EvaluatorConfig struct {
	BinaryPath string
	Tier       AnalysisTier
	// Budget bounds a single Evaluate call end to end, engine queueing
	// included. Zero means derive from the tier's move time.
	Budget time.Duration
}

func NewUCIEvaluator(cfg EvaluatorConfig) (*UCIEvaluator, error) {
	tier := cfg.Tier
	if tier.Name == "" {
		var err error
		tier, err = GetTier("balanced")
		if err != nil {
			return nil, err
		}
	}

	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    tier.options(),
		Capacity:   tier.PoolCapacity,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	budget := cfg.Budget
	if budget <= 0 {
		budget = time.Duration(tier.MoveTimeMillis+2000) * time.Millisecond
	}

	return &UCIEvaluator{pool: pool, tier: tier, budget: budget}, nil
}

func (e *UCIEvaluator) Evaluate(ctx context.Context, fen string) (domain.MoveEvaluation, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	session, err := e.pool.Acquire(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.MoveEvaluation{}, err
		}
		// Failing to spawn an engine process means the binary or host is
		// broken, not the position.
		return domain.MoveEvaluation{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	var releaseErr error
	defer func() { e.pool.Release(session, releaseErr) }()

	resp, err := session.Evaluate(callCtx, uci.EvalRequest{
		FEN:    fen,
		Limits: e.tier.limits(),
	})
	if err != nil {
		releaseErr = err
		obslog.L().Warn("engine_eval_failed",
			zap.String("fen", fen),
			zap.String("tier", e.tier.Name),
			zap.Error(err),
		)
		return domain.MoveEvaluation{}, fmt.Errorf("evaluate position: %w", err)
	}

	return domain.MoveEvaluation{
		ScoreCP:  resp.ScoreCP,
		BestMove: resp.BestMove,
		Mate:     resp.Mate,
	}, nil
}

func (e *UCIEvaluator) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

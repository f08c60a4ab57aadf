package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/obslog"
)

// ErrShutdownTimeout is returned when lagging workers outlive the grace
// period; their games count as failed and are abandoned.
var ErrShutdownTimeout = errors.New("orchestrator shutdown grace exceeded")

// ProgressEvent is emitted once per completed game, in completion order.
// Result is set only when the game analyzed successfully.
type ProgressEvent struct {
	GameRef   string
	Completed int
	Total     int
	Result    *domain.GameAnalysisResult
	Err       error
}

// AnalyzeFunc analyzes a single game.
type AnalyzeFunc func(ctx context.Context, subject domain.Subject, game domain.GameRecord) (*domain.GameAnalysisResult, error)

type OrchestratorConfig struct {
	// Workers bounds the pool for one job. Games beyond the pool size wait in
	// the dispatch channel rather than spawning more workers.
	Workers int
	// ShutdownGrace bounds how long result collection waits for lagging
	// workers after cancellation.
	ShutdownGrace time.Duration
}

// Orchestrator fans one job's games across a bounded worker pool and collects
// results one completion at a time, so callers observe incremental progress
// without the collection path ever blocking on the whole batch.
type Orchestrator struct {
	cfg OrchestratorConfig
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Orchestrator{cfg: cfg}
}

type gameOutcome struct {
	ref    string
	result *domain.GameAnalysisResult
	err    error
}

// Run analyzes games with analyze, invoking onProgress after each completion.
// Per-game failures (malformed input, degraded evaluation) never abort the
// batch; a wholly unavailable engine cancels the remaining games and returns
// engine.ErrEngineUnavailable. The returned slice holds only successful
// results, in completion order.
func (o *Orchestrator) Run(ctx context.Context, subject domain.Subject, games []domain.GameRecord, analyze AnalyzeFunc, onProgress func(ProgressEvent)) ([]*domain.GameAnalysisResult, error) {
	if len(games) == 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := o.cfg.Workers
	if workers > len(games) {
		workers = len(games)
	}

	dispatch := make(chan domain.GameRecord, len(games))
	outcomes := make(chan gameOutcome, len(games))
	for _, g := range games {
		dispatch <- g
	}
	close(dispatch)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for game := range dispatch {
				select {
				case <-runCtx.Done():
					outcomes <- gameOutcome{ref: game.Ref, err: runCtx.Err()}
					continue
				default:
				}
				res, err := analyze(runCtx, subject, game)
				outcomes <- gameOutcome{ref: game.Ref, result: res, err: err}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var (
		results    []*domain.GameAnalysisResult
		runErr     error
		completed  int
		total      = len(games)
		graceTimer *time.Timer
		ctxDone    = ctx.Done()
	)

collect:
	for completed < total {
		var graceC <-chan time.Time
		if graceTimer != nil {
			graceC = graceTimer.C
		}
		select {
		case out := <-outcomes:
			completed++
			if out.err != nil {
				if errors.Is(out.err, engine.ErrEngineUnavailable) && runErr == nil {
					// The whole job is doomed; stop feeding workers.
					runErr = out.err
					cancel()
				}
				obslog.L().Warn("game_analysis_failed",
					zap.String("subject", subject.Key()),
					zap.String("game_ref", out.ref),
					zap.Error(out.err),
				)
			} else if out.result != nil {
				results = append(results, out.result)
			}
			if onProgress != nil {
				ev := ProgressEvent{GameRef: out.ref, Completed: completed, Total: total, Err: out.err}
				if out.err == nil {
					ev.Result = out.result
				}
				onProgress(ev)
			}
		case <-ctxDone:
			// Caller gave up; allow a bounded grace period for in-flight
			// games, then abandon the stragglers.
			ctxDone = nil
			graceTimer = time.NewTimer(o.cfg.ShutdownGrace)
			defer graceTimer.Stop()
			if runErr == nil {
				runErr = ctx.Err()
			}
			cancel()
		case <-graceC:
			runErr = errors.Join(runErr, ErrShutdownTimeout)
			break collect
		}
	}

	if runErr == nil {
		select {
		case <-done:
		case <-time.After(o.cfg.ShutdownGrace):
		}
	}
	return results, runErr
}

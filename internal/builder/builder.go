package builder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/analysis"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/config"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/gamesource"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/queue"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/storage"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/transport/progressws"
)

// Deps is the wired object graph of the analysis service.
type Deps struct {
	Evaluator *engine.UCIEvaluator
	Worker    *analysis.Worker
	Queue     *queue.Queue
	Repo      storage.Repository
	Cache     *storage.ResultCache
	Progress  *progressws.Client

	db *sql.DB
}

// New wires every component from config. Postgres, Redis and the progress
// websocket are optional; the engine binary is not.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	tier, err := engine.GetTier(cfg.AnalysisTier)
	if err != nil {
		return nil, err
	}

	evaluator, err := engine.NewUCIEvaluator(engine.EvaluatorConfig{
		BinaryPath: cfg.StockfishPath,
		Tier:       tier,
		Budget:     time.Duration(cfg.EvalBudgetMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init evaluator: %w", err)
	}

	traitCfg := analysis.TraitConfig{}
	if cfg.SkillAdjustment {
		traitCfg.Skill = &analysis.SkillAdjustment{Rating: cfg.SkillRating}
	}
	scorer := analysis.NewTraitScorer(traitCfg)

	worker := analysis.NewWorker(evaluator, scorer, analysis.WorkerConfig{
		Variant:      cfg.Variant,
		BookPlyLimit: cfg.BookPlyLimit,
		KeepMoves:    true,
	})

	orch := analysis.NewOrchestrator(analysis.OrchestratorConfig{
		Workers:       cfg.WorkersPerJob,
		ShutdownGrace: time.Duration(cfg.ShutdownGraceSec) * time.Second,
	})

	var source gamesource.Source
	switch cfg.GameSource {
	case "lichess":
		var opts []gamesource.LichessOption
		if cfg.LichessToken != "" {
			opts = append(opts, gamesource.WithLichessToken(cfg.LichessToken))
		}
		source = gamesource.NewLichessSource(opts...)
	default:
		source = gamesource.NewMemorySource()
	}

	deps := &Deps{Evaluator: evaluator, Worker: worker}

	var repo storage.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err := storage.Open(pingCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			evaluator.Close()
			return nil, err
		}
		deps.db = db
		repo = storage.NewRepository(db)
	} else {
		repo = storage.NewMemoryRepository()
	}
	deps.Repo = repo

	if strings.TrimSpace(cfg.RedisURL) != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		cache, err := storage.NewResultCache(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Cache = cache
	}

	if strings.TrimSpace(cfg.ProgressWSURL) != "" {
		deps.Progress = progressws.NewClient(cfg.ProgressWSURL)
	}

	var cache queue.Snapshotter
	if deps.Cache != nil {
		cache = deps.Cache
	}
	var progress queue.ProgressPublisher
	if deps.Progress != nil {
		progress = deps.Progress
	}

	deps.Queue = queue.NewQueue(
		queue.Config{
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			JobTimeout:        time.Duration(cfg.JobTimeoutSec) * time.Second,
			Retention:         time.Duration(cfg.JobRetentionSec) * time.Second,
			DefaultGameLimit:  cfg.DefaultGameLimit,
			MaxGameLimit:      cfg.MaxGameLimit,
		},
		source,
		orch,
		worker.AnalyzeGame,
		scorer,
		repo,
		cache,
		progress,
	)

	return deps, nil
}

// Close tears the graph down in reverse dependency order.
func (d *Deps) Close() {
	if d.Queue != nil {
		d.Queue.Close()
	}
	if d.Progress != nil {
		d.Progress.Close()
	}
	if d.Cache != nil {
		d.Cache.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
	if d.Evaluator != nil {
		d.Evaluator.Close()
	}
}

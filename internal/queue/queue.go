package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/analysis"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/gamesource"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/obslog"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/storage"
)

var (
	ErrInvalidSubject = errors.New("invalid subject")
	ErrResultNotFound = errors.New("game result not found")
	ErrQueueClosed    = errors.New("analysis queue closed")
)

const (
	schedulerTick = 250 * time.Millisecond
	sweepInterval = time.Minute
)

// Persister stores finished results durably. storage.Repository satisfies it.
// Conflict on re-analysis of the same game is benign and surfaces as
// storage.ErrAlreadyAnalyzed.
type Persister interface {
	InsertGameResult(ctx context.Context, res *domain.GameAnalysisResult) (int64, error)
	UpsertTraitProfile(ctx context.Context, subject domain.Subject, profile domain.TraitProfile, gamesAnalyzed int) error
}

// Snapshotter caches job and result snapshots for cheap polling reads.
// Failures are logged, never fatal.
type Snapshotter interface {
	CacheJob(ctx context.Context, job domain.AnalysisJob) error
	CacheGameResult(ctx context.Context, res *domain.GameAnalysisResult) error
}

// ProgressPublisher pushes per-game progress to an external consumer.
type ProgressPublisher interface {
	Publish(jobID string, ev analysis.ProgressEvent)
}

type Config struct {
	// MaxConcurrentJobs caps jobs running at once; further jobs wait pending.
	MaxConcurrentJobs int
	// JobTimeout bounds one job end to end.
	JobTimeout time.Duration
	// Retention keeps terminal jobs queryable before the sweeper drops them.
	Retention time.Duration

	DefaultGameLimit int
	MaxGameLimit     int
}

func (c *Config) normalize() {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 2
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 20 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	if c.DefaultGameLimit <= 0 {
		c.DefaultGameLimit = 10
	}
	if c.MaxGameLimit < c.DefaultGameLimit {
		c.MaxGameLimit = c.DefaultGameLimit
	}
}

// Queue owns the analysis job lifecycle: idempotent submission per subject, a
// pending FIFO, and a scheduler that starts jobs up to the concurrency ceiling
// without ever blocking on a running job. Starting a job is fire-and-forget;
// the cancel handle is retained so shutdown and explicit cancellation can
// reach in-flight work.
type Queue struct {
	cfg Config

	mu       sync.Mutex
	store    *JobStore
	pending  []string
	running  int
	inflight map[string]context.CancelFunc
	results  map[string]map[string]*domain.GameAnalysisResult
	closed   bool

	source   gamesource.Source
	orch     *analysis.Orchestrator
	analyze  analysis.AnalyzeFunc
	scorer   *analysis.TraitScorer
	sink     Persister
	cache    Snapshotter
	progress ProgressPublisher

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue wires the scheduler. sink, cache and progress may be nil.
func NewQueue(cfg Config, source gamesource.Source, orch *analysis.Orchestrator, analyze analysis.AnalyzeFunc, scorer *analysis.TraitScorer, sink Persister, cache Snapshotter, progress ProgressPublisher) *Queue {
	cfg.normalize()
	q := &Queue{
		cfg:      cfg,
		inflight: make(map[string]context.CancelFunc),
		results:  make(map[string]map[string]*domain.GameAnalysisResult),
		source:   source,
		orch:     orch,
		analyze:  analyze,
		scorer:   scorer,
		sink:     sink,
		cache:    cache,
		progress: progress,
		wake:     make(chan struct{}, 1),
	}
	q.store = NewJobStore(&q.mu)
	return q
}

// Start launches the scheduler and sweeper loops.
func (q *Queue) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go q.schedulerLoop(runCtx)
	q.wg.Add(1)
	go q.sweepLoop(runCtx)
}

// Close stops the scheduler and cancels every in-flight job, then waits for
// the loops to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	cancels := make([]context.CancelFunc, 0, len(q.inflight))
	for _, c := range q.inflight {
		cancels = append(cancels, c)
	}
	q.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Submit enqueues an analysis job for the subject. Submission is idempotent
// while a job for the same subject is pending or running: the existing job is
// returned with created=false and no new work is scheduled. Once that job
// reaches a terminal state a fresh submission creates a new one. Submit never
// waits on running jobs.
func (q *Queue) Submit(ctx context.Context, subject domain.Subject, limit int) (domain.AnalysisJob, bool, error) {
	if !subject.Valid() {
		return domain.AnalysisJob{}, false, ErrInvalidSubject
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return domain.AnalysisJob{}, false, ErrQueueClosed
	}

	if limit <= 0 {
		limit = q.cfg.DefaultGameLimit
	}
	if limit > q.cfg.MaxGameLimit {
		limit = q.cfg.MaxGameLimit
	}

	job, created := q.store.Create(domain.AnalysisJob{
		ID:      uuid.NewString(),
		Subject: subject,
		Limit:   limit,
	})
	if !created {
		return job, false, nil
	}

	q.mu.Lock()
	q.pending = append(q.pending, job.ID)
	q.mu.Unlock()
	q.kick()

	obslog.L().Info("job_submitted",
		zap.String("job_id", job.ID),
		zap.String("subject", subject.Key()),
		zap.Int("limit", limit),
	)
	return job, true, nil
}

// Status returns a snapshot of the job.
func (q *Queue) Status(id string) (domain.AnalysisJob, error) {
	return q.store.Get(id)
}

// GameResult returns one game's result from a job's in-memory result set.
// Results become readable as soon as their game completes, before the job
// reaches a terminal state.
func (q *Queue) GameResult(jobID, gameRef string) (*domain.GameAnalysisResult, error) {
	if _, err := q.store.Get(jobID); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	byRef, ok := q.results[jobID]
	if !ok {
		return nil, ErrResultNotFound
	}
	res, ok := byRef[gameRef]
	if !ok {
		return nil, ErrResultNotFound
	}
	return res, nil
}

// Cancel aborts a running or pending job. Unknown ids return ErrJobNotFound.
func (q *Queue) Cancel(id string) error {
	job, err := q.store.Get(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	q.mu.Lock()
	cancel, inflight := q.inflight[id]
	if !inflight {
		for i, pid := range q.pending {
			if pid == id {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	q.mu.Unlock()

	if inflight {
		cancel()
		return nil
	}
	return q.store.Finish(id, domain.JobFailed, "cancelled before start")
}

// RunningCount is the number of jobs currently executing.
func (q *Queue) RunningCount() int {
	return q.store.RunningCount()
}

func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// schedulerLoop admits pending jobs whenever capacity frees up. Admission is
// fire-and-forget: starting one job never delays the next admission decision.
func (q *Queue) schedulerLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
		q.dispatch(ctx)
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 || q.running >= q.cfg.MaxConcurrentJobs {
			q.mu.Unlock()
			return
		}
		id := q.pending[0]
		q.pending = q.pending[1:]
		q.running++

		jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
		q.inflight[id] = cancel
		q.mu.Unlock()

		q.wg.Add(1)
		go q.runJob(jobCtx, id)
	}
}

func (q *Queue) runJob(ctx context.Context, id string) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		if cancel, ok := q.inflight[id]; ok {
			delete(q.inflight, id)
			defer cancel()
		}
		q.running--
		q.mu.Unlock()
		q.kick()
	}()

	job, err := q.store.Get(id)
	if err != nil {
		return
	}
	if err := q.store.MarkRunning(id); err != nil {
		return
	}
	q.snapshotJob(ctx, id)

	games, err := q.source.FetchGames(ctx, job.Subject, job.Limit)
	if err != nil {
		if errors.Is(err, gamesource.ErrNoGames) {
			q.finishJob(id, domain.JobCompleted, "")
			return
		}
		obslog.L().Error("game_fetch_failed",
			zap.String("job_id", id),
			zap.String("subject", job.Subject.Key()),
			zap.Error(err),
		)
		q.finishJob(id, domain.JobFailed, "game fetch failed: "+err.Error())
		return
	}

	_ = q.store.SetTotal(id, len(games))
	q.snapshotJob(ctx, id)

	results, runErr := q.orch.Run(ctx, job.Subject, games, q.analyze, func(ev analysis.ProgressEvent) {
		_ = q.store.ReportGame(id, ev.Err == nil)
		if ev.Result != nil {
			q.storeResult(id, ev.Result)
		}
		q.snapshotJob(ctx, id)
		if q.progress != nil {
			q.progress.Publish(id, ev)
		}
	})

	q.persistResults(ctx, job.Subject, games, results)

	if runErr != nil {
		q.finishJob(id, domain.JobFailed, runErr.Error())
		return
	}
	q.finishJob(id, domain.JobCompleted, "")
}

func (q *Queue) storeResult(id string, res *domain.GameAnalysisResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	byRef := q.results[id]
	if byRef == nil {
		byRef = make(map[string]*domain.GameAnalysisResult)
		q.results[id] = byRef
	}
	byRef[res.GameRef] = res
}

func (q *Queue) persistResults(ctx context.Context, subject domain.Subject, games []domain.GameRecord, results []*domain.GameAnalysisResult) {
	if len(results) == 0 {
		return
	}

	ecoByRef := make(map[string]string, len(games))
	for _, g := range games {
		ecoByRef[g.Ref] = g.OpeningECO
	}

	profiles := make([]domain.TraitProfile, 0, len(results))
	meta := make([]analysis.GameMeta, 0, len(results))
	for _, res := range results {
		profiles = append(profiles, res.Traits)
		meta = append(meta, analysis.GameMeta{OpeningECO: ecoByRef[res.GameRef]})

		if q.sink != nil {
			if _, err := q.sink.InsertGameResult(ctx, res); err != nil && !errors.Is(err, storage.ErrAlreadyAnalyzed) {
				obslog.L().Error("result_persist_failed",
					zap.String("subject", subject.Key()),
					zap.String("game_ref", res.GameRef),
					zap.Error(err),
				)
			}
		}
		if q.cache != nil {
			if err := q.cache.CacheGameResult(ctx, res); err != nil {
				obslog.L().Warn("result_cache_failed", zap.String("game_ref", res.GameRef), zap.Error(err))
			}
		}
	}

	if q.sink != nil && q.scorer != nil {
		profile := q.scorer.AggregateProfiles(profiles, meta)
		if err := q.sink.UpsertTraitProfile(ctx, subject, profile, len(results)); err != nil {
			obslog.L().Error("profile_persist_failed", zap.String("subject", subject.Key()), zap.Error(err))
		}
	}
}

func (q *Queue) finishJob(id string, status domain.JobStatus, errMsg string) {
	if err := q.store.Finish(id, status, errMsg); err != nil {
		return
	}
	// Snapshot with a fresh context; the job context may already be dead.
	snapCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	q.snapshotJob(snapCtx, id)

	obslog.L().Info("job_finished",
		zap.String("job_id", id),
		zap.String("status", string(status)),
		zap.String("error", errMsg),
	)
}

func (q *Queue) snapshotJob(ctx context.Context, id string) {
	if q.cache == nil {
		return
	}
	job, err := q.store.Get(id)
	if err != nil {
		return
	}
	if err := q.cache.CacheJob(ctx, job); err != nil {
		obslog.L().Warn("job_cache_failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (q *Queue) sweepLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := q.store.SweepExpired(q.cfg.Retention)
			if len(removed) == 0 {
				continue
			}
			q.mu.Lock()
			for _, id := range removed {
				delete(q.results, id)
			}
			q.mu.Unlock()
			obslog.L().Debug("jobs_swept", zap.Int("count", len(removed)))
		}
	}
}

package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

var (
	ErrJobNotFound = errors.New("analysis job not found")
)

// JobStore holds job records and the active-subject index behind a single
// mutex handed in by the owner, so the queue can share the lock with its own
// scheduling state. All methods return copies; callers never see live records.
type JobStore struct {
	mu   *sync.Mutex
	jobs map[string]*domain.AnalysisJob
	// active maps subject key to the id of its non-terminal job.
	active map[string]string
}

func NewJobStore(mu *sync.Mutex) *JobStore {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &JobStore{
		mu:     mu,
		jobs:   make(map[string]*domain.AnalysisJob),
		active: make(map[string]string),
	}
}

// Create registers a pending job for the subject. If a non-terminal job for
// the same subject already exists its copy is returned with created=false; the
// queue treats that as a duplicate submission, not an error.
func (s *JobStore) Create(job domain.AnalysisJob) (domain.AnalysisJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := job.Subject.Key()
	if id, ok := s.active[key]; ok {
		if existing, ok := s.jobs[id]; ok && !existing.Status.Terminal() {
			return *existing, false
		}
		delete(s.active, key)
	}

	job.Status = domain.JobPending
	job.CreatedAt = time.Now()
	stored := job
	s.jobs[job.ID] = &stored
	s.active[key] = job.ID
	return stored, true
}

func (s *JobStore) Get(id string) (domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.AnalysisJob{}, ErrJobNotFound
	}
	return *job, nil
}

// ActiveForSubject returns the subject's non-terminal job, if any.
func (s *JobStore) ActiveForSubject(subject domain.Subject) (domain.AnalysisJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[subject.Key()]
	if !ok {
		return domain.AnalysisJob{}, false
	}
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return domain.AnalysisJob{}, false
	}
	return *job, true
}

// MarkRunning transitions a pending job to running.
func (s *JobStore) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = domain.JobRunning
	job.StartedAt = time.Now()
	return nil
}

// SetTotal records the batch size once the game source has answered.
func (s *JobStore) SetTotal(id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Total = total
	return nil
}

// ReportGame advances the progress counters after one game finishes.
func (s *JobStore) ReportGame(id string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Completed++
	if succeeded {
		job.Succeeded++
	} else {
		job.Failed++
	}
	return nil
}

// Finish moves a job to its terminal status and releases the subject slot.
func (s *JobStore) Finish(id string, status domain.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.EndedAt = time.Now()
	job.Error = errMsg
	if cur, ok := s.active[job.Subject.Key()]; ok && cur == id {
		delete(s.active, job.Subject.Key())
	}
	return nil
}

// RunningCount reports jobs currently in the running state.
func (s *JobStore) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, job := range s.jobs {
		if job.Status == domain.JobRunning {
			n++
		}
	}
	return n
}

// SweepExpired drops terminal jobs older than retention, returning the ids
// that were removed so the owner can release per-job state.
func (s *JobStore) SweepExpired(retention time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	var removed []string
	for id, job := range s.jobs {
		if job.Status.Terminal() && !job.EndedAt.IsZero() && job.EndedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

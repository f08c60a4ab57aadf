package gamesource

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

// ErrNoGames means the source has nothing for the subject; the job completes
// with zero games rather than failing.
var ErrNoGames = errors.New("no games for subject")

// Source supplies already-parsed games for a subject, most recent first. The
// analysis core never parses raw game notation itself; importers populate a
// Source with GameMoveRecord lists.
type Source interface {
	FetchGames(ctx context.Context, subject domain.Subject, limit int) ([]domain.GameRecord, error)
}

// MemorySource is an in-process Source for development and tests.
type MemorySource struct {
	mu    sync.RWMutex
	games map[string][]domain.GameRecord
}

func NewMemorySource() *MemorySource {
	return &MemorySource{games: make(map[string][]domain.GameRecord)}
}

// Put registers games for a subject, replacing any previous set.
func (s *MemorySource) Put(subject domain.Subject, games []domain.GameRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[subject.Key()] = append([]domain.GameRecord(nil), games...)
}

func (s *MemorySource) FetchGames(ctx context.Context, subject domain.Subject, limit int) ([]domain.GameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.games[subject.Key()]
	if !ok || len(list) == 0 {
		return nil, ErrNoGames
	}

	out := append([]domain.GameRecord(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlayedAt.After(out[j].PlayedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

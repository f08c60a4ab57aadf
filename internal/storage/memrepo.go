package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

// memrepo is a development-only in-memory Repository used when no database is
// configured. Keys mirror the unique constraints of the SQL schema.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	resultsByKey  map[string]*domain.GameAnalysisResult // subject|ref|variant
	resultsByUser map[string][]*domain.GameAnalysisResult

	profiles      map[string]*domain.TraitProfile
	profileCounts map[string]int
}

func NewMemoryRepository() Repository {
	return &memrepo{
		resultsByKey:  make(map[string]*domain.GameAnalysisResult),
		resultsByUser: make(map[string][]*domain.GameAnalysisResult),
		profiles:      make(map[string]*domain.TraitProfile),
		profileCounts: make(map[string]int),
	}
}

func resultKey(subject domain.Subject, gameRef, variant string) string {
	return subject.Key() + "|" + gameRef + "|" + variant
}

func (m *memrepo) InsertGameResult(ctx context.Context, res *domain.GameAnalysisResult) (int64, error) {
	if res == nil {
		return 0, ErrAlreadyAnalyzed
	}

	key := resultKey(res.Subject, res.GameRef, res.Variant)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.resultsByKey[key]; exists {
		return 0, ErrAlreadyAnalyzed
	}

	m.nextID++
	stored := *res
	m.resultsByKey[key] = &stored
	m.resultsByUser[res.Subject.Key()] = append(m.resultsByUser[res.Subject.Key()], &stored)
	return m.nextID, nil
}

func (m *memrepo) GetGameResult(ctx context.Context, subject domain.Subject, gameRef, variant string) (*domain.GameAnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resultsByKey[resultKey(subject, gameRef, variant)]
	if !ok {
		return nil, nil
	}
	copied := *res
	return &copied, nil
}

func (m *memrepo) GetRecentResults(ctx context.Context, subject domain.Subject, limit int) ([]*domain.GameAnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.resultsByUser[subject.Key()]
	if len(list) == 0 {
		return []*domain.GameAnalysisResult{}, nil
	}
	items := append([]*domain.GameAnalysisResult(nil), list...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].AnalyzedAt.After(items[j].AnalyzedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.GameAnalysisResult, 0, len(items))
	for _, it := range items {
		copied := *it
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memrepo) UpsertTraitProfile(ctx context.Context, subject domain.Subject, profile domain.TraitProfile, gamesAnalyzed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := profile
	m.profiles[subject.Key()] = &stored
	m.profileCounts[subject.Key()] = gamesAnalyzed
	return nil
}

func (m *memrepo) GetTraitProfile(ctx context.Context, subject domain.Subject) (*domain.TraitProfile, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[subject.Key()]
	if !ok {
		return nil, 0, nil
	}
	copied := *profile
	return &copied, m.profileCounts[subject.Key()], nil
}

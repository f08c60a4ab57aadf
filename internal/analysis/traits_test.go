package analysis

import (
	"testing"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

func mkMove(ply int, uci string, label domain.MoveLabel, loss int, forcing bool) domain.ClassifiedMove {
	m := domain.ClassifiedMove{
		GameMoveRecord: domain.GameMoveRecord{Ply: ply, UCI: uci, Phase: domain.PhaseMiddlegame},
		CentipawnLoss:  loss,
		Label:          label,
		IsForcing:      forcing,
		IsQuiet:        !forcing,
	}
	if forcing {
		m.IsCapture = true
	}
	return m
}

func TestScoreGameSparseInputIsNeutral(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})

	if got := s.ScoreGame(nil); got != domain.NeutralProfile() {
		t.Fatalf("empty game should be neutral, got %+v", got)
	}

	few := []domain.ClassifiedMove{
		mkMove(0, "e2e4", domain.LabelBest, 0, false),
		mkMove(2, "g1f3", domain.LabelBest, 0, false),
	}
	if got := s.ScoreGame(few); got != domain.NeutralProfile() {
		t.Fatalf("below-minimum game should be neutral, got %+v", got)
	}
}

func TestScoreGameBounds(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})

	// All blunders, all captures: pushes several formulas to their extremes.
	var awful []domain.ClassifiedMove
	for i := 0; i < 30; i++ {
		m := mkMove(i*2, "d1h5", domain.LabelBlunder, 400, true)
		m.ForcingStreak = i + 1
		awful = append(awful, m)
	}
	if p := s.ScoreGame(awful); !p.InRange() {
		t.Fatalf("profile out of range: %+v", p)
	}

	// All best quiet moves.
	var clean []domain.ClassifiedMove
	for i := 0; i < 30; i++ {
		m := mkMove(i*2, "b1c3", domain.LabelBest, 0, false)
		m.QuietStreak = i + 1
		clean = append(clean, m)
	}
	if p := s.ScoreGame(clean); !p.InRange() {
		t.Fatalf("profile out of range: %+v", p)
	}
}

func TestAggressivePatientOpposition(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})

	var forcing, quiet []domain.ClassifiedMove
	uciPool := []string{"e4f5", "f3g5", "d4c5", "h2h4", "g2g4", "c2c4", "a2a4", "b2b4", "f2f4", "e2e4", "d2d3", "c1f4"}
	for i := 0; i < 12; i++ {
		f := mkMove(i*2, uciPool[i], domain.LabelGood, 30, true)
		f.ForcingStreak = i + 1
		f.GivesKingPressure = i%2 == 0
		forcing = append(forcing, f)

		q := mkMove(i*2, uciPool[i], domain.LabelGood, 30, false)
		q.QuietStreak = i + 1
		quiet = append(quiet, q)
	}

	aggro := s.ScoreGame(forcing)
	calm := s.ScoreGame(quiet)

	if aggro.Aggressive <= calm.Aggressive {
		t.Fatalf("forcing game should score more aggressive: %f vs %f", aggro.Aggressive, calm.Aggressive)
	}
	if aggro.Patient >= calm.Patient {
		t.Fatalf("forcing game should score less patient: %f vs %f", aggro.Patient, calm.Patient)
	}
	if aggro.Aggressive <= aggro.Patient {
		t.Fatalf("all-forcing game should lean aggressive: %+v", aggro)
	}
	if calm.Patient <= calm.Aggressive {
		t.Fatalf("all-quiet game should lean patient: %+v", calm)
	}
}

func TestTacticalRewardsAccuracyUnderForcing(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})

	var sharp, sloppy []domain.ClassifiedMove
	for i := 0; i < 20; i++ {
		m := mkMove(i*2, "e4d5", domain.LabelBest, 0, true)
		m.ForcingStreak = (i % 4) + 1
		sharp = append(sharp, m)

		b := mkMove(i*2, "e4d5", domain.LabelBlunder, 300, true)
		sloppy = append(sloppy, b)
	}

	if ps, pb := s.ScoreGame(sharp), s.ScoreGame(sloppy); ps.Tactical <= pb.Tactical {
		t.Fatalf("accurate tactics should outscore blundering tactics: %f vs %f", ps.Tactical, pb.Tactical)
	}
}

func TestScoreGameRepeatable(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})

	// A mixed game touching every signal: varied labels, streaks and targets.
	uciPool := []string{"e4d5", "g1f3", "d1h5", "b1c3", "f3g5", "c1f4"}
	labels := []domain.MoveLabel{domain.LabelBest, domain.LabelGood, domain.LabelGreat, domain.LabelMistake}
	moves := make([]domain.ClassifiedMove, 0, 24)
	for i := 0; i < 24; i++ {
		m := mkMove(i*2, uciPool[i%len(uciPool)], labels[i%len(labels)], (i*10)%120, i%3 == 0)
		m.ForcingStreak = i % 4
		m.QuietStreak = (i + 1) % 3
		m.GivesKingPressure = i%5 == 0
		moves = append(moves, m)
	}

	first := s.ScoreGame(moves)
	for run := 1; run < 5; run++ {
		if got := s.ScoreGame(moves); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", run, got, first)
		}
	}

	profiles := []domain.TraitProfile{first, domain.NeutralProfile(), first}
	meta := []GameMeta{{OpeningECO: "B20"}, {OpeningECO: "C50"}, {OpeningECO: "B20"}}
	agg := s.AggregateProfiles(profiles, meta)
	for run := 1; run < 5; run++ {
		if got := s.AggregateProfiles(profiles, meta); got != agg {
			t.Fatalf("aggregation run %d diverged: %+v vs %+v", run, got, agg)
		}
	}
}

func TestAggregateProfilesBlendsOpeningVariety(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})

	base := domain.NeutralProfile()
	profiles := []domain.TraitProfile{base, base, base, base}

	varied := s.AggregateProfiles(profiles, []GameMeta{
		{OpeningECO: "B20"}, {OpeningECO: "C50"}, {OpeningECO: "D35"}, {OpeningECO: "E60"},
	})
	repeated := s.AggregateProfiles(profiles, []GameMeta{
		{OpeningECO: "B20"}, {OpeningECO: "B20"}, {OpeningECO: "B20"}, {OpeningECO: "B20"},
	})

	if varied.Novelty <= repeated.Novelty {
		t.Fatalf("opening variety should raise novelty: %f vs %f", varied.Novelty, repeated.Novelty)
	}
	if varied.Staleness >= repeated.Staleness {
		t.Fatalf("opening variety should lower staleness: %f vs %f", varied.Staleness, repeated.Staleness)
	}
	if varied.Tactical != base.Tactical {
		t.Fatalf("aggregation must not disturb non-style dimensions: %f", varied.Tactical)
	}
}

func TestAggregateProfilesEmpty(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})
	if got := s.AggregateProfiles(nil, nil); got != domain.NeutralProfile() {
		t.Fatalf("empty aggregation should be neutral, got %+v", got)
	}
}

func TestAggregateProfilesNoOpeningData(t *testing.T) {
	s := NewTraitScorer(TraitConfig{})
	p := domain.TraitProfile{Tactical: 60, Positional: 55, Aggressive: 70, Patient: 30, Novelty: 65, Staleness: 35}
	got := s.AggregateProfiles([]domain.TraitProfile{p}, []GameMeta{{}})
	if got.Novelty != p.Novelty || got.Staleness != p.Staleness {
		t.Fatalf("without opening data move-level scores must stand: %+v", got)
	}
}

func TestSkillAdjustmentIsolated(t *testing.T) {
	moves := make([]domain.ClassifiedMove, 0, 20)
	for i := 0; i < 20; i++ {
		moves = append(moves, mkMove(i*2, "g1f3", domain.LabelGood, 30, false))
	}

	plain := NewTraitScorer(TraitConfig{}).ScoreGame(moves)
	adjusted := NewTraitScorer(TraitConfig{Skill: &SkillAdjustment{Rating: 2300}}).ScoreGame(moves)

	if adjusted.Tactical != clampScore(plain.Tactical+5) {
		t.Fatalf("expected +5 tactical shift, got %f vs %f", adjusted.Tactical, plain.Tactical)
	}
	if adjusted.Aggressive != plain.Aggressive || adjusted.Novelty != plain.Novelty {
		t.Fatalf("skill adjustment must not touch other dimensions")
	}
	if !adjusted.InRange() {
		t.Fatalf("adjusted profile out of range: %+v", adjusted)
	}
}

package analysis

import (
	"math"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

// Blend ratio between move-level and game-level signals when aggregating
// Novelty/Staleness across games. Empirically tuned; override via TraitConfig
// when recalibrating against labeled profiles.
const (
	DefaultMoveLevelBlend = 0.30
	DefaultGameLevelBlend = 0.70
)

// DefaultMinMoves is the minimum number of classified moves below which a game
// yields the neutral profile.
const DefaultMinMoves = 10

// TraitConfig tunes the scorer. Zero values select the defaults.
type TraitConfig struct {
	MinMoves       int
	MoveLevelBlend float64
	GameLevelBlend float64

	// Skill is an optional, isolated post-processing step; nil disables it
	// without touching the core formulas.
	Skill *SkillAdjustment
}

// SkillAdjustment shifts Tactical/Positional by a flat offset per rating band.
// Kept outside the core formulas so presentation layers can drop it wholesale.
type SkillAdjustment struct {
	Rating int
}

// TraitScorer computes six style scores from classified move sequences.
// Stateless; all methods are safe for concurrent use.
type TraitScorer struct {
	cfg TraitConfig
}

func NewTraitScorer(cfg TraitConfig) *TraitScorer {
	if cfg.MinMoves <= 0 {
		cfg.MinMoves = DefaultMinMoves
	}
	if cfg.MoveLevelBlend <= 0 && cfg.GameLevelBlend <= 0 {
		cfg.MoveLevelBlend = DefaultMoveLevelBlend
		cfg.GameLevelBlend = DefaultGameLevelBlend
	}
	return &TraitScorer{cfg: cfg}
}

// moveSignals are the normalized per-game inputs to the trait formulas. All
// ratios are in [0,1]; absent data stays zero so formulas remain total.
type moveSignals struct {
	n float64

	bestRatio    float64
	greatRatio   float64
	blunderRatio float64
	mistakeRatio float64
	inaccRatio   float64

	forcingRatio      float64
	quietRatio        float64
	kingPressureRatio float64

	quietAccuracy   float64 // [0,100]
	endgameAccuracy float64 // [0,100]
	hasEndgame      bool

	maxForcingStreak float64 // normalized to [0,1] against streakCap
	maxQuietStreak   float64

	diversity       float64 // [0,1] distinct destination+piece variety
	repetition      float64 // [0,1] re-moved pieces / revisited squares
	creativeRatio   float64 // accurate non-forcing non-book share
	timeConsistency float64 // [0,1]; 0 when no clock data
	hasClock        bool
}

const streakCap = 6.0

// ScoreGame computes the per-game profile. Fewer than MinMoves classified
// moves yields the neutral all-50 profile; every score is clamped to [0,100].
func (s *TraitScorer) ScoreGame(moves []domain.ClassifiedMove) domain.TraitProfile {
	if len(moves) < s.cfg.MinMoves {
		return domain.NeutralProfile()
	}
	sig := deriveSignals(moves)

	base := domain.NeutralTraitScore

	tactical := base +
		40*sig.bestRatio +
		20*sig.greatRatio +
		8*sig.maxForcingStreak -
		45*sig.blunderRatio -
		25*sig.mistakeRatio -
		10*sig.inaccRatio

	positional := base +
		0.45*(sig.quietAccuracy-70) +
		10*sig.maxQuietStreak -
		40*sig.blunderRatio -
		20*sig.mistakeRatio

	// Aggressive and Patient share the forcing/quiet signal with opposite
	// sign, keeping them approximate inverses.
	aggressive := base +
		80*(sig.forcingRatio-0.35) +
		25*sig.kingPressureRatio +
		10*sig.maxForcingStreak -
		10*sig.maxQuietStreak

	patient := base +
		80*(sig.quietRatio-0.65) +
		10*sig.maxQuietStreak -
		10*sig.maxForcingStreak
	if sig.hasEndgame {
		patient += 0.20 * (sig.endgameAccuracy - 70)
	}
	if sig.hasClock {
		patient += 10 * (sig.timeConsistency - 0.5)
	}

	// Novelty and Staleness share the diversity/repetition signals with
	// opposite sign.
	novelty := base +
		35*(sig.diversity-0.5) +
		25*sig.creativeRatio -
		30*sig.repetition

	staleness := base +
		40*sig.repetition +
		25*(0.5-sig.diversity) -
		20*sig.creativeRatio

	profile := domain.TraitProfile{
		Tactical:   clampScore(tactical),
		Positional: clampScore(positional),
		Aggressive: clampScore(aggressive),
		Patient:    clampScore(patient),
		Novelty:    clampScore(novelty),
		Staleness:  clampScore(staleness),
	}
	if s.cfg.Skill != nil {
		profile = s.cfg.Skill.apply(profile)
	}
	return profile
}

// GameMeta is the game-level context used by cross-game aggregation.
type GameMeta struct {
	OpeningECO string
}

// AggregateProfiles blends per-game profiles into a subject-level profile.
// Tactical, Positional, Aggressive and Patient average across games;
// Novelty/Staleness additionally blend in the game-level opening variety
// signal at the configured ratio. Empty input yields the neutral profile.
func (s *TraitScorer) AggregateProfiles(profiles []domain.TraitProfile, meta []GameMeta) domain.TraitProfile {
	if len(profiles) == 0 {
		return domain.NeutralProfile()
	}

	var sum domain.TraitProfile
	for _, p := range profiles {
		sum.Tactical += p.Tactical
		sum.Positional += p.Positional
		sum.Aggressive += p.Aggressive
		sum.Patient += p.Patient
		sum.Novelty += p.Novelty
		sum.Staleness += p.Staleness
	}
	n := float64(len(profiles))
	mean := domain.TraitProfile{
		Tactical:   sum.Tactical / n,
		Positional: sum.Positional / n,
		Aggressive: sum.Aggressive / n,
		Patient:    sum.Patient / n,
		Novelty:    sum.Novelty / n,
		Staleness:  sum.Staleness / n,
	}

	variety, ok := openingVariety(meta)
	if !ok {
		return mean
	}

	mb, gb := s.cfg.MoveLevelBlend, s.cfg.GameLevelBlend
	if mb+gb <= 0 {
		mb, gb = DefaultMoveLevelBlend, DefaultGameLevelBlend
	}
	total := mb + gb

	noveltyGame := variety * 100
	stalenessGame := (1 - variety) * 100
	mean.Novelty = clampScore((mb*mean.Novelty + gb*noveltyGame) / total)
	mean.Staleness = clampScore((mb*mean.Staleness + gb*stalenessGame) / total)
	return mean
}

// openingVariety is distinct openings over games, in [0,1]. ok is false when
// no game carries an opening code, leaving move-level scores untouched.
func openingVariety(meta []GameMeta) (float64, bool) {
	seen := make(map[string]struct{})
	counted := 0
	for _, m := range meta {
		if m.OpeningECO == "" {
			continue
		}
		seen[m.OpeningECO] = struct{}{}
		counted++
	}
	if counted == 0 {
		return 0, false
	}
	return float64(len(seen)) / float64(counted), true
}

func deriveSignals(moves []domain.ClassifiedMove) moveSignals {
	sig := moveSignals{n: float64(len(moves))}
	if len(moves) == 0 {
		return sig
	}

	var (
		best, great, blunder, mistake, inacc int
		forcing, quiet, pressure             int
		maxForcing, maxQuiet                 int
		quietAccSum                          float64
		endAccSum                            float64
		endN                                 int
		creative                             int
		destinations                         = map[string]struct{}{}
		pieces                               = map[string]struct{}{}
		squareVisits                         = map[string]int{}
		revisits                             int
		clockSum, clockSqSum                 float64
		clockN                               int
	)

	for _, m := range moves {
		switch m.Label {
		case domain.LabelBest:
			best++
		case domain.LabelGreat:
			great++
		case domain.LabelBlunder:
			blunder++
		case domain.LabelMistake:
			mistake++
		case domain.LabelInaccuracy:
			inacc++
		}

		if m.IsForcing {
			forcing++
		} else {
			quiet++
			quietAccSum += MoveAccuracy(m.CentipawnLoss)
		}
		if m.GivesKingPressure {
			pressure++
		}
		if m.ForcingStreak > maxForcing {
			maxForcing = m.ForcingStreak
		}
		if m.QuietStreak > maxQuiet {
			maxQuiet = m.QuietStreak
		}

		if m.Phase == domain.PhaseEndgame {
			endAccSum += MoveAccuracy(m.CentipawnLoss)
			endN++
		}

		if m.IsQuiet && m.Label != domain.LabelBook && m.CentipawnLoss <= GreatLossMax {
			creative++
		}

		if len(m.UCI) >= 4 {
			from, to := m.UCI[:2], m.UCI[2:4]
			destinations[to] = struct{}{}
			pieces[from] = struct{}{}
			squareVisits[to]++
			if squareVisits[to] > 1 {
				revisits++
			}
		}

		if m.TimeSpent > 0 {
			secs := m.TimeSpent.Seconds()
			clockSum += secs
			clockSqSum += secs * secs
			clockN++
		}
	}

	n := sig.n
	sig.bestRatio = float64(best) / n
	sig.greatRatio = float64(great) / n
	sig.blunderRatio = float64(blunder) / n
	sig.mistakeRatio = float64(mistake) / n
	sig.inaccRatio = float64(inacc) / n
	sig.forcingRatio = float64(forcing) / n
	sig.quietRatio = float64(quiet) / n
	sig.kingPressureRatio = float64(pressure) / n
	sig.maxForcingStreak = math.Min(float64(maxForcing), streakCap) / streakCap
	sig.maxQuietStreak = math.Min(float64(maxQuiet), streakCap) / streakCap

	if quiet > 0 {
		sig.quietAccuracy = quietAccSum / float64(quiet)
	} else {
		sig.quietAccuracy = 70 // neutral contribution when no quiet moves
	}
	if endN > 0 {
		sig.endgameAccuracy = endAccSum / float64(endN)
		sig.hasEndgame = true
	}

	sig.diversity = float64(len(destinations)+len(pieces)) / (2 * n)
	if sig.diversity > 1 {
		sig.diversity = 1
	}
	sig.repetition = float64(revisits) / n
	if sig.repetition > 1 {
		sig.repetition = 1
	}
	sig.creativeRatio = float64(creative) / n

	if clockN >= 2 {
		meanT := clockSum / float64(clockN)
		variance := clockSqSum/float64(clockN) - meanT*meanT
		if variance < 0 {
			variance = 0
		}
		if meanT > 0 {
			cv := math.Sqrt(variance) / meanT
			sig.timeConsistency = 1 / (1 + cv)
			sig.hasClock = true
		}
	}

	return sig
}

func (a *SkillAdjustment) apply(p domain.TraitProfile) domain.TraitProfile {
	var offset float64
	switch {
	case a.Rating >= 2200:
		offset = 5
	case a.Rating >= 1800:
		offset = 2
	case a.Rating > 0 && a.Rating < 1200:
		offset = -3
	}
	p.Tactical = clampScore(p.Tactical + offset)
	p.Positional = clampScore(p.Positional + offset)
	return p
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

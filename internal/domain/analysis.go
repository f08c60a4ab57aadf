package domain

import (
	"strings"
	"time"
)

// Subject identifies the player being profiled on a given platform.
type Subject struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
}

func (s Subject) Key() string {
	return strings.ToLower(strings.TrimSpace(s.Platform)) + ":" + strings.TrimSpace(s.UserID)
}

func (s Subject) Valid() bool {
	return strings.TrimSpace(s.UserID) != "" && strings.TrimSpace(s.Platform) != ""
}

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Phase marks the stage of the game a ply belongs to.
type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseMiddlegame Phase = "middlegame"
	PhaseEndgame    Phase = "endgame"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// AnalysisJob is one queued request to analyze a batch of games for a subject.
// Bookkeeping fields are owned by the queue's job store; workers report progress
// through the store, never by mutating a job directly.
type AnalysisJob struct {
	ID        string    `json:"id"`
	Subject   Subject   `json:"subject"`
	Limit     int       `json:"limit"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// GameMoveRecord is one ply of a game as consumed by the analysis core.
// Immutable once built from the external move list.
type GameMoveRecord struct {
	Ply       int           `json:"ply"`
	Side      Color         `json:"side"`
	UCI       string        `json:"uci"`
	SAN       string        `json:"san,omitempty"`
	FENAfter  string        `json:"fen_after,omitempty"`
	Phase     Phase         `json:"phase"`
	TimeSpent time.Duration `json:"time_spent,omitempty"`
}

// GameRecord is an already-parsed game handed to the core by a game source.
type GameRecord struct {
	Ref          string           `json:"ref"`
	SubjectColor Color            `json:"subject_color"`
	TimeControl  string           `json:"time_control,omitempty"`
	OpeningECO   string           `json:"opening_eco,omitempty"`
	Moves        []GameMoveRecord `json:"moves"`
	PlayedAt     time.Time        `json:"played_at,omitempty"`
}

// MoveEvaluation is the engine's verdict for one position, signed from the
// perspective of the side to move.
type MoveEvaluation struct {
	ScoreCP  int    `json:"score_cp"`
	BestMove string `json:"best_move"`
	Mate     bool   `json:"mate,omitempty"`
}

// MoveLabel is the quality bucket for one played move.
type MoveLabel string

const (
	LabelBest       MoveLabel = "best"
	LabelGreat      MoveLabel = "great"
	LabelExcellent  MoveLabel = "excellent"
	LabelGood       MoveLabel = "good"
	LabelBook       MoveLabel = "book"
	LabelInaccuracy MoveLabel = "inaccuracy"
	LabelMistake    MoveLabel = "mistake"
	LabelBlunder    MoveLabel = "blunder"
)

// ClassifiedMove is a GameMoveRecord plus derived per-move features.
type ClassifiedMove struct {
	GameMoveRecord

	CentipawnLoss int       `json:"centipawn_loss"`
	Label         MoveLabel `json:"label"`

	IsCapture         bool `json:"is_capture"`
	IsCheck           bool `json:"is_check"`
	IsForcing         bool `json:"is_forcing"`
	IsQuiet           bool `json:"is_quiet"`
	GivesKingPressure bool `json:"gives_king_pressure"`
	IsBrilliant       bool `json:"is_brilliant,omitempty"`

	ForcingStreak int `json:"forcing_streak"`
	QuietStreak   int `json:"quiet_streak"`

	// Degraded marks a move classified by the heuristic fallback because the
	// evaluator could not be reached in time.
	Degraded bool `json:"degraded,omitempty"`
}

// LabelCounts tallies moves per quality label.
type LabelCounts struct {
	Best       int `json:"best"`
	Great      int `json:"great"`
	Excellent  int `json:"excellent"`
	Good       int `json:"good"`
	Book       int `json:"book"`
	Inaccuracy int `json:"inaccuracy"`
	Mistake    int `json:"mistake"`
	Blunder    int `json:"blunder"`
}

func (c *LabelCounts) Add(label MoveLabel) {
	switch label {
	case LabelBest:
		c.Best++
	case LabelGreat:
		c.Great++
	case LabelExcellent:
		c.Excellent++
	case LabelGood:
		c.Good++
	case LabelBook:
		c.Book++
	case LabelInaccuracy:
		c.Inaccuracy++
	case LabelMistake:
		c.Mistake++
	case LabelBlunder:
		c.Blunder++
	}
}

// PhaseAccuracy is accuracy restricted to one game phase.
type PhaseAccuracy struct {
	Opening    float64 `json:"opening"`
	Middlegame float64 `json:"middlegame"`
	Endgame    float64 `json:"endgame"`
}

// GameAnalysisResult is the immutable per-game aggregate produced by one
// analysis worker run. Re-analysis supersedes, never mutates.
type GameAnalysisResult struct {
	Subject Subject `json:"subject"`
	GameRef string  `json:"game_ref"`
	Variant string  `json:"variant"`

	MoveCount     int           `json:"move_count"`
	Accuracy      float64       `json:"accuracy"`
	Labels        LabelCounts   `json:"labels"`
	ByPhase       PhaseAccuracy `json:"by_phase"`
	DegradedMoves int           `json:"degraded_moves"`

	Moves  []ClassifiedMove `json:"moves,omitempty"`
	Traits TraitProfile     `json:"traits"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Trait names the six style dimensions.
type Trait string

const (
	TraitTactical   Trait = "tactical"
	TraitPositional Trait = "positional"
	TraitAggressive Trait = "aggressive"
	TraitPatient    Trait = "patient"
	TraitNovelty    Trait = "novelty"
	TraitStaleness  Trait = "staleness"
)

// NeutralTraitScore is the score meaning "average"; sparse inputs degrade to it.
const NeutralTraitScore = 50.0

// TraitProfile is the six-dimensional style profile, each score in [0,100].
// Every score is always present.
type TraitProfile struct {
	Tactical   float64 `json:"tactical"`
	Positional float64 `json:"positional"`
	Aggressive float64 `json:"aggressive"`
	Patient    float64 `json:"patient"`
	Novelty    float64 `json:"novelty"`
	Staleness  float64 `json:"staleness"`
}

// NeutralProfile returns the all-50 default profile.
func NeutralProfile() TraitProfile {
	return TraitProfile{
		Tactical:   NeutralTraitScore,
		Positional: NeutralTraitScore,
		Aggressive: NeutralTraitScore,
		Patient:    NeutralTraitScore,
		Novelty:    NeutralTraitScore,
		Staleness:  NeutralTraitScore,
	}
}

// InRange reports whether every score is within [0,100].
func (p TraitProfile) InRange() bool {
	for _, v := range []float64{p.Tactical, p.Positional, p.Aggressive, p.Patient, p.Novelty, p.Staleness} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

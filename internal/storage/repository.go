package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

// ErrAlreadyAnalyzed marks an insert that collided with an existing row for
// the same (subject, game, variant). Benign: the stored result stands.
var ErrAlreadyAnalyzed = errors.New("game already analyzed")

// Repository persists per-game results and subject trait profiles.
type Repository interface {
	InsertGameResult(ctx context.Context, res *domain.GameAnalysisResult) (int64, error)
	GetGameResult(ctx context.Context, subject domain.Subject, gameRef, variant string) (*domain.GameAnalysisResult, error)
	GetRecentResults(ctx context.Context, subject domain.Subject, limit int) ([]*domain.GameAnalysisResult, error)
	UpsertTraitProfile(ctx context.Context, subject domain.Subject, profile domain.TraitProfile, gamesAnalyzed int) error
	GetTraitProfile(ctx context.Context, subject domain.Subject) (*domain.TraitProfile, int, error)
}

type repository struct {
	db *sql.DB
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertGameResult(ctx context.Context, res *domain.GameAnalysisResult) (int64, error) {
	if res == nil {
		return 0, fmt.Errorf("nil game analysis result")
	}

	labels, err := json.Marshal(res.Labels)
	if err != nil {
		return 0, fmt.Errorf("marshal labels: %w", err)
	}
	byPhase, err := json.Marshal(res.ByPhase)
	if err != nil {
		return 0, fmt.Errorf("marshal by_phase: %w", err)
	}
	traits, err := json.Marshal(res.Traits)
	if err != nil {
		return 0, fmt.Errorf("marshal traits: %w", err)
	}
	moves, err := json.Marshal(res.Moves)
	if err != nil {
		return 0, fmt.Errorf("marshal moves: %w", err)
	}

	const query = `
		INSERT INTO analysis_results (
			subject_user,
			subject_platform,
			game_ref,
			variant,
			move_count,
			accuracy,
			labels,
			by_phase,
			degraded_moves,
			traits,
			moves,
			analyzed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10::jsonb, $11::jsonb, $12)
		ON CONFLICT (subject_user, subject_platform, game_ref, variant) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		res.Subject.UserID,
		res.Subject.Platform,
		res.GameRef,
		res.Variant,
		res.MoveCount,
		res.Accuracy,
		labels,
		byPhase,
		res.DegradedMoves,
		traits,
		moves,
		res.AnalyzedAt,
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrAlreadyAnalyzed
	}
	if err != nil {
		return 0, fmt.Errorf("insert analysis result: %w", err)
	}
	return id.Int64, nil
}

const resultColumns = `
			subject_user,
			subject_platform,
			game_ref,
			variant,
			move_count,
			accuracy,
			labels,
			by_phase,
			degraded_moves,
			traits,
			moves,
			analyzed_at`

func scanResult(scan func(dest ...any) error) (*domain.GameAnalysisResult, error) {
	var (
		res         domain.GameAnalysisResult
		labelsJSON  []byte
		byPhaseJSON []byte
		traitsJSON  []byte
		movesJSON   []byte
	)
	if err := scan(
		&res.Subject.UserID,
		&res.Subject.Platform,
		&res.GameRef,
		&res.Variant,
		&res.MoveCount,
		&res.Accuracy,
		&labelsJSON,
		&byPhaseJSON,
		&res.DegradedMoves,
		&traitsJSON,
		&movesJSON,
		&res.AnalyzedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(labelsJSON, &res.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if err := json.Unmarshal(byPhaseJSON, &res.ByPhase); err != nil {
		return nil, fmt.Errorf("unmarshal by_phase: %w", err)
	}
	if err := json.Unmarshal(traitsJSON, &res.Traits); err != nil {
		return nil, fmt.Errorf("unmarshal traits: %w", err)
	}
	if len(movesJSON) > 0 {
		if err := json.Unmarshal(movesJSON, &res.Moves); err != nil {
			return nil, fmt.Errorf("unmarshal moves: %w", err)
		}
	}
	return &res, nil
}

func (r *repository) GetGameResult(ctx context.Context, subject domain.Subject, gameRef, variant string) (*domain.GameAnalysisResult, error) {
	query := `
		SELECT` + resultColumns + `
		FROM analysis_results
		WHERE subject_user = $1 AND subject_platform = $2 AND game_ref = $3 AND variant = $4`

	row := r.db.QueryRowContext(ctx, query, subject.UserID, subject.Platform, gameRef, variant)
	res, err := scanResult(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select analysis result: %w", err)
	}
	return res, nil
}

func (r *repository) GetRecentResults(ctx context.Context, subject domain.Subject, limit int) ([]*domain.GameAnalysisResult, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT` + resultColumns + `
		FROM analysis_results
		WHERE subject_user = $1 AND subject_platform = $2
		ORDER BY analyzed_at DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, subject.UserID, subject.Platform, limit)
	if err != nil {
		return nil, fmt.Errorf("select analysis results: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.GameAnalysisResult, 0, limit)
	for rows.Next() {
		res, err := scanResult(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan analysis result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *repository) UpsertTraitProfile(ctx context.Context, subject domain.Subject, profile domain.TraitProfile, gamesAnalyzed int) error {
	const query = `
		INSERT INTO trait_profiles (
			subject_user,
			subject_platform,
			tactical,
			positional,
			aggressive,
			patient,
			novelty,
			staleness,
			games_analyzed,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subject_user, subject_platform) DO UPDATE SET
			tactical = EXCLUDED.tactical,
			positional = EXCLUDED.positional,
			aggressive = EXCLUDED.aggressive,
			patient = EXCLUDED.patient,
			novelty = EXCLUDED.novelty,
			staleness = EXCLUDED.staleness,
			games_analyzed = EXCLUDED.games_analyzed,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(
		ctx,
		query,
		subject.UserID,
		subject.Platform,
		profile.Tactical,
		profile.Positional,
		profile.Aggressive,
		profile.Patient,
		profile.Novelty,
		profile.Staleness,
		gamesAnalyzed,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert trait profile: %w", err)
	}
	return nil
}

func (r *repository) GetTraitProfile(ctx context.Context, subject domain.Subject) (*domain.TraitProfile, int, error) {
	const query = `
		SELECT tactical, positional, aggressive, patient, novelty, staleness, games_analyzed
		FROM trait_profiles
		WHERE subject_user = $1 AND subject_platform = $2`

	var (
		profile domain.TraitProfile
		games   int
	)
	err := r.db.QueryRowContext(ctx, query, subject.UserID, subject.Platform).Scan(
		&profile.Tactical,
		&profile.Positional,
		&profile.Aggressive,
		&profile.Patient,
		&profile.Novelty,
		&profile.Staleness,
		&games,
	)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select trait profile: %w", err)
	}
	return &profile, games, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig carries every tunable of the analysis service. Values come from a
// YAML file (ANALYSIS_CONFIG path, optional) overridden by environment
// variables.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	StockfishPath string `yaml:"stockfish_path"`
	AnalysisTier  string `yaml:"analysis_tier"`

	// Queue tuning.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	JobTimeoutSec     int `yaml:"job_timeout_sec"`
	JobRetentionSec   int `yaml:"job_retention_sec"`
	DefaultGameLimit  int `yaml:"default_game_limit"`
	MaxGameLimit      int `yaml:"max_game_limit"`

	// Orchestrator tuning.
	WorkersPerJob    int `yaml:"workers_per_job"`
	ShutdownGraceSec int `yaml:"shutdown_grace_sec"`

	// Evaluator tuning.
	EvalBudgetMillis int `yaml:"eval_budget_millis"`

	// Classifier tuning.
	BookPlyLimit int    `yaml:"book_ply_limit"`
	Variant      string `yaml:"variant"`

	// Trait scorer tuning. SkillRating only applies when SkillAdjustment is on.
	SkillAdjustment bool `yaml:"skill_adjustment"`
	SkillRating     int  `yaml:"skill_rating"`

	// Game source. "lichess" fetches from the public export API, "memory"
	// serves only locally injected games.
	GameSource   string `yaml:"game_source"`
	LichessToken string `yaml:"lichess_token"`

	// Optional websocket endpoint receiving per-game progress frames.
	ProgressWSURL string `yaml:"progress_ws_url"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:        ":8090",
		AnalysisTier:      "balanced",
		MaxConcurrentJobs: 4,
		JobTimeoutSec:     900,
		JobRetentionSec:   3600,
		DefaultGameLimit:  10,
		MaxGameLimit:      50,
		WorkersPerJob:     4,
		ShutdownGraceSec:  10,
		EvalBudgetMillis:  1500,
		BookPlyLimit:      10,
		Variant:           "default",
		GameSource:        "lichess",
	}
}

// Load builds the config from the optional YAML file plus env overrides.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("ANALYSIS_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	setStr(&cfg.ListenAddr, "LISTEN_ADDR")
	setStr(&cfg.RedisURL, "REDIS_URL")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.StockfishPath, "STOCKFISH_PATH")
	setStr(&cfg.AnalysisTier, "ANALYSIS_TIER")

	setInt(&cfg.MaxConcurrentJobs, "MAX_CONCURRENT_JOBS")
	setInt(&cfg.JobTimeoutSec, "JOB_TIMEOUT_SEC")
	setInt(&cfg.JobRetentionSec, "JOB_RETENTION_SEC")
	setInt(&cfg.DefaultGameLimit, "DEFAULT_GAME_LIMIT")
	setInt(&cfg.MaxGameLimit, "MAX_GAME_LIMIT")
	setInt(&cfg.WorkersPerJob, "WORKERS_PER_JOB")
	setInt(&cfg.ShutdownGraceSec, "SHUTDOWN_GRACE_SEC")
	setInt(&cfg.EvalBudgetMillis, "EVAL_BUDGET_MILLIS")
	setInt(&cfg.BookPlyLimit, "BOOK_PLY_LIMIT")
	setStr(&cfg.Variant, "ANALYSIS_VARIANT")
	setStr(&cfg.GameSource, "GAME_SOURCE")
	setStr(&cfg.LichessToken, "LICHESS_TOKEN")
	setStr(&cfg.ProgressWSURL, "PROGRESS_WS_URL")

	if v := strings.TrimSpace(os.Getenv("SKILL_ADJUSTMENT")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SkillAdjustment = b
		}
	}
	setInt(&cfg.SkillRating, "SKILL_RATING")
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.StockfishPath) == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	if c.MaxConcurrentJobs <= 0 {
		return errors.New("max_concurrent_jobs must be positive")
	}
	if c.WorkersPerJob <= 0 {
		return errors.New("workers_per_job must be positive")
	}
	if c.DefaultGameLimit > c.MaxGameLimit {
		return fmt.Errorf("default_game_limit %d exceeds max_game_limit %d", c.DefaultGameLimit, c.MaxGameLimit)
	}
	switch c.GameSource {
	case "lichess", "memory":
	default:
		return fmt.Errorf("unknown game_source %q", c.GameSource)
	}
	return nil
}

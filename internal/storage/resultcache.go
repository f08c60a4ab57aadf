package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

// ErrCacheMiss marks a lookup for a key that is absent or expired.
var ErrCacheMiss = errors.New("analysis cache miss")

const (
	jobKeyPrefix    = "analysis:job:"
	resultKeyPrefix = "analysis:result:"

	defaultJobTTL    = 2 * time.Hour
	defaultResultTTL = 24 * time.Hour
)

// ResultCache keeps job and result snapshots in Redis so status polling does
// not touch the job store or the database.
type ResultCache struct {
	client    *redis.Client
	jobTTL    time.Duration
	resultTTL time.Duration
}

// NewResultCache connects using a redis:// URL and verifies the connection.
func NewResultCache(ctx context.Context, redisURL string) (*ResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewResultCacheWithClient(client), nil
}

// NewResultCacheWithClient wraps an existing client; tests inject miniredis here.
func NewResultCacheWithClient(client *redis.Client) *ResultCache {
	return &ResultCache{
		client:    client,
		jobTTL:    defaultJobTTL,
		resultTTL: defaultResultTTL,
	}
}

func (c *ResultCache) Close() error { return c.client.Close() }

func (c *ResultCache) CacheJob(ctx context.Context, job domain.AnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job snapshot: %w", err)
	}
	if err := c.client.Set(ctx, jobKeyPrefix+job.ID, payload, c.jobTTL).Err(); err != nil {
		return fmt.Errorf("cache job snapshot: %w", err)
	}
	return nil
}

func (c *ResultCache) GetJob(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	payload, err := c.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get job snapshot: %w", err)
	}
	var job domain.AnalysisJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job snapshot: %w", err)
	}
	return &job, nil
}

func (c *ResultCache) CacheGameResult(ctx context.Context, res *domain.GameAnalysisResult) error {
	if res == nil {
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result snapshot: %w", err)
	}
	key := resultCacheKey(res.Subject, res.GameRef, res.Variant)
	if err := c.client.Set(ctx, key, payload, c.resultTTL).Err(); err != nil {
		return fmt.Errorf("cache result snapshot: %w", err)
	}
	return nil
}

func (c *ResultCache) GetGameResult(ctx context.Context, subject domain.Subject, gameRef, variant string) (*domain.GameAnalysisResult, error) {
	payload, err := c.client.Get(ctx, resultCacheKey(subject, gameRef, variant)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get result snapshot: %w", err)
	}
	var res domain.GameAnalysisResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result snapshot: %w", err)
	}
	return &res, nil
}

func resultCacheKey(subject domain.Subject, gameRef, variant string) string {
	return resultKeyPrefix + subject.Key() + ":" + gameRef + ":" + variant
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"fixifox/internal/domain/entity"
	"fixifox/internal/infrastructure/metrics"
)

const keyPrefix = "fixifox:outcome:"

// ResultCache stores successful generation outcomes keyed by request
// fingerprint.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

type Config struct {
	URL      string
	Password string
	TTL      time.Duration
}

func NewResultCache(ctx context.Context, cfg Config) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ResultCache{rdb: rdb, ttl: cfg.TTL}, nil
}

func (c *ResultCache) Close() error {
	return c.rdb.Close()
}

// Get returns the cached outcome for key. A miss is (nil, false, nil).
func (c *ResultCache) Get(ctx context.Context, key string) (*entity.GenerationOutcome, bool, error) {
	val, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheLookup("miss")
		return nil, false, nil
	}
	if err != nil {
		metrics.IncCacheLookup("error")
		return nil, false, fmt.Errorf("get failed: %w", err)
	}

	var out entity.GenerationOutcome
	if err := json.Unmarshal(val, &out); err != nil {
		metrics.IncCacheLookup("error")
		return nil, false, fmt.Errorf("decode cached outcome: %w", err)
	}
	metrics.IncCacheLookup("hit")
	return &out, true, nil
}

// Set stores outcome. Failed outcomes are never cached.
func (c *ResultCache) Set(ctx context.Context, key string, outcome entity.GenerationOutcome) error {
	if !outcome.OK {
		return nil
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		metrics.IncError("redis_cache", "set")
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Fingerprint hashes everything that changes what a backend would be asked.
// Budgets and retry counts are left out.
func Fingerprint(req entity.GenerationRequest) string {
	var b strings.Builder
	b.WriteString(string(req.Shape))
	b.WriteByte(0)
	b.WriteString(strings.Join(req.Backends, ","))
	b.WriteByte(0)
	b.WriteString(req.System)
	b.WriteByte(0)
	b.WriteString(req.Prompt)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(req.MaxTokens))
	b.WriteByte(0)
	b.WriteString(strconv.FormatFloat(req.Sampling.Temperature, 'g', -1, 64))
	b.WriteByte(0)
	b.WriteString(strconv.FormatFloat(req.Sampling.TopP, 'g', -1, 64))
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

package resolver

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/storyline/models"
)

const aliasCacheKey = "storyline:alias_tables:v1"

// AliasSource loads the reference alias tables from durable storage.
type AliasSource interface {
	LocationAliases(ctx context.Context) (map[string][]models.LocationCandidate, error)
	PersonAliases(ctx context.Context) (map[string][]models.PersonCandidate, error)
}

// RefData serves alias-table snapshots to resolvers. It is constructed
// explicitly and injected rather than living as module state; the cache
// lifetime belongs to this value. A redis client is optional and shares the
// snapshot across instances.
type RefData struct {
	source AliasSource
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger

	mu       sync.Mutex
	cached   *AliasTables
	loadedAt time.Time
}

// NewRefData builds the reference-data service. redisClient may be nil, in
// which case only the in-process cache applies.
func NewRefData(source AliasSource, redisClient *redis.Client, ttl time.Duration, logger *log.Logger) *RefData {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REFDATA] ", log.LstdFlags)
	}
	return &RefData{source: source, redis: redisClient, ttl: ttl, logger: logger}
}

type aliasSnapshot struct {
	Locations map[string][]models.LocationCandidate `json:"locations"`
	Persons   map[string][]models.PersonCandidate   `json:"persons"`
}

// Tables returns the current alias tables, serving from cache while fresh.
func (r *RefData) Tables(ctx context.Context) (AliasTables, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && time.Since(r.loadedAt) < r.ttl {
		return *r.cached, nil
	}

	if tables, ok := r.fromRedis(ctx); ok {
		r.cached = &tables
		r.loadedAt = time.Now()
		return tables, nil
	}

	locations, err := r.source.LocationAliases(ctx)
	if err != nil {
		return AliasTables{}, err
	}
	persons, err := r.source.PersonAliases(ctx)
	if err != nil {
		return AliasTables{}, err
	}
	tables := AliasTables{Locations: locations, Persons: persons}
	r.toRedis(ctx, tables)
	r.cached = &tables
	r.loadedAt = time.Now()
	return tables, nil
}

// Invalidate drops the cached snapshot so the next Tables call reloads.
func (r *RefData) Invalidate(ctx context.Context) {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	if r.redis != nil {
		if err := r.redis.Del(ctx, aliasCacheKey).Err(); err != nil {
			r.logger.Printf("warn: redis invalidate failed: %v", err)
		}
	}
}

func (r *RefData) fromRedis(ctx context.Context) (AliasTables, bool) {
	if r.redis == nil {
		return AliasTables{}, false
	}
	raw, err := r.redis.Get(ctx, aliasCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Printf("warn: redis alias cache read failed: %v", err)
		}
		return AliasTables{}, false
	}
	var snap aliasSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		r.logger.Printf("warn: redis alias cache corrupt, reloading: %v", err)
		return AliasTables{}, false
	}
	return AliasTables{Locations: snap.Locations, Persons: snap.Persons}, true
}

func (r *RefData) toRedis(ctx context.Context, tables AliasTables) {
	if r.redis == nil {
		return
	}
	raw, err := json.Marshal(aliasSnapshot{Locations: tables.Locations, Persons: tables.Persons})
	if err != nil {
		r.logger.Printf("warn: alias cache encode failed: %v", err)
		return
	}
	if err := r.redis.Set(ctx, aliasCacheKey, raw, r.ttl).Err(); err != nil {
		r.logger.Printf("warn: redis alias cache write failed: %v", err)
	}
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/cache"
	"github.com/SAP-F-2025/exam-service/internal/utils"
)

// DefaultIdempotencyTTL bounds how long a stored submission outcome can be
// replayed before the key is treated as fresh again.
const DefaultIdempotencyTTL = 5 * time.Minute

// IdempotencyGuard deduplicates answer submissions. GetOrCreate either
// replays a previously stored outcome for the key or runs compute exactly
// once and stores its result.
type IdempotencyGuard interface {
	GetOrCreate(ctx context.Context, key string, compute func() (*AnswerOutcome, error)) (*AnswerOutcome, bool, error)
}

// SubmissionKey builds the deduplication key for one answer submission.
// Scoping by user and attempt keeps client-chosen keys from colliding
// across callers.
func SubmissionKey(userID string, attemptID, questionID uint, clientKey string) string {
	return fmt.Sprintf("%s:%d:%d:%s", userID, attemptID, questionID, clientKey)
}

// ===== IN-MEMORY GUARD =====

type memoryEntry struct {
	outcome   *AnswerOutcome
	expiresAt time.Time
}

// MemoryIdempotencyGuard keeps outcomes in process memory. Suitable for a
// single instance; deployments with several replicas should use the
// Redis-backed guard instead.
type MemoryIdempotencyGuard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryIdempotencyGuard(ttl time.Duration) *MemoryIdempotencyGuard {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryIdempotencyGuard{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (g *MemoryIdempotencyGuard) GetOrCreate(ctx context.Context, key string, compute func() (*AnswerOutcome, error)) (*AnswerOutcome, bool, error) {
	g.mu.Lock()
	g.sweepLocked()
	if entry, ok := g.entries[key]; ok {
		g.mu.Unlock()
		return entry.outcome, true, nil
	}
	g.mu.Unlock()

	outcome, err := compute()
	if err != nil {
		return nil, false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// A concurrent call may have stored first; the stored outcome wins so
	// every caller sees the same response.
	if entry, ok := g.entries[key]; ok && g.now().Before(entry.expiresAt) {
		return entry.outcome, true, nil
	}
	g.entries[key] = memoryEntry{outcome: outcome, expiresAt: g.now().Add(g.ttl)}
	return outcome, false, nil
}

// sweepLocked drops expired entries. Called with the mutex held.
func (g *MemoryIdempotencyGuard) sweepLocked() {
	now := g.now()
	for key, entry := range g.entries {
		if !now.Before(entry.expiresAt) {
			delete(g.entries, key)
		}
	}
}

// ===== REDIS-BACKED GUARD =====

// RedisIdempotencyGuard stores outcomes in Redis so replay works across
// instances. When Redis is unavailable it degrades to computing without
// deduplication rather than failing the submission.
type RedisIdempotencyGuard struct {
	helper *cache.CacheHelper
	ttl    time.Duration
	logger utils.Logger
}

func NewRedisIdempotencyGuard(helper *cache.CacheHelper, ttl time.Duration, logger utils.Logger) *RedisIdempotencyGuard {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisIdempotencyGuard{helper: helper, ttl: ttl, logger: logger}
}

func (g *RedisIdempotencyGuard) GetOrCreate(ctx context.Context, key string, compute func() (*AnswerOutcome, error)) (*AnswerOutcome, bool, error) {
	var stored AnswerOutcome
	err := g.helper.Get(ctx, key, &stored)
	if err == nil {
		return &stored, true, nil
	}
	if err != cache.ErrCacheNotFound && err != cache.ErrCacheNotAvailable {
		g.logger.Warn("idempotency lookup failed, computing without replay", "key", key, "error", err)
	}

	outcome, err := compute()
	if err != nil {
		return nil, false, err
	}

	created, setErr := g.helper.SetNX(ctx, key, outcome, g.ttl)
	if setErr != nil && setErr != cache.ErrCacheNotAvailable {
		g.logger.Warn("failed to store idempotency outcome", "key", key, "error", setErr)
		return outcome, false, nil
	}
	if setErr == nil && !created {
		// Lost the race; replay whoever stored first.
		var winner AnswerOutcome
		if getErr := g.helper.Get(ctx, key, &winner); getErr == nil {
			return &winner, true, nil
		}
	}
	return outcome, false, nil
}

package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

const (
	cacheKeyPrefix = "haven:resp:"
	frontCacheSize = 512
)

// ResponseCache stores generated results keyed by normalized input. The
// shared key-value store is the source of truth; a small in-process LRU
// front absorbs repeated reads of hot keys.
type ResponseCache struct {
	kv     ports.KeyValueStore
	front  *expirable.LRU[string, []byte]
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache creates a response cache with the given TTL.
func NewResponseCache(kv ports.KeyValueStore, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	frontTTL := ttl
	if frontTTL > time.Minute {
		frontTTL = time.Minute
	}
	return &ResponseCache{
		kv:     kv,
		front:  expirable.NewLRU[string, []byte](frontCacheSize, nil, frontTTL),
		ttl:    ttl,
		logger: logger,
	}
}

// Key derives the deterministic cache key for a request: the normalized
// text, the active source-id set, and the task focus. Frame content is
// deliberately excluded to maximize reuse across similar frames.
func (c *ResponseCache) Key(rawText, taskFocus string, sourceIDs []string) string {
	h := sha256.New()
	h.Write([]byte(normalizeText(rawText)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sourceIDs, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(taskFocus))))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))[:32]
}

// Get returns the cached result for key, if any. Store failures count as
// misses; caching is never allowed to fail a request.
func (c *ResponseCache) Get(ctx context.Context, key string) (*domain.Result, bool) {
	data, ok := c.front.Get(key)
	if !ok {
		var err error
		data, err = c.kv.Get(ctx, key)
		if errors.Is(err, ports.ErrNotFound) {
			return nil, false
		}
		if err != nil {
			c.logger.Warn("response cache read failed",
				slog.String("error", err.Error()))
			return nil, false
		}
		c.front.Add(key, data)
	}

	var res domain.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("response cache entry corrupt",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	return &res, true
}

// Put stores a result under key with the configured TTL, best effort.
func (c *ResponseCache) Put(ctx context.Context, key string, res *domain.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("response cache marshal failed",
			slog.String("error", err.Error()))
		return
	}
	c.front.Add(key, data)
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("response cache write failed",
			slog.String("error", err.Error()))
	}
}

// normalizeText lowercases, strips leading/trailing punctuation, and
// collapses runs of whitespace so trivially different phrasings share a key.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

package generator

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/recall/internal/platform/cache"
	"github.com/p-n-ai/recall/internal/srs"
)

// Store is the subset of the cache the generator needs.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachingGenerator remembers generated cards per document and question type.
// The cache is best effort: failures are logged and generation goes on.
type CachingGenerator struct {
	next  Generator
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingGenerator wraps next with store.
func NewCachingGenerator(next Generator, store Store, ttl time.Duration) *CachingGenerator {
	return &CachingGenerator{next: next, store: store, ttl: ttl, now: time.Now}
}

// CacheKey identifies a request by its content, not its file name.
func CacheKey(req Request) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(req.QuestionType))
	h.Write([]byte{0})
	h.Write(req.Document.Data)
	return "cards:" + hex.EncodeToString(h.Sum(nil))
}

func (g *CachingGenerator) Generate(ctx context.Context, req Request) ([]srs.Card, error) {
	key := CacheKey(req)

	var cached []srs.Card
	err := g.store.GetJSON(ctx, key, &cached)
	switch {
	case err == nil && len(cached) > 0:
		slog.Debug("generation cache hit", "key", key, "cards", len(cached))
		now := g.now()
		for i := range cached {
			cached[i].Schedule = srs.NewSchedule(now)
		}
		return cached, nil
	case err != nil && !errors.Is(err, cache.ErrMiss):
		slog.Warn("generation cache read failed", "key", key, "error", err)
	}

	cards, err := g.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := g.store.SetJSON(ctx, key, cards, g.ttl); err != nil {
		slog.Warn("generation cache write failed", "key", key, "error", err)
	}
	return cards, nil
}

// Package sampler picks the posts of the secondary homepage sections.
//
// A section shows leftCount small items and one big item drawn at random
// from its category. The draw is remembered per device and category so a
// visitor sees the same split on every render until the category changes
// or the selection is invalidated.
package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/bilgisen/altavoz/internal/cache"
	"github.com/bilgisen/altavoz/internal/metrics"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/rs/zerolog"
)

// ErrInvalidLeftCount is returned for a negative left count.
var ErrInvalidLeftCount = errors.New("left count must not be negative")

// prefixInvalidator is implemented by stores that can drop a key range.
type prefixInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type Sampler struct {
	store   cache.Store
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Sampler)

// WithSource makes the shuffles deterministic.
func WithSource(src rand.Source) Option {
	return func(s *Sampler) {
		s.rng = rand.New(src)
	}
}

func New(store cache.Store, m *metrics.Metrics, log zerolog.Logger, opts ...Option) *Sampler {
	s := &Sampler{store: store, metrics: m, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func scopePrefix(scope string) string {
	return "selection:" + scope + ":"
}

func selectionKey(scope, category string) string {
	return scopePrefix(scope) + strings.ToLower(strings.TrimSpace(category))
}

// SelectStable splits posts into leftCount small items and a big one,
// reusing the device's previous draw while it is still valid. A draw is
// valid when it holds at least leftCount+1 ids that are all still present.
// Cache failures are logged and never fail the selection.
func (s *Sampler) SelectStable(ctx context.Context, scope, category string, posts []models.Post, leftCount int) (*models.Selection, error) {
	if leftCount < 0 {
		return nil, ErrInvalidLeftCount
	}

	byID := make(map[string]models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}

	// A category with at most leftCount posts can never hold a valid draw.
	want := len(posts) + 1
	if leftCount < len(posts) {
		want = leftCount + 1
	}

	key := selectionKey(scope, category)
	ids, ok := s.cached(ctx, key, byID, want)
	if !ok {
		ids = s.draw(posts, want)
		s.metrics.RecordSamplerRegeneration()
		s.remember(ctx, key, ids)
	}

	selection := &models.Selection{Category: category, Left: make([]models.Post, 0, min(leftCount, len(ids)))}
	for i, id := range ids {
		if i < leftCount {
			selection.Left = append(selection.Left, byID[id])
			continue
		}
		big := byID[id]
		selection.Big = &big
		break
	}
	return selection, nil
}

// cached returns the first want ids of the stored draw when it is valid.
func (s *Sampler) cached(ctx context.Context, key string, present map[string]models.Post, want int) ([]string, bool) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("Selection cache unavailable")
		}
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding malformed selection")
		return nil, false
	}
	if len(ids) < want {
		return nil, false
	}
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			return nil, false
		}
	}
	return ids[:want], true
}

// draw shuffles the ids with Fisher-Yates and keeps the first n.
func (s *Sampler) draw(posts []models.Post, n int) []string {
	ids := models.PostIDs(posts)

	s.mu.Lock()
	for i := len(ids) - 1; i > 0; i-- {
		j := s.intN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
	s.mu.Unlock()

	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func (s *Sampler) intN(n int) int {
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (s *Sampler) remember(ctx context.Context, key string, ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to encode selection")
		return
	}
	if err := s.store.Set(ctx, key, string(data)); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to store selection")
	}
}

// Invalidate forgets the device's draw for one category.
func (s *Sampler) Invalidate(ctx context.Context, scope, category string) error {
	if err := s.store.Invalidate(ctx, selectionKey(scope, category)); err != nil {
		return fmt.Errorf("failed to invalidate selection: %w", err)
	}
	return nil
}

// InvalidateAll forgets every draw of the device. Stores that cannot drop a
// key range are left untouched.
func (s *Sampler) InvalidateAll(ctx context.Context, scope string) error {
	inv, ok := s.store.(prefixInvalidator)
	if !ok {
		return nil
	}
	if err := inv.InvalidatePrefix(ctx, scopePrefix(scope)); err != nil {
		return fmt.Errorf("failed to invalidate selections: %w", err)
	}
	return nil
}

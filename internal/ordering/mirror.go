package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/altavoz/internal/cache"
	"github.com/bilgisen/altavoz/internal/models"
)

// MirrorEntry is the last order applied on one device.
type MirrorEntry struct {
	PostIDs   []string  `json:"post_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mirror is the same-device copy of the last applied order of each slot.
type Mirror struct {
	store cache.Store
	now   func() time.Time
}

func NewMirror(store cache.Store) *Mirror {
	return &Mirror{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func mirrorKey(scope string, orderType models.OrderType) string {
	return "mirror:" + scope + ":" + string(orderType)
}

// Get returns the mirrored order, or nil when the device has none.
func (m *Mirror) Get(ctx context.Context, scope string, orderType models.OrderType) (*MirrorEntry, error) {
	raw, err := m.store.Get(ctx, mirrorKey(scope, orderType))
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry MirrorEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode mirror entry: %w", err)
	}
	return &entry, nil
}

func (m *Mirror) Set(ctx context.Context, scope string, orderType models.OrderType, ids []string) (*MirrorEntry, error) {
	entry := MirrorEntry{PostIDs: append([]string{}, ids...), UpdatedAt: m.now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mirror entry: %w", err)
	}
	if err := m.store.Set(ctx, mirrorKey(scope, orderType), string(data)); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *Mirror) Invalidate(ctx context.Context, scope string, orderType models.OrderType) error {
	return m.store.Invalidate(ctx, mirrorKey(scope, orderType))
}

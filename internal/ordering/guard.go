package ordering

import (
	"context"

	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/storage"
)

// GuardedStore is the write boundary of the order store: reads are open,
// every save requires an admin actor.
type GuardedStore struct {
	store storage.OrderStore
}

func NewGuardedStore(store storage.OrderStore) *GuardedStore {
	return &GuardedStore{store: store}
}

func (g *GuardedStore) Get(ctx context.Context, orderType models.OrderType) (*models.OrderRecord, error) {
	return g.store.GetOrder(ctx, orderType)
}

func (g *GuardedStore) Save(ctx context.Context, actor models.Actor, orderType models.OrderType, postIDs []string) (*models.OrderRecord, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotPrivileged
	}
	if _, err := models.ParseOrderType(string(orderType)); err != nil {
		return nil, err
	}
	return g.store.SaveOrder(ctx, orderType, dedupe(postIDs))
}

package ordering

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bilgisen/altavoz/internal/metrics"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Source tells where the order of a rendered slot came from.
type Source string

const (
	// SourceMirror is the admin's own device copy, newer than the store.
	SourceMirror Source = "mirror"
	// SourceCurated is the persisted order record.
	SourceCurated Source = "curated"
	// SourceChronological means no order has been saved for the slot yet.
	SourceChronological Source = "chronological"
	// SourceFallback means the order store could not be read.
	SourceFallback Source = "fallback"
)

// Slot is a rendered homepage slot.
type Slot struct {
	OrderType models.OrderType `json:"order_type"`
	Source    Source           `json:"source"`
	Posts     []models.Post    `json:"posts"`
}

// DropResult is the outcome of one drag interaction.
type DropResult struct {
	Emitted bool     `json:"emitted"`
	PostIDs []string `json:"post_ids"`
}

type Config struct {
	// PostsLimit caps the live post set of a slot.
	PostsLimit int
	// SaveTimeout bounds each background order save.
	SaveTimeout time.Duration
}

type slotState struct {
	// drag serializes interactions on the slot.
	drag sync.Mutex
	// save serializes writes to the store.
	save sync.Mutex
	// seq numbers issued writes; only the newest may reach the store.
	seq atomic.Uint64
}

// Service renders the main and side slots and applies reorderings.
type Service struct {
	posts   storage.PostRepository
	orders  *GuardedStore
	mirror  *Mirror
	metrics *metrics.Metrics
	log     zerolog.Logger
	cfg     Config

	slots map[models.OrderType]*slotState
	wg    sync.WaitGroup
}

func NewService(posts storage.PostRepository, orders storage.OrderStore, mirror *Mirror, m *metrics.Metrics, log zerolog.Logger, cfg Config) *Service {
	if cfg.PostsLimit <= 0 {
		cfg.PostsLimit = 20
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	return &Service{
		posts:   posts,
		orders:  NewGuardedStore(orders),
		mirror:  mirror,
		metrics: m,
		log:     log,
		cfg:     cfg,
		slots: map[models.OrderType]*slotState{
			models.OrderMain: {},
			models.OrderSide: {},
		},
	}
}

func (s *Service) slot(orderType models.OrderType) (*slotState, error) {
	st, ok := s.slots[orderType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderType, orderType)
	}
	return st, nil
}

// livePosts is the post set a slot is built from. The side slot shows the
// posts flagged for it, or all recent posts when none are flagged.
func (s *Service) livePosts(ctx context.Context, orderType models.OrderType, location string) ([]models.Post, error) {
	filter := models.PostFilter{Location: location, Limit: s.cfg.PostsLimit}

	if orderType == models.OrderSide {
		featured := filter
		featured.FeaturedSide = true
		posts, err := s.posts.ListPosts(ctx, featured)
		if err != nil {
			return nil, err
		}
		if len(posts) > 0 {
			return posts, nil
		}
	}
	return s.posts.ListPosts(ctx, filter)
}

// RenderSlot returns the posts of a slot in display order. A failing order
// store never fails the render: the live order is served instead. The
// device mirror is only consulted for admin actors.
func (s *Service) RenderSlot(ctx context.Context, actor models.Actor, scope string, orderType models.OrderType, location string) (*Slot, error) {
	if _, err := s.slot(orderType); err != nil {
		return nil, err
	}

	var (
		live     []models.Post
		record   *models.OrderRecord
		orderErr error
		entry    *MirrorEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := s.livePosts(gctx, orderType, location)
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}
		live = posts
		return nil
	})
	g.Go(func() error {
		record, orderErr = s.orders.Get(gctx, orderType)
		return nil
	})
	if actor.IsAdmin() {
		g.Go(func() error {
			e, err := s.mirror.Get(gctx, scope, orderType)
			if err != nil {
				s.log.Warn().Err(err).Str("order_type", string(orderType)).Str("device", scope).Msg("Mirror unavailable")
				return nil
			}
			entry = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if orderErr != nil {
		s.log.Warn().Err(orderErr).Str("order_type", string(orderType)).Msg("Order store unavailable, serving live order")
		s.metrics.RecordOrderFallback("error")
	}

	slot := &Slot{OrderType: orderType}
	switch {
	case entry != nil && (orderErr != nil || record == nil || entry.UpdatedAt.After(record.UpdatedAt)):
		slot.Source = SourceMirror
		slot.Posts = Reconcile(entry.PostIDs, live)
	case orderErr != nil:
		slot.Source = SourceFallback
		slot.Posts = live
	case record == nil:
		s.metrics.RecordOrderFallback("missing")
		slot.Source = SourceChronological
		slot.Posts = live
	default:
		slot.Source = SourceCurated
		slot.Posts = Reconcile(record.PostIDs, live)
	}
	if slot.Posts == nil {
		slot.Posts = []models.Post{}
	}
	return slot, nil
}

// GetOrder returns the persisted record, nil when none was saved.
func (s *Service) GetOrder(ctx context.Context, orderType models.OrderType) (*models.OrderRecord, error) {
	if _, err := s.slot(orderType); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, orderType)
}

// ApplyDrop runs one drag interaction over the slot as the admin currently
// sees it. A nil dest cancels. When the order changes the device mirror is
// updated before returning and the store is written in the background.
func (s *Service) ApplyDrop(ctx context.Context, actor models.Actor, scope string, orderType models.OrderType, source int, dest *int) (*DropResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotPrivileged
	}
	st, err := s.slot(orderType)
	if err != nil {
		return nil, err
	}

	st.drag.Lock()
	defer st.drag.Unlock()

	current, err := s.RenderSlot(ctx, actor, scope, orderType, "")
	if err != nil {
		return nil, err
	}
	ids := models.PostIDs(current.Posts)

	drag := NewDragController(actor, ids)
	if err := drag.Begin(source); err != nil {
		return nil, err
	}

	var (
		next    []string
		emitted bool
	)
	if dest == nil {
		err = drag.Cancel()
	} else {
		next, emitted, err = drag.Drop(*dest)
	}
	if err != nil {
		return nil, err
	}
	if !emitted {
		return &DropResult{Emitted: false, PostIDs: ids}, nil
	}

	if _, err := s.mirror.Set(ctx, scope, orderType, next); err != nil {
		s.log.Warn().Err(err).Str("order_type", string(orderType)).Str("device", scope).Msg("Failed to update mirror")
	}
	s.saveAsync(actor, scope, orderType, next)

	return &DropResult{Emitted: true, PostIDs: next}, nil
}

// SaveOrder replaces the whole sequence of a slot and waits for the store.
func (s *Service) SaveOrder(ctx context.Context, actor models.Actor, scope string, orderType models.OrderType, postIDs []string) (*models.OrderRecord, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotPrivileged
	}
	st, err := s.slot(orderType)
	if err != nil {
		return nil, err
	}

	st.drag.Lock()
	defer st.drag.Unlock()

	ids := dedupe(postIDs)
	record, err := s.persist(ctx, actor, st, orderType, ids, s.issue(st))
	if err != nil {
		return nil, err
	}

	if _, err := s.mirror.Set(ctx, scope, orderType, ids); err != nil {
		s.log.Warn().Err(err).Str("order_type", string(orderType)).Str("device", scope).Msg("Failed to update mirror")
	}
	return record, nil
}

func (s *Service) issue(st *slotState) uint64 {
	return st.seq.Add(1)
}

// persist writes ids unless a newer write was issued meanwhile, in which
// case it returns a nil record and no error.
func (s *Service) persist(ctx context.Context, actor models.Actor, st *slotState, orderType models.OrderType, ids []string, seq uint64) (*models.OrderRecord, error) {
	st.save.Lock()
	defer st.save.Unlock()

	if seq < st.seq.Load() {
		return nil, nil
	}
	return s.orders.Save(ctx, actor, orderType, ids)
}

func (s *Service) saveAsync(actor models.Actor, scope string, orderType models.OrderType, ids []string) {
	st := s.slots[orderType]
	seq := s.issue(st)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
		defer cancel()

		record, err := s.persist(ctx, actor, st, orderType, ids, seq)
		if err == nil {
			if record == nil {
				s.log.Debug().Str("order_type", string(orderType)).Uint64("seq", seq).Msg("Order save superseded")
			}
			return
		}

		s.metrics.RecordOrderSaveFailure()
		s.log.Error().Err(err).Str("order_type", string(orderType)).Str("actor", actor.ID).Msg("Failed to save order")

		// The device reverts to the stored order on its next render.
		if seq != st.seq.Load() {
			return
		}
		ictx, icancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer icancel()
		if err := s.mirror.Invalidate(ictx, scope, orderType); err != nil {
			s.log.Warn().Err(err).Str("order_type", string(orderType)).Str("device", scope).Msg("Failed to invalidate mirror")
		}
	}()
}

// Wait blocks until every background save has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

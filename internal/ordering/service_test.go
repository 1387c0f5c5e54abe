package ordering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bilgisen/altavoz/internal/cache"
	"github.com/bilgisen/altavoz/internal/metrics"
	"github.com/bilgisen/altavoz/internal/models"
	"github.com/bilgisen/altavoz/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrders is an OrderStore whose reads and writes can be made to fail.
type fakeOrders struct {
	mu      sync.Mutex
	records map[models.OrderType]models.OrderRecord
	getErr  error
	saveErr error
	saves   [][]string
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{records: make(map[models.OrderType]models.OrderRecord)}
}

func (f *fakeOrders) GetOrder(ctx context.Context, orderType models.OrderType) (*models.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[orderType]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeOrders) SaveOrder(ctx context.Context, orderType models.OrderType, postIDs []string) (*models.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saves = append(f.saves, append([]string(nil), postIDs...))
	r := models.OrderRecord{ID: "rec-" + string(orderType), OrderType: orderType, PostIDs: postIDs, UpdatedAt: time.Now().UTC()}
	f.records[orderType] = r
	return &r, nil
}

func (f *fakeOrders) put(orderType models.OrderType, ids []string, updated time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[orderType] = models.OrderRecord{ID: "rec-" + string(orderType), OrderType: orderType, PostIDs: ids, UpdatedAt: updated}
}

func (f *fakeOrders) failReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeOrders) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeOrders) saveLog() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.saves...)
}

type fixture struct {
	svc     *Service
	orders  *fakeOrders
	posts   *storage.Memory
	mirror  *Mirror
	metrics *metrics.Metrics
}

// newFixture seeds posts so that they are listed in the given order.
func newFixture(t *testing.T, live ...models.Post) *fixture {
	t.Helper()

	mem, err := storage.NewMemory("")
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range live {
		p.CreatedAt = base.Add(-time.Duration(i) * time.Minute)
		_, err := mem.CreatePost(context.Background(), &p)
		require.NoError(t, err)
	}

	orders := newFakeOrders()
	mirror := NewMirror(cache.NewMemoryStore())
	m := metrics.New()
	svc := NewService(mem, orders, mirror, m, zerolog.Nop(), Config{PostsLimit: 20, SaveTimeout: time.Second})

	return &fixture{svc: svc, orders: orders, posts: mem, mirror: mirror, metrics: m}
}

func TestRenderSlotAppliesCuratedOrder(t *testing.T) {
	f := newFixture(t, posts("p1", "p2", "p3")...)
	f.orders.put(models.OrderMain, []string{"p3", "p1"}, time.Now())

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderMain, "")
	require.NoError(t, err)

	assert.Equal(t, SourceCurated, slot.Source)
	assert.Equal(t, []string{"p3", "p1", "p2"}, models.PostIDs(slot.Posts))
}

func TestRenderSlotFallsBackWhenStoreFails(t *testing.T) {
	f := newFixture(t, posts("p1", "p2", "p3")...)
	f.orders.put(models.OrderSide, []string{"p3"}, time.Now())
	f.orders.failReads(errors.New("connection refused"))

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderSide, "")
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, slot.Source)
	assert.Equal(t, []string{"p1", "p2", "p3"}, models.PostIDs(slot.Posts))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderFetchFallbacks.WithLabelValues("error")))
}

func TestRenderSlotWithoutRecordIsChronological(t *testing.T) {
	f := newFixture(t, posts("p1", "p2")...)

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderMain, "")
	require.NoError(t, err)

	assert.Equal(t, SourceChronological, slot.Source)
	assert.Equal(t, []string{"p1", "p2"}, models.PostIDs(slot.Posts))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderFetchFallbacks.WithLabelValues("missing")))
}

func TestRenderSlotEmpty(t *testing.T) {
	f := newFixture(t)

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderMain, "")
	require.NoError(t, err)
	assert.NotNil(t, slot.Posts)
	assert.Empty(t, slot.Posts)
}

func TestRenderSlotRejectsUnknownOrderType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderType("footer"), "")
	assert.ErrorIs(t, err, ErrInvalidOrderType)
}

func TestSideSlotPrefersFeaturedPosts(t *testing.T) {
	live := posts("p1", "p2", "p3")
	live[1].IsFeaturedSide = true
	live[2].IsFeaturedSide = true
	f := newFixture(t, live...)

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderSide, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3"}, models.PostIDs(slot.Posts))

	main, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, models.PostIDs(main.Posts))
}

func TestSideSlotWithoutFeaturedUsesRecentPosts(t *testing.T) {
	f := newFixture(t, posts("p1", "p2")...)

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderSide, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, models.PostIDs(slot.Posts))
}

func TestRenderSlotFiltersByLocation(t *testing.T) {
	live := posts("p1", "p2", "p3")
	live[0].Location = "La Paz"
	live[2].Location = "la paz"
	f := newFixture(t, live...)
	f.orders.put(models.OrderMain, []string{"p3", "p2", "p1"}, time.Now())

	slot, err := f.svc.RenderSlot(context.Background(), models.Anonymous, "shared", models.OrderMain, "LA PAZ")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p1"}, models.PostIDs(slot.Posts))
}

func TestApplyDropPersistsInBackground(t *testing.T) {
	f := newFixture(t, posts("a", "b", "c", "d")...)
	ctx := context.Background()

	dest := 2
	result, err := f.svc.ApplyDrop(ctx, admin, "dev1", models.OrderMain, 0, &dest)
	require.NoError(t, err)
	assert.True(t, result.Emitted)
	assert.Equal(t, []string{"b", "c", "a", "d"}, result.PostIDs)

	entry, err := f.mirror.Get(ctx, "dev1", models.OrderMain)
	require.NoError(t, err)
	require.NotNil(t, entry, "mirror is updated before the drop returns")
	assert.Equal(t, result.PostIDs, entry.PostIDs)

	f.svc.Wait()
	assert.Equal(t, [][]string{{"b", "c", "a", "d"}}, f.orders.saveLog())

	// everyone sees the saved order once it lands
	slot, err := f.svc.RenderSlot(ctx, models.Anonymous, "other", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, SourceCurated, slot.Source)
	assert.Equal(t, []string{"b", "c", "a", "d"}, models.PostIDs(slot.Posts))
}

func TestConsecutiveDropsBuildOnEachOther(t *testing.T) {
	f := newFixture(t, posts("a", "b", "c")...)
	ctx := context.Background()

	dest := 0
	_, err := f.svc.ApplyDrop(ctx, admin, "dev1", models.OrderMain, 2, &dest)
	require.NoError(t, err)
	dest = 2
	result, err := f.svc.ApplyDrop(ctx, admin, "dev1", models.OrderMain, 1, &dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, result.PostIDs)

	f.svc.Wait()
	record, err := f.svc.GetOrder(ctx, models.OrderMain)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, record.PostIDs, "the newest drop wins")
}

func TestApplyDropNoopDoesNotWrite(t *testing.T) {
	f := newFixture(t, posts("a", "b", "c")...)
	ctx := context.Background()

	same := 1
	result, err := f.svc.ApplyDrop(ctx, admin, "dev1", models.OrderMain, 1, &same)
	require.NoError(t, err)
	assert.False(t, result.Emitted)
	assert.Equal(t, []string{"a", "b", "c"}, result.PostIDs)

	result, err = f.svc.ApplyDrop(ctx, admin, "dev1", models.OrderMain, 0, nil)
	require.NoError(t, err)
	assert.False(t, result.Emitted)

	f.svc.Wait()
	assert.Empty(t, f.orders.saveLog())

	entry, err := f.mirror.Get(ctx, "dev1", models.OrderMain)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestApplyDropRejectsNonAdmin(t *testing.T) {
	f := newFixture(t, posts("a", "b")...)

	dest := 1
	_, err := f.svc.ApplyDrop(context.Background(), editor, "dev1", models.OrderMain, 0, &dest)
	assert.ErrorIs(t, err, ErrNotPrivileged)

	_, err = f.svc.SaveOrder(context.Background(), models.Anonymous, "dev1", models.OrderMain, []string{"b", "a"})
	assert.ErrorIs(t, err, ErrNotPrivileged)

	f.svc.Wait()
	assert.Empty(t, f.orders.saveLog())
}

func TestApplyDropSourceOutOfRange(t *testing.T) {
	f := newFixture(t, posts("a")...)

	dest := 0
	_, err := f.svc.ApplyDrop(context.Background(), admin, "dev1", models.OrderMain, 3, &dest)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestFailedBackgroundSaveIsObservable(t *testing.T) {
	f := newFixture(t, posts("a", "b", "c")...)
	f.orders.failWrites(errors.New("store unavailable"))
	ctx := context.Background()

	dest := 2
	result, err := f.svc.ApplyDrop(ctx, admin, "dev1", models.OrderMain, 0, &dest)
	require.NoError(t, err, "save failures never reach the caller")
	assert.True(t, result.Emitted)

	f.svc.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderSaveFailures))

	// the next render reverts to what the store holds
	slot, err := f.svc.RenderSlot(ctx, admin, "dev1", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, SourceChronological, slot.Source)
	assert.Equal(t, []string{"a", "b", "c"}, models.PostIDs(slot.Posts))
}

func TestAdminSeesPendingMirror(t *testing.T) {
	f := newFixture(t, posts("a", "b", "c")...)
	ctx := context.Background()

	f.orders.put(models.OrderMain, []string{"a", "b", "c"}, time.Now().Add(-time.Hour))
	_, err := f.mirror.Set(ctx, "dev1", models.OrderMain, []string{"c", "a"})
	require.NoError(t, err)

	slot, err := f.svc.RenderSlot(ctx, admin, "dev1", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, SourceMirror, slot.Source)
	assert.Equal(t, []string{"c", "a", "b"}, models.PostIDs(slot.Posts))

	visitor, err := f.svc.RenderSlot(ctx, models.Anonymous, "dev1", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, SourceCurated, visitor.Source, "visitors never see a device mirror")

	other, err := f.svc.RenderSlot(ctx, admin, "dev2", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, SourceCurated, other.Source)

	// a store record newer than the mirror wins
	f.orders.put(models.OrderMain, []string{"b"}, time.Now().Add(time.Hour))
	slot, err = f.svc.RenderSlot(ctx, admin, "dev1", models.OrderMain, "")
	require.NoError(t, err)
	assert.Equal(t, SourceCurated, slot.Source)
	assert.Equal(t, []string{"b", "a", "c"}, models.PostIDs(slot.Posts))
}

func TestSaveOrderReplacesSequence(t *testing.T) {
	f := newFixture(t, posts("a", "b", "c")...)
	ctx := context.Background()

	record, err := f.svc.SaveOrder(ctx, admin, "dev1", models.OrderSide, []string{"c", "a", "c", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, record.PostIDs)

	record, err = f.svc.SaveOrder(ctx, admin, "dev1", models.OrderSide, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, record.PostIDs)

	_, err = f.svc.SaveOrder(ctx, admin, "dev1", models.OrderType("top"), []string{"b"})
	assert.ErrorIs(t, err, ErrInvalidOrderType)
}

func TestGuardedStore(t *testing.T) {
	orders := newFakeOrders()
	guard := NewGuardedStore(orders)
	ctx := context.Background()

	_, err := guard.Save(ctx, editor, models.OrderMain, []string{"a"})
	assert.ErrorIs(t, err, ErrNotPrivileged)

	_, err = guard.Save(ctx, admin, models.OrderType("x"), []string{"a"})
	assert.ErrorIs(t, err, ErrInvalidOrderType)

	record, err := guard.Save(ctx, admin, models.OrderMain, []string{"a", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, record.PostIDs)

	got, err := guard.Get(ctx, models.OrderMain)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.PostIDs)
}

func TestMirrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	mirror := NewMirror(cache.NewMemoryStore())

	entry, err := mirror.Get(ctx, "dev", models.OrderMain)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = mirror.Set(ctx, "dev", models.OrderMain, []string{"b", "a"})
	require.NoError(t, err)

	entry, err = mirror.Get(ctx, "dev", models.OrderMain)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []string{"b", "a"}, entry.PostIDs)

	side, err := mirror.Get(ctx, "dev", models.OrderSide)
	require.NoError(t, err)
	assert.Nil(t, side, "slots are mirrored independently")

	require.NoError(t, mirror.Invalidate(ctx, "dev", models.OrderMain))
	entry, err = mirror.Get(ctx, "dev", models.OrderMain)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	casErr   error
	loseNext int
	swaps    int
}

func newMemStore(users ...models.User) *memStore {
	store := &memStore{users: map[uuid.UUID]models.User{}}
	for _, u := range users {
		if u.Cart.Items == nil {
			u.Cart = types.EmptyCart()
		}
		store.users[u.ID] = u
	}
	return store
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	user.Cart = user.Cart.Clone()
	return &user, nil
}

func (m *memStore) CompareAndSwapCart(_ context.Context, id uuid.UUID, cart types.Cart, expected int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casErr != nil {
		return false, m.casErr
	}
	if m.loseNext > 0 {
		m.loseNext--
		return false, nil
	}
	user, ok := m.users[id]
	if !ok || user.CartVersion != expected {
		return false, nil
	}
	user.Cart = cart.Clone()
	user.CartVersion++
	m.users[id] = user
	m.swaps++
	return true, nil
}

func (m *memStore) cart(id uuid.UUID) types.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Cart.Clone()
}

type memCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]models.Product
	err      error
}

func newMemCatalog(products ...models.Product) *memCatalog {
	cat := &memCatalog{products: map[uuid.UUID]models.Product{}}
	for _, p := range products {
		cat.products[p.ID] = p
	}
	return cat
}

func (c *memCatalog) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *memCatalog) remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

type countingRecorder struct {
	mu    sync.Mutex
	count int
}

func (r *countingRecorder) IncCartConflict() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func product(title, price string) models.Product {
	return models.Product{ID: uuid.New(), Title: title, Price: decimal.RequireFromString(price)}
}

func newTestService(t *testing.T, store *memStore, cat *memCatalog, retries int, opts ...Option) Service {
	t.Helper()
	svc, err := NewService(store, cat, retries, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, newMemCatalog(), 3); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewService(newMemStore(), nil, 3); err == nil {
		t.Fatal("expected error without product resolver")
	}
}

func TestAddToCartTwiceIncrementsQuantity(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New(), Email: "u@example.com"}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a), 3)

	ctx := context.Background()
	if _, err := svc.AddToCart(ctx, user.ID, a.ID); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddToCart(ctx, user.ID, a.ID)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("expected single line with quantity 2, got %+v", cart.Items)
	}
	if stored := store.cart(user.ID); stored.QuantityOf(a.ID) != 2 {
		t.Fatalf("stored quantity = %d, want 2", stored.QuantityOf(a.ID))
	}
}

func TestAddToCartUnknownProduct(t *testing.T) {
	t.Parallel()

	user := models.User{ID: uuid.New()}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(), 3)

	_, err := svc.AddToCart(context.Background(), user.ID, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.swaps != 0 {
		t.Fatalf("cart should not be written")
	}
}

func TestAddToCartUnknownUser(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	svc := newTestService(t, newMemStore(), newMemCatalog(a), 3)

	_, err := svc.AddToCart(context.Background(), uuid.New(), a.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveFromCart(t *testing.T) {
	t.Parallel()

	a, b := product("A", "10"), product("B", "5")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID).Add(a.ID).Add(b.ID)}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a, b), 3)

	cart, err := svc.RemoveFromCart(context.Background(), user.ID, a.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if cart.Contains(a.ID) || cart.QuantityOf(b.ID) != 1 {
		t.Fatalf("unexpected cart after remove: %+v", cart.Items)
	}
}

func TestRemoveFromCartAbsentIsNoop(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID)}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a), 3)

	cart, err := svc.RemoveFromCart(context.Background(), user.ID, uuid.New())
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if cart.QuantityOf(a.ID) != 1 {
		t.Fatalf("cart changed: %+v", cart.Items)
	}
	if store.swaps != 0 {
		t.Fatalf("expected no write, got %d", store.swaps)
	}
}

func TestClearCart(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID).Add(a.ID)}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a), 3)

	if err := svc.ClearCart(context.Background(), user.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !store.cart(user.ID).IsEmpty() {
		t.Fatalf("expected empty cart")
	}
}

func TestRemovePurchasedKeepsNewerLines(t *testing.T) {
	t.Parallel()

	a, b := product("A", "10"), product("B", "5")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID).Add(a.ID).Add(b.ID)}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a, b), 3)

	purchased := types.EmptyCart().Add(a.ID).Add(a.ID)
	if err := svc.RemovePurchased(context.Background(), user.ID, purchased); err != nil {
		t.Fatalf("remove purchased: %v", err)
	}
	stored := store.cart(user.ID)
	if stored.Contains(a.ID) || stored.QuantityOf(b.ID) != 1 {
		t.Fatalf("unexpected cart: %+v", stored.Items)
	}
}

func TestReconcileDropsOrphans(t *testing.T) {
	t.Parallel()

	a, b := product("A", "10"), product("B", "5")
	user := models.User{ID: uuid.New(), Email: "u@example.com", Cart: types.EmptyCart().Add(a.ID).Add(a.ID).Add(b.ID)}
	store := newMemStore(user)
	cat := newMemCatalog(a, b)
	svc := newTestService(t, store, cat, 3)

	cat.remove(b.ID)

	res, err := svc.Reconcile(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.Orphans) != 1 || res.Orphans[0] != b.ID {
		t.Fatalf("expected orphan %s, got %v", b.ID, res.Orphans)
	}
	if len(res.Lines) != 1 || res.Lines[0].Product.ID != a.ID {
		t.Fatalf("unexpected lines: %+v", res.Lines)
	}
	if !res.Total.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("total = %s, want 20", res.Total)
	}
	if res.Email != "u@example.com" {
		t.Fatalf("email = %q", res.Email)
	}
	if store.cart(user.ID).Contains(b.ID) {
		t.Fatalf("orphan should be removed from storage")
	}
	if res.Version != 1 {
		t.Fatalf("version = %d, want 1", res.Version)
	}
}

func TestReconcileWithoutOrphansDoesNotWrite(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID)}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a), 3)

	if _, err := svc.Reconcile(context.Background(), user.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if store.swaps != 0 {
		t.Fatalf("expected no writes, got %d", store.swaps)
	}
}

func TestReconcileStorageFailure(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID)}
	cat := newMemCatalog(a)
	cat.err = errors.New("db down")
	svc := newTestService(t, newMemStore(user), cat, 3)

	_, err := svc.Reconcile(context.Background(), user.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestViewShapesLines(t *testing.T) {
	t.Parallel()

	a, b := product("A", "10"), product("B", "5")
	user := models.User{ID: uuid.New(), Cart: types.EmptyCart().Add(a.ID).Add(a.ID).Add(b.ID)}
	svc := newTestService(t, newMemStore(user), newMemCatalog(a, b), 3)

	view, err := svc.View(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(view.Items) != 2 || view.TotalQuantity != 3 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Items[0].Product.Title != "A" || !view.Items[0].Subtotal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected first line: %+v", view.Items[0])
	}
	if !view.Total.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("total = %s, want 25", view.Total)
	}
}

func TestMutateRetriesLostRace(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New()}
	store := newMemStore(user)
	store.loseNext = 2
	rec := &countingRecorder{}
	svc := newTestService(t, store, newMemCatalog(a), 3, WithConflictRecorder(rec))

	if _, err := svc.AddToCart(context.Background(), user.ID, a.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.count != 2 {
		t.Fatalf("conflicts = %d, want 2", rec.count)
	}
	if store.cart(user.ID).QuantityOf(a.ID) != 1 {
		t.Fatalf("expected quantity 1")
	}
}

func TestMutateExhaustsRetries(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New()}
	store := newMemStore(user)
	store.loseNext = 10
	svc := newTestService(t, store, newMemCatalog(a), 2)

	_, err := svc.AddToCart(context.Background(), user.ID, a.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMutateStorageError(t *testing.T) {
	t.Parallel()

	a := product("A", "10")
	user := models.User{ID: uuid.New()}
	store := newMemStore(user)
	store.casErr = errors.New("write failed")
	svc := newTestService(t, store, newMemCatalog(a), 3)

	_, err := svc.AddToCart(context.Background(), user.ID, a.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestConcurrentAddsNeverLoseIncrements(t *testing.T) {
	t.Parallel()

	const writers = 10
	a := product("A", "10")
	user := models.User{ID: uuid.New()}
	store := newMemStore(user)
	svc := newTestService(t, store, newMemCatalog(a), writers)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddToCart(context.Background(), user.ID, a.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add: %v", err)
	}

	if got := store.cart(user.ID).QuantityOf(a.ID); got != writers {
		t.Fatalf("quantity = %d, want %d", got, writers)
	}
}

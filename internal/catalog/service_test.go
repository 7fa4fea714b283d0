package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/polkart/storefront-api/internal/catalog"
)

type fakeStore struct {
	products map[int64]catalog.Product
	listed   int
}

func (f *fakeStore) List(_ context.Context) ([]catalog.Product, error) {
	f.listed++
	out := make([]catalog.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) Upsert(_ context.Context, p catalog.Product) error {
	if f.products == nil {
		f.products = map[int64]catalog.Product{}
	}
	f.products[p.ID] = p
	return nil
}

func (f *fakeStore) DecrementStock(_ context.Context, id int64, qty int) error {
	p, ok := f.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.Stock -= qty
	if p.Stock < 0 {
		p.Stock = 0
	}
	f.products[id] = p
	return nil
}

func newTestCache(t *testing.T) *catalog.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return catalog.NewCache(client, time.Minute)
}

func TestServiceListUsesCache(t *testing.T) {
	store := &fakeStore{products: map[int64]catalog.Product{
		1: {ID: 1, Name: "Kubek", Price: 4900},
	}}
	svc := &catalog.Service{Store: store, Cache: newTestCache(t)}

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.listed, "second read should hit the cache")
}

func TestServiceResolveMissingProduct(t *testing.T) {
	store := &fakeStore{products: map[int64]catalog.Product{1: {ID: 1, Price: 100}}}
	svc := &catalog.Service{Store: store, Cache: catalog.NewCache(nil, 0)}

	resolved, err := svc.Resolve(context.Background(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, int64(1), resolved[1].ID)

	_, err = svc.Resolve(context.Background(), []int64{1, 99})
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestServiceSeedFromFile(t *testing.T) {
	seed := `{"products":[
		{"id":1,"name":"Kubek","description":"Ceramiczny","price":49.00,"image":"/img/kubek.png","stock":25},
		{"id":2,"name":"Torba","description":"Bawelniana","price":119.99,"image":"/img/torba.png"}
	]}`
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	store := &fakeStore{}
	svc := &catalog.Service{Store: store, Cache: catalog.NewCache(nil, 0)}
	count, err := svc.SeedFromFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, int64(4900), int64(store.products[1].Price))
	require.Equal(t, int64(11999), int64(store.products[2].Price))
	require.Equal(t, 25, store.products[1].Stock)
	require.Equal(t, 0, store.products[2].Stock)
}

func TestServiceDecrementStockInvalidatesCache(t *testing.T) {
	store := &fakeStore{products: map[int64]catalog.Product{
		1: {ID: 1, Name: "Kubek", Price: 4900, Stock: 3},
	}}
	svc := &catalog.Service{Store: store, Cache: newTestCache(t)}

	// Warm the list cache.
	_, err := svc.List(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.DecrementStock(context.Background(), 1, 2))
	require.Equal(t, 1, store.products[1].Stock)

	// Over-decrement clamps at zero.
	require.NoError(t, svc.DecrementStock(context.Background(), 1, 5))
	require.Equal(t, 0, store.products[1].Stock)

	// A fresh list read comes from the store, not the stale cache.
	listed := store.listed
	after, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, listed+1, store.listed)
	require.Equal(t, 0, after[0].Stock)
}

func TestProductsHandler(t *testing.T) {
	store := &fakeStore{products: map[int64]catalog.Product{
		1: {ID: 1, Name: "Kubek", Price: 4900},
	}}
	handler := &catalog.Handler{Svc: &catalog.Service{Store: store, Cache: catalog.NewCache(nil, 0)}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.Products(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []catalog.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "Kubek", resp.Data[0].Name)
}

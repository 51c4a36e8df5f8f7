package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/walletshop/internal/store"
)

func TestSearchServiceCachesResults(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Query().Get("page"))
		mu.Unlock()

		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "amazon", r.URL.Query().Get("engine"))
		assert.Equal(t, "headphones", r.URL.Query().Get("k"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))

		results := []map[string]any{
			{"title": "Sony WH-1000XM4", "link": "https://www.amazon.com/dp/B0863TXGM3", "price": map[string]any{"raw": "$278.00"}},
			{"title": "", "link": "https://www.amazon.com/dp/B000000000"},
			{"title": "Bose QC45", "link_clean": "https://www.amazon.com/dp/B098FKXT8L", "extracted_price": 229},
			{"title": "Anker Q30", "link": "https://www.amazon.com/dp/B08HMWZBXC"},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"organic_results": results})
	}))
	defer srv.Close()

	cache := NewProductCache(store.NewMemoryStore())
	service := NewSearchService(srv.URL, "key", 0, 5, cache)

	products, err := service.Search(context.Background(), 42, "  headphones ")
	require.NoError(t, err)

	require.Len(t, products, 5)
	assert.Equal(t, "Sony WH-1000XM4", products[0].Title)
	assert.Equal(t, "$278.00", products[0].Price)
	assert.Equal(t, "$229.00", products[1].Price)
	assert.Equal(t, "https://www.amazon.com/dp/B098FKXT8L", products[1].ExternalURL)
	assert.Equal(t, "N/A", products[2].Price)
	assert.Equal(t, []string{"1", "2"}, pages)

	product, ok := cache.GetByIndex(context.Background(), 42, 2)
	require.True(t, ok)
	assert.Equal(t, "Anker Q30", product.Title)

	entry, ok := cache.Get(context.Background(), 42)
	require.True(t, ok)
	assert.Equal(t, "headphones", entry.Query)
}

func TestSearchServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	cache := NewProductCache(store.NewMemoryStore())
	service := NewSearchService(srv.URL, "", 60, 5, cache)

	_, err := service.Search(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = service.Search(context.Background(), 1, "mouse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	_, ok := cache.Get(context.Background(), 1)
	assert.False(t, ok)
}

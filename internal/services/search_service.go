package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/example/walletshop/internal/metrics"
	"github.com/example/walletshop/internal/models"
)

const (
	defaultSearchBaseURL = "https://serpapi.com"
	defaultSearchLimit   = 5
	maxSearchPages       = 3
)

// ErrEmptyQuery is returned for blank search input.
var ErrEmptyQuery = errors.New("search query is empty")

type searchPrice struct {
	Raw   string          `json:"raw"`
	Value decimal.Decimal `json:"value"`
}

type searchResult struct {
	Title          string          `json:"title"`
	Link           string          `json:"link"`
	LinkClean      string          `json:"link_clean"`
	Thumbnail      string          `json:"thumbnail"`
	Price          *searchPrice    `json:"price"`
	ExtractedPrice decimal.Decimal `json:"extracted_price"`
	Description    string          `json:"description"`
}

type searchResponse struct {
	OrganicResults []searchResult `json:"organic_results"`
	Error          string         `json:"error"`
}

// SearchService queries the product search provider and caches results per user.
type SearchService struct {
	baseURL    string
	apiKey     string
	limit      int
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *ProductCache
}

// NewSearchService creates a SearchService allowing ratePerMinute provider calls.
func NewSearchService(baseURL, apiKey string, ratePerMinute, limit int, cache *ProductCache) *SearchService {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultSearchBaseURL
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return &SearchService{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		limit:      limit,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		cache:      cache,
	}
}

// Search returns up to the configured number of products for query and
// stores them as the user's selectable result set.
func (s *SearchService) Search(ctx context.Context, userID int64, query string) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	products := make([]models.Product, 0, s.limit)
	for page := 1; page <= maxSearchPages && len(products) < s.limit; page++ {
		results, err := s.fetchPage(ctx, query, page)
		if err != nil {
			metrics.Search("error")
			return nil, err
		}
		if len(results) == 0 {
			break
		}
		for _, r := range results {
			if product, ok := toProduct(r); ok {
				products = append(products, product)
				if len(products) == s.limit {
					break
				}
			}
		}
	}

	if len(products) == 0 {
		metrics.Search("empty")
	} else {
		metrics.Search("ok")
	}
	log.Printf("[Search] user %d query %q: %d products", userID, query, len(products))

	if err := s.cache.Store(ctx, userID, products, query); err != nil {
		return nil, fmt.Errorf("cache search results: %w", err)
	}
	return products, nil
}

func (s *SearchService) fetchPage(ctx context.Context, query string, page int) ([]searchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for search rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("engine", "amazon")
	params.Set("k", query)
	params.Set("page", strconv.Itoa(page))
	if s.apiKey != "" {
		params.Set("api_key", s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("search provider error: %s", parsed.Error)
	}
	return parsed.OrganicResults, nil
}

func toProduct(r searchResult) (models.Product, bool) {
	link := r.LinkClean
	if link == "" {
		link = r.Link
	}
	if strings.TrimSpace(r.Title) == "" || link == "" {
		return models.Product{}, false
	}
	return models.Product{
		Title:       strings.TrimSpace(r.Title),
		Price:       formatSearchPrice(r),
		ExternalURL: link,
		ImageURL:    r.Thumbnail,
		Description: r.Description,
	}, true
}

func formatSearchPrice(r searchResult) string {
	if r.Price != nil && r.Price.Raw != "" {
		return r.Price.Raw
	}
	value := r.ExtractedPrice
	if r.Price != nil && !r.Price.Value.IsZero() {
		value = r.Price.Value
	}
	if value.IsZero() {
		return "N/A"
	}
	return "$" + value.StringFixed(2)
}

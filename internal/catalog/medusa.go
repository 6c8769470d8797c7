package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	publishableKeyHeader = "x-publishable-api-key"
	defaultPageLimit     = 100
	maxPages             = 50
)

// ErrNotConfigured is returned when no publishable key is set.
var ErrNotConfigured = errors.New("medusa publishable api key not configured")

// UpstreamError is a non-2xx answer from the store API.
type UpstreamError struct {
	Path       string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("medusa %s returned %d", e.Path, e.StatusCode)
}

// IsNotFound reports a 404 from the store API.
func IsNotFound(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound
}

type MedusaOptions struct {
	BaseURL        string
	PublishableKey string
	Timeout        time.Duration
	PageLimit      int
	HTTPClient     *http.Client
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// BreakerFailures consecutive failures open the breaker.
	BreakerFailures uint32
	Logger          *logger.Logger
}

func MedusaOptionsFromConfig(cfg config.CatalogConfig, logg *logger.Logger) MedusaOptions {
	return MedusaOptions{
		BaseURL:        cfg.BaseURL,
		PublishableKey: cfg.PublishableKey,
		Timeout:        cfg.Timeout,
		PageLimit:      cfg.PageLimit,
		Logger:         logg,
	}
}

// MedusaClient reads regions and products from the Medusa store API. All
// calls share one circuit breaker.
type MedusaClient struct {
	baseURL   string
	key       string
	pageLimit int
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
}

func NewMedusaClient(opts MedusaOptions) (*MedusaClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("medusa base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid medusa base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := opts.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openFor := opts.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	logg := opts.Logger

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "medusa",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logg == nil {
				return
			}
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "circuit breaker state changed")
		},
	})

	return &MedusaClient{
		baseURL:   base,
		key:       strings.TrimSpace(opts.PublishableKey),
		pageLimit: limit,
		http:      httpClient,
		breaker:   breaker,
	}, nil
}

type Region struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
}

type regionsResponse struct {
	Regions []Region `json:"regions"`
}

type productResponse struct {
	Product medusaProduct `json:"product"`
}

type productsResponse struct {
	Products []medusaProduct `json:"products"`
	Count    int             `json:"count"`
	Offset   int             `json:"offset"`
	Limit    int             `json:"limit"`
}

// DefaultRegion returns the first region, or nil when none is configured.
func (c *MedusaClient) DefaultRegion(ctx context.Context) (*Region, error) {
	body, err := c.get(ctx, "/store/regions", nil)
	if err != nil {
		return nil, err
	}
	var resp regionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	if len(resp.Regions) == 0 {
		return nil, nil
	}
	return &resp.Regions[0], nil
}

// ListProducts pages through /store/products. regionID may be empty.
func (c *MedusaClient) ListProducts(ctx context.Context, regionID string) ([]medusaProduct, error) {
	var out []medusaProduct
	offset := 0
	for page := 0; page < maxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.pageLimit))
		query.Set("offset", strconv.Itoa(offset))
		if regionID != "" {
			query.Set("region_id", regionID)
		}
		body, err := c.get(ctx, "/store/products", query)
		if err != nil {
			return nil, err
		}
		var resp productsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode products: %w", err)
		}
		out = append(out, resp.Products...)
		offset += len(resp.Products)
		if len(resp.Products) == 0 || offset >= resp.Count {
			break
		}
	}
	return out, nil
}

// ProductByHandle returns nil when no product carries the handle.
func (c *MedusaClient) ProductByHandle(ctx context.Context, regionID, handle string) (*medusaProduct, error) {
	query := url.Values{}
	query.Set("handle", handle)
	query.Set("limit", "1")
	if regionID != "" {
		query.Set("region_id", regionID)
	}
	body, err := c.get(ctx, "/store/products", query)
	if err != nil {
		return nil, err
	}
	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for i := range resp.Products {
		if resp.Products[i].Handle == handle {
			return &resp.Products[i], nil
		}
	}
	return nil, nil
}

// ProductByID returns nil when the store API does not know the id.
func (c *MedusaClient) ProductByID(ctx context.Context, regionID, id string) (*medusaProduct, error) {
	query := url.Values{}
	if regionID != "" {
		query.Set("region_id", regionID)
	}
	body, err := c.get(ctx, "/store/products/"+url.PathEscape(id), query)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	if resp.Product.ID == "" {
		return nil, nil
	}
	return &resp.Product, nil
}

func (c *MedusaClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.key == "" {
		return nil, ErrNotConfigured
	}
	return c.breaker.Execute(func() ([]byte, error) {
		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(publishableKeyHeader, c.key)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("medusa %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, &UpstreamError{Path: path, StatusCode: resp.StatusCode}
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("read medusa %s: %w", path, err)
		}
		return body, nil
	})
}

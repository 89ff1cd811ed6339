package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const catalogQuery = `query GetProduct($productId: ID!) {
  product(id: $productId) {
    id
    title
    price {
      price
      formattedPrice
    }
  }
}`

// CatalogAPIOptions parameterise the structured catalog API strategy.
type CatalogAPIOptions struct {
	EndpointURL    string
	ProductBaseURL string
	Timeout        time.Duration
	UserAgent      string
}

// CatalogAPI queries the marketplace GraphQL entrypoint for product data.
type CatalogAPI struct {
	opts   CatalogAPIOptions
	client *http.Client
	logger zerolog.Logger
}

// NewCatalogAPI constructs the structured-API strategy.
func NewCatalogAPI(opts CatalogAPIOptions, logger zerolog.Logger) *CatalogAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.EndpointURL == "" {
		opts.EndpointURL = "https://www.ozon.ru/api/entrypoint-api.bx/graphql"
	}
	if opts.ProductBaseURL == "" {
		opts.ProductBaseURL = "https://www.ozon.ru"
	}
	return &CatalogAPI{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "catalog_strategy").Logger(),
	}
}

// Name implements Strategy.
func (c *CatalogAPI) Name() string { return "catalog-api" }

type catalogRequest struct {
	Query         string            `json:"query"`
	Variables     map[string]string `json:"variables"`
	OperationName string            `json:"operationName"`
}

type catalogResponse struct {
	Data struct {
		Product *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Price *struct {
				Price          json.RawMessage `json:"price"`
				FormattedPrice string          `json:"formattedPrice"`
			} `json:"price"`
		} `json:"product"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Extract issues one typed query for the product id.
func (c *CatalogAPI) Extract(ctx context.Context, productID, productURL string) (Result, error) {
	payload := catalogRequest{
		Query:         catalogQuery,
		Variables:     map[string]string{"productId": productID},
		OperationName: "GetProduct",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal query: %v", ErrParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", c.opts.ProductBaseURL)
	req.Header.Set("Referer", productURL)
	req.Header.Set("x-o3-app-name", "website")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, fmt.Errorf("%w: http %d", ErrBlocked, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: http %d", ErrNetwork, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var parsed catalogResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrParse, err)
	}
	if len(parsed.Errors) > 0 {
		return Result{}, fmt.Errorf("%w: graphql: %s", ErrParse, parsed.Errors[0].Message)
	}

	product := parsed.Data.Product
	if product == nil || product.Title == "" {
		return Result{}, fmt.Errorf("%w: empty product payload", ErrParse)
	}

	result := Result{
		ProductID: productID,
		URL:       productURL,
		Name:      capName(product.Title),
		Available: true,
		Source:    c.Name(),
	}

	if product.Price != nil {
		if p, ok := ParsePrice(strings.Trim(string(product.Price.Price), `"`)); ok {
			result.Price = &p
		} else if p, ok := FirstPriceToken(product.Price.FormattedPrice); ok {
			result.Price = &p
		}
	}

	return result, nil
}

var _ Strategy = (*CatalogAPI)(nil)

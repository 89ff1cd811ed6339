package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Fallback scan over the serialised body: a numeric token right after a
// "price" label, wherever the composer response buried it.
var composerPricePattern = regexp.MustCompile(`"price":\s*["']?(\d+(?:[.,]\d+)?)`)

// ComposerAPIOptions parameterise the composer fallback strategy.
type ComposerAPIOptions struct {
	EndpointURL    string
	ProductBaseURL string
	Timeout        time.Duration
	UserAgent      string
}

// ComposerAPI calls the mobile composer endpoint. Its response shape is looser
// than the catalog API, so price extraction degrades to a body scan when the
// typed field is absent.
type ComposerAPI struct {
	opts   ComposerAPIOptions
	client *http.Client
	logger zerolog.Logger
}

// NewComposerAPI constructs the secondary-API strategy.
func NewComposerAPI(opts ComposerAPIOptions, logger zerolog.Logger) *ComposerAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.EndpointURL == "" {
		opts.EndpointURL = "https://api.ozon.ru/composer-api.bx/_action/productDetailV2"
	}
	if opts.ProductBaseURL == "" {
		opts.ProductBaseURL = "https://www.ozon.ru"
	}
	return &ComposerAPI{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "composer_strategy").Logger(),
	}
}

// Name implements Strategy.
func (c *ComposerAPI) Name() string { return "composer-api" }

type composerRequest struct {
	ProductID      string   `json:"productId"`
	ClientFeatures []string `json:"clientFeatures"`
	Layout         string   `json:"layout"`
}

type composerResponse struct {
	Product *composerProduct `json:"product"`
}

type composerProduct struct {
	Title string         `json:"title"`
	Name  string         `json:"name"`
	Price *composerPrice `json:"price"`
}

type composerPrice struct {
	Price json.RawMessage `json:"price"`
	Value json.RawMessage `json:"value"`
}

// Extract issues one composer request for the product id.
func (c *ComposerAPI) Extract(ctx context.Context, productID, productURL string) (Result, error) {
	payload := composerRequest{
		ProductID:      productID,
		ClientFeatures: []string{"webp"},
		Layout:         "SINGLE_PRODUCT",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal payload: %v", ErrParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", c.opts.ProductBaseURL)
	req.Header.Set("Referer", productURL)
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

	var parsed composerResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrParse, err)
	}

	product := parsed.Product
	if product == nil {
		return Result{}, fmt.Errorf("%w: empty product payload", ErrParse)
	}

	name := product.Title
	if name == "" {
		name = product.Name
	}
	if name == "" {
		return Result{}, fmt.Errorf("%w: product without a title", ErrParse)
	}

	result := Result{
		ProductID: productID,
		URL:       productURL,
		Name:      capName(name),
		Available: true,
		Source:    c.Name(),
	}

	result.Price = product.Price.amount()
	if !result.HasPrice() {
		result.Price = scanBodyPrice(raw)
	}

	return result, nil
}

func (p *composerPrice) amount() *decimal.Decimal {
	if p == nil {
		return nil
	}
	for _, field := range []json.RawMessage{p.Price, p.Value} {
		if price, ok := ParsePrice(strings.Trim(string(field), `"`)); ok {
			return &price
		}
	}
	return nil
}

func scanBodyPrice(raw []byte) *decimal.Decimal {
	match := composerPricePattern.FindSubmatch(raw)
	if match == nil {
		return nil
	}
	if price, ok := ParsePrice(string(match[1])); ok {
		return &price
	}
	return nil
}

var _ Strategy = (*ComposerAPI)(nil)

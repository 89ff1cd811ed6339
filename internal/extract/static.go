package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var htmlPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"price":\s*["']?(\d+(?:[.,]\d+)?)`),
	regexp.MustCompile(`"finalPrice":\s*(\d+(?:[.,]\d+)?)`),
	regexp.MustCompile(`data-price=["']?(\d+(?:[.,]\d+)?)`),
	regexp.MustCompile(`(?i)<meta[^>]*property="product:price:amount"[^>]*content="([^"]+)"`),
}

// Markers Ozon serves on its anti-automation interstitial.
var blockedMarkers = []string{
	"antibot",
	"access denied",
	"доступ ограничен",
}

// StaticPageOptions parameterise the static-document strategy.
type StaticPageOptions struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
}

// StaticPage extracts product data from the raw product page markup: JSON-LD
// structured data when present, heading/meta fallbacks otherwise.
type StaticPage struct {
	opts   StaticPageOptions
	client *http.Client
	logger zerolog.Logger
}

// NewStaticPage constructs the static-document strategy.
func NewStaticPage(opts StaticPageOptions, logger zerolog.Logger) *StaticPage {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StaticPage{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "static_strategy").Logger(),
	}
}

// Name implements Strategy.
func (s *StaticPage) Name() string { return "static-page" }

// Extract fetches the product page and parses it. A name without a price is a
// valid partial result, not a failure.
func (s *StaticPage) Extract(ctx context.Context, productID, productURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, productURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
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

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: parse html: %v", ErrParse, err)
	}

	if marker := findBlockedMarker(doc); marker != "" {
		return Result{}, fmt.Errorf("%w: page marker %q", ErrBlocked, marker)
	}

	result := Result{
		ProductID: productID,
		URL:       productURL,
		Available: true,
		Source:    s.Name(),
	}

	if name, price, ok := extractJSONLD(doc); ok {
		result.Name = capName(name)
		result.Price = price
		if result.HasPrice() {
			return result, nil
		}
	}

	if result.Name == "" {
		result.Name = capName(extractNameFallback(doc))
	}
	if result.Name == "" {
		return Result{}, fmt.Errorf("%w: no product name in markup", ErrParse)
	}

	if !result.HasPrice() {
		html, _ := doc.Html()
		result.Price = extractPriceFallback(html)
	}

	return result, nil
}

func (s *StaticPage) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", s.opts.AcceptLanguage)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Cache-Control", "max-age=0")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
}

// jsonLDProduct is the subset of the schema.org Product block we consume.
// Offers is kept raw because the marketplace serves it both as an object and
// as an array.
type jsonLDProduct struct {
	Type   string          `json:"@type"`
	Name   string          `json:"name"`
	Offers json.RawMessage `json:"offers"`
}

// Price arrives either as a JSON number or a quoted string, so it is kept
// raw and normalised through ParsePrice.
type jsonLDOffer struct {
	Price json.RawMessage `json:"price"`
}

func (o jsonLDOffer) priceText() string {
	return strings.Trim(string(o.Price), `"`)
}

func extractJSONLD(doc *goquery.Document) (string, *decimal.Decimal, bool) {
	var name string
	var price *decimal.Decimal
	found := false

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var product jsonLDProduct
		if err := json.Unmarshal([]byte(sel.Text()), &product); err != nil {
			return true
		}
		if product.Type != "Product" || product.Name == "" {
			return true
		}

		name = product.Name
		found = true
		price = offerPrice(product.Offers)
		// keep scanning only while we still lack a price
		return price == nil
	})

	return name, price, found
}

func offerPrice(raw json.RawMessage) *decimal.Decimal {
	if len(raw) == 0 {
		return nil
	}

	var single jsonLDOffer
	if err := json.Unmarshal(raw, &single); err == nil {
		if p, ok := ParsePrice(single.priceText()); ok {
			return &p
		}
	}

	var many []jsonLDOffer
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, offer := range many {
			if p, ok := ParsePrice(offer.priceText()); ok {
				return &p
			}
		}
	}

	return nil
}

func extractNameFallback(doc *goquery.Document) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if name := NormalizeName(h1.Text()); name != "" {
			return name
		}
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if name := NormalizeName(og); name != "" {
			return name
		}
	}
	return NormalizeName(doc.Find("title").First().Text())
}

func extractPriceFallback(html string) *decimal.Decimal {
	for _, pattern := range htmlPricePatterns {
		for _, match := range pattern.FindAllStringSubmatch(html, -1) {
			if p, ok := ParsePrice(match[1]); ok {
				return &p
			}
		}
	}
	return nil
}

func findBlockedMarker(doc *goquery.Document) string {
	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range blockedMarkers {
		if strings.Contains(body, marker) {
			return marker
		}
	}
	return ""
}

var _ Strategy = (*StaticPage)(nil)

package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Digit run (space-variant separators allowed) directly followed by the
// rouble glyph.
var roublePattern = regexp.MustCompile(`(\d[\d\s\x{00a0}\x{2009}\x{202f}]*)[\s\x{00a0}\x{2009}\x{202f}]*₽`)

// Renderer is the narrow rendering capability the DOM strategy needs:
// navigate, wait, query text, scroll. The browser-automation engine behind it
// is owned by the caller and passed in explicitly.
type Renderer interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible node or the
	// timeout elapses; a timeout is reported as an error.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Text returns the rendered text of the first node matching the selector,
	// or "" when no node matches.
	Text(ctx context.Context, selector string) (string, error)
	// Texts returns rendered text of up to limit nodes matching the selector,
	// in document order.
	Texts(ctx context.Context, selector string, limit int) ([]string, error)
	ScrollBy(ctx context.Context, pixels int) error
}

// Selector lists in priority order; first non-empty text wins.
var (
	titleSelectors = []string{
		"h1",
		"[data-widget='webProductHeading']",
		"[data-widget='webProductHeading'] h1",
		".product-page__title",
	}

	priceWidgetNodes = "[data-widget='webPrice'] span, [data-widget='webPrice'] div, [data-widget='webPrice'] b, [data-widget='webPrice'] strong"

	availabilitySelectors = []string{
		"[data-testid='out-of-stock']",
		".out-of-stock",
		"[data-testid='add-to-cart-button']",
	}

	outOfStockPhrases = []string{"нет в наличии", "закончился", "out of stock", "недоступ"}
	inStockPhrases    = []string{"купить", "в корзину", "add to cart"}
)

// How much of the page the last-resort currency scan looks at.
const renderedScanLimit = 100

// RenderedDOMOptions parameterise the rendered strategy.
type RenderedDOMOptions struct {
	WaitTimeout time.Duration
	SettleDelay time.Duration
}

// RenderedDOM extracts product data from a fully rendered page. It is the
// slowest strategy and runs last, but survives markup the static strategies
// never see.
type RenderedDOM struct {
	opts     RenderedDOMOptions
	renderer Renderer
	logger   zerolog.Logger
}

// NewRenderedDOM constructs the rendered-DOM strategy around a renderer.
func NewRenderedDOM(renderer Renderer, opts RenderedDOMOptions, logger zerolog.Logger) *RenderedDOM {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 20 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 3 * time.Second
	}
	return &RenderedDOM{
		opts:     opts,
		renderer: renderer,
		logger:   logger.With().Str("component", "rendered_strategy").Logger(),
	}
}

// Name implements Strategy.
func (r *RenderedDOM) Name() string { return "rendered-dom" }

// Extract navigates to the product page, lets lazy content load, and probes
// the rendered DOM.
func (r *RenderedDOM) Extract(ctx context.Context, productID, productURL string) (Result, error) {
	if err := r.renderer.Navigate(ctx, productURL); err != nil {
		return Result{}, fmt.Errorf("%w: navigate: %v", ErrNetwork, err)
	}

	// Partial pages are still worth probing, so a heading timeout is only a
	// log line.
	if err := r.renderer.WaitVisible(ctx, "h1", r.opts.WaitTimeout); err != nil {
		r.logger.Debug().Err(err).Str("product_id", productID).Msg("heading did not appear in time")
	}

	if err := r.renderer.ScrollBy(ctx, 300); err != nil {
		r.logger.Debug().Err(err).Msg("scroll failed")
	}
	if err := sleepCtx(ctx, r.opts.SettleDelay); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	name := r.extractTitle(ctx)
	if name == "" {
		return Result{}, fmt.Errorf("%w: no title in rendered page", ErrParse)
	}

	result := Result{
		ProductID: productID,
		URL:       productURL,
		Name:      capName(name),
		Available: r.checkAvailability(ctx),
		Source:    r.Name(),
	}
	result.Price = r.extractPrice(ctx)

	return result, nil
}

func (r *RenderedDOM) extractTitle(ctx context.Context) string {
	for _, selector := range titleSelectors {
		text, err := r.renderer.Text(ctx, selector)
		if err != nil {
			continue
		}
		if name := NormalizeName(text); name != "" {
			return name
		}
	}
	return ""
}

func (r *RenderedDOM) extractPrice(ctx context.Context) *decimal.Decimal {
	// Preferred source: the price widget's descendant text nodes in document
	// order, first digit-bearing token wins.
	nodes, err := r.renderer.Texts(ctx, priceWidgetNodes, 0)
	if err == nil {
		for _, text := range nodes {
			if !strings.ContainsAny(text, "0123456789") {
				continue
			}
			if price, ok := FirstPriceToken(text); ok {
				return &price
			}
		}
	}

	// Last resort: scan a bounded prefix of the page for currency-adjacent
	// digits.
	all, err := r.renderer.Texts(ctx, "*", renderedScanLimit)
	if err != nil {
		return nil
	}
	for _, text := range all {
		if !strings.Contains(text, "₽") {
			continue
		}
		match := roublePattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if price, ok := ParsePrice(match[1]); ok {
			return &price
		}
	}
	return nil
}

func (r *RenderedDOM) checkAvailability(ctx context.Context) bool {
	for _, selector := range availabilitySelectors {
		text, err := r.renderer.Text(ctx, selector)
		if err != nil || text == "" {
			continue
		}
		lower := strings.ToLower(text)
		for _, phrase := range outOfStockPhrases {
			if strings.Contains(lower, phrase) {
				return false
			}
		}
		for _, phrase := range inStockPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	// inconclusive counts as available
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Strategy = (*RenderedDOM)(nil)

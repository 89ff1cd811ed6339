package extract

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeRenderer serves canned DOM text keyed by selector.
type fakeRenderer struct {
	texts       map[string]string
	nodeTexts   map[string][]string
	navigateErr error
	waitErr     error
	navigated   string
	scrolled    int
}

func (f *fakeRenderer) Navigate(_ context.Context, url string) error {
	f.navigated = url
	return f.navigateErr
}

func (f *fakeRenderer) WaitVisible(context.Context, string, time.Duration) error {
	return f.waitErr
}

func (f *fakeRenderer) Text(_ context.Context, selector string) (string, error) {
	return f.texts[selector], nil
}

func (f *fakeRenderer) Texts(_ context.Context, selector string, limit int) ([]string, error) {
	nodes := f.nodeTexts[selector]
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

func (f *fakeRenderer) ScrollBy(_ context.Context, pixels int) error {
	f.scrolled += pixels
	return nil
}

func newRenderedForTest(renderer Renderer) *RenderedDOM {
	return NewRenderedDOM(renderer, RenderedDOMOptions{
		WaitTimeout: 10 * time.Millisecond,
		SettleDelay: time.Millisecond,
	}, noopLogger())
}

func TestRenderedDOMExtract(t *testing.T) {
	renderer := &fakeRenderer{
		texts: map[string]string{
			"h1":                                 "Rendered  Lamp",
			"[data-testid='add-to-cart-button']": "В корзину",
		},
		nodeTexts: map[string][]string{
			priceWidgetNodes: {"c картой", "1 299 ₽"},
		},
	}

	result, err := newRenderedForTest(renderer).Extract(context.Background(), "55", "https://www.ozon.ru/product/55/")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if renderer.navigated != "https://www.ozon.ru/product/55/" {
		t.Fatalf("navigated to %q", renderer.navigated)
	}
	if renderer.scrolled != 300 {
		t.Fatalf("scrolled %d px, want 300", renderer.scrolled)
	}
	if result.Name != "Rendered Lamp" {
		t.Fatalf("name = %q", result.Name)
	}
	if !result.HasPrice() || result.Price.String() != "1299" {
		t.Fatalf("price = %v, want 1299", result.Price)
	}
	if !result.Available {
		t.Fatalf("product should read as available")
	}
}

func TestRenderedDOMTitleSelectorPriority(t *testing.T) {
	renderer := &fakeRenderer{
		texts: map[string]string{
			"[data-widget='webProductHeading']": "Widget Heading",
			".product-page__title":              "Legacy Title",
		},
	}

	result, err := newRenderedForTest(renderer).Extract(context.Background(), "1", "u")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Name != "Widget Heading" {
		t.Fatalf("name = %q, want the earlier selector to win", result.Name)
	}
}

func TestRenderedDOMCurrencyScanFallback(t *testing.T) {
	renderer := &fakeRenderer{
		texts: map[string]string{"h1": "Scanned Product"},
		nodeTexts: map[string][]string{
			"*": {"Доставка завтра", "2 шт. со скидкой", "12 990 ₽ с озон картой"},
		},
	}

	result, err := newRenderedForTest(renderer).Extract(context.Background(), "1", "u")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !result.HasPrice() || result.Price.String() != "12990" {
		t.Fatalf("price = %v, want 12990 from the currency scan", result.Price)
	}
}

func TestRenderedDOMOutOfStock(t *testing.T) {
	renderer := &fakeRenderer{
		texts: map[string]string{
			"h1":                           "Sold Out Item",
			"[data-testid='out-of-stock']": "Этот товар закончился",
		},
	}

	result, err := newRenderedForTest(renderer).Extract(context.Background(), "1", "u")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Available {
		t.Fatalf("out-of-stock phrase must flip availability")
	}
	if result.HasPrice() {
		t.Fatalf("unexpected price %v", result.Price)
	}
}

func TestRenderedDOMWaitTimeoutIsNotFatal(t *testing.T) {
	renderer := &fakeRenderer{
		texts:   map[string]string{"h1": "Slow Page"},
		waitErr: errors.New("timeout waiting for h1"),
	}

	result, err := newRenderedForTest(renderer).Extract(context.Background(), "1", "u")
	if err != nil {
		t.Fatalf("heading wait timeout must not abort extraction: %v", err)
	}
	if result.Name != "Slow Page" {
		t.Fatalf("name = %q", result.Name)
	}
}

func TestRenderedDOMNavigateError(t *testing.T) {
	renderer := &fakeRenderer{navigateErr: errors.New("connection refused")}

	_, err := newRenderedForTest(renderer).Extract(context.Background(), "1", "u")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
}

func TestRenderedDOMNoTitle(t *testing.T) {
	renderer := &fakeRenderer{}

	_, err := newRenderedForTest(renderer).Extract(context.Background(), "1", "u")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("error = %v, want ErrParse", err)
	}
}

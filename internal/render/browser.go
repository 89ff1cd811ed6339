// Package render owns the browser-automation session used by the rendered-DOM
// extraction strategy. The session is a single long-lived resource: acquired
// once at startup, reused for every navigation, released on shutdown.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Options tune the headless browser.
type Options struct {
	Headless  bool
	UserAgent string
}

// Browser wraps one chromedp session.
type Browser struct {
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	tabCtx      context.Context
	exec        func(context.Context, ...chromedp.Action) error
	logger      zerolog.Logger
}

// NewBrowser launches the browser. The caller must Close it on every exit
// path.
func NewBrowser(ctx context.Context, opts Options, logger zerolog.Logger) (*Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
	)
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so launch failures surface here, not on
	// the first extraction.
	if err := chromedp.Run(tabCtx); err != nil {
		ctxCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	logger = logger.With().Str("component", "render").Logger()
	logger.Info().Bool("headless", opts.Headless).Msg("browser session started")

	return &Browser{
		allocCancel: allocCancel,
		ctxCancel:   ctxCancel,
		tabCtx:      tabCtx,
		exec:        chromedp.Run,
		logger:      logger,
	}, nil
}

// Close releases the browser session.
func (b *Browser) Close() {
	if b == nil {
		return
	}
	b.ctxCancel()
	b.allocCancel()
	b.logger.Info().Msg("browser session closed")
}

// Navigate loads the URL in the session tab.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

// WaitVisible blocks until the selector matches a visible node or the timeout
// elapses.
func (b *Browser) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Text returns the rendered text of the first matching node, "" when none
// matches.
func (b *Browser) Text(ctx context.Context, selector string) (string, error) {
	var texts []string
	err := b.run(ctx, chromedp.Evaluate(textsExpr(selector, 1), &texts))
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", nil
	}
	return texts[0], nil
}

// Texts returns rendered text for up to limit matching nodes in document
// order; limit <= 0 means all.
func (b *Browser) Texts(ctx context.Context, selector string, limit int) ([]string, error) {
	var texts []string
	if err := b.run(ctx, chromedp.Evaluate(textsExpr(selector, limit), &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// ScrollBy scrolls the page vertically to trigger lazy-loaded content.
func (b *Browser) ScrollBy(ctx context.Context, pixels int) error {
	expr := fmt.Sprintf("window.scrollTo(0, %d); true", pixels)
	var ok bool
	return b.run(ctx, chromedp.Evaluate(expr, &ok))
}

// run executes actions on the session tab. The tab context carries the
// session; the caller's deadline and cancellation are grafted onto a derived
// tab context so an aborted action stops on the tab too, rather than lingering
// and racing the next one.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithCancel(b.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := b.exec(tctx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func textsExpr(selector string, limit int) string {
	return fmt.Sprintf(
		`(() => {
			const nodes = Array.from(document.querySelectorAll(%q));
			const limited = %d > 0 ? nodes.slice(0, %d) : nodes;
			return limited.map(n => n.innerText || n.textContent || "");
		})()`,
		selector, limit, limit,
	)
}

package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

func newTestBrowser(tabCtx context.Context, exec func(context.Context, ...chromedp.Action) error) *Browser {
	return &Browser{tabCtx: tabCtx, exec: exec, logger: zerolog.Nop()}
}

func TestRunCancelsActionOnCallerTimeout(t *testing.T) {
	var actionErr error
	browser := newTestBrowser(context.Background(), func(tctx context.Context, _ ...chromedp.Action) error {
		// stand-in for an action waiting on a node that never appears
		<-tctx.Done()
		actionErr = tctx.Err()
		return actionErr
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := browser.run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if !errors.Is(actionErr, context.Canceled) {
		t.Fatalf("action context err = %v, want cancellation to reach the tab", actionErr)
	}
}

func TestWaitVisibleTimeoutStopsTheWait(t *testing.T) {
	browser := newTestBrowser(context.Background(), func(tctx context.Context, _ ...chromedp.Action) error {
		<-tctx.Done()
		return tctx.Err()
	})

	err := browser.WaitVisible(context.Background(), "h1", 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRunSessionShutdownAbortsAction(t *testing.T) {
	tabCtx, tabCancel := context.WithCancel(context.Background())
	browser := newTestBrowser(tabCtx, func(tctx context.Context, _ ...chromedp.Action) error {
		tabCancel()
		<-tctx.Done()
		return tctx.Err()
	})

	if err := browser.run(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled from the closed session", err)
	}
}

func TestRunPassesThroughActionError(t *testing.T) {
	sentinel := errors.New("evaluate failed")
	browser := newTestBrowser(context.Background(), func(context.Context, ...chromedp.Action) error {
		return sentinel
	})

	if err := browser.run(context.Background()); !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want the action error", err)
	}
}

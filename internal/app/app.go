package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ozon-price-tracker/internal/alerting"
	"ozon-price-tracker/internal/config"
	"ozon-price-tracker/internal/extract"
	"ozon-price-tracker/internal/pricing"
	"ozon-price-tracker/internal/render"
	"ozon-price-tracker/internal/resolver"
	"ozon-price-tracker/internal/scheduler"
	"ozon-price-tracker/internal/service"
	"ozon-price-tracker/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newResolver() *resolver.Resolver {
	return resolver.New(resolver.Options{
		BaseURL:   a.Config.Ozon.BaseURL,
		Timeout:   a.Config.Ozon.RequestTimeout,
		UserAgent: a.Config.Ozon.UserAgent,
	}, a.Logger)
}

// newChain assembles the strategy chain. The returned release func owns the
// browser session when rendering is enabled and must run on every exit path.
func (a *App) newChain(ctx context.Context) (*extract.Chain, func(), error) {
	ozon := a.Config.Ozon

	strategies := []extract.Strategy{
		extract.NewStaticPage(extract.StaticPageOptions{
			Timeout:        ozon.RequestTimeout,
			UserAgent:      ozon.UserAgent,
			AcceptLanguage: ozon.AcceptLanguage,
		}, a.Logger),
		extract.NewCatalogAPI(extract.CatalogAPIOptions{
			EndpointURL:    ozon.GraphQLURL,
			ProductBaseURL: ozon.BaseURL,
			Timeout:        ozon.RequestTimeout,
			UserAgent:      ozon.UserAgent,
		}, a.Logger),
		extract.NewComposerAPI(extract.ComposerAPIOptions{
			EndpointURL:    ozon.ComposerURL,
			ProductBaseURL: ozon.BaseURL,
			Timeout:        ozon.RequestTimeout,
			UserAgent:      ozon.UserAgent,
		}, a.Logger),
	}

	release := func() {}
	if a.Config.Render.Enabled {
		browser, err := render.NewBrowser(ctx, render.Options{
			Headless:  a.Config.Render.Headless,
			UserAgent: a.Config.Render.UserAgent,
		}, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("start render session: %w", err)
		}
		release = browser.Close

		strategies = append(strategies, extract.NewRenderedDOM(browser, extract.RenderedDOMOptions{
			WaitTimeout: a.Config.Render.WaitTimeout,
			SettleDelay: a.Config.Render.SettleDelay,
		}, a.Logger))
	}

	chain := extract.NewChain(a.newResolver(), strategies, a.Logger)
	return chain, release, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Telegram.Enabled {
		cfg := a.Config.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn is not configured")
	}

	chain, releaseChain, err := a.newChain(ctx)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	evaluator := pricing.NewEvaluator(a.Config.Tracker.ThresholdPct, a.Logger)

	svc := service.New(
		sched,
		chain,
		evaluator,
		store,
		store,
		store,
		a.newNotifier(),
		service.Options{
			FetchDelay: a.Config.Tracker.FetchDelay,
			LockKey:    a.Config.Scheduler.AdvisoryLockKey,
		},
		a.Logger,
	)

	cleanup := func() {
		releaseChain()
		closeStore()
	}
	return svc, cleanup, nil
}

// Run executes the long-running tracking service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunAtStart:   true,
	}, a.Logger)

	svc, cleanup, err := a.newService(ctx, sched)
	if err != nil {
		return err
	}
	defer cleanup()

	a.Logger.Info().Msg("starting tracking service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("tracking service stopped")
	return nil
}

// Check runs a single check cycle and exits.
func (a *App) Check(ctx context.Context) error {
	svc, cleanup, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	return svc.CheckAll(ctx)
}

// TrackOptions configure the add command.
type TrackOptions struct {
	URL      string
	ChatID   string
	Username string
}

// Track adds a product for tracking and reports its initial state.
func (a *App) Track(ctx context.Context, opts TrackOptions) error {
	svc, cleanup, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	product, priced, err := svc.Track(ctx, opts.URL, opts.ChatID, opts.Username)
	if err != nil {
		if errors.Is(err, resolver.ErrUnresolvable) {
			return fmt.Errorf("could not recognise a product id in %q", opts.URL)
		}
		if errors.Is(err, extract.ErrExhausted) {
			return fmt.Errorf("product could not be found at %q", opts.URL)
		}
		return err
	}

	if priced {
		a.Logger.Info().
			Str("product_id", product.ProductID).
			Str("name", product.Name).
			Str("price", product.CurrentPrice.String()).
			Msg("product tracked")
	} else {
		a.Logger.Info().
			Str("product_id", product.ProductID).
			Str("name", product.Name).
			Msg("product tracked, price pending next cycle")
	}
	return nil
}

// RemoveOptions configure the remove command.
type RemoveOptions struct {
	Ref    string
	ChatID string
}

// Remove drops a subscriber's subscription to a product; the product record is
// pruned when nobody tracks it any more. Ref is a canonical product id or a
// product URL.
func (a *App) Remove(ctx context.Context, opts RemoveOptions) error {
	if opts.ChatID == "" {
		return errors.New("--chat-id is required")
	}

	productID := opts.Ref
	if !isDigits(productID) {
		id, _, err := a.newResolver().Resolve(ctx, opts.Ref)
		if err != nil {
			if errors.Is(err, resolver.ErrUnresolvable) {
				return fmt.Errorf("could not recognise a product id in %q", opts.Ref)
			}
			return err
		}
		productID = id
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is not configured")
	}
	defer closeStore()

	svc := service.New(nil, nil, nil, store, store, store, nil, service.Options{}, a.Logger)
	pruned, err := svc.Untrack(ctx, productID, opts.ChatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("product %s is not tracked for this chat", productID)
		}
		return err
	}

	if pruned {
		a.Logger.Info().Str("product_id", productID).Msg("product removed, no subscribers left")
	} else {
		a.Logger.Info().Str("product_id", productID).Msg("subscription removed")
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ShowOptions configure the show command.
type ShowOptions struct {
	ProductID string
	ChatID    string
	Limit     int
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	ProductID string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

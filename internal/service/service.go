package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ozon-price-tracker/internal/alerting"
	"ozon-price-tracker/internal/extract"
	"ozon-price-tracker/internal/pricing"
	"ozon-price-tracker/internal/scheduler"
	"ozon-price-tracker/internal/storage"
)

// Extractor produces product data for a raw or resolved reference.
type Extractor interface {
	Run(ctx context.Context, rawURL string) (extract.Result, error)
	Extract(ctx context.Context, productID, productURL string) (extract.Result, error)
}

// Options tune service behaviour.
type Options struct {
	FetchDelay time.Duration
	LockKey    int64
}

// Service orchestrates extraction, evaluation, persistence, and alerting.
type Service struct {
	sched     *scheduler.Scheduler
	chain     Extractor
	evaluator *pricing.Evaluator
	products  storage.ProductStore
	subs      storage.SubscriberStore
	history   storage.HistoryStore
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	opts      Options
	logger    zerolog.Logger
}

// New constructs the tracking service.
func New(
	sched *scheduler.Scheduler,
	chain Extractor,
	evaluator *pricing.Evaluator,
	products storage.ProductStore,
	subs storage.SubscriberStore,
	history storage.HistoryStore,
	notifier alerting.Notifier,
	opts Options,
	logger zerolog.Logger,
) *Service {
	svc := &Service{
		sched:     sched,
		chain:     chain,
		evaluator: evaluator,
		products:  products,
		subs:      subs,
		history:   history,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
	if locker, ok := products.(storage.AdvisoryLocker); ok {
		svc.locker = locker
	}
	return svc
}

// Run begins the periodic check loop.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, s.CheckAll)
}

// CheckAll runs one full check cycle over every tracked product, one product
// at a time with a politeness delay in between. The cycle may be cancelled
// between products but a single product is always carried through
// extract+evaluate+commit as a unit.
func (s *Service) CheckAll(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Info().Msg("another check cycle holds the lock, skipping")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	for i, product := range products {
		if i > 0 {
			if err := wait(ctx, s.opts.FetchDelay); err != nil {
				return err
			}
		}
		if err := s.checkOne(ctx, product); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Error().Err(err).Str("product_id", product.ProductID).Msg("product check failed")
		}
	}

	return nil
}

func (s *Service) checkOne(ctx context.Context, product storage.Product) error {
	result, err := s.chain.Extract(ctx, product.ProductID, product.URL)
	if err != nil {
		return err
	}
	if !result.HasPrice() {
		s.logger.Info().Str("product_id", product.ProductID).Msg("no price this cycle")
		return nil
	}

	if result.Name != "" {
		product.Name = result.Name
	}

	updated, event := s.evaluator.Evaluate(product, *result.Price)
	saved, err := s.products.UpsertProduct(ctx, updated)
	if err != nil {
		return fmt.Errorf("persist record: %w", err)
	}

	s.recordHistory(ctx, saved, result)

	if event != nil {
		s.fanOut(ctx, *event)
	}
	return nil
}

// Track adds a product for a subscriber, extracting its current state first.
// A product whose price could not be determined is still tracked; the price
// arrives on a later cycle.
func (s *Service) Track(ctx context.Context, rawURL, chatID, username string) (storage.Product, bool, error) {
	result, err := s.chain.Run(ctx, rawURL)
	if err != nil {
		return storage.Product{}, false, err
	}

	record := storage.Product{
		ProductID: result.ProductID,
		URL:       result.URL,
		Name:      result.Name,
	}

	if existing, err := s.products.GetProduct(ctx, result.ProductID); err == nil {
		record = existing
		if result.Name != "" {
			record.Name = result.Name
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.Product{}, false, err
	}

	if result.HasPrice() {
		record, _ = s.evaluator.Evaluate(record, *result.Price)
	}

	saved, err := s.products.UpsertProduct(ctx, record)
	if err != nil {
		return storage.Product{}, false, fmt.Errorf("persist record: %w", err)
	}

	s.recordHistory(ctx, saved, result)

	if chatID != "" && s.subs != nil {
		sub, err := s.subs.UpsertSubscriber(ctx, chatID, username)
		if err != nil {
			return saved, result.HasPrice(), fmt.Errorf("register subscriber: %w", err)
		}
		if err := s.subs.Subscribe(ctx, sub.ID, saved.ID); err != nil {
			return saved, result.HasPrice(), fmt.Errorf("subscribe: %w", err)
		}
	}

	return saved, result.HasPrice(), nil
}

// Untrack removes a subscriber's interest in a product. The product record is
// pruned once its last subscriber leaves, reported via the bool.
func (s *Service) Untrack(ctx context.Context, productID, chatID string) (bool, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	sub, err := s.subs.GetSubscriber(ctx, chatID)
	if err != nil {
		return false, err
	}

	removed, err := s.subs.Unsubscribe(ctx, sub.ID, product.ID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, fmt.Errorf("subscription for product %s: %w", productID, storage.ErrNotFound)
	}

	pruned, err := s.products.DeleteProductIfOrphan(ctx, product.ID)
	if err != nil {
		return false, err
	}
	if pruned {
		s.logger.Info().Str("product_id", productID).Msg("last subscriber left, product pruned")
	} else {
		s.logger.Info().Str("product_id", productID).Str("chat_id", chatID).Msg("subscription removed")
	}
	return pruned, nil
}

func (s *Service) recordHistory(ctx context.Context, product storage.Product, result extract.Result) {
	if s.history == nil || !result.HasPrice() {
		return
	}
	point := storage.PricePoint{
		ProductID:  product.ProductID,
		Price:      result.Price.RoundBank(2),
		Source:     result.Source,
		ObservedAt: time.Now().UTC(),
	}
	if err := s.history.InsertPricePoint(ctx, point); err != nil {
		s.logger.Error().Err(err).Str("product_id", product.ProductID).Msg("failed to record price point")
	}
}

func (s *Service) fanOut(ctx context.Context, event pricing.Event) {
	if s.notifier == nil || s.subs == nil {
		return
	}

	subscribers, err := s.subs.ListProductSubscribers(ctx, event.ProductID)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", event.ProductID).Msg("failed to list subscribers")
		return
	}

	for _, sub := range subscribers {
		if err := s.notifier.Notify(ctx, event, sub.ChatID); err != nil {
			s.logger.Error().Err(err).
				Str("product_id", event.ProductID).
				Str("chat_id", sub.ChatID).
				Msg("failed to dispatch alert")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SimulatedChange feeds a synthetic old/new price pair through the evaluator
// and notifier without touching storage.
func (s *Service) SimulatedChange(ctx context.Context, name string, oldPrice, newPrice decimal.Decimal, chatID string) error {
	old := oldPrice.RoundBank(2)
	record := storage.Product{
		ProductID:    "simulated",
		Name:         name,
		URL:          "https://www.ozon.ru/product/simulated/",
		CurrentPrice: &old,
	}

	_, event := s.evaluator.Evaluate(record, newPrice)
	if event == nil {
		s.logger.Info().Msg("simulated change below threshold, no alert")
		return nil
	}
	if s.notifier == nil {
		return fmt.Errorf("notifier not configured")
	}
	return s.notifier.Notify(ctx, *event, chatID)
}

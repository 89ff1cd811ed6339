package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ozon-price-tracker/internal/pricing"
	"ozon-price-tracker/internal/service"
)

// SimulateAlert feeds a synthetic price change through the evaluator and the
// notification channel to verify the delivery path end to end.
func (a *App) SimulateAlert(ctx context.Context, name string, oldPrice, newPrice decimal.Decimal, chatID string) error {
	if !a.Config.Telegram.Enabled {
		return errors.New("telegram notifications are not enabled")
	}
	if chatID == "" {
		return errors.New("--chat-id is required")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	evaluator := pricing.NewEvaluator(a.Config.Tracker.ThresholdPct, a.Logger)
	svc := service.New(nil, nil, evaluator, nil, nil, nil, notifier, service.Options{}, a.Logger)

	return svc.SimulatedChange(ctx, name, oldPrice, newPrice, chatID)
}

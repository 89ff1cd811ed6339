// Package pricing decides whether a freshly extracted price is a reportable
// change against the stored record.
package pricing

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ozon-price-tracker/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Event describes a threshold-crossing price change.
type Event struct {
	ProductID string
	Name      string
	URL       string
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	DeltaPct  decimal.Decimal
}

// Evaluator applies the configured threshold to observed prices.
type Evaluator struct {
	threshold decimal.Decimal
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEvaluator constructs an evaluator with a percentage threshold.
func NewEvaluator(thresholdPct float64, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		threshold: decimal.NewFromFloat(thresholdPct),
		logger:    logger.With().Str("component", "evaluator").Logger(),
		now:       time.Now,
	}
}

// Evaluate folds a new price into the record and reports an event when the
// absolute percentage delta meets the threshold. Prices are stored rounded to
// two places, round-half-even.
//
// A record without a usable current price (never observed, or a non-positive
// stored value) is a first observation: both prices are set and
// nothing is reported. A sub-threshold change refreshes the current price but
// leaves the previous price untouched, so small drifts stay visible against
// the last reported level.
func (e *Evaluator) Evaluate(record storage.Product, newPrice decimal.Decimal) (storage.Product, *Event) {
	rounded := roundPrice(newPrice)
	checked := e.now().UTC()

	old := record.CurrentPrice
	if old == nil || !old.IsPositive() {
		record.CurrentPrice = &rounded
		record.PreviousPrice = &rounded
		record.LastCheck = &checked
		return record, nil
	}

	deltaPct := rounded.Sub(*old).Div(*old).Mul(hundred)

	if deltaPct.Abs().GreaterThanOrEqual(e.threshold) {
		oldPrice := roundPrice(*old)
		record.PreviousPrice = &oldPrice
		record.CurrentPrice = &rounded
		record.LastCheck = &checked

		event := &Event{
			ProductID: record.ProductID,
			Name:      record.Name,
			URL:       record.URL,
			OldPrice:  oldPrice,
			NewPrice:  rounded,
			DeltaPct:  deltaPct.Round(1),
		}
		e.logger.Info().
			Str("product_id", record.ProductID).
			Str("old", oldPrice.String()).
			Str("new", rounded.String()).
			Str("delta_pct", event.DeltaPct.String()).
			Msg("price change crossed threshold")
		return record, event
	}

	// silent refresh
	record.CurrentPrice = &rounded
	record.LastCheck = &checked
	return record, nil
}

func roundPrice(p decimal.Decimal) decimal.Decimal {
	return p.RoundBank(2)
}

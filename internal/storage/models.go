package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the persisted state of one tracked product, keyed by the
// canonical product id. Prices are nullable until the first successful
// extraction and always stored rounded to two places.
type Product struct {
	ID            int64
	ProductID     string
	URL           string
	Name          string
	CurrentPrice  *decimal.Decimal
	PreviousPrice *decimal.Decimal
	LastCheck     *time.Time
	CreatedAt     time.Time
}

// Subscriber is a notification recipient.
type Subscriber struct {
	ID        int64
	ChatID    string
	Username  string
	CreatedAt time.Time
}

// PricePoint is one observed price, kept as history for export.
type PricePoint struct {
	ID         int64
	ProductID  string
	Price      decimal.Decimal
	Source     string
	ObservedAt time.Time
}

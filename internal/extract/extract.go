package extract

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Error kinds a strategy may report. The chain recovers from all of them by
// moving on to the next strategy; Blocked is kept distinct so operators can
// spot systemic automated-traffic denial in the logs.
var (
	ErrNetwork = errors.New("extract: network failure")
	ErrParse   = errors.New("extract: response not parseable")
	ErrBlocked = errors.New("extract: blocked by target")

	// ErrExhausted is returned by the chain when no strategy produced
	// anything usable, not even a name.
	ErrExhausted = errors.New("extract: all strategies exhausted")
)

// Result is the normalised outcome of one extraction attempt.
type Result struct {
	ProductID string
	URL       string
	Name      string
	Price     *decimal.Decimal
	Available bool
	Source    string
}

// HasPrice reports whether the result carries a usable price.
func (r Result) HasPrice() bool {
	return r.Price != nil
}

// Strategy is one independent way of obtaining product data. Implementations
// hold no shared state; a failed strategy never prevents another from running.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, productID, productURL string) (Result, error)
}

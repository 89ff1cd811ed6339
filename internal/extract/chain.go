package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// IDResolver yields the canonical product id and URL for a raw link.
type IDResolver interface {
	Resolve(ctx context.Context, rawURL string) (id, canonicalURL string, err error)
}

// Chain tries strategies in fixed priority order. A priced result is accepted
// immediately; a name-only result is remembered as the best-so-far fallback;
// a strategy error is logged and the next strategy runs.
type Chain struct {
	resolver   IDResolver
	strategies []Strategy
	logger     zerolog.Logger
}

// NewChain constructs a chain over the given strategies, in priority order.
func NewChain(resolver IDResolver, strategies []Strategy, logger zerolog.Logger) *Chain {
	return &Chain{
		resolver:   resolver,
		strategies: strategies,
		logger:     logger.With().Str("component", "extract_chain").Logger(),
	}
}

// Run resolves the identifier once and walks the strategies.
func (c *Chain) Run(ctx context.Context, rawURL string) (Result, error) {
	productID, productURL, err := c.resolver.Resolve(ctx, rawURL)
	if err != nil {
		// unresolvable links are terminal, not a strategy concern
		return Result{}, err
	}
	return c.Extract(ctx, productID, productURL)
}

// Extract walks the strategies for an already-resolved product.
func (c *Chain) Extract(ctx context.Context, productID, productURL string) (Result, error) {
	var fallback *Result

	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		result, err := strategy.Extract(ctx, productID, productURL)
		if err != nil {
			c.logger.Warn().
				Str("strategy", strategy.Name()).
				Str("product_id", productID).
				Str("kind", errorKind(err)).
				Err(err).
				Msg("strategy failed")
			continue
		}

		if result.HasPrice() {
			c.logger.Info().
				Str("strategy", strategy.Name()).
				Str("product_id", productID).
				Str("price", result.Price.String()).
				Msg("strategy accepted")
			return result, nil
		}

		c.logger.Info().
			Str("strategy", strategy.Name()).
			Str("product_id", productID).
			Msg("strategy returned name only, continuing")
		if fallback == nil {
			r := result
			fallback = &r
		}
	}

	if fallback != nil {
		return *fallback, nil
	}
	return Result{}, fmt.Errorf("%w: product %s", ErrExhausted, productID)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "other"
	}
}

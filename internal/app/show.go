package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"ozon-price-tracker/internal/storage"
)

// Show prints tracked products, or a product's recent price history when a
// product id is given.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show products")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.ProductID != "" {
		return a.showHistory(ctx, store, opts)
	}

	var products []storage.Product
	if opts.ChatID != "" {
		products, err = store.ListSubscriberProducts(ctx, opts.ChatID)
	} else {
		products, err = store.ListProducts(ctx)
	}
	if err != nil {
		return err
	}
	if len(products) == 0 {
		fmt.Fprintln(os.Stdout, "no tracked products")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Product ID\tName\tCurrent\tPrevious\tLast check")

	for _, product := range products {
		lastCheck := "never"
		if product.LastCheck != nil {
			lastCheck = product.LastCheck.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			product.ProductID,
			sanitizeInline(product.Name),
			formatNullableDecimal(product.CurrentPrice),
			formatNullableDecimal(product.PreviousPrice),
			lastCheck,
		)
	}

	return writer.Flush()
}

type historyLister interface {
	ListRecentPricePoints(ctx context.Context, productID string, limit int) ([]storage.PricePoint, error)
}

func (a *App) showHistory(ctx context.Context, store historyLister, opts ShowOptions) error {
	points, err := store.ListRecentPricePoints(ctx, opts.ProductID, opts.Limit)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintln(os.Stdout, "no price history")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tPrice\tSource")
	for _, point := range points {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			point.ObservedAt.UTC().Format(time.RFC3339),
			point.Price.StringFixed(2),
			point.Source,
		)
	}

	return writer.Flush()
}

func formatNullableDecimal(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

package pricing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ozon-price-tracker/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func record(current *decimal.Decimal) storage.Product {
	return storage.Product{
		ProductID:    "42",
		URL:          "https://www.ozon.ru/product/42/",
		Name:         "Example",
		CurrentPrice: current,
	}
}

func TestEvaluateFirstObservation(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	updated, event := ev.Evaluate(record(nil), dec("500"))
	if event != nil {
		t.Fatalf("first observation must not report an event, got %+v", event)
	}
	if updated.CurrentPrice == nil || !updated.CurrentPrice.Equal(dec("500")) {
		t.Fatalf("current = %v, want 500", updated.CurrentPrice)
	}
	if updated.PreviousPrice == nil || !updated.PreviousPrice.Equal(dec("500")) {
		t.Fatalf("previous = %v, want 500", updated.PreviousPrice)
	}
	if updated.LastCheck == nil {
		t.Fatalf("last check timestamp not set")
	}
}

func TestEvaluateNonPositiveStoredPriceIsFirstObservation(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	for _, stored := range []string{"0", "-10"} {
		updated, event := ev.Evaluate(record(decPtr(stored)), dec("850"))
		if event != nil {
			t.Fatalf("stored %s: unexpected event %+v", stored, event)
		}
		if !updated.CurrentPrice.Equal(dec("850")) || !updated.PreviousPrice.Equal(dec("850")) {
			t.Fatalf("stored %s: prices = %v/%v, want both 850", stored, updated.CurrentPrice, updated.PreviousPrice)
		}
	}
}

func TestEvaluateThresholdCrossing(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	updated, event := ev.Evaluate(record(decPtr("1000")), dec("1050"))
	if event == nil {
		t.Fatal("a change exactly at the threshold must be reported")
	}
	if !event.OldPrice.Equal(dec("1000")) || !event.NewPrice.Equal(dec("1050")) {
		t.Fatalf("event prices = %v -> %v", event.OldPrice, event.NewPrice)
	}
	if event.DeltaPct.String() != "5" {
		t.Fatalf("delta = %s, want 5", event.DeltaPct)
	}
	if !updated.PreviousPrice.Equal(dec("1000")) || !updated.CurrentPrice.Equal(dec("1050")) {
		t.Fatalf("record prices = %v/%v", updated.PreviousPrice, updated.CurrentPrice)
	}
}

func TestEvaluateDrop(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	_, event := ev.Evaluate(record(decPtr("1000")), dec("850"))
	if event == nil {
		t.Fatal("a 15% drop must be reported")
	}
	if event.DeltaPct.String() != "-15" {
		t.Fatalf("delta = %s, want -15", event.DeltaPct)
	}
}

func TestEvaluateSubThresholdRefreshesQuietly(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	updated, event := ev.Evaluate(record(decPtr("1000")), dec("1049"))
	if event != nil {
		t.Fatalf("4.9%% change reported: %+v", event)
	}
	if !updated.CurrentPrice.Equal(dec("1049")) {
		t.Fatalf("current = %v, want refreshed to 1049", updated.CurrentPrice)
	}
	if updated.PreviousPrice != nil {
		t.Fatalf("previous = %v, must stay untouched on a quiet refresh", updated.PreviousPrice)
	}
}

func TestEvaluateIdempotentOnSamePrice(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	first, event := ev.Evaluate(record(decPtr("1000")), dec("850"))
	if event == nil {
		t.Fatal("initial change not reported")
	}

	_, again := ev.Evaluate(first, dec("850"))
	if again != nil {
		t.Fatalf("re-observing the same price re-reported: %+v", again)
	}
}

func TestEvaluateRoundsHalfEven(t *testing.T) {
	ev := NewEvaluator(5.0, zerolog.Nop())

	cases := []struct {
		in   string
		want string
	}{
		{"449.905", "449.9"},
		{"449.915", "449.92"},
		{"1234.567", "1234.57"},
	}

	for _, tc := range cases {
		updated, _ := ev.Evaluate(record(nil), dec(tc.in))
		if updated.CurrentPrice.String() != tc.want {
			t.Errorf("round(%s) = %s, want %s", tc.in, updated.CurrentPrice, tc.want)
		}
	}
}

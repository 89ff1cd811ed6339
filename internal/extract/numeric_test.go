package extract

import (
	"strings"
	"testing"
)

func TestParsePriceNormalization(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1234.5", "1234.5"},
		{"1 234,50", "1234.5"},
		{"1,234.50", "1234.5"},
		{"1234,50", "1234.5"},
		{"12 990", "12990"},
		{"12 990 ", "12990"},
		{"999", "999"},
		{"0.01", "0.01"},
		{"1,234,567", "1234567"},
		{"12,345,678", "12345678"},
		{"1,234,567.89", "1234567.89"},
	}

	for _, tc := range cases {
		price, ok := ParsePrice(tc.raw)
		if !ok {
			t.Fatalf("ParsePrice(%q) not ok", tc.raw)
		}
		if price.String() != tc.want {
			t.Fatalf("ParsePrice(%q) = %s, want %s", tc.raw, price.String(), tc.want)
		}
	}
}

func TestParsePriceEquivalentForms(t *testing.T) {
	// All separator conventions must land on the same value.
	forms := []string{"1 234,50", "1,234.50", "1234.5", "1234,5"}

	first, ok := ParsePrice(forms[0])
	if !ok {
		t.Fatalf("ParsePrice(%q) not ok", forms[0])
	}
	for _, form := range forms[1:] {
		got, ok := ParsePrice(form)
		if !ok {
			t.Fatalf("ParsePrice(%q) not ok", form)
		}
		if !got.Equal(first) {
			t.Fatalf("ParsePrice(%q) = %s, want %s", form, got.String(), first.String())
		}
	}
}

func TestParsePriceGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "free", "₽", "-"} {
		if _, ok := ParsePrice(raw); ok {
			t.Fatalf("ParsePrice(%q) unexpectedly ok", raw)
		}
	}
}

func TestFirstPriceToken(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"1 299 ₽", "1299", true},
		{"от 12 990 руб", "12990", true},
		{"нет цены", "", false},
		{"Цена: 449,90", "449.9", true},
	}

	for _, tc := range cases {
		price, ok := FirstPriceToken(tc.text)
		if ok != tc.ok {
			t.Fatalf("FirstPriceToken(%q) ok = %v, want %v", tc.text, ok, tc.ok)
		}
		if ok && price.String() != tc.want {
			t.Fatalf("FirstPriceToken(%q) = %s, want %s", tc.text, price.String(), tc.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	got := NormalizeName("  Widget\n  Pro\t 3000  ")
	if got != "Widget Pro 3000" {
		t.Fatalf("NormalizeName = %q", got)
	}
}

func TestCapName(t *testing.T) {
	long := strings.Repeat("я", 300)
	capped := capName(long)
	if got := len([]rune(capped)); got != maxNameLen {
		t.Fatalf("capName length = %d, want %d", got, maxNameLen)
	}
}

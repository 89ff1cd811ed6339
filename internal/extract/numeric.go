package extract

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Space variants seen in marketplace price markup. U+2009 (thin space) and
// U+202F (narrow no-break space) are used as thousands separators in RU
// locale rendering.
var spaceReplacer = strings.NewReplacer(
	" ", "",
	" ", "",
	" ", "",
	" ", "",
)

// ParsePrice normalises a price token into a decimal. Comma and dot are both
// accepted as decimal separators; thousands separators (space variants, or
// commas when a dot is also present) are stripped. A token that does not
// parse yields ok=false, never an error.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	s := spaceReplacer.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Decimal{}, false
	}

	if strings.Contains(s, ",") {
		switch {
		case strings.Contains(s, "."):
			// "1,234.50": commas are thousands separators.
			s = strings.ReplaceAll(s, ",", "")
		case strings.Count(s, ",") > 1:
			// "1,234,567": grouped thousands, no fractional part.
			s = strings.ReplaceAll(s, ",", "")
		default:
			// "449,90": a lone comma is the decimal separator.
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

// FirstPriceToken extracts the first digit-bearing run from free text and
// parses it as a price.
func FirstPriceToken(text string) (decimal.Decimal, bool) {
	start := -1
	for i, r := range text {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return decimal.Decimal{}, false
	}

	end := len(text)
	for i, r := range text[start:] {
		if unicode.IsDigit(r) || r == ',' || r == '.' ||
			r == ' ' || r == ' ' || r == ' ' || r == ' ' {
			continue
		}
		end = start + i
		break
	}

	return ParsePrice(text[start:end])
}

// NormalizeName collapses whitespace runs and trims the result.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// capName bounds product names pulled from loosely-structured responses.
const maxNameLen = 200

func capName(name string) string {
	name = NormalizeName(name)
	runes := []rune(name)
	if len(runes) > maxNameLen {
		return string(runes[:maxNameLen])
	}
	return name
}

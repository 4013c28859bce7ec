package helpers

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func FormatPriceUS(price float64) string {
	decimals := 6

	if price >= 1000 {
		decimals = 0
	} else if price > 1.2 {
		decimals = 2
	} else if price < 0.00001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", decimals, price)
}

// FormatAmount renders a token amount with thousand separators and at most two decimals.
func FormatAmount(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return humanize.CommafWithDigits(f, 2)
}

// FormatCompact renders large amounts as "9.0M", "1.2B" and so on.
func FormatCompact(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	if math.Abs(f) < 1000 {
		return FormatAmount(amount)
	}
	value, suffix := humanize.ComputeSI(f)
	if suffix == "G" {
		suffix = "B"
	}
	return fmt.Sprintf("%.1f%s", value, suffix)
}

func FormatPercent(change float64) string {
	return fmt.Sprintf("%+.2f%%", change)
}

// ShortAddress abbreviates an address to its first six and last four characters.
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// StripCodeFence removes markdown code fences a model may wrap around JSON.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag, e.g. ```json
		if tag := strings.TrimSpace(text[:nl]); !strings.ContainsAny(tag, "{[") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

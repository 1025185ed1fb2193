package store

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// displayPrinter renders currency amounts with locale-aware grouping.
// The POS UI is English-first; per-terminal locales can be threaded through
// later without changing the call sites.
var displayPrinter = message.NewPrinter(language.English)

// FormatTotal renders a monetary value with its currency symbol, e.g.
// "USD 1,234.50". An empty or unknown ISO code falls back to a bare
// two-decimal rendering so a bad catalog row never breaks a response.
func FormatTotal(value float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return displayPrinter.Sprintf("%.2f", value)
	}
	return displayPrinter.Sprintf("%v", currency.NarrowSymbol(unit.Amount(value)))
}

// DisplayTotal formats a cart's total value using the currency of its first
// item; mixed-currency carts are not supported by the backend, so the first
// line is authoritative.
func DisplayTotal(st *domain.CartState) string {
	if st == nil {
		return FormatTotal(0, "")
	}
	code := ""
	if len(st.Items) > 0 {
		code = st.Items[0].Product.Currency
	}
	return FormatTotal(st.TotalValue, code)
}

package academy

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders a whole-unit amount with dot thousands separators
// followed by the currency code, e.g. "$50.000 COP".
func FormatMoney(amount int64, currency string) string {
	s := decimal.NewFromInt(amount).Abs().StringFixed(0)

	var b strings.Builder
	if amount < 0 {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if currency != "" {
		b.WriteByte(' ')
		b.WriteString(currency)
	}
	return b.String()
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is zero.
func Percent(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(whole), 2)
}

// WholeUnits converts a decimal amount to int64 whole units.
// ok is false when the amount has a fractional part or does not fit in int64.
func WholeUnits(d decimal.Decimal) (int64, bool) {
	if !d.IsInteger() {
		return 0, false
	}
	if !d.BigInt().IsInt64() {
		return 0, false
	}
	return d.IntPart(), true
}

// Package format renders market figures and timestamps for terminal output.
package format

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	billion  = decimal.NewFromInt(1_000_000_000)
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
	hundred  = decimal.NewFromInt(100)
)

// Volume abbreviates a volume or liquidity figure: 1.2B, 3.4M, 5.6K, whole
// numbers below a thousand and two decimals below one. Unknown values render
// as "-".
func Volume(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	d := v.Decimal
	if d.IsZero() {
		return "0"
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	switch {
	case d.GreaterThanOrEqual(billion):
		return sign + d.Div(billion).StringFixed(1) + "B"
	case d.GreaterThanOrEqual(million):
		return sign + d.Div(million).StringFixed(1) + "M"
	case d.GreaterThanOrEqual(thousand):
		return sign + d.Div(thousand).StringFixed(1) + "K"
	case d.LessThan(decimal.NewFromInt(1)):
		return sign + d.StringFixed(2)
	default:
		return sign + d.StringFixed(0)
	}
}

// VolumeString parses s and formats it with Volume. Empty or malformed input
// renders as "-".
func VolumeString(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "-"
	}
	return Volume(decimal.NewNullDecimal(d))
}

// Percent renders an outcome price in [0,1] as a probability, e.g. 0.635
// becomes "63.5%".
func Percent(price decimal.Decimal) string {
	return price.Mul(hundred).StringFixed(1) + "%"
}

// Price renders a price or quantity with four decimals, or "-" when unset.
func Price(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return p.Decimal.StringFixed(4)
}

// Full renders t as an absolute timestamp such as "March 4, 2026, 09:30 PM".
func Full(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("January 2, 2006, 03:04 PM")
}

// Relative renders t relative to now: "Just now", "5 minutes ago", "3 hours
// ago", "2 days ago", then the absolute timestamp after a week.
func Relative(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	minutes := int(diff / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case diff < time.Minute:
		return "Just now"
	case minutes < 60:
		return plural(minutes, "minute")
	case hours < 24:
		return plural(hours, "hour")
	case days < 7:
		return plural(days, "day")
	default:
		return Full(t)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Bool renders a flag as yes/no.
func Bool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

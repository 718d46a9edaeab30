package notify

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// FormatPrice renders a price with thousands separators. Prices of at least 1
// get two decimals; smaller prices keep up to six, trimmed to no fewer than two.
func FormatPrice(p decimal.Decimal) string {
	places := int32(2)
	if p.Abs().LessThan(one) {
		places = 6
	}

	intPart, frac, _ := strings.Cut(p.Abs().StringFixed(places), ".")
	if places > 2 {
		frac = strings.TrimRight(frac, "0")
		for len(frac) < 2 {
			frac += "0"
		}
	}

	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		// beyond int64; skip grouping
		return sign(p) + intPart + "." + frac
	}
	return sign(p) + humanize.Comma(n) + "." + frac
}

func sign(p decimal.Decimal) string {
	if p.IsNegative() {
		return "-"
	}
	return ""
}

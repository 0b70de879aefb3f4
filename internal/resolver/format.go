package resolver

import (
	"math"
	"strconv"
	"strings"
)

// StockPhrase renders stock for customers without exposing exact counts
// above a small threshold.
func StockPhrase(stock int) string {
	switch {
	case stock <= 0:
		return "sin stock por el momento"
	case stock == 1:
		return "queda 1 unidad"
	case stock <= 5:
		return "quedan " + strconv.Itoa(stock) + " unidades"
	default:
		return "hay stock disponible"
	}
}

// FormatPrice renders an amount in pesos with '.' thousands and ',' decimals:
// 5500 → "$5.500", 1234.5 → "$1.234,50". Nil renders as "sin precio".
func FormatPrice(p *float64) string {
	if p == nil {
		return "sin precio"
	}
	v := *p
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole, frac := cents/100, cents%100

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != 0 {
		b.WriteByte(',')
		if frac < 10 {
			b.WriteByte('0')
		}
		b.WriteString(strconv.FormatInt(frac, 10))
	}
	return b.String()
}

package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	countRe         = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*([kmb])?(?:\b|\+|$)`)
	priceRe         = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	currencyPriceRe = regexp.MustCompile(`(?:US\$|RM|Rp|[$€£¥₱₫฿])\s?(\d[\d,]*(?:\.\d{1,2})?)`)
	salesRe         = regexp.MustCompile(`(?i)(\d[\d,.]*\s*[kmb]?\+?)\s*(?:sold|bought|sales)`)
	ratingRe        = regexp.MustCompile(`(?i)^([0-5](?:\.\d)?)\s*(?:★|stars?|/\s*5)?$`)
)

// ParseCount converts a human-formatted count such as "12.5K sold" or "1.2M"
// into an integer. Returns 0 when no number is present.
func ParseCount(s string) int64 {
	m := countRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}

	num := m[1]
	suffix := strings.ToLower(m[2])
	if suffix == "" {
		num = strings.ReplaceAll(num, ",", "")
	} else {
		num = strings.ReplaceAll(num, ",", ".")
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}

	switch suffix {
	case "k":
		f *= 1e3
	case "m":
		f *= 1e6
	case "b":
		f *= 1e9
	}
	return int64(math.Round(f))
}

// ParsePrice pulls the first decimal number out of s, ignoring currency
// symbols and thousands separators.
func ParsePrice(s string) (float64, bool) {
	m := priceRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseCurrencyPrice only matches numbers prefixed by a currency marker.
func ParseCurrencyPrice(s string) (float64, bool) {
	m := currencyPriceRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseSales finds a "<count> sold" style token and returns its value.
func ParseSales(s string) (int64, bool) {
	m := salesRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return ParseCount(m[1]), true
}

// ParseRating accepts a standalone rating such as "4.8" or "4.5 stars".
func ParseRating(s string) (float64, bool) {
	m := ratingRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil || f > 5 {
		return 0, false
	}
	return f, true
}

package extractor

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	countNoise    = regexp.MustCompile(`[^\d.,km]`)
	nonDigits     = regexp.MustCompile(`[^\d]`)
	leadingNumber = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)`)
)

// ParseCount normalizes a displayed counter such as "1,234", "1.2k" or
// "3.4m" into an integer. Anything unparsable yields 0.
//
// The suffix checks mirror how the counters are rendered: "k" wins over
// "m", and for suffixed values only the leading decimal number is used, so
// "1,5k" reads as 1000.
func ParseCount(text string) int64 {
	clean := countNoise.ReplaceAllString(strings.ToLower(text), "")

	switch {
	case strings.Contains(clean, "k"):
		return scaled(strings.Replace(clean, "k", "", 1), 1_000)
	case strings.Contains(clean, "m"):
		return scaled(strings.Replace(clean, "m", "", 1), 1_000_000)
	default:
		return digitCount(clean)
	}
}

func scaled(s string, factor float64) int64 {
	f, ok := parseFloatPrefix(s)
	if !ok {
		return 0
	}
	return int64(math.Round(f * factor))
}

// parseFloatPrefix reads the longest leading decimal number of s
func parseFloatPrefix(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// digitCount keeps only the digits of s, 0 when there are none
func digitCount(s string) int64 {
	digits := nonDigits.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

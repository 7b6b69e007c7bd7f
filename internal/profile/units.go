package profile

import (
	"regexp"
	"strconv"
	"strings"
)

// timeUnitPattern matches one compounded time component, e.g. "1h2m3s" is
// three matches. Unit alternatives are ordered so the longer/ more specific
// token (ms, us, ns) is tried before its single-letter prefix (m, s) -
// Go's regexp alternation is leftmost-first, not leftmost-longest, so
// "500ms" would otherwise parse as 500 minutes plus a stray "s".
var timeUnitPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)(ns|us|ms|h|m|s)`)

var timeUnitToMs = map[string]float64{
	"ns": 1e-6,
	"us": 1e-3,
	"ms": 1,
	"s":  1000,
	"m":  60000,
	"h":  3600000,
}

// normalizeTimeToMs parses a compounded duration string (h, m, s, ms,
// us, ns) into milliseconds. Ok is false if no component matched.
func normalizeTimeToMs(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	matches := timeUnitPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var total float64
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		total += n * timeUnitToMs[m[2]]
	}
	return total, true
}

var byteUnitPattern = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*(TB|GB|MB|KB|B)`)

var byteUnitToBytes = map[string]float64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
	"TB": 1024 * 1024 * 1024 * 1024,
}

// normalizeBytesToBytes parses a byte-unit value (B|KB|MB|GB|TB,
// case-insensitive) into bytes.
func normalizeBytesToBytes(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	m := byteUnitPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return n * byteUnitToBytes[strings.ToUpper(m[2])], true
}

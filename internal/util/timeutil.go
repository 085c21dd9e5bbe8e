package util

import (
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var mathUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

var now = time.Now

// ParseTime parses a date string in one of the common layouts, or a
// "now" expression offset by signed terms such as "now-1d" or
// "now-1d+6h". Layouts without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if rest, ok := strings.CutPrefix(s, "now"); ok {
		offset, ok := parseDateMath(rest)
		if !ok {
			return time.Time{}, false
		}
		return now().UTC().Add(offset), true
	}
	return time.Time{}, false
}

// parseDateMath sums terms of the form [+-]N{s,m,h,d,w}.
func parseDateMath(expr string) (time.Duration, bool) {
	var total time.Duration
	for expr != "" {
		sign := time.Duration(1)
		switch expr[0] {
		case '+':
		case '-':
			sign = -1
		default:
			return 0, false
		}
		expr = expr[1:]
		i := 0
		for i < len(expr) && expr[i] >= '0' && expr[i] <= '9' {
			i++
		}
		if i == 0 || i == len(expr) {
			return 0, false
		}
		n, err := strconv.ParseInt(expr[:i], 10, 32)
		if err != nil {
			return 0, false
		}
		unit, ok := mathUnits[expr[i]]
		if !ok {
			return 0, false
		}
		total += sign * time.Duration(n) * unit
		expr = expr[i+1:]
	}
	return total, true
}

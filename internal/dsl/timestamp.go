package dsl

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/leonunix/docquery/internal/query"
	"github.com/leonunix/docquery/internal/util"
)

const millisThreshold = 10_000_000_000

// formatTimestamp normalizes a timestamp operand. Integers above 10^10 are
// epoch milliseconds and kept as numbers; other integers and date strings
// become epoch seconds as a string.
func formatTimestamp(field string, v any) (any, error) {
	switch val := v.(type) {
	case int:
		return fromEpoch(int64(val)), nil
	case int32:
		return fromEpoch(int64(val)), nil
	case int64:
		return fromEpoch(val), nil
	case uint32:
		return fromEpoch(int64(val)), nil
	case float64:
		return fromEpoch(int64(val)), nil
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return fromEpoch(int64(f)), nil
		}
	case time.Time:
		return strconv.FormatInt(val.Unix(), 10), nil
	case string:
		s := strings.TrimSpace(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(int64(f)), nil
		}
		if t, ok := util.ParseTime(s); ok {
			return strconv.FormatInt(t.Unix(), 10), nil
		}
	}
	return nil, &query.ParameterError{Field: field, Msg: "Invalid date or timestamp"}
}

func fromEpoch(n int64) any {
	if n > millisThreshold {
		return n
	}
	return strconv.FormatInt(n, 10)
}

package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hlscope/metrics-engine/internal/model"
)

// Decimal coerces a loosely typed JSON value to a decimal. Absent or
// unparseable values yield (decimal.Zero, false).
func Decimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case json.Number:
		return parseDecimal(string(x))
	case string:
		return parseDecimal(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint64:
		return decimal.NewFromUint64(x), true
	}
	return decimal.Zero, false
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// DecimalField returns the first alias in keys whose value parses as a
// decimal.
func DecimalField(m map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if d, ok := Decimal(m[k]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// StringField returns the first alias in keys holding a non-blank string.
func StringField(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// TimestampField returns the first alias in keys that resolves to a
// non-negative epoch-millisecond timestamp. Numbers and numeric strings are
// taken as milliseconds; RFC 3339 strings are converted.
func TimestampField(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		if ts, ok := timestamp(m[k]); ok {
			return ts, true
		}
	}
	return 0, false
}

func timestamp(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return 0, false
			}
			v = t.UnixMilli()
		}
	}
	d, ok := Decimal(v)
	if !ok || d.IsNegative() || d.GreaterThan(maxTimestamp) {
		return 0, false
	}
	return d.IntPart(), true
}

var maxTimestamp = decimal.NewFromInt(math.MaxInt64)

// Object unwraps a nested JSON object.
func Object(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case model.RawPosition:
		return x, true
	case model.RawFill:
		return x, true
	}
	return nil, false
}

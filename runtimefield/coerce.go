package runtimefield

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

type coerceFunc func(v interface{}) (interface{}, error)

// EpochMillis is the date format reading numbers as milliseconds since the epoch.
const EpochMillis = "epoch_millis"

func toKeyword(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("cannot emit [%v] of type %T as a keyword", v, v)
	}
}

func toLong(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return nil, fmt.Errorf("value [%d] is out of range for a long", t)
		}
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("value [%d] is out of range for a long", t)
		}
		return int64(t), nil
	case float32:
		return floatToLong(float64(t))
	case float64:
		return floatToLong(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse [%s] as a long", t)
		}
		return floatToLong(f)
	default:
		return nil, fmt.Errorf("cannot emit [%v] of type %T as a long", v, v)
	}
}

func floatToLong(f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("value [%v] is out of range for a long", f)
	}
	return int64(f), nil
}

func toDouble(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse [%s] as a double", t)
		}
		return f, nil
	}
	n, err := toLong(v)
	if err != nil {
		return nil, fmt.Errorf("cannot emit [%v] of type %T as a double", v, v)
	}
	return float64(n.(int64)), nil
}

func toBoolean(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch t {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		}
		return nil, fmt.Errorf("cannot parse [%s] as a boolean", t)
	default:
		return nil, fmt.Errorf("cannot emit [%v] of type %T as a boolean", v, v)
	}
}

func toIP(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("cannot emit [%v] of type %T as an ip", v, v)
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("cannot parse [%s] as an ip", s)
	}
	return addr, nil
}

// dateCoercer parses strings with layout and reads numbers as epoch millis.
// With the epoch_millis format only numbers (or numeric strings) are accepted.
func dateCoercer(layout string) coerceFunc {
	return func(v interface{}) (interface{}, error) {
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
		if s, ok := v.(string); ok && layout != EpochMillis {
			parsed, err := time.Parse(layout, strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("cannot parse [%s] with format [%s]", s, layout)
			}
			return parsed.UTC(), nil
		}
		millis, err := toLong(v)
		if err != nil {
			return nil, fmt.Errorf("cannot emit [%v] of type %T as a date", v, v)
		}
		return time.UnixMilli(millis.(int64)).UTC(), nil
	}
}

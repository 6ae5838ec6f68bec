package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coerceFloat converts one raw field value into a finite float64.
// Booleans map to 0/1, the encoding the notebook trained with.
func coerceFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: value is missing", ErrInvalidInput)
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidInput, x.String())
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, fmt.Errorf("%w: value is empty", ErrInvalidInput)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidInput, x)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidInput, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: value is not finite", ErrInvalidInput)
	}
	return f, nil
}

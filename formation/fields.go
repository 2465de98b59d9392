package formation

import (
	"encoding/json"
	"fmt"
	"math"
)

// stringField reads key from m. A missing key or nil value reports ok=false.
func stringField(m map[string]any, key string) (string, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%q: expected string, got %T: %w", key, v, ErrInvalidPayload)
	}
	return s, true, nil
}

// intField reads a whole number from m. Numbers that went through a JSON
// codec arrive as float64 or json.Number and are accepted when integral.
func intField(m map[string]any, key string) (int, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false, fmt.Errorf("%q: %v is not a whole number: %w", key, n, ErrInvalidPayload)
		}
		return int(n), true, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("%q: %w: %v", key, ErrInvalidPayload, err)
		}
		return int(i), true, nil
	default:
		return 0, false, fmt.Errorf("%q: expected number, got %T: %w", key, v, ErrInvalidPayload)
	}
}

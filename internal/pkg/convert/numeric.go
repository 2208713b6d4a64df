// Package convert provides type conversion utilities.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ParseFloat converts a loosely typed value into a float.
// nil, empty and whitespace-only strings yield (nil, nil); anything that is
// present but not numeric yields (nil, err).
func ParseFloat(v any) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, nil
		}
		v = t
	case json.Number:
		v = strings.TrimSpace(t.String())
	case map[string]any, []any:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", v)
	}
	return &f, nil
}

// ParseInt truncates a loosely typed numeric value to int.
func ParseInt(v any) (*int, error) {
	f, err := ParseFloat(v)
	if err != nil || f == nil {
		return nil, err
	}
	n := int(*f)
	return &n, nil
}

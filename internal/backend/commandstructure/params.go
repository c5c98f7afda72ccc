package commandstructure

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissingParameter is returned when a required parameter is absent
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrInvalidParameter is returned when a parameter cannot be read as the expected type
	ErrInvalidParameter = errors.New("invalid parameter")
)

// GetStringParam safely extracts a string parameter from the params map
func GetStringParam(params map[string]any, key string, defaultValue string) string {
	if val, ok := params[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return defaultValue
}

// GetFloatParam extracts a float parameter. Numeric strings are parsed and
// the second return value reports whether a usable value was present.
func GetFloatParam(params map[string]any, key string) (float64, bool) {
	val, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ValidateRequiredParams checks that all required parameters are present
func ValidateRequiredParams(params map[string]any, required []string) error {
	for _, key := range required {
		if _, ok := params[key]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, key)
		}
	}
	return nil
}

package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StringArg returns the trimmed string argument name, if present.
func StringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// RequiredString is StringArg that fails when the argument is missing.
func RequiredString(args map[string]any, name string) (string, error) {
	v, ok := StringArg(args, name)
	if !ok {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// StringList accepts an array of strings or a comma separated string.
// Blank entries are dropped.
func StringList(args map[string]any, name string) ([]string, error) {
	var raw []string
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%s must be an array of strings", name)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// IntArg returns a non-negative integer argument. JSON numbers arrive as
// float64; numeric strings are accepted too.
func IntArg(args map[string]any, name string) (int, bool, error) {
	var n float64
	switch v := args[name].(type) {
	case nil:
		return 0, false, nil
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be a number", name)
		}
		n = float64(i)
	default:
		return 0, false, fmt.Errorf("%s must be a number", name)
	}

	if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return int(n), true, nil
}

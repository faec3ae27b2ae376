package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// toolArgs reads loosely typed model arguments. Numbers arrive as float64
// from JSON and sometimes as strings.
type toolArgs map[string]any

func (a toolArgs) String(name string) string {
	switch v := a[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	return ""
}

func (a toolArgs) RequiredString(name string) (string, error) {
	s := a.String(name)
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	return s, nil
}

func (a toolArgs) Int(name string) (int, bool) {
	switch v := a[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func (a toolArgs) RequiredInt(name string) (int, error) {
	n, ok := a.Int(name)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidInput, name)
	}
	return n, nil
}

// Bool returns nil when the argument is absent
func (a toolArgs) Bool(name string) *bool {
	var b bool
	switch v := a[name].(type) {
	case bool:
		b = v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		b = parsed
	default:
		return nil
	}
	return &b
}

func (a toolArgs) Strings(name string) []string {
	switch v := a[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

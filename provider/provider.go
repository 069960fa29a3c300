package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Provider is the base interface all capability backends implement.
type Provider interface {
	// Name returns the provider's unique name.
	Name() string
	// IsAvailable checks if the provider is ready to handle requests.
	IsAvailable(ctx context.Context) bool
}

// Factory creates a provider instance from configuration.
type Factory[T Provider] func(cfg map[string]any) (T, error)

// Settings is the config map handed to a Factory.
type Settings map[string]any

// String returns the string value for key, or "".
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Int returns the integer value for key, or 0. Viper may hand back any of
// the numeric kinds or a string.
func (s Settings) Int(key string) (int, error) {
	switch v := s[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("provider: %s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("provider: %s: unsupported integer type %T", key, v)
	}
}

// Duration returns the duration value for key. Strings such as "90s" are
// parsed so values coming straight from YAML work too.
func (s Settings) Duration(key string) (time.Duration, error) {
	switch v := s[key].(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("provider: %s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("provider: %s: unsupported duration type %T", key, v)
	}
}

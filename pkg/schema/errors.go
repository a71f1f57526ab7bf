package schema

import (
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by all errors that are raised before any file system access
var ErrConfiguration = errors.New("configuration error")

// ConfigError names the offending key and value
func ConfigError(key string, value string, reason string) error {
	return fmt.Errorf("%w: %s=%q %s", ErrConfiguration, key, value, reason)
}

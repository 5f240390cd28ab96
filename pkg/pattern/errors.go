package pattern

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every construction-time failure.
	ErrConfiguration = errors.New("configuration error")
	// ErrMissingParam indicates a template names a parameter with no value.
	ErrMissingParam = errors.New("missing parameter")
	// ErrBadTemplate indicates a template that cannot be parsed or expanded.
	ErrBadTemplate = errors.New("malformed template")
	// ErrBadRegexp indicates a regular expression that does not compile.
	ErrBadRegexp = errors.New("unparsable regular expression")
)

// ConfigError reports a broken plugin configuration. It is fatal: nothing
// is scanned once a ConfigError is returned.
type ConfigError struct {
	// Field names the configuration element at fault (e.g. "pattern", "aspects[2].detect").
	Field string
	Err   error
}

// NewConfigError wraps err as a ConfigError for field.
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// Configf builds a ConfigError with a formatted cause.
func Configf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

// Unwrap exposes both ErrConfiguration and the underlying cause to errors.Is.
func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

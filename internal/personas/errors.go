package personas

import (
	"errors"
	"fmt"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrConfigInvalid   = errors.New("invalid persona configuration")
)

// ConfigError represents a configuration-related error
type ConfigError struct {
	File  string
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	switch {
	case e.File != "" && e.Field != "":
		return fmt.Sprintf("persona config %s: %s: %v", e.File, e.Field, e.Cause)
	case e.Field != "":
		return fmt.Sprintf("persona config: %s: %v", e.Field, e.Cause)
	case e.File != "":
		return fmt.Sprintf("persona config %s: %v", e.File, e.Cause)
	}
	return fmt.Sprintf("persona config: %v", e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrConfigInvalid) match any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfigInvalid }

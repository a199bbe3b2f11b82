// Package taskerr provides common error types for the tasktree module.
package taskerr

import (
	"fmt"
)

// A ConfigurationError is returned when a component's configuration is
// invalid or inconsistent.
type ConfigurationError struct {
	Component string
	Err       error
}

var _ error = (*ConfigurationError)(nil)

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration: %s", e.Component, e.Err.Error())
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

package config

import "fmt"

// ConfigurationError reports a malformed pipeline declaration: a dangling
// artifact reference, a cycle, a barrier arity mismatch, an undeclared join
// policy. It is fatal at load/build time, before any stage executes.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}

// Errorf builds a ConfigurationError from a format string.
func Errorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

package core

import "fmt"

// ConfigError reports an invalid configuration request: an unknown stage,
// timer or purge id, an out-of-range relay channel, or a bad field value.
// It is always returned to the caller and never terminates the controller.
type ConfigError struct {
	Entity string
	ID     int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
}

func configErrorf(entity string, id int, format string, v ...interface{}) *ConfigError {
	return &ConfigError{Entity: entity, ID: id, Reason: fmt.Sprintf(format, v...)}
}

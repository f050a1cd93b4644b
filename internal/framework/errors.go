package framework

import (
	"errors"
	"fmt"
)

var (
	// ErrSettingsFrozen is returned by Set once the remote session exists
	ErrSettingsFrozen = errors.New("settings cannot change after the session has been created")

	// ErrNotInitialized is returned by Current before Init
	ErrNotInitialized = errors.New("framework session not initialized: call framework.Init first")

	// ErrUnhealthy is returned when the API health check fails
	ErrUnhealthy = errors.New("framework API is not healthy")

	// ErrUnknownSetting is returned by Set for names outside the settings table
	ErrUnknownSetting = errors.New("unknown setting")
)

// UnknownInstrumentTypeError is returned when the API resolves an identifier to a type
// the instrument table does not know
type UnknownInstrumentTypeError struct {
	Identifier string
	Type       string
}

func (e *UnknownInstrumentTypeError) Error() string {
	return fmt.Sprintf("unknown instrument type %q for %s", e.Type, e.Identifier)
}

package core

import "errors"

var (
	// ErrDegenerateGeometry is returned when a vector has no usable direction,
	// such as a zero-length satellite position.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrProviderConstruction is returned when an orbit provider cannot be built
	// from its parameters.
	ErrProviderConstruction = errors.New("orbit provider construction failed")
	// ErrPropagation is returned when a provider cannot produce a position.
	ErrPropagation = errors.New("orbit propagation failed")
	// ErrUnknownPropagationMethod is returned for an unsupported method tag.
	ErrUnknownPropagationMethod = errors.New("unknown propagation method")
	// ErrEmptySeries is returned when statistics are requested for no data.
	ErrEmptySeries = errors.New("empty data point sequence")
	// ErrTooManyPoints is returned when a window would exceed the engine's
	// data point limit.
	ErrTooManyPoints = errors.New("simulation window exceeds data point limit")
)

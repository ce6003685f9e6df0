// Package errors defines all exported error sentinels for the radixscan module.
//
// This is the single source of truth for error values. The root package and
// the device package both import from here, so errors.Is checks work across
// package boundaries.
package errors

import "errors"

// Failure taxonomy. Every one of these is fatal to the current Scan or Sort
// call; the core never retries.
var (
	// ErrAllocationFailure is returned when the device cannot provide a
	// buffer of the requested size.
	ErrAllocationFailure = errors.New("radixscan: device allocation failed")

	// ErrUnsupportedConfiguration is returned before any dispatch is issued
	// when a cohort size, radix width, vector width or array length cannot be
	// served.
	ErrUnsupportedConfiguration = errors.New("radixscan: unsupported configuration")

	// ErrDispatchFailure is returned when the engine rejects a launch or a
	// worker fails while executing it.
	ErrDispatchFailure = errors.New("radixscan: dispatch failed")
)

// Handle and lifecycle errors
var (
	ErrDeviceClosed   = errors.New("radixscan: device is closed")
	ErrBufferClosed   = errors.New("radixscan: buffer is closed")
	ErrLengthMismatch = errors.New("radixscan: length mismatch")
	ErrForeignBuffer  = errors.New("radixscan: buffer belongs to another device")
	ErrLeakedBuffers  = errors.New("radixscan: buffers still live at device close")
)

// Validation errors
var (
	ErrValidationFailed = errors.New("radixscan: result validation failed")
)

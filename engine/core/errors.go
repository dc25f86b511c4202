package core

import (
	"errors"
)

// Recoverable: the surface no longer matches the swapchain. Handled by
// rebuilding size dependent resources and dropping the frame.
var (
	ErrOutOfDate    = errors.New("swapchain out of date")
	ErrSuboptimal   = errors.New("swapchain suboptimal")
	ErrFrameSkipped = errors.New("frame skipped")
)

// Fatal: the device contract is broken, nothing is retried.
var (
	ErrDeviceLost         = errors.New("device lost")
	ErrOutOfMemory        = errors.New("out of memory")
	ErrPoolExhausted      = errors.New("binding pool exhausted")
	ErrShaderCompilation  = errors.New("shader compilation failed")
	ErrPipelineCreation   = errors.New("pipeline creation failed")
	ErrSurfaceUnsupported = errors.New("surface unsupported")
	ErrPresentLost        = errors.New("present surface lost")
)

// Configuration: fail fast at the call site.
var (
	ErrInvalidShadowRange = errors.New("invalid shadow range")
	ErrTooManyLights      = errors.New("too many lights")
	ErrTooManyCascades    = errors.New("too many cascades")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

var ErrUnknown = errors.New("unknown")

var fatalErrors = []error{
	ErrDeviceLost,
	ErrOutOfMemory,
	ErrPoolExhausted,
	ErrShaderCompilation,
	ErrPipelineCreation,
	ErrSurfaceUnsupported,
	ErrPresentLost,
}

// IsRecoverable reports whether err only signals surface staleness.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}

// IsFatal reports whether err wraps one of the device level failures.
func IsFatal(err error) bool {
	for _, target := range fatalErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

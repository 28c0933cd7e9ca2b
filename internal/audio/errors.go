// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Numeric codes reported by ErrorCode. Negative values are PortAudio
// PaErrorCode values.
const (
	CodeNoError       = 0
	CodeFailure       = 1
	CodeInvalidDevice = -9996 // paInvalidDevice
	CodeInternalError = -9986 // paInternalError
)

var (
	// ErrNoOutputDevice means the host has no usable output device.
	ErrNoOutputDevice = errors.New("no default output device available")
	// ErrInvalidState is returned for lifecycle calls out of order.
	ErrInvalidState = errors.New("invalid stream state")
)

// StreamError records the lifecycle step that failed and the audio
// subsystem's numeric code.
type StreamError struct {
	Op   string // initialize, open, start, stop, close, terminate
	Code int
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// newStreamError wraps err for op, keeping an existing StreamError's code.
func newStreamError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StreamError
	if errors.As(err, &se) {
		if se.Op == op {
			return se
		}
		return &StreamError{Op: op, Code: se.Code, Err: se.Err}
	}
	return &StreamError{Op: op, Code: codeOf(err), Err: err}
}

func codeOf(err error) int {
	var pe portaudio.Error
	switch {
	case errors.As(err, &pe):
		return int(pe)
	case errors.Is(err, ErrNoOutputDevice):
		return CodeInvalidDevice
	case errors.Is(err, ErrInvalidState):
		return CodeInternalError
	default:
		return CodeFailure
	}
}

// ErrorCode returns the numeric code for err: 0 for nil, the PortAudio
// code where one is known, otherwise 1.
func ErrorCode(err error) int {
	if err == nil {
		return CodeNoError
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return codeOf(err)
}

// ErrorOp returns the failing lifecycle step of err, or "" if unknown.
func ErrorOp(err error) string {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Op
	}
	return ""
}

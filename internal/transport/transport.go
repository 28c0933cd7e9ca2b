// SPDX-License-Identifier: MIT
package transport

// Transport defines a generic interface for sending progress snapshots or
// events off the audio thread. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Transport interface {
	Send(data any) error
	Close() error
}

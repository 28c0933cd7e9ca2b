// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync/atomic"

	applog "hvstream/internal/log"
)

// LoggingTransport implements the Transport interface by writing each
// message to the application log.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs data. Values implementing fmt.Stringer are logged with String.
func (lt *LoggingTransport) Send(data any) error {
	lt.sent.Add(1)
	if s, ok := data.(fmt.Stringer); ok {
		applog.Infof("Progress: %s", s)
	} else {
		applog.Infof("Progress: %+v", data)
	}
	return nil
}

// Sent returns the number of messages logged.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: closed after %d messages", lt.sent.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)

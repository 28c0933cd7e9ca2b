// SPDX-License-Identifier: MIT

// Package udp sends progress datagrams to a fixed target address.
package udp

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	applog "hvstream/internal/log"
	"hvstream/internal/transport"
)

// MaxDatagram is the largest payload Send will transmit.
const MaxDatagram = 1472

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("UDP sender is closed")

// UDPSender sends each message as a single UDP datagram. Values that
// implement encoding.BinaryMarshaler are sent in their binary form, byte
// slices as-is and anything else as JSON.
type UDPSender struct {
	conn   *net.UDPConn
	mu     sync.Mutex // Protects conn during Close
	closed bool
	sent   uint64
}

// NewUDPSender creates a new UDPSender targeting the specified address,
// e.g. "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local bind needed for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("UDPSender: sending to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Send encodes data and transmits it. It is safe for concurrent use.
func (s *UDPSender) Send(data any) error {
	payload, err := encode(data)
	if err != nil {
		return err
	}
	if len(payload) > MaxDatagram {
		return fmt.Errorf("UDP payload of %d bytes exceeds %d", len(payload), MaxDatagram)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.conn.Write(payload); err != nil {
		applog.Warnf("UDPSender: error sending packet: %v", err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	s.sent++
	return nil
}

// Sent returns the number of datagrams written.
func (s *UDPSender) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	applog.Debugf("UDPSender: closing connection to %s", s.conn.RemoteAddr())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

func encode(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case encoding.BinaryMarshaler:
		b, err := v.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal packet: %w", err)
		}
		return b, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode packet: %w", err)
		}
		return b, nil
	}
}

var _ transport.Transport = (*UDPSender)(nil)
